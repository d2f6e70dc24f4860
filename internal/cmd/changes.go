package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openhands/ohc/internal/api"
)

func newConvChangesCmd() *cobra.Command {
	var (
		saveAll     string
		concurrency int
		byTitle     bool
	)

	cmd := &cobra.Command{
		Use:     "changes REF",
		Aliases: []string{"diff"},
		Short:   "List uncommitted git changes in a conversation workspace",
		Long: `List the uncommitted git changes in a running conversation's workspace.

The conversation must be RUNNING; wake it first if it is stopped. With
--save-all the current content of every changed file is downloaded into
the given directory, preserving workspace paths.`,
		Args: cobra.MinimumNArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			conv, err := refArgFromCmd(cmd, client, args, byTitle)
			if err != nil {
				return err
			}

			changes, err := client.Workspace().GitChanges(cmd.Context(), conv)
			if err != nil {
				return err
			}

			if saveAll != "" {
				return saveChangedFiles(cmd, client, conv, changes, saveAll, concurrency)
			}

			if isJSON(cmd) {
				return printJSON(cmd, changes)
			}

			if len(changes) == 0 {
				printIfNotQuiet(cmd, "No uncommitted changes.\n")
				return nil
			}
			w := newTabWriterFromCmd(cmd)
			for _, change := range changes {
				fmt.Fprintf(w, "%s\t%s\n", changeGlyph(change.Status), change.Path)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			printIfNotQuiet(cmd, "\n%d changed file(s)\n", len(changes))
			return nil
		}),
	}

	cmd.Flags().StringVar(&saveAll, "save-all", "", "Download every changed file into DIR")
	cmd.Flags().IntVar(&concurrency, "concurrency", api.DefaultDownloadConcurrency, "Parallel downloads for --save-all")
	cmd.Flags().BoolVarP(&byTitle, "title", "t", false, "Match REF against titles")
	return cmd
}

// changeGlyph maps a git status letter to a colored marker.
func changeGlyph(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "A", "ADDED", "UNTRACKED":
		return green("A")
	case "M", "MODIFIED":
		return yellow("M")
	case "D", "DELETED":
		return red("D")
	case "R", "RENAMED":
		return yellow("R")
	default:
		return status
	}
}

func saveChangedFiles(cmd *cobra.Command, client *api.Client, conv *api.ConversationSummary, changes []api.GitChange, dir string, concurrency int) error {
	// Deleted files have no workspace content to fetch.
	downloadable := make([]api.GitChange, 0, len(changes))
	skipped := 0
	for _, change := range changes {
		if strings.EqualFold(strings.TrimSpace(change.Status), "D") ||
			strings.EqualFold(strings.TrimSpace(change.Status), "DELETED") {
			skipped++
			continue
		}
		downloadable = append(downloadable, change)
	}
	if len(downloadable) == 0 {
		printIfNotQuiet(cmd, "No uncommitted changes to save.\n")
		return nil
	}

	contents, err := client.Workspace().DownloadChangedFiles(cmd.Context(), conv, downloadable, concurrency)
	if err != nil {
		return err
	}

	written := make([]string, 0, len(downloadable))
	for i, change := range downloadable {
		dest := filepath.Join(dir, filepath.FromSlash(change.Path))
		if !strings.HasPrefix(filepath.Clean(dest), filepath.Clean(dir)+string(filepath.Separator)) {
			return fmt.Errorf("refusing to write outside %s: %s", dir, change.Path)
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dest, []byte(contents[i]), 0o644); err != nil {
			return err
		}
		written = append(written, dest)
	}

	if isJSON(cmd) {
		return printJSON(cmd, map[string]any{
			"conversation_id": conv.ID,
			"directory":       dir,
			"files":           written,
			"skipped_deleted": skipped,
		})
	}
	printIfNotQuiet(cmd, "Saved %d file(s) to %s\n", len(written), dir)
	if skipped > 0 {
		printIfNotQuiet(cmd, "Skipped %d deleted file(s).\n", skipped)
	}
	return nil
}
