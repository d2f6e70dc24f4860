package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openhands/ohc/internal/api"
)

func newConvDownloadCmd() *cobra.Command {
	var (
		output  string
		byTitle bool
	)

	cmd := &cobra.Command{
		Use:     "download REF",
		Aliases: []string{"ws-dl"},
		Short:   "Download a conversation workspace as a zip archive",
		Args:    cobra.MinimumNArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			conv, err := refArgFromCmd(cmd, client, args, byTitle)
			if err != nil {
				return err
			}

			data, err := client.Workspace().DownloadArchive(cmd.Context(), conv)
			if err != nil {
				return err
			}

			path := output
			if path == "" {
				path = uniquePath(conv.ShortID() + ".zip")
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return err
			}

			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{
					"conversation_id": conv.ID,
					"file":            path,
					"bytes":           len(data),
				})
			}
			printIfNotQuiet(cmd, "Saved workspace to %s (%s)\n", path, formatBytes(len(data)))
			return nil
		}),
	}

	cmd.Flags().StringVarP(&output, "output-file", "o", "", "Destination file (default <shortID>.zip)")
	cmd.Flags().BoolVarP(&byTitle, "title", "t", false, "Match REF against titles")
	return cmd
}

func newConvTrajectoryCmd() *cobra.Command {
	var (
		output  string
		byTitle bool
		stdout  bool
	)

	cmd := &cobra.Command{
		Use:     "trajectory REF",
		Aliases: []string{"traj"},
		Short:   "Download a conversation's recorded trajectory",
		Args:    cobra.MinimumNArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			conv, err := refArgFromCmd(cmd, client, args, byTitle)
			if err != nil {
				return err
			}

			traj, err := client.Workspace().Trajectory(cmd.Context(), conv)
			if err != nil {
				return err
			}

			if stdout || isJSON(cmd) {
				return printJSON(cmd, traj.Trajectory)
			}

			data, err := json.MarshalIndent(traj.Trajectory, "", "  ")
			if err != nil {
				return err
			}
			path := output
			if path == "" {
				path = uniquePath(fmt.Sprintf("trajectory-%s.json", conv.ShortID()))
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return err
			}
			printIfNotQuiet(cmd, "Saved trajectory (%d events) to %s\n", len(traj.Trajectory), path)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&output, "output-file", "o", "", "Destination file (default trajectory-<shortID>.json)")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "Write the trajectory to stdout instead of a file")
	cmd.Flags().BoolVarP(&byTitle, "title", "t", false, "Match REF against titles")
	return cmd
}

func writeDownload(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func writeTrajectory(path string, traj *api.Trajectory) error {
	data, err := json.MarshalIndent(traj.Trajectory, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// uniquePath returns path, or path with a " (N)" suffix before the
// extension when path already exists. Downloads never overwrite.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

func formatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
