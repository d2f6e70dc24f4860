package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openhands/ohc/internal/api"
	"github.com/openhands/ohc/internal/dryrun"
	"github.com/openhands/ohc/internal/outfmt"
	"github.com/openhands/ohc/internal/session"
)

func newConvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conv",
		Aliases: []string{"conversation", "conversations"},
		Short:   "Work with remote conversations",
	}

	cmd.AddCommand(newConvListCmd())
	cmd.AddCommand(newConvShowCmd())
	cmd.AddCommand(newConvWakeCmd())
	cmd.AddCommand(newConvChangesCmd())
	cmd.AddCommand(newConvDownloadCmd())
	cmd.AddCommand(newConvTrajectoryCmd())

	return cmd
}

func newConvListCmd() *cobra.Command {
	var (
		limit int
		all   bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List conversations, most recently updated first",
		Args:    cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var conversations []api.ConversationSummary
			nextPageID := ""
			if all {
				pageID := ""
				for {
					page, err := client.Conversations().List(ctx, api.ListConversationsParams{
						Limit:  limit,
						PageID: pageID,
					})
					if err != nil {
						return err
					}
					conversations = append(conversations, page.Results...)
					if page.NextPageID == "" {
						break
					}
					pageID = page.NextPageID
				}
			} else {
				page, err := client.Conversations().List(ctx, api.ListConversationsParams{Limit: limit})
				if err != nil {
					return err
				}
				conversations = page.Results
				nextPageID = page.NextPageID
			}

			// The displayed listing becomes the reference frame for
			// position numbers in later invocations.
			listing := session.NewListingCache()
			listing.Replace(&api.ConversationPage{
				Results:    conversations,
				NextPageID: nextPageID,
			})
			persistListing(client.BaseURL, listing)

			if isJSON(cmd) {
				if conversations == nil {
					conversations = []api.ConversationSummary{}
				}
				if outfmt.IsJSONL(cmd.Context()) {
					return printJSONLines(cmd, len(conversations), func(i int) any {
						return conversations[i]
					})
				}
				payload := map[string]any{"results": conversations}
				if nextPageID != "" {
					payload["next_page_id"] = nextPageID
				}
				addRateLimitMeta(payload, client)
				return printJSON(cmd, payload)
			}

			if len(conversations) == 0 {
				printIfNotQuiet(cmd, "No conversations.\n")
				return nil
			}

			w := newTabWriterFromCmd(cmd)
			fmt.Fprintln(w, "#\tID\t\tTITLE\tREPOSITORY\tUPDATED")
			for i, c := range conversations {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					i+1,
					c.ShortID(),
					statusGlyph(c.Status),
					truncate(c.DisplayTitle(), 40),
					c.Repository,
					formatRelative(c.LastUpdatedTime()),
				)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if nextPageID != "" {
				printIfNotQuiet(cmd, "\nMore available: ohc browse\n")
			}
			return nil
		}),
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", api.DefaultListLimit, "Page size")
	cmd.Flags().BoolVar(&all, "all", false, "Fetch every page")
	return cmd
}

func newConvShowCmd() *cobra.Command {
	var byTitle bool

	cmd := &cobra.Command{
		Use:     "show REF",
		Aliases: []string{"get", "info"},
		Short:   "Show conversation details",
		Long: `Show details for one conversation.

REF is a full conversation ID, a unique ID prefix, or a position number
from the last "ohc conv list" output. With --title, REF is matched
against conversation titles instead.`,
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

			if isJSON(cmd) {
				return printJSON(cmd, conv)
			}
			return writeConversationDetail(cmd, conv)
		}),
	}

	cmd.Flags().BoolVarP(&byTitle, "title", "t", false, "Match REF against titles")
	return cmd
}

func writeConversationDetail(cmd *cobra.Command, conv *api.ConversationSummary) error {
	w := newTabWriterFromCmd(cmd)
	fmt.Fprintf(w, "ID:\t%s\n", conv.ID)
	fmt.Fprintf(w, "Title:\t%s\n", conv.DisplayTitle())
	fmt.Fprintf(w, "Status:\t%s %s\n", statusGlyph(conv.Status), conv.Status)
	if conv.RuntimeStatus != "" {
		fmt.Fprintf(w, "Runtime status:\t%s\n", conv.RuntimeStatus)
	}
	if conv.Repository != "" {
		fmt.Fprintf(w, "Repository:\t%s\n", conv.Repository)
	}
	if conv.Trigger != "" {
		fmt.Fprintf(w, "Trigger:\t%s\n", conv.Trigger)
	}
	if t := conv.CreatedTime(); !t.IsZero() {
		fmt.Fprintf(w, "Created:\t%s (%s)\n", t.Local().Format(timeLayout), formatRelative(t))
	}
	if t := conv.LastUpdatedTime(); !t.IsZero() {
		fmt.Fprintf(w, "Updated:\t%s (%s)\n", t.Local().Format(timeLayout), formatRelative(t))
	}
	if id := conv.RuntimeID(); id != "" {
		fmt.Fprintf(w, "Runtime:\t%s\n", id)
	}
	return w.Flush()
}

func newConvWakeCmd() *cobra.Command {
	var providers []string

	cmd := &cobra.Command{
		Use:     "wake REF",
		Aliases: []string{"start"},
		Short:   "Start a stopped conversation's runtime",
		Args:    cobra.MinimumNArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			conv, err := refArgFromCmd(cmd, client, args, false)
			if err != nil {
				return err
			}

			if conv.IsRunning() {
				if isJSON(cmd) {
					return printJSON(cmd, conv)
				}
				printIfNotQuiet(cmd, "Conversation %s is already running.\n", conv.ShortID())
				return nil
			}

			if done, err := maybeDryRun(cmd, &dryrun.Preview{
				Operation:   "wake",
				Resource:    "conversation",
				Description: fmt.Sprintf("Start runtime for %s (%s)", conv.ShortID(), conv.DisplayTitle()),
				Details: map[string]any{
					"conversation_id": conv.ID,
					"status":          conv.Status,
					"providers":       providers,
				},
			}); done {
				return err
			}

			started, err := client.Conversations().Start(cmd.Context(), conv.ID, providers)
			if err != nil {
				return err
			}

			if isJSON(cmd) {
				return printJSON(cmd, started)
			}
			printIfNotQuiet(cmd, "%s Conversation %s is %s\n",
				statusGlyph(started.Status), started.ShortID(), started.Status)
			if !started.IsRunning() {
				printIfNotQuiet(cmd, "The runtime may take a moment to come up. Check with: ohc conv show %s\n", started.ShortID())
			}
			return nil
		}),
	}

	cmd.Flags().StringSliceVar(&providers, "provider", nil, "Git provider to authenticate in the runtime (repeatable)")
	flagAlias(cmd.Flags(), "provider", "providers")
	return cmd
}

// truncate shortens s to max runes, replacing the tail with an
// ellipsis. Counting runes keeps multi-byte titles from being cut
// mid-character.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}
