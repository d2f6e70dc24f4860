package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openhands/ohc/internal/api"
	"github.com/openhands/ohc/internal/iocontext"
	"github.com/openhands/ohc/internal/session"
)

func newBrowseCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Interactively page through conversations",
		Long: `Page through conversations interactively.

Commands at the prompt:
  n          next page
  p          previous page
  r          refresh the current page
  NUMBER     show details for that position
  w NUMBER   wake that conversation
  c NUMBER   list its git changes
  d NUMBER   download its workspace archive
  t NUMBER   download its trajectory
  q          quit`,
		Args: cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			if isJSON(cmd) {
				return fmt.Errorf("browse is interactive and does not support --json (use: ohc conv list)")
			}
			client, err := getClient()
			if err != nil {
				return err
			}

			listing := session.NewListingCache()
			pager := session.NewPager(client.Conversations(), listing, limit)
			if err := pager.First(cmd.Context()); err != nil {
				return err
			}
			persistListing(client.BaseURL, listing)

			b := &browser{
				cmd:     cmd,
				client:  client,
				listing: listing,
				pager:   pager,
			}
			return b.run()
		}),
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", api.DefaultListLimit, "Page size")
	return cmd
}

type browser struct {
	cmd     *cobra.Command
	client  *api.Client
	listing *session.ListingCache
	pager   *session.Pager
}

func (b *browser) run() error {
	ioStreams := iocontext.GetIO(b.cmd.Context())
	reader := bufio.NewReader(ioStreams.In)

	b.renderPage()
	for {
		fmt.Fprintf(ioStreams.Out, "\n[page %d] n/p/r, NUMBER, w/c/d/t NUMBER, q> ", b.pager.PageNumber())
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if quit := b.dispatch(line); quit {
			return nil
		}
	}
}

// dispatch handles one prompt line; returns true to quit.
func (b *browser) dispatch(line string) bool {
	ioStreams := iocontext.GetIO(b.cmd.Context())
	ctx := b.cmd.Context()

	verb, rest, _ := strings.Cut(line, " ")
	verb = strings.ToLower(verb)
	rest = strings.TrimSpace(rest)

	switch verb {
	case "q", "quit", "exit":
		return true

	case "n", "next":
		b.navigate(b.pager.Next(ctx), "Already at the last page.")
	case "p", "prev", "previous":
		b.navigate(b.pager.Previous(ctx), "Already at the first page.")
	case "r", "refresh":
		b.navigate(b.pager.Refresh(ctx), "")

	case "w", "wake":
		b.withConversation(rest, func(conv *api.ConversationSummary) error {
			if conv.IsRunning() {
				fmt.Fprintf(ioStreams.Out, "Conversation %s is already running.\n", conv.ShortID())
				return nil
			}
			started, err := b.client.Conversations().Start(ctx, conv.ID, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(ioStreams.Out, "%s Conversation %s is %s\n",
				statusGlyph(started.Status), started.ShortID(), started.Status)
			return nil
		})

	case "c", "changes":
		b.withConversation(rest, func(conv *api.ConversationSummary) error {
			changes, err := b.client.Workspace().GitChanges(ctx, conv)
			if err != nil {
				return err
			}
			if len(changes) == 0 {
				fmt.Fprintln(ioStreams.Out, "No uncommitted changes.")
				return nil
			}
			w := newTabWriter(ioStreams.Out)
			for _, change := range changes {
				fmt.Fprintf(w, "%s\t%s\n", changeGlyph(change.Status), change.Path)
			}
			return w.Flush()
		})

	case "d", "download":
		b.withConversation(rest, func(conv *api.ConversationSummary) error {
			data, err := b.client.Workspace().DownloadArchive(ctx, conv)
			if err != nil {
				return err
			}
			path := uniquePath(conv.ShortID() + ".zip")
			if err := writeDownload(path, data); err != nil {
				return err
			}
			fmt.Fprintf(ioStreams.Out, "Saved workspace to %s (%s)\n", path, formatBytes(len(data)))
			return nil
		})

	case "t", "trajectory":
		b.withConversation(rest, func(conv *api.ConversationSummary) error {
			traj, err := b.client.Workspace().Trajectory(ctx, conv)
			if err != nil {
				return err
			}
			path := uniquePath(fmt.Sprintf("trajectory-%s.json", conv.ShortID()))
			if err := writeTrajectory(path, traj); err != nil {
				return err
			}
			fmt.Fprintf(ioStreams.Out, "Saved trajectory (%d events) to %s\n", len(traj.Trajectory), path)
			return nil
		})

	default:
		if _, err := strconv.Atoi(verb); err == nil {
			b.withConversation(verb, func(conv *api.ConversationSummary) error {
				detail, err := b.client.Conversations().Get(ctx, conv.ID)
				if err != nil {
					return err
				}
				return writeConversationDetail(b.cmd, detail)
			})
		} else {
			fmt.Fprintf(ioStreams.Out, "Unknown command %q. Use n, p, r, a number, w/c/d/t NUMBER, or q.\n", verb)
		}
	}
	return false
}

// navigate applies a pager move, re-rendering on success and printing the
// boundary message on a terminal signal.
func (b *browser) navigate(err error, boundaryMsg string) {
	ioStreams := iocontext.GetIO(b.cmd.Context())
	switch {
	case err == nil:
		persistListing(b.client.BaseURL, b.listing)
		b.renderPage()
	case errors.Is(err, session.ErrNoMoreFollowing), errors.Is(err, session.ErrStartOfListing):
		if boundaryMsg != "" {
			fmt.Fprintln(ioStreams.Out, boundaryMsg)
		}
	default:
		fmt.Fprint(ioStreams.ErrOut, HandleError(err))
	}
}

// withConversation resolves a position argument against the current page
// and runs fn on it, reporting any error without leaving the loop.
func (b *browser) withConversation(arg string, fn func(*api.ConversationSummary) error) {
	ioStreams := iocontext.GetIO(b.cmd.Context())
	if arg == "" {
		fmt.Fprintln(ioStreams.Out, "Give a position number from the listing.")
		return
	}
	pos, err := strconv.Atoi(arg)
	if err != nil {
		fmt.Fprintf(ioStreams.Out, "Not a position number: %q\n", arg)
		return
	}
	conv, ok := b.listing.ByPosition(pos)
	if !ok {
		fmt.Fprintf(ioStreams.Out, "Position %d is not on this page (1-%d).\n", pos, b.listing.Len())
		return
	}
	if err := fn(conv); err != nil {
		fmt.Fprint(ioStreams.ErrOut, HandleError(err))
	}
}

func (b *browser) renderPage() {
	ioStreams := iocontext.GetIO(b.cmd.Context())
	conversations := b.listing.Conversations()
	if len(conversations) == 0 {
		fmt.Fprintln(ioStreams.Out, "No conversations.")
		return
	}

	w := newTabWriter(ioStreams.Out)
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
	_ = w.Flush()
}
