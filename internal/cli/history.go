package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/cardflow/internal/store"
)

type historyOptions struct {
	kind   string
	target string
}

// SessionHistory is one stored session with its events and changes.
type SessionHistory struct {
	Session store.Session        `json:"session"`
	Events  []store.EventRecord  `json:"events"`
	Changes []store.ChangeRecord `json:"changes"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &historyOptions{}
	cmd := &cobra.Command{
		Use:   "history <store> [session]",
		Short: "Inspect stored sessions",
		Long: `Without a session id, list the sessions in the store. With one, print the
session's recorded events and change ledger, optionally filtered by event
kind and change target (e.g. card:1).`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, rootOpts, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.kind, "kind", "", "only events of this kind")
	cmd.Flags().StringVar(&opts.target, "target", "", "only changes to this target")
	return cmd
}

func runHistory(cmd *cobra.Command, rootOpts *RootOptions, opts *historyOptions, args []string) error {
	f := newFormatter(cmd, rootOpts)
	st, err := store.Open(args[0])
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "open store", err)
	}
	defer st.Close()
	ctx := cmd.Context()

	if len(args) == 1 {
		sessions, err := st.Sessions(ctx)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, "list sessions", err)
		}
		return f.Success(sessions, func(w io.Writer) {
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SESSION\tDECK\tSTATUS\tSTEPS\tCREATED")
			for _, s := range sessions {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", s.ID, s.Deck, s.Status, s.Steps, s.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			tw.Flush()
		})
	}

	sess, err := st.Session(ctx, args[1])
	if errors.Is(err, store.ErrNotFound) {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("session %q not found", args[1]), nil)
	}
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "read session", err)
	}
	h := SessionHistory{Session: sess}
	if h.Events, err = st.Events(ctx, sess.ID, opts.kind); err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "read events", err)
	}
	if h.Changes, err = st.Changes(ctx, sess.ID, opts.target); err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "read changes", err)
	}
	return f.Success(h, func(w io.Writer) { printHistory(w, h) })
}

func printHistory(w io.Writer, h SessionHistory) {
	fmt.Fprintf(w, "session %s (%s, %s, digest %s)\n", h.Session.ID, h.Session.Deck, h.Session.Status, h.Session.Digest)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nSEQ\tEVENT\tKIND\tPARENT\tSTATE\tLEDGER\tVARS")
	for _, ev := range h.Events {
		state := ev.State
		if ev.Canceled {
			state += " (canceled)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d..%d\t%v\n",
			ev.Seq, ev.ID, ev.Kind, ev.ParentID, state, ev.IndexBefore, ev.IndexAfter, ev.VarsAfter)
	}
	fmt.Fprintln(tw, "\nSEQ\tINDEX\tEVENT\tKIND\tTARGET\tPAYLOAD")
	for _, c := range h.Changes {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%v\n", c.Seq, c.Index, c.EventID, c.Kind, c.Target, c.Payload)
	}
	tw.Flush()
}
