package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/cardflow/internal/config"
	"github.com/gyaneshwarpardhi/cardflow/internal/engine"
	"github.com/gyaneshwarpardhi/cardflow/internal/store"
)

type runOptions struct {
	session string
	store   string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <deck>",
		Short: "Play a deck's script in one session",
		Long: `Compile the deck and play its script step by step: raise events, set
properties, resume suspended flows and revert to labels. Expectations are
checked after each step and the session report is printed.

With a store (--store or engine.store_path) the session's events and change
ledger are saved for the history command.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, rootOpts, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.session, "session", "", "session id (default: a new UUID)")
	cmd.Flags().StringVar(&opts.store, "store", "", "SQLite database to save the session to")
	return cmd
}

func runRun(cmd *cobra.Command, rootOpts *RootOptions, opts *runOptions, path string) error {
	f := newFormatter(cmd, rootOpts)

	eng, closeStore, err := openEngine(cmd, rootOpts, f, path, opts.store)
	if err != nil {
		return err
	}
	defer closeStore()

	id := opts.session
	if id == "" {
		id = uuid.Must(uuid.NewV7()).String()
	}
	rep, err := eng.Run(cmd.Context(), id)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeFailed, "run session", err)
	}
	if err := f.Success(rep, func(w io.Writer) { printReport(w, rep, rootOpts.Verbose) }); err != nil {
		return err
	}
	if rep.Failed() {
		return WrapExitError(ExitFailure, fmt.Sprintf("session %s failed", rep.Session), nil)
	}
	return nil
}

// openEngine loads and compiles the deck at path. storePath overrides the
// deck's engine.store_path; with neither set nothing is persisted.
func openEngine(cmd *cobra.Command, rootOpts *RootOptions, f *OutputFormatter, path, storePath string) (*engine.Engine, func(), error) {
	noop := func() {}
	deck, err := config.Load(path)
	if err != nil {
		return nil, noop, f.Fail(ExitFailure, ErrCodeInvalid, "load deck", err)
	}
	logger := deckLogger(cmd, rootOpts, deck.Engine.LogLevel)
	opts := []engine.Option{engine.WithLogger(logger), engine.WithDeckName(filepath.Base(path))}

	closeStore := noop
	if storePath == "" {
		storePath = deck.Engine.StorePath
	}
	if storePath != "" {
		st, err := store.Open(storePath)
		if err != nil {
			return nil, noop, f.Fail(ExitCommandError, ErrCodeStore, "open store", err)
		}
		closeStore = func() {
			if err := st.Close(); err != nil {
				logger.Warn("close store", "error", err)
			}
		}
		opts = append(opts, engine.WithStore(st))
		f.VerboseLog("saving sessions to %s", storePath)
	}

	eng, err := engine.New(deck, opts...)
	if err != nil {
		closeStore()
		return nil, noop, f.Fail(ExitFailure, ErrCodeCompile, "compile deck", err)
	}
	f.VerboseLog("compiled %s (digest %s)", path, eng.Digest())
	return eng, closeStore, nil
}

func printReport(w io.Writer, rep *engine.Report, verbose bool) {
	mark := "✓"
	if rep.Failed() {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s session %s %s (%d events, %d changes, %dms)\n",
		mark, rep.Session, rep.Status, rep.Events, rep.Changes, rep.DurationMs)
	for _, st := range rep.Steps {
		if !verbose && st.Error == "" && len(st.Mismatches) == 0 {
			continue
		}
		line := fmt.Sprintf("  step %d %s", st.Step, st.Action)
		if st.Label != "" {
			line += " [" + st.Label + "]"
		}
		if st.Kind != "" {
			line += " " + st.Kind
		}
		if st.State != "" {
			line += " -> " + st.State
		}
		if st.Reverted > 0 {
			line += fmt.Sprintf(" reverted %d", st.Reverted)
		}
		fmt.Fprintln(w, line)
		if st.Error != "" {
			fmt.Fprintf(w, "    error: %s\n", st.Error)
		}
		for _, m := range st.Mismatches {
			fmt.Fprintf(w, "    expect: %s\n", m)
		}
	}
	if rep.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", rep.Error)
	}
	ids := make([]int, 0, len(rep.Cards))
	for id := range rep.Cards {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		props := rep.Cards[id]
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(w, "  card %d:", id)
		for _, name := range names {
			fmt.Fprintf(w, " %s=%v", name, props[name])
		}
		fmt.Fprintln(w)
	}
}
