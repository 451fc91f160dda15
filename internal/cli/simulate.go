package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/cardflow/internal/engine"
)

type simulateOptions struct {
	sessions int
	prefix   string
	store    string
}

// SimulationResult summarizes a batch of sessions.
type SimulationResult struct {
	Sessions  int              `json:"sessions"`
	Completed int              `json:"completed"`
	Suspended int              `json:"suspended"`
	Failed    int              `json:"failed"`
	Reports   []*engine.Report `json:"reports,omitempty"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate <deck>",
		Short: "Play a deck's script in many independent sessions",
		Long: `Play the deck's script in -n sessions at once on engine.workers goroutines.
Each session has its own trigger manager and ledger; the compiled graphs are
shared.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd, rootOpts, opts, args[0])
		},
	}
	cmd.Flags().IntVarP(&opts.sessions, "sessions", "n", 10, "number of sessions")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "sim", "session id prefix")
	cmd.Flags().StringVar(&opts.store, "store", "", "SQLite database to save sessions to")
	return cmd
}

func runSimulate(cmd *cobra.Command, rootOpts *RootOptions, opts *simulateOptions, path string) error {
	f := newFormatter(cmd, rootOpts)
	if opts.sessions < 1 {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "--sessions must be positive", nil)
	}

	eng, closeStore, err := openEngine(cmd, rootOpts, f, path, opts.store)
	if err != nil {
		return err
	}
	defer closeStore()

	reports, err := eng.Simulate(cmd.Context(), opts.prefix, opts.sessions)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeFailed, "simulate", err)
	}

	res := &SimulationResult{Sessions: len(reports)}
	for _, rep := range reports {
		switch rep.Status {
		case engine.StatusCompleted:
			res.Completed++
		case engine.StatusSuspended:
			res.Suspended++
		default:
			res.Failed++
		}
	}
	if rootOpts.Verbose || rootOpts.Format == "json" {
		res.Reports = reports
	}

	err = f.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "%d sessions: %d completed, %d suspended, %d failed\n",
			res.Sessions, res.Completed, res.Suspended, res.Failed)
		for _, rep := range res.Reports {
			printReport(w, rep, false)
		}
	})
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return WrapExitError(ExitFailure, fmt.Sprintf("%d sessions failed", res.Failed), nil)
	}
	return nil
}
