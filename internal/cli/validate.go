package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/cardflow/internal/config"
	"github.com/gyaneshwarpardhi/cardflow/internal/engine"
)

// ValidationResult is the outcome of validating and compiling a deck.
type ValidationResult struct {
	Valid   bool     `json:"valid"`
	Deck    string   `json:"deck"`
	Digest  string   `json:"digest,omitempty"`
	Events  int      `json:"events"`
	Cards   int      `json:"cards"`
	Effects int      `json:"effects"`
	Steps   int      `json:"steps"`
	Errors  []string `json:"errors,omitempty"`
}

type validateOptions struct {
	watch bool
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &validateOptions{}
	cmd := &cobra.Command{
		Use:   "validate <deck>",
		Short: "Validate and compile a deck",
		Long: `Load a deck file, apply CARDFLOW_* environment overrides, validate it and
build every graph through the node registry.

With --watch the deck is re-validated each time the file changes until
interrupted.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, rootOpts, opts, args[0])
		},
	}
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "re-validate on every file change")
	return cmd
}

func runValidate(cmd *cobra.Command, rootOpts *RootOptions, opts *validateOptions, path string) error {
	f := newFormatter(cmd, rootOpts)

	loader, err := config.NewLoader(path)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeLoad, "load deck", err)
	}
	res := compileDeck(path, loader.Config())
	if err := printValidation(f, res); err != nil {
		return err
	}
	if !opts.watch {
		if !res.Valid {
			return WrapExitError(ExitFailure, "deck is invalid", nil)
		}
		return nil
	}

	logger := deckLogger(cmd, rootOpts, loader.Config().Engine.LogLevel)
	loader.SetLogger(logger)
	loader.OnChange(func(d *config.Deck) {
		_ = printValidation(f, compileDeck(path, d))
	})
	loader.OnError(func(err error) {
		_ = printValidation(f, &ValidationResult{Deck: filepath.Base(path), Errors: problems(err)})
	})
	stop, err := loader.Watch()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeLoad, "watch deck", err)
	}
	defer stop()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	f.VerboseLog("watching %s", path)
	<-ctx.Done()
	return nil
}

// compileDeck validates d and builds an engine from it.
func compileDeck(path string, d *config.Deck) *ValidationResult {
	res := &ValidationResult{Deck: filepath.Base(path), Events: len(d.Events), Cards: len(d.Cards), Steps: len(d.Script)}
	for _, c := range d.Cards {
		res.Effects += len(c.Effects)
	}
	if err := config.Validate(d); err != nil {
		res.Errors = problems(err)
		return res
	}
	eng, err := engine.New(d)
	if err != nil {
		res.Errors = []string{err.Error()}
		return res
	}
	res.Valid = true
	res.Digest = eng.Digest()
	return res
}

func printValidation(f *OutputFormatter, res *ValidationResult) error {
	if !res.Valid && f.Format == "json" {
		return f.Error(ErrCodeInvalid, "deck is invalid", res)
	}
	return f.Success(res, func(w io.Writer) {
		if !res.Valid {
			fmt.Fprintf(w, "✗ %s is invalid\n", res.Deck)
			for _, p := range res.Errors {
				fmt.Fprintf(w, "  - %s\n", p)
			}
			return
		}
		fmt.Fprintf(w, "✓ %s is valid\n", res.Deck)
		fmt.Fprintf(w, "  events: %d  cards: %d  effects: %d  steps: %d\n", res.Events, res.Cards, res.Effects, res.Steps)
		fmt.Fprintf(w, "  digest: %s\n", res.Digest)
	})
}

// problems splits a collected validation error into its entries.
func problems(err error) []string {
	msg := err.Error()
	if _, rest, ok := strings.Cut(msg, "\n  - "); ok {
		return strings.Split(rest, "\n  - ")
	}
	return []string{msg}
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
