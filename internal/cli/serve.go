package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/cardflow/internal/api"
	"github.com/gyaneshwarpardhi/cardflow/internal/config"
	"github.com/gyaneshwarpardhi/cardflow/internal/engine"
	"github.com/gyaneshwarpardhi/cardflow/internal/store"
)

type serveOptions struct {
	addr  string
	store string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve <deck>",
		Short: "Serve stored history and the compiled deck over HTTP",
		Long: `Start the HTTP API: stored sessions, their events and changes, the compiled
deck's graph digests, deck reload, health checks and Prometheus metrics.
The deck file is watched and recompiled on change.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, rootOpts, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (default: engine.listen)")
	cmd.Flags().StringVar(&opts.store, "store", "", "SQLite database (default: engine.store_path)")
	return cmd
}

func runServe(cmd *cobra.Command, rootOpts *RootOptions, opts *serveOptions, path string) error {
	f := newFormatter(cmd, rootOpts)

	// ── Load deck ────────────────────────────────────────────────────────────
	loader, err := config.NewLoader(path)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeLoad, "load deck", err)
	}
	deck := loader.Config()
	if err := config.Validate(deck); err != nil {
		return f.Fail(ExitFailure, ErrCodeInvalid, "deck is invalid", err)
	}
	logger := deckLogger(cmd, rootOpts, deck.Engine.LogLevel)
	loader.SetLogger(logger)

	addr := opts.addr
	if addr == "" {
		addr = deck.Engine.Listen
	}
	storePath := opts.store
	if storePath == "" {
		storePath = deck.Engine.StorePath
	}

	// ── Store ────────────────────────────────────────────────────────────────
	st, err := store.Open(storePath)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "open store", err)
	}
	defer st.Close()

	// ── Engine ───────────────────────────────────────────────────────────────
	deckName := filepath.Base(path)
	eng, err := engine.New(deck, engine.WithLogger(logger), engine.WithStore(st), engine.WithDeckName(deckName))
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeCompile, "compile deck", err)
	}
	logger.Info("deck compiled", "deck", deckName, "digest", eng.Digest())
	handler := api.New(st, loader, eng, logger)

	// ── Hot-reload watcher ───────────────────────────────────────────────────
	loader.OnChange(func(d *config.Deck) {
		next, err := engine.New(d, engine.WithLogger(logger), engine.WithStore(st), engine.WithDeckName(deckName))
		if err != nil {
			logger.Warn("hot-reload skipped: deck does not compile", "error", err)
			return
		}
		handler.SwapEngine(next)
		logger.Info("deck hot-reloaded", "digest", next.Digest())
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		logger.Warn("deck watcher unavailable (hot-reload disabled)", "error", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	select {
	case err := <-serveErr:
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeGeneric, "server error", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Warn("shutdown", "error", err)
	}
	logger.Info("goodbye")
	return nil
}
