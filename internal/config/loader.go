package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader reads a deck file and watches it for changes.
type Loader struct {
	path     string
	mu       sync.RWMutex
	current  *Deck
	onChange []func(*Deck)
	onError  []func(error)
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path string) (*Loader, error) {
	l := &Loader{path: path, logger: slog.Default()}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Load reads, overrides and validates the deck at path in one go.
func Load(path string) (*Deck, error) {
	l, err := NewLoader(path)
	if err != nil {
		return nil, err
	}
	d := l.Config()
	if err := Validate(d); err != nil {
		return nil, err
	}
	return d, nil
}

// SetLogger sets the logger used for reload diagnostics.
func (l *Loader) SetLogger(logger *slog.Logger) { l.logger = logger }

// Path is the watched file.
func (l *Loader) Path() string { return l.path }

// Config returns the current (latest) deck.
func (l *Loader) Config() *Deck {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever the deck reloads.
func (l *Loader) OnChange(fn func(*Deck)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// OnError registers a callback invoked when a reload fails.
func (l *Loader) OnError(fn func(error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onError = append(l.onError, fn)
}

// Watch starts a background goroutine that hot-reloads the deck on file changes.
// Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", l.path, err)
	}
	l.watcher = w

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						// Keep serving the old deck.
						l.logger.Warn("deck reload failed", "path", l.path, "error", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Warn("deck watcher error", "path", l.path, "error", err)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}

// Reload forces an immediate re-read of the deck file. An invalid deck is
// reported to OnError callbacks and does not replace the current one.
func (l *Loader) Reload() (*Deck, error) {
	cfg, err := l.load()
	if err == nil {
		err = Validate(cfg)
	}
	if err != nil {
		l.mu.RLock()
		callbacks := make([]func(error), len(l.onError))
		copy(callbacks, l.onError)
		l.mu.RUnlock()
		for _, fn := range callbacks {
			fn(err)
		}
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	callbacks := make([]func(*Deck), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
	return cfg, nil
}

func (l *Loader) load() (*Deck, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read deck %s: %w", l.path, err)
	}
	var cfg Deck
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse deck %s: %w", l.path, err)
	}
	if err := env.Parse(&cfg.Engine); err != nil {
		return nil, fmt.Errorf("deck %s env overrides: %w", l.path, err)
	}
	// Apply defaults.
	if cfg.Engine.MaxFlowSteps == 0 {
		cfg.Engine.MaxFlowSteps = 10000
	}
	if cfg.Engine.LogLevel == "" {
		cfg.Engine.LogLevel = "info"
	}
	if cfg.Engine.Workers == 0 {
		cfg.Engine.Workers = 4
	}
	if cfg.Engine.QueueDepth == 0 {
		cfg.Engine.QueueDepth = 64
	}
	if cfg.Engine.Listen == "" {
		cfg.Engine.Listen = ":8080"
	}
	return &cfg, nil
}
