package api

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/cardflow/internal/config"
	"github.com/gyaneshwarpardhi/cardflow/internal/engine"
	"github.com/gyaneshwarpardhi/cardflow/internal/store"
)

// Handler holds all HTTP handler dependencies.
type Handler struct {
	store   *store.Store
	loader  *config.Loader
	engine  atomic.Pointer[engine.Engine]
	logger  *slog.Logger
	mux     *http.ServeMux
	handler http.Handler
}

// New creates an HTTP handler and registers all routes. eng is the deck
// compiled from loader's current config.
func New(st *store.Store, loader *config.Loader, eng *engine.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{store: st, loader: loader, logger: logger, mux: http.NewServeMux()}
	h.engine.Store(eng)

	h.mux.HandleFunc("GET /v1/sessions", h.listSessions)
	h.mux.HandleFunc("GET /v1/sessions/{id}", h.getSession)
	h.mux.HandleFunc("GET /v1/sessions/{id}/events", h.listEvents)
	h.mux.HandleFunc("GET /v1/sessions/{id}/changes", h.listChanges)
	h.mux.HandleFunc("GET /v1/deck", h.getDeck)
	h.mux.HandleFunc("POST /v1/deck/reload", h.reloadDeck)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())
	h.handler = loggingMiddleware(logger, h.mux)
	return h
}

// ServeHTTP serves the routes behind the request logger.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

// SwapEngine replaces the compiled deck (used on hot-reload).
func (h *Handler) SwapEngine(eng *engine.Engine) { h.engine.Store(eng) }

// Engine returns the current compiled deck.
func (h *Handler) Engine() *engine.Engine { return h.engine.Load() }

// GET /v1/sessions: stored sessions, newest first.
func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.Sessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeStore, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": emptyIfNil(sessions)})
}

// GET /v1/sessions/{id}
func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// GET /v1/sessions/{id}/events?kind=: recorded events in start order.
func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.store.Session(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	events, err := h.store.Events(r.Context(), id, r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeStore, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": id, "events": emptyIfNil(events)})
}

// GET /v1/sessions/{id}/changes?target=: the change ledger.
func (h *Handler) listChanges(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.store.Session(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	changes, err := h.store.Changes(r.Context(), id, r.URL.Query().Get("target"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeStore, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": id, "changes": emptyIfNil(changes)})
}

// GET /v1/deck: the loaded deck and its graph digests.
func (h *Handler) getDeck(w http.ResponseWriter, r *http.Request) {
	cfg := h.loader.Config()
	eng := h.engine.Load()
	cards := make([]map[string]interface{}, 0, len(cfg.Cards))
	for _, c := range cfg.Cards {
		effects := make([]string, 0, len(c.Effects))
		for _, e := range c.Effects {
			effects = append(effects, e.Name)
		}
		cards = append(cards, map[string]interface{}{"id": c.ID, "name": c.Name, "effects": effects})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":       cfg.Version,
		"digest":        eng.Digest(),
		"graph_digests": eng.GraphDigests(),
		"cards":         cards,
		"script_steps":  len(cfg.Script),
	})
}

// POST /v1/deck/reload: re-read the deck from disk and recompile it.
func (h *Handler) reloadDeck(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, codeInvalidDeck, err.Error())
		return
	}
	eng, err := engine.New(cfg, engine.WithStore(h.store), engine.WithLogger(h.logger), engine.WithDeckName(filepath.Base(h.loader.Path())))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, codeInvalidDeck, err.Error())
		return
	}
	h.SwapEngine(eng)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded": true,
		"digest":   eng.Digest(),
	})
}

// GET /healthz: always 200 (liveness).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 when the store cannot be reached.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
