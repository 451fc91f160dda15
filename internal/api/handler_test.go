package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/cardflow/internal/api"
	"github.com/gyaneshwarpardhi/cardflow/internal/config"
	"github.com/gyaneshwarpardhi/cardflow/internal/engine"
	"github.com/gyaneshwarpardhi/cardflow/internal/event"
	"github.com/gyaneshwarpardhi/cardflow/internal/store"
)

type fixture struct {
	handler *api.Handler
	eng     *engine.Engine
	path    string
}

func setup(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	data, err := os.ReadFile("testdata/deck.yaml")
	require.NoError(t, err)
	path := filepath.Join(dir, "deck.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	st, err := store.Open(filepath.Join(dir, "cardflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	loader, err := config.NewLoader(path)
	require.NoError(t, err)
	deck := loader.Config()
	deck.Script = deck.Script[:5]
	eng, err := engine.New(deck, engine.WithStore(st), engine.WithDeckName("deck.yaml"),
		engine.WithIDs(func() event.IDGenerator { return event.NewSequenceGenerator("ev") }))
	require.NoError(t, err)
	_, err = eng.Run(context.Background(), "s1")
	require.NoError(t, err)

	return fixture{handler: api.New(st, loader, eng, nil), eng: eng, path: path}
}

func get(t *testing.T, h http.Handler, target string, out interface{}) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestSessions(t *testing.T) {
	f := setup(t)

	var list struct {
		Sessions []store.Session `json:"sessions"`
	}
	assert.Equal(t, http.StatusOK, get(t, f.handler, "/v1/sessions", &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "s1", list.Sessions[0].ID)
	assert.Equal(t, f.eng.Digest(), list.Sessions[0].Digest)

	var sess store.Session
	assert.Equal(t, http.StatusOK, get(t, f.handler, "/v1/sessions/s1", &sess))
	assert.Equal(t, engine.StatusCompleted, sess.Status)

	var missing map[string]string
	assert.Equal(t, http.StatusNotFound, get(t, f.handler, "/v1/sessions/nope", &missing))
	assert.Contains(t, missing["error"], "not found")
	assert.Equal(t, "not_found", missing["code"])
}

func TestEventsAndChanges(t *testing.T) {
	f := setup(t)

	var events struct {
		Events []store.EventRecord `json:"events"`
	}
	assert.Equal(t, http.StatusOK, get(t, f.handler, "/v1/sessions/s1/events", &events))
	assert.Len(t, events.Events, 6)

	assert.Equal(t, http.StatusOK, get(t, f.handler, "/v1/sessions/s1/events?kind=Damage", &events))
	require.Len(t, events.Events, 1)
	assert.Equal(t, float64(8), events.Events[0].VarsAfter["dealt"])

	var changes struct {
		Changes []store.ChangeRecord `json:"changes"`
	}
	assert.Equal(t, http.StatusOK, get(t, f.handler, "/v1/sessions/s1/changes?target=card:2", &changes))
	require.Len(t, changes.Changes, 1)
	assert.Equal(t, "target", changes.Changes[0].Payload["prop"])

	assert.Equal(t, http.StatusNotFound, get(t, f.handler, "/v1/sessions/nope/changes", nil))
}

func TestDeckAndReload(t *testing.T) {
	f := setup(t)

	var deck struct {
		Version      string            `json:"version"`
		Digest       string            `json:"digest"`
		GraphDigests map[string]string `json:"graph_digests"`
	}
	assert.Equal(t, http.StatusOK, get(t, f.handler, "/v1/deck", &deck))
	assert.Equal(t, "1", deck.Version)
	assert.Equal(t, f.eng.Digest(), deck.Digest)
	assert.Len(t, deck.GraphDigests, 3)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/deck/reload", nil))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotSame(t, f.eng, f.handler.Engine())
	assert.Equal(t, f.eng.Digest(), f.handler.Engine().Digest())

	require.NoError(t, os.WriteFile(f.path, []byte("version: \"\"\n"), 0o644))
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/deck/reload", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	f := setup(t)
	assert.Equal(t, http.StatusOK, get(t, f.handler, "/healthz", nil))
	assert.Equal(t, http.StatusOK, get(t, f.handler, "/readyz", nil))

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cardflow_events_started_total")
}
