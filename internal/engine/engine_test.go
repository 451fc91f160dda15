package engine_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/cardflow/internal/config"
	"github.com/gyaneshwarpardhi/cardflow/internal/engine"
	"github.com/gyaneshwarpardhi/cardflow/internal/event"
	"github.com/gyaneshwarpardhi/cardflow/internal/graph"
	"github.com/gyaneshwarpardhi/cardflow/internal/metrics"
	"github.com/gyaneshwarpardhi/cardflow/internal/store"
)

func loadDeck(t *testing.T) *config.Deck {
	t.Helper()
	d, err := config.Load("testdata/deck.yaml")
	require.NoError(t, err)
	return d
}

func sequenceIDs() event.IDGenerator { return event.NewSequenceGenerator("ev") }

func newEngine(t *testing.T, d *config.Deck, opts ...engine.Option) *engine.Engine {
	t.Helper()
	e, err := engine.New(d, append([]engine.Option{engine.WithIDs(sequenceIDs)}, opts...)...)
	require.NoError(t, err)
	return e
}

func TestRunDeckScript(t *testing.T) {
	e := newEngine(t, loadDeck(t))
	rep, err := e.Run(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, engine.StatusCompleted, rep.Status, "%+v", rep.Steps)
	require.Len(t, rep.Steps, 6)
	for _, st := range rep.Steps {
		assert.Empty(t, st.Error, "step %d", st.Step)
		assert.Empty(t, st.Mismatches, "step %d", st.Step)
	}
	assert.Equal(t, "Play", rep.Steps[0].Kind)
	assert.Equal(t, string(event.StateCompleted), rep.Steps[0].State)
	assert.Equal(t, string(event.StateSuspended), rep.Steps[1].State)
	assert.Equal(t, "Aim", rep.Steps[2].Kind)
	assert.Equal(t, string(event.StateCompleted), rep.Steps[2].State)
	assert.Equal(t, 3, rep.Steps[5].Reverted)

	assert.Equal(t, map[string]interface{}{"power": 1}, rep.Cards[1])
	assert.Empty(t, rep.Cards[2])
	assert.Zero(t, rep.Events)
	assert.Zero(t, rep.Changes)
	assert.Equal(t, e.Digest(), rep.Digest)
}

func TestPlayWithoutRevert(t *testing.T) {
	d := loadDeck(t)
	e := newEngine(t, d)
	s, err := e.NewSession(context.Background(), "s1")
	require.NoError(t, err)
	defer s.Close()

	rep, err := s.Play(context.Background(), d.Script[:5])
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCompleted, rep.Status)
	assert.Equal(t, 9, rep.Cards[1]["power"])
	assert.Equal(t, 1, rep.Cards[2]["target"])
	assert.Equal(t, 6, rep.Events)
	assert.Equal(t, 3, rep.Changes)

	dmg := s.Game().Triggers().RecordedEvents(false, false)[4]
	assert.Equal(t, "Damage", dmg.Kind())
	assert.Equal(t, 8, dmg.Var("dealt"))
}

func TestPlayReportsFailures(t *testing.T) {
	d := loadDeck(t)
	e := newEngine(t, d)
	s, err := e.NewSession(context.Background(), "s1")
	require.NoError(t, err)
	defer s.Close()

	rep, err := s.Play(context.Background(), []config.Step{
		{Raise: "Play", Vars: map[string]interface{}{"card": 1}, Expect: []config.PropValue{{Card: 1, Prop: "power", Value: 6}}},
		{SetProp: &config.PropValue{Card: 9, Prop: "power", Value: 1}},
		{RevertTo: "never"},
		{Raise: "Aim"},
	})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusFailed, rep.Status)
	assert.True(t, rep.Failed())
	assert.Equal(t, []string{"card 1 power: got 5, want 6"}, rep.Steps[0].Mismatches)
	assert.Contains(t, rep.Steps[1].Error, "unknown card")
	assert.Contains(t, rep.Steps[2].Error, "unknown label")
	assert.Equal(t, string(event.StateSuspended), rep.Steps[3].State)
}

func TestSessionEndingSuspended(t *testing.T) {
	d := loadDeck(t)
	e := newEngine(t, d)
	s, err := e.NewSession(context.Background(), "s1")
	require.NoError(t, err)
	defer s.Close()

	rep, err := s.Play(context.Background(), []config.Step{{Raise: "Aim"}})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusSuspended, rep.Status)
}

func TestRunPersistsSession(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "cardflow.db"))
	require.NoError(t, err)
	defer st.Close()

	d := loadDeck(t)
	d.Script = d.Script[:5]
	e := newEngine(t, d, engine.WithStore(st), engine.WithDeckName("deck.yaml"))
	_, err = e.Run(ctx, "s1")
	require.NoError(t, err)

	sess, err := st.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "deck.yaml", sess.Deck)
	assert.Equal(t, e.Digest(), sess.Digest)
	assert.Equal(t, 5, sess.Steps)

	events, err := st.Events(ctx, "s1", "")
	require.NoError(t, err)
	assert.Len(t, events, 6)
	changes, err := st.Changes(ctx, "s1", "card:1")
	require.NoError(t, err)
	assert.Len(t, changes, 2)
}

func TestSimulateRunsIndependentSessions(t *testing.T) {
	d := loadDeck(t)
	d.Engine.Workers = 3
	e := newEngine(t, d)

	reports, err := e.Simulate(context.Background(), "sim", 8)
	require.NoError(t, err)
	require.Len(t, reports, 8)
	for i, rep := range reports {
		require.NotNil(t, rep, "session %d", i)
		assert.Equal(t, engine.StatusCompleted, rep.Status)
		assert.Equal(t, reports[0].Cards, rep.Cards)
		assert.Equal(t, reports[0].Digest, rep.Digest)
	}
	assert.Equal(t, "sim-1", reports[0].Session)
	assert.Equal(t, "sim-8", reports[7].Session)
	assert.Zero(t, testutil.ToFloat64(metrics.SimulationsRunning))
}

func TestCompileErrors(t *testing.T) {
	d := loadDeck(t)
	d.Defines = map[string]string{"Add": "Const"}
	_, err := engine.New(d)
	assert.ErrorContains(t, err, "already registered")

	d = loadDeck(t)
	d.Cards[0].Effects[0].Graph.Nodes[2].Define = "Teleport"
	_, err = engine.New(d)
	assert.ErrorIs(t, err, graph.ErrUnknownDefine)
	assert.ErrorContains(t, err, "card 1 effect empower")
}

func TestGraphDigestsAreStable(t *testing.T) {
	a := newEngine(t, loadDeck(t))
	b := newEngine(t, loadDeck(t))
	assert.Equal(t, a.Digest(), b.Digest())
	assert.Len(t, a.GraphDigests(), 3)

	d := loadDeck(t)
	d.Cards[0].Effects[0].Graph.Nodes[2].Extra["defaults"] = map[string]interface{}{"a": 2, "b": 4}
	c := newEngine(t, d)
	assert.NotEqual(t, a.Digest(), c.Digest())
}
