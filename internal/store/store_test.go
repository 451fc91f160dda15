package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/cardflow/internal/event"
	"github.com/gyaneshwarpardhi/cardflow/internal/game"
	"github.com/gyaneshwarpardhi/cardflow/internal/store"
	"github.com/gyaneshwarpardhi/cardflow/internal/trigger"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "cardflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// playedGame raises Turn, whose body sets power twice on card 1.
func playedGame(t *testing.T) *game.Game {
	t.Helper()
	ctx := context.Background()
	g := game.New(game.WithTriggerOptions(trigger.WithIDGenerator(event.NewSequenceGenerator("ev"))))
	require.NoError(t, g.AddCard(game.NewCard(1, "Knight", map[string]interface{}{"power": 1})))
	g.DefineEvent("Turn", func(ctx context.Context, ev *event.Event) (trigger.Continuation, error) {
		if _, err := g.SetProp(ctx, 1, "power", 2); err != nil {
			return nil, err
		}
		_, err := g.SetProp(ctx, 1, "power", 3)
		return nil, err
	})
	_, err := g.Raise(ctx, "Turn", map[string]interface{}{"n": 1})
	require.NoError(t, err)
	return g
}

func TestSaveAndReadSession(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	g := playedGame(t)
	m := g.Triggers()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sess := store.Session{ID: "s1", Deck: "deck.yaml", Digest: "abc", Status: "completed", Steps: 1, CreatedAt: created}
	require.NoError(t, s.SaveSession(ctx, sess, m.RecordedEvents(true, true), m.Ledger().Entries()))

	got, err := s.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	events, err := s.Events(ctx, "s1", "")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "Turn", events[0].Kind)
	assert.Equal(t, "ev-1", events[0].ID)
	assert.Equal(t, map[string]interface{}{"n": float64(1)}, events[0].VarsBefore)
	assert.Equal(t, "ev-1", events[1].ParentID)
	assert.Equal(t, string(event.StateCompleted), events[1].State)
	assert.Equal(t, float64(2), events[1].VarsAfter["value"])

	propEvents, err := s.Events(ctx, "s1", game.PropChangeEvent)
	require.NoError(t, err)
	assert.Len(t, propEvents, 2)

	changes, err := s.Changes(ctx, "s1", "card:1")
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, game.KindPropChange, changes[0].Kind)
	assert.Equal(t, events[1].ID, changes[0].EventID)
	assert.Equal(t, events[2].ID, changes[1].EventID)
	assert.Equal(t, float64(1), changes[0].Payload["before"])
	assert.Equal(t, float64(3), changes[1].Payload["after"])
	assert.Equal(t, events[1].IndexBefore, changes[0].Index)

	none, err := s.Changes(ctx, "s1", "card:9")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSaveSessionReplacesPreviousRun(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	g := playedGame(t)
	m := g.Triggers()
	sess := store.Session{ID: "s1", Deck: "deck.yaml", Status: "completed"}

	require.NoError(t, s.SaveSession(ctx, sess, m.RecordedEvents(true, true), m.Ledger().Entries()))
	require.NoError(t, s.SaveSession(ctx, sess, m.RecordedEvents(true, true)[:1], nil))

	events, err := s.Events(ctx, "s1", "")
	require.NoError(t, err)
	assert.Len(t, events, 1)
	changes, err := s.Changes(ctx, "s1", "")
	require.NoError(t, err)
	assert.Empty(t, changes)

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestMissingSession(t *testing.T) {
	s := openStore(t)
	_, err := s.Session(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := store.Open("  ")
	assert.Error(t, err)
}
