package event_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/cardflow/internal/event"
)

func TestVarsAreCopiedAndSorted(t *testing.T) {
	src := map[string]interface{}{"power": 3, "card": 7}
	ev := event.New("Damage", src)
	src["power"] = 100

	assert.Equal(t, 3, ev.Var("power"))
	assert.Equal(t, []string{"card", "power"}, ev.VarNames())

	ev.SetVar("amount", 2)
	n, ok := event.VarAs[int](ev, "amount")
	require.True(t, ok)
	assert.Equal(t, 2, n)
	_, ok = event.VarAs[string](ev, "amount")
	assert.False(t, ok)
	assert.Nil(t, ev.Var("missing"))
}

func TestLifecycleAndChain(t *testing.T) {
	now := time.Unix(0, 0)
	outer := event.New("Attack", nil)
	outer.Begin("e-1", nil, 1, now)
	inner := event.New("Damage", map[string]interface{}{"amount": 2})
	inner.Begin("e-2", outer, 2, now)

	assert.Equal(t, event.StateBefore, inner.State())
	assert.Equal(t, []*event.Event{inner, outer}, inner.Chain())
	assert.Equal(t, []*event.Event{inner}, outer.Children())

	inner.SetVar("amount", 5)
	inner.Finish(3)
	assert.True(t, inner.Completed())
	assert.Equal(t, event.StateCompleted, inner.State())
	assert.Equal(t, map[string]interface{}{"amount": 2}, inner.VarsBefore())
	assert.Equal(t, map[string]interface{}{"amount": 5}, inner.VarsAfter())
	assert.Equal(t, int64(2), inner.IndexBefore())
	assert.Equal(t, int64(3), inner.IndexAfter())
}

func TestStateTransitions(t *testing.T) {
	ev := event.New("Attack", nil)
	assert.ErrorIs(t, ev.SetState(event.StateRunning), event.ErrIllegalTransition)
	assert.Equal(t, event.StateCreated, ev.State())

	ev.Begin("e-1", nil, 1, time.Now())
	assert.ErrorIs(t, ev.SetState(event.StateAfter), event.ErrIllegalTransition)
	require.NoError(t, ev.SetState(event.StateSuspended))
	assert.True(t, ev.Suspended())
	require.NoError(t, ev.SetState(event.StateRunning))
	assert.ErrorIs(t, ev.SetState(event.StateBefore), event.ErrIllegalTransition)
	require.NoError(t, ev.SetState(event.StateAfter))
	assert.ErrorIs(t, ev.SetState(event.StateRunning), event.ErrIllegalTransition)

	ev.Finish(2)
	err := ev.SetState(event.StateSuspended)
	assert.ErrorIs(t, err, event.ErrIllegalTransition)
	assert.EqualError(t, err, "illegal event state transition: completed -> suspended")
	assert.Equal(t, event.StateCompleted, ev.State())
}

func TestCanceledEventFinishesCanceled(t *testing.T) {
	ev := event.New("Draw", nil)
	ev.Begin("e-1", nil, 1, time.Now())
	ev.Cancel()
	ev.Finish(2)
	assert.True(t, ev.Completed())
	assert.True(t, ev.Canceled())
	assert.Equal(t, event.StateCanceled, ev.State())
}

func TestGenerators(t *testing.T) {
	seq := event.NewSequenceGenerator("ev")
	assert.Equal(t, "ev-1", seq.Generate())
	assert.Equal(t, "ev-2", seq.Generate())

	id, err := uuid.Parse(event.UUIDv7Generator{}.Generate())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}
