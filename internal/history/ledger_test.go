package history_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/cardflow/internal/history"
)

type counter struct {
	key   string
	value int
}

func (c *counter) ChangeKey() string { return "counter:" + c.key }

type label struct {
	key  string
	text string
}

func (l *label) ChangeKey() string { return "label:" + l.key }

// setCounter mutates c and returns the matching change.
func setCounter(c *counter, v int) history.Change {
	before := c.value
	c.value = v
	return history.New(c, "set",
		func(t *counter) { t.value = v },
		func(t *counter) { t.value = before },
		map[string]interface{}{"before": before, "after": v},
	)
}

func TestTypedChangeIgnoresOtherEntityTypes(t *testing.T) {
	c := &counter{key: "a"}
	ch := setCounter(c, 3)

	l := &label{key: "a", text: "x"}
	ch.RevertFor(l)
	ch.ApplyFor(l)
	assert.Equal(t, "x", l.text)

	ch.RevertFor(c)
	assert.Equal(t, 0, c.value)
	ch.ApplyFor(c)
	assert.Equal(t, 3, c.value)
	assert.Equal(t, map[string]interface{}{"before": 0, "after": 3}, ch.Payload())
}

func TestLedgerTagsWithCurrentIndex(t *testing.T) {
	clock := history.NewClock()
	l := history.NewLedger(clock, nil)
	c := &counter{key: "a"}

	l.Add(setCounter(c, 1))
	clock.Next()
	e := l.Add(setCounter(c, 2))

	assert.Equal(t, int64(1), e.Index)
	assert.Equal(t, 2, l.Len())
	assert.Len(t, l.Since(1), 1)
}

func TestRevertApplyRoundTrip(t *testing.T) {
	clock := history.NewClockAt(10)
	l := history.NewLedger(clock, nil)
	c := &counter{key: "a"}
	other := &counter{key: "b"}

	l.Add(setCounter(c, 1))
	k := clock.Next()
	l.Add(setCounter(c, 2))
	l.Add(setCounter(other, 7))
	clock.Next()
	l.Add(setCounter(c, 3))

	snapshot := c.value
	assert.Equal(t, 2, l.RevertChanges(c, k))
	assert.Equal(t, 1, c.value)
	assert.Equal(t, 7, other.value, "other targets are untouched")

	assert.Equal(t, 2, l.ApplyChanges(c, k))
	assert.Equal(t, snapshot, c.value)
	assert.Equal(t, 4, l.Len())
}

func TestRevertToRollsBackEveryTarget(t *testing.T) {
	clock := history.NewClock()
	l := history.NewLedger(clock, nil)
	a := &counter{key: "a"}
	b := &counter{key: "b"}

	l.Add(setCounter(a, 1))
	k := clock.Next()
	l.Add(setCounter(a, 5))
	l.Add(setCounter(b, 6))
	l.Add(setCounter(a, 9))

	require.Equal(t, 3, l.RevertTo(k))
	assert.Equal(t, 1, a.value)
	assert.Equal(t, 0, b.value)
	assert.Equal(t, 1, l.Len())
	assert.Zero(t, l.RevertTo(k))
}

func TestClock(t *testing.T) {
	c := history.NewClockAt(41)
	assert.Equal(t, int64(41), c.Current())
	assert.Equal(t, int64(42), c.Next())
	assert.Equal(t, int64(42), c.Current())
}
