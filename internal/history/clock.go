package history

import "sync/atomic"

// Clock is the logical event index. The trigger manager ticks it when an
// event begins and again when it ends, and every Change is tagged with the
// value current at the moment it was recorded.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific index, for sessions
// restored from a persisted ledger.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new index.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the index without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
