package history

import (
	"log/slog"

	"github.com/gyaneshwarpardhi/cardflow/internal/metrics"
)

// Entry is a recorded change with the event index it was recorded at.
type Entry struct {
	Index  int64
	Change Change
}

// Ledger is the append-only (until rollback) list of changes of a session.
type Ledger struct {
	clock   *Clock
	entries []Entry
	logger  *slog.Logger
}

// NewLedger creates a ledger stamping entries from clock.
func NewLedger(clock *Clock, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{clock: clock, logger: logger}
}

// Add records c at the current event index.
func (l *Ledger) Add(c Change) Entry {
	e := Entry{Index: l.clock.Current(), Change: c}
	l.entries = append(l.entries, e)
	metrics.ChangesRecorded.WithLabelValues(c.Kind()).Inc()
	l.logger.Debug("change recorded", "kind", c.Kind(), "target", c.Target().ChangeKey(), "index", e.Index)
	return e
}

// Entries returns every entry in recording order.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Since returns entries recorded at index k or later.
func (l *Ledger) Since(k int64) []Entry {
	var out []Entry
	for _, e := range l.entries {
		if e.Index >= k {
			out = append(out, e)
		}
	}
	return out
}

func (l *Ledger) Len() int { return len(l.entries) }

// RevertChanges walks backward from the newest entry to index k and reverts
// every change targeting target. The ledger itself is left untouched so a
// matching ApplyChanges can restore the state.
func (l *Ledger) RevertChanges(target Changeable, k int64) int {
	n := 0
	for i := len(l.entries) - 1; i >= 0 && l.entries[i].Index >= k; i-- {
		if ch := l.entries[i].Change; SameTarget(ch, target) {
			ch.RevertFor(target)
			n++
		}
	}
	metrics.ChangesReverted.Add(float64(n))
	return n
}

// ApplyChanges re-applies, oldest first, every change targeting target
// recorded at index k or later.
func (l *Ledger) ApplyChanges(target Changeable, k int64) int {
	n := 0
	for _, e := range l.entries {
		if e.Index >= k && SameTarget(e.Change, target) {
			e.Change.ApplyFor(target)
			n++
		}
	}
	return n
}

// RevertTo reverts every change recorded at index k or later, newest first,
// against its own target, then drops those entries. It is the whole-state
// rollback used when changes span several entities.
func (l *Ledger) RevertTo(k int64) int {
	i := len(l.entries)
	for i > 0 && l.entries[i-1].Index >= k {
		i--
	}
	for j := len(l.entries) - 1; j >= i; j-- {
		ch := l.entries[j].Change
		ch.RevertFor(ch.Target())
	}
	n := len(l.entries) - i
	for j := i; j < len(l.entries); j++ {
		l.entries[j] = Entry{}
	}
	l.entries = l.entries[:i]
	metrics.ChangesReverted.Add(float64(n))
	if n > 0 {
		l.logger.Info("ledger rolled back", "to_index", k, "reverted", n)
	}
	return n
}
