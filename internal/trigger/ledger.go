package trigger

import (
	"github.com/gyaneshwarpardhi/cardflow/internal/event"
	"github.com/gyaneshwarpardhi/cardflow/internal/history"
)

// AddChange records c in the ledger at the current event index and
// attaches it to the current event. The caller has already applied it.
func (m *Manager) AddChange(c history.Change) history.Entry {
	e := m.ledger.Add(c)
	if cur := m.Current(); cur != nil {
		cur.AddEntry(e)
	}
	return e
}

// RevertChanges undoes, newest first, the changes to target recorded at
// index k or later. The ledger keeps them so ApplyChanges can redo them.
func (m *Manager) RevertChanges(target history.Changeable, k int64) int {
	return m.ledger.RevertChanges(target, k)
}

// ApplyChanges redoes, oldest first, the changes to target recorded at
// index k or later.
func (m *Manager) ApplyChanges(target history.Changeable, k int64) int {
	return m.ledger.ApplyChanges(target, k)
}

// RevertTo rolls the whole session back to index k: every change at or
// after k is reverted and dropped, and so are the events started since.
func (m *Manager) RevertTo(k int64) (int, error) {
	if len(m.stack) > 0 {
		return 0, ErrEventInFlight
	}
	n := m.ledger.RevertTo(k)
	kept := m.recorded[:0]
	for _, ev := range m.recorded {
		if ev.IndexBefore() < k {
			kept = append(kept, ev)
		}
	}
	for i := len(kept); i < len(m.recorded); i++ {
		m.recorded[i] = nil
	}
	m.recorded = kept
	return n, nil
}

// Ledger exposes the change ledger for inspection and persistence.
func (m *Manager) Ledger() *history.Ledger { return m.ledger }

// CurrentEventIndex is the logical clock value.
func (m *Manager) CurrentEventIndex() int64 { return m.clock.Current() }

// EventIndexBefore is the index at which ev started; reverting to it
// undoes ev and everything after it.
func (m *Manager) EventIndexBefore(ev *event.Event) int64 { return ev.IndexBefore() }

// EventIndexAfter is the index at which ev finished (0 while in flight);
// changes recorded after ev carry at least this index.
func (m *Manager) EventIndexAfter(ev *event.Event) int64 { return ev.IndexAfter() }
