package event

import (
	"errors"
	"fmt"
	"time"

	"github.com/gyaneshwarpardhi/cardflow/internal/history"
)

// The methods below are driven by the trigger manager.

// Begin assigns the id, attaches e to parent and snapshots its vars.
func (e *Event) Begin(id string, parent *Event, index int64, now time.Time) {
	if e.id == "" {
		e.id = id
	}
	e.parent = parent
	if parent != nil {
		parent.children = append(parent.children, e)
	}
	e.before = index
	e.startedAt = now
	e.varsBefore = copyVars(e.vars)
	e.state = StateBefore
}

var ErrIllegalTransition = errors.New("illegal event state transition")

// transitions lists the moves SetState accepts. Begin enters StateBefore;
// Finish and Fail reach the terminal states.
var transitions = map[State][]State{
	StateBefore:    {StateRunning, StateSuspended},
	StateRunning:   {StateAfter, StateSuspended},
	StateAfter:     {StateSuspended},
	StateSuspended: {StateBefore, StateRunning, StateAfter},
}

// SetState moves the event to s if the state machine allows it.
func (e *Event) SetState(s State) error {
	for _, to := range transitions[e.state] {
		if to == s {
			e.state = s
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, e.state, s)
}

// Finish marks the event completed at index.
func (e *Event) Finish(index int64) {
	e.completed = true
	e.after = index
	e.varsAfter = copyVars(e.vars)
	if e.canceled {
		e.state = StateCanceled
	} else {
		e.state = StateCompleted
	}
}

// Fail leaves the event uncompleted with err as the reason.
func (e *Event) Fail(err error) {
	e.failure = err
	e.state = StateFailed
	e.varsAfter = copyVars(e.vars)
}

// AddEntry attaches a recorded ledger entry.
func (e *Event) AddEntry(entry history.Entry) { e.changes = append(e.changes, entry) }
