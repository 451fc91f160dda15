package event

import (
	"sort"
	"time"

	"github.com/gyaneshwarpardhi/cardflow/internal/history"
)

// AnyKind is the wildcard kind: triggers registered for it see every event.
const AnyKind = "*"

// State is the position of an event in the trigger manager's state machine.
type State string

const (
	StateCreated   State = "created"
	StateBefore    State = "before"
	StateRunning   State = "running"
	StateAfter     State = "after"
	StateSuspended State = "suspended"
	StateCompleted State = "completed"
	StateCanceled  State = "canceled"
	StateFailed    State = "failed"
)

// Event is one occurrence passed through the trigger manager: a kind, a
// variable bag that triggers read and rewrite, lifecycle flags, and the
// changes recorded while it ran. The manager owns the lifecycle fields;
// game code reads them and touches only vars, Cancel and RepeatTime.
type Event struct {
	id         string
	kind       string
	vars       map[string]interface{}
	canceled   bool
	completed  bool
	repeat     int
	flowNode   int
	parent     *Event
	children   []*Event
	changes    []history.Entry
	state      State
	failure    error
	before     int64
	after      int64
	varsBefore map[string]interface{}
	varsAfter  map[string]interface{}
	startedAt  time.Time
}

// New creates an event of kind with a copy of vars.
func New(kind string, vars map[string]interface{}) *Event {
	e := &Event{kind: kind, vars: make(map[string]interface{}, len(vars)), state: StateCreated}
	for k, v := range vars {
		e.vars[k] = v
	}
	return e
}

func (e *Event) ID() string { return e.id }
func (e *Event) Kind() string { return e.kind }
func (e *Event) State() State { return e.state }
func (e *Event) Parent() *Event { return e.parent }
func (e *Event) Canceled() bool { return e.canceled }
func (e *Event) Completed() bool { return e.completed }
func (e *Event) Failure() error { return e.failure }
func (e *Event) RepeatTime() int { return e.repeat }
func (e *Event) FlowNodeID() int { return e.flowNode }
func (e *Event) IndexBefore() int64 { return e.before }
func (e *Event) IndexAfter() int64 { return e.after }
func (e *Event) StartedAt() time.Time { return e.startedAt }

// Suspended reports whether the event is waiting on a continuation.
func (e *Event) Suspended() bool { return e.state == StateSuspended }

// Cancel marks the event canceled. Canceling in a before trigger stops the
// remaining before triggers and skips the body and after phase.
func (e *Event) Cancel() { e.canceled = true }

func (e *Event) SetCanceled(v bool) { e.canceled = v }

// SetRepeatTime sets how many extra times the body runs.
func (e *Event) SetRepeatTime(n int) {
	if n < 0 {
		n = 0
	}
	e.repeat = n
}

// SetFlowNodeID records the graph node that raised the event.
func (e *Event) SetFlowNodeID(id int) { e.flowNode = id }

// Var returns a variable, nil when unset.
func (e *Event) Var(name string) interface{} { return e.vars[name] }

// LookupVar returns a variable and whether it is set.
func (e *Event) LookupVar(name string) (interface{}, bool) {
	v, ok := e.vars[name]
	return v, ok
}

func (e *Event) SetVar(name string, v interface{}) { e.vars[name] = v }

// Vars returns a copy of the variable bag.
func (e *Event) Vars() map[string]interface{} { return copyVars(e.vars) }

// VarNames returns the variable names, sorted.
func (e *Event) VarNames() []string {
	names := make([]string, 0, len(e.vars))
	for k := range e.vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// VarAs reads a variable as T.
func VarAs[T any](e *Event, name string) (T, bool) {
	v, ok := e.vars[name].(T)
	return v, ok
}

// Children returns the direct child events in the order they were raised.
func (e *Event) Children() []*Event {
	out := make([]*Event, len(e.children))
	copy(out, e.children)
	return out
}

// Chain walks from e to the root: [e, parent, grandparent, ...].
func (e *Event) Chain() []*Event {
	var out []*Event
	for cur := e; cur != nil; cur = cur.parent {
		out = append(out, cur)
	}
	return out
}

// Changes returns the changes recorded while e was the current event.
func (e *Event) Changes() []history.Change {
	out := make([]history.Change, len(e.changes))
	for i, entry := range e.changes {
		out[i] = entry.Change
	}
	return out
}

// Entries returns the ledger entries recorded while e was current.
func (e *Event) Entries() []history.Entry {
	out := make([]history.Entry, len(e.changes))
	copy(out, e.changes)
	return out
}

// VarsBefore is the variable bag as it was when the event started.
func (e *Event) VarsBefore() map[string]interface{} { return copyVars(e.varsBefore) }

// VarsAfter is the variable bag as it was when the event finished.
func (e *Event) VarsAfter() map[string]interface{} { return copyVars(e.varsAfter) }

func copyVars(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
