package trigger

import (
	"context"

	"github.com/gyaneshwarpardhi/cardflow/internal/event"
)

// Phase is the side of an event's body a trigger runs on.
type Phase string

const (
	Before Phase = "before"
	After  Phase = "after"
)

// Time is what a trigger subscribes to: an event kind and a phase.
type Time struct {
	Kind  string `json:"kind" yaml:"kind"`
	Phase Phase  `json:"phase" yaml:"phase"`
}

func BeforeOf(kind string) Time { return Time{Kind: kind, Phase: Before} }
func AfterOf(kind string) Time { return Time{Kind: kind, Phase: After} }

func (t Time) String() string { return t.Kind + "/" + string(t.Phase) }

// Continuation is the rest of a suspended trigger or body. Resume returns a
// new continuation when the work suspends again, or nil when it is done.
type Continuation interface {
	Resume(ctx context.Context, input interface{}) (Continuation, error)
}

// Trigger reacts to events. Condition must not suspend; Invoke may, by
// returning a non-nil Continuation.
type Trigger interface {
	Condition(ctx context.Context, ev *event.Event) (bool, error)
	Invoke(ctx context.Context, ev *event.Event) (Continuation, error)
	Priority() int
}

// Body is the core action of an event, run between the before and after phases.
type Body func(ctx context.Context, ev *event.Event) (Continuation, error)

// Func adapts plain Go functions to a Trigger that never suspends.
type Func struct {
	Name string
	Prio int
	When func(ev *event.Event) bool
	Do   func(ctx context.Context, ev *event.Event) error
}

func (f *Func) Condition(_ context.Context, ev *event.Event) (bool, error) {
	if f.When == nil {
		return true, nil
	}
	return f.When(ev), nil
}

func (f *Func) Invoke(ctx context.Context, ev *event.Event) (Continuation, error) {
	if f.Do == nil {
		return nil, nil
	}
	return nil, f.Do(ctx, ev)
}

func (f *Func) Priority() int { return f.Prio }

func (f *Func) String() string { return f.Name }
