package effect

import (
	"context"
	"log/slog"

	"github.com/gyaneshwarpardhi/cardflow/internal/condition"
	"github.com/gyaneshwarpardhi/cardflow/internal/event"
	"github.com/gyaneshwarpardhi/cardflow/internal/trigger"
)

// Host is the game an effect acts on.
type Host interface {
	Triggers() *trigger.Manager
	Prop(card int, name string) (interface{}, bool)
	// SetProp changes a card property through the game's own event.
	SetProp(ctx context.Context, card int, name string, value interface{}) (*event.Event, error)
	// EventBody is the body used for events of kind raised from graphs;
	// nil when the kind has no body of its own.
	EventBody(kind string) trigger.Body
	Logger() *slog.Logger
}

// Env runs flows against a Host on behalf of one card and one event.
type Env struct {
	host Host
	ev   *event.Event
	self int
}

// NewEnv creates an Env for the effect of card self handling ev.
func NewEnv(host Host, ev *event.Event, self int) *Env {
	return &Env{host: host, ev: ev, self: self}
}

func (e *Env) Event() *event.Event { return e.ev }
func (e *Env) Self() int { return e.self }
func (e *Env) Logger() *slog.Logger { return e.host.Logger() }

func (e *Env) Prop(target int, name string) (interface{}, bool) {
	return e.host.Prop(target, name)
}

func (e *Env) SetProp(ctx context.Context, target int, name string, value interface{}) (*event.Event, error) {
	return e.host.SetProp(ctx, target, name, value)
}

func (e *Env) Raise(ctx context.Context, ev *event.Event) (*event.Event, error) {
	return e.host.Triggers().Do(ctx, ev, e.host.EventBody(ev.Kind()))
}

// Resolve exposes the event and the owning card to condition expressions:
//
//	event.kind, event.id, event.repeat, event.canceled
//	vars.<name>          event variable (nested maps walk further)
//	self.id, self.<prop> the owning card
//	<name>               shorthand for vars.<name>
func (e *Env) Resolve(path []string) (interface{}, bool) {
	if len(path) == 0 {
		return nil, false
	}
	switch path[0] {
	case "event":
		if e.ev == nil || len(path) != 2 {
			return nil, false
		}
		switch path[1] {
		case "kind":
			return e.ev.Kind(), true
		case "id":
			return e.ev.ID(), true
		case "repeat":
			return e.ev.RepeatTime(), true
		case "canceled":
			return e.ev.Canceled(), true
		}
		return nil, false
	case "vars":
		return e.vars(path[1:])
	case "self":
		if len(path) != 2 {
			return nil, false
		}
		if path[1] == "id" {
			return e.self, true
		}
		return e.host.Prop(e.self, path[1])
	}
	return e.vars(path)
}

func (e *Env) vars(path []string) (interface{}, bool) {
	if e.ev == nil {
		return nil, false
	}
	return condition.ResolveMap(e.ev.Vars(), path)
}
