package flow

import (
	"context"
	"log/slog"

	"github.com/gyaneshwarpardhi/cardflow/internal/action"
	"github.com/gyaneshwarpardhi/cardflow/internal/event"
)

// Env is the game a flow runs against.
type Env interface {
	// Event is the event the flow handles; nil outside event handling.
	Event() *event.Event
	// Self is the id of the card owning the running effect; target 0 means Self.
	Self() int
	Prop(target int, name string) (interface{}, bool)
	// SetProp changes a property through the game's own event, returning
	// that event so the flow can wait on it when it suspends.
	SetProp(ctx context.Context, target int, name string, value interface{}) (*event.Event, error)
	// Raise hands ev to the trigger manager and returns it once it has
	// completed or suspended.
	Raise(ctx context.Context, ev *event.Event) (*event.Event, error)
	Logger() *slog.Logger
}

// Definitions resolves define names to node definitions.
type Definitions interface {
	Lookup(name string) (action.Definition, bool)
}
