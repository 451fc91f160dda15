package effect

import (
	"context"
	"fmt"

	"github.com/gyaneshwarpardhi/cardflow/internal/event"
	"github.com/gyaneshwarpardhi/cardflow/internal/flow"
	"github.com/gyaneshwarpardhi/cardflow/internal/graph"
	"github.com/gyaneshwarpardhi/cardflow/internal/trigger"
)

// EventDefine gives an event kind a graph body. The Entry node's value
// outputs are seeded from the event variables and the values collected by
// Return are written back to them.
type EventDefine struct {
	Kind     string
	Graph    *graph.Graph
	Entry    int
	Defs     flow.Definitions
	MaxSteps int
}

// Validate checks the graph and entry node.
func (d *EventDefine) Validate() error {
	if d.Graph == nil {
		return fmt.Errorf("event %s: %w", d.Kind, ErrNoGraph)
	}
	if d.Graph.Node(d.Entry) == nil {
		return fmt.Errorf("event %s: %w: %d", d.Kind, ErrNoEntry, d.Entry)
	}
	return nil
}

// Body returns the trigger body running the graph against host. The
// flow's self card is the event's "card" variable when it has one.
func (d *EventDefine) Body(host Host) trigger.Body {
	return func(ctx context.Context, ev *event.Event) (trigger.Continuation, error) {
		self, _ := event.VarAs[int](ev, "card")
		var opts []flow.Option
		if d.MaxSteps > 0 {
			opts = append(opts, flow.WithMaxSteps(d.MaxSteps))
		}
		f := flow.New(d.Graph, d.Defs, NewEnv(host, ev, self), opts...)
		st, err := f.Run(ctx, d.Entry)
		return settle(f, st, err, func(f *flow.Flow) {
			for name, v := range f.Outputs() {
				ev.SetVar(name, v)
			}
		})
	}
}
