package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gyaneshwarpardhi/cardflow/internal/action"
	"github.com/gyaneshwarpardhi/cardflow/internal/event"
	"github.com/gyaneshwarpardhi/cardflow/internal/graph"
	"github.com/gyaneshwarpardhi/cardflow/internal/metrics"
)

// Status is the lifecycle position of a Flow.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusSuspended
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusSuspended:
		return "suspended"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Visit is one trace record: a control node executed or a value node computed.
type Visit struct {
	Node    int
	Define  string
	Control bool
}

type wait struct {
	node  int
	event *event.Event
}

// Option configures a Flow.
type Option func(*Flow)

// WithMaxSteps bounds the number of control nodes a flow may execute.
func WithMaxSteps(n int) Option { return func(f *Flow) { f.maxSteps = n } }

// WithScriptBudget bounds the Lua instructions one Script node may run.
// Zero or less removes the bound; the default is DefaultScriptBudget.
func WithScriptBudget(n int) Option { return func(f *Flow) { f.scriptBudget = n } }

// WithoutSuspend makes reaching a suspending node a policy error. Condition
// reads use it: they must produce an answer synchronously.
func WithoutSuspend() Option { return func(f *Flow) { f.noSuspend = true } }

// WithLogger sets the logger used for flow diagnostics.
func WithLogger(l *slog.Logger) Option { return func(f *Flow) { f.logger = l } }

// Flow is one execution of a graph. It owns the output-value cache, so two
// flows over the same graph never share values.
type Flow struct {
	graph     *graph.Graph
	defs      Definitions
	env       Env
	logger    *slog.Logger
	maxSteps  int
	noSuspend bool

	scriptBudget int

	status    Status
	cache     map[graph.PortRef]interface{}
	resolving map[int]bool
	pending   *wait
	last      int
	steps     int
	trace     []Visit
	outputs   map[string]interface{}
	err       error
}

// New creates an idle flow over g.
func New(g *graph.Graph, defs Definitions, env Env, opts ...Option) *Flow {
	f := &Flow{
		graph:     g,
		defs:      defs,
		env:       env,
		cache:     make(map[graph.PortRef]interface{}),
		resolving: make(map[int]bool),
		outputs:   make(map[string]interface{}),

		scriptBudget: DefaultScriptBudget,
	}
	for _, o := range opts {
		o(f)
	}
	if f.logger == nil {
		if env != nil && env.Logger() != nil {
			f.logger = env.Logger()
		} else {
			f.logger = slog.Default()
		}
	}
	return f
}

func (f *Flow) Status() Status { return f.status }
func (f *Flow) Graph() *graph.Graph { return f.graph }

// LastNode is the id of the last control node executed (0 before any).
func (f *Flow) LastNode() int { return f.last }

// Err is the failure that stopped the flow, if any.
func (f *Flow) Err() error { return f.err }

// PendingNode is the node the flow is suspended on (0 when not suspended).
func (f *Flow) PendingNode() int {
	if f.pending == nil {
		return 0
	}
	return f.pending.node
}

// PendingEvent is the event the flow waits on, nil when it waits for input.
func (f *Flow) PendingEvent() *event.Event {
	if f.pending == nil {
		return nil
	}
	return f.pending.event
}

// Trace returns the visit log in execution order.
func (f *Flow) Trace() []Visit {
	out := make([]Visit, len(f.trace))
	copy(out, f.trace)
	return out
}

// SetValue presets an output value, e.g. entry outputs seeded by the caller.
func (f *Flow) SetValue(ref graph.PortRef, v interface{}) { f.cache[ref] = v }

// Cached returns a cached output value.
func (f *Flow) Cached(ref graph.PortRef) (interface{}, bool) {
	v, ok := f.cache[ref]
	return v, ok
}

// Output returns a value collected by a Return node.
func (f *Flow) Output(name string) (interface{}, bool) {
	v, ok := f.outputs[name]
	return v, ok
}

// Outputs returns every value collected by Return nodes.
func (f *Flow) Outputs() map[string]interface{} {
	out := make(map[string]interface{}, len(f.outputs))
	for k, v := range f.outputs {
		out[k] = v
	}
	return out
}

// Run executes from the entry node until the graph ends, a node suspends,
// or a node fails.
func (f *Flow) Run(ctx context.Context, entry int) (Status, error) {
	switch f.status {
	case StatusIdle:
	case StatusCompleted:
		return f.status, ErrFlowCompleted
	default:
		return f.status, ErrFlowStarted
	}
	n := f.graph.Node(entry)
	if n == nil {
		f.status = StatusFailed
		f.err = fmt.Errorf("entry: %w: %d", graph.ErrUnknownNode, entry)
		return f.status, f.err
	}
	f.status = StatusRunning
	return f.loop(ctx, n)
}

// Resume completes the pending node and continues. For a Choose node input
// becomes its choice; for an event-raising node the awaited event must have
// completed and input is ignored.
func (f *Flow) Resume(ctx context.Context, input interface{}) (Status, error) {
	switch f.status {
	case StatusSuspended:
	case StatusCompleted:
		return f.status, ErrFlowCompleted
	default:
		return f.status, ErrNotSuspended
	}
	n := f.graph.Node(f.pending.node)
	def, _ := f.defs.Lookup(n.Define())
	if ev := f.pending.event; ev != nil {
		if !ev.Completed() {
			return f.status, ErrStillPending
		}
		f.collect(n, def, ev)
	} else {
		f.cache[graph.PortRef{Node: n.ID(), Port: action.PortChoice}] = input
	}
	f.pending = nil
	f.status = StatusRunning
	f.logger.Debug("flow resumed", "node", n.ID(), "define", n.Define())
	next := f.next(n, action.PortOut)
	if next == nil {
		return f.finish(), nil
	}
	return f.loop(ctx, next)
}

type step struct {
	port string // control output to follow; "" stops
	wait *wait
}

func (f *Flow) loop(ctx context.Context, n *graph.Node) (Status, error) {
	for n != nil {
		if err := ctx.Err(); err != nil {
			return f.fail(n, err)
		}
		f.steps++
		if f.maxSteps > 0 && f.steps > f.maxSteps {
			return f.fail(n, fmt.Errorf("%w: %d", ErrStepQuota, f.maxSteps))
		}
		def, ok := f.defs.Lookup(n.Define())
		if !ok {
			return f.fail(n, fmt.Errorf("%w: %q", graph.ErrUnknownDefine, n.Define()))
		}
		if f.noSuspend && def.Kind.Suspends() {
			return f.refuse(n)
		}
		f.trace = append(f.trace, Visit{Node: n.ID(), Define: n.Define(), Control: true})
		st, err := f.execute(ctx, n, def)
		if err != nil {
			return f.fail(n, err)
		}
		f.last = n.ID()
		metrics.FlowNodesExecuted.WithLabelValues(def.Kind.String()).Inc()
		if st.wait != nil {
			if f.noSuspend {
				return f.refuse(n)
			}
			f.pending = st.wait
			f.status = StatusSuspended
			metrics.FlowsSuspended.Inc()
			f.logger.Debug("flow suspended", "node", n.ID(), "define", n.Define())
			return f.status, nil
		}
		if st.port == "" {
			break
		}
		n = f.next(n, st.port)
	}
	return f.finish(), nil
}

// next follows the first connection out of a control port.
func (f *Flow) next(n *graph.Node, port string) *graph.Node {
	conns := f.graph.Outgoing(graph.PortRef{Node: n.ID(), Port: port})
	if len(conns) == 0 {
		return nil
	}
	return f.graph.Node(conns[0].Destination.Node)
}

func (f *Flow) finish() Status {
	f.status = StatusCompleted
	metrics.FlowsFinished.WithLabelValues(f.status.String()).Inc()
	return f.status
}

// fail aborts the flow. Errors already attributed to a node keep their
// attribution so the caller sees the node that actually faulted.
func (f *Flow) fail(n *graph.Node, err error) (Status, error) {
	f.status = StatusFailed
	var ne *NodeError
	if !errors.As(err, &ne) {
		err = &NodeError{NodeID: n.ID(), Define: n.Define(), Err: err}
	}
	f.err = err
	metrics.FlowsFinished.WithLabelValues(f.status.String()).Inc()
	f.logger.Warn("flow failed", "node", n.ID(), "define", n.Define(), "error", err)
	return f.status, err
}

func (f *Flow) refuse(n *graph.Node) (Status, error) {
	return f.fail(n, &PolicyError{
		Code:    CodeSuspendForbidden,
		NodeID:  n.ID(),
		Message: fmt.Sprintf("%s cannot wait in a synchronous flow", n.Define()),
	})
}
