package effect

import (
	"context"
	"errors"
	"fmt"

	"github.com/gyaneshwarpardhi/cardflow/internal/action"
	"github.com/gyaneshwarpardhi/cardflow/internal/condition"
	"github.com/gyaneshwarpardhi/cardflow/internal/event"
	"github.com/gyaneshwarpardhi/cardflow/internal/flow"
	"github.com/gyaneshwarpardhi/cardflow/internal/graph"
	"github.com/gyaneshwarpardhi/cardflow/internal/trigger"
)

var (
	ErrNoGraph      = errors.New("effect has no graph")
	ErrNoEntry      = errors.New("entry node not found")
	ErrNotCondition = errors.New("condition graph did not return a bool")
)

// Effect is a card ability: a graph run whenever one of its trigger times
// fires and its condition holds.
type Effect struct {
	Name string
	On   []trigger.Time
	// Priority orders triggers on the same time. PriorityPort, when set,
	// names a value input of Graph whose value replaces it; Priority is
	// then the fallback if the input cannot be computed.
	Priority     int
	PriorityPort graph.PortRef
	// Condition is an expression over the event and the owning card.
	Condition string
	// ConditionEntry, when set, is the Entry node of a synchronous
	// condition flow whose Return "result" decides whether to fire.
	ConditionEntry int
	Graph          *graph.Graph
	Entry          int
	Defs           flow.Definitions
	MaxSteps       int
	// Times caps how often the effect fires; 0 is unlimited.
	Times int
	// EnableEntry and DisableEntry are Entry nodes run when the effect is
	// enabled on or disabled from its card. 0 means no action.
	EnableEntry  int
	DisableEntry int
}

// Validate checks that the effect can be bound.
func (e *Effect) Validate() error {
	if e.Graph == nil {
		return fmt.Errorf("effect %s: %w", e.Name, ErrNoGraph)
	}
	if e.Graph.Node(e.Entry) == nil {
		return fmt.Errorf("effect %s: %w: %d", e.Name, ErrNoEntry, e.Entry)
	}
	if e.ConditionEntry != 0 && e.Graph.Node(e.ConditionEntry) == nil {
		return fmt.Errorf("effect %s condition: %w: %d", e.Name, ErrNoEntry, e.ConditionEntry)
	}
	for _, entry := range []int{e.EnableEntry, e.DisableEntry} {
		if entry != 0 && e.Graph.Node(entry) == nil {
			return fmt.Errorf("effect %s action: %w: %d", e.Name, ErrNoEntry, entry)
		}
	}
	if e.PriorityPort.Node != 0 {
		n := e.Graph.Node(e.PriorityPort.Node)
		if n == nil || n.Input(e.PriorityPort.Port) == nil {
			return fmt.Errorf("effect %s priority: %w: %s", e.Name, graph.ErrUnknownPort, e.PriorityPort)
		}
	}
	if e.Condition != "" {
		if _, err := condition.Parse(e.Condition); err != nil {
			return fmt.Errorf("effect %s condition: %w", e.Name, err)
		}
	}
	return nil
}

func (e *Effect) flowOptions(extra ...flow.Option) []flow.Option {
	var opts []flow.Option
	if e.MaxSteps > 0 {
		opts = append(opts, flow.WithMaxSteps(e.MaxSteps))
	}
	return append(opts, extra...)
}

// Trigger is an Effect bound to the card that owns it.
type Trigger struct {
	effect *Effect
	owner  int
	host   Host
	cond   condition.Expr
	fired  int
}

// Bind validates eff and binds it to card owner.
func Bind(eff *Effect, owner int, host Host) (*Trigger, error) {
	if err := eff.Validate(); err != nil {
		return nil, err
	}
	t := &Trigger{effect: eff, owner: owner, host: host}
	if eff.Condition != "" {
		expr, err := condition.Parse(eff.Condition)
		if err != nil {
			return nil, err
		}
		t.cond = expr
	}
	return t, nil
}

func (t *Trigger) Effect() *Effect { return t.effect }
func (t *Trigger) Owner() int { return t.owner }
func (t *Trigger) Fired() int { return t.fired }

// Priority is the static priority, or the value of the priority input
// computed by a flow that may not suspend and sees no event.
func (t *Trigger) Priority() int {
	ref := t.effect.PriorityPort
	if ref.Node == 0 {
		return t.effect.Priority
	}
	f := flow.New(t.effect.Graph, t.effect.Defs, NewEnv(t.host, nil, t.owner), t.effect.flowOptions(flow.WithoutSuspend())...)
	v, err := f.Value(context.Background(), t.effect.Graph.Node(ref.Node).Input(ref.Port))
	if err == nil {
		if p, ok := condition.ToInt(v); ok {
			return p
		}
		err = fmt.Errorf("priority %v (%T) is not an integer", v, v)
	}
	t.host.Logger().Warn("effect priority fell back to static value",
		"effect", t.effect.Name, "owner", t.owner, "priority", t.effect.Priority, "error", err)
	return t.effect.Priority
}

func (t *Trigger) String() string { return fmt.Sprintf("%s@%d", t.effect.Name, t.owner) }

// Register subscribes the trigger to every time of its effect.
func (t *Trigger) Register(m *trigger.Manager) {
	for _, tm := range t.effect.On {
		m.RegisterDelayed(tm, t)
	}
}

// Unregister removes the trigger from every time of its effect.
func (t *Trigger) Unregister(m *trigger.Manager) {
	for _, tm := range t.effect.On {
		m.Remove(tm, t)
	}
}

// Condition checks the fire cap, the expression and the condition flow in
// that order. The condition flow may not suspend. An expression reading a
// field that does not exist is unmet, not an error.
func (t *Trigger) Condition(ctx context.Context, ev *event.Event) (bool, error) {
	if t.effect.Times > 0 && t.fired >= t.effect.Times {
		return false, nil
	}
	env := NewEnv(t.host, ev, t.owner)
	if t.cond != nil {
		ok, err := condition.Evaluate(t.cond, env)
		if errors.Is(err, condition.ErrFieldNotFound) {
			t.host.Logger().Debug("effect condition unmet", "effect", t.effect.Name, "owner", t.owner, "event", ev.Kind(), "error", err)
			return false, nil
		}
		if err != nil || !ok {
			return false, err
		}
	}
	if t.effect.ConditionEntry == 0 {
		return true, nil
	}
	f := flow.New(t.effect.Graph, t.effect.Defs, env, t.effect.flowOptions(flow.WithoutSuspend())...)
	if _, err := f.Run(ctx, t.effect.ConditionEntry); err != nil {
		return false, err
	}
	v, _ := f.Output(action.PortResult)
	ok, isBool := v.(bool)
	if !isBool {
		return false, fmt.Errorf("%w: got %T", ErrNotCondition, v)
	}
	return ok, nil
}

// OnEnable runs the effect's enable action, if any.
func (t *Trigger) OnEnable(ctx context.Context) error {
	return t.runAction(ctx, "enable", t.effect.EnableEntry)
}

// OnDisable runs the effect's disable action, if any.
func (t *Trigger) OnDisable(ctx context.Context) error {
	return t.runAction(ctx, "disable", t.effect.DisableEntry)
}

// runAction runs entry outside any trigger, so the flow may not suspend.
// Property changes it makes still go through the game's events.
func (t *Trigger) runAction(ctx context.Context, name string, entry int) error {
	if entry == 0 {
		return nil
	}
	f := flow.New(t.effect.Graph, t.effect.Defs, NewEnv(t.host, t.host.Triggers().Current(), t.owner),
		t.effect.flowOptions(flow.WithoutSuspend())...)
	if _, err := f.Run(ctx, entry); err != nil {
		return fmt.Errorf("effect %s %s action: %w", t.effect.Name, name, err)
	}
	return nil
}

// Invoke runs the effect graph. A suspended flow becomes the continuation.
func (t *Trigger) Invoke(ctx context.Context, ev *event.Event) (trigger.Continuation, error) {
	t.fired++
	t.host.Logger().Debug("effect fired", "effect", t.effect.Name, "owner", t.owner, "event", ev.Kind())
	f := flow.New(t.effect.Graph, t.effect.Defs, NewEnv(t.host, ev, t.owner), t.effect.flowOptions()...)
	st, err := f.Run(ctx, t.effect.Entry)
	return settle(f, st, err, nil)
}

// flowContinuation resumes a suspended flow when the manager resumes the
// event it belongs to.
type flowContinuation struct {
	flow *flow.Flow
	done func(*flow.Flow)
}

func (c *flowContinuation) Resume(ctx context.Context, input interface{}) (trigger.Continuation, error) {
	st, err := c.flow.Resume(ctx, input)
	return settle(c.flow, st, err, c.done)
}

func settle(f *flow.Flow, st flow.Status, err error, done func(*flow.Flow)) (trigger.Continuation, error) {
	if err != nil {
		return nil, err
	}
	if st == flow.StatusSuspended {
		return &flowContinuation{flow: f, done: done}, nil
	}
	if done != nil {
		done(f)
	}
	return nil, nil
}
