package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gyaneshwarpardhi/cardflow/internal/action"
	"github.com/gyaneshwarpardhi/cardflow/internal/condition"
	"github.com/gyaneshwarpardhi/cardflow/internal/event"
	"github.com/gyaneshwarpardhi/cardflow/internal/graph"
)

// execute runs a control node and reports where control goes next.
func (f *Flow) execute(ctx context.Context, n *graph.Node, def action.Definition) (step, error) {
	switch def.Kind {
	case action.KindEntry:
		ev := f.currentEvent()
		for _, p := range n.Outputs() {
			if p.Kind() != graph.Value {
				continue
			}
			if _, preset := f.cache[p.Ref()]; preset {
				continue
			}
			var v interface{}
			if ev != nil {
				v = ev.Var(p.Name())
			}
			f.cache[p.Ref()] = v
		}
		return step{port: action.PortOut}, nil

	case action.KindReturn:
		for _, p := range n.Inputs() {
			if p.Kind() != graph.Value {
				continue
			}
			v, err := f.Value(ctx, p)
			if err != nil {
				return step{}, err
			}
			f.outputs[p.Name()] = v
		}
		return step{}, nil

	case action.KindSetVar:
		ev := f.currentEvent()
		if ev == nil {
			return step{}, ErrNoEvent
		}
		v, err := f.input(ctx, n, action.PortValue)
		if err != nil {
			return step{}, err
		}
		ev.SetVar(n.ExtraString(action.ExtraName), v)
		return step{port: action.PortOut}, nil

	case action.KindSetProp:
		target, err := f.target(ctx, n)
		if err != nil {
			return step{}, err
		}
		v, err := f.input(ctx, n, action.PortValue)
		if err != nil {
			return step{}, err
		}
		if f.env == nil {
			return step{}, ErrNoEnv
		}
		ev, err := f.env.SetProp(ctx, target, n.ExtraString(action.ExtraProp), v)
		if err != nil {
			return step{}, err
		}
		if ev != nil && ev.Suspended() {
			return step{wait: &wait{node: n.ID(), event: ev}}, nil
		}
		return step{port: action.PortOut}, nil

	case action.KindBranch:
		v, err := f.input(ctx, n, action.PortCond)
		if err != nil {
			return step{}, err
		}
		b, ok := v.(bool)
		if !ok {
			return step{}, fmt.Errorf("condition is %T, want bool", v)
		}
		if b {
			return step{port: action.PortTrue}, nil
		}
		return step{port: action.PortFalse}, nil

	case action.KindChoose:
		return step{wait: &wait{node: n.ID()}}, nil

	case action.KindRaiseEvent:
		ev := event.New(n.ExtraString(action.ExtraEvent), nil)
		for _, p := range n.Inputs() {
			if p.Kind() != graph.Value {
				continue
			}
			v, err := f.Value(ctx, p)
			if err != nil {
				return step{}, err
			}
			ev.SetVar(p.Name(), v)
		}
		ev.SetFlowNodeID(n.ID())
		if f.env == nil {
			return step{}, ErrNoEnv
		}
		out, err := f.env.Raise(ctx, ev)
		if err != nil {
			return step{}, err
		}
		if out.Suspended() {
			return step{wait: &wait{node: n.ID(), event: out}}, nil
		}
		f.collect(n, def, out)
		return step{port: action.PortOut}, nil

	case action.KindCancel:
		ev := f.currentEvent()
		if ev == nil {
			return step{}, ErrNoEvent
		}
		ev.Cancel()
		return step{port: action.PortOut}, nil

	case action.KindLog:
		msg, err := f.input(ctx, n, action.PortMsg)
		if err != nil {
			return step{}, err
		}
		f.logger.Log(ctx, logLevel(n.ExtraString(action.ExtraLevel)), fmt.Sprint(msg), "node", n.ID())
		return step{port: action.PortOut}, nil
	}
	return step{}, fmt.Errorf("%s nodes cannot take control", def.Kind)
}

// collect stores the outputs of an event-raising node once its event is done.
func (f *Flow) collect(n *graph.Node, def action.Definition, ev *event.Event) {
	if def.Kind != action.KindRaiseEvent {
		return
	}
	for _, p := range n.Outputs() {
		if p.Kind() != graph.Value {
			continue
		}
		if p.Name() == action.PortCancel {
			f.cache[p.Ref()] = ev.Canceled()
			continue
		}
		f.cache[p.Ref()] = ev.Var(p.Name())
	}
}

// compute evaluates a pure node and returns all of its outputs.
func (f *Flow) compute(ctx context.Context, n *graph.Node, def action.Definition) (map[string]interface{}, error) {
	switch def.Kind {
	case action.KindConst:
		return map[string]interface{}{action.PortValue: n.Extra[action.ExtraValue]}, nil

	case action.KindAdd:
		a, err := f.intInput(ctx, n, action.PortA)
		if err != nil {
			return nil, err
		}
		b, err := f.intInput(ctx, n, action.PortB)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{action.PortResult: a + b}, nil

	case action.KindCompare:
		a, err := f.input(ctx, n, action.PortA)
		if err != nil {
			return nil, err
		}
		b, err := f.input(ctx, n, action.PortB)
		if err != nil {
			return nil, err
		}
		op := n.ExtraString(action.ExtraOp)
		if op == "" {
			op = string(condition.OpEq)
		}
		ok, err := condition.Compare(condition.Operator(op), a, b)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{action.PortResult: ok}, nil

	case action.KindFormula:
		vars, err := f.namedInputs(ctx, n)
		if err != nil {
			return nil, err
		}
		expr, err := condition.ParseFormula(n.ExtraString(action.ExtraExpr))
		if err != nil {
			return nil, fmt.Errorf("formula: %w", err)
		}
		v, err := condition.Value(expr, vars)
		if err != nil {
			return nil, fmt.Errorf("formula: %w", err)
		}
		return map[string]interface{}{action.PortResult: v}, nil

	case action.KindScript:
		vars, err := f.namedInputs(ctx, n)
		if err != nil {
			return nil, err
		}
		v, err := runScript(ctx, n.ExtraString(action.ExtraSource), vars, f.scriptBudget)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{action.PortResult: v}, nil

	case action.KindGetVar:
		var v interface{}
		if ev := f.currentEvent(); ev != nil {
			v = ev.Var(n.ExtraString(action.ExtraName))
		}
		return map[string]interface{}{action.PortValue: v}, nil

	case action.KindGetProp:
		target, err := f.target(ctx, n)
		if err != nil {
			return nil, err
		}
		if f.env == nil {
			return nil, ErrNoEnv
		}
		v, _ := f.env.Prop(target, n.ExtraString(action.ExtraProp))
		return map[string]interface{}{action.PortValue: v}, nil
	}
	return nil, fmt.Errorf("%s nodes produce no values", def.Kind)
}

func (f *Flow) currentEvent() *event.Event {
	if f.env == nil {
		return nil
	}
	return f.env.Event()
}

func (f *Flow) intInput(ctx context.Context, n *graph.Node, name string) (int, error) {
	v, err := f.input(ctx, n, name)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, nil
	}
	i, ok := condition.ToInt(v)
	if !ok {
		return 0, fmt.Errorf("input %q is %T, want int", name, v)
	}
	return i, nil
}

// target resolves the target input; 0 or unset means the owning card.
func (f *Flow) target(ctx context.Context, n *graph.Node) (int, error) {
	id, err := f.intInput(ctx, n, action.PortTarget)
	if err != nil {
		return 0, err
	}
	if id == 0 && f.env != nil {
		return f.env.Self(), nil
	}
	return id, nil
}

func (f *Flow) namedInputs(ctx context.Context, n *graph.Node) (condition.Vars, error) {
	vars := make(condition.Vars)
	for _, p := range n.Inputs() {
		if p.Kind() != graph.Value {
			continue
		}
		v, err := f.Value(ctx, p)
		if err != nil {
			return nil, err
		}
		vars[p.Name()] = v
	}
	return vars, nil
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
