package flow

import (
	"context"
	"fmt"

	"github.com/gyaneshwarpardhi/cardflow/internal/action"
	"github.com/gyaneshwarpardhi/cardflow/internal/graph"
)

// Value resolves a port. For an input it follows the incoming connection,
// falling back to the node's inline default (extra "defaults") and then the
// definition default. For an output it reads or computes the value.
func (f *Flow) Value(ctx context.Context, p *graph.Port) (interface{}, error) {
	if p == nil {
		return nil, graph.ErrUnknownPort
	}
	if p.Direction() == graph.Output {
		return f.output(ctx, p.Ref())
	}
	conns := f.graph.Incoming(p.Ref())
	if len(conns) == 0 {
		return f.inputDefault(p), nil
	}
	return f.output(ctx, conns[0].Source)
}

// input is Value for the named input of n.
func (f *Flow) input(ctx context.Context, n *graph.Node, name string) (interface{}, error) {
	p := n.Input(name)
	if p == nil {
		return nil, fmt.Errorf("%w: input %q", graph.ErrUnknownPort, name)
	}
	return f.Value(ctx, p)
}

func (f *Flow) inputDefault(p *graph.Port) interface{} {
	if n := f.graph.Node(p.NodeID()); n != nil {
		if d, ok := n.ExtraMap(action.ExtraDefaults)[p.Name()]; ok {
			return d
		}
	}
	return p.Default()
}

// output returns the value of an output port. Pure producers compute every
// output once per flow and cache them; control producers expose what they
// stored when they ran, or the port default if they have not run yet.
func (f *Flow) output(ctx context.Context, ref graph.PortRef) (interface{}, error) {
	if v, ok := f.cache[ref]; ok {
		return v, nil
	}
	n := f.graph.Node(ref.Node)
	if n == nil {
		return nil, fmt.Errorf("%w: %d", graph.ErrUnknownNode, ref.Node)
	}
	p := n.Output(ref.Port)
	if p == nil {
		return nil, fmt.Errorf("%w: output %s", graph.ErrUnknownPort, ref)
	}
	if f.pending != nil && f.pending.node == n.ID() {
		return nil, &PolicyError{
			Code:    CodePendingDependency,
			NodeID:  n.ID(),
			Message: fmt.Sprintf("value %s is not available until the flow resumes", ref),
		}
	}
	def, ok := f.defs.Lookup(n.Define())
	if !ok {
		return nil, &NodeError{NodeID: n.ID(), Define: n.Define(), Err: graph.ErrUnknownDefine}
	}
	if !def.Kind.Pure() {
		return p.Default(), nil
	}
	if f.resolving[n.ID()] {
		return nil, &NodeError{NodeID: n.ID(), Define: n.Define(), Err: ErrValueCycle}
	}
	f.resolving[n.ID()] = true
	defer delete(f.resolving, n.ID())

	f.trace = append(f.trace, Visit{Node: n.ID(), Define: n.Define()})
	outs, err := f.compute(ctx, n, def)
	if err != nil {
		if IsNodeError(err) || IsPolicyError(err) {
			return nil, err
		}
		return nil, &NodeError{NodeID: n.ID(), Define: n.Define(), Err: err}
	}
	for name, v := range outs {
		f.cache[graph.PortRef{Node: n.ID(), Port: name}] = v
	}
	return outs[ref.Port], nil
}
