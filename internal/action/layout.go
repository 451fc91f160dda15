package action

import (
	"github.com/gyaneshwarpardhi/cardflow/internal/graph"
)

func ctrlIn() graph.PortSpec {
	return graph.PortSpec{Name: PortIn, Kind: graph.Control, Direction: graph.Input}
}

func ctrlOut(name string) graph.PortSpec {
	return graph.PortSpec{Name: name, Kind: graph.Control, Direction: graph.Output}
}

func valIn(name string, t graph.ValueType, def interface{}) graph.PortSpec {
	return graph.PortSpec{Name: name, Kind: graph.Value, Direction: graph.Input, Type: t, Default: def}
}

func valOut(name string, t graph.ValueType) graph.PortSpec {
	return graph.PortSpec{Name: name, Kind: graph.Value, Direction: graph.Output, Type: t}
}

// Layout returns the built-in port layout of kind for node n.
func Layout(kind Kind, n *graph.Node) []graph.PortSpec {
	switch kind {
	case KindEntry:
		specs := []graph.PortSpec{ctrlOut(PortOut)}
		for _, v := range n.ExtraStrings(ExtraVars) {
			specs = append(specs, valOut(v, graph.TypeAny))
		}
		return specs
	case KindReturn:
		specs := []graph.PortSpec{ctrlIn()}
		for _, v := range n.ExtraStrings(ExtraVars) {
			specs = append(specs, valIn(v, graph.TypeAny, nil))
		}
		return specs
	case KindConst:
		t := graph.ValueType(n.ExtraString(ExtraType))
		if t == "" {
			t = graph.TypeAny
		}
		return []graph.PortSpec{valOut(PortValue, t)}
	case KindAdd:
		return []graph.PortSpec{
			valIn(PortA, graph.TypeInt, 0),
			valIn(PortB, graph.TypeInt, 0),
			valOut(PortResult, graph.TypeInt),
		}
	case KindCompare:
		return []graph.PortSpec{
			valIn(PortA, graph.TypeAny, nil),
			valIn(PortB, graph.TypeAny, nil),
			valOut(PortResult, graph.TypeBool),
		}
	case KindFormula, KindScript:
		var specs []graph.PortSpec
		for _, v := range n.ExtraStrings(ExtraInputs) {
			specs = append(specs, valIn(v, graph.TypeAny, nil))
		}
		return append(specs, valOut(PortResult, graph.TypeAny))
	case KindGetVar:
		return []graph.PortSpec{valOut(PortValue, graph.TypeAny)}
	case KindSetVar:
		return []graph.PortSpec{ctrlIn(), ctrlOut(PortOut), valIn(PortValue, graph.TypeAny, nil)}
	case KindGetProp:
		return []graph.PortSpec{valIn(PortTarget, graph.TypeInt, 0), valOut(PortValue, graph.TypeAny)}
	case KindSetProp:
		return []graph.PortSpec{
			ctrlIn(), ctrlOut(PortOut),
			valIn(PortTarget, graph.TypeInt, 0),
			valIn(PortValue, graph.TypeAny, nil),
		}
	case KindBranch:
		return []graph.PortSpec{
			ctrlIn(), ctrlOut(PortTrue), ctrlOut(PortFalse),
			valIn(PortCond, graph.TypeBool, false),
		}
	case KindChoose:
		return []graph.PortSpec{ctrlIn(), ctrlOut(PortOut), valOut(PortChoice, graph.TypeAny)}
	case KindRaiseEvent:
		specs := []graph.PortSpec{ctrlIn(), ctrlOut(PortOut)}
		for _, v := range n.ExtraStrings(ExtraVars) {
			specs = append(specs, valIn(v, graph.TypeAny, nil), valOut(v, graph.TypeAny))
		}
		return append(specs, valOut(PortCancel, graph.TypeBool))
	case KindCancel:
		return []graph.PortSpec{ctrlIn(), ctrlOut(PortOut)}
	case KindLog:
		return []graph.PortSpec{ctrlIn(), ctrlOut(PortOut), valIn(PortMsg, graph.TypeAny, "")}
	}
	return nil
}
