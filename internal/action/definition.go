package action

import (
	"github.com/gyaneshwarpardhi/cardflow/internal/graph"
)

// Kind is the closed set of node behaviors the flow interpreter knows.
// Define names map onto a Kind through the Registry, so a deck may expose the
// same behavior under several names.
type Kind int

const (
	KindEntry Kind = iota + 1
	KindReturn
	KindConst
	KindAdd
	KindCompare
	KindFormula
	KindScript
	KindGetVar
	KindSetVar
	KindGetProp
	KindSetProp
	KindBranch
	KindChoose
	KindRaiseEvent
	KindCancel
	KindLog
)

var kindNames = map[Kind]string{
	KindEntry:      "Entry",
	KindReturn:     "Return",
	KindConst:      "Const",
	KindAdd:        "Add",
	KindCompare:    "Compare",
	KindFormula:    "Formula",
	KindScript:     "Script",
	KindGetVar:     "GetVar",
	KindSetVar:     "SetVar",
	KindGetProp:    "GetProp",
	KindSetProp:    "SetProp",
	KindBranch:     "Branch",
	KindChoose:     "Choose",
	KindRaiseEvent: "RaiseEvent",
	KindCancel:     "Cancel",
	KindLog:        "Log",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// ParseKind maps a canonical kind name back to its Kind.
func ParseKind(name string) (Kind, bool) {
	for k, s := range kindNames {
		if s == name {
			return k, true
		}
	}
	return 0, false
}

// Pure reports whether nodes of this kind are value producers: they have no
// control ports and are computed on demand when an output is read.
func (k Kind) Pure() bool {
	switch k {
	case KindConst, KindAdd, KindCompare, KindFormula, KindScript, KindGetVar, KindGetProp:
		return true
	}
	return false
}

// Suspends reports whether executing the kind always waits for external input.
// Event-raising kinds suspend only when the raised event does.
func (k Kind) Suspends() bool { return k == KindChoose }

// Port names shared by the built-in kinds.
const (
	PortIn     = "in"
	PortOut    = "out"
	PortTrue   = "true"
	PortFalse  = "false"
	PortResult = "result"
	PortValue  = "value"
	PortChoice = "choice"
	PortTarget = "target"
	PortA      = "a"
	PortB      = "b"
	PortCond   = "condition"
	PortMsg    = "message"
	PortCancel = "canceled"
)

// Extra keys read by the built-in layouts and by the interpreter.
const (
	ExtraVars     = "vars"
	ExtraInputs   = "inputs"
	ExtraType     = "type"
	ExtraValue    = "value"
	ExtraOp       = "op"
	ExtraProp     = "prop"
	ExtraName     = "name"
	ExtraEvent    = "event"
	ExtraExpr     = "expr"
	ExtraSource   = "source"
	ExtraLevel    = "level"
	ExtraPrompt   = "prompt"
	ExtraOptions  = "options"
	ExtraDefaults = "defaults"
)

// Definition binds a define name to a Kind and its port layout.
// Layout may inspect the node's Extra; several kinds size their ports from it.
type Definition struct {
	Name   string
	Kind   Kind
	Layout func(n *graph.Node) []graph.PortSpec
}

// Ports returns the port layout for n.
func (d Definition) Ports(n *graph.Node) []graph.PortSpec {
	if d.Layout != nil {
		return d.Layout(n)
	}
	return Layout(d.Kind, n)
}
