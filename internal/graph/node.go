package graph

import (
	"fmt"
	"strconv"
)

// PortKind discriminates control ports from value ports.
type PortKind string

const (
	Control PortKind = "control"
	Value   PortKind = "value"
)

// Direction is the side of the node a port sits on.
type Direction string

const (
	Input  Direction = "input"
	Output Direction = "output"
)

// ValueType is the payload type carried by a value port.
// TypeAny connects to every other value type.
type ValueType string

const (
	TypeAny    ValueType = "any"
	TypeInt    ValueType = "int"
	TypeBool   ValueType = "bool"
	TypeString ValueType = "string"
)

// PortRef addresses a port by owning node id and port name.
// Inputs and outputs live in separate namespaces, so a ref is only
// meaningful together with the direction implied by its use.
type PortRef struct {
	Node int    `json:"node" yaml:"node"`
	Port string `json:"port" yaml:"port"`
}

func (r PortRef) String() string { return strconv.Itoa(r.Node) + ":" + r.Port }

// PortSpec describes a port a definer attaches to a node.
type PortSpec struct {
	Name      string
	Kind      PortKind
	Direction Direction
	Type      ValueType
	Default   interface{}
}

// Port is a typed connection point. It belongs to exactly one node for its lifetime.
type Port struct {
	node int
	spec PortSpec
}

func (p *Port) NodeID() int { return p.node }
func (p *Port) Name() string { return p.spec.Name }
func (p *Port) Kind() PortKind { return p.spec.Kind }
func (p *Port) Direction() Direction { return p.spec.Direction }
func (p *Port) Type() ValueType { return p.spec.Type }
func (p *Port) Default() interface{} { return p.spec.Default }
func (p *Port) Ref() PortRef { return PortRef{Node: p.node, Port: p.spec.Name} }
func (p *Port) String() string { return fmt.Sprintf("%s(%s %s)", p.Ref(), p.spec.Direction, p.spec.Kind) }

// compatible reports whether an output may feed an input: both control, or
// both value with equal types where TypeAny matches everything.
func compatible(out, in *Port) bool {
	if out.spec.Kind != in.spec.Kind {
		return false
	}
	if out.spec.Kind == Control {
		return true
	}
	a, b := out.spec.Type, in.spec.Type
	return a == b || a == TypeAny || b == TypeAny || a == "" || b == ""
}

// Position places a node on the editor canvas. It never affects execution.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is one step of an action graph: a define name, a position, free-form
// extra data read by its definition, and the ports it owns.
type Node struct {
	id       int
	define   string
	Position Position
	Extra    map[string]interface{}
	ports    []*Port
}

func newNode(id int, define string, pos Position, extra map[string]interface{}) *Node {
	if extra == nil {
		extra = make(map[string]interface{})
	}
	return &Node{id: id, define: define, Position: pos, Extra: extra}
}

func (n *Node) ID() int        { return n.id }
func (n *Node) Define() string { return n.define }

// SetPorts replaces the node's ports. Definers call it while a node is
// created; calling it on a connected node orphans its connections.
func (n *Node) SetPorts(specs []PortSpec) {
	n.ports = n.ports[:0]
	for _, s := range specs {
		if s.Kind == Value && s.Type == "" {
			s.Type = TypeAny
		}
		n.ports = append(n.ports, &Port{node: n.id, spec: s})
	}
}

// Ports returns every port in declaration order.
func (n *Node) Ports() []*Port {
	out := make([]*Port, len(n.ports))
	copy(out, n.ports)
	return out
}

// Port finds a port by direction and name.
func (n *Node) Port(dir Direction, name string) *Port {
	for _, p := range n.ports {
		if p.spec.Direction == dir && p.spec.Name == name {
			return p
		}
	}
	return nil
}

func (n *Node) Input(name string) *Port  { return n.Port(Input, name) }
func (n *Node) Output(name string) *Port { return n.Port(Output, name) }

// Inputs returns the input ports in declaration order.
func (n *Node) Inputs() []*Port { return n.filter(Input) }

// Outputs returns the output ports in declaration order.
func (n *Node) Outputs() []*Port { return n.filter(Output) }

func (n *Node) filter(dir Direction) []*Port {
	var out []*Port
	for _, p := range n.ports {
		if p.spec.Direction == dir {
			out = append(out, p)
		}
	}
	return out
}

func (n *Node) owns(p *Port) bool {
	for _, q := range n.ports {
		if q == p {
			return true
		}
	}
	return false
}

// ExtraString reads a string extra value; missing or mistyped keys yield "".
func (n *Node) ExtraString(key string) string {
	s, _ := n.Extra[key].(string)
	return s
}

// ExtraStrings reads a list of strings. YAML and JSON decoding produce
// []interface{}, so both shapes are accepted.
func (n *Node) ExtraStrings(key string) []string {
	switch v := n.Extra[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// ExtraMap reads a nested map extra value.
func (n *Node) ExtraMap(key string) map[string]interface{} {
	switch v := n.Extra[key].(type) {
	case map[string]interface{}:
		return v
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[fmt.Sprint(k)] = item
		}
		return out
	}
	return nil
}

// Connection is a directed edge from an output port to an input port.
type Connection struct {
	Source      PortRef
	Destination PortRef
	Kind        PortKind
}

func (c *Connection) String() string {
	return c.Source.String() + " -> " + c.Destination.String()
}

// Touches reports whether either end of the connection is on node id.
func (c *Connection) Touches(id int) bool {
	return c.Source.Node == id || c.Destination.Node == id
}
