package graph

import (
	"fmt"
)

// SerializedNode is the persisted shape of a node.
type SerializedNode struct {
	ID     int                    `json:"id" yaml:"id"`
	Define string                 `json:"define" yaml:"define"`
	X      float64                `json:"x,omitempty" yaml:"x,omitempty"`
	Y      float64                `json:"y,omitempty" yaml:"y,omitempty"`
	Extra  map[string]interface{} `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// SerializedConnection is the persisted shape of a connection, addressed by
// node id and port name on each side.
type SerializedConnection struct {
	SourceNode int    `json:"source_node" yaml:"source_node"`
	SourcePort string `json:"source_port" yaml:"source_port"`
	DestNode   int    `json:"dest_node" yaml:"dest_node"`
	DestPort   string `json:"dest_port" yaml:"dest_port"`
}

// Serialized is the persisted form of a Graph: ordered nodes then ordered
// connections. Ports are not stored; the definer re-creates them.
type Serialized struct {
	Nodes       []SerializedNode       `json:"nodes" yaml:"nodes"`
	Connections []SerializedConnection `json:"connections,omitempty" yaml:"connections,omitempty"`
}

// Serialize captures g in insertion order.
func Serialize(g *Graph) Serialized {
	s := Serialized{
		Nodes:       make([]SerializedNode, 0, len(g.nodes)),
		Connections: make([]SerializedConnection, 0, len(g.connections)),
	}
	for _, n := range g.nodes {
		var extra map[string]interface{}
		if len(n.Extra) > 0 {
			extra = make(map[string]interface{}, len(n.Extra))
			for k, v := range n.Extra {
				extra[k] = v
			}
		}
		s.Nodes = append(s.Nodes, SerializedNode{
			ID:     n.id,
			Define: n.define,
			X:      n.Position.X,
			Y:      n.Position.Y,
			Extra:  extra,
		})
	}
	for _, c := range g.connections {
		s.Connections = append(s.Connections, SerializedConnection{
			SourceNode: c.Source.Node,
			SourcePort: c.Source.Port,
			DestNode:   c.Destination.Node,
			DestPort:   c.Destination.Port,
		})
	}
	return s
}

// Build reconstructs a Graph, re-creating every node through definer and
// then reconnecting by id. Any structural problem aborts the build.
func (s Serialized) Build(definer Definer) (*Graph, error) {
	g := New(definer)
	for _, sn := range s.Nodes {
		if sn.ID <= 0 {
			return nil, fmt.Errorf("node %d: id must be positive", sn.ID)
		}
		extra := make(map[string]interface{}, len(sn.Extra))
		for k, v := range sn.Extra {
			extra[k] = v
		}
		if _, err := g.createNode(sn.ID, sn.Define, Position{X: sn.X, Y: sn.Y}, extra); err != nil {
			return nil, err
		}
	}
	for i, sc := range s.Connections {
		src := g.Port(Output, PortRef{Node: sc.SourceNode, Port: sc.SourcePort})
		if src == nil {
			return nil, fmt.Errorf("connection %d: %w: output %d:%s", i, ErrUnknownPort, sc.SourceNode, sc.SourcePort)
		}
		dst := g.Port(Input, PortRef{Node: sc.DestNode, Port: sc.DestPort})
		if dst == nil {
			return nil, fmt.Errorf("connection %d: %w: input %d:%s", i, ErrUnknownPort, sc.DestNode, sc.DestPort)
		}
		if g.Connect(src, dst) == nil {
			return nil, fmt.Errorf("connection %d: %w: %s -> %s", i, ErrRejectedConnection, src.Ref(), dst.Ref())
		}
	}
	return g, nil
}
