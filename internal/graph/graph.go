package graph

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrUnknownDefine      = errors.New("unknown node define")
	ErrUnknownNode        = errors.New("unknown node")
	ErrUnknownPort        = errors.New("unknown port")
	ErrDuplicateNode      = errors.New("duplicate node id")
	ErrRejectedConnection = errors.New("connection rejected")
)

// Definer attaches ports to a freshly created node based on its define name.
// It returns an error wrapping ErrUnknownDefine for names it does not know.
type Definer interface {
	Define(n *Node) error
}

// Bounds is the presentation box around every node position.
type Bounds struct {
	Width   float64
	Height  float64
	CenterX float64
	CenterY float64
}

// Graph owns an ordered node list and an ordered connection list.
// It is not safe for concurrent mutation; each game session owns its graphs.
type Graph struct {
	nodes       []*Node
	connections []*Connection
	definer     Definer
	bounds      Bounds
}

// New allocates an empty Graph. definer may be nil, in which case created
// nodes carry no ports until SetPorts is called.
func New(definer Definer) *Graph {
	return &Graph{definer: definer}
}

// CreateNode adds a node with the smallest positive id not already in use.
func (g *Graph) CreateNode(define string, pos Position) (*Node, error) {
	return g.createNode(g.freeID(), define, pos, nil)
}

func (g *Graph) createNode(id int, define string, pos Position, extra map[string]interface{}) (*Node, error) {
	if g.Node(id) != nil {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateNode, id)
	}
	n := newNode(id, define, pos, extra)
	if g.definer != nil {
		if err := g.definer.Define(n); err != nil {
			return nil, fmt.Errorf("node %d: %w", id, err)
		}
	}
	g.nodes = append(g.nodes, n)
	g.updateBounds()
	return n, nil
}

func (g *Graph) freeID() int {
	used := make(map[int]struct{}, len(g.nodes))
	for _, n := range g.nodes {
		used[n.id] = struct{}{}
	}
	id := 1
	for {
		if _, ok := used[id]; !ok {
			return id
		}
		id++
	}
}

// RemoveNode deletes n and every connection touching it.
func (g *Graph) RemoveNode(n *Node) bool {
	for i, m := range g.nodes {
		if m != n {
			continue
		}
		g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
		g.DisconnectAll(n)
		g.updateBounds()
		return true
	}
	return false
}

// Connect joins two ports in either argument order; the output side becomes
// the source. It returns nil when the ports cannot be joined: not owned by
// this graph, same direction, same node, incompatible kinds or types, already
// connected, or the input is a value port that already has a connection.
func (g *Graph) Connect(a, b *Port) *Connection {
	if a == nil || b == nil {
		return nil
	}
	src, dst := a, b
	if src.Direction() == Input {
		src, dst = dst, src
	}
	if src.Direction() != Output || dst.Direction() != Input {
		return nil
	}
	if src.node == dst.node || !g.ownsPort(src) || !g.ownsPort(dst) {
		return nil
	}
	if !compatible(src, dst) || g.IsConnected(src, dst) {
		return nil
	}
	if dst.Kind() == Value && len(g.Incoming(dst.Ref())) > 0 {
		return nil
	}
	c := &Connection{Source: src.Ref(), Destination: dst.Ref(), Kind: src.Kind()}
	g.connections = append(g.connections, c)
	return c
}

func (g *Graph) ownsPort(p *Port) bool {
	n := g.Node(p.node)
	return n != nil && n.owns(p)
}

// Disconnect removes c from the graph.
func (g *Graph) Disconnect(c *Connection) bool {
	for i, d := range g.connections {
		if d == c {
			g.connections = append(g.connections[:i], g.connections[i+1:]...)
			return true
		}
	}
	return false
}

// DisconnectPorts removes the connection between a and b, in either order.
func (g *Graph) DisconnectPorts(a, b *Port) bool {
	c := g.Connection(a, b)
	if c == nil {
		return false
	}
	return g.Disconnect(c)
}

// DisconnectAll removes every connection touching n and returns how many went.
func (g *Graph) DisconnectAll(n *Node) int {
	kept := g.connections[:0]
	removed := 0
	for _, c := range g.connections {
		if c.Touches(n.id) {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	for i := len(kept); i < len(g.connections); i++ {
		g.connections[i] = nil
	}
	g.connections = kept
	return removed
}

// FindNode returns the first node with the given define name.
func (g *Graph) FindNode(define string) *Node {
	for _, n := range g.nodes {
		if n.define == define {
			return n
		}
	}
	return nil
}

// Node returns a node by id (nil if not found).
func (g *Graph) Node(id int) *Node {
	for _, n := range g.nodes {
		if n.id == id {
			return n
		}
	}
	return nil
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Connections returns the connections in insertion order.
func (g *Graph) Connections() []*Connection {
	out := make([]*Connection, len(g.connections))
	copy(out, g.connections)
	return out
}

// NodeConnections returns every connection touching node id.
func (g *Graph) NodeConnections(id int) []*Connection {
	var out []*Connection
	for _, c := range g.connections {
		if c.Touches(id) {
			out = append(out, c)
		}
	}
	return out
}

// Connection returns the connection joining a and b in either orientation.
func (g *Graph) Connection(a, b *Port) *Connection {
	if a == nil || b == nil {
		return nil
	}
	src, dst := a, b
	if src.Direction() == Input {
		src, dst = dst, src
	}
	if src.Direction() != Output || dst.Direction() != Input {
		return nil
	}
	sr, dr := src.Ref(), dst.Ref()
	for _, c := range g.connections {
		if c.Source == sr && c.Destination == dr {
			return c
		}
	}
	return nil
}

func (g *Graph) IsConnected(a, b *Port) bool { return g.Connection(a, b) != nil }

// Incoming returns the connections terminating at input ref.
func (g *Graph) Incoming(ref PortRef) []*Connection {
	var out []*Connection
	for _, c := range g.connections {
		if c.Destination == ref {
			out = append(out, c)
		}
	}
	return out
}

// Outgoing returns the connections originating at output ref, in graph order.
func (g *Graph) Outgoing(ref PortRef) []*Connection {
	var out []*Connection
	for _, c := range g.connections {
		if c.Source == ref {
			out = append(out, c)
		}
	}
	return out
}

// Port resolves a ref on the given side (nil if the node or port is missing).
func (g *Graph) Port(dir Direction, ref PortRef) *Port {
	n := g.Node(ref.Node)
	if n == nil {
		return nil
	}
	return n.Port(dir, ref.Port)
}

// Bounds returns the box enclosing the origin and every node position.
func (g *Graph) Bounds() Bounds { return g.bounds }

func (g *Graph) updateBounds() {
	var minX, minY, maxX, maxY float64
	for _, n := range g.nodes {
		minX = math.Min(minX, n.Position.X)
		minY = math.Min(minY, n.Position.Y)
		maxX = math.Max(maxX, n.Position.X)
		maxY = math.Max(maxY, n.Position.Y)
	}
	g.bounds = Bounds{
		Width:   maxX - minX,
		Height:  maxY - minY,
		CenterX: (minX + maxX) / 2,
		CenterY: (minY + maxY) / 2,
	}
}

// MoveNode repositions n and refreshes the bounds.
func (g *Graph) MoveNode(n *Node, pos Position) {
	n.Position = pos
	g.updateBounds()
}
