package flow

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"

	ferrors "github.com/matzehuels/flowgraph/pkg/errors"
)

var (
	// ErrInvalidNodeID is returned by [Graph.AddNode] when the node ID is empty.
	ErrInvalidNodeID = errors.New("node ID must not be empty")

	// ErrDuplicateNodeID is returned by [Graph.AddNode] when a node with the
	// same ID already exists.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrDuplicateEdgeID is returned by [Graph.AddEdge] when an edge with the
	// same ID already exists.
	ErrDuplicateEdgeID = errors.New("duplicate edge ID")

	// ErrUnknownKind is returned when a node kind cannot be parsed.
	ErrUnknownKind = errors.New("unknown node kind")

	// ErrUnknownNode is returned when an operation references a node that
	// is not in the graph.
	ErrUnknownNode = errors.New("unknown node")

	// ErrUnknownEdge is returned by [Graph.RemoveEdge] for a missing edge.
	ErrUnknownEdge = errors.New("unknown edge")

	// ErrSelfLoop is returned by [Graph.AddEdge] when source and target are
	// the same node.
	ErrSelfLoop = errors.New("edge connects a node to itself")

	// ErrPortDirection is returned by [Graph.AddEdge] when the source port is
	// not an output port or the target port is not the input port.
	ErrPortDirection = errors.New("edge must leave an output port and enter the input port")

	// ErrBranchPortTaken is returned by [Graph.AddEdge] when a decision
	// branch port already carries an edge.
	ErrBranchPortTaken = errors.New("branch port already connected")

	// ErrBranchOutOfRange is returned by [Graph.AddEdge] when a branch port
	// index is not below the decision node's branch count.
	ErrBranchOutOfRange = errors.New("branch index out of range")

	// ErrBranchInUse is returned by [Graph.SetConditions] when shrinking the
	// condition list would drop a branch that still has an edge.
	ErrBranchInUse = errors.New("branch still attached")

	// ErrNotADecisionNode is returned by branch operations on nodes that do
	// not own branches.
	ErrNotADecisionNode = errors.New("not a decision node")
)

// IsStructural reports whether err is a structural violation of the graph
// model (self loop, wrong port direction, occupied branch port...).
func IsStructural(err error) bool {
	return ferrors.Is(err, ferrors.ErrCodeStructural)
}

func structural(cause error, format string, args ...any) error {
	return ferrors.Wrap(ferrors.ErrCodeStructural, cause, format, args...)
}

// Graph is the authoritative store of a flow chart's nodes and edges.
//
// All accessors return copies; other components refer to nodes and edges by
// ID only. Every mutation keeps the edge set and both adjacency indexes
// consistent, so an edge exists iff it is listed in the outgoing index of
// its source and the incoming index of its target.
//
// The zero value is not usable - use [New]. Graph is not safe for concurrent
// use without external synchronization.
type Graph struct {
	nodes     map[string]*Node
	nodeOrder []string
	edges     map[string]*Edge
	edgeOrder []string
	outgoing  map[string][]string // nodeID -> edge IDs
	incoming  map[string][]string // nodeID -> edge IDs
	meta      Metadata
}

// New creates an empty graph with optional graph-level metadata.
func New(meta Metadata) *Graph {
	if meta == nil {
		meta = Metadata{}
	}
	return &Graph{
		nodes:    make(map[string]*Node),
		edges:    make(map[string]*Edge),
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
		meta:     meta,
	}
}

// Meta returns the graph-level metadata. The returned map is live.
func (g *Graph) Meta() Metadata { return g.meta }

// AddNode inserts a node. Decision-only fields are cleared on other kinds.
func (g *Graph) AddNode(n Node) error {
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	if _, ok := g.nodes[n.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNodeID, n.ID)
	}
	if !n.Kind.Valid() {
		return fmt.Errorf("node %s: %w: %d", n.ID, ErrUnknownKind, int(n.Kind))
	}
	n = n.clone()
	if !n.Kind.IsBranching() {
		n.Conditions = nil
	}
	g.nodes[n.ID] = &n
	g.nodeOrder = append(g.nodeOrder, n.ID)
	return nil
}

// AddEdge inserts an edge and returns the stored copy.
//
// Empty ports default to "out" and "in"; an empty ID is replaced with a
// random UUID. Self loops, reversed ports and a second edge on an occupied
// decision branch port are rejected with a STRUCTURAL_ERROR.
func (g *Graph) AddEdge(e Edge) (Edge, error) {
	if e.SourcePort == "" {
		e.SourcePort = PortOut
	}
	if e.TargetPort == "" {
		e.TargetPort = PortIn
	}
	if e.Source == e.Target {
		return Edge{}, structural(ErrSelfLoop, "edge %s->%s", e.Source, e.Target)
	}
	if !IsOutputPort(e.SourcePort) || e.TargetPort != PortIn {
		return Edge{}, structural(ErrPortDirection, "edge %s[%s]->%s[%s]",
			e.Source, e.SourcePort, e.Target, e.TargetPort)
	}
	src, ok := g.nodes[e.Source]
	if !ok {
		return Edge{}, fmt.Errorf("%w: source %s", ErrUnknownNode, e.Source)
	}
	if _, ok := g.nodes[e.Target]; !ok {
		return Edge{}, fmt.Errorf("%w: target %s", ErrUnknownNode, e.Target)
	}
	if idx, isBranch := ParseBranchPort(e.SourcePort); isBranch && src.Kind.IsBranching() {
		if idx >= src.BranchCount() {
			return Edge{}, structural(ErrBranchOutOfRange, "node %s port %s (branches: %d)",
				src.ID, e.SourcePort, src.BranchCount())
		}
		if prev, taken := g.edgeOnBranch(src.ID, idx); taken {
			return Edge{}, structural(ErrBranchPortTaken, "node %s port %s (edge %s)",
				src.ID, e.SourcePort, prev.ID)
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	} else if _, dup := g.edges[e.ID]; dup {
		return Edge{}, fmt.Errorf("%w: %s", ErrDuplicateEdgeID, e.ID)
	}

	e = e.clone()
	g.edges[e.ID] = &e
	g.edgeOrder = append(g.edgeOrder, e.ID)
	g.outgoing[e.Source] = append(g.outgoing[e.Source], e.ID)
	g.incoming[e.Target] = append(g.incoming[e.Target], e.ID)
	return e.clone(), nil
}

// RemoveEdge deletes the edge with the given ID and returns it.
func (g *Graph) RemoveEdge(id string) (Edge, error) {
	e, ok := g.edges[id]
	if !ok {
		return Edge{}, fmt.Errorf("%w: %s", ErrUnknownEdge, id)
	}
	delete(g.edges, id)
	g.edgeOrder = remove(g.edgeOrder, id)
	g.outgoing[e.Source] = remove(g.outgoing[e.Source], id)
	g.incoming[e.Target] = remove(g.incoming[e.Target], id)
	return *e, nil
}

// RemoveNode deletes a node together with all incident edges. The removed
// edges are returned in insertion order.
func (g *Graph) RemoveNode(id string) ([]Edge, error) {
	if _, ok := g.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	var removed []Edge
	for _, e := range g.IncidentEdges(id) {
		if _, err := g.RemoveEdge(e.ID); err == nil {
			removed = append(removed, e)
		}
	}
	delete(g.nodes, id)
	delete(g.outgoing, id)
	delete(g.incoming, id)
	g.nodeOrder = remove(g.nodeOrder, id)
	return removed, nil
}

// SetConditions replaces the conditions of a decision node. Shrinking the
// list fails with [ErrBranchInUse] while a dropped branch still has an edge.
func (g *Graph) SetConditions(id string, conds []Condition) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	if !n.Kind.IsBranching() {
		return fmt.Errorf("node %s: %w", id, ErrNotADecisionNode)
	}
	count := len(conds) + 1
	for _, e := range g.OutgoingEdges(id) {
		if idx, ok := e.BranchIndex(); ok && idx >= count {
			return structural(ErrBranchInUse, "node %s port %s", id, e.SourcePort)
		}
	}
	n.Conditions = append([]Condition(nil), conds...)
	return nil
}

// SetLabel updates a node's display label.
func (g *Graph) SetLabel(id, label string) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	n.Label = label
	return nil
}

// Node returns a copy of the node with the given ID.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.clone(), true
}

// HasNode reports whether the node exists.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns copies of all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		out = append(out, g.nodes[id].clone())
	}
	return out
}

// NodeIDs returns all node IDs in insertion order.
func (g *Graph) NodeIDs() []string { return slices.Clone(g.nodeOrder) }

// Edges returns copies of all edges in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edgeOrder))
	for _, id := range g.edgeOrder {
		out = append(out, g.edges[id].clone())
	}
	return out
}

// Edge returns a copy of the edge with the given ID.
func (g *Graph) Edge(id string) (Edge, bool) {
	e, ok := g.edges[id]
	if !ok {
		return Edge{}, false
	}
	return e.clone(), true
}

// OutgoingEdges returns the edges leaving id in insertion order.
func (g *Graph) OutgoingEdges(id string) []Edge { return g.collect(g.outgoing[id]) }

// IncomingEdges returns the edges entering id in insertion order.
func (g *Graph) IncomingEdges(id string) []Edge { return g.collect(g.incoming[id]) }

// IncidentEdges returns incoming then outgoing edges of id.
func (g *Graph) IncidentEdges(id string) []Edge {
	return append(g.IncomingEdges(id), g.OutgoingEdges(id)...)
}

// Children returns the distinct targets of id's outgoing edges.
func (g *Graph) Children(id string) []string {
	return distinct(g.outgoing[id], func(e *Edge) string { return e.Target }, g.edges)
}

// Parents returns the distinct sources of id's incoming edges.
func (g *Graph) Parents(id string) []string {
	return distinct(g.incoming[id], func(e *Edge) string { return e.Source }, g.edges)
}

// InDegree returns the number of edges entering id.
func (g *Graph) InDegree(id string) int { return len(g.incoming[id]) }

// OutDegree returns the number of edges leaving id.
func (g *Graph) OutDegree(id string) int { return len(g.outgoing[id]) }

// EdgeOnPort returns the edge leaving id through port, if any. Branch ports
// are compared by index so "out_1" and "out-1" match the same edge.
func (g *Graph) EdgeOnPort(id, port string) (Edge, bool) {
	if idx, ok := ParseBranchPort(port); ok {
		if e, ok := g.edgeOnBranch(id, idx); ok {
			return e.clone(), true
		}
		return Edge{}, false
	}
	for _, eid := range g.outgoing[id] {
		if e := g.edges[eid]; e.SourcePort == port {
			return e.clone(), true
		}
	}
	return Edge{}, false
}

// HasConnection reports whether an edge from source to target exists.
func (g *Graph) HasConnection(source, target string) bool {
	for _, eid := range g.outgoing[source] {
		if g.edges[eid].Target == target {
			return true
		}
	}
	return false
}

// Starts returns the IDs of all Start nodes in insertion order.
func (g *Graph) Starts() []string { return g.NodesOfKind(KindStart) }

// NodesOfKind returns the IDs of nodes of kind k in insertion order.
func (g *Graph) NodesOfKind(k NodeKind) []string {
	var out []string
	for _, id := range g.nodeOrder {
		if g.nodes[id].Kind == k {
			out = append(out, id)
		}
	}
	return out
}

// Sources returns nodes with no incoming edges in insertion order.
func (g *Graph) Sources() []string {
	var out []string
	for _, id := range g.nodeOrder {
		if len(g.incoming[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Clone returns a deep copy of the graph. Edge IDs are preserved.
func (g *Graph) Clone() *Graph {
	c := New(maps.Clone(g.meta))
	for _, id := range g.nodeOrder {
		n := g.nodes[id].clone()
		c.nodes[id] = &n
	}
	c.nodeOrder = slices.Clone(g.nodeOrder)
	for _, id := range g.edgeOrder {
		e := g.edges[id].clone()
		c.edges[id] = &e
		c.outgoing[e.Source] = append(c.outgoing[e.Source], id)
		c.incoming[e.Target] = append(c.incoming[e.Target], id)
	}
	c.edgeOrder = slices.Clone(g.edgeOrder)
	return c
}

// Validate checks the adjacency indexes against the edge set.
func (g *Graph) Validate() error {
	count := 0
	for id, ids := range g.outgoing {
		for _, eid := range ids {
			e, ok := g.edges[eid]
			if !ok || e.Source != id {
				return ferrors.New(ferrors.ErrCodeInternal, "outgoing index of %s lists stale edge %s", id, eid)
			}
			count++
		}
	}
	if count != len(g.edges) {
		return ferrors.New(ferrors.ErrCodeInternal, "outgoing index holds %d edges, graph has %d", count, len(g.edges))
	}
	for id, ids := range g.incoming {
		for _, eid := range ids {
			if e, ok := g.edges[eid]; !ok || e.Target != id {
				return ferrors.New(ferrors.ErrCodeInternal, "incoming index of %s lists stale edge %s", id, eid)
			}
		}
	}
	for _, e := range g.edges {
		if _, ok := g.nodes[e.Source]; !ok {
			return fmt.Errorf("edge %s: %w: %s", e.ID, ErrUnknownNode, e.Source)
		}
		if _, ok := g.nodes[e.Target]; !ok {
			return fmt.Errorf("edge %s: %w: %s", e.ID, ErrUnknownNode, e.Target)
		}
	}
	return nil
}

func (g *Graph) edgeOnBranch(id string, idx int) (*Edge, bool) {
	for _, eid := range g.outgoing[id] {
		e := g.edges[eid]
		if i, ok := e.BranchIndex(); ok && i == idx {
			return e, true
		}
	}
	return nil, false
}

func (g *Graph) collect(ids []string) []Edge {
	out := make([]Edge, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.edges[id].clone())
	}
	return out
}

func distinct(ids []string, end func(*Edge) string, edges map[string]*Edge) []string {
	var out []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		n := end(edges[id])
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func remove(ids []string, id string) []string {
	if i := slices.Index(ids, id); i >= 0 {
		return slices.Delete(ids, i, i+1)
	}
	return ids
}
