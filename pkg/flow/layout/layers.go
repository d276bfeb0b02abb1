// Package layout computes a top-down hierarchical layout for flow graphs.
//
// Layout happens in two passes. [ComputeLayers] assigns every node a layer
// index so that each edge points to a strictly deeper layer. [Planner.Plan]
// then places the nodes of each layer on horizontal slots, centering every
// sibling group under its parent so branch fan-outs stay balanced.
package layout

import (
	"errors"
	"slices"

	ferrors "github.com/matzehuels/flowgraph/pkg/errors"
	"github.com/matzehuels/flowgraph/pkg/flow"
)

var (
	// ErrLayoutCycle is wrapped in a LAYOUT_PRECONDITION error when the
	// graph cannot be ordered topologically.
	ErrLayoutCycle = errors.New("layering requires an acyclic graph")

	// ErrNoRoot is wrapped in a LAYOUT_PRECONDITION error when no node can
	// seed the layering.
	ErrNoRoot = errors.New("no root node")
)

// Graph is the read-only query surface used for layout.
type Graph interface {
	NodeIDs() []string
	Node(id string) (flow.Node, bool)
	OutgoingEdges(id string) []flow.Edge
	IncomingEdges(id string) []flow.Edge
	InDegree(id string) int
}

// Layers maps node IDs to layer indexes (0 is the top).
type Layers map[string]int

// Max returns the deepest layer index, or -1 when empty.
func (l Layers) Max() int {
	m := -1
	for _, v := range l {
		m = max(m, v)
	}
	return m
}

// Groups returns the node IDs of each layer, ordered as in ids.
func (l Layers) Groups(ids []string) [][]string {
	out := make([][]string, l.Max()+1)
	for _, id := range ids {
		if v, ok := l[id]; ok {
			out[v] = append(out[v], id)
		}
	}
	return out
}

// FindRoot picks the node that seeds the layering: the first Start node with
// no incoming edges, else the first Start node, else the first node with no
// incoming edges.
func FindRoot(g Graph) (string, error) {
	ids := g.NodeIDs()
	var anyStart, anySource string
	for _, id := range ids {
		n, _ := g.Node(id)
		in := g.InDegree(id)
		if n.Kind == flow.KindStart {
			if in == 0 {
				return id, nil
			}
			if anyStart == "" {
				anyStart = id
			}
		}
		if in == 0 && anySource == "" {
			anySource = id
		}
	}
	switch {
	case anyStart != "":
		return anyStart, nil
	case anySource != "":
		return anySource, nil
	}
	return "", ferrors.Wrap(ferrors.ErrCodeLayoutPrecondition, ErrNoRoot, "%d nodes", len(ids))
}

// ComputeLayers assigns a layer to every node of g, seeded from root (or from
// [FindRoot] when root is empty).
//
// Nodes reachable from root get their longest-path distance from it. Nodes
// the root cannot reach are layered from their own sources starting at 0,
// except End nodes, which go one layer below everything else. A final
// relaxation in topological order guarantees layer(v) > layer(u) for every
// edge u->v.
//
// The topological sort runs at most len(nodes) rounds; a graph that cannot
// be fully ordered fails with a LAYOUT_PRECONDITION error wrapping
// [ErrLayoutCycle].
func ComputeLayers(g Graph, root string) (Layers, error) {
	ids := g.NodeIDs()
	if len(ids) == 0 {
		return Layers{}, nil
	}
	order, err := topoOrder(g, ids)
	if err != nil {
		return nil, err
	}
	if root == "" {
		if root, err = FindRoot(g); err != nil {
			return nil, err
		}
	} else if _, ok := g.Node(root); !ok {
		return nil, ferrors.Wrap(ferrors.ErrCodeLayoutPrecondition, flow.ErrUnknownNode, "root %s", root)
	}

	reach := reachable(g, root)
	layers := make(Layers, len(ids))
	layers[root] = 0

	// Longest path from the root.
	for _, u := range order {
		if !reach[u] {
			continue
		}
		for _, e := range g.OutgoingEdges(u) {
			if reach[e.Target] {
				layers[e.Target] = max(layers[e.Target], layers[u]+1)
			}
		}
	}

	// Unreachable nodes other than End start their own stacks at 0.
	var ends []string
	for _, u := range order {
		if reach[u] {
			continue
		}
		if n, _ := g.Node(u); n.Kind == flow.KindEnd {
			ends = append(ends, u)
			continue
		}
		l := 0
		for _, e := range g.IncomingEdges(u) {
			if pl, ok := layers[e.Source]; ok && !reach[e.Source] {
				l = max(l, pl+1)
			}
		}
		layers[u] = l
	}
	if len(ends) > 0 {
		below := layers.Max() + 1
		for _, u := range ends {
			layers[u] = below
		}
	}

	for _, u := range order {
		for _, e := range g.OutgoingEdges(u) {
			layers[e.Target] = max(layers[e.Target], layers[u]+1)
		}
	}
	return layers, nil
}

// topoOrder runs Kahn's algorithm over the whole graph.
func topoOrder(g Graph, ids []string) ([]string, error) {
	inDegree := make(map[string]int, len(ids))
	queue := make([]string, 0, len(ids))
	for _, id := range ids {
		inDegree[id] = g.InDegree(id)
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(ids))
	for rounds := 0; len(queue) > 0; rounds++ {
		if rounds >= len(ids) {
			break
		}
		curr := queue[0]
		queue = queue[1:]
		order = append(order, curr)
		for _, e := range g.OutgoingEdges(curr) {
			inDegree[e.Target]--
			if inDegree[e.Target] == 0 {
				queue = append(queue, e.Target)
			}
		}
	}
	if len(order) != len(ids) {
		var stuck []string
		for _, id := range ids {
			if inDegree[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		slices.Sort(stuck)
		return nil, ferrors.Wrap(ferrors.ErrCodeLayoutPrecondition, ErrLayoutCycle,
			"%d of %d nodes ordered, blocked: %v", len(order), len(ids), stuck)
	}
	return order, nil
}

func reachable(g Graph, root string) map[string]bool {
	seen := map[string]bool{root: true}
	queue := []string{root}
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		for _, e := range g.OutgoingEdges(curr) {
			if !seen[e.Target] {
				seen[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}
	return seen
}
