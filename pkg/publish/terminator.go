package publish

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/matzehuels/flowgraph/pkg/flow"
	"github.com/matzehuels/flowgraph/pkg/flow/branch"
)

// AutoEndLabel is the label given to synthesized End nodes.
const AutoEndLabel = "结束"

// Graph is the query and mutation surface the publish gate needs.
// [*flow.Graph] satisfies it.
type Graph interface {
	NodeIDs() []string
	Node(id string) (flow.Node, bool)
	Nodes() []flow.Node
	Edges() []flow.Edge
	OutgoingEdges(id string) []flow.Edge
	IncomingEdges(id string) []flow.Edge
	InDegree(id string) int
	AddNode(n flow.Node) error
	AddEdge(e flow.Edge) (flow.Edge, error)
	RemoveEdge(id string) (flow.Edge, error)
	RemoveNode(id string) ([]flow.Edge, error)
}

// PreviewStore holds the placeholder lines of unattached branches.
// [*preview.Registry] satisfies it.
type PreviewStore interface {
	branch.PreviewLookup
	Remove(id string) bool
}

// Terminal records one synthesized End node.
type Terminal struct {
	NodeID         string `json:"nodeId"`
	DecisionNodeID string `json:"decisionNodeId"`
	BranchID       string `json:"branchId"`
	EdgeID         string `json:"edgeId"`
}

// Terminator closes every unattached decision branch with an auto-generated
// End node.
type Terminator struct {
	g        Graph
	topo     *branch.Topology
	previews PreviewStore
	newID    func() string
}

// NewTerminator creates a terminator attaching through topo. previews may
// be nil.
func NewTerminator(g Graph, topo *branch.Topology, previews PreviewStore) *Terminator {
	return &Terminator{g: g, topo: topo, previews: previews, newID: autoEndID}
}

func autoEndID() string {
	return "end_" + uuid.NewString()[:8]
}

// Pending returns the branches that would receive an End node.
func (t *Terminator) Pending() []branch.Branch {
	return t.topo.AllUnattached()
}

// Terminate synthesizes and attaches one End node per unattached branch.
// Branches that fail are skipped and their errors joined; the nodes created
// for the others stay in place.
func (t *Terminator) Terminate() ([]Terminal, error) {
	var (
		out  []Terminal
		errs []error
	)
	for _, b := range t.topo.AllUnattached() {
		id := t.newID()
		for t.hasNode(id) {
			id = t.newID()
		}
		err := t.g.AddNode(flow.Node{
			ID:            id,
			Kind:          flow.KindEnd,
			Label:         AutoEndLabel,
			AutoGenerated: true,
			Meta:          flow.Metadata{"branchId": b.ID},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("branch %s: %w", b.ID, err))
			continue
		}
		res, err := t.topo.Attach(b, id)
		if err != nil {
			_, _ = t.g.RemoveNode(id)
			errs = append(errs, fmt.Errorf("branch %s: %w", b.ID, err))
			continue
		}
		if res.InvalidatedPreview != "" && t.previews != nil {
			t.previews.Remove(res.InvalidatedPreview)
		}
		out = append(out, Terminal{
			NodeID:         id,
			DecisionNodeID: b.DecisionNodeID,
			BranchID:       b.ID,
			EdgeID:         res.Edge.ID,
		})
	}
	return out, errors.Join(errs...)
}

func (t *Terminator) hasNode(id string) bool {
	_, ok := t.g.Node(id)
	return ok
}
