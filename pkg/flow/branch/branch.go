// Package branch derives the branches of decision nodes from a flow graph and
// attaches or detaches them.
//
// Branches are never stored. A decision node with n conditions has n+1
// branches: one per condition in declaration order and a trailing default
// branch. A branch is attached exactly when the graph holds an edge leaving
// its port, so the attachment state can never drift from the edge set.
package branch

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	ferrors "github.com/matzehuels/flowgraph/pkg/errors"
	"github.com/matzehuels/flowgraph/pkg/flow"
	"github.com/matzehuels/flowgraph/pkg/flow/preview"
	"github.com/matzehuels/flowgraph/pkg/observability"
)

var (
	// ErrNotAttached is returned by [Topology.Detach] for a branch without an edge.
	ErrNotAttached = errors.New("branch not attached")

	// ErrStaleBranch is returned when a branch value no longer matches the
	// decision node it was derived from.
	ErrStaleBranch = errors.New("branch no longer exists")
)

// Graph is the query and mutation surface the topology needs.
type Graph interface {
	Node(id string) (flow.Node, bool)
	NodeIDs() []string
	OutgoingEdges(id string) []flow.Edge
	AddEdge(e flow.Edge) (flow.Edge, error)
	RemoveEdge(id string) (flow.Edge, error)
}

// PreviewLookup answers whether a branch currently has a placeholder line.
// [*preview.Registry] satisfies it.
type PreviewLookup interface {
	ByBranch(branchID string) (preview.Line, bool)
}

// Branch is one outgoing path of a decision node.
type Branch struct {
	ID             string         `json:"id"`
	DecisionNodeID string         `json:"decisionNodeId"`
	Index          int            `json:"index"`
	Condition      flow.Condition `json:"condition"`
	Label          string         `json:"label"`
	Port           string         `json:"port"`
	IsAttached     bool           `json:"isAttached"`
	TargetNodeID   string         `json:"targetNodeId,omitempty"`
	EdgeID         string         `json:"edgeId,omitempty"`
}

// IsDefault reports whether b is the synthesized else-branch.
func (b Branch) IsDefault() bool { return b.Condition.IsDefault() }

// ID returns the branch ID "<nodeID>_branch_<index>".
func ID(nodeID string, index int) string {
	return nodeID + "_branch_" + strconv.Itoa(index)
}

// ParseID splits a branch ID into its decision node ID and index.
func ParseID(id string) (nodeID string, index int, ok bool) {
	i := strings.LastIndex(id, "_branch_")
	if i <= 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[i+len("_branch_"):])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return id[:i], n, true
}

// Label returns the display label of condition i: its own label, or
// "分支<i+1>".
func Label(c flow.Condition, i int) string {
	if c.Label != "" {
		return c.Label
	}
	return "分支" + strconv.Itoa(i+1)
}

// Option configures a [Topology].
type Option func(*Topology)

// WithSink sets the event sink.
func WithSink(s observability.Sink) Option {
	return func(t *Topology) { t.sink = observability.OrNoop(s) }
}

// WithPreviews sets the preview lookup consulted by [Topology.Attach].
func WithPreviews(p PreviewLookup) Option {
	return func(t *Topology) { t.previews = p }
}

// Topology derives and mutates branches over a graph.
type Topology struct {
	g        Graph
	sink     observability.Sink
	previews PreviewLookup
}

// New creates a topology over g.
func New(g Graph, opts ...Option) *Topology {
	t := &Topology{g: g, sink: observability.NoopSink{}}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// BranchesOf returns the len(conditions)+1 branches of a decision node in
// index order; the last one is the default branch.
func (t *Topology) BranchesOf(nodeID string) ([]Branch, error) {
	n, err := t.decision(nodeID)
	if err != nil {
		return nil, err
	}
	attached := make(map[int]flow.Edge)
	for _, e := range t.g.OutgoingEdges(nodeID) {
		if idx, ok := e.BranchIndex(); ok {
			if _, dup := attached[idx]; !dup {
				attached[idx] = e
			}
		}
	}

	out := make([]Branch, 0, n.BranchCount())
	for i := 0; i < n.BranchCount(); i++ {
		b := Branch{
			ID:             ID(nodeID, i),
			DecisionNodeID: nodeID,
			Index:          i,
			Port:           flow.BranchPort(i),
		}
		if i < len(n.Conditions) {
			b.Condition = n.Conditions[i]
			b.Label = Label(b.Condition, i)
		} else {
			b.Condition = flow.DefaultCondition()
			b.Label = flow.DefaultBranchLabel
		}
		if e, ok := attached[i]; ok {
			b.IsAttached = true
			b.TargetNodeID = e.Target
			b.EdgeID = e.ID
		}
		out = append(out, b)
	}
	return out, nil
}

// Branch returns a single branch of a decision node.
func (t *Topology) Branch(nodeID string, index int) (Branch, error) {
	bs, err := t.BranchesOf(nodeID)
	if err != nil {
		return Branch{}, err
	}
	if index < 0 || index >= len(bs) {
		return Branch{}, fmt.Errorf("%w: %s", ErrStaleBranch, ID(nodeID, index))
	}
	return bs[index], nil
}

// Unattached returns the branches of nodeID that have no edge.
func (t *Topology) Unattached(nodeID string) ([]Branch, error) {
	bs, err := t.BranchesOf(nodeID)
	if err != nil {
		return nil, err
	}
	var out []Branch
	for _, b := range bs {
		if !b.IsAttached {
			out = append(out, b)
		}
	}
	return out, nil
}

// AllUnattached returns the unattached branches of every decision node in
// node order.
func (t *Topology) AllUnattached() []Branch {
	var out []Branch
	for _, id := range t.g.NodeIDs() {
		bs, err := t.Unattached(id)
		if err != nil {
			continue
		}
		out = append(out, bs...)
	}
	return out
}

// AttachResult describes the outcome of [Topology.Attach].
type AttachResult struct {
	Branch Branch    // the branch after attachment
	Edge   flow.Edge // the created edge

	// InvalidatedPreview is the placeholder ID the caller must discard, or
	// empty when the branch had none.
	InvalidatedPreview string
}

// Attach connects a branch to targetID. The branch must still exist on its
// decision node and must not be attached already.
//
// A placeholder line held for the branch is not removed here; its ID is
// returned in the result and announced with a preview:invalidated event.
func (t *Topology) Attach(b Branch, targetID string) (AttachResult, error) {
	cur, err := t.Branch(b.DecisionNodeID, b.Index)
	if err != nil {
		return AttachResult{}, err
	}
	e, err := t.g.AddEdge(flow.Edge{
		Source:     b.DecisionNodeID,
		SourcePort: flow.BranchPort(b.Index),
		Target:     targetID,
		TargetPort: flow.PortIn,
		Meta:       flow.Metadata{"branchId": cur.ID},
	})
	if err != nil {
		return AttachResult{}, err
	}

	cur.IsAttached = true
	cur.TargetNodeID = targetID
	cur.EdgeID = e.ID
	res := AttachResult{Branch: cur, Edge: e}

	if t.previews != nil {
		if l, ok := t.previews.ByBranch(cur.ID); ok {
			res.InvalidatedPreview = l.ID
			t.sink.Emit(observability.Event{
				Type:     observability.TypePreviewInvalidated,
				NodeID:   cur.DecisionNodeID,
				BranchID: cur.ID,
				Data:     map[string]any{"preview": l.ID},
			})
		}
	}
	t.sink.Emit(observability.Event{
		Type:     observability.TypeBranchAttached,
		NodeID:   cur.DecisionNodeID,
		EdgeID:   e.ID,
		BranchID: cur.ID,
		Data:     map[string]any{"target": targetID, "index": cur.Index},
	})
	return res, nil
}

// Detach removes the edge of an attached branch and returns it.
func (t *Topology) Detach(b Branch) (flow.Edge, error) {
	cur, err := t.Branch(b.DecisionNodeID, b.Index)
	if err != nil {
		return flow.Edge{}, err
	}
	if !cur.IsAttached {
		return flow.Edge{}, fmt.Errorf("%w: %s", ErrNotAttached, cur.ID)
	}
	e, err := t.g.RemoveEdge(cur.EdgeID)
	if err != nil {
		return flow.Edge{}, err
	}
	t.sink.Emit(observability.Event{
		Type:     observability.TypeBranchDetached,
		NodeID:   cur.DecisionNodeID,
		EdgeID:   e.ID,
		BranchID: cur.ID,
		Data:     map[string]any{"target": e.Target, "index": cur.Index},
	})
	return e, nil
}

// Check verifies the branch invariants of a decision node: every outgoing
// edge leaves a branch port below the branch count, and no two edges share
// a port. All violations are joined into one STRUCTURAL_ERROR.
func (t *Topology) Check(nodeID string) error {
	n, err := t.decision(nodeID)
	if err != nil {
		return err
	}
	var errs []error
	used := make(map[int]string)
	for _, e := range t.g.OutgoingEdges(nodeID) {
		idx, ok := e.BranchIndex()
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("edge %s leaves port %q, not a branch port", e.ID, e.SourcePort))
		case idx >= n.BranchCount():
			errs = append(errs, fmt.Errorf("edge %s: %w: %d >= %d", e.ID, flow.ErrBranchOutOfRange, idx, n.BranchCount()))
		case used[idx] != "":
			errs = append(errs, fmt.Errorf("edges %s and %s: %w: %s", used[idx], e.ID, flow.ErrBranchPortTaken, flow.BranchPort(idx)))
		default:
			used[idx] = e.ID
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return ferrors.Wrap(ferrors.ErrCodeStructural, errors.Join(errs...), "decision node %s", nodeID)
}

func (t *Topology) decision(nodeID string) (flow.Node, error) {
	n, ok := t.g.Node(nodeID)
	if !ok {
		return flow.Node{}, fmt.Errorf("%w: %s", flow.ErrUnknownNode, nodeID)
	}
	if !n.Kind.IsBranching() {
		return flow.Node{}, ferrors.Wrap(ferrors.ErrCodeStructural, flow.ErrNotADecisionNode,
			"node %s is %s", nodeID, n.Kind)
	}
	return n, nil
}
