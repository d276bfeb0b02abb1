// Package cascade resolves the consequences of deleting nodes and edges from
// a flow graph.
//
// A node deletion runs a fixed sequence of steps: remove incident edges,
// drop branch labels and preview lines owned by the node, flag auto-generated
// End nodes as removable, remove the node, re-scan the graph for orphans and
// report one aggregated cleanup. A failing step is reported to the injected
// [observability.ErrorReporter] and the remaining steps still run.
//
// Every structural change (node deletion, edge deletion, orphan scan and
// orphan cleanup) is serialized through one FIFO queue. A request that arrives
// while another is processing is queued and drained by the goroutine that
// owns the current request, in arrival order.
package cascade

import (
	"errors"
	"slices"
	"sync"

	ferrors "github.com/matzehuels/flowgraph/pkg/errors"
	"github.com/matzehuels/flowgraph/pkg/flow"
	"github.com/matzehuels/flowgraph/pkg/flow/branch"
	"github.com/matzehuels/flowgraph/pkg/flow/preview"
	"github.com/matzehuels/flowgraph/pkg/observability"
)

// Step names used in [ferrors.StepError].
const (
	StepRemoveEdges = "remove-edges"
	StepRemoveNode  = "remove-node"
	StepRemoveEdge  = "remove-edge"
)

// Graph is the query and mutation surface the resolver works on.
type Graph interface {
	NodeIDs() []string
	Node(id string) (flow.Node, bool)
	Edge(id string) (flow.Edge, bool)
	IncomingEdges(id string) []flow.Edge
	OutgoingEdges(id string) []flow.Edge
	RemoveEdge(id string) (flow.Edge, error)
	RemoveNode(id string) ([]flow.Edge, error)
}

// Previews is the provisional-line collaborator. [*preview.Registry]
// satisfies it.
type Previews interface {
	HasIncoming(nodeID string) bool
	ByBranch(branchID string) (preview.Line, bool)
	Remove(id string) bool
	RemoveBySource(nodeID string) []preview.Line
	RemoveByTarget(nodeID string) []preview.Line
}

type noPreviews struct{}

func (noPreviews) HasIncoming(string) bool              { return false }
func (noPreviews) ByBranch(string) (preview.Line, bool) { return preview.Line{}, false }
func (noPreviews) Remove(string) bool                   { return false }
func (noPreviews) RemoveBySource(string) []preview.Line { return nil }
func (noPreviews) RemoveByTarget(string) []preview.Line { return nil }

// Option configures a [Resolver].
type Option func(*Resolver)

// WithSink sets the event sink.
func WithSink(s observability.Sink) Option {
	return func(r *Resolver) { r.sink = observability.OrNoop(s) }
}

// WithReporter sets the error reporter receiving failed steps.
func WithReporter(rep observability.ErrorReporter) Option {
	return func(r *Resolver) { r.reporter = observability.ReporterOrNoop(rep) }
}

// WithPreviews sets the preview collaborator used for orphan detection and
// cleanup.
func WithPreviews(p Previews) Option {
	return func(r *Resolver) {
		if p != nil {
			r.previews = p
		}
	}
}

// DeleteOption tunes a single deletion request.
type DeleteOption func(*request)

// WithKind supplies the node kind for a node that may already be gone from
// the graph, so kind-specific bookkeeping still gets cleaned.
func WithKind(k flow.NodeKind) DeleteOption {
	return func(req *request) { req.kind, req.hasKind = k, true }
}

// Force runs the orphan scan even when the node no longer exists.
func Force() DeleteOption {
	return func(req *request) { req.force = true }
}

type op int

const (
	opDeleteNode op = iota
	opDeleteEdge
	opScan
	opCleanupOrphans
)

type request struct {
	op      op
	nodeID  string
	edgeID  string
	kind    flow.NodeKind
	hasKind bool
	force   bool
}

type result struct {
	op       op
	node     Outcome
	edge     EdgeOutcome
	detected []string
	resolved []string
	cleaned  int
}

// Resolver runs cascade deletions against a graph and tracks orphan nodes.
//
// The queue and processing flag are guarded by a mutex; the graph itself is
// only touched by the goroutine draining the queue.
type Resolver struct {
	g        Graph
	sink     observability.Sink
	reporter observability.ErrorReporter
	previews Previews

	mu         sync.Mutex
	queue      []request
	processing bool

	orphans map[string]bool
}

// New creates a resolver over g.
func New(g Graph, opts ...Option) *Resolver {
	r := &Resolver{
		g:        g,
		sink:     observability.NoopSink{},
		reporter: observability.NoopReporter{},
		previews: noPreviews{},
		orphans:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Delete queues a cascade deletion of nodeID. If nothing is running, the
// caller drains the queue, including requests queued by others meanwhile,
// and receives every node outcome in processing order. Otherwise the request
// is queued and queued is true.
func (r *Resolver) Delete(nodeID string, opts ...DeleteOption) (outcomes []Outcome, queued bool) {
	req := request{op: opDeleteNode, nodeID: nodeID}
	for _, opt := range opts {
		opt(&req)
	}
	results, queued := r.submit(req)
	for _, res := range results {
		if res.op == opDeleteNode {
			outcomes = append(outcomes, res.node)
		}
	}
	return outcomes, queued
}

// submit appends req to the queue and drains it unless another caller is
// already draining. The first result belongs to req.
func (r *Resolver) submit(req request) (results []result, queued bool) {
	r.mu.Lock()
	r.queue = append(r.queue, req)
	if r.processing {
		r.mu.Unlock()
		return nil, true
	}
	r.processing = true
	r.mu.Unlock()

	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.processing = false
			r.mu.Unlock()
			return results, false
		}
		next := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()

		results = append(results, r.run(next))
	}
}

func (r *Resolver) run(req request) result {
	res := result{op: req.op}
	switch req.op {
	case opDeleteEdge:
		res.edge = r.deleteEdge(req.edgeID)
	case opScan:
		res.detected, res.resolved = r.scan()
	case opCleanupOrphans:
		res.cleaned = r.cleanupOrphans()
	default:
		res.node = r.process(req)
	}
	return res
}

// ProcessCascadeDeletion deletes nodeID and returns its outcome. When another
// deletion is running the request is queued and the returned outcome only
// has Queued set.
func (r *Resolver) ProcessCascadeDeletion(nodeID string, opts ...DeleteOption) Outcome {
	outs, queued := r.Delete(nodeID, opts...)
	if queued || len(outs) == 0 {
		return Outcome{NodeID: nodeID, Queued: true}
	}
	return outs[0]
}

// CleanupNodes deletes every node in ids with [Force] set.
func (r *Resolver) CleanupNodes(ids []string) []Outcome {
	var out []Outcome
	for _, id := range ids {
		outs, _ := r.Delete(id, Force())
		out = append(out, outs...)
	}
	return out
}

// IsProcessing reports whether a structural change is running.
func (r *Resolver) IsProcessing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processing
}

// QueueLen returns the number of requests waiting behind the running one.
func (r *Resolver) QueueLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

func (r *Resolver) process(req request) Outcome {
	out := Outcome{NodeID: req.nodeID}
	n, exists := r.g.Node(req.nodeID)
	out.Existed = exists
	switch {
	case exists:
		out.Kind, out.KindKnown = n.Kind, true
	case req.hasKind:
		out.Kind, out.KindKnown = req.kind, true
		n = flow.Node{Kind: req.kind}
	}
	n.ID = req.nodeID

	fail := func(step string, err error) {
		se := &ferrors.StepError{Step: step, NodeID: req.nodeID, Err: err}
		out.Errors = append(out.Errors, se)
		r.reporter.Report(se)
	}

	if exists {
		if err := r.removeEdges(req.nodeID, &out); err != nil {
			fail(StepRemoveEdges, err)
		}
	}
	r.cleanupBookkeeping(n, out.KindKnown, &out)
	if n.IsAutoEnd() && !r.previews.HasIncoming(req.nodeID) {
		out.add(Action{Kind: ActionAutoEndRemovable, NodeID: req.nodeID})
		r.sink.Emit(observability.Event{Type: observability.TypeEndNodeAutoRemoved, NodeID: req.nodeID})
	}
	if exists {
		if err := r.removeNode(req.nodeID, &out); err != nil {
			fail(StepRemoveNode, err)
		}
	}
	for _, l := range r.previews.RemoveByTarget(req.nodeID) {
		out.add(Action{Kind: ActionRemovePreview, NodeID: req.nodeID, Detail: l.ID})
	}
	if exists || req.force {
		out.Orphaned, out.Resolved = r.scan()
	}

	out.add(Action{Kind: ActionNodeCleaned, NodeID: req.nodeID})
	data := map[string]any{"actions": len(out.Actions), "errors": len(out.Errors)}
	if out.KindKnown {
		data["kind"] = out.Kind.String()
	}
	r.sink.Emit(observability.Event{Type: observability.TypeNodeCleaned, NodeID: req.nodeID, Data: data})
	return out
}

func (r *Resolver) removeEdges(nodeID string, out *Outcome) error {
	var errs []error
	edges := append(r.g.IncomingEdges(nodeID), r.g.OutgoingEdges(nodeID)...)
	for _, e := range edges {
		if _, ok := r.g.Edge(e.ID); !ok {
			continue
		}
		if _, err := r.g.RemoveEdge(e.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		r.edgeRemoved(e, out)
	}
	return errors.Join(errs...)
}

func (r *Resolver) edgeRemoved(e flow.Edge, out *Outcome) {
	out.add(Action{Kind: ActionRemoveEdge, NodeID: e.Source, EdgeID: e.ID, Detail: e.Target})
	r.sink.Emit(observability.Event{
		Type:   observability.TypeEdgeCleaned,
		EdgeID: e.ID,
		Data:   map[string]any{"source": e.Source, "target": e.Target},
	})
	if idx, ok := e.BranchIndex(); ok {
		if src, exists := r.g.Node(e.Source); exists && src.Kind.IsBranching() {
			bid := branch.ID(e.Source, idx)
			out.add(Action{Kind: ActionResetBranch, NodeID: e.Source, EdgeID: e.ID, BranchID: bid})
			r.sink.Emit(observability.Event{
				Type:     observability.TypeBranchDetached,
				NodeID:   e.Source,
				EdgeID:   e.ID,
				BranchID: bid,
				Data:     map[string]any{"target": e.Target, "index": idx},
			})
		}
	}
}

// cleanupBookkeeping drops branch labels and preview lines owned by the
// node. It tolerates a node that is already gone.
func (r *Resolver) cleanupBookkeeping(n flow.Node, kindKnown bool, out *Outcome) {
	labels := map[string]bool{}
	var order []string
	addLabel := func(id string) {
		if !labels[id] {
			labels[id] = true
			order = append(order, id)
		}
	}
	if kindKnown && n.Kind.IsBranching() {
		for i := 0; i < n.BranchCount(); i++ {
			addLabel(branch.ID(n.ID, i))
		}
	}
	for _, l := range r.previews.RemoveBySource(n.ID) {
		out.add(Action{Kind: ActionRemovePreview, NodeID: n.ID, Detail: l.ID})
		if node, _, ok := branch.ParseID(l.BranchID); ok && node == n.ID {
			addLabel(l.BranchID)
		}
	}
	for _, bid := range order {
		out.add(Action{Kind: ActionRemoveLabel, NodeID: n.ID, BranchID: bid})
		r.sink.Emit(observability.Event{Type: observability.TypeLabelRemoved, NodeID: n.ID, BranchID: bid})
	}
}

func (r *Resolver) removeNode(nodeID string, out *Outcome) error {
	removed, err := r.g.RemoveNode(nodeID)
	if err != nil {
		return err
	}
	for _, e := range removed {
		r.edgeRemoved(e, out)
	}
	out.add(Action{Kind: ActionRemoveNode, NodeID: nodeID})
	return nil
}

func sortedByGraph(ids map[string]bool, order []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range order {
		if ids[id] {
			out = append(out, id)
		}
	}
	return slices.Clip(out)
}
