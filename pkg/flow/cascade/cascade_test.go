package cascade

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/matzehuels/flowgraph/pkg/errors"
	"github.com/matzehuels/flowgraph/pkg/flow"
	"github.com/matzehuels/flowgraph/pkg/flow/branch"
	"github.com/matzehuels/flowgraph/pkg/flow/preview"
	"github.com/matzehuels/flowgraph/pkg/observability"
)

func addNodes(t *testing.T, g *flow.Graph, nodes ...flow.Node) {
	t.Helper()
	for _, n := range nodes {
		require.NoError(t, g.AddNode(n))
	}
}

func connect(t *testing.T, g *flow.Graph, src, dst string) flow.Edge {
	t.Helper()
	e, err := g.AddEdge(flow.Edge{Source: src, Target: dst})
	require.NoError(t, err)
	return e
}

func subtree(t *testing.T) *flow.Graph {
	t.Helper()
	g := flow.New(nil)
	addNodes(t, g,
		flow.Node{ID: "start", Kind: flow.KindStart},
		flow.Node{ID: "p", Kind: flow.KindAction},
		flow.Node{ID: "c1", Kind: flow.KindAction},
		flow.Node{ID: "c2", Kind: flow.KindAction},
	)
	connect(t, g, "start", "p")
	connect(t, g, "p", "c1")
	connect(t, g, "p", "c2")
	connect(t, g, "start", "c2")
	return g
}

func TestDeleteOrphansSoleChildren(t *testing.T) {
	g := subtree(t)
	rec := &observability.Recorder{}
	r := New(g, WithSink(rec))

	out := r.ProcessCascadeDeletion("p")

	assert.True(t, out.Existed)
	assert.False(t, out.Queued)
	assert.Empty(t, out.Errors)
	assert.False(t, g.HasNode("p"))
	assert.Empty(t, g.IncomingEdges("p"))
	assert.Empty(t, g.OutgoingEdges("p"))
	assert.Equal(t, 3, out.Count(ActionRemoveEdge))
	assert.Equal(t, 1, out.Count(ActionRemoveNode))
	assert.Equal(t, []string{"c1"}, out.Orphaned)
	assert.Equal(t, []string{"c1"}, r.Orphans())

	detected := rec.OfType(observability.TypeOrphanDetected)
	require.Len(t, detected, 1)
	assert.Equal(t, "c1", detected[0].NodeID)
	assert.Equal(t, 3, rec.Count(observability.TypeEdgeCleaned))
	assert.Equal(t, 1, rec.Count(observability.TypeNodeCleaned))

	last := out.Actions[len(out.Actions)-1]
	assert.Equal(t, ActionNodeCleaned, last.Kind)
}

func TestDeleteResetsAttachedBranch(t *testing.T) {
	g := flow.New(nil)
	addNodes(t, g,
		flow.Node{ID: "start", Kind: flow.KindStart},
		flow.Node{ID: "d", Kind: flow.KindDecision, Conditions: []flow.Condition{{Expression: "a"}, {Expression: "b"}}},
		flow.Node{ID: "x", Kind: flow.KindAction},
	)
	connect(t, g, "start", "d")
	top := branch.New(g)
	bs, err := top.BranchesOf("d")
	require.NoError(t, err)
	require.Len(t, bs, 3)
	_, err = top.Attach(bs[0], "x")
	require.NoError(t, err)

	rec := &observability.Recorder{}
	out := New(g, WithSink(rec)).ProcessCascadeDeletion("x")

	b, err := top.Branch("d", 0)
	require.NoError(t, err)
	assert.False(t, b.IsAttached)
	assert.Empty(t, b.TargetNodeID)
	assert.Equal(t, 1, out.Count(ActionResetBranch))
	detached := rec.OfType(observability.TypeBranchDetached)
	require.Len(t, detached, 1)
	assert.Equal(t, "d_branch_0", detached[0].BranchID)
}

func TestDeleteDecisionCleansLabelsAndPreviews(t *testing.T) {
	g := flow.New(nil)
	addNodes(t, g,
		flow.Node{ID: "start", Kind: flow.KindStart},
		flow.Node{ID: "d", Kind: flow.KindDecision, Conditions: []flow.Condition{{Expression: "a"}}},
	)
	connect(t, g, "start", "d")
	reg := preview.NewRegistry()
	reg.Put(preview.Line{SourceID: "d", BranchID: branch.ID("d", 0)})
	reg.Put(preview.Line{SourceID: "d", BranchID: branch.ID("d", 1)})
	rec := &observability.Recorder{}

	out := New(g, WithSink(rec), WithPreviews(reg)).ProcessCascadeDeletion("d")

	assert.Zero(t, reg.Len())
	assert.Equal(t, 2, out.Count(ActionRemovePreview))
	assert.Equal(t, 2, out.Count(ActionRemoveLabel))
	assert.Equal(t, 2, rec.Count(observability.TypeLabelRemoved))
}

func TestDeleteMissingNodeIsIdempotent(t *testing.T) {
	g := subtree(t)
	reg := preview.NewRegistry()
	reg.Put(preview.Line{SourceID: "gone", BranchID: branch.ID("gone", 0)})
	rec := &observability.Recorder{}
	r := New(g, WithSink(rec), WithPreviews(reg))

	out := r.ProcessCascadeDeletion("gone", WithKind(flow.KindDecision), Force())

	assert.False(t, out.Existed)
	assert.True(t, out.KindKnown)
	assert.Empty(t, out.Errors)
	assert.Zero(t, reg.Len())
	assert.Equal(t, 1, out.Count(ActionRemoveLabel))
	assert.Equal(t, 1, rec.Count(observability.TypeNodeCleaned))
	assert.Equal(t, 4, g.EdgeCount())
}

func TestOrphanTransitions(t *testing.T) {
	g := flow.New(nil)
	addNodes(t, g,
		flow.Node{ID: "start", Kind: flow.KindStart},
		flow.Node{ID: "a", Kind: flow.KindAction},
	)
	rec := &observability.Recorder{}
	r := New(g, WithSink(rec))

	detected, resolved := r.CheckOrphans()
	assert.Equal(t, []string{"a"}, detected)
	assert.Empty(t, resolved)

	detected, _ = r.CheckOrphans()
	assert.Empty(t, detected, "only transitions are reported")

	connect(t, g, "start", "a")
	_, resolved = r.CheckOrphans()
	assert.Equal(t, []string{"a"}, resolved)
	assert.Equal(t, []string{observability.TypeOrphanDetected, observability.TypeOrphanResolved}, rec.Types())
	assert.False(t, r.IsOrphan("start"))
}

func TestPreviewPreventsOrphan(t *testing.T) {
	g := subtree(t)
	reg := preview.NewRegistry()
	reg.Put(preview.Line{SourceID: "start", BranchID: "start_branch_0", TargetID: "c1"})
	r := New(g, WithPreviews(reg))

	out := r.ProcessCascadeDeletion("p")
	assert.Empty(t, out.Orphaned)
	assert.False(t, r.IsOrphan("c1"))
}

func TestAutoEndRemoval(t *testing.T) {
	build := func() *flow.Graph {
		g := flow.New(nil)
		addNodes(t, g,
			flow.Node{ID: "start", Kind: flow.KindStart},
			flow.Node{ID: "end", Kind: flow.KindEnd, AutoGenerated: true},
		)
		connect(t, g, "start", "end")
		return g
	}

	rec := &observability.Recorder{}
	out := New(build(), WithSink(rec)).ProcessCascadeDeletion("end")
	assert.Equal(t, 1, out.Count(ActionAutoEndRemovable))
	assert.Equal(t, 1, rec.Count(observability.TypeEndNodeAutoRemoved))

	reg := preview.NewRegistry()
	reg.Put(preview.Line{SourceID: "d", BranchID: "d_branch_1", TargetID: "end"})
	rec.Reset()
	out = New(build(), WithSink(rec), WithPreviews(reg)).ProcessCascadeDeletion("end")
	assert.Zero(t, out.Count(ActionAutoEndRemovable))
	assert.Zero(t, rec.Count(observability.TypeEndNodeAutoRemoved))
	assert.Zero(t, reg.Len(), "lines into a deleted node are dropped")
}

// reentrantSink deletes another node the first time a node is cleaned.
type reentrantSink struct {
	r      *Resolver
	target string
	queued bool
	busy   bool
	qlen   int
}

func (s *reentrantSink) Emit(ev observability.Event) {
	if ev.Type != observability.TypeNodeCleaned || s.target == "" {
		return
	}
	s.busy = s.r.IsProcessing()
	_, s.queued = s.r.Delete(s.target)
	s.qlen = s.r.QueueLen()
	s.target = ""
}

func TestDeleteQueuesWhileProcessing(t *testing.T) {
	g := subtree(t)
	sink := &reentrantSink{target: "c1"}
	r := New(g, WithSink(sink))
	sink.r = r

	outs, queued := r.Delete("p")

	assert.False(t, queued)
	assert.True(t, sink.busy)
	assert.True(t, sink.queued)
	assert.Equal(t, 1, sink.qlen)
	require.Len(t, outs, 2)
	assert.Equal(t, "p", outs[0].NodeID)
	assert.Equal(t, "c1", outs[1].NodeID)
	assert.False(t, g.HasNode("c1"))
	assert.False(t, r.IsProcessing())
	assert.Zero(t, r.QueueLen())
	assert.Empty(t, r.Orphans())
}

// hookSink runs fn on the first event of type typ.
type hookSink struct {
	typ string
	fn  func()
}

func (s *hookSink) Emit(ev observability.Event) {
	if ev.Type != s.typ || s.fn == nil {
		return
	}
	fn := s.fn
	s.fn = nil
	fn()
}

func TestDeleteEdgeQueuesWhileProcessing(t *testing.T) {
	g := subtree(t)
	var side flow.Edge
	for _, e := range g.IncomingEdges("c2") {
		if e.Source == "start" {
			side = e
		}
	}
	require.NotEmpty(t, side.ID)

	var (
		mid        EdgeOutcome
		busy       bool
		stillThere bool
		scanned    []string
	)
	sink := &hookSink{typ: observability.TypeEdgeCleaned}
	r := New(g, WithSink(sink))
	sink.fn = func() {
		busy = r.IsProcessing()
		mid = r.DeleteEdge(side.ID)
		scanned, _ = r.CheckOrphans()
		_, stillThere = g.Edge(side.ID)
	}

	outs, queued := r.Delete("p")

	assert.False(t, queued)
	assert.True(t, busy)
	assert.True(t, mid.Queued)
	assert.Equal(t, side.ID, mid.Edge.ID)
	assert.Nil(t, scanned)
	assert.True(t, stillThere, "queued edge deletion must not touch the graph mid-cascade")

	require.Len(t, outs, 1)
	assert.Equal(t, []string{"c1"}, outs[0].Orphaned)
	_, ok := g.Edge(side.ID)
	assert.False(t, ok)
	assert.Equal(t, []string{"c1", "c2"}, r.Orphans())
	assert.False(t, r.IsProcessing())
	assert.Zero(t, r.QueueLen())
}

func TestCleanupAllOrphanNodesQueuesWhileProcessing(t *testing.T) {
	g := subtree(t)
	var cleaned int
	sink := &hookSink{typ: observability.TypeNodeCleaned}
	r := New(g, WithSink(sink))
	sink.fn = func() { cleaned = r.CleanupAllOrphanNodes() }

	r.ProcessCascadeDeletion("p")

	assert.Zero(t, cleaned)
	assert.False(t, g.HasNode("c1"), "queued cleanup ran after the cascade")
	assert.True(t, g.HasNode("c2"))
	assert.Empty(t, r.Orphans())
}

// failingGraph refuses to remove nodes.
type failingGraph struct {
	*flow.Graph
}

func (failingGraph) RemoveNode(string) ([]flow.Edge, error) {
	return nil, errors.New("storage unavailable")
}

func TestStepErrorsDoNotAbort(t *testing.T) {
	g := subtree(t)
	rep := &observability.CollectingReporter{}
	rec := &observability.Recorder{}
	r := New(failingGraph{g}, WithReporter(rep), WithSink(rec))

	out := r.ProcessCascadeDeletion("p")

	require.Len(t, out.Errors, 1)
	require.Len(t, rep.Errors(), 1)
	var se *ferrors.StepError
	require.True(t, errors.As(rep.Errors()[0], &se))
	assert.Equal(t, StepRemoveNode, se.Step)
	assert.Equal(t, "p", se.NodeID)

	assert.Equal(t, 3, out.Count(ActionRemoveEdge), "edges were removed before the failure")
	assert.Equal(t, []string{"p", "c1"}, out.Orphaned, "orphan scan still ran")
	assert.Equal(t, 1, rec.Count(observability.TypeNodeCleaned))
}

func TestCleanupAllOrphanNodes(t *testing.T) {
	g := flow.New(nil)
	addNodes(t, g,
		flow.Node{ID: "start", Kind: flow.KindStart},
		flow.Node{ID: "a", Kind: flow.KindAction},
		flow.Node{ID: "b", Kind: flow.KindAction},
		flow.Node{ID: "c", Kind: flow.KindAction},
		flow.Node{ID: "d", Kind: flow.KindEnd},
	)
	connect(t, g, "start", "a")
	connect(t, g, "c", "d")
	rec := &observability.Recorder{}
	r := New(g, WithSink(rec))

	n := r.CleanupAllOrphanNodes()

	assert.Equal(t, 2, n)
	assert.False(t, g.HasNode("b"))
	assert.False(t, g.HasNode("c"))
	assert.True(t, g.HasNode("d"))
	assert.Equal(t, []string{"d"}, r.Orphans())
	all := rec.OfType(observability.TypeOrphanAllCleaned)
	require.Len(t, all, 1)
	assert.Equal(t, 2, all[0].Data["count"])
}

func TestCleanupNodes(t *testing.T) {
	g := subtree(t)
	r := New(g)
	outs := r.CleanupNodes([]string{"c1", "c2", "missing"})
	require.Len(t, outs, 3)
	assert.False(t, outs[2].Existed)
	assert.Equal(t, 2, g.NodeCount())
}

func TestDeleteEdge(t *testing.T) {
	g := flow.New(nil)
	addNodes(t, g,
		flow.Node{ID: "start", Kind: flow.KindStart},
		flow.Node{ID: "d", Kind: flow.KindDecision},
		flow.Node{ID: "x", Kind: flow.KindAction},
	)
	connect(t, g, "start", "d")
	e, err := g.AddEdge(flow.Edge{Source: "d", SourcePort: flow.BranchPort(0), Target: "x"})
	require.NoError(t, err)
	reg := preview.NewRegistry()
	reg.Put(preview.Line{SourceID: "d", BranchID: branch.ID("d", 0), TargetID: "x"})
	rec := &observability.Recorder{}
	r := New(g, WithSink(rec), WithPreviews(reg))

	out := r.DeleteEdge(e.ID)

	require.NoError(t, out.Err)
	assert.True(t, out.Orphaned)
	assert.Zero(t, reg.Len())
	assert.Equal(t, []string{"x"}, r.Orphans())
	assert.Equal(t, 1, rec.Count(observability.TypeEdgeCleaned))
	assert.Equal(t, 1, rec.Count(observability.TypeBranchDetached))

	out = r.DeleteEdge(e.ID)
	assert.True(t, errors.Is(out.Err, flow.ErrUnknownEdge))
}

func TestDeleteEdgeDropsImportedPreview(t *testing.T) {
	g := flow.New(nil)
	addNodes(t, g,
		flow.Node{ID: "start", Kind: flow.KindStart},
		flow.Node{ID: "d", Kind: flow.KindDecision},
		flow.Node{ID: "x", Kind: flow.KindAction},
	)
	connect(t, g, "start", "d")
	e, err := g.AddEdge(flow.Edge{Source: "d", SourcePort: flow.BranchPort(0), Target: "x"})
	require.NoError(t, err)
	reg := preview.NewRegistry()
	reg.Put(preview.Line{ID: "line-1", SourceID: "d", BranchID: branch.ID("d", 0), TargetID: "x"})
	r := New(g, WithPreviews(reg))

	out := r.DeleteEdge(e.ID)

	require.NoError(t, out.Err)
	assert.Zero(t, reg.Len())
	assert.Equal(t, 1, Outcome{Actions: out.Actions}.Count(ActionRemovePreview))
}
