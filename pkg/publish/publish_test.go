package publish

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/matzehuels/flowgraph/pkg/errors"
	"github.com/matzehuels/flowgraph/pkg/flow"
	"github.com/matzehuels/flowgraph/pkg/flow/branch"
	"github.com/matzehuels/flowgraph/pkg/flow/layout"
	"github.com/matzehuels/flowgraph/pkg/flow/preview"
	"github.com/matzehuels/flowgraph/pkg/observability"
)

func build(t *testing.T, nodes []flow.Node, edges ...flow.Edge) *flow.Graph {
	t.Helper()
	g := flow.New(nil)
	for _, n := range nodes {
		require.NoError(t, g.AddNode(n))
	}
	for _, e := range edges {
		_, err := g.AddEdge(e)
		require.NoError(t, err)
	}
	return g
}

func edge(src, dst string) flow.Edge { return flow.Edge{Source: src, Target: dst} }

func branchEdge(src string, idx int, dst string) flow.Edge {
	return flow.Edge{Source: src, SourcePort: flow.BranchPort(idx), Target: dst}
}

func linear(t *testing.T) *flow.Graph {
	return build(t, []flow.Node{
		{ID: "start", Kind: flow.KindStart},
		{ID: "a", Kind: flow.KindAction},
		{ID: "end", Kind: flow.KindEnd},
	}, edge("start", "a"), edge("a", "end"))
}

// decisionFlow has one decision with a single condition whose default
// branch is left open.
func decisionFlow(t *testing.T) *flow.Graph {
	return build(t, []flow.Node{
		{ID: "start", Kind: flow.KindStart},
		{ID: "d", Kind: flow.KindDecision, Conditions: []flow.Condition{{Expression: "score > 10"}}},
		{ID: "end", Kind: flow.KindEnd},
	}, edge("start", "d"), branchEdge("d", 0, "end"))
}

func codes(issues []Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.Code
	}
	return out
}

func TestSemanticValidFlow(t *testing.T) {
	res := NewSemanticValidator(0).Check(linear(t))
	assert.True(t, res.Valid())
	assert.Empty(t, res.Warnings)
	assert.NoError(t, res.Err())
}

func TestSemanticRules(t *testing.T) {
	tests := []struct {
		name     string
		graph    func(t *testing.T) *flow.Graph
		errors   []string
		warnings []string
	}{
		{
			name:   "empty",
			graph:  func(t *testing.T) *flow.Graph { return flow.New(nil) },
			errors: []string{CodeEmptyFlow},
		},
		{
			name: "no terminals",
			graph: func(t *testing.T) *flow.Graph {
				return build(t, []flow.Node{
					{ID: "a", Kind: flow.KindAction},
					{ID: "b", Kind: flow.KindAction},
				}, edge("a", "b"))
			},
			errors: []string{CodeNoStart, CodeNoEnd},
		},
		{
			name: "misplaced terminals",
			graph: func(t *testing.T) *flow.Graph {
				return build(t, []flow.Node{
					{ID: "start", Kind: flow.KindStart},
					{ID: "a", Kind: flow.KindAction},
					{ID: "end", Kind: flow.KindEnd},
				}, edge("start", "a"), edge("a", "end"), edge("end", "start"))
			},
			errors: []string{CodeStartHasIncoming, CodeEndHasOutgoing},
		},
		{
			name: "isolated and unreachable",
			graph: func(t *testing.T) *flow.Graph {
				g := linear(t)
				require.NoError(t, g.AddNode(flow.Node{ID: "lost", Kind: flow.KindWait}))
				return g
			},
			warnings: []string{CodeIsolatedNode, CodeUnreachable},
		},
		{
			name: "duplicate connection",
			graph: func(t *testing.T) *flow.Graph {
				g := linear(t)
				_, err := g.AddEdge(edge("start", "a"))
				require.NoError(t, err)
				return g
			},
			warnings: []string{CodeDuplicateEdge},
		},
		{
			name: "second start",
			graph: func(t *testing.T) *flow.Graph {
				g := linear(t)
				require.NoError(t, g.AddNode(flow.Node{ID: "start2", Kind: flow.KindStart}))
				_, err := g.AddEdge(edge("start2", "a"))
				require.NoError(t, err)
				return g
			},
			warnings: []string{CodeMultipleStarts},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewSemanticValidator(0).Check(tt.graph(t))
			assert.ElementsMatch(t, tt.errors, codes(res.Errors))
			assert.ElementsMatch(t, tt.warnings, codes(res.Warnings))
		})
	}
}

func TestSemanticConditions(t *testing.T) {
	g := build(t, []flow.Node{
		{ID: "start", Kind: flow.KindStart},
		{ID: "d", Kind: flow.KindDecision, Conditions: []flow.Condition{
			{Expression: "amount > 100 && vip"},
			{Expression: "amount >"},
			{Expression: "  "},
		}},
		{ID: "end", Kind: flow.KindEnd},
	}, edge("start", "d"), branchEdge("d", 0, "end"))

	v := NewSemanticValidator(0)
	for range 2 {
		res := v.Check(g)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, CodeInvalidCondition, res.Errors[0].Code)
		assert.Equal(t, "nodes.d.conditions[1]", res.Errors[0].Path)
		assert.True(t, res.Has(CodeEmptyCondition))
	}
	assert.Len(t, v.cache, 1)
	assert.Len(t, v.bad, 1)
}

func TestSemanticTooManyNodes(t *testing.T) {
	res := NewSemanticValidator(2).Check(linear(t))
	assert.True(t, res.Valid())
	assert.Equal(t, []string{CodeTooManyNodes}, codes(res.Warnings))
}

func TestValidatorCycleBlocksBeforeSemantics(t *testing.T) {
	g := build(t, []flow.Node{
		{ID: "start", Kind: flow.KindStart},
		{ID: "a", Kind: flow.KindAction},
		{ID: "b", Kind: flow.KindAction},
	}, edge("start", "a"), edge("a", "b"), edge("b", "a"))
	rec := &observability.Recorder{}

	rep := NewValidator(WithValidatorSink(rec)).Validate(g)

	assert.True(t, rep.Blocked())
	assert.Equal(t, StepCycles, rep.BlockedAt)
	assert.True(t, rep.Cycles.HasCycles)
	assert.Equal(t, []string{CodeCycle}, codes(rep.Errors))
	assert.False(t, rep.Has(CodeNoEnd), "semantic checks must not run on a cyclic graph")
	assert.Equal(t, 1, rec.Count(observability.TypeCycleDetected))
	assert.True(t, ferrors.Is(rep.Err(), ferrors.ErrCodeCycle))
}

func TestValidatorIncompleteBranch(t *testing.T) {
	rep := NewValidator().Validate(decisionFlow(t))

	assert.Equal(t, StepBranches, rep.BlockedAt)
	require.Len(t, rep.Errors, 1)
	assert.Equal(t, CodeIncompleteBranch, rep.Errors[0].Code)
	assert.Equal(t, "nodes.d.out-1", rep.Errors[0].Path)
	assert.True(t, ferrors.Is(rep.Err(), ferrors.ErrCodeInvalidInput))
}

func TestValidatorPasses(t *testing.T) {
	g := decisionFlow(t)
	require.NoError(t, g.AddNode(flow.Node{ID: "other", Kind: flow.KindEnd}))
	_, err := g.AddEdge(branchEdge("d", 1, "other"))
	require.NoError(t, err)

	rep := NewValidator().Validate(g)
	assert.False(t, rep.Blocked())
	assert.NoError(t, rep.Err())
}

func TestValidatorCustomChecker(t *testing.T) {
	deny := CheckerFunc(func(Graph) *Result {
		r := &Result{}
		r.AddError("", "DENIED", "denied")
		return r
	})
	rep := NewValidator(WithCheckers(deny)).Validate(linear(t))
	assert.Equal(t, StepSemantic, rep.BlockedAt)
	assert.Equal(t, []string{"DENIED"}, codes(rep.Errors))
}

func TestTerminator(t *testing.T) {
	g := build(t, []flow.Node{
		{ID: "start", Kind: flow.KindStart},
		{ID: "d1", Kind: flow.KindDecision, Conditions: []flow.Condition{{Expression: "x"}}},
		{ID: "d2", Kind: flow.KindDecision},
	}, edge("start", "d1"), branchEdge("d1", 0, "d2"))
	reg := preview.NewRegistry()
	reg.Put(preview.Line{SourceID: "d2", BranchID: branch.ID("d2", 0)})
	topo := branch.New(g, branch.WithPreviews(reg))

	term := NewTerminator(g, topo, reg)
	n := 0
	term.newID = func() string { n++; return fmt.Sprintf("auto%d", n) }
	require.Len(t, term.Pending(), 2)

	terms, err := term.Terminate()
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, []Terminal{
		{NodeID: "auto1", DecisionNodeID: "d1", BranchID: "d1_branch_1", EdgeID: terms[0].EdgeID},
		{NodeID: "auto2", DecisionNodeID: "d2", BranchID: "d2_branch_0", EdgeID: terms[1].EdgeID},
	}, terms)
	for _, tm := range terms {
		node, ok := g.Node(tm.NodeID)
		require.True(t, ok)
		assert.True(t, node.IsAutoEnd())
		assert.Equal(t, AutoEndLabel, node.Label)
	}
	assert.Empty(t, term.Pending())
	assert.Zero(t, reg.Len())
}

func TestPublishAutoTerminates(t *testing.T) {
	g := decisionFlow(t)
	reg := preview.NewRegistry()
	reg.Put(preview.Line{SourceID: "d", BranchID: branch.ID("d", 1)})
	rec := &observability.Recorder{}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	p := NewPublisher(g, DefaultOptions(), WithSink(rec), WithPreviews(reg), WithClock(func() time.Time { return at }))
	out := p.Publish(context.Background())

	require.True(t, out.Success, "issues: %v", out.Issues.Errors)
	assert.Equal(t, StateCompleted, out.State)
	assert.Equal(t, StateCompleted, p.State())
	assert.Equal(t, []Step{StepTerminate, StepCycles, StepSemantic, StepBranches, StepLayout, StepConfig}, out.Steps)
	require.Len(t, out.Terminals, 1)
	assert.Equal(t, "d_branch_1", out.Terminals[0].BranchID)
	assert.True(t, out.Issues.Has(CodeAutoGeneratedEnds))
	assert.Zero(t, reg.Len())
	assert.NoError(t, out.Err())

	require.NotNil(t, out.Config)
	assert.Equal(t, ConfigVersion, out.Config.Version)
	assert.Equal(t, at, out.Config.Timestamp)
	assert.Equal(t, 4, out.Config.Metadata.NodeCount)
	assert.Equal(t, 3, out.Config.Metadata.EdgeCount)
	assert.Equal(t, 1, out.Config.Metadata.AutoGeneratedEndNodes)
	assert.True(t, out.Config.Metadata.HasEndNodes)
	for _, n := range out.Config.Nodes {
		assert.NotNil(t, n.Position, n.ID)
	}

	assert.Equal(t, 6, rec.Count(observability.TypePublishStep))
	assert.Equal(t, 1, rec.Count(observability.TypePreviewInvalidated))
	var states []any
	for _, ev := range rec.OfType(observability.TypePublishState) {
		states = append(states, ev.Data["to"])
	}
	assert.Equal(t, []any{"running", "processing", "publishing", "completed"}, states)

	hist := p.History()
	require.Len(t, hist, 1)
	assert.Equal(t, out.ID, hist[0].ID)
	assert.True(t, hist[0].Success)
}

func TestPublishBlockedByOpenBranch(t *testing.T) {
	opts := DefaultOptions()
	opts.AutoTerminate = false
	p := NewPublisher(decisionFlow(t), opts)

	out := p.Publish(context.Background())

	assert.False(t, out.Success)
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, []Step{StepTerminate, StepCycles, StepSemantic, StepBranches}, out.Steps)
	assert.True(t, out.Issues.Has(CodeIncompleteBranch))
	assert.Nil(t, out.Config)
	assert.Error(t, out.Err())
}

func TestPublishBlockedByCycle(t *testing.T) {
	g := build(t, []flow.Node{
		{ID: "start", Kind: flow.KindStart},
		{ID: "a", Kind: flow.KindAction},
		{ID: "b", Kind: flow.KindAction},
		{ID: "end", Kind: flow.KindEnd},
	}, edge("start", "a"), edge("a", "b"), edge("b", "a"), edge("b", "end"))

	out := NewPublisher(g, DefaultOptions()).Publish(context.Background())

	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, []Step{StepTerminate, StepCycles}, out.Steps)
	require.Len(t, out.Cycles.Cycles, 1)
	assert.Equal(t, "high", string(out.Cycles.Cycles[0].Severity))
	assert.True(t, ferrors.Is(out.Err(), ferrors.ErrCodeCycle))
}

func TestPublishCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewPublisher(linear(t), DefaultOptions())

	out := p.Publish(ctx)

	assert.Equal(t, StateCancelled, out.State)
	assert.Empty(t, out.Steps)
	assert.True(t, out.Issues.Has(CodeCancelled))
}

// cancelOnStep cancels the run's context when the named step starts.
type cancelOnStep struct {
	step   Step
	cancel context.CancelFunc
}

func (s cancelOnStep) Emit(ev observability.Event) {
	if ev.Type == observability.TypePublishStep && ev.Data["step"] == string(s.step) {
		s.cancel()
	}
}

func TestPublishCancelledRemovesAutoEnds(t *testing.T) {
	g := decisionFlow(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPublisher(g, DefaultOptions(), WithSink(cancelOnStep{step: StepTerminate, cancel: cancel}))

	out := p.Publish(ctx)

	assert.Equal(t, StateCancelled, out.State)
	assert.Equal(t, []Step{StepTerminate}, out.Steps)
	assert.Empty(t, out.Terminals)
	assert.Equal(t, 3, g.NodeCount())
	for _, n := range g.Nodes() {
		assert.False(t, n.AutoGenerated, n.ID)
	}
	open := branch.New(g).AllUnattached()
	require.Len(t, open, 1)
	assert.Equal(t, "d_branch_1", open[0].ID)
}

func TestPublishHistoryBounded(t *testing.T) {
	opts := DefaultOptions()
	opts.HistoryLimit = 2
	p := NewPublisher(linear(t), opts)

	var ids []string
	for range 3 {
		out := p.Publish(context.Background())
		require.True(t, out.Success)
		ids = append(ids, out.ID)
	}

	hist := p.History()
	require.Len(t, hist, 2)
	assert.Equal(t, ids[1:], []string{hist[0].ID, hist[1].ID})

	p.ClearHistory()
	assert.Empty(t, p.History())
}

func TestBuildConfigBranchIDs(t *testing.T) {
	g := decisionFlow(t)
	cfg := BuildConfig(g, layout.Result{Skipped: true}, time.Time{})

	require.Len(t, cfg.Edges, 2)
	assert.Empty(t, cfg.Edges[0].BranchID)
	assert.Equal(t, "d_branch_0", cfg.Edges[1].BranchID)
	for _, n := range cfg.Nodes {
		assert.Nil(t, n.Position)
	}
}
