// Package flow provides the graph model of a visual marketing-automation flow
// chart: typed nodes connected by port-addressed directed edges.
//
// # Overview
//
// A flow chart starts at a [KindStart] node and ends at one or more [KindEnd]
// nodes. [KindDecision] nodes fork the flow: each user condition opens one
// branch and a default ("else") branch is always appended, so a decision
// node with n conditions has n+1 output ports "out-0" ... "out-n". Every other
// kind leaves through the single "out" port. All edges enter through "in".
//
// # Basic Usage
//
//	g := flow.New(nil)
//	g.AddNode(flow.Node{ID: "start", Kind: flow.KindStart})
//	g.AddNode(flow.Node{ID: "vip", Kind: flow.KindDecision,
//		Conditions: []flow.Condition{{Expression: "user.level > 3"}}})
//	g.AddEdge(flow.Edge{Source: "start", Target: "vip"})
//
// [Graph] is the single authority over nodes and edges. Accessors return
// copies, so the cycle detector, branch topology, layout planner and cascade
// resolver in the sub-packages hold node IDs only and re-read the graph when
// they need current state.
//
// # Errors
//
// Structural violations ([ErrSelfLoop], [ErrPortDirection],
// [ErrBranchPortTaken], [ErrBranchOutOfRange], [ErrBranchInUse]) are wrapped
// in a STRUCTURAL_ERROR from package errors; use [IsStructural] or
// errors.Is with the sentinel. Lookup failures wrap [ErrUnknownNode] and
// [ErrUnknownEdge].
//
// # Related Packages
//
//   - cycles: cycle detection with severity and impact analysis
//   - branch: derived branch view of decision nodes
//   - layout: layered coordinates for rendering
//   - cascade: queued deletion with orphan tracking
//   - preview: provisional branch placeholder lines
package flow
