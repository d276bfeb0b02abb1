package cascade

import (
	"fmt"

	ferrors "github.com/matzehuels/flowgraph/pkg/errors"
	"github.com/matzehuels/flowgraph/pkg/flow"
	"github.com/matzehuels/flowgraph/pkg/flow/branch"
	"github.com/matzehuels/flowgraph/pkg/observability"
)

// IsOrphan reports whether id is a non-Start node with no incoming edge and
// no incoming preview line. Missing nodes are not orphans.
func (r *Resolver) IsOrphan(id string) bool {
	n, ok := r.g.Node(id)
	if !ok || n.Kind == flow.KindStart {
		return false
	}
	return len(r.g.IncomingEdges(id)) == 0 && !r.previews.HasIncoming(id)
}

// CheckOrphans recomputes the orphan status of every node and emits
// orphan:detected and orphan:resolved for nodes whose status changed. While
// another change is processing the scan is queued behind it and both results
// are nil.
func (r *Resolver) CheckOrphans() (detected, resolved []string) {
	results, queued := r.submit(request{op: opScan})
	if queued {
		return nil, nil
	}
	return results[0].detected, results[0].resolved
}

// Orphans returns the current orphan set in graph order.
func (r *Resolver) Orphans() []string {
	return sortedByGraph(r.orphans, r.g.NodeIDs())
}

func (r *Resolver) scan() (detected, resolved []string) {
	ids := r.g.NodeIDs()
	present := make(map[string]bool, len(ids))
	for _, id := range ids {
		present[id] = true
		if r.setOrphan(id, r.IsOrphan(id)) {
			if r.orphans[id] {
				detected = append(detected, id)
			} else {
				resolved = append(resolved, id)
			}
		}
	}
	for id := range r.orphans {
		if !present[id] {
			delete(r.orphans, id)
		}
	}
	return detected, resolved
}

// setOrphan records the status of id and emits an event on change. It
// reports whether the status changed.
func (r *Resolver) setOrphan(id string, orphan bool) bool {
	if r.orphans[id] == orphan {
		return false
	}
	typ := observability.TypeOrphanResolved
	if orphan {
		r.orphans[id] = true
		typ = observability.TypeOrphanDetected
	} else {
		delete(r.orphans, id)
	}
	data := map[string]any{}
	if n, ok := r.g.Node(id); ok {
		data["kind"] = n.Kind.String()
	}
	r.sink.Emit(observability.Event{Type: typ, NodeID: id, Data: data})
	return true
}

// CleanupAllOrphanNodes recomputes the orphan set, deletes every orphan and
// returns how many were deleted. Nodes that become orphans because of these
// deletions are reported but kept. While another change is processing the
// cleanup is queued behind it and 0 is returned.
func (r *Resolver) CleanupAllOrphanNodes() int {
	results, queued := r.submit(request{op: opCleanupOrphans})
	if queued {
		return 0
	}
	return results[0].cleaned
}

func (r *Resolver) cleanupOrphans() int {
	r.scan()
	count := 0
	for _, id := range r.Orphans() {
		if out := r.process(request{op: opDeleteNode, nodeID: id}); out.Existed {
			count++
		}
	}
	r.sink.Emit(observability.Event{
		Type: observability.TypeOrphanAllCleaned,
		Data: map[string]any{"count": count},
	})
	return count
}

// DeleteEdge removes a single edge, resets the branch it occupied, drops a
// stale preview line for that branch and re-evaluates the former target.
// While another change is processing the deletion is queued and the outcome
// only has Queued set.
func (r *Resolver) DeleteEdge(edgeID string) EdgeOutcome {
	results, queued := r.submit(request{op: opDeleteEdge, edgeID: edgeID})
	if queued {
		return EdgeOutcome{Edge: flow.Edge{ID: edgeID}, Queued: true}
	}
	return results[0].edge
}

func (r *Resolver) deleteEdge(edgeID string) EdgeOutcome {
	var out EdgeOutcome
	e, err := r.g.RemoveEdge(edgeID)
	if err != nil {
		out.Err = &ferrors.StepError{Step: StepRemoveEdge, Err: err}
		r.reporter.Report(out.Err)
		return out
	}
	out.Edge = e

	var o Outcome
	r.edgeRemoved(e, &o)
	if idx, ok := e.BranchIndex(); ok {
		bid := branch.ID(e.Source, idx)
		if l, ok := r.previews.ByBranch(bid); ok && l.TargetID == e.Target {
			r.previews.Remove(l.ID)
			o.add(Action{Kind: ActionRemovePreview, NodeID: e.Source, BranchID: bid, Detail: l.ID})
		}
	}
	out.Actions = o.Actions
	r.setOrphan(e.Target, r.IsOrphan(e.Target))
	out.Orphaned = r.orphans[e.Target]
	return out
}

// String renders an action for logs and CLI output.
func (a Action) String() string {
	switch {
	case a.EdgeID != "":
		return fmt.Sprintf("%s %s (%s)", a.Kind, a.EdgeID, a.NodeID)
	case a.BranchID != "":
		return fmt.Sprintf("%s %s", a.Kind, a.BranchID)
	case a.Detail != "":
		return fmt.Sprintf("%s %s (%s)", a.Kind, a.NodeID, a.Detail)
	}
	return fmt.Sprintf("%s %s", a.Kind, a.NodeID)
}
