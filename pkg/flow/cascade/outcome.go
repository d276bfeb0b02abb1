package cascade

import "github.com/matzehuels/flowgraph/pkg/flow"

// ActionKind names a single cleanup action.
type ActionKind string

const (
	ActionRemoveEdge       ActionKind = "remove-edge"
	ActionResetBranch      ActionKind = "reset-branch"
	ActionRemoveLabel      ActionKind = "remove-label"
	ActionRemovePreview    ActionKind = "remove-preview"
	ActionAutoEndRemovable ActionKind = "auto-end-removable"
	ActionRemoveNode       ActionKind = "remove-node"
	ActionNodeCleaned      ActionKind = "node-cleaned"
)

// Action is one derived cleanup step.
type Action struct {
	Kind     ActionKind `json:"kind"`
	NodeID   string     `json:"nodeId,omitempty"`
	EdgeID   string     `json:"edgeId,omitempty"`
	BranchID string     `json:"branchId,omitempty"`
	Detail   string     `json:"detail,omitempty"`
}

// Outcome reports everything a single deletion did.
type Outcome struct {
	NodeID    string
	Kind      flow.NodeKind
	KindKnown bool
	Existed   bool
	Queued    bool // the request waits behind a running deletion

	Actions  []Action
	Orphaned []string // nodes that became orphans
	Resolved []string // nodes that stopped being orphans
	Errors   []error  // failed steps, also sent to the reporter
}

func (o *Outcome) add(a Action) { o.Actions = append(o.Actions, a) }

// Count returns the number of actions of kind k.
func (o Outcome) Count(k ActionKind) int {
	n := 0
	for _, a := range o.Actions {
		if a.Kind == k {
			n++
		}
	}
	return n
}

// EdgeOutcome reports the result of [Resolver.DeleteEdge].
type EdgeOutcome struct {
	Edge     flow.Edge
	Actions  []Action
	Orphaned bool // the former target became an orphan
	Queued   bool // the deletion waits behind a running change
	Err      error
}
