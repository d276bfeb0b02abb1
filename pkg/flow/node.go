package flow

import (
	"fmt"
	"strconv"
	"strings"
)

// Metadata stores arbitrary key-value pairs attached to nodes, edges or the
// graph. Metadata maps are never nil once they are stored in a [Graph].
type Metadata map[string]any

// NodeKind is the closed set of node types a flow chart can contain.
type NodeKind int

const (
	// KindStart is the entry node of a flow. It is never an orphan.
	KindStart NodeKind = iota
	// KindDecision is a branching node with one output port per condition
	// plus a synthesized default branch.
	KindDecision
	// KindAction performs a marketing action (send message, grant coupon...).
	KindAction
	// KindWait delays the flow.
	KindWait
	// KindEnd terminates a flow path.
	KindEnd
)

var kindNames = [...]string{
	KindStart:    "start",
	KindDecision: "decision",
	KindAction:   "action",
	KindWait:     "wait",
	KindEnd:      "end",
}

// kindAliases maps the names used by external editors onto kinds.
var kindAliases = map[string]NodeKind{
	"start":         KindStart,
	"input":         KindStart,
	"decision":      KindDecision,
	"decision_node": KindDecision,
	"split":         KindDecision,
	"action":        KindAction,
	"processing":    KindAction,
	"wait":          KindWait,
	"delay":         KindWait,
	"end":           KindEnd,
	"output":        KindEnd,
}

// String returns the canonical lowercase name of the kind.
func (k NodeKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// IsBranching reports whether nodes of this kind own branches.
func (k NodeKind) IsBranching() bool { return k == KindDecision }

// Valid reports whether k is one of the declared kinds.
func (k NodeKind) Valid() bool { return k >= KindStart && k <= KindEnd }

// ParseKind converts a kind name (case-insensitive, aliases accepted) into
// a NodeKind.
func ParseKind(s string) (NodeKind, error) {
	if k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k NodeKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *NodeKind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ConditionTypeDefault marks the synthesized else-branch of a decision node.
const ConditionTypeDefault = "default"

// Default branch labels.
const (
	DefaultBranchLabel   = "默认分支"
	DefaultBranchLabelEN = "Default branch"
)

// Condition is one user-defined branch condition of a decision node.
type Condition struct {
	Type       string `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty"`
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty" toml:"expression,omitempty"`
	Label      string `json:"label,omitempty" yaml:"label,omitempty" toml:"label,omitempty"`
}

// IsDefault reports whether c is the synthesized default condition.
func (c Condition) IsDefault() bool { return c.Type == ConditionTypeDefault }

// DefaultCondition returns the condition carried by every default branch.
func DefaultCondition() Condition {
	return Condition{Type: ConditionTypeDefault, Expression: "else"}
}

// Node is a vertex of the flow chart.
//
// Nodes are owned by a [Graph]; accessors hand out copies so callers keep
// node IDs rather than references.
type Node struct {
	ID    string   // Unique identifier
	Kind  NodeKind // Node type
	Label string   // Display label (optional)

	// Conditions are the user branch conditions of a decision node, in
	// declaration order. Ignored for other kinds.
	Conditions []Condition

	// AutoGenerated marks End nodes synthesized for unterminated branches.
	AutoGenerated bool

	// FlowID groups nodes into named sub-flows for impact analysis.
	FlowID string

	Meta Metadata
}

// BranchCount returns the number of output branches of the node:
// len(Conditions)+1 for decision nodes and 0 for every other kind.
func (n Node) BranchCount() int {
	if !n.Kind.IsBranching() {
		return 0
	}
	return len(n.Conditions) + 1
}

// IsAutoEnd reports whether n is an auto-synthesized End node.
func (n Node) IsAutoEnd() bool { return n.Kind == KindEnd && n.AutoGenerated }

func (n Node) clone() Node {
	c := n
	if n.Conditions != nil {
		c.Conditions = append([]Condition(nil), n.Conditions...)
	}
	c.Meta = cloneMeta(n.Meta)
	return c
}

func cloneMeta(m Metadata) Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
