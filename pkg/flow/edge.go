package flow

import (
	"strconv"
	"strings"
)

// Port names.
const (
	PortOut = "out"
	PortIn  = "in"
)

// BranchPort returns the output port of branch index i, e.g. "out-0".
func BranchPort(i int) string {
	return PortOut + "-" + strconv.Itoa(i)
}

// ParseBranchPort extracts the branch index from a branch output port.
// Both "out-<i>" and "out_<i>" are accepted. It returns false for the plain
// "out" port and for anything that is not an output port.
func ParseBranchPort(port string) (int, bool) {
	rest, ok := strings.CutPrefix(port, PortOut)
	if !ok || len(rest) < 2 || (rest[0] != '-' && rest[0] != '_') {
		return 0, false
	}
	i, err := strconv.Atoi(rest[1:])
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// IsOutputPort reports whether port is "out" or a branch output port.
func IsOutputPort(port string) bool {
	if port == PortOut {
		return true
	}
	_, ok := ParseBranchPort(port)
	return ok
}

// Edge is a directed connection from an output port of Source to the input
// port of Target.
type Edge struct {
	ID         string // Unique identifier (generated when empty)
	Source     string // Source node ID
	SourcePort string // "out" or "out-<i>"
	Target     string // Target node ID
	TargetPort string // always "in"
	Meta       Metadata
}

// BranchIndex returns the branch index encoded in the source port, if any.
func (e Edge) BranchIndex() (int, bool) { return ParseBranchPort(e.SourcePort) }

func (e Edge) clone() Edge {
	c := e
	c.Meta = cloneMeta(e.Meta)
	return c
}
