// Package preview tracks provisional branch lines: placeholders drawn from
// an unattached decision branch before the user commits a connection.
//
// Previews are not edges. The graph never sees them; the cascade resolver
// only asks whether a node still has an incoming preview when it decides
// whether the node is an orphan.
package preview

import (
	"slices"
	"sync"
)

// IDFor returns the placeholder ID used for a branch, "preview_<branchID>".
func IDFor(branchID string) string { return "preview_" + branchID }

// Line is one provisional connection.
type Line struct {
	ID       string
	SourceID string // decision node owning the branch
	BranchID string
	TargetID string // empty while the line points at nothing
	Label    string
}

// Registry is an in-memory set of preview lines. It is safe for concurrent
// use.
type Registry struct {
	mu       sync.RWMutex
	lines    map[string]Line
	byBranch map[string]string // branch ID -> line ID
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{lines: make(map[string]Line), byBranch: make(map[string]string)}
}

// Put stores or replaces a line. An empty ID is derived from the branch ID.
// A branch owns at most one line, so a line for a branch that already has
// one under another ID replaces it.
func (r *Registry) Put(l Line) Line {
	if l.ID == "" {
		l.ID = IDFor(l.BranchID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if l.BranchID != "" {
		if prev, ok := r.byBranch[l.BranchID]; ok && prev != l.ID {
			r.removeLocked(prev)
		}
	}
	if old, ok := r.lines[l.ID]; ok {
		if old.BranchID != l.BranchID && r.byBranch[old.BranchID] == l.ID {
			delete(r.byBranch, old.BranchID)
		}
	} else {
		r.order = append(r.order, l.ID)
	}
	r.lines[l.ID] = l
	if l.BranchID != "" {
		r.byBranch[l.BranchID] = l.ID
	}
	return l
}

// Get returns the line with the given ID.
func (r *Registry) Get(id string) (Line, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.lines[id]
	return l, ok
}

// ByBranch returns the line of a branch, if one exists.
func (r *Registry) ByBranch(branchID string) (Line, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byBranch[branchID]
	if !ok {
		return Line{}, false
	}
	return r.lines[id], true
}

// Remove deletes a line and reports whether it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(id)
}

// RemoveBySource deletes every line leaving a node and returns them.
func (r *Registry) RemoveBySource(nodeID string) []Line {
	return r.removeWhere(func(l Line) bool { return l.SourceID == nodeID })
}

// RemoveByTarget deletes every line pointing at a node and returns them.
func (r *Registry) RemoveByTarget(nodeID string) []Line {
	return r.removeWhere(func(l Line) bool { return l.TargetID == nodeID })
}

// HasIncoming reports whether any line points at nodeID. It satisfies the
// preview lookup used for orphan detection.
func (r *Registry) HasIncoming(nodeID string) bool {
	return len(r.Incoming(nodeID)) > 0
}

// Incoming returns the lines pointing at nodeID in insertion order.
func (r *Registry) Incoming(nodeID string) []Line {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Line
	for _, id := range r.order {
		if l := r.lines[id]; l.TargetID != "" && l.TargetID == nodeID {
			out = append(out, l)
		}
	}
	return out
}

// Lines returns all lines in insertion order.
func (r *Registry) Lines() []Line {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Line, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.lines[id])
	}
	return out
}

// Len returns the number of lines.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lines)
}

func (r *Registry) removeWhere(match func(Line) bool) []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []Line
	for _, id := range slices.Clone(r.order) {
		if l := r.lines[id]; match(l) && r.removeLocked(id) {
			removed = append(removed, l)
		}
	}
	return removed
}

func (r *Registry) removeLocked(id string) bool {
	l, ok := r.lines[id]
	if !ok {
		return false
	}
	if r.byBranch[l.BranchID] == id {
		delete(r.byBranch, l.BranchID)
	}
	delete(r.lines, id)
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	return true
}
