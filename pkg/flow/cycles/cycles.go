// Package cycles detects directed cycles in a flow graph and classifies them
// by severity.
//
// Detection is a depth-first search over every not-yet-visited node, run on
// an explicit stack so deep graphs cannot exhaust the goroutine stack. Each
// call to [Detector.Detect] uses fresh visited and on-path state. At most one
// cycle is reported per DFS root; once a root has produced a cycle its
// traversal stops and the next unvisited node becomes the next root.
package cycles

import (
	"fmt"
	"slices"
	"strings"

	ferrors "github.com/matzehuels/flowgraph/pkg/errors"
	"github.com/matzehuels/flowgraph/pkg/flow"
	"github.com/matzehuels/flowgraph/pkg/observability"
)

// Graph is the read-only query surface the detector traverses.
type Graph interface {
	NodeIDs() []string
	OutgoingEdges(id string) []flow.Edge
	Node(id string) (flow.Node, bool)
}

// Severity classifies a cycle by its number of distinct nodes.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// SeverityFor returns the severity of a cycle with n distinct nodes:
// n <= 2 is high, 3-4 is medium and 5 or more is low.
func SeverityFor(n int) Severity {
	switch {
	case n <= 2:
		return SeverityHigh
	case n <= 4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Cycle is one detected cycle.
//
// Path is closed: its last element repeats the first, so len(Path)-1 equals
// the number of distinct nodes. Nodes holds those distinct nodes in path order.
type Cycle struct {
	Nodes    []string `json:"nodes"`
	Path     []string `json:"path"`
	Severity Severity `json:"severity"`
}

// Len returns the number of distinct nodes in the cycle.
func (c Cycle) Len() int { return len(c.Path) - 1 }

// String renders the path as "a -> b -> a".
func (c Cycle) String() string { return strings.Join(c.Path, " -> ") }

// Report is the result of a detection pass.
type Report struct {
	HasCycles     bool     `json:"hasCycles"`
	Cycles        []Cycle  `json:"cycles"`
	AffectedNodes []string `json:"affectedNodes"`
}

// Stats counts the work done by the last detection pass.
type Stats struct {
	NodesChecked int
	Roots        int
	CyclesFound  int
	FailedRoots  int // roots whose traversal panicked and were skipped
}

// Option configures a [Detector].
type Option func(*Detector)

// WithSink sets the sink receiving cycle:detected events.
func WithSink(s observability.Sink) Option {
	return func(d *Detector) { d.sink = observability.OrNoop(s) }
}

// Detector finds cycles in a [Graph]. It remembers the last report so
// callers can ask whether a node took part in a cycle.
//
// A Detector is not safe for concurrent use.
type Detector struct {
	sink  observability.Sink
	last  Report
	stats Stats
	in    map[string]bool
}

// NewDetector creates a detector with the given options.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{sink: observability.NoopSink{}, in: map[string]bool{}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect scans the whole graph and returns a report. The graph is not
// modified. Every node not yet visited is used as a DFS root in node order,
// so disconnected components are always covered.
func (d *Detector) Detect(g Graph) Report {
	var (
		visited = make(map[string]bool)
		report  = Report{Cycles: []Cycle{}, AffectedNodes: []string{}}
		seen    = make(map[string]bool)
		stats   Stats
	)
	for _, root := range g.NodeIDs() {
		if visited[root] {
			continue
		}
		stats.Roots++
		c, ok, failed := safeWalk(g, root, visited, &stats)
		if failed {
			stats.FailedRoots++
		}
		if !ok {
			continue
		}
		report.Cycles = append(report.Cycles, c)
		for _, id := range c.Nodes {
			if !seen[id] {
				seen[id] = true
				report.AffectedNodes = append(report.AffectedNodes, id)
			}
		}
		d.sink.Emit(observability.Event{
			Type:   observability.TypeCycleDetected,
			NodeID: c.Path[len(c.Path)-1],
			Data: map[string]any{
				"path":     slices.Clone(c.Path),
				"severity": string(c.Severity),
			},
		})
	}
	report.HasCycles = len(report.Cycles) > 0
	stats.CyclesFound = len(report.Cycles)

	d.last = report
	d.stats = stats
	d.in = seen
	return report
}

// Last returns the report of the most recent [Detector.Detect] call.
func (d *Detector) Last() Report { return d.last }

// InNode reports whether id took part in a cycle of the last report.
func (d *Detector) InNode(id string) bool { return d.in[id] }

// Stats returns the counters of the most recent detection pass.
func (d *Detector) Stats() Stats { return d.stats }

type frame struct {
	id      string
	targets []string
	next    int
}

// safeWalk runs walk and treats a panic raised by the graph as "no cycle"
// for that root, so one faulty adapter call does not end the scan.
func safeWalk(g Graph, root string, visited map[string]bool, stats *Stats) (c Cycle, ok, failed bool) {
	defer func() {
		if recover() != nil {
			c, ok, failed = Cycle{}, false, true
		}
	}()
	c, ok = walk(g, root, visited, stats)
	return c, ok, false
}

// walk runs an iterative DFS from root. It returns the first cycle found.
func walk(g Graph, root string, visited map[string]bool, stats *Stats) (Cycle, bool) {
	onPath := make(map[string]int) // node -> index in stack
	var stack []frame

	push := func(id string) {
		visited[id] = true
		stats.NodesChecked++
		onPath[id] = len(stack)
		stack = append(stack, frame{id: id, targets: targetsOf(g, id)})
	}
	push(root)

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= len(top.targets) {
			delete(onPath, top.id)
			stack = stack[:len(stack)-1]
			continue
		}
		t := top.targets[top.next]
		top.next++

		if at, ok := onPath[t]; ok {
			return closeCycle(stack, at, t), true
		}
		if visited[t] {
			continue
		}
		push(t)
	}
	return Cycle{}, false
}

func closeCycle(stack []frame, at int, repeated string) Cycle {
	path := make([]string, 0, len(stack)-at+1)
	for _, f := range stack[at:] {
		path = append(path, f.id)
	}
	path = append(path, repeated)
	nodes := slices.Clone(path[:len(path)-1])
	return Cycle{Nodes: nodes, Path: path, Severity: SeverityFor(len(path) - 1)}
}

func targetsOf(g Graph, id string) []string {
	edges := g.OutgoingEdges(id)
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.Target)
	}
	return out
}

// Err converts a report into a CYCLE_ERROR wrapping [*Error], or nil when
// the graph is acyclic.
func (r Report) Err() error {
	if !r.HasCycles {
		return nil
	}
	return ferrors.Wrap(ferrors.ErrCodeCycle, &Error{Cycles: r.Cycles}, "acyclic graph required")
}

// Error is returned where an acyclic graph is required.
type Error struct {
	Cycles []Cycle
}

func (e *Error) Error() string {
	if len(e.Cycles) == 1 {
		return fmt.Sprintf("graph contains a cycle: %s", e.Cycles[0])
	}
	return fmt.Sprintf("graph contains %d cycles, first: %s", len(e.Cycles), e.Cycles[0])
}
