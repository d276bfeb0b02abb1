package publish

import (
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/matzehuels/flowgraph/pkg/flow"
)

// DefaultMaxNodes is the node count above which a flow draws a warning.
const DefaultMaxNodes = 100

// Checker is a node and edge validation collaborator.
type Checker interface {
	Check(g Graph) *Result
}

// CheckerFunc adapts a function to [Checker].
type CheckerFunc func(g Graph) *Result

// Check implements Checker.
func (f CheckerFunc) Check(g Graph) *Result { return f(g) }

// SemanticValidator checks the structural rules a publishable flow must
// satisfy beyond acyclicity: start and end placement, connectivity,
// duplicate connections and condition expressions.
//
// Compiled condition programs are cached; a SemanticValidator is safe for
// concurrent use.
type SemanticValidator struct {
	MaxNodes int

	mu    sync.RWMutex
	cache map[string]*vm.Program
	bad   map[string]error
}

// NewSemanticValidator creates a validator warning above maxNodes nodes.
// A non-positive maxNodes uses [DefaultMaxNodes].
func NewSemanticValidator(maxNodes int) *SemanticValidator {
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	return &SemanticValidator{
		MaxNodes: maxNodes,
		cache:    make(map[string]*vm.Program),
		bad:      make(map[string]error),
	}
}

// Check implements Checker.
func (v *SemanticValidator) Check(g Graph) *Result {
	res := &Result{}
	nodes := g.Nodes()
	if len(nodes) == 0 {
		res.AddError("", CodeEmptyFlow, "flow has no nodes")
		return res
	}
	if len(nodes) > v.MaxNodes {
		res.AddWarning("", CodeTooManyNodes, "flow has %d nodes, more than the recommended %d", len(nodes), v.MaxNodes)
	}

	v.checkTerminals(g, nodes, res)
	v.checkConnections(g, nodes, res)
	for _, n := range nodes {
		if n.Kind.IsBranching() {
			v.checkConditions(n, res)
		}
	}
	v.checkReachability(g, nodes, res)
	return res
}

func (v *SemanticValidator) checkTerminals(g Graph, nodes []flow.Node, res *Result) {
	var starts, ends int
	for _, n := range nodes {
		switch n.Kind {
		case flow.KindStart:
			starts++
			if in := len(g.IncomingEdges(n.ID)); in > 0 {
				res.AddError(nodePath(n.ID), CodeStartHasIncoming, "start node %s has %d incoming connections", n.ID, in)
			}
		case flow.KindEnd:
			ends++
			if out := len(g.OutgoingEdges(n.ID)); out > 0 {
				res.AddError(nodePath(n.ID), CodeEndHasOutgoing, "end node %s has %d outgoing connections", n.ID, out)
			}
		}
	}
	switch {
	case starts == 0:
		res.AddError("", CodeNoStart, "flow must contain a start node")
	case starts > 1:
		res.AddWarning("", CodeMultipleStarts, "flow contains %d start nodes", starts)
	}
	if ends == 0 {
		res.AddError("", CodeNoEnd, "flow must contain at least one end node")
	}
}

func (v *SemanticValidator) checkConnections(g Graph, nodes []flow.Node, res *Result) {
	if len(nodes) > 1 {
		for _, n := range nodes {
			if len(g.IncomingEdges(n.ID)) == 0 && len(g.OutgoingEdges(n.ID)) == 0 {
				res.AddWarning(nodePath(n.ID), CodeIsolatedNode, "node %s has no connections", n.ID)
			}
		}
	}

	type pair struct{ source, target string }
	seen := map[pair]string{}
	for _, e := range g.Edges() {
		p := pair{e.Source, e.Target}
		if first, ok := seen[p]; ok {
			res.AddWarning(edgePath(e.ID), CodeDuplicateEdge,
				"connection %s duplicates %s between %s and %s", e.ID, first, e.Source, e.Target)
			continue
		}
		seen[p] = e.ID
	}
}

func (v *SemanticValidator) checkConditions(n flow.Node, res *Result) {
	for i, c := range n.Conditions {
		path := fmt.Sprintf("%s.conditions[%d]", nodePath(n.ID), i)
		if c.IsDefault() {
			continue
		}
		if strings.TrimSpace(c.Expression) == "" {
			res.AddWarning(path, CodeEmptyCondition, "condition %d of %s has no expression", i+1, n.ID)
			continue
		}
		if err := v.compile(c.Expression); err != nil {
			res.AddError(path, CodeInvalidCondition, "condition %d of %s does not compile: %v", i+1, n.ID, err)
		}
	}
}

// compile returns the compile error of expression, caching both outcomes.
func (v *SemanticValidator) compile(expression string) error {
	v.mu.RLock()
	if _, ok := v.cache[expression]; ok {
		v.mu.RUnlock()
		return nil
	}
	if err, ok := v.bad[expression]; ok {
		v.mu.RUnlock()
		return err
	}
	v.mu.RUnlock()

	prg, err := expr.Compile(expression,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
	)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		v.bad[expression] = err
		return err
	}
	v.cache[expression] = prg
	return nil
}

func (v *SemanticValidator) checkReachability(g Graph, nodes []flow.Node, res *Result) {
	var queue []string
	seen := map[string]bool{}
	for _, n := range nodes {
		if n.Kind == flow.KindStart {
			queue = append(queue, n.ID)
			seen[n.ID] = true
		}
	}
	if len(queue) == 0 {
		return
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range g.OutgoingEdges(id) {
			if !seen[e.Target] {
				seen[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}
	for _, n := range nodes {
		if !seen[n.ID] {
			res.AddWarning(nodePath(n.ID), CodeUnreachable, "node %s cannot be reached from a start node", n.ID)
		}
	}
}
