package publish

import (
	"fmt"

	"github.com/matzehuels/flowgraph/pkg/flow/branch"
	"github.com/matzehuels/flowgraph/pkg/flow/cycles"
	"github.com/matzehuels/flowgraph/pkg/observability"
)

// Step names one stage of the publish gate.
type Step string

const (
	StepTerminate Step = "auto-terminate"
	StepCycles    Step = "cycle-detection"
	StepSemantic  Step = "semantic-validation"
	StepBranches  Step = "branch-completeness"
	StepLayout    Step = "layout"
	StepConfig    Step = "publish-config"
)

// Report is the result of [Validator.Validate].
type Report struct {
	Result
	Cycles cycles.Report `json:"cycles"`

	// BlockedAt is the stage that rejected the graph, empty when it passed.
	BlockedAt Step `json:"blockedAt,omitempty"`
}

// Blocked reports whether publishing must not proceed.
func (r *Report) Blocked() bool { return r.BlockedAt != "" }

// ValidatorOption configures a [Validator].
type ValidatorOption func(*Validator)

// WithCheckers replaces the semantic checkers. The default is a single
// [SemanticValidator].
func WithCheckers(cs ...Checker) ValidatorOption {
	return func(v *Validator) { v.checkers = cs }
}

// WithValidatorSink sets the sink receiving cycle:detected events.
func WithValidatorSink(s observability.Sink) ValidatorOption {
	return func(v *Validator) { v.sink = observability.OrNoop(s) }
}

// Validator gates publishing: cycle detection first, then the semantic
// checkers, then branch completeness. A stage that reports errors stops the
// run, so later stages always see an acyclic graph.
type Validator struct {
	sink     observability.Sink
	checkers []Checker
	detector *cycles.Detector
}

// NewValidator creates a validator.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{
		sink:     observability.NoopSink{},
		checkers: []Checker{NewSemanticValidator(DefaultMaxNodes)},
	}
	for _, opt := range opts {
		opt(v)
	}
	v.detector = cycles.NewDetector(cycles.WithSink(v.sink))
	return v
}

// Validate runs every stage in order and returns the enumerated issues.
func (v *Validator) Validate(g Graph) Report {
	var rep Report
	for _, stage := range []func(Graph, *Report) bool{v.checkCycles, v.checkSemantics, v.checkBranches} {
		if !stage(g, &rep) {
			break
		}
	}
	return rep
}

func (v *Validator) checkCycles(g Graph, rep *Report) bool {
	rep.Cycles = v.detector.Detect(g)
	for i, c := range rep.Cycles.Cycles {
		rep.AddError(fmt.Sprintf("cycles[%d]", i), CodeCycle, "cycle %s (%s severity)", c, c.Severity)
	}
	return rep.pass(StepCycles)
}

func (v *Validator) checkSemantics(g Graph, rep *Report) bool {
	for _, c := range v.checkers {
		rep.Merge(c.Check(g))
	}
	return rep.pass(StepSemantic)
}

func (v *Validator) checkBranches(g Graph, rep *Report) bool {
	topo := branch.New(g)
	for _, id := range g.NodeIDs() {
		n, ok := g.Node(id)
		if !ok || !n.Kind.IsBranching() {
			continue
		}
		if err := topo.Check(id); err != nil {
			rep.AddError(nodePath(id), CodeInvalidBranch, "%v", err)
		}
		open, err := topo.Unattached(id)
		if err != nil {
			continue
		}
		for _, b := range open {
			rep.AddError(nodePath(id)+"."+b.Port, CodeIncompleteBranch,
				"branch %q of %s is neither attached nor terminated", b.Label, id)
		}
	}
	return rep.pass(StepBranches)
}

// pass marks step as the blocking stage when errors were recorded.
func (r *Report) pass(step Step) bool {
	if r.Valid() {
		return true
	}
	r.BlockedAt = step
	return false
}
