package publish

import (
	"context"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/flowgraph/pkg/flow/branch"
	"github.com/matzehuels/flowgraph/pkg/flow/cycles"
	"github.com/matzehuels/flowgraph/pkg/flow/layout"
	"github.com/matzehuels/flowgraph/pkg/observability"
)

// State is the publisher's lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateRunning    State = "running"
	StateProcessing State = "processing"
	StatePublishing State = "publishing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Busy reports whether a publish run is in progress.
func (s State) Busy() bool {
	return s == StateRunning || s == StateProcessing || s == StatePublishing
}

// Options tune a [Publisher].
type Options struct {
	AutoTerminate bool // close unattached branches with End nodes first
	MaxNodes      int
	HistoryLimit  int
	Layout        layout.Options
}

// DefaultOptions returns the default publish options.
func DefaultOptions() Options {
	return Options{
		AutoTerminate: true,
		MaxNodes:      DefaultMaxNodes,
		HistoryLimit:  20,
		Layout:        layout.DefaultOptions(),
	}
}

// Outcome is the result of one publish run.
type Outcome struct {
	ID        string        `json:"id"`
	Success   bool          `json:"success"`
	State     State         `json:"state"`
	Steps     []Step        `json:"steps"`
	Issues    Result        `json:"issues"`
	Terminals []Terminal    `json:"terminals,omitempty"`
	Cycles    cycles.Report `json:"cycles"`
	Layout    layout.Result `json:"layout"`
	Config    *Config       `json:"config,omitempty"`
}

// Err returns nil for a successful run and a coded error otherwise.
func (o *Outcome) Err() error { return o.Issues.Err() }

// Record is one entry of the publish history.
type Record struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Success  bool      `json:"success"`
	Steps    []Step    `json:"steps"`
	Errors   []Issue   `json:"errors,omitempty"`
	Warnings []Issue   `json:"warnings,omitempty"`
	Config   *Config   `json:"config,omitempty"`
}

// Option configures a [Publisher].
type Option func(*Publisher)

// WithSink sets the sink receiving publish step, state and validation events.
func WithSink(s observability.Sink) Option {
	return func(p *Publisher) { p.sink = observability.OrNoop(s) }
}

// WithLogger sets the logger for run summaries and step traces. A nil logger
// keeps the default.
func WithLogger(l *log.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPreviews sets the placeholder store; lines of branches closed by the
// auto-terminate step are removed from it.
func WithPreviews(ps PreviewStore) Option {
	return func(p *Publisher) { p.previews = ps }
}

// WithChecker adds a semantic checker run after the built-in one.
func WithChecker(c Checker) Option {
	return func(p *Publisher) { p.extra = append(p.extra, c) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

// Publisher runs the full publish flow over a graph: auto-terminate, cycle
// detection, semantic validation, branch completeness, layout and config
// generation. It moves through idle, running, processing and publishing to
// completed or failed, and keeps a bounded history of runs.
type Publisher struct {
	g        Graph
	opts     Options
	sink     observability.Sink
	logger   *log.Logger
	previews PreviewStore
	extra    []Checker
	now      func() time.Time

	mu      sync.Mutex
	state   State
	history []Record
}

// NewPublisher creates a publisher for g.
func NewPublisher(g Graph, opts Options, options ...Option) *Publisher {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultOptions().HistoryLimit
	}
	p := &Publisher{
		g:      g,
		opts:   opts,
		sink:   observability.NoopSink{},
		logger: log.New(io.Discard),
		now:    time.Now,
		state:  StateIdle,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// State returns the current state.
func (p *Publisher) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// History returns past runs, oldest first.
func (p *Publisher) History() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.history)
}

// ClearHistory drops all recorded runs.
func (p *Publisher) ClearHistory() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = nil
}

// Publish runs the publish flow. A blocked run returns an outcome with
// Success false and the enumerated issues; the graph keeps any End nodes the
// auto-terminate step added. ctx is checked between steps, and a cancelled
// run removes the End nodes it synthesized.
func (p *Publisher) Publish(ctx context.Context) Outcome {
	out := Outcome{ID: "publish_" + uuid.NewString()}

	if cur, ok := p.begin(); !ok {
		out.State = cur
		out.Issues.AddError("", CodePublishInProgress, "another publish run is in progress")
		return out
	}

	steps := &run{p: p, ctx: ctx, out: &out}
	validator := NewValidator(
		WithCheckers(append([]Checker{NewSemanticValidator(p.opts.MaxNodes)}, p.extra...)...),
		WithValidatorSink(p.sink),
	)
	topo := branch.New(p.g, branch.WithSink(p.sink), branch.WithPreviews(p.previews))

	ok := steps.step(StepTerminate, func() bool {
		if !p.opts.AutoTerminate {
			return true
		}
		terms, err := NewTerminator(p.g, topo, p.previews).Terminate()
		out.Terminals = terms
		if len(terms) > 0 {
			out.Issues.AddWarning("", CodeAutoGeneratedEnds, "added %d end nodes", len(terms))
		}
		if err != nil {
			out.Issues.AddError("", CodeTerminateFailed, "end node generation failed: %v", err)
			return false
		}
		return true
	}) && steps.step(StepCycles, func() bool {
		var rep Report
		passed := validator.checkCycles(p.g, &rep)
		out.Cycles = rep.Cycles
		out.Issues.Merge(&rep.Result)
		return passed
	}) && steps.step(StepSemantic, func() bool {
		var rep Report
		passed := validator.checkSemantics(p.g, &rep)
		out.Issues.Merge(&rep.Result)
		if passed {
			p.setState(StateProcessing)
		}
		return passed
	}) && steps.step(StepBranches, func() bool {
		var rep Report
		passed := validator.checkBranches(p.g, &rep)
		out.Issues.Merge(&rep.Result)
		return passed
	}) && steps.step(StepLayout, func() bool {
		res, err := layout.NewPlanner(p.opts.Layout).Plan(p.g)
		if err != nil {
			out.Issues.AddError("", CodeLayoutFailed, "layout failed: %v", err)
			return false
		}
		out.Layout = res
		p.setState(StatePublishing)
		return true
	}) && steps.step(StepConfig, func() bool {
		cfg := BuildConfig(p.g, out.Layout, p.now())
		out.Config = &cfg
		return true
	})

	switch {
	case ok:
		out.Success = true
		p.setState(StateCompleted)
		p.logger.Info("flow published", "id", out.ID, "nodes", out.Config.Metadata.NodeCount)
	case steps.cancelled:
		removed := p.removeTerminals(out.Terminals)
		out.Terminals = nil
		p.setState(StateCancelled)
		p.logger.Warn("publish cancelled", "id", out.ID, "removed_ends", removed)
	default:
		p.setState(StateFailed)
		p.logger.Warn("publish blocked", "id", out.ID, "errors", len(out.Issues.Errors))
	}
	out.State = p.State()
	p.record(out)
	return out
}

// removeTerminals deletes synthesized End nodes together with the edges that
// closed their branches and returns how many were removed.
func (p *Publisher) removeTerminals(terms []Terminal) int {
	n := 0
	for _, t := range terms {
		if _, err := p.g.RemoveNode(t.NodeID); err != nil {
			p.logger.Debug("remove end node", "node", t.NodeID, "err", err)
			continue
		}
		n++
	}
	return n
}

type run struct {
	p         *Publisher
	ctx       context.Context
	out       *Outcome
	cancelled bool
}

func (r *run) step(s Step, fn func() bool) bool {
	if err := r.ctx.Err(); err != nil {
		r.cancelled = true
		r.out.Issues.AddError("", CodeCancelled, "publish cancelled before %s: %v", s, err)
		return false
	}
	r.out.Steps = append(r.out.Steps, s)
	r.p.sink.Emit(observability.Event{
		Type: observability.TypePublishStep,
		Data: map[string]any{"step": string(s), "publishId": r.out.ID},
	})
	r.p.logger.Debug("publish step", "step", s, "id", r.out.ID)
	return fn()
}

// begin moves an idle or finished publisher to running. It returns the
// current state and false when a run is already in progress.
func (p *Publisher) begin() (State, bool) {
	p.mu.Lock()
	prev := p.state
	if prev.Busy() {
		p.mu.Unlock()
		return prev, false
	}
	p.state = StateRunning
	p.mu.Unlock()
	p.emitState(prev, StateRunning)
	return StateRunning, true
}

func (p *Publisher) setState(s State) {
	p.mu.Lock()
	prev := p.state
	p.state = s
	p.mu.Unlock()
	p.emitState(prev, s)
}

func (p *Publisher) emitState(prev, s State) {
	p.sink.Emit(observability.Event{
		Type: observability.TypePublishState,
		Data: map[string]any{"from": string(prev), "to": string(s)},
	})
}

func (p *Publisher) record(out Outcome) {
	rec := Record{
		ID:       out.ID,
		Time:     p.now(),
		Success:  out.Success,
		Steps:    out.Steps,
		Errors:   out.Issues.Errors,
		Warnings: out.Issues.Warnings,
		Config:   out.Config,
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, rec)
	if n := len(p.history) - p.opts.HistoryLimit; n > 0 {
		p.history = slices.Delete(p.history, 0, n)
	}
}
