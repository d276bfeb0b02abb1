package observability

import (
	"errors"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	ferrors "github.com/matzehuels/flowgraph/pkg/errors"
)

// ErrorReporter receives failures that must not abort the operation that
// produced them, such as a failing cascade step.
type ErrorReporter interface {
	Report(err error)
}

// NoopReporter discards errors.
type NoopReporter struct{}

func (NoopReporter) Report(error) {}

// ReporterOrNoop returns r, or a [NoopReporter] when r is nil.
func ReporterOrNoop(r ErrorReporter) ErrorReporter {
	if r == nil {
		return NoopReporter{}
	}
	return r
}

// LogReporter logs reported errors at warn level.
type LogReporter struct {
	Logger *log.Logger
}

// Report implements ErrorReporter.
func (r LogReporter) Report(err error) {
	if err == nil {
		return
	}
	l := r.Logger
	if l == nil {
		l = log.Default()
	}
	var step *ferrors.StepError
	if errors.As(err, &step) {
		l.Warn("step failed", "step", step.Step, "node", step.NodeID, "err", step.Err)
		return
	}
	l.Warn("operation failed", "err", err)
}

// CollectingReporter stores reported errors. It is safe for concurrent use.
type CollectingReporter struct {
	mu   sync.Mutex
	errs []error
}

// Report implements ErrorReporter.
func (c *CollectingReporter) Report(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

// Errors returns the collected errors in report order.
func (c *CollectingReporter) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.errs)
}

// Err joins all collected errors, or returns nil when none were reported.
func (c *CollectingReporter) Err() error {
	return errors.Join(c.Errors()...)
}

// MultiReporter forwards each error to every reporter in order. Nil entries
// are skipped.
type MultiReporter []ErrorReporter

// Report implements ErrorReporter.
func (m MultiReporter) Report(err error) {
	for _, r := range m {
		if r != nil {
			r.Report(err)
		}
	}
}
