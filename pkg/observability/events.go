// Package observability provides the event and error sinks that flowgraph
// components report to.
//
// Components never reach for a global registry: the caller injects a [Sink]
// for domain events and an [ErrorReporter] for recoverable failures. Both
// default to no-op implementations when nil.
//
// # Architecture
//
//   - [Sink] receives [Event] values named by the Type* constants
//   - [NoopSink] drops everything; [Recorder] keeps events for inspection
//   - [LogSink] writes events to a charmbracelet logger
//   - [Fanout] forwards one event to several sinks
//
// # Usage
//
//	rec := &observability.Recorder{}
//	sink := observability.Fanout{rec, observability.NewLogSink(logger)}
//	resolver := cascade.New(g, cascade.WithSink(sink))
package observability

import (
	"maps"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
)

// Event types.
const (
	TypeCycleDetected      = "cycle:detected"
	TypeOrphanDetected     = "orphan:detected"
	TypeOrphanResolved     = "orphan:resolved"
	TypeOrphanAllCleaned   = "orphan:all-cleaned"
	TypeNodeCleaned        = "cascade:node-cleaned"
	TypeEdgeCleaned        = "cascade:edge-cleaned"
	TypeBranchAttached     = "branch:attached"
	TypeBranchDetached     = "branch:detached"
	TypePreviewInvalidated = "preview:invalidated"
	TypeEndNodeAutoRemoved = "end-node:auto-removed"
	TypeLabelRemoved       = "label:removed"
	TypePublishStep        = "publish:step"
	TypePublishState       = "publish:state-changed"
)

// Event is a single domain notification.
type Event struct {
	Type     string
	NodeID   string
	EdgeID   string
	BranchID string
	Data     map[string]any
}

// Sink receives events. Emit is called synchronously by the emitting
// component.
type Sink interface {
	Emit(Event)
}

// NoopSink discards all events.
type NoopSink struct{}

func (NoopSink) Emit(Event) {}

// OrNoop returns s, or a [NoopSink] when s is nil.
func OrNoop(s Sink) Sink {
	if s == nil {
		return NoopSink{}
	}
	return s
}

// Recorder keeps every emitted event in order. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Sink.
func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.Data = maps.Clone(ev.Data)
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Types returns the recorded event types in emission order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// OfType returns the recorded events of the given type.
func (r *Recorder) OfType(typ string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// Count returns how many events of the given type were recorded.
func (r *Recorder) Count(typ string) int { return len(r.OfType(typ)) }

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// LogSink writes events to a logger at debug level.
type LogSink struct {
	Logger *log.Logger
}

// NewLogSink returns a LogSink writing to l, or to log.Default() when nil.
func NewLogSink(l *log.Logger) LogSink {
	if l == nil {
		l = log.Default()
	}
	return LogSink{Logger: l}
}

// Emit implements Sink.
func (s LogSink) Emit(ev Event) {
	kv := make([]any, 0, 6+2*len(ev.Data))
	if ev.NodeID != "" {
		kv = append(kv, "node", ev.NodeID)
	}
	if ev.EdgeID != "" {
		kv = append(kv, "edge", ev.EdgeID)
	}
	if ev.BranchID != "" {
		kv = append(kv, "branch", ev.BranchID)
	}
	for _, k := range slices.Sorted(maps.Keys(ev.Data)) {
		kv = append(kv, k, ev.Data[k])
	}
	s.Logger.Debug(ev.Type, kv...)
}

// Fanout forwards each event to every sink in order. Nil entries are skipped.
type Fanout []Sink

// Emit implements Sink.
func (f Fanout) Emit(ev Event) {
	for _, s := range f {
		if s != nil {
			s.Emit(ev)
		}
	}
}
