package chunk

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// DiagnosticKind names the condition a diagnostic reports.
type DiagnosticKind string

const (
	DiagLargeGlue          DiagnosticKind = "large_glue"
	DiagProtectionOverride DiagnosticKind = "protection_override"
	DiagForcedSplit        DiagnosticKind = "forced_split"
	DiagSkippedNode        DiagnosticKind = "skipped_node"
	DiagStructureMismatch  DiagnosticKind = "structure_mismatch"
	DiagStructureVerified  DiagnosticKind = "structure_verified"
)

// Diagnostic is a non-fatal observation made while chunking.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind" yaml:"kind"`
	Level   slog.Level     `json:"level" yaml:"level"`
	Message string         `json:"message" yaml:"message"`
	Attrs   map[string]any `json:"attrs,omitempty" yaml:"attrs,omitempty"`
}

// Sink receives diagnostics. Chunking never depends on what a sink does.
type Sink interface {
	Emit(d Diagnostic)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Diagnostic)

func (f SinkFunc) Emit(d Diagnostic) { f(d) }

// Discard drops every diagnostic.
var Discard Sink = SinkFunc(func(Diagnostic) {})

// Recorder keeps diagnostics in memory. Safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	diags []Diagnostic
}

func (r *Recorder) Emit(d Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diags = append(r.diags, d)
}

// Diagnostics returns a copy of everything recorded so far.
func (r *Recorder) Diagnostics() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Diagnostic(nil), r.diags...)
}

// Count returns how many diagnostics of kind were recorded.
func (r *Recorder) Count(kind DiagnosticKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, d := range r.diags {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// Tee fans a diagnostic out to several sinks.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(d Diagnostic) {
		for _, s := range sinks {
			if s != nil {
				s.Emit(d)
			}
		}
	})
}

type logSink struct {
	log *slog.Logger
}

// NewLogSink writes diagnostics to a structured logger at their level.
func NewLogSink(log *slog.Logger) Sink {
	return logSink{log: log}
}

func (s logSink) Emit(d Diagnostic) {
	keys := make([]string, 0, len(d.Attrs))
	for k := range d.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, 2*len(keys)+2)
	args = append(args, "kind", string(d.Kind))
	for _, k := range keys {
		args = append(args, k, d.Attrs[k])
	}
	s.log.Log(context.Background(), d.Level, d.Message, args...)
}

func emit(s Sink, kind DiagnosticKind, level slog.Level, msg string, attrs map[string]any) {
	if s == nil {
		return
	}
	s.Emit(Diagnostic{Kind: kind, Level: level, Message: msg, Attrs: attrs})
}
