package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Sink serializes diagnostic output from concurrent I/O streams. A nil
// *Sink discards everything.
type Sink struct {
	*shared
	prefix string
}

type shared struct {
	mu     sync.Mutex
	w      io.Writer
	log    *slog.Logger
	report *Report
}

// NewSink creates a sink that writes formatted lines to w (may be nil) and
// mirrors each line to log (may be nil).
func NewSink(w io.Writer, log *slog.Logger) *Sink {
	return &Sink{shared: &shared{w: w, log: log, report: NewReport()}}
}

// WithPrefix returns a sink sharing s's writer, lock and report that
// prefixes every line, e.g. "j1t2: ".
func (s *Sink) WithPrefix(prefix string) *Sink {
	if s == nil {
		return nil
	}
	return &Sink{shared: s.shared, prefix: s.prefix + prefix}
}

// Emit writes one message at the given severity.
func (s *Sink) Emit(sev Severity, msg string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked(sev, msg)
}

// Emitf formats and emits one message.
func (s *Sink) Emitf(sev Severity, format string, args ...any) {
	if s == nil {
		return
	}
	s.Emit(sev, fmt.Sprintf(format, args...))
}

// Record adds d to the shared report and emits its one-line form.
func (s *Sink) Record(d Diagnostic) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.Add(d)
	s.emitLocked(d.Severity, fmt.Sprintf("%s: %s at offset %d: %s", d.Category, d.Target, d.Offset, d.Issue))
}

// Report returns the finalized report accumulated so far.
func (s *Sink) Report() *Report {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.Finalize()
	return s.report
}

func (s *Sink) emitLocked(sev Severity, msg string) {
	if s.w != nil {
		fmt.Fprintf(s.w, "%s%s: %s\n", s.prefix, sev, msg)
	}
	if s.log != nil {
		s.log.Log(context.Background(), slogLevel(sev), s.prefix+msg)
	}
}

func slogLevel(sev Severity) slog.Level {
	switch sev {
	case SevInfo:
		return slog.LevelInfo
	case SevWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
