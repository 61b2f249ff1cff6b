package reread

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/joshuapare/dtcheck/internal/artifact"
	"github.com/joshuapare/dtcheck/report"
)

const (
	// DefaultLimit is the number of rereads when Config.Limit is zero.
	DefaultLimit = 2
	// DefaultDelay is the suggested base delay between rereads.
	DefaultDelay = time.Second

	defaultPollInterval = 100 * time.Millisecond
)

// Config controls the reread protocol.
type Config struct {
	// Limit bounds the number of rereads. Defaults to DefaultLimit.
	Limit int
	// LoopOnError rereads until a transient outcome, cancellation or
	// termination, ignoring Limit.
	LoopOnError bool
	// Delay is the base delay; attempt n waits n*Delay before the next
	// reread. Zero disables sleeping.
	Delay time.Duration
	// PollInterval bounds how long a sleep goes without checking for
	// cancellation. Defaults to 100ms.
	PollInterval time.Duration
	// Buffered disables direct I/O for rereads.
	Buffered bool

	// Artifacts, when set, receives EXPECT, CORRUPT and REREAD files.
	Artifacts *artifact.Writer
	// Sink receives progress and the final classification. May be nil.
	Sink *report.Sink
	// Terminator is polled alongside the context. May be nil.
	Terminator Terminator
}

// Classifier runs the reread protocol against one target. It is owned by a
// single I/O stream.
type Classifier struct {
	target Target
	cfg    Config
}

// New returns a classifier for target.
func New(target Target, cfg Config) *Classifier {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Classifier{target: target, cfg: cfg}
}

// Classify rereads the failing range of ev and classifies the corruption.
// It always returns a Classification; I/O errors, cancellation and
// termination are recorded in its Err field.
func (c *Classifier) Classify(ctx context.Context, ev Event) Classification {
	cl := Classification{States: []State{StateInitial}}
	expected := bytes.Clone(ev.Expected)
	received := bytes.Clone(ev.Received)
	sink := c.cfg.Sink

	cl.Artifacts = append(cl.Artifacts, c.save(artifact.Expect, expected)...)
	cl.Artifacts = append(cl.Artifacts, c.save(artifact.Corrupt, received)...)

	cl.States = append(cl.States, StateRereading)
	c.reread(ctx, &cl, ev, expected, received)

	cl.States = append(cl.States, StateClassified)
	cl.Commands = Commands(ev.Command, ev.Offset, ev.RecordNumber)

	sink.Record(report.Diagnostic{
		Severity:  severityOf(cl.Class),
		Category:  report.CatReread,
		Target:    c.target.Name(),
		Offset:    ev.Offset,
		Record:    ev.RecordNumber,
		Issue:     fmt.Sprintf("%s record: %s", humanize.IBytes(uint64(len(received))), cl),
		Commands:  cl.Commands,
		Artifacts: cl.Artifacts,
	})
	cl.States = append(cl.States, StateReported)
	return cl
}

func (c *Classifier) reread(ctx context.Context, cl *Classification, ev Event, expected, received []byte) {
	sink := c.cfg.Sink
	name := c.target.Name()

	direct := !c.cfg.Buffered && directEligible(c.target, ev.Offset, len(received))
	if !c.cfg.Buffered && !direct {
		sink.Emitf(report.SevWarning, "%s: offset %d length %d not eligible for direct I/O, rereading buffered",
			name, ev.Offset, len(received))
	}
	sess, fallback, err := OpenSession(c.target, ev.Offset, len(received), direct)
	if fallback != nil {
		sink.Emitf(report.SevWarning, "%s: direct reopen failed (%v), rereading buffered", name, fallback)
	}
	if err != nil {
		cl.Err = err
		return
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			sink.Emitf(report.SevWarning, "%s: closing reread session: %v", name, cerr)
		}
	}()
	cl.Direct = sess.Direct()

	verify := ev.Verify
	if verify == nil {
		verify = func(_ context.Context, data []byte) bool { return bytes.Equal(data, expected) }
	}

	for attempt := 1; c.cfg.LoopOnError || attempt <= c.cfg.Limit; attempt++ {
		if err := c.stopping(ctx); err != nil {
			cl.Err = err
			return
		}

		start := time.Now()
		data, err := sess.Read()
		if err != nil {
			cl.Err = err
			cl.Class = Unclassified
			return
		}
		a := Attempt{Number: attempt, Digest: Digest(data), Elapsed: time.Since(start)}
		if saved := c.save(artifact.Reread, data); len(saved) > 0 {
			a.Artifact = saved[0]
			cl.Artifacts = append(cl.Artifacts, saved[0])
		}

		switch {
		case bytes.Equal(data, received):
			a.Outcome = PossibleWriteFailure
		case verify(ctx, data):
			a.Outcome = PossibleReadFailure
		default:
			a.Outcome = Persistent
		}
		cl.Attempts = append(cl.Attempts, a)
		cl.Class = a.Outcome
		cl.Stable = cl.Attempts[0].Digest == a.Digest && (len(cl.Attempts) == 1 || cl.Stable)

		sink.Emitf(report.SevInfo, "%s: reread %d at offset %d: %s", name, attempt, ev.Offset, a.Outcome)
		if a.Outcome != Persistent {
			return
		}
		if !c.cfg.LoopOnError && attempt == c.cfg.Limit {
			return
		}
		if err := c.sleep(ctx, time.Duration(attempt)*c.cfg.Delay); err != nil {
			cl.Err = err
			return
		}
	}
}

func (c *Classifier) stopping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.cfg.Terminator != nil && c.cfg.Terminator.Terminating() {
		return ErrTerminating
	}
	return nil
}

// sleep waits d in PollInterval slices, returning early on cancellation or
// termination.
func (c *Classifier) sleep(ctx context.Context, d time.Duration) error {
	deadline := time.Now().Add(d)
	for {
		if err := c.stopping(ctx); err != nil {
			return err
		}
		left := time.Until(deadline)
		if left <= 0 {
			return nil
		}
		t := time.NewTimer(min(left, c.cfg.PollInterval))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// save writes an artifact, logging instead of failing.
func (c *Classifier) save(kind artifact.Kind, data []byte) []string {
	if c.cfg.Artifacts == nil {
		return nil
	}
	path, err := c.cfg.Artifacts.Save(kind, data)
	if err != nil {
		c.cfg.Sink.Record(report.Diagnostic{
			Severity: report.SevWarning,
			Category: report.CatArtifact,
			Target:   c.target.Name(),
			Issue:    err.Error(),
		})
		return nil
	}
	c.cfg.Sink.Emitf(report.SevInfo, "%s: saved %s data to %s", c.target.Name(), kind, path)
	return []string{path}
}

func severityOf(c Class) report.Severity {
	if c == Persistent {
		return report.SevCritical
	}
	return report.SevError
}

// IsCancelled reports whether err stopped classification early.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTerminating)
}
