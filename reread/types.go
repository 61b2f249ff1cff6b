package reread

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joshuapare/dtcheck/internal/device"
)

// State is a step of the reread protocol.
type State int

const (
	StateInitial State = iota
	StateRereading
	StateClassified
	StateReported
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateRereading:
		return "rereading"
	case StateClassified:
		return "classified"
	case StateReported:
		return "reported"
	default:
		return "unknown"
	}
}

// Class is the outcome of classification.
type Class int

const (
	// Unclassified means no reread completed (I/O error or cancellation
	// before the first attempt).
	Unclassified Class = iota
	// PossibleReadFailure means a reread matched the expected data.
	PossibleReadFailure
	// PossibleWriteFailure means a reread returned the same corrupted bytes.
	PossibleWriteFailure
	// Persistent means rereads returned data matching neither.
	Persistent
)

func (c Class) String() string {
	switch c {
	case Unclassified:
		return "unclassified"
	case PossibleReadFailure:
		return "possible read failure"
	case PossibleWriteFailure:
		return "possible write failure"
	case Persistent:
		return "persistent corruption"
	default:
		return "unknown"
	}
}

var (
	// ErrShortRead is recorded when a reread returns fewer bytes than the
	// original record.
	ErrShortRead = errors.New("reread: short read")
	// ErrTerminating is recorded when the owning thread asked to stop.
	ErrTerminating = errors.New("reread: thread terminating")
)

// Device is a read-only handle on the target.
type Device interface {
	ReadAt(p []byte, off int64) (int, error)
	Close() error
}

// CacheDropper is implemented by devices that can evict cached pages, used
// to defeat the page cache when direct I/O is unavailable.
type CacheDropper interface {
	DropCache(off, n int64) error
}

// Target is the medium being verified.
type Target interface {
	Name() string
	Kind() device.Kind
	RandomAccess() bool
	// Reopen returns an independent read-only handle.
	Reopen(direct bool) (Device, error)
}

// Terminator reports whether the owning thread or job is stopping.
type Terminator interface {
	Terminating() bool
}

// TerminatorFunc adapts a function to Terminator.
type TerminatorFunc func() bool

// Terminating calls f.
func (f TerminatorFunc) Terminating() bool { return f() }

// VerifyFunc re-runs verification of reread bytes against the expected
// pattern snapshot.
type VerifyFunc func(ctx context.Context, data []byte) bool

// Event is the corruption event handed over by the verifier. Buffers are
// copied before use; the caller keeps ownership.
type Event struct {
	Offset       int64  // target offset of Received[0]
	Index        int    // first failing byte index in Received
	RecordNumber uint64 // 1-based record number
	Expected     []byte
	Received     []byte
	// Verify checks reread data. When nil the reread is byte-compared with
	// Expected.
	Verify VerifyFunc
	// Command describes how to reproduce the read with the exerciser.
	Command CommandInfo
}

// Attempt records one reread.
type Attempt struct {
	Number   int
	Outcome  Class
	Digest   uint64 // xxhash of the reread bytes
	Artifact string
	Elapsed  time.Duration
}

// Classification is the result of the protocol. It is additive: the
// original miscompare stands regardless of Class.
type Classification struct {
	Class     Class
	States    []State
	Attempts  []Attempt
	Direct    bool // rereads bypassed the page cache
	Stable    bool // every reread returned identical bytes
	Artifacts []string
	Commands  []string
	Err       error // reread I/O error, cancellation or termination
}

// Cancelled reports whether classification stopped early.
func (c Classification) Cancelled() bool {
	return IsCancelled(c.Err)
}

func (c Classification) String() string {
	var b strings.Builder
	b.WriteString(c.Class.String())
	if n := len(c.Attempts); n > 0 {
		fmt.Fprintf(&b, " after %d reread", n)
		if n != 1 {
			b.WriteString("s")
		}
	}
	if c.Err != nil {
		fmt.Fprintf(&b, " (%v)", c.Err)
	}
	return b.String()
}
