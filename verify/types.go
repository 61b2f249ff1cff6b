package verify

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshuapare/dtcheck/btag"
	"github.com/joshuapare/dtcheck/iot"
	"github.com/joshuapare/dtcheck/reread"
)

var (
	// ErrMiscompare is matched by every *MiscompareError.
	ErrMiscompare = errors.New("verify: data miscompare")
	// ErrEmptyRecord is returned for a record with no data.
	ErrEmptyRecord = errors.New("verify: empty record")
)

// Strategy is the verification method chosen for a record.
type Strategy int

const (
	StrategyPlain Strategy = iota
	StrategyPrefix
	StrategyLBA
	StrategyBlockTag
)

func (s Strategy) String() string {
	switch s {
	case StrategyPlain:
		return "pattern"
	case StrategyPrefix:
		return "prefix"
	case StrategyLBA:
		return "lbdata"
	case StrategyBlockTag:
		return "btag"
	default:
		return "unknown"
	}
}

// Event is a trigger point for external handlers.
type Event int

const (
	OnMiscompare Event = iota
	OnError
	OnNoProgress
)

func (e Event) String() string {
	switch e {
	case OnMiscompare:
		return "miscompare"
	case OnError:
		return "error"
	case OnNoProgress:
		return "no progress"
	default:
		return "unknown"
	}
}

// Handler receives trigger events. OnMiscompare is delivered exactly once
// per failing Verify call.
type Handler interface {
	Handle(ctx context.Context, ev Event, res *Result)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Event, res *Result)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, ev Event, res *Result) { f(ctx, ev, res) }

// Classifier classifies a miscompare by rereading it.
type Classifier interface {
	Classify(ctx context.Context, ev reread.Event) reread.Classification
}

// Record is one read to verify.
type Record struct {
	Data         []byte
	Offset       int64  // target offset of Data[0]
	LBA          uint64 // block address of the first unit
	RecordIndex  uint32
	RecordNumber uint32 // 1-based
	StepOffset   uint64
	IsRAW        bool // read-after-write
}

// Result is the outcome of verifying one record.
type Result struct {
	OK       bool
	Strategy Strategy

	// Index is the first mismatching byte in the record, -1 on success.
	Index  int
	Offset int64 // target offset of Index
	Unit   int   // unit holding Index
	LBA    uint64

	Expected byte
	Received byte

	// Tag is set when a block tag failed verification.
	Tag *btag.VerifyResult
	// Field names the failing block tag field or region.
	Field string

	// Verdict and Runs hold IOT forensic analysis.
	Verdict *iot.Verdict
	Runs    *iot.Summary

	Classification *reread.Classification
	Detail         string
}

// MiscompareError reports a failed verification. Classification, when
// present, is additional evidence and never replaces the failure.
type MiscompareError struct {
	Target string
	Result Result
}

func (e *MiscompareError) Error() string {
	r := e.Result
	msg := fmt.Sprintf("verify: data miscompare in %s at offset %d (record index %d, %s)",
		e.Target, r.Offset, r.Index, r.Strategy)
	if r.Field != "" {
		msg += ": " + r.Field
	}
	if r.Classification != nil {
		msg += ": " + r.Classification.String()
	}
	return msg
}

// Unwrap lets errors.Is match ErrMiscompare.
func (e *MiscompareError) Unwrap() error { return ErrMiscompare }
