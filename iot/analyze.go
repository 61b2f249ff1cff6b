package iot

import (
	"fmt"

	"github.com/joshuapare/dtcheck/internal/buf"
)

// VerdictKind classifies a bad IOT block.
type VerdictKind int

const (
	// VerdictScrambled means no plausible IOT sequence was found.
	VerdictScrambled VerdictKind = iota
	// VerdictZero means the block is entirely zero (unwritten or discarded extent).
	VerdictZero
	// VerdictStale means the block holds this address from an older pass.
	VerdictStale
	// VerdictMisplaced means the block holds data written for another address.
	VerdictMisplaced
	// VerdictPartial means the expected sequence is present but parts of the
	// block differ.
	VerdictPartial
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictScrambled:
		return "wrong data (no IOT sequence found)"
	case VerdictZero:
		return "all zero"
	case VerdictStale:
		return "stale data"
	case VerdictMisplaced:
		return "wrong block"
	case VerdictPartial:
		return "partial corruption"
	default:
		return "unknown"
	}
}

// AnalyzeOptions describes what a bad block should have contained.
type AnalyzeOptions struct {
	ScanOptions
	ExpectedLBA uint32
	Generation  uint32
}

// Verdict is the forensic classification of one bad block.
type Verdict struct {
	Kind     VerdictKind
	Sequence Sequence
	Found    bool
}

func (v Verdict) String() string {
	if !v.Found {
		return v.Kind.String()
	}
	return fmt.Sprintf("%s: sequence at offset %d implies lba %d pass %d (seed 0x%08X)",
		v.Kind, v.Sequence.Offset, v.Sequence.StartLBA, v.Sequence.Pass, v.Sequence.Seed)
}

// AnalyzeBlock classifies a block that failed comparison.
func AnalyzeBlock(block []byte, opts AnalyzeOptions) Verdict {
	if buf.IsZero(block) {
		return Verdict{Kind: VerdictZero}
	}
	seq, ok := ScanForValidSequence(block, opts.ScanOptions)
	if !ok {
		return Verdict{Kind: VerdictScrambled}
	}
	v := Verdict{Sequence: seq, Found: true}
	gen := opts.Generation
	if gen == 0 {
		gen = 1
	}
	switch {
	case seq.StartLBA != opts.ExpectedLBA:
		v.Kind = VerdictMisplaced
	case seq.Seed != opts.baseSeed()*gen:
		v.Kind = VerdictStale
	default:
		v.Kind = VerdictPartial
	}
	return v
}
