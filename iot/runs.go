package iot

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/joshuapare/dtcheck/btag"
	"github.com/joshuapare/dtcheck/internal/buf"
)

// Run is a maximal sequence of consecutive blocks with the same state.
type Run struct {
	Good       bool
	Zero       bool // bad run made of all-zero blocks
	StartBlock uint64
	Count      int
	Offset     int64 // byte offset of the first block in the target

	Physical    uint64 // physical block, when HasPhysical
	HasPhysical bool
}

// RunOptions locates the compared range within its target.
type RunOptions struct {
	BaseOffset int64  // target offset of the first byte
	FirstBlock uint64 // block number of the first block
	Resolver   btag.Resolver
}

// Summary is the good/bad block sequence for one record.
type Summary struct {
	BlockSize  int
	Runs       []Run
	GoodBlocks int
	BadBlocks  int
	ZeroBlocks int
	FirstBad   int // index of the first bad block, -1 when none
}

// ClassifySequenceRun walks received in blockSize steps, compares each block
// with the same block of expected and coalesces consecutive blocks of equal
// state into runs. Bad blocks that are entirely zero are counted separately
// and never share a run with non-zero bad blocks.
func ClassifySequenceRun(received, expected []byte, blockSize int, opts RunOptions) Summary {
	s := Summary{BlockSize: blockSize, FirstBad: -1}
	if blockSize <= 0 {
		return s
	}
	n := len(received)
	if len(expected) < n {
		n = len(expected)
	}

	for i := 0; i*blockSize < n; i++ {
		start := i * blockSize
		end := start + blockSize
		if end > n {
			end = n
		}
		got := received[start:end]
		good := bytes.Equal(got, expected[start:end])
		zero := !good && buf.IsZero(got)

		switch {
		case good:
			s.GoodBlocks++
		case zero:
			s.BadBlocks++
			s.ZeroBlocks++
		default:
			s.BadBlocks++
		}
		if !good && s.FirstBad < 0 {
			s.FirstBad = i
		}

		if last := len(s.Runs) - 1; last >= 0 && s.Runs[last].Good == good && s.Runs[last].Zero == zero {
			s.Runs[last].Count++
			continue
		}
		r := Run{
			Good:       good,
			Zero:       zero,
			StartBlock: opts.FirstBlock + uint64(i),
			Count:      1,
			Offset:     opts.BaseOffset + int64(start),
		}
		if opts.Resolver != nil {
			r.Physical, r.HasPhysical = opts.Resolver.ResolvePhysical(r.Offset)
		}
		s.Runs = append(s.Runs, r)
	}
	return s
}

// String renders the run summary, one line per run.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Block sequence (%s blocks): %d good, %d bad, %d zero\n",
		humanize.IBytes(uint64(s.BlockSize)), s.GoodBlocks, s.BadBlocks, s.ZeroBlocks)
	for _, r := range s.Runs {
		state := "good"
		switch {
		case r.Zero:
			state = "BAD (zero)"
		case !r.Good:
			state = "BAD"
		}
		fmt.Fprintf(&b, "  %-10s blocks %d-%d (%d), offset %d", state,
			r.StartBlock, r.StartBlock+uint64(r.Count)-1, r.Count, r.Offset)
		if r.HasPhysical {
			fmt.Fprintf(&b, ", physical %d", r.Physical)
		}
		b.WriteString("\n")
	}
	return b.String()
}
