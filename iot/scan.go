package iot

import (
	"github.com/joshuapare/dtcheck/internal/buf"
	"github.com/joshuapare/dtcheck/pattern"
)

const wordSize = pattern.WordSize

// ScanOptions tunes ScanForValidSequence.
type ScanOptions struct {
	// BaseSeed is the pass-1 IOT seed. Defaults to pattern.DefaultIOTSeed.
	BaseSeed uint32
	// PriorSeed is the seed of the immediately prior pass, accepted even
	// when it is not a multiple of BaseSeed (generation overflow).
	PriorSeed uint32
	// UnitOffset is the offset of the scanned bytes within their unit; it
	// anchors the word index used to back-compute the starting address.
	UnitOffset int
}

func (o ScanOptions) baseSeed() uint32 {
	if o.BaseSeed == 0 {
		return pattern.DefaultIOTSeed
	}
	return o.BaseSeed
}

// Sequence describes a plausible IOT run found in a buffer.
type Sequence struct {
	Offset   int    // byte offset of the first word of the run
	Word     uint32 // value of that word
	Seed     uint32 // word-to-word delta
	Pass     uint32 // Seed / BaseSeed, 0 when only PriorSeed matched
	StartLBA uint32 // implied block address of the unit's first word
}

// ScanForValidSequence slides a window across every pair of adjacent words
// of b, byte by byte, looking for a delta that can be an IOT seed. A
// candidate is plausible when both words are non-zero and the delta is a
// non-zero multiple of the base seed or equals the prior pass's seed; when a
// third word is available it must continue the sequence.
//
// A shifted window over IOT data can itself look like a sequence, so a hit
// that is not word aligned within the unit gives way to a word-aligned hit
// in the next three bytes.
func ScanForValidSequence(b []byte, opts ScanOptions) (Sequence, bool) {
	base := opts.baseSeed()
	for off := 0; off+2*wordSize <= len(b); off++ {
		seq, ok := candidate(b, off, base, opts)
		if !ok {
			continue
		}
		if skew := (opts.UnitOffset + off) % wordSize; skew != 0 {
			if aligned, ok := candidate(b, off+wordSize-skew, base, opts); ok {
				return aligned, true
			}
		}
		return seq, true
	}
	return Sequence{}, false
}

func candidate(b []byte, off int, base uint32, opts ScanOptions) (Sequence, bool) {
	pair, ok := buf.Slice(b, off, 2*wordSize)
	if !ok {
		return Sequence{}, false
	}
	w0 := buf.U32BE(pair)
	w1 := buf.U32BE(pair[wordSize:])
	if w0 == 0 || w1 == 0 {
		return Sequence{}, false
	}
	d := w1 - w0
	if !plausible(d, base, opts.PriorSeed) {
		return Sequence{}, false
	}
	if next, ok := buf.Slice(b, off+2*wordSize, wordSize); ok && buf.U32BE(next)-w1 != d {
		return Sequence{}, false
	}

	seq := Sequence{Offset: off, Word: w0, Seed: d}
	if d%base == 0 {
		seq.Pass = d / base
	}
	index := uint32((opts.UnitOffset + off) / wordSize)
	seq.StartLBA = w0 - d*index
	return seq, true
}

func plausible(d, base, prior uint32) bool {
	if d == 0 {
		return false
	}
	if prior != 0 && d == prior {
		return true
	}
	return d%base == 0
}
