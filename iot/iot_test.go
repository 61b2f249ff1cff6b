package iot

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/dtcheck/internal/buf"
	"github.com/joshuapare/dtcheck/pattern"
)

const base = pattern.DefaultIOTSeed

func iotUnit(n int, lba, seed uint32) []byte {
	b := make([]byte, n)
	pattern.FillIOT(b, lba, seed)
	return b
}

func words(ws ...uint32) []byte {
	b := make([]byte, 4*len(ws))
	for i, w := range ws {
		buf.PutU32BE(b[4*i:], w)
	}
	return b
}

func TestScanFindsSequenceAfterNoise(t *testing.T) {
	for _, k := range []int{4, 8, 12, 40} {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			noise := bytes.Repeat([]byte{0xA5}, k)
			b := append(noise, iotUnit(256, 1000, base)...)

			seq, ok := ScanForValidSequence(b, ScanOptions{})
			require.True(t, ok)
			require.Equal(t, k, seq.Offset)
			require.Equal(t, uint32(base), seq.Seed)
			require.Equal(t, uint32(1), seq.Pass)
			require.Equal(t, uint32(1000), seq.Word)
			require.Equal(t, uint32(1000)-uint32(k/4)*base, seq.StartLBA)
		})
	}
}

func TestScanPrefersAlignedSequence(t *testing.T) {
	// 0x0F followed by the first word 0x00000010 reads as a valid run one
	// byte early.
	noise := bytes.Repeat([]byte{0xA5}, 8)
	noise[7] = 0x0F
	b := append(noise, iotUnit(256, 0x10, base)...)

	seq, ok := ScanForValidSequence(b, ScanOptions{})
	require.True(t, ok)
	require.Equal(t, 8, seq.Offset)
	require.Equal(t, uint32(0x10), seq.Word)
	start := uint32(0x10)
	start -= 2 * base
	require.Equal(t, start, seq.StartLBA)
}

func TestScanReportsPass(t *testing.T) {
	seq, ok := ScanForValidSequence(iotUnit(512, 42, 3*base), ScanOptions{})
	require.True(t, ok)
	require.Equal(t, 0, seq.Offset)
	require.Equal(t, uint32(3), seq.Pass)
	require.Equal(t, uint32(42), seq.StartLBA)
}

func TestScanUsesUnitOffset(t *testing.T) {
	unit := iotUnit(512, 77, base)
	seq, ok := ScanForValidSequence(unit[16:], ScanOptions{UnitOffset: 16})
	require.True(t, ok)
	require.Equal(t, 0, seq.Offset)
	require.Equal(t, uint32(77), seq.StartLBA)
}

func TestScanAcceptsPriorSeed(t *testing.T) {
	const odd = 0x12345678
	b := iotUnit(256, 50, odd)

	seq, ok := ScanForValidSequence(b, ScanOptions{})
	require.True(t, !ok || seq.Offset != 0)

	seq, ok = ScanForValidSequence(b, ScanOptions{PriorSeed: odd})
	require.True(t, ok)
	require.Equal(t, 0, seq.Offset)
	require.Equal(t, uint32(odd), seq.Seed)
	require.Zero(t, seq.Pass)
	require.Equal(t, uint32(50), seq.StartLBA)
}

func TestScanRequiresConfirmation(t *testing.T) {
	b := words(0x10, 0x10+base, 0x77777777, 0x12, 0x12+base, 0x12+2*base)
	seq, ok := ScanForValidSequence(b, ScanOptions{})
	require.True(t, ok)
	require.Equal(t, 12, seq.Offset)
	start := uint32(0x12)
	start -= 3 * base
	require.Equal(t, start, seq.StartLBA)
}

func TestScanNotFound(t *testing.T) {
	_, ok := ScanForValidSequence(make([]byte, 512), ScanOptions{})
	require.False(t, ok)

	_, ok = ScanForValidSequence(bytes.Repeat([]byte{0xA5}, 512), ScanOptions{})
	require.False(t, ok)

	_, ok = ScanForValidSequence(iotUnit(7, 1, base), ScanOptions{})
	require.False(t, ok)
}

func TestAnalyzeBlock(t *testing.T) {
	partial := iotUnit(512, 77, 2*base)
	copy(partial[100:108], bytes.Repeat([]byte{0xFF}, 8))

	tests := []struct {
		name  string
		block []byte
		want  VerdictKind
		found bool
	}{
		{"zero", make([]byte, 512), VerdictZero, false},
		{"stale", iotUnit(512, 77, base), VerdictStale, true},
		{"misplaced", iotUnit(512, 78, 2*base), VerdictMisplaced, true},
		{"partial", partial, VerdictPartial, true},
		{"scrambled", bytes.Repeat([]byte{0xA5}, 512), VerdictScrambled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := AnalyzeBlock(tt.block, AnalyzeOptions{ExpectedLBA: 77, Generation: 2})
			require.Equal(t, tt.want, v.Kind, v.String())
			require.Equal(t, tt.found, v.Found)
		})
	}
}

func TestAnalyzeBlockMisplacedReportsAddress(t *testing.T) {
	v := AnalyzeBlock(iotUnit(512, 900, base), AnalyzeOptions{ExpectedLBA: 12, Generation: 1})
	require.Equal(t, VerdictMisplaced, v.Kind)
	require.Equal(t, uint32(900), v.Sequence.StartLBA)
	require.Contains(t, v.String(), "lba 900")
}

type linearResolver uint64

func (r linearResolver) ResolvePhysical(off int64) (uint64, bool) {
	return uint64(r) + uint64(off/512), true
}

func TestClassifySequenceRun(t *testing.T) {
	const bs = 512
	expected := make([]byte, 8*bs)
	for i := 0; i < 8; i++ {
		pattern.FillIOT(expected[i*bs:(i+1)*bs], uint32(8+i), base)
	}
	received := append([]byte(nil), expected...)
	received[2*bs+10] ^= 0xFF
	received[3*bs+500] ^= 0xFF
	clear(received[5*bs : 7*bs])

	s := ClassifySequenceRun(received, expected, bs, RunOptions{
		BaseOffset: 4096,
		FirstBlock: 8,
		Resolver:   linearResolver(1000),
	})

	require.Equal(t, 4, s.GoodBlocks)
	require.Equal(t, 4, s.BadBlocks)
	require.Equal(t, 2, s.ZeroBlocks)
	require.Equal(t, 2, s.FirstBad)
	require.Len(t, s.Runs, 5)

	want := []struct {
		good, zero bool
		start      uint64
		count      int
	}{
		{true, false, 8, 2},
		{false, false, 10, 2},
		{true, false, 12, 1},
		{false, true, 13, 2},
		{true, false, 15, 1},
	}
	for i, w := range want {
		r := s.Runs[i]
		require.Equal(t, w.good, r.Good, "run %d", i)
		require.Equal(t, w.zero, r.Zero, "run %d", i)
		require.Equal(t, w.start, r.StartBlock, "run %d", i)
		require.Equal(t, w.count, r.Count, "run %d", i)
	}
	require.Equal(t, int64(4096+2*bs), s.Runs[1].Offset)
	require.True(t, s.Runs[1].HasPhysical)
	require.Equal(t, uint64(1000+10), s.Runs[1].Physical)

	out := s.String()
	require.Contains(t, out, "BAD (zero)")
	require.Contains(t, out, "blocks 10-11 (2)")
	require.Contains(t, out, "physical 1010")
}

func TestClassifySequenceRunPartialBlock(t *testing.T) {
	expected := iotUnit(1000, 1, base)
	received := append([]byte(nil), expected...)
	received[999] ^= 1

	s := ClassifySequenceRun(received, expected, 512, RunOptions{})
	require.Len(t, s.Runs, 2)
	require.Equal(t, 1, s.GoodBlocks)
	require.Equal(t, 1, s.BadBlocks)
	require.False(t, s.Runs[1].HasPhysical)

	require.Empty(t, ClassifySequenceRun(received, expected, 0, RunOptions{}).Runs)
}
