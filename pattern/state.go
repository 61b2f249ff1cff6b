package pattern

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joshuapare/dtcheck/internal/buf"
)

const (
	// DefaultPattern is the fixed pattern used when none is configured.
	DefaultPattern uint32 = 0x39c39c39

	// DefaultIOTSeed is the base IOT seed. The effective seed for a pass is
	// DefaultIOTSeed * generation.
	DefaultIOTSeed uint32 = 0x01010101
)

var (
	// ErrEmptyPattern indicates a pattern file or ASCII string with no bytes.
	ErrEmptyPattern = errors.New("pattern: empty pattern data")
	// ErrBadUnitSize indicates a unit size that cannot hold its header.
	ErrBadUnitSize = errors.New("pattern: unit size too small for header")
)

// Options configures a State. Zero values select the defaults noted per field.
type Options struct {
	Kind       Kind
	Value      uint32 // KindPattern; default DefaultPattern
	ASCII      string // KindASCII
	File       []byte // KindFile; see LoadFile
	IOTSeed    uint32 // KindIOT base seed; default DefaultIOTSeed
	Generation uint32 // pass count; default 1

	UnitSize  int    // lbdata size; default DefaultUnitSize
	TagSize   int    // bytes reserved for a block tag per unit
	Prefix    string // written at the head of every unit after the tag
	Timestamp bool   // embed epoch seconds after the prefix
	LBData    bool   // embed the block address after the prefix

	// Now supplies the write timestamp. Defaults to time.Now.
	Now func() time.Time
}

// LoadFile reads pattern bytes for KindFile from path.
func LoadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pattern: read pattern file: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyPattern
	}
	return data, nil
}

// State is the per-stream pattern state: the cyclic pattern buffer, its
// cursor, and the unit decorations.
type State struct {
	kind       Kind
	value      uint32
	pbuf       []byte // cyclic pattern buffer (nil for IOT)
	cursor     int
	baseSeed   uint32
	generation uint32
	prefix     []byte // padded to WordSize
	rawPrefix  string
	layout     Layout
	now        func() time.Time
}

// Snapshot captures the mutable part of a State.
type Snapshot struct {
	Cursor     int
	Generation uint32
}

// New allocates the pattern buffer described by opts.
func New(opts Options) (*State, error) {
	s := &State{
		kind:       opts.Kind,
		value:      opts.Value,
		baseSeed:   opts.IOTSeed,
		generation: opts.Generation,
		rawPrefix:  opts.Prefix,
		now:        opts.Now,
	}
	if s.baseSeed == 0 {
		s.baseSeed = DefaultIOTSeed
	}
	if s.generation == 0 {
		s.generation = 1
	}
	if s.now == nil {
		s.now = time.Now
	}

	switch opts.Kind {
	case KindPattern:
		if s.value == 0 {
			s.value = DefaultPattern
		}
		s.pbuf = make([]byte, WordSize)
		FillPattern(s.pbuf, s.value)
	case KindASCII:
		if opts.ASCII == "" {
			return nil, ErrEmptyPattern
		}
		s.pbuf = []byte(opts.ASCII)
		var packed [WordSize]byte
		copy(packed[:], s.pbuf)
		s.value = buf.U32LE(packed[:])
	case KindIncrement:
		s.pbuf = make([]byte, 256)
		for i := range s.pbuf {
			s.pbuf[i] = byte(i)
		}
	case KindIOT:
		s.value = s.baseSeed
	case KindFile:
		if len(opts.File) == 0 {
			return nil, ErrEmptyPattern
		}
		s.pbuf = append([]byte(nil), opts.File...)
	default:
		return nil, fmt.Errorf("pattern: unsupported kind %v", opts.Kind)
	}

	if opts.Prefix != "" {
		s.prefix = make([]byte, buf.AlignUp(len(opts.Prefix), WordSize))
		copy(s.prefix, opts.Prefix)
	}

	unit := opts.UnitSize
	if unit == 0 {
		unit = DefaultUnitSize
	}
	s.layout = Layout{
		UnitSize:  unit,
		TagSize:   opts.TagSize,
		PrefixLen: len(s.prefix),
		Timestamp: opts.Timestamp,
		LBAWord:   opts.LBData && opts.Kind != KindIOT,
	}
	if s.layout.HeaderRegion().End() > unit {
		return nil, fmt.Errorf("%w: header %d bytes, unit %d bytes",
			ErrBadUnitSize, s.layout.HeaderRegion().End(), unit)
	}
	return s, nil
}

// FillPattern repeats value across b one byte at a time, little-endian:
// b[i] = byte(value >> (8 * (i % 4))).
func FillPattern(b []byte, value uint32) {
	for i := range b {
		b[i] = byte(value >> (8 * uint(i%WordSize)))
	}
}

func (s *State) Kind() Kind         { return s.kind }
func (s *State) Layout() Layout     { return s.layout }
func (s *State) Generation() uint32 { return s.generation }
func (s *State) BaseSeed() uint32   { return s.baseSeed }
func (s *State) Prefix() string     { return s.rawPrefix }
func (s *State) Cursor() int        { return s.cursor }

// Value returns the pattern descriptor recorded in block tags: the fixed
// value, the packed ASCII value, or the effective IOT seed.
func (s *State) Value() uint32 {
	if s.kind == KindIOT {
		return s.Seed()
	}
	return s.value
}

// Seed returns the effective IOT seed for the current generation.
func (s *State) Seed() uint32 { return s.baseSeed * s.generation }

// SetGeneration switches to a new pass.
func (s *State) SetGeneration(n uint32) {
	if n == 0 {
		n = 1
	}
	s.generation = n
}

// Reset rewinds the cursor to the start of the pattern buffer.
func (s *State) Reset() { s.cursor = 0 }

// Snapshot returns the current cursor and generation.
func (s *State) Snapshot() Snapshot {
	return Snapshot{Cursor: s.cursor, Generation: s.generation}
}

// Restore rewinds the state to a previous snapshot.
func (s *State) Restore(snap Snapshot) {
	s.cursor = snap.Cursor
	s.SetGeneration(snap.Generation)
}

// Seek positions the cursor as if offset bytes had been generated from the
// start of the target.
func (s *State) Seek(offset int64) {
	if len(s.pbuf) == 0 {
		return
	}
	s.cursor = int(offset % int64(len(s.pbuf)))
}

// Reconstructable reports whether the expected data for a record at offset
// can be rebuilt from the pattern parameters alone, which is what a
// single-record re-read needs.
func (s *State) Reconstructable(offset int64) bool {
	switch s.kind {
	case KindIOT:
		return true
	case KindFile:
		return false
	default:
		return offset%int64(len(s.pbuf)) == 0
	}
}

// Generate fills dst with the data to write for a record starting at lba
// and returns the block address following the record.
func (s *State) Generate(dst []byte, lba uint64) uint64 {
	return s.fill(dst, lba, uint32(s.now().Unix()))
}

// Expected fills dst with the data a reader expects for a record starting
// at lba. Timestamp slots are zero and must be masked during comparison.
func (s *State) Expected(dst []byte, lba uint64) uint64 {
	return s.fill(dst, lba, 0)
}

// Compare checks received against the expected data for a record starting
// at lba, skipping masked regions, and returns the first mismatching index.
// Like Expected it consumes len(received) bytes of the cyclic pattern.
func (s *State) Compare(received []byte, lba uint64) (int, bool) {
	exp := make([]byte, len(received))
	s.Expected(exp, lba)
	return s.layout.Compare(exp, received)
}

func (s *State) fill(dst []byte, lba uint64, stamp uint32) uint64 {
	l := s.layout
	for u := 0; u < l.Units(len(dst)); u++ {
		unit := l.Unit(dst, u)
		if s.kind == KindIOT {
			FillIOT(unit, uint32(lba), s.Seed())
		} else {
			s.copyCyclic(unit)
		}
		s.decorate(unit, lba, stamp)
		lba++
	}
	return lba
}

func (s *State) copyCyclic(dst []byte) {
	for n := 0; n < len(dst); {
		c := copy(dst[n:], s.pbuf[s.cursor:])
		n += c
		s.cursor = (s.cursor + c) % len(s.pbuf)
	}
}

func (s *State) decorate(unit []byte, lba uint64, stamp uint32) {
	l := s.layout
	if len(s.prefix) > 0 {
		copy(l.PrefixRegion().Of(unit), s.prefix)
	}
	slot := l.Slot()
	if slot.Empty() || slot.End() > len(unit) {
		return
	}
	if l.Timestamp {
		buf.PutU32BE(slot.Of(unit), stamp)
		return
	}
	buf.PutU32BE(slot.Of(unit), uint32(lba))
}

// FillIOT writes IOT words for a single unit starting at block address lba
// and returns the next block address.
func FillIOT(unit []byte, lba, seed uint32) uint32 {
	word := lba
	i := 0
	for ; i+WordSize <= len(unit); i += WordSize {
		buf.PutU32BE(unit[i:], word)
		word += seed
	}
	if i < len(unit) {
		var tail [WordSize]byte
		buf.PutU32BE(tail[:], ^word)
		copy(unit[i:], tail[:])
	}
	return lba + 1
}
