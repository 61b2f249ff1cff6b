package pattern

import "github.com/joshuapare/dtcheck/internal/buf"

const (
	// WordSize is the width of a pattern, IOT, lbdata or timestamp word.
	WordSize = 4

	// DefaultUnitSize is the default lbdata size.
	DefaultUnitSize = 512
)

// Layout describes where each region lives inside a verification unit.
// Regions are computed once and handed out as bounded windows.
type Layout struct {
	UnitSize  int  // bytes per unit (lbdata size)
	TagSize   int  // bytes reserved for a block tag at the head of each unit
	PrefixLen int  // prefix length, already padded to WordSize
	Timestamp bool // slot holds epoch seconds
	LBAWord   bool // slot holds the block address (ignored when Timestamp is set)
}

// TagRegion covers the block tag reservation.
func (l Layout) TagRegion() buf.Window {
	return buf.Window{Off: 0, Len: l.TagSize}
}

// PrefixRegion covers the padded prefix string.
func (l Layout) PrefixRegion() buf.Window {
	return buf.Window{Off: l.TagSize, Len: l.PrefixLen}
}

// Slot covers the word following the prefix, or is empty when neither
// timestamps nor lbdata are enabled.
func (l Layout) Slot() buf.Window {
	if !l.Timestamp && !l.LBAWord {
		return buf.Window{Off: l.TagSize + l.PrefixLen}
	}
	return buf.Window{Off: l.TagSize + l.PrefixLen, Len: WordSize}
}

// HeaderRegion covers tag, prefix and slot.
func (l Layout) HeaderRegion() buf.Window {
	return buf.Window{Off: 0, Len: l.Slot().End()}
}

// PayloadRegion covers the pattern bytes following the header.
func (l Layout) PayloadRegion() buf.Window {
	start := l.HeaderRegion().End()
	if start >= l.UnitSize {
		return buf.Window{Off: l.UnitSize}
	}
	return buf.Window{Off: start, Len: l.UnitSize - start}
}

// Units returns the number of (possibly partial) units in n bytes.
func (l Layout) Units(n int) int {
	if l.UnitSize <= 0 || n <= 0 {
		return 0
	}
	return (n + l.UnitSize - 1) / l.UnitSize
}

// Unit returns unit i of b, truncated when b ends mid-unit.
func (l Layout) Unit(b []byte, i int) []byte {
	start := i * l.UnitSize
	if start >= len(b) {
		return nil
	}
	end := start + l.UnitSize
	if end > len(b) {
		end = len(b)
	}
	return b[start:end]
}

// Masked reports whether byte i of a unit is excluded from a plain byte
// compare. The tag region is verified by the block tag codec and the
// timestamp slot cannot be predicted by a reader.
func (l Layout) Masked(i int) bool {
	if l.TagRegion().Contains(i) {
		return true
	}
	return l.Timestamp && l.Slot().Contains(i)
}

// Compare byte-compares received against expected unit by unit, skipping
// masked bytes. It returns the index of the first mismatching byte.
func (l Layout) Compare(expected, received []byte) (int, bool) {
	n := len(expected)
	if len(received) < n {
		n = len(received)
	}
	if l.UnitSize <= 0 {
		return firstDiff(expected[:n], received[:n], 0)
	}
	for u := 0; u*l.UnitSize < n; u++ {
		base := u * l.UnitSize
		end := base + l.UnitSize
		if end > n {
			end = n
		}
		exp := expected[base:end]
		got := received[base:end]
		pos := 0
		for _, w := range l.maskedWindows() {
			w = w.Clip(len(exp))
			if w.Off > pos {
				if i, ok := firstDiff(exp[pos:w.Off], got[pos:w.Off], base+pos); !ok {
					return i, false
				}
			}
			if w.End() > pos {
				pos = w.End()
			}
		}
		if pos < len(exp) {
			if i, ok := firstDiff(exp[pos:], got[pos:], base+pos); !ok {
				return i, false
			}
		}
	}
	if len(expected) != len(received) {
		return n, false
	}
	return -1, true
}

func (l Layout) maskedWindows() []buf.Window {
	var ws []buf.Window
	if l.TagSize > 0 {
		ws = append(ws, l.TagRegion())
	}
	if l.Timestamp {
		ws = append(ws, l.Slot())
	}
	return ws
}

func firstDiff(a, b []byte, base int) (int, bool) {
	for i := range a {
		if a[i] != b[i] {
			return base + i, false
		}
	}
	return -1, true
}
