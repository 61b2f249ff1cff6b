package buf

// Window is a bounded view [Off, Off+Len) relative to the start of a unit.
// Codecs compute windows once per unit and slice through them instead of
// walking raw offsets across the tag, prefix and payload regions.
type Window struct {
	Off int
	Len int
}

// End returns the exclusive end offset of the window.
func (w Window) End() int { return w.Off + w.Len }

// Empty reports whether the window covers no bytes.
func (w Window) Empty() bool { return w.Len <= 0 }

// Contains reports whether offset i falls inside the window.
func (w Window) Contains(i int) bool { return i >= w.Off && i < w.End() }

// Of returns the bytes of unit covered by the window, clipped to len(unit).
func (w Window) Of(unit []byte) []byte {
	if w.Empty() || w.Off >= len(unit) {
		return nil
	}
	if b, ok := Slice(unit, w.Off, w.Len); ok {
		return b
	}
	return unit[w.Off:]
}

// Clip returns the window truncated to a unit of size n.
func (w Window) Clip(n int) Window {
	if w.Off >= n {
		return Window{Off: n}
	}
	if w.End() > n {
		return Window{Off: w.Off, Len: n - w.Off}
	}
	return w
}
