package device

import "sort"

// Extent maps a logical byte range of a target onto physical blocks.
type Extent struct {
	Logical  int64  // byte offset in the target
	Length   int64  // bytes
	Physical uint64 // first physical block
}

// StaticExtents resolves target offsets to physical blocks from a fixed
// extent list, e.g. one captured with filefrag. Extents are sorted by
// Logical and do not overlap.
type StaticExtents struct {
	BlockSize int64
	Extents   []Extent
}

// Linear maps every offset of a block device onto itself.
func Linear(blockSize int64) *StaticExtents {
	return &StaticExtents{
		BlockSize: blockSize,
		Extents:   []Extent{{Logical: 0, Length: 1<<63 - 1, Physical: 0}},
	}
}

// ResolvePhysical returns the physical block holding off.
func (s *StaticExtents) ResolvePhysical(off int64) (uint64, bool) {
	if s == nil || s.BlockSize <= 0 || off < 0 {
		return 0, false
	}
	i := sort.Search(len(s.Extents), func(i int) bool {
		e := s.Extents[i]
		return e.Logical+e.Length > off
	})
	if i == len(s.Extents) || s.Extents[i].Logical > off {
		return 0, false
	}
	e := s.Extents[i]
	return e.Physical + uint64((off-e.Logical)/s.BlockSize), true
}
