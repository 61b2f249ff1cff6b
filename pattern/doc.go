// Package pattern generates the deterministic, self-describing data written
// by the exerciser and reconstructs the same bytes on the read side.
//
// # Overview
//
// A State is owned by exactly one I/O stream. It holds the cyclic pattern
// buffer, its cursor, and the per-unit decorations (block tag reservation,
// prefix string, lbdata word, timestamp). Generate fills a record for the
// write path; Expected fills the same bytes for the read path with the
// timestamp slot zeroed, because a reader cannot know when a unit was
// written.
//
// Supported kinds:
//   - KindPattern: a 32-bit value repeated byte-at-a-time, little-endian
//   - KindASCII: an arbitrary string repeated cyclically
//   - KindIncrement: the byte sequence 0x00..0xFF repeated
//   - KindIOT: per-unit block-address words (lba, lba+seed, lba+2*seed, ...)
//   - KindFile: caller-supplied pattern bytes repeated cyclically
//
// # Unit layout
//
// A record is split into units of Layout.UnitSize bytes (the lbdata size).
// Each unit is laid out as:
//
//	[block tag][prefix, NUL padded to 4][slot word][pattern payload ...]
//
// The slot word holds either the big-endian epoch seconds (timestamp) or
// the big-endian block address (lbdata). When both are enabled the
// timestamp wins and the address is not encoded in that unit.
//
// # IOT
//
// IOT words are big-endian. Word i of a unit holds lba + i*seed where
// seed = base seed * generation, so data left over from an earlier pass is
// distinguishable from current data. A unit whose size is not a multiple of
// the word size ends with the complement of the word that would have come
// next, which makes truncated units obvious in a dump.
//
// # Thread Safety
//
// State is NOT safe for concurrent use.
package pattern
