// Package buf contains the endian helpers and bounded byte windows shared by
// the pattern, block tag and IOT codecs.
//
// Every getter tolerates short input and returns zero, and every putter is a
// no-op when the destination is too small, so codecs can operate on partial
// (truncated) units without panicking.
package buf

import "encoding/binary"

// U16LE reads a little-endian uint16 from b. Returns 0 when b is too short.
func U16LE(b []byte) uint16 {
	if len(b) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// U32LE reads a little-endian uint32 from b. Returns 0 when b is too short.
func U32LE(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// U64LE reads a little-endian uint64 from b. Returns 0 when b is too short.
func U64LE(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// U32BE reads a big-endian uint32 from b. Returns 0 when b is too short.
// IOT words and embedded block addresses are stored big-endian.
func U32BE(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

// PutU16LE stores v little-endian at the start of b.
func PutU16LE(b []byte, v uint16) {
	if len(b) < 2 {
		return
	}
	binary.LittleEndian.PutUint16(b, v)
}

// PutU32LE stores v little-endian at the start of b.
func PutU32LE(b []byte, v uint32) {
	if len(b) < 4 {
		return
	}
	binary.LittleEndian.PutUint32(b, v)
}

// PutU64LE stores v little-endian at the start of b.
func PutU64LE(b []byte, v uint64) {
	if len(b) < 8 {
		return
	}
	binary.LittleEndian.PutUint64(b, v)
}

// PutU32BE stores v big-endian at the start of b.
func PutU32BE(b []byte, v uint32) {
	if len(b) < 4 {
		return
	}
	binary.BigEndian.PutUint32(b, v)
}
