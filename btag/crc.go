package btag

import (
	"fmt"
	"hash/crc32"
	"time"

	"github.com/joshuapare/dtcheck/internal/buf"
)

var zeroCRC [crcLen]byte

// crcOffsetOf locates the CRC within an encoded tag using its own opaque
// size field. ok is false when the field points outside unit.
func crcOffsetOf(unit []byte) (int, bool) {
	if len(unit) < Size {
		return 0, false
	}
	n := int(buf.U16LE(unit[OpaqueSizeOffset:]))
	if n > MaxOpaqueSize {
		return 0, false
	}
	off := crcOffset(n)
	return off, buf.Has(unit, off, crcLen)
}

// CRC computes the IEEE CRC32 of unit with the stored CRC bytes read as
// zero. unit is not modified.
func CRC(unit []byte) (uint32, error) {
	off, ok := crcOffsetOf(unit)
	if !ok {
		return 0, fmt.Errorf("%w: cannot locate crc in %d byte unit", ErrTruncated, len(unit))
	}
	return crcAt(unit, off), nil
}

func crcAt(unit []byte, off int) uint32 {
	c := crc32.Update(0, crc32.IEEETable, unit[:off])
	c = crc32.Update(c, crc32.IEEETable, zeroCRC[:])
	return crc32.Update(c, crc32.IEEETable, unit[off+crcLen:])
}

// StoredCRC returns the CRC recorded in the unit's tag.
func StoredCRC(unit []byte) (uint32, bool) {
	off, ok := crcOffsetOf(unit)
	if !ok {
		return 0, false
	}
	return buf.U32LE(unit[off:]), true
}

// CheckCRC recomputes the unit CRC and compares it with the stored value.
func CheckCRC(unit []byte) (stored, computed uint32, ok bool) {
	off, found := crcOffsetOf(unit)
	if !found {
		return 0, 0, false
	}
	stored = buf.U32LE(unit[off:])
	computed = crcAt(unit, off)
	return stored, computed, stored == computed
}

// Seal encodes t at the head of unit and stores the CRC computed over the
// whole unit. t.CRC is updated to the stored value.
func (t *Tag) Seal(unit []byte) error {
	if len(unit) < t.EncodedSize() {
		return fmt.Errorf("%w: unit %d bytes, tag %d bytes", ErrUnitTooSmall, len(unit), t.EncodedSize())
	}
	t.CRC = 0
	if err := t.Encode(unit); err != nil {
		return err
	}
	off := t.CRCOffset()
	t.CRC = crcAt(unit, off)
	buf.PutU32LE(unit[off:], t.CRC)
	return nil
}

// Update refreshes the position, record and write-time fields of t, then
// seals it into unit. Called for every unit immediately before a write.
func Update(unit []byte, t *Tag, pos Position, now time.Time) error {
	pos.apply(t)
	t.WriteSecs = uint32(now.Unix())
	t.WriteUsecs = uint32(now.Nanosecond() / int(time.Microsecond))
	return t.Seal(unit)
}
