package btag

import (
	"fmt"

	"github.com/joshuapare/dtcheck/internal/buf"
)

// Tag is the decoded form of a block tag.
type Tag struct {
	Signature   uint32
	Version     uint8
	PatternType uint8
	Flags       TagFlags

	LBA   uint64 // LBA for devices, byte offset for files
	Inode uint64 // device ID for devices, inode for files

	Serial   string
	Hostname string

	ProcessID    uint32
	JobID        uint32
	ThreadNumber uint32
	DeviceSize   uint32

	RecordIndex  uint32
	RecordSize   uint32
	RecordNumber uint32
	StepOffset   uint64

	WriteStart uint32
	WriteSecs  uint32
	WriteUsecs uint32

	Pattern    uint32
	Generation uint32

	OpaqueType uint8
	Opaque     []byte

	CRC uint32
}

// EncodedSize returns the number of bytes Encode writes.
func (t *Tag) EncodedSize() int { return t.CRCOffset() + crcLen }

// CRCOffset returns the position of the CRC within the encoded tag.
func (t *Tag) CRCOffset() int { return crcOffset(len(t.Opaque)) }

// IsFile reports whether the tag describes a file rather than a device.
func (t *Tag) IsFile() bool { return t.Flags&TagFile != 0 }

// Encode serializes t into dst. The stored CRC is t.CRC as-is; use Update
// or Seal to compute it.
func (t *Tag) Encode(dst []byte) error {
	if len(t.Opaque) > MaxOpaqueSize {
		return fmt.Errorf("%w: %d bytes", ErrOpaqueTooLarge, len(t.Opaque))
	}
	n := t.EncodedSize()
	if len(dst) < n {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, n, len(dst))
	}
	b := dst[:n]

	buf.PutU32LE(b[SignatureOffset:], t.Signature)
	b[VersionOffset] = t.Version
	b[PatternTypeOffset] = t.PatternType
	buf.PutU16LE(b[FlagsOffset:], uint16(t.Flags))
	buf.PutU64LE(b[LBAOffset:], t.LBA)
	buf.PutU64LE(b[InodeOffset:], t.Inode)
	putText(b[SerialOffset:SerialOffset+SerialLen], t.Serial)
	putText(b[HostnameOffset:HostnameOffset+HostnameLen], t.Hostname)
	buf.PutU32LE(b[ProcessIDOffset:], t.ProcessID)
	buf.PutU32LE(b[JobIDOffset:], t.JobID)
	buf.PutU32LE(b[ThreadNumberOffset:], t.ThreadNumber)
	buf.PutU32LE(b[DeviceSizeOffset:], t.DeviceSize)
	buf.PutU32LE(b[RecordIndexOffset:], t.RecordIndex)
	buf.PutU32LE(b[RecordSizeOffset:], t.RecordSize)
	buf.PutU32LE(b[RecordNumberOffset:], t.RecordNumber)
	buf.PutU64LE(b[StepOffsetOffset:], t.StepOffset)
	buf.PutU32LE(b[WriteStartOffset:], t.WriteStart)
	buf.PutU32LE(b[WriteSecsOffset:], t.WriteSecs)
	buf.PutU32LE(b[WriteUsecsOffset:], t.WriteUsecs)
	buf.PutU32LE(b[PatternOffset:], t.Pattern)
	buf.PutU32LE(b[GenerationOffset:], t.Generation)
	b[OpaqueTypeOffset] = t.OpaqueType
	buf.PutU16LE(b[OpaqueSizeOffset:], uint16(len(t.Opaque)))
	b[OpaqueSizeOffset+2] = 0

	crcOff := t.CRCOffset()
	payload := b[OpaqueDataOffset:crcOff]
	clear(payload)
	copy(payload, t.Opaque)
	buf.PutU32LE(b[crcOff:], t.CRC)
	return nil
}

// Decode parses the tag at the start of src. Decode does not validate the
// signature or CRC; see IsTag and CheckCRC.
func Decode(src []byte) (Tag, error) {
	if len(src) < Size {
		return Tag{}, fmt.Errorf("%w: have %d bytes, need %d", ErrTruncated, len(src), Size)
	}
	opaqueSize := int(buf.U16LE(src[OpaqueSizeOffset:]))
	if opaqueSize > MaxOpaqueSize {
		return Tag{}, fmt.Errorf("%w: %d bytes", ErrOpaqueTooLarge, opaqueSize)
	}
	crcOff := crcOffset(opaqueSize)
	if !buf.Has(src, crcOff, crcLen) {
		return Tag{}, fmt.Errorf("%w: opaque data of %d bytes exceeds buffer", ErrTruncated, opaqueSize)
	}

	t := Tag{
		Signature:    buf.U32LE(src[SignatureOffset:]),
		Version:      src[VersionOffset],
		PatternType:  src[PatternTypeOffset],
		Flags:        TagFlags(buf.U16LE(src[FlagsOffset:])),
		LBA:          buf.U64LE(src[LBAOffset:]),
		Inode:        buf.U64LE(src[InodeOffset:]),
		Serial:       getText(src[SerialOffset : SerialOffset+SerialLen]),
		Hostname:     getText(src[HostnameOffset : HostnameOffset+HostnameLen]),
		ProcessID:    buf.U32LE(src[ProcessIDOffset:]),
		JobID:        buf.U32LE(src[JobIDOffset:]),
		ThreadNumber: buf.U32LE(src[ThreadNumberOffset:]),
		DeviceSize:   buf.U32LE(src[DeviceSizeOffset:]),
		RecordIndex:  buf.U32LE(src[RecordIndexOffset:]),
		RecordSize:   buf.U32LE(src[RecordSizeOffset:]),
		RecordNumber: buf.U32LE(src[RecordNumberOffset:]),
		StepOffset:   buf.U64LE(src[StepOffsetOffset:]),
		WriteStart:   buf.U32LE(src[WriteStartOffset:]),
		WriteSecs:    buf.U32LE(src[WriteSecsOffset:]),
		WriteUsecs:   buf.U32LE(src[WriteUsecsOffset:]),
		Pattern:      buf.U32LE(src[PatternOffset:]),
		Generation:   buf.U32LE(src[GenerationOffset:]),
		OpaqueType:   src[OpaqueTypeOffset],
		CRC:          buf.U32LE(src[crcOff:]),
	}
	if opaqueSize > 0 {
		t.Opaque = append([]byte(nil), src[OpaqueDataOffset:OpaqueDataOffset+opaqueSize]...)
	}
	return t, nil
}

// IsTag reports whether src starts with a tag signature and known version.
func IsTag(src []byte) bool {
	return len(src) >= Size &&
		buf.U32LE(src[SignatureOffset:]) == Signature &&
		src[VersionOffset] == Version
}
