// Package btag encodes, decodes and verifies block tags: the fixed-layout
// metadata record embedded at the head of every verification unit.
//
// The wire layout is little-endian regardless of host byte order and is
// produced by explicit serialization so tags compare byte-for-byte across
// hosts.
//
//	Offset  Size  Field
//	------  ----  -----------------------------------------------------
//	 0x00    4    Signature (0xBADCAFEE)
//	 0x04    1    Version
//	 0x05    1    Pattern type
//	 0x06    2    Tag flags
//	 0x08    8    LBA (devices) or file offset (files)
//	 0x10    8    Device ID (devices) or inode (files)
//	 0x18   16    Serial number, NUL padded
//	 0x28   24    Host name, NUL padded
//	 0x40    4    Process ID
//	 0x44    4    Job ID
//	 0x48    4    Thread number
//	 0x4C    4    Device size (bytes per block)
//	 0x50    4    Record index
//	 0x54    4    Record size
//	 0x58    4    Record number
//	 0x5C    8    Step offset
//	 0x64    4    Write start (seconds)
//	 0x68    4    Write seconds
//	 0x6C    4    Write microseconds
//	 0x70    4    Pattern value or IOT seed
//	 0x74    4    Generation (pass count)
//	 0x78    1    Opaque data type
//	 0x79    2    Opaque data size
//	 0x7B    1    Reserved
//	 0x7C    N    Opaque payload (N = size rounded up to 4)
//	 0x7C+N  4    CRC32
//
// The CRC covers the whole unit [tag start, tag start + unit size) with the
// CRC bytes treated as zero.
package btag

const (
	// Signature marks the start of a block tag.
	Signature uint32 = 0xBADCAFEE

	// Version is the wire format version written by this package.
	Version uint8 = 1

	// Size is the encoded size of a tag without opaque data.
	Size = 0x80

	SerialLen   = 16
	HostnameLen = 24

	// MaxOpaqueSize bounds the opaque payload.
	MaxOpaqueSize = 0x1000

	SignatureOffset    = 0x00
	VersionOffset      = 0x04
	PatternTypeOffset  = 0x05
	FlagsOffset        = 0x06
	LBAOffset          = 0x08
	InodeOffset        = 0x10
	SerialOffset       = 0x18
	HostnameOffset     = 0x28
	ProcessIDOffset    = 0x40
	JobIDOffset        = 0x44
	ThreadNumberOffset = 0x48
	DeviceSizeOffset   = 0x4C
	RecordIndexOffset  = 0x50
	RecordSizeOffset   = 0x54
	RecordNumberOffset = 0x58
	StepOffsetOffset   = 0x5C
	WriteStartOffset   = 0x64
	WriteSecsOffset    = 0x68
	WriteUsecsOffset   = 0x6C
	PatternOffset      = 0x70
	GenerationOffset   = 0x74
	OpaqueTypeOffset   = 0x78
	OpaqueSizeOffset   = 0x79
	OpaqueDataOffset   = 0x7C

	crcLen = 4
)

// TagFlags describe how the tagged data was produced.
type TagFlags uint16

const (
	TagFile      TagFlags = 1 << iota // target is a file: offset/inode instead of LBA/devid
	TagRandom                         // random I/O
	TagReverse                        // reverse sequential I/O
	TagPrefix                         // units carry a prefix string
	TagTimestamp                      // units carry a timestamp word
	TagLBData                         // units carry a block address word
	TagIOT                            // IOT pattern
	TagOpaque                         // opaque extension present
)

var tagFlagNames = []struct {
	f    TagFlags
	name string
}{
	{TagFile, "file"},
	{TagRandom, "random"},
	{TagReverse, "reverse"},
	{TagPrefix, "prefix"},
	{TagTimestamp, "timestamp"},
	{TagLBData, "lbdata"},
	{TagIOT, "iot"},
	{TagOpaque, "opaque"},
}

func (f TagFlags) String() string {
	if f == 0 {
		return "none"
	}
	s := ""
	for _, n := range tagFlagNames {
		if f&n.f == 0 {
			continue
		}
		if s != "" {
			s += ","
		}
		s += n.name
	}
	return s
}

// crcOffset returns the CRC position for an opaque payload of n bytes.
func crcOffset(n int) int {
	return OpaqueDataOffset + (n+3)&^3
}
