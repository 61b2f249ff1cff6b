package btag

import "fmt"

// Field identifies a block tag field for verification and reporting.
type Field int

const (
	FieldSignature Field = iota
	FieldVersion
	FieldPatternType
	FieldFlags
	FieldLBA
	FieldInode
	FieldSerial
	FieldHostname
	FieldProcessID
	FieldJobID
	FieldThreadNumber
	FieldDeviceSize
	FieldRecordIndex
	FieldRecordSize
	FieldRecordNumber
	FieldStepOffset
	FieldWriteStart
	FieldWriteSecs
	FieldWriteUsecs
	FieldPattern
	FieldGeneration
	FieldOpaque
	FieldCRC

	numFields
)

type fieldInfo struct {
	name     string
	fileName string // name used when the tag describes a file
	off      int
	size     int
}

var fieldTable = [numFields]fieldInfo{
	FieldSignature:    {"signature", "", SignatureOffset, 4},
	FieldVersion:      {"version", "", VersionOffset, 1},
	FieldPatternType:  {"pattern_type", "", PatternTypeOffset, 1},
	FieldFlags:        {"flags", "", FlagsOffset, 2},
	FieldLBA:          {"lba", "offset", LBAOffset, 8},
	FieldInode:        {"devid", "inode", InodeOffset, 8},
	FieldSerial:       {"serial", "", SerialOffset, SerialLen},
	FieldHostname:     {"hostname", "", HostnameOffset, HostnameLen},
	FieldProcessID:    {"process_id", "", ProcessIDOffset, 4},
	FieldJobID:        {"job_id", "", JobIDOffset, 4},
	FieldThreadNumber: {"thread_number", "", ThreadNumberOffset, 4},
	FieldDeviceSize:   {"device_size", "", DeviceSizeOffset, 4},
	FieldRecordIndex:  {"record_index", "", RecordIndexOffset, 4},
	FieldRecordSize:   {"record_size", "", RecordSizeOffset, 4},
	FieldRecordNumber: {"record_number", "", RecordNumberOffset, 4},
	FieldStepOffset:   {"step_offset", "", StepOffsetOffset, 8},
	FieldWriteStart:   {"write_start", "", WriteStartOffset, 4},
	FieldWriteSecs:    {"write_secs", "", WriteSecsOffset, 4},
	FieldWriteUsecs:   {"write_usecs", "", WriteUsecsOffset, 4},
	FieldPattern:      {"pattern", "", PatternOffset, 4},
	FieldGeneration:   {"generation", "", GenerationOffset, 4},
	FieldOpaque:       {"opaque", "", OpaqueTypeOffset, 4},
	FieldCRC:          {"crc32", "", OpaqueDataOffset, crcLen},
}

// AllFields lists every field in wire order.
func AllFields() []Field {
	fs := make([]Field, 0, numFields)
	for f := Field(0); f < numFields; f++ {
		fs = append(fs, f)
	}
	return fs
}

func (f Field) String() string {
	if f < 0 || f >= numFields {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldTable[f].name
}

// NameFor returns the field name as it applies to a tag with the given flags;
// LBA and device ID read as offset and inode for file targets.
func (f Field) NameFor(flags TagFlags) string {
	if f >= 0 && f < numFields && flags&TagFile != 0 && fieldTable[f].fileName != "" {
		return fieldTable[f].fileName
	}
	return f.String()
}

// Offset returns the wire offset of the field. The CRC offset shown here
// assumes no opaque payload; use Tag.CRCOffset for the actual position.
func (f Field) Offset() int { return fieldTable[f].off }

// Size returns the fixed wire size of the field. The opaque field reports
// its header size only.
func (f Field) Size() int { return fieldTable[f].size }

// Flag returns the verify flag gating f.
func (f Field) Flag() Flags {
	if f == FieldCRC {
		return FlagCRC
	}
	return Flags(1) << uint(f)
}

// Flags selects which tag fields are authoritative during verification.
type Flags uint32

const (
	FlagSignature Flags = 1 << iota
	FlagVersion
	FlagPatternType
	FlagFlags
	FlagLBA
	FlagInode
	FlagSerial
	FlagHostname
	FlagProcessID
	FlagJobID
	FlagThreadNumber
	FlagDeviceSize
	FlagRecordIndex
	FlagRecordSize
	FlagRecordNumber
	FlagStepOffset
	FlagWriteStart
	FlagWriteSecs
	FlagWriteUsecs
	FlagPattern
	FlagGeneration
	FlagOpaque

	// FlagCRC gates the CRC recomputation independently of the field flags.
	FlagCRC Flags = 1 << 31
)

const (
	// WriteTimeFlags covers the fields describing when a unit was written.
	WriteTimeFlags = FlagWriteStart | FlagWriteSecs | FlagWriteUsecs

	// SequenceFlags covers the fields that depend on I/O ordering.
	SequenceFlags = FlagLBA | FlagRecordIndex | FlagRecordNumber | FlagStepOffset

	// AllFlags enables every field and the CRC.
	AllFlags = Flags(1)<<uint(FieldOpaque+1) - 1 | FlagCRC

	// DefaultFlags verifies everything a reader can predict. Write times
	// are only known to the writer and are left out.
	DefaultFlags = AllFlags &^ WriteTimeFlags
)

// Has reports whether every bit of f2 is set in f.
func (f Flags) Has(f2 Flags) bool { return f&f2 == f2 }

// Fields lists the fields enabled in f, in wire order.
func (f Flags) Fields() []Field {
	var fs []Field
	for _, fld := range AllFields() {
		if f.Has(fld.Flag()) {
			fs = append(fs, fld)
		}
	}
	return fs
}
