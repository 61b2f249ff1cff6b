package btag

import (
	"bytes"
	"fmt"
)

// Status summarizes a tag verification.
type Status int

const (
	StatusSuccess Status = iota
	StatusIncorrectField
	StatusIncorrectCRC
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusIncorrectField:
		return "incorrect field"
	case StatusIncorrectCRC:
		return "incorrect crc"
	default:
		return "unknown"
	}
}

// VerifyResult is the outcome of comparing one received tag with the
// expected tag.
type VerifyResult struct {
	Status Status
	Errors int

	// Index is the lowest unit offset of any disagreeing field, or -1.
	Index int
	// Field is the disagreeing field at Index.
	Field Field

	Mismatches []FieldError

	StoredCRC   uint32
	ComputedCRC uint32
	CRCChecked  bool

	// WriteTimeReported is set when write time fields were reported but
	// excluded from mismatch accounting (read-after-write).
	WriteTimeReported bool

	Received Tag
}

// OK reports whether the tag verified.
func (r *VerifyResult) OK() bool { return r.Status == StatusSuccess }

// Err returns the first field error, or nil on success.
func (r *VerifyResult) Err() error {
	if r.OK() || len(r.Mismatches) == 0 {
		return nil
	}
	for i := range r.Mismatches {
		if r.Mismatches[i].Offset == r.Index {
			return &r.Mismatches[i]
		}
	}
	return &r.Mismatches[0]
}

func (r *VerifyResult) record(e FieldError) {
	r.Errors++
	r.Mismatches = append(r.Mismatches, e)
	if r.Index < 0 || e.Offset < r.Index {
		r.Index = e.Offset
		r.Field = e.Field
	}
}

// Verify compares the tag at the head of unit with expected. Every field
// active under policy is compared; the CRC is recomputed over unit whenever
// FlagCRC is set, whatever the field flags say. unit is never modified.
func Verify(expected Tag, unit []byte, policy VerifyPolicy, isRAW bool) VerifyResult {
	res := VerifyResult{Index: -1}

	received, err := Decode(unit)
	if err != nil {
		res.Status = StatusIncorrectCRC
		res.record(FieldError{
			Field:    FieldCRC,
			Offset:   0,
			Expected: fmt.Sprintf("%d byte tag", expected.EncodedSize()),
			Received: err.Error(),
		})
		return res
	}
	res.Received = received

	compareTimes := policy.compareWriteTimes(isRAW)
	for _, f := range AllFields() {
		if f == FieldCRC || !policy.Active(f) {
			continue
		}
		if isWriteTime(f) && !compareTimes {
			res.WriteTimeReported = true
			continue
		}
		if exp, got, same := compareField(f, &expected, &received); !same {
			res.record(FieldError{Field: f, Offset: f.Offset(), Expected: exp, Received: got})
		}
	}
	if res.Errors > 0 {
		res.Status = StatusIncorrectField
	}

	if policy.Flags.Has(FlagCRC) {
		res.CRCChecked = true
		stored, computed, ok := CheckCRC(unit)
		res.StoredCRC, res.ComputedCRC = stored, computed
		if !ok {
			off, _ := crcOffsetOf(unit)
			res.record(FieldError{
				Field:    FieldCRC,
				Offset:   off,
				Expected: fmt.Sprintf("0x%08X", computed),
				Received: fmt.Sprintf("0x%08X", stored),
			})
			res.Status = StatusIncorrectCRC
		}
	}
	return res
}

func isWriteTime(f Field) bool {
	return f == FieldWriteStart || f == FieldWriteSecs || f == FieldWriteUsecs
}

// compareField formats both values of f and reports whether they agree.
func compareField(f Field, exp, got *Tag) (string, string, bool) {
	hex32 := func(a, b uint32) (string, string, bool) {
		return fmt.Sprintf("0x%08X", a), fmt.Sprintf("0x%08X", b), a == b
	}
	dec32 := func(a, b uint32) (string, string, bool) {
		return fmt.Sprint(a), fmt.Sprint(b), a == b
	}
	dec64 := func(a, b uint64) (string, string, bool) {
		return fmt.Sprint(a), fmt.Sprint(b), a == b
	}
	str := func(a, b string) (string, string, bool) {
		return fmt.Sprintf("%q", a), fmt.Sprintf("%q", b), a == b
	}

	switch f {
	case FieldSignature:
		return hex32(exp.Signature, got.Signature)
	case FieldVersion:
		return dec32(uint32(exp.Version), uint32(got.Version))
	case FieldPatternType:
		return dec32(uint32(exp.PatternType), uint32(got.PatternType))
	case FieldFlags:
		return exp.Flags.String(), got.Flags.String(), exp.Flags == got.Flags
	case FieldLBA:
		return dec64(exp.LBA, got.LBA)
	case FieldInode:
		return dec64(exp.Inode, got.Inode)
	case FieldSerial:
		return str(exp.Serial, got.Serial)
	case FieldHostname:
		return str(exp.Hostname, got.Hostname)
	case FieldProcessID:
		return dec32(exp.ProcessID, got.ProcessID)
	case FieldJobID:
		return dec32(exp.JobID, got.JobID)
	case FieldThreadNumber:
		return dec32(exp.ThreadNumber, got.ThreadNumber)
	case FieldDeviceSize:
		return dec32(exp.DeviceSize, got.DeviceSize)
	case FieldRecordIndex:
		return dec32(exp.RecordIndex, got.RecordIndex)
	case FieldRecordSize:
		return dec32(exp.RecordSize, got.RecordSize)
	case FieldRecordNumber:
		return dec32(exp.RecordNumber, got.RecordNumber)
	case FieldStepOffset:
		return dec64(exp.StepOffset, got.StepOffset)
	case FieldWriteStart:
		return dec32(exp.WriteStart, got.WriteStart)
	case FieldWriteSecs:
		return dec32(exp.WriteSecs, got.WriteSecs)
	case FieldWriteUsecs:
		return dec32(exp.WriteUsecs, got.WriteUsecs)
	case FieldPattern:
		return hex32(exp.Pattern, got.Pattern)
	case FieldGeneration:
		return dec32(exp.Generation, got.Generation)
	case FieldOpaque:
		same := exp.OpaqueType == got.OpaqueType && bytes.Equal(exp.Opaque, got.Opaque)
		return fmt.Sprintf("type %d, %d bytes", exp.OpaqueType, len(exp.Opaque)),
			fmt.Sprintf("type %d, %d bytes", got.OpaqueType, len(got.Opaque)), same
	case FieldCRC:
		return hex32(exp.CRC, got.CRC)
	}
	return "", "", true
}
