package btag

import "time"

// Identity describes the writer and target recorded in every tag.
type Identity struct {
	File         bool   // target is a file (offset/inode) rather than a device (LBA/devid)
	Inode        uint64 // inode for files, device ID for devices
	Serial       string
	Hostname     string
	ProcessID    uint32
	JobID        uint32
	ThreadNumber uint32
	DeviceSize   uint32 // bytes per block; LBA = offset / DeviceSize
}

// PatternDesc describes the data pattern of the tagged unit.
type PatternDesc struct {
	Type       uint8
	Value      uint32 // fixed pattern value or IOT seed
	Generation uint32
}

// Position locates a unit within the I/O stream.
type Position struct {
	Offset       int64 // byte offset of the unit
	RecordIndex  uint32
	RecordSize   uint32
	RecordNumber uint32
	StepOffset   uint64
}

func (p Position) apply(t *Tag) {
	if t.IsFile() || t.DeviceSize == 0 {
		t.LBA = uint64(p.Offset)
	} else {
		t.LBA = uint64(p.Offset) / uint64(t.DeviceSize)
	}
	t.RecordIndex = p.RecordIndex
	t.RecordSize = p.RecordSize
	t.RecordNumber = p.RecordNumber
	t.StepOffset = p.StepOffset
}

// Template holds the per-context tag fields populated once at first use.
// It is owned by a single I/O stream.
type Template struct {
	base Tag
}

// NewTemplate builds the per-context tag from the writer identity, the
// pattern descriptor and the data layout flags.
func NewTemplate(id Identity, pd PatternDesc, flags TagFlags) *Template {
	if id.File {
		flags |= TagFile
	} else {
		flags &^= TagFile
	}
	return &Template{base: Tag{
		Signature:    Signature,
		Version:      Version,
		PatternType:  pd.Type,
		Flags:        flags,
		Inode:        id.Inode,
		Serial:       normalizeText(id.Serial, SerialLen),
		Hostname:     normalizeText(id.Hostname, HostnameLen),
		ProcessID:    id.ProcessID,
		JobID:        id.JobID,
		ThreadNumber: id.ThreadNumber,
		DeviceSize:   id.DeviceSize,
		Pattern:      pd.Value,
		Generation:   pd.Generation,
	}}
}

// SetPattern switches the template to a new pass or pattern.
func (tp *Template) SetPattern(pd PatternDesc) {
	tp.base.PatternType = pd.Type
	tp.base.Pattern = pd.Value
	tp.base.Generation = pd.Generation
}

// SetOpaque attaches an opaque extension to every subsequent tag.
func (tp *Template) SetOpaque(typ uint8, data []byte) error {
	if len(data) > MaxOpaqueSize {
		return ErrOpaqueTooLarge
	}
	tp.base.OpaqueType = typ
	tp.base.Opaque = append([]byte(nil), data...)
	if len(data) > 0 {
		tp.base.Flags |= TagOpaque
	} else {
		tp.base.Flags &^= TagOpaque
	}
	return nil
}

// StartWrites records the time the write pass began.
func (tp *Template) StartWrites(now time.Time) {
	tp.base.WriteStart = uint32(now.Unix())
}

// SetFlags replaces the layout flags, keeping the file/device bit.
func (tp *Template) SetFlags(flags TagFlags) {
	tp.base.Flags = flags&^TagFile | tp.base.Flags&TagFile
}

// Base returns a copy of the per-context tag.
func (tp *Template) Base() Tag {
	t := tp.base
	t.Opaque = append([]byte(nil), tp.base.Opaque...)
	if len(t.Opaque) == 0 {
		t.Opaque = nil
	}
	return t
}

// Size returns the encoded size of tags produced by the template.
func (tp *Template) Size() int { return tp.base.EncodedSize() }

// Expected returns the tag a reader expects at pos. Write times other
// than WriteStart are zero; they are only known to the writer.
func (tp *Template) Expected(pos Position) Tag {
	t := tp.Base()
	pos.apply(&t)
	return t
}

// Stamp produces the tag for pos, stamps the write time and seals it into
// unit. It is the write-path counterpart of Expected.
func (tp *Template) Stamp(unit []byte, pos Position, now time.Time) (Tag, error) {
	t := tp.Base()
	if err := Update(unit, &t, pos, now); err != nil {
		return Tag{}, err
	}
	return t, nil
}
