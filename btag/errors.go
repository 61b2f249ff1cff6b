package btag

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated indicates the buffer lacked the bytes required for a tag.
	ErrTruncated = errors.New("btag: truncated tag")
	// ErrOpaqueTooLarge indicates an opaque payload beyond MaxOpaqueSize.
	ErrOpaqueTooLarge = errors.New("btag: opaque data too large")
	// ErrUnitTooSmall indicates a unit that cannot hold the encoded tag.
	ErrUnitTooSmall = errors.New("btag: unit smaller than tag")
)

// FieldError describes a single field disagreement.
type FieldError struct {
	Field    Field
	Offset   int
	Expected string
	Received string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("btag: incorrect %s at offset 0x%02X: expected %s, received %s",
		e.Field, e.Offset, e.Expected, e.Received)
}
