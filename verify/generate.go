package verify

import (
	"fmt"
	"time"
)

// Generate fills rec.Data with the data to write for rec and, with block
// tags enabled, stamps and seals a tag into every unit. It returns the block
// address following the record. Generate and Verify share the pattern
// cursor; a stream that writes then reads sequentially must Reset the state
// between passes or use Positional.
func (d *Dispatcher) Generate(rec Record, now time.Time) (uint64, error) {
	if len(rec.Data) == 0 {
		return rec.LBA, ErrEmptyRecord
	}
	if d.cfg.Positional {
		d.state.Seek(rec.Offset)
	}
	next := d.state.Generate(rec.Data, rec.LBA)
	if d.Strategy() != StrategyBlockTag {
		return next, nil
	}

	l := d.state.Layout()
	for u := 0; u < l.Units(len(rec.Data)); u++ {
		base := u * l.UnitSize
		if _, err := d.tmpl.Stamp(l.Unit(rec.Data, u), d.position(rec, base), now); err != nil {
			return next, fmt.Errorf("verify: stamp unit %d at offset %d: %w", u, rec.Offset+int64(base), err)
		}
	}
	return next, nil
}
