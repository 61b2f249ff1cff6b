package btag

import (
	"fmt"
	"strings"
)

// Resolver maps a logical file offset to a physical block address using a
// filesystem extent map. Resolution is best effort.
type Resolver interface {
	ResolvePhysical(offset int64) (uint64, bool)
}

// Location identifies where a unit was read from, for reporting.
type Location struct {
	Name     string
	Offset   int64 // byte offset of the unit in the target
	Resolver Resolver
}

// Report renders a field-by-field comparison of the tag at the head of unit
// against expected. Fields outside policy are shown as "skipped"; write
// times excluded during read-after-write are shown as "reported".
func Report(expected Tag, unit []byte, policy VerifyPolicy, isRAW bool, loc Location) string {
	var b strings.Builder

	received, err := Decode(unit)
	b.WriteString("Block Tag Verification")
	if loc.Name != "" {
		fmt.Fprintf(&b, " of %s", loc.Name)
	}
	fmt.Fprintf(&b, " at offset %d (0x%X)", loc.Offset, loc.Offset)
	if expected.IsFile() && loc.Resolver != nil {
		if pba, ok := loc.Resolver.ResolvePhysical(loc.Offset); ok {
			fmt.Fprintf(&b, ", physical block %d", pba)
		}
	}
	b.WriteString("\n")
	if err != nil {
		fmt.Fprintf(&b, "  cannot decode received tag: %v\n", err)
		return b.String()
	}

	fmt.Fprintf(&b, "  %-14s %-6s %-26s %-26s %s\n", "Field", "Offset", "Expected", "Received", "Status")
	compareTimes := policy.compareWriteTimes(isRAW)
	for _, f := range AllFields() {
		if f == FieldCRC {
			continue
		}
		exp, got, same := compareField(f, &expected, &received)
		status := "ok"
		switch {
		case !policy.Active(f):
			status = "skipped"
		case isWriteTime(f) && !compareTimes:
			status = "reported"
		case !same:
			status = "INCORRECT"
		}
		fmt.Fprintf(&b, "  %-14s 0x%02X   %-26s %-26s %s\n",
			f.NameFor(expected.Flags), f.Offset(), clip(exp, 26), clip(got, 26), status)
	}

	stored, computed, ok := CheckCRC(unit)
	off, _ := crcOffsetOf(unit)
	status := "ok"
	switch {
	case !policy.Flags.Has(FlagCRC):
		status = "skipped"
	case !ok:
		status = "INCORRECT"
	}
	fmt.Fprintf(&b, "  %-14s 0x%02X   %-26s %-26s %s\n",
		FieldCRC.String(), off, fmt.Sprintf("0x%08X (computed)", computed), fmt.Sprintf("0x%08X (stored)", stored), status)
	return b.String()
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
