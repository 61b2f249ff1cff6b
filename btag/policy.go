package btag

// Mode describes the I/O conditions that make some fields unpredictable.
type Mode struct {
	RandomWrites bool // random-offset writes may overwrite units out of order
	SharedFile   bool // several threads write the same file
	Threads      int
}

// VerifyPolicy selects the authoritative fields for a test context. It is a
// value: a mode change produces a new policy from the configured base
// rather than patching flags in place.
type VerifyPolicy struct {
	Flags Flags

	// IgnoreWriteTimeFieldsDuringRAW reports but does not compare the write
	// time fields during read-after-write verification. The expected tag is
	// never modified to make them match.
	IgnoreWriteTimeFieldsDuringRAW bool
}

// DefaultPolicy verifies DefaultFlags and ignores write times during
// read-after-write.
func DefaultPolicy() VerifyPolicy {
	return VerifyPolicy{Flags: DefaultFlags, IgnoreWriteTimeFieldsDuringRAW: true}
}

// With returns a copy of p with f enabled.
func (p VerifyPolicy) With(f Flags) VerifyPolicy {
	p.Flags |= f
	return p
}

// Without returns a copy of p with f disabled.
func (p VerifyPolicy) Without(f Flags) VerifyPolicy {
	p.Flags &^= f
	return p
}

// Active reports whether f is compared under p.
func (p VerifyPolicy) Active(f Field) bool { return p.Flags.Has(f.Flag()) }

// ForMode derives the effective policy for m. Random writes make the
// sequencing fields non-deterministic; threads sharing one file make the
// thread number unpredictable.
func (p VerifyPolicy) ForMode(m Mode) VerifyPolicy {
	out := p
	if m.RandomWrites {
		out = out.Without(SequenceFlags)
	}
	if m.SharedFile && m.Threads > 1 {
		out = out.Without(FlagThreadNumber)
	}
	return out
}

// compareWriteTimes reports whether write time fields take part in
// mismatch accounting for this call.
func (p VerifyPolicy) compareWriteTimes(isRAW bool) bool {
	return !(isRAW && p.IgnoreWriteTimeFieldsDuringRAW)
}
