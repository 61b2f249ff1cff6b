// Package iot localizes corruption in IOT-pattern data without block tags.
//
// IOT units carry their own block address: word i of a unit is
// lba + i*seed (big-endian), with seed = base seed * pass. That makes any
// intact run of words self-describing. ScanForValidSequence finds the first
// such run in a damaged unit and back-computes which block and which pass it
// belongs to. AnalyzeBlock turns that into a verdict (zero, stale,
// misplaced, scrambled), and ClassifySequenceRun summarizes a large
// multi-block miscompare as coalesced good/bad runs instead of a flood of
// per-byte differences.
package iot
