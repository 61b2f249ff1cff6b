package report

import (
	"fmt"
	"strings"
)

// DefaultDumpLimit bounds the bytes shown around a miscompare.
const DefaultDumpLimit = 64

const bytesPerLine = 16

// DumpRange returns the [start, end) window of at most limit bytes around
// index within a buffer of n bytes, aligned down to a line boundary.
func DumpRange(n, index, limit int) (start, end int) {
	if limit <= 0 {
		limit = DefaultDumpLimit
	}
	if index < 0 {
		index = 0
	}
	start = index - limit/2
	start -= start % bytesPerLine
	if start < 0 {
		start = 0
	}
	end = min(start+limit, n)
	if start > end {
		start = end
	}
	return start, end
}

// HexDump renders b as offset/hex/ASCII lines. base is the offset of b[0]
// in the target; bytes for which marked returns true are flagged with '*'.
func HexDump(b []byte, base int64, marked func(i int) bool) string {
	var sb strings.Builder
	for line := 0; line < len(b); line += bytesPerLine {
		end := min(line+bytesPerLine, len(b))
		fmt.Fprintf(&sb, "%08x  ", base+int64(line))
		for i := line; i < line+bytesPerLine; i++ {
			if i >= end {
				sb.WriteString("   ")
				continue
			}
			mark := byte(' ')
			if marked != nil && marked(i) {
				mark = '*'
			}
			fmt.Fprintf(&sb, "%02x%c", b[i], mark)
		}
		sb.WriteString(" |")
		for _, c := range b[line:end] {
			if c < 0x20 || c > 0x7e {
				c = '.'
			}
			sb.WriteByte(c)
		}
		sb.WriteString("|\n")
	}
	return sb.String()
}

// CompareDump renders the expected and received windows around the first
// mismatching index, flagging every differing byte. Bytes for which masked
// returns true are never flagged; masked may be nil.
func CompareDump(expected, received []byte, index, limit int, base int64, masked func(i int) bool) string {
	n := min(len(expected), len(received))
	start, end := DumpRange(n, index, limit)
	differs := func(i int) bool {
		j := start + i
		if j >= n || (masked != nil && masked(j)) {
			return false
		}
		return expected[j] != received[j]
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Expected data (index %d, offset %d):\n", index, base+int64(index))
	sb.WriteString(HexDump(expected[start:end], base+int64(start), differs))
	fmt.Fprintf(&sb, "Received data:\n")
	sb.WriteString(HexDump(received[start:end], base+int64(start), differs))
	return sb.String()
}
