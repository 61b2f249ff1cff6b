package pattern

import (
	"strconv"
	"strings"
)

// PrefixVars supplies the values substituted into a prefix format string.
type PrefixVars struct {
	Device   string
	Hostname string
	PID      int
	Job      uint32
	Thread   uint32
}

// ExpandPrefix substitutes the control sequences of a prefix format:
//
//	%d  device or file name
//	%h  host name
//	%p  process ID
//	%j  job ID
//	%t  thread number
//	%%  a literal percent sign
//
// Unknown sequences are copied through unchanged.
func ExpandPrefix(format string, v PrefixVars) string {
	if !strings.ContainsRune(format, '%') {
		return format
	}
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 == len(format) {
			b.WriteByte(c)
			continue
		}
		i++
		switch format[i] {
		case 'd':
			b.WriteString(v.Device)
		case 'h':
			b.WriteString(v.Hostname)
		case 'p':
			b.WriteString(strconv.Itoa(v.PID))
		case 'j':
			b.WriteString(strconv.FormatUint(uint64(v.Job), 10))
		case 't':
			b.WriteString(strconv.FormatUint(uint64(v.Thread), 10))
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(format[i])
		}
	}
	return b.String()
}
