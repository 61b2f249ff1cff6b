package reread

import (
	"fmt"
	"strings"

	"github.com/joshuapare/dtcheck/pattern"
)

// DefaultProgram is the exerciser named in emitted command lines.
const DefaultProgram = "dt"

// CommandInfo carries what a command line needs to reproduce a read.
type CommandInfo struct {
	Program     string // defaults to DefaultProgram
	Target      string
	BlockSize   int   // record size
	Capacity    int64 // bytes, 0 to omit
	DumpLimit   int   // 0 to omit
	UnitSize    int   // lbdata size, 0 to omit
	Kind        pattern.Kind
	Value       uint32 // fixed pattern value or effective IOT seed
	ASCII       string // KindASCII pattern string
	PatternFile string // KindFile source
	Prefix      string // unexpanded prefix format
	BlockTags   bool
	LBData      bool
	Timestamp   bool
	Direct      bool
	// Reconstructable is false when the expected data at the failing offset
	// cannot be regenerated from the command line alone.
	Reconstructable bool
}

// Commands returns the single-record reread command and the from-start
// reread command reaching the same record.
func Commands(ci CommandInfo, offset int64, recordNumber uint64) []string {
	common := ci.common()

	single := []string{ci.program(), "if=" + quote(ci.Target), fmt.Sprintf("bs=%d", ci.BlockSize),
		"records=1", fmt.Sprintf("offset=%d", offset)}
	single = append(single, common...)
	if !ci.Reconstructable {
		single = append(single, "disable=compare,retryDC")
	}

	fromStart := []string{ci.program(), "if=" + quote(ci.Target), fmt.Sprintf("bs=%d", ci.BlockSize),
		fmt.Sprintf("records=%d", max(recordNumber, 1))}
	fromStart = append(fromStart, common...)
	if ci.Kind == pattern.KindFile {
		fromStart = append(fromStart, "disable=compare,retryDC")
	}

	return []string{strings.Join(single, " "), strings.Join(fromStart, " ")}
}

func (ci CommandInfo) program() string {
	if ci.Program == "" {
		return DefaultProgram
	}
	return ci.Program
}

func (ci CommandInfo) common() []string {
	var args []string
	switch ci.Kind {
	case pattern.KindIOT:
		args = append(args, "pattern=iot", fmt.Sprintf("iot_seed=0x%08x", ci.Value))
	case pattern.KindIncrement:
		args = append(args, "pattern=incr")
	case pattern.KindASCII:
		args = append(args, "pattern="+quote(ci.ASCII))
	case pattern.KindFile:
		args = append(args, "pattern="+quote(ci.PatternFile))
	default:
		args = append(args, fmt.Sprintf("pattern=0x%08x", ci.Value))
	}
	if ci.Prefix != "" {
		args = append(args, "prefix="+quote(ci.Prefix))
	}
	if ci.UnitSize > 0 && (ci.LBData || ci.BlockTags || ci.Kind == pattern.KindIOT) {
		args = append(args, fmt.Sprintf("lbs=%d", ci.UnitSize))
	}
	if ci.Capacity > 0 {
		args = append(args, fmt.Sprintf("capacity=%d", ci.Capacity))
	}
	if ci.DumpLimit > 0 {
		args = append(args, fmt.Sprintf("dlimit=%d", ci.DumpLimit))
	}

	var enable []string
	if ci.BlockTags {
		enable = append(enable, "btags")
	}
	if ci.LBData {
		enable = append(enable, "lbdata")
	}
	if ci.Timestamp {
		enable = append(enable, "timestamp")
	}
	if len(enable) > 0 {
		args = append(args, "enable="+strings.Join(enable, ","))
	}
	if ci.Direct {
		args = append(args, "flags=direct")
	}
	return args
}

// quote single-quotes s for a POSIX shell when it contains anything beyond
// a conservative safe set.
func quote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:=,+%@", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
