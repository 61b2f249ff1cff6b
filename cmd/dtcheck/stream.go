package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/joshuapare/dtcheck/btag"
	"github.com/joshuapare/dtcheck/internal/device"
	"github.com/joshuapare/dtcheck/pattern"
	"github.com/joshuapare/dtcheck/reread"
	"github.com/spf13/cobra"
)

// streamFlags describe the data layout shared by generate and verify. Both
// sides must be given the same values.
type streamFlags struct {
	blockSize   string
	limit       string
	records     int
	offset      int64
	kind        string
	value       uint32
	ascii       string
	patternFile string
	iotSeed     uint32
	pass        uint32
	unitSize    int
	prefix      string
	timestamp   bool
	lbdata      bool
	btags       bool
	job         uint32
	thread      uint32
	pid         uint32
	direct      bool
}

var stream streamFlags

func addStreamFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&stream.blockSize, "bs", "4k", "Record size (e.g. 512, 64k, 1M)")
	f.StringVar(&stream.limit, "limit", "", "Bytes to process (default: records, or the target size)")
	f.IntVar(&stream.records, "records", 0, "Number of records (overrides --limit)")
	f.Int64Var(&stream.offset, "offset", 0, "Starting byte offset")
	f.StringVar(&stream.kind, "pattern", "pattern", "Pattern kind: pattern, ascii, incr, iot, file")
	f.Uint32Var(&stream.value, "value", 0, "Fixed pattern value (default 0x39c39c39)")
	f.StringVar(&stream.ascii, "ascii", "", "Pattern string for --pattern ascii")
	f.StringVar(&stream.patternFile, "pattern-file", "", "Pattern source for --pattern file")
	f.Uint32Var(&stream.iotSeed, "iot-seed", 0, "Base IOT seed (default 0x01010101)")
	f.Uint32Var(&stream.pass, "pass", 1, "Pass number; the IOT seed is multiplied by it")
	f.IntVar(&stream.unitSize, "lbs", pattern.DefaultUnitSize, "Logical block size for lbdata, IOT and block tags")
	f.StringVar(&stream.prefix, "prefix", "", "Prefix written at the head of every block (%d %h %p %j %t expand)")
	f.BoolVar(&stream.timestamp, "timestamp", false, "Embed the write time in every block")
	f.BoolVar(&stream.lbdata, "lbdata", false, "Embed the block address in every block")
	f.BoolVar(&stream.btags, "btags", false, "Write and verify block tags")
	f.Uint32Var(&stream.job, "job", 1, "Job ID recorded in block tags and artifact names")
	f.Uint32Var(&stream.thread, "thread", 1, "Thread number recorded in block tags and prefixes")
	f.Uint32Var(&stream.pid, "pid", 0, "Writer process ID; verify skips the tag field when zero")
	f.BoolVar(&stream.direct, "direct", false, "Use direct I/O")
}

// parseSize parses a byte count. A bare k, m, g or t suffix and the KB
// spellings are binary multiples, so 4k is 4096.
func parseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	switch {
	case strings.HasSuffix(lower, "ib"):
	case len(lower) > 1 && lower[len(lower)-1] == 'b' && strings.IndexByte("kmgtp", lower[len(lower)-2]) >= 0:
		s = s[:len(s)-1] + "iB"
	case len(lower) > 0 && strings.IndexByte("kmgtp", lower[len(lower)-1]) >= 0:
		s += "iB"
	}
	return humanize.ParseBytes(s)
}

// recordSize parses --bs.
func (sf *streamFlags) recordSize() (int, error) {
	n, err := parseSize(sf.blockSize)
	if err != nil {
		return 0, fmt.Errorf("invalid --bs %q: %w", sf.blockSize, err)
	}
	if n == 0 || n > 1<<30 {
		return 0, fmt.Errorf("invalid --bs %q: out of range", sf.blockSize)
	}
	return int(n), nil
}

// span returns the number of bytes to process. available is the target
// size for reads, or -1 when writing.
func (sf *streamFlags) span(bs int, available int64) (int64, error) {
	switch {
	case sf.records > 0:
		return int64(sf.records) * int64(bs), nil
	case sf.limit != "":
		n, err := parseSize(sf.limit)
		if err != nil {
			return 0, fmt.Errorf("invalid --limit %q: %w", sf.limit, err)
		}
		return int64(n), nil
	case available >= 0:
		return max(available-sf.offset, 0), nil
	}
	return 0, fmt.Errorf("one of --records or --limit is required")
}

// streamSetup is everything one I/O stream owns.
type streamSetup struct {
	state   *pattern.State
	tmpl    *btag.Template
	command reread.CommandInfo
	bs      int
}

// newStream builds the pattern state and block-tag template for one target.
// pid is the writer's process ID.
func (sf *streamFlags) newStream(dev *device.Device, pid uint32) (*streamSetup, error) {
	bs, err := sf.recordSize()
	if err != nil {
		return nil, err
	}
	kind, err := pattern.ParseKind(sf.kind)
	if err != nil {
		return nil, err
	}
	if sf.unitSize <= 0 {
		return nil, fmt.Errorf("invalid --lbs %d", sf.unitSize)
	}
	host, _ := os.Hostname()

	opts := pattern.Options{
		Kind:       kind,
		Value:      sf.value,
		ASCII:      sf.ascii,
		IOTSeed:    sf.iotSeed,
		Generation: sf.pass,
		UnitSize:   sf.unitSize,
		Timestamp:  sf.timestamp,
		LBData:     sf.lbdata,
	}
	if kind == pattern.KindFile {
		if opts.File, err = pattern.LoadFile(sf.patternFile); err != nil {
			return nil, err
		}
	}
	if sf.prefix != "" {
		opts.Prefix = pattern.ExpandPrefix(sf.prefix, pattern.PrefixVars{
			Device:   dev.Name(),
			Hostname: host,
			PID:      int(pid),
			Job:      sf.job,
			Thread:   sf.thread,
		})
	}

	var tmpl *btag.Template
	if sf.btags {
		tmpl = btag.NewTemplate(btag.Identity{
			File:         dev.Kind() == device.KindRegular,
			Inode:        dev.ID(),
			Hostname:     host,
			ProcessID:    pid,
			JobID:        sf.job,
			ThreadNumber: sf.thread,
			DeviceSize:   uint32(sf.unitSize),
		}, btag.PatternDesc{}, tagFlags(kind, opts))
		opts.TagSize = tmpl.Size()
	}

	state, err := pattern.New(opts)
	if err != nil {
		return nil, err
	}
	if tmpl != nil {
		tmpl.SetPattern(btag.PatternDesc{
			Type:       uint8(kind),
			Value:      state.Value(),
			Generation: state.Generation(),
		})
	}

	return &streamSetup{
		state: state,
		tmpl:  tmpl,
		bs:    bs,
		command: reread.CommandInfo{
			Target:      dev.Name(),
			BlockSize:   bs,
			ASCII:       sf.ascii,
			PatternFile: sf.patternFile,
			Prefix:      sf.prefix,
			Direct:      sf.direct,
		},
	}, nil
}

func tagFlags(kind pattern.Kind, opts pattern.Options) btag.TagFlags {
	var f btag.TagFlags
	if opts.Prefix != "" {
		f |= btag.TagPrefix
	}
	if opts.Timestamp {
		f |= btag.TagTimestamp
	}
	if opts.LBData {
		f |= btag.TagLBData
	}
	if kind == pattern.KindIOT {
		f |= btag.TagIOT
	}
	return f
}

// buffer returns a record buffer, aligned when the target uses direct I/O.
func buffer(dev *device.Device, n int) []byte {
	if dev.Direct() {
		return device.AlignedBuffer(n)
	}
	return make([]byte, n)
}
