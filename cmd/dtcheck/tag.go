package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/joshuapare/dtcheck/btag"
	"github.com/joshuapare/dtcheck/internal/device"
	"github.com/joshuapare/dtcheck/pattern"
	"github.com/joshuapare/dtcheck/report"
	"github.com/spf13/cobra"
)

var (
	tagOffset int64
	tagUnit   int
	tagDump   bool
)

var tagCmd = &cobra.Command{
	Use:   "tag <file>",
	Short: "Decode the block tag at an offset",
	Long: `Reads one logical block and decodes the block tag at its head, checking the
signature and the CRC over the whole block.`,
	Example: `  dtcheck tag --offset 1048576 /tmp/target
  dtcheck tag --offset 0 --lbs 4096 --hex --json /dev/sdb`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTag(args)
	},
}

func init() {
	tagCmd.Flags().Int64VarP(&tagOffset, "offset", "o", 0, "Byte offset of the block")
	tagCmd.Flags().IntVar(&tagUnit, "lbs", pattern.DefaultUnitSize, "Logical block size covered by the CRC")
	tagCmd.Flags().BoolVar(&tagDump, "hex", false, "Also hex dump the tag bytes")
	rootCmd.AddCommand(tagCmd)
}

// tagInfo is the JSON form of a decoded tag.
type tagInfo struct {
	Offset      int64    `json:"offset"`
	Tag         btag.Tag `json:"tag"`
	Flags       string   `json:"flags"`
	ComputedCRC uint32   `json:"computed_crc"`
	CRCValid    bool     `json:"crc_valid"`
}

func runTag(args []string) error {
	dev, err := device.Open(args[0], device.Options{})
	if err != nil {
		return err
	}
	defer dev.Close()

	if tagUnit < btag.Size {
		return fmt.Errorf("--lbs %d is smaller than a block tag (%d bytes)", tagUnit, btag.Size)
	}
	unit := make([]byte, tagUnit)
	n, err := dev.ReadAt(unit, tagOffset)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read block at offset %d: %w", tagOffset, err)
	}
	unit = unit[:n]

	if !btag.IsTag(unit) {
		return fmt.Errorf("no block tag at offset %d", tagOffset)
	}
	tag, err := btag.Decode(unit)
	if err != nil {
		return fmt.Errorf("no block tag at offset %d: %w", tagOffset, err)
	}
	_, computed, ok := btag.CheckCRC(unit)

	if jsonOut {
		return printJSON(tagInfo{
			Offset:      tagOffset,
			Tag:         tag,
			Flags:       tag.Flags.String(),
			ComputedCRC: computed,
			CRCValid:    ok,
		})
	}

	printInfo("%s", formatTag(tagOffset, tag, computed, ok))
	if tagDump {
		printInfo("\n%s", report.HexDump(unit[:min(tag.EncodedSize(), len(unit))], tagOffset, nil))
	}
	return nil
}

func formatTag(off int64, t btag.Tag, computed uint32, ok bool) string {
	var b strings.Builder
	addr := "LBA"
	id := "Device ID"
	if t.IsFile() {
		addr, id = "File Offset", "Inode"
	}
	row := func(name, format string, args ...any) {
		fmt.Fprintf(&b, "  %-14s "+format+"\n", append([]any{name}, args...)...)
	}

	fmt.Fprintf(&b, "Block Tag at offset %d (0x%X)\n", off, off)
	row("Signature", "0x%08X", t.Signature)
	row("Version", "%d", t.Version)
	row("Pattern Type", "%s", pattern.Kind(t.PatternType))
	row("Flags", "0x%04X (%s)", uint16(t.Flags), t.Flags)
	row(addr, "%d", t.LBA)
	row(id, "%d", t.Inode)
	row("Serial", "%q", t.Serial)
	row("Hostname", "%q", t.Hostname)
	row("Process ID", "%d", t.ProcessID)
	row("Job ID", "%d", t.JobID)
	row("Thread", "%d", t.ThreadNumber)
	row("Device Size", "%d", t.DeviceSize)
	row("Record Index", "%d", t.RecordIndex)
	row("Record Size", "%d", t.RecordSize)
	row("Record Number", "%d", t.RecordNumber)
	row("Step Offset", "%d", t.StepOffset)
	row("Write Start", "%s", unixTime(t.WriteStart, 0))
	row("Write Time", "%s", unixTime(t.WriteSecs, t.WriteUsecs))
	row("Pattern", "0x%08X", t.Pattern)
	row("Generation", "%d", t.Generation)
	if len(t.Opaque) > 0 {
		row("Opaque", "type %d, %d bytes", t.OpaqueType, len(t.Opaque))
	}
	status := "ok"
	if !ok {
		status = fmt.Sprintf("INCORRECT (computed 0x%08X)", computed)
	}
	row("CRC32", "0x%08X %s", t.CRC, status)
	return b.String()
}

func unixTime(secs, usecs uint32) string {
	if secs == 0 && usecs == 0 {
		return "-"
	}
	ts := time.Unix(int64(secs), int64(usecs)*int64(time.Microsecond))
	return ts.UTC().Format("2006-01-02 15:04:05.000000 UTC")
}
