package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joshuapare/dtcheck/internal/device"
	"github.com/joshuapare/dtcheck/internal/logger"
	"github.com/joshuapare/dtcheck/verify"
	"github.com/spf13/cobra"
)

var genSync bool

var generateCmd = &cobra.Command{
	Use:   "generate <file>",
	Short: "Write a verifiable data pattern to a file or device",
	Long: `Writes records of a deterministic data pattern. Every option that shapes the
data (--bs, --pattern, --lbs, --prefix, --timestamp, --lbdata, --btags, --pass)
must be repeated unchanged when verifying.`,
	Example: `  # 16 MiB of the default fixed pattern
  dtcheck generate --limit 16M /tmp/target

  # IOT data with block tags, second pass
  dtcheck generate --pattern iot --btags --pass 2 --records 1024 /tmp/target

  # Prefix and lbdata through the page cache, synced per record
  dtcheck generate --prefix 'host %h' --lbdata --sync --limit 1G /dev/sdb`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGenerate(args)
	},
}

func init() {
	addStreamFlags(generateCmd)
	generateCmd.Flags().BoolVar(&genSync, "sync", false, "fdatasync after every record")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(args []string) error {
	path := args[0]
	dev, err := device.Open(path, device.Options{Create: true, Sync: genSync, Direct: stream.direct})
	if err != nil {
		return err
	}
	defer dev.Close()

	pid := stream.pid
	if pid == 0 {
		pid = uint32(os.Getpid())
	}
	st, err := stream.newStream(dev, pid)
	if err != nil {
		return err
	}
	total, err := stream.span(st.bs, -1)
	if err != nil {
		return err
	}

	d := verify.New(st.state, st.tmpl, verify.Config{
		Target:     path,
		BlockTags:  st.tmpl != nil,
		Positional: true,
	})
	start := time.Now()
	if st.tmpl != nil {
		st.tmpl.StartWrites(start)
	}
	logger.Info("generate", "target", path, "bytes", total, "strategy", d.Strategy().String())

	data := buffer(dev, st.bs)
	var written int64
	for i := uint32(0); written < total; i++ {
		n := int(min(int64(st.bs), total-written))
		off := stream.offset + written
		rec := verify.Record{
			Data:         data[:n],
			Offset:       off,
			LBA:          uint64(off) / uint64(stream.unitSize),
			RecordIndex:  i,
			RecordNumber: i + 1,
		}
		if _, err := d.Generate(rec, time.Now()); err != nil {
			return err
		}
		if _, err := dev.WriteAt(rec.Data, off); err != nil {
			return fmt.Errorf("write record %d at offset %d: %w", rec.RecordNumber, off, err)
		}
		written += int64(n)
		printVerbose("record %d: %d bytes at offset %d\n", rec.RecordNumber, n, off)
	}

	elapsed := time.Since(start)
	logger.Info("generate complete", "target", path, "bytes", written, "elapsed", elapsed)
	if jsonOut {
		return printJSON(map[string]any{
			"target":   path,
			"bytes":    written,
			"strategy": d.Strategy().String(),
			"elapsed":  elapsed.String(),
		})
	}
	printInfo("Wrote %s to %s (%s)\n", humanize.IBytes(uint64(written)), path, d.Strategy())
	return nil
}
