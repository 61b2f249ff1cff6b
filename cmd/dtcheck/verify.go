package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joshuapare/dtcheck/btag"
	"github.com/joshuapare/dtcheck/internal/artifact"
	"github.com/joshuapare/dtcheck/internal/device"
	"github.com/joshuapare/dtcheck/internal/logger"
	"github.com/joshuapare/dtcheck/report"
	"github.com/joshuapare/dtcheck/reread"
	"github.com/joshuapare/dtcheck/verify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	verFormat      string
	verErrors      int
	verParallel    int
	verRereads     int
	verDelay       time.Duration
	verLoop        bool
	verBuffered    bool
	verArtifactDir string
	verNoArtifacts bool
	verCompress    bool
	verDumpLimit   int
	verRandom      bool
	verRAW         bool
)

// errMiscompares is returned when any target failed verification.
var errMiscompares = errors.New("verification failed")

var verifyCmd = &cobra.Command{
	Use:   "verify <file>...",
	Short: "Read back and verify a data pattern",
	Long: `Reads records back and verifies them against the pattern described by the
stream options, one goroutine per target. On a miscompare the failing record is
reported with a hex dump, IOT or block-tag analysis, then reread to tell a read
failure from a write failure. EXPECT, CORRUPT and REREAD artifacts are saved
next to regular files, and command lines that reproduce the read are printed.

Exits with status 1 if any record failed verification.`,
	Example: `  # Verify what 'dtcheck generate --limit 16M /tmp/target' wrote
  dtcheck verify --limit 16M /tmp/target

  # Several targets at once with block tags, JSON report
  dtcheck verify --btags --pattern iot --format json /tmp/a /tmp/b

  # Keep rereading a suspect device until the failure clears
  dtcheck verify --loop-on-error --reread-delay 5s /dev/sdb`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerify(cmd.Context(), args)
	},
}

func init() {
	addStreamFlags(verifyCmd)
	f := verifyCmd.Flags()
	f.StringVarP(&verFormat, "format", "f", "text", "Report format: text, json, compact")
	f.IntVar(&verErrors, "errors", 1, "Stop a target after this many miscompares (0 = never)")
	f.IntVarP(&verParallel, "parallel", "p", 0, "Targets verified concurrently (0 = all)")
	f.IntVar(&verRereads, "rereads", reread.DefaultLimit, "Rereads per miscompare (0 disables rereading)")
	f.DurationVar(&verDelay, "reread-delay", reread.DefaultDelay, "Base delay between rereads; attempt n waits n times this")
	f.BoolVar(&verLoop, "loop-on-error", false, "Reread until the failure clears or the command is interrupted")
	f.BoolVar(&verBuffered, "reread-buffered", false, "Reread through the page cache instead of direct I/O")
	f.StringVar(&verArtifactDir, "artifacts", "", "Directory for artifacts (default: next to regular files)")
	f.BoolVar(&verNoArtifacts, "no-artifacts", false, "Do not save EXPECT/CORRUPT/REREAD files")
	f.BoolVar(&verCompress, "compress", false, "zstd-compress artifacts")
	f.IntVar(&verDumpLimit, "dlimit", report.DefaultDumpLimit, "Bytes shown around a miscompare")
	f.BoolVar(&verRandom, "random", false, "Data was written at random offsets; skip sequencing tag fields")
	f.BoolVar(&verRAW, "raw", false, "Read-after-write pass; write times are reported but not compared")
	rootCmd.AddCommand(verifyCmd)
}

// targetStats summarizes one verified target.
type targetStats struct {
	bytes       int64
	records     int
	miscompares int
}

func runVerify(ctx context.Context, paths []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	switch verFormat {
	case "text", "json", "compact":
	default:
		return fmt.Errorf("unknown format: %s (use: text, json, compact)", verFormat)
	}

	var w io.Writer = os.Stdout
	if quiet || jsonOut || verFormat != "text" {
		w = nil
	}
	sink := report.NewSink(w, logger.L)

	var total, failed atomic.Int64
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	if verParallel > 0 {
		g.SetLimit(verParallel)
	}
	for i, path := range paths {
		path := path
		worker := uint32(i + 1)
		g.Go(func() error {
			out := sink
			if len(paths) > 1 {
				out = sink.WithPrefix(fmt.Sprintf("j%dt%d: ", stream.job, worker))
			}
			st, err := verifyTarget(gctx, path, worker, out)
			total.Add(st.bytes)
			failed.Add(int64(st.miscompares))
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			printVerbose("%s: %d records, %s verified, %d miscompares\n",
				path, st.records, humanize.IBytes(uint64(st.bytes)), st.miscompares)
			return nil
		})
	}
	err := g.Wait()

	rep := sink.Report()
	rep.Bytes = total.Load()
	rep.Elapsed = time.Since(start)
	if len(paths) == 1 {
		rep.Target = paths[0]
	}
	if perr := printReport(rep); perr != nil && err == nil {
		err = perr
	}
	if err != nil {
		return err
	}
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%w: %d miscompare(s)", errMiscompares, n)
	}
	return nil
}

func printReport(rep *report.Report) error {
	switch {
	case jsonOut || verFormat == "json":
		s, err := rep.FormatJSON()
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		fmt.Println(s)
	case verFormat == "compact":
		fmt.Print(rep.FormatCompact())
	default:
		printInfo("\n%s", rep.FormatText())
	}
	return nil
}

// verifyTarget reads and verifies one target. worker numbers the target's
// artifacts. Miscompares are counted in the stats; the error is reserved
// for I/O and setup failures.
func verifyTarget(ctx context.Context, path string, worker uint32, sink *report.Sink) (targetStats, error) {
	var st targetStats

	dev, err := device.Open(path, device.Options{Direct: stream.direct})
	if err != nil {
		return st, err
	}
	defer dev.Close()

	s, err := stream.newStream(dev, stream.pid)
	if err != nil {
		return st, err
	}
	total, err := stream.span(s.bs, dev.Size())
	if err != nil {
		return st, err
	}

	cfg := reread.Config{
		Limit:       verRereads,
		LoopOnError: verLoop,
		Delay:       verDelay,
		Buffered:    verBuffered,
		Sink:        sink,
	}
	if !verNoArtifacts {
		cfg.Artifacts = artifact.New(path, dev.Kind() == device.KindRegular, artifact.Options{
			Dir:      verArtifactDir,
			Compress: verCompress,
			Job:      int(stream.job),
			Thread:   int(worker),
		})
	}
	cls := reread.New(reread.DeviceTarget{Device: dev}, cfg)

	policy := btag.DefaultPolicy()
	if stream.pid == 0 {
		policy = policy.Without(btag.FlagProcessID)
	}
	var resolver btag.Resolver
	if dev.Kind() == device.KindBlock {
		resolver = device.Linear(int64(stream.unitSize))
	}
	s.command.Capacity = dev.Size()

	d := verify.New(s.state, s.tmpl, verify.Config{
		Target:       path,
		BlockTags:    s.tmpl != nil,
		VerifyPrefix: stream.prefix != "",
		Policy:       policy,
		Mode:         btag.Mode{RandomWrites: verRandom},
		Retries:      verRereads > 0 || verLoop,
		RandomAccess: dev.RandomAccess(),
		Positional:   true,
		DumpLimit:    verDumpLimit,
		Resolver:     resolver,
		Command:      s.command,
		Sink:         sink,
	}, verify.WithClassifier(cls))
	logger.Info("verify", "target", path, "bytes", total, "strategy", d.Strategy().String(),
		"direct", dev.Direct())

	data := buffer(dev, s.bs)
	for i := uint32(0); st.bytes < total; i++ {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		want := int(min(int64(s.bs), total-st.bytes))
		off := stream.offset + st.bytes
		n, err := readRecord(dev, data[:want], off)
		if err != nil {
			return st, fmt.Errorf("read record %d at offset %d: %w", i+1, off, err)
		}
		if n == 0 {
			return st, nil
		}
		rec := verify.Record{
			Data:         data[:n],
			Offset:       off,
			LBA:          uint64(off) / uint64(stream.unitSize),
			RecordIndex:  i,
			RecordNumber: i + 1,
			IsRAW:        verRAW,
		}
		st.records++
		st.bytes += int64(n)

		_, err = d.Verify(ctx, rec)
		var me *verify.MiscompareError
		switch {
		case errors.As(err, &me):
			st.miscompares++
			if verErrors > 0 && st.miscompares >= verErrors {
				return st, nil
			}
		case err != nil:
			return st, err
		}
		if n < want {
			break
		}
	}
	return st, nil
}

// readRecord reads one record at off. It returns 0 and a nil error at end
// of data; a read that returns nothing without reaching the end is an
// error.
func readRecord(r io.ReaderAt, p []byte, off int64) (int, error) {
	n, err := r.ReadAt(p, off)
	switch {
	case err != nil && !errors.Is(err, io.EOF):
		return n, err
	case n == 0 && err == nil:
		return 0, io.ErrNoProgress
	}
	return n, nil
}
