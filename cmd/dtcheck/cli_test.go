package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/dtcheck/pattern"
	"github.com/joshuapare/dtcheck/report"
	"github.com/joshuapare/dtcheck/reread"
)

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	done := make(chan []byte)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		done <- buf.Bytes()
	}()

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout
	return string(<-done), fnErr
}

// resetFlags restores every command flag to its default.
func resetFlags(t *testing.T) {
	t.Helper()
	quiet, verbose, jsonOut = false, false, false
	stream = streamFlags{
		blockSize: "4k",
		kind:      "pattern",
		pass:      1,
		unitSize:  pattern.DefaultUnitSize,
		job:       1,
		thread:    1,
	}
	genSync = false
	verFormat = "text"
	verErrors = 1
	verParallel = 0
	verRereads = 1
	verDelay = 0
	verLoop = false
	verBuffered = true
	verArtifactDir = t.TempDir()
	verNoArtifacts = false
	verCompress = false
	verDumpLimit = report.DefaultDumpLimit
	verRandom = false
	verRAW = false
	tagOffset, tagUnit, tagDump = 0, pattern.DefaultUnitSize, false
	scanOffset, scanUnit, scanPass, scanSeed = 0, pattern.DefaultUnitSize, 1, pattern.DefaultIOTSeed
}

func generateFile(t *testing.T, path string) {
	t.Helper()
	_, err := captureOutput(t, func() error { return runGenerate([]string{path}) })
	require.NoError(t, err)
}

func TestGenerateThenVerify(t *testing.T) {
	tests := []struct {
		name  string
		setup func(sf *streamFlags)
	}{
		{name: "fixed pattern", setup: func(*streamFlags) {}},
		{name: "incrementing", setup: func(sf *streamFlags) { sf.kind = "incr" }},
		{name: "ascii", setup: func(sf *streamFlags) { sf.kind, sf.ascii = "ascii", "dtcheck" }},
		{name: "iot second pass", setup: func(sf *streamFlags) { sf.kind, sf.pass = "iot", 2 }},
		{name: "prefix and lbdata", setup: func(sf *streamFlags) { sf.prefix, sf.lbdata = "host %h job %j", true }},
		{name: "timestamp", setup: func(sf *streamFlags) { sf.timestamp = true }},
		{name: "block tags", setup: func(sf *streamFlags) { sf.btags = true }},
		{name: "iot block tags with prefix", setup: func(sf *streamFlags) {
			sf.kind, sf.btags, sf.prefix = "iot", true, "%d"
		}},
		{name: "partial last record", setup: func(sf *streamFlags) { sf.limit = "10000" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags(t)
			stream.records = 8
			tt.setup(&stream)
			if stream.limit != "" {
				stream.records = 0
			}

			path := filepath.Join(t.TempDir(), "target")
			generateFile(t, path)

			output, err := captureOutput(t, func() error {
				return runVerify(context.Background(), []string{path})
			})
			require.NoError(t, err, output)
			require.Contains(t, output, "No issues found.")
		})
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	resetFlags(t)
	stream.kind = "iot"
	stream.records = 4

	path := filepath.Join(t.TempDir(), "target")
	generateFile(t, path)

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xFF}, 4096+100)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	output, err := captureOutput(t, func() error {
		return runVerify(context.Background(), []string{path})
	})
	require.ErrorIs(t, err, errMiscompares)
	require.Contains(t, output, "offset 4196")
	require.Contains(t, output, reread.PossibleWriteFailure.String())
	require.Contains(t, output, "Reproduce: dt if=")

	for _, kind := range []string{"EXPECT", "CORRUPT", "REREAD"} {
		matches, err := filepath.Glob(filepath.Join(verArtifactDir, "target-"+kind+"*"))
		require.NoError(t, err)
		require.Len(t, matches, 1, kind)
	}

	// The saved record scans as one partially corrupted block.
	corrupt := filepath.Join(verArtifactDir, "target-CORRUPT0-j1t1")
	scanOffset = 4096
	output, err = captureOutput(t, func() error { return runScan([]string{corrupt}) })
	require.NoError(t, err)
	require.Contains(t, output, "7 good, 1 bad, 0 zero")
	require.Contains(t, output, "block 8 (offset 4096): partial corruption")
}

func TestVerifyStopsAfterErrorLimit(t *testing.T) {
	resetFlags(t)
	stream.records = 4
	verNoArtifacts = true
	verRereads = 0

	path := filepath.Join(t.TempDir(), "target")
	generateFile(t, path)
	require.NoError(t, os.WriteFile(path, make([]byte, 4*4096), 0o644))

	verErrors = 0
	output, err := captureOutput(t, func() error {
		return runVerify(context.Background(), []string{path})
	})
	require.ErrorContains(t, err, "4 miscompare(s)")
	require.Contains(t, output, "Errors:   4")

	verErrors = 1
	_, err = captureOutput(t, func() error {
		return runVerify(context.Background(), []string{path})
	})
	require.ErrorContains(t, err, "1 miscompare(s)")
}

func TestVerifyManyTargetsJSON(t *testing.T) {
	resetFlags(t)
	stream.records = 2
	verNoArtifacts = true
	verRereads = 0
	verErrors = 0
	verFormat = "json"

	dir := t.TempDir()
	good, bad := filepath.Join(dir, "good"), filepath.Join(dir, "bad")
	generateFile(t, good)
	generateFile(t, bad)
	require.NoError(t, os.WriteFile(bad, make([]byte, 2*4096), 0o644))

	output, err := captureOutput(t, func() error {
		return runVerify(context.Background(), []string{good, bad})
	})
	require.ErrorIs(t, err, errMiscompares)

	var rep struct {
		Bytes       int64
		Diagnostics []struct {
			Severity string
			Target   string
		}
	}
	require.NoError(t, json.Unmarshal([]byte(output), &rep), output)
	require.Equal(t, int64(4*4096), rep.Bytes)
	require.NotEmpty(t, rep.Diagnostics)
	for _, d := range rep.Diagnostics {
		require.Equal(t, bad, d.Target)
		require.Equal(t, report.SevError.String(), d.Severity)
	}
}

func TestVerifyManyTaggedTargets(t *testing.T) {
	resetFlags(t)
	stream.kind = "iot"
	stream.btags = true
	stream.records = 2
	verNoArtifacts = true

	dir := t.TempDir()
	paths := []string{filepath.Join(dir, "a"), filepath.Join(dir, "b"), filepath.Join(dir, "c")}
	for _, p := range paths {
		generateFile(t, p)
	}

	output, err := captureOutput(t, func() error {
		return runVerify(context.Background(), paths)
	})
	require.NoError(t, err, output)
	require.Contains(t, output, "No issues found.")

	// A different thread number is a tag mismatch.
	stream.thread = 2
	output, err = captureOutput(t, func() error {
		return runVerify(context.Background(), paths[:1])
	})
	require.ErrorIs(t, err, errMiscompares)
	require.Contains(t, output, "thread_number")
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"512", 512},
		{"4k", 4096},
		{"64K", 64 << 10},
		{"4KB", 4096},
		{"2KiB", 2048},
		{"1M", 1 << 20},
		{"1g", 1 << 30},
		{" 8k ", 8192},
	}
	for _, tt := range tests {
		got, err := parseSize(tt.in)
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}
	_, err := parseSize("lots")
	require.Error(t, err)

	resetFlags(t)
	bs, err := stream.recordSize()
	require.NoError(t, err)
	require.Equal(t, 4096, bs)
}

type readerAtFunc func(p []byte, off int64) (int, error)

func (f readerAtFunc) ReadAt(p []byte, off int64) (int, error) { return f(p, off) }

func TestReadRecord(t *testing.T) {
	p := make([]byte, 16)

	n, err := readRecord(readerAtFunc(func(p []byte, _ int64) (int, error) { return 10, io.EOF }), p, 0)
	require.NoError(t, err)
	require.Equal(t, 10, n)

	n, err = readRecord(readerAtFunc(func([]byte, int64) (int, error) { return 0, io.EOF }), p, 0)
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = readRecord(readerAtFunc(func([]byte, int64) (int, error) { return 0, nil }), p, 0)
	require.ErrorIs(t, err, io.ErrNoProgress)

	medium := errors.New("medium error")
	_, err = readRecord(readerAtFunc(func([]byte, int64) (int, error) { return 8, medium }), p, 0)
	require.ErrorIs(t, err, medium)
}

func TestVerifyRejectsUnknownFormat(t *testing.T) {
	resetFlags(t)
	verFormat = "xml"
	err := runVerify(context.Background(), []string{"unused"})
	require.ErrorContains(t, err, "unknown format")
}

func TestGenerateNeedsLength(t *testing.T) {
	resetFlags(t)
	_, err := captureOutput(t, func() error {
		return runGenerate([]string{filepath.Join(t.TempDir(), "target")})
	})
	require.ErrorContains(t, err, "--records or --limit")
}

func TestTagCommand(t *testing.T) {
	resetFlags(t)
	stream.records = 1
	stream.btags = true

	path := filepath.Join(t.TempDir(), "target")
	generateFile(t, path)

	tagOffset = 1024
	output, err := captureOutput(t, func() error { return runTag([]string{path}) })
	require.NoError(t, err)
	require.Contains(t, output, "Block Tag at offset 1024")
	require.Contains(t, output, "File Offset")
	require.Contains(t, output, "Record Number  1")
	require.NotContains(t, output, "INCORRECT")

	jsonOut = true
	output, err = captureOutput(t, func() error { return runTag([]string{path}) })
	require.NoError(t, err)
	var info tagInfo
	require.NoError(t, json.Unmarshal([]byte(output), &info))
	require.True(t, info.CRCValid)
	require.Equal(t, uint64(1024), info.Tag.LBA)
	require.True(t, strings.Contains(info.Flags, "file"))

	tagOffset = 0
	jsonOut = false
	require.NoError(t, os.WriteFile(path, make([]byte, 512), 0o644))
	_, err = captureOutput(t, func() error { return runTag([]string{path}) })
	require.ErrorContains(t, err, "no block tag")
}

func TestScanReportsStaleBlocks(t *testing.T) {
	resetFlags(t)
	stream.kind = "iot"
	stream.records = 1

	path := filepath.Join(t.TempDir(), "target")
	generateFile(t, path)

	// Data from pass 1 read back while pass 2 is expected.
	scanPass = 2
	output, err := captureOutput(t, func() error { return runScan([]string{path}) })
	require.NoError(t, err)
	require.Contains(t, output, "0 good, 8 bad, 0 zero")
	require.Contains(t, output, "block 1 (offset 512): stale data")
}
