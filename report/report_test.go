package report

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReportSummaryAndOrdering(t *testing.T) {
	r := NewReport()
	r.Add(Diagnostic{Severity: SevError, Category: CatMiscompare, Target: "b", Offset: 10, Issue: "x"})
	r.Add(Diagnostic{Severity: SevWarning, Category: CatReread, Target: "a", Offset: 900, Issue: "y"})
	r.Add(Diagnostic{Severity: SevCritical, Category: CatIntegrity, Target: "a", Offset: 4, Issue: "z"})
	r.Finalize()

	require.Equal(t, Summary{Critical: 1, Errors: 1, Warnings: 1}, r.Summary)
	require.True(t, r.HasErrors())
	require.Equal(t, "z", r.ByOffset[0].Issue)
	require.Equal(t, "y", r.ByOffset[1].Issue)
	require.Equal(t, "x", r.ByOffset[2].Issue)

	compact := r.FormatCompact()
	require.Equal(t, "a:4 [CRITICAL/INTEGRITY] z\n", strings.SplitAfter(compact, "\n")[0])
}

func TestReportFormats(t *testing.T) {
	r := NewReport()
	require.Contains(t, r.FormatText(), "No issues found.")
	require.False(t, r.HasErrors())

	r.Target = "/dev/sdx"
	r.Bytes = 4 << 20
	r.Add(Diagnostic{
		Severity: SevError,
		Category: CatMiscompare,
		Target:   "/dev/sdx",
		Offset:   8192,
		Record:   3,
		Field:    "lba",
		Issue:    "block tag field mismatch",
		Expected: "16",
		Actual:   "17",
		Commands: []string{"dt if=/dev/sdx records=1"},
	})

	text := r.FormatText()
	require.Contains(t, text, "4.0 MiB")
	require.Contains(t, text, "(record 3)")
	require.Contains(t, text, "Expected: 16")
	require.Contains(t, text, "Reproduce: dt if=/dev/sdx records=1")

	js, err := r.FormatJSON()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(js), &decoded))
	diag := decoded["diagnostics"].([]any)[0].(map[string]any)
	require.Equal(t, "ERROR", diag["severity"])
	require.Equal(t, "MISCOMPARE", diag["category"])
}

func TestSinkSerializesWriters(t *testing.T) {
	var out bytes.Buffer
	var logged bytes.Buffer
	s := NewSink(&out, slog.New(slog.NewTextHandler(&logged, nil)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(p *Sink) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				p.Emitf(SevInfo, "line %d", j)
			}
		}(s.WithPrefix("t: "))
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 400)
	for _, l := range lines {
		require.True(t, strings.HasPrefix(l, "t: INFO: line "), l)
	}
	require.Contains(t, logged.String(), "level=INFO")
}

func TestSinkRecord(t *testing.T) {
	var out bytes.Buffer
	s := NewSink(&out, nil)
	j := s.WithPrefix("j1t1: ")
	j.Record(Diagnostic{Severity: SevError, Category: CatReread, Target: "f", Offset: 512, Issue: "persistent"})

	require.Equal(t, "j1t1: ERROR: REREAD: f at offset 512: persistent\n", out.String())
	require.Len(t, s.Report().Diagnostics, 1)
}

func TestNilSink(t *testing.T) {
	var s *Sink
	s.Emit(SevError, "ignored")
	s.Emitf(SevError, "ignored %d", 1)
	s.Record(Diagnostic{})
	require.Nil(t, s.WithPrefix("x"))
	require.Nil(t, s.Report())
}

func TestDumpRange(t *testing.T) {
	start, end := DumpRange(512, 200, 64)
	require.Equal(t, 160, start)
	require.Equal(t, 224, end)

	start, end = DumpRange(512, 3, 64)
	require.Equal(t, 0, start)
	require.Equal(t, 64, end)

	start, end = DumpRange(40, 39, 0)
	require.Equal(t, 0, start)
	require.Equal(t, 40, end)
}

func TestCompareDumpMarksDifferences(t *testing.T) {
	expected := bytes.Repeat([]byte("A"), 32)
	received := append([]byte(nil), expected...)
	received[17] = 'B'

	out := CompareDump(expected, received, 17, 32, 4096, nil)
	require.Contains(t, out, "offset 4113")
	require.Contains(t, out, "00001000  "+strings.Repeat("41 ", 16)+" |"+strings.Repeat("A", 16)+"|")
	require.Contains(t, out, "00001010  41 42*41 ")
	require.Contains(t, out, "00001010  41 41*41 ")
}

func TestCompareDumpSkipsMaskedBytes(t *testing.T) {
	expected := bytes.Repeat([]byte("A"), 32)
	received := append([]byte(nil), expected...)
	received[2] = 'C'
	received[17] = 'B'

	out := CompareDump(expected, received, 17, 32, 0, func(i int) bool { return i < 4 })
	require.Contains(t, out, "00000000  41 41 43 41 ")
	require.NotContains(t, out, "43*")
	require.Contains(t, out, "00000010  41 42*41 ")
}

func TestHexDumpPartialLine(t *testing.T) {
	out := HexDump([]byte{0x00, 0x41}, 0, nil)
	require.Equal(t, "00000000  00 41 "+strings.Repeat("   ", 14)+" |.A|\n", out)
}
