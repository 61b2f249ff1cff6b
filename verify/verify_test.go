package verify

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/dtcheck/btag"
	"github.com/joshuapare/dtcheck/internal/buf"
	"github.com/joshuapare/dtcheck/internal/device"
	"github.com/joshuapare/dtcheck/iot"
	"github.com/joshuapare/dtcheck/pattern"
	"github.com/joshuapare/dtcheck/report"
	"github.com/joshuapare/dtcheck/reread"
)

var now = time.Unix(1700000000, 250000000)

func newState(t *testing.T, opts pattern.Options) *pattern.State {
	t.Helper()
	if opts.UnitSize == 0 {
		opts.UnitSize = 512
	}
	opts.Now = func() time.Time { return now }
	s, err := pattern.New(opts)
	require.NoError(t, err)
	return s
}

type recorder struct{ events []Event }

func (r *recorder) Handle(_ context.Context, ev Event, _ *Result) { r.events = append(r.events, ev) }

func generate(t *testing.T, d *Dispatcher, s *pattern.State, rec Record) []byte {
	t.Helper()
	_, err := d.Generate(rec, now)
	require.NoError(t, err)
	s.Reset()
	return rec.Data
}

func requireMiscompare(t *testing.T, err error) *MiscompareError {
	t.Helper()
	require.ErrorIs(t, err, ErrMiscompare)
	var me *MiscompareError
	require.ErrorAs(t, err, &me)
	return me
}

func TestPlainMatchAndMismatch(t *testing.T) {
	s := newState(t, pattern.Options{Value: 0x11223344})
	rec := &recorder{}
	d := New(s, nil, Config{Target: "t"}, WithHandler(rec))
	require.Equal(t, StrategyPlain, d.Strategy())

	data := generate(t, d, s, Record{Data: make([]byte, 4096)})
	res, err := d.Verify(context.Background(), Record{Data: data, Offset: 8192})
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Equal(t, -1, res.Index)
	require.Empty(t, rec.events)

	s.Reset()
	data[1000] ^= 0xFF
	res, err = d.Verify(context.Background(), Record{Data: data, Offset: 8192, LBA: 16})
	me := requireMiscompare(t, err)
	require.Equal(t, res, me.Result)

	require.False(t, res.OK)
	require.Equal(t, StrategyPlain, res.Strategy)
	require.Equal(t, 1000, res.Index)
	require.Equal(t, int64(9192), res.Offset)
	require.Equal(t, 1, res.Unit)
	require.Equal(t, uint64(17), res.LBA)
	require.Equal(t, byte(0x44), res.Expected)
	require.Equal(t, byte(0xBB), res.Received)
	require.Equal(t, []Event{OnMiscompare}, rec.events)

	require.NotNil(t, res.Runs)
	require.Equal(t, 7, res.Runs.GoodBlocks)
	require.Equal(t, 1, res.Runs.BadBlocks)
	require.Nil(t, res.Verdict)
}

func TestVerifyDoesNotMutateReceived(t *testing.T) {
	s := newState(t, pattern.Options{Prefix: "abc", LBData: true})
	d := New(s, nil, Config{})
	data := generate(t, d, s, Record{Data: make([]byte, 2048)})
	data[700] ^= 1
	before := bytes.Clone(data)

	_, err := d.Verify(context.Background(), Record{Data: data})
	requireMiscompare(t, err)
	require.Equal(t, before, data)
}

func TestPrefixStrategy(t *testing.T) {
	s := newState(t, pattern.Options{Prefix: "dtcheck"})
	d := New(s, nil, Config{})
	require.Equal(t, StrategyPrefix, d.Strategy())

	data := generate(t, d, s, Record{Data: make([]byte, 2048)})
	data[2*512+1] ^= 1
	res, err := d.Verify(context.Background(), Record{Data: data})
	requireMiscompare(t, err)
	require.Equal(t, "prefix", res.Field)
	require.Equal(t, 1025, res.Index)

	data[2*512+1] ^= 1
	data[600] ^= 1
	s.Reset()
	res, err = d.Verify(context.Background(), Record{Data: data})
	requireMiscompare(t, err)
	require.Empty(t, res.Field)
	require.Equal(t, 600, res.Index)
}

func TestLBDataStrategy(t *testing.T) {
	s := newState(t, pattern.Options{LBData: true})
	d := New(s, nil, Config{})
	require.Equal(t, StrategyLBA, d.Strategy())

	data := generate(t, d, s, Record{Data: make([]byte, 4096), LBA: 100})
	res, err := d.Verify(context.Background(), Record{Data: data, LBA: 100})
	require.NoError(t, err)
	require.True(t, res.OK)

	s.Reset()
	buf.PutU32BE(data[3*512:], 999)
	res, err = d.Verify(context.Background(), Record{Data: data, LBA: 100})
	requireMiscompare(t, err)
	require.Equal(t, "lbdata", res.Field)
	require.Equal(t, 3*512+2, res.Index)
	require.Equal(t, uint64(103), res.LBA)
	require.Contains(t, res.Detail, "expected lba 103")
	require.Contains(t, res.Detail, "received lba 999")
}

func TestTimestampIsMasked(t *testing.T) {
	s := newState(t, pattern.Options{Timestamp: true})
	d := New(s, nil, Config{})
	data := generate(t, d, s, Record{Data: make([]byte, 1024)})
	require.NotZero(t, buf.U32BE(data))

	res, err := d.Verify(context.Background(), Record{Data: data})
	require.NoError(t, err)
	require.True(t, res.OK)
}

func TestIOTForensics(t *testing.T) {
	const seed = pattern.DefaultIOTSeed
	tests := []struct {
		name    string
		corrupt func(unit []byte)
		want    iot.VerdictKind
	}{
		{"misplaced", func(u []byte) { pattern.FillIOT(u, 900, 2*seed) }, iot.VerdictMisplaced},
		{"stale", func(u []byte) { pattern.FillIOT(u, 52, seed) }, iot.VerdictStale},
		{"zero", func(u []byte) { clear(u) }, iot.VerdictZero},
		{"scrambled", func(u []byte) { copy(u, bytes.Repeat([]byte{0xA5}, len(u))) }, iot.VerdictScrambled},
		{"partial", func(u []byte) { u[300] ^= 0xFF }, iot.VerdictPartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newState(t, pattern.Options{Kind: pattern.KindIOT, Generation: 2})
			d := New(s, nil, Config{})
			require.Equal(t, StrategyLBA, d.Strategy())

			data := generate(t, d, s, Record{Data: make([]byte, 8*512), LBA: 50})
			_, err := d.Verify(context.Background(), Record{Data: data, LBA: 50})
			require.NoError(t, err)

			tt.corrupt(data[2*512 : 3*512])
			res, err := d.Verify(context.Background(), Record{Data: data, LBA: 50})
			requireMiscompare(t, err)
			require.Equal(t, 2, res.Unit)
			require.Equal(t, uint64(52), res.LBA)
			require.NotNil(t, res.Verdict)
			require.Equal(t, tt.want, res.Verdict.Kind, res.Verdict.String())
			require.NotEmpty(t, res.Detail)

			require.NotNil(t, res.Runs)
			require.Equal(t, 1, res.Runs.BadBlocks)
			if tt.want == iot.VerdictZero {
				require.Equal(t, 1, res.Runs.ZeroBlocks)
			}
		})
	}
}

func tagged(t *testing.T) (*pattern.State, *btag.Template, *Dispatcher) {
	t.Helper()
	s := newState(t, pattern.Options{TagSize: btag.Size, Prefix: "pfx"})
	tmpl := btag.NewTemplate(
		btag.Identity{File: true, Inode: 42, Hostname: "host", JobID: 1, ThreadNumber: 2, DeviceSize: 512},
		btag.PatternDesc{Type: uint8(pattern.KindPattern), Value: s.Value(), Generation: 1},
		btag.TagPrefix,
	)
	require.Equal(t, btag.Size, tmpl.Size())
	return s, tmpl, New(s, tmpl, Config{Target: "f", BlockTags: true, VerifyPrefix: true})
}

func TestBlockTagStrategy(t *testing.T) {
	s, _, d := tagged(t)
	require.Equal(t, StrategyBlockTag, d.Strategy())

	rec := Record{Data: make([]byte, 2048), Offset: 4096, RecordIndex: 2, RecordNumber: 3}
	generate(t, d, s, rec)
	require.True(t, btag.IsTag(rec.Data[512:]))

	res, err := d.Verify(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, res.OK)

	// A different record number is a sequencing error.
	s.Reset()
	other := rec
	other.RecordNumber = 4
	res, err = d.Verify(context.Background(), other)
	requireMiscompare(t, err)
	require.Equal(t, "btag record_number", res.Field)
	require.Equal(t, btag.RecordNumberOffset, res.Index)
}

func TestBlockTagFieldMismatch(t *testing.T) {
	s, _, d := tagged(t)
	rec := Record{Data: make([]byte, 2048), Offset: 4096, RecordNumber: 1}
	generate(t, d, s, rec)

	unit := rec.Data[512:1024]
	tag, err := btag.Decode(unit)
	require.NoError(t, err)
	tag.JobID = 9
	require.NoError(t, tag.Seal(unit))

	res, err := d.Verify(context.Background(), rec)
	requireMiscompare(t, err)
	require.Equal(t, StrategyBlockTag, res.Strategy)
	require.Equal(t, "btag job_id", res.Field)
	require.Equal(t, 512+btag.JobIDOffset, res.Index)
	require.NotNil(t, res.Tag)
	require.Equal(t, btag.StatusIncorrectField, res.Tag.Status)
	require.Contains(t, res.Detail, "incorrect job_id")
}

func TestBlockTagDumpSkipsTagBytes(t *testing.T) {
	s, tmpl, _ := tagged(t)
	var out bytes.Buffer
	d := New(s, tmpl, Config{Target: "f", BlockTags: true, VerifyPrefix: true, Sink: report.NewSink(&out, nil)})
	rec := Record{Data: make([]byte, 2048), Offset: 4096, RecordNumber: 1}
	generate(t, d, s, rec)

	unit := rec.Data[512:1024]
	tag, err := btag.Decode(unit)
	require.NoError(t, err)
	tag.JobID = 9
	require.NoError(t, tag.Seal(unit))

	_, err = d.Verify(context.Background(), rec)
	requireMiscompare(t, err)
	require.Contains(t, out.String(), "Expected data (index 580, offset 4676)")
	require.NotRegexp(t, `[0-9a-f]{2}\*`, out.String())
	require.Contains(t, out.String(), "job_id")
}

func TestBlockTagPayloadCorruption(t *testing.T) {
	s, tmpl, d := tagged(t)
	rec := Record{Data: make([]byte, 2048), Offset: 4096, RecordNumber: 1}
	generate(t, d, s, rec)
	rec.Data[2*512+300] ^= 1

	res, err := d.Verify(context.Background(), rec)
	requireMiscompare(t, err)
	require.Equal(t, "btag crc32", res.Field)
	crcOff := tmpl.Base()
	require.Equal(t, 2*512+crcOff.CRCOffset(), res.Index)

	// With CRC checking off the payload comparison still finds it.
	d.SetPolicy(d.Policy().Without(btag.FlagCRC))
	s.Reset()
	res, err = d.Verify(context.Background(), rec)
	requireMiscompare(t, err)
	require.Empty(t, res.Field)
	require.Equal(t, 2*512+300, res.Index)
}

func TestBlockTagPrefixCheck(t *testing.T) {
	s, _, d := tagged(t)
	rec := Record{Data: make([]byte, 1024), RecordNumber: 1}
	generate(t, d, s, rec)
	d.SetPolicy(d.Policy().Without(btag.FlagCRC))
	rec.Data[btag.Size+1] ^= 1

	res, err := d.Verify(context.Background(), rec)
	requireMiscompare(t, err)
	require.Equal(t, "prefix", res.Field)
	require.Equal(t, btag.Size+1, res.Index)
}

func TestSetModeReplacesPolicy(t *testing.T) {
	_, _, d := tagged(t)
	require.True(t, d.Policy().Flags.Has(btag.FlagRecordNumber))

	d.SetMode(btag.Mode{RandomWrites: true})
	require.False(t, d.Policy().Flags.Has(btag.FlagRecordNumber))
	require.False(t, d.Policy().Flags.Has(btag.FlagLBA))

	d.SetMode(btag.Mode{})
	require.Equal(t, btag.DefaultPolicy(), d.Policy())
}

type fakeClassifier struct {
	events []reread.Event
	out    reread.Classification
}

func (f *fakeClassifier) Classify(_ context.Context, ev reread.Event) reread.Classification {
	f.events = append(f.events, ev)
	return f.out
}

func TestClassifierHandoff(t *testing.T) {
	s := newState(t, pattern.Options{Value: 0x11223344})
	fc := &fakeClassifier{out: reread.Classification{Class: reread.Persistent}}
	d := New(s, nil, Config{Target: "disk", Retries: true, RandomAccess: true}, WithClassifier(fc))

	data := generate(t, d, s, Record{Data: make([]byte, 4096)})
	good := bytes.Clone(data)
	data[10] ^= 1

	res, err := d.Verify(context.Background(), Record{Data: data, Offset: 8192, RecordNumber: 3})
	me := requireMiscompare(t, err)
	require.Contains(t, me.Error(), "persistent corruption")
	require.NotNil(t, res.Classification)
	require.Equal(t, reread.Persistent, res.Classification.Class)

	require.Len(t, fc.events, 1)
	ev := fc.events[0]
	require.Equal(t, int64(8192), ev.Offset)
	require.Equal(t, 10, ev.Index)
	require.Equal(t, uint64(3), ev.RecordNumber)
	require.Equal(t, good, ev.Expected)
	require.True(t, ev.Verify(context.Background(), good))
	require.False(t, ev.Verify(context.Background(), ev.Received))

	require.Equal(t, "disk", ev.Command.Target)
	require.Equal(t, 4096, ev.Command.BlockSize)
	require.Equal(t, pattern.KindPattern, ev.Command.Kind)
	require.Equal(t, uint32(0x11223344), ev.Command.Value)
	require.True(t, ev.Command.Reconstructable)
}

func TestClassifierSkippedWithoutRandomAccess(t *testing.T) {
	s := newState(t, pattern.Options{})
	fc := &fakeClassifier{}
	d := New(s, nil, Config{Retries: true}, WithClassifier(fc))
	data := generate(t, d, s, Record{Data: make([]byte, 512)})
	data[0] ^= 1

	res, err := d.Verify(context.Background(), Record{Data: data})
	requireMiscompare(t, err)
	require.Nil(t, res.Classification)
	require.Empty(t, fc.events)
}

func TestVerifyErrors(t *testing.T) {
	s := newState(t, pattern.Options{})
	rec := &recorder{}
	d := New(s, nil, Config{}, WithHandler(HandlerFunc(rec.Handle)))

	_, err := d.Verify(context.Background(), Record{})
	require.ErrorIs(t, err, ErrEmptyRecord)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Verify(ctx, Record{Data: make([]byte, 512)})
	require.ErrorIs(t, err, context.Canceled)

	d.Stalled(context.Background(), Record{Offset: 512}, "read timed out")
	require.Equal(t, []Event{OnError, OnError, OnNoProgress}, rec.events)
}

func TestMiscompareIsReported(t *testing.T) {
	var out bytes.Buffer
	sink := report.NewSink(&out, nil)
	s := newState(t, pattern.Options{})
	d := New(s, nil, Config{Target: "disk", Sink: sink})
	data := generate(t, d, s, Record{Data: make([]byte, 1024)})
	data[700] = 0

	_, err := d.Verify(context.Background(), Record{Data: data, RecordNumber: 1})
	requireMiscompare(t, err)
	require.Contains(t, out.String(), "MISCOMPARE: disk at offset 700")
	require.Contains(t, out.String(), "Expected data (index 700, offset 700)")
	require.Contains(t, out.String(), "Block sequence")
	require.True(t, sink.Report().HasErrors())
}

func TestRereadAgainstFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "target")
	dev, err := device.Open(path, device.Options{Create: true})
	require.NoError(t, err)
	defer dev.Close()

	s := newState(t, pattern.Options{Kind: pattern.KindIncrement})
	cls := reread.New(reread.DeviceTarget{Device: dev}, reread.Config{Limit: 2})
	d := New(s, nil, Config{
		Target:       path,
		Retries:      true,
		RandomAccess: dev.RandomAccess(),
		Positional:   true,
	}, WithClassifier(cls))

	data := make([]byte, 4096)
	_, err = d.Generate(Record{Data: data}, now)
	require.NoError(t, err)
	_, err = dev.WriteAt(data, 0)
	require.NoError(t, err)

	// Corrupted in flight: the medium holds good data.
	read := bytes.Clone(data)
	read[77] ^= 1
	res, err := d.Verify(context.Background(), Record{Data: read, RecordNumber: 1})
	requireMiscompare(t, err)
	require.Equal(t, reread.PossibleReadFailure, res.Classification.Class)

	// Corrupted on the medium: every reread returns the same bad bytes.
	_, err = dev.WriteAt(read[77:78], 77)
	require.NoError(t, err)
	res, err = d.Verify(context.Background(), Record{Data: read, RecordNumber: 1})
	requireMiscompare(t, err)
	require.Equal(t, reread.PossibleWriteFailure, res.Classification.Class)
	require.Len(t, res.Classification.Commands, 2)
}
