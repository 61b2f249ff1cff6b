package verify

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/joshuapare/dtcheck/btag"
	"github.com/joshuapare/dtcheck/internal/buf"
	"github.com/joshuapare/dtcheck/iot"
	"github.com/joshuapare/dtcheck/pattern"
	"github.com/joshuapare/dtcheck/report"
	"github.com/joshuapare/dtcheck/reread"
)

// Config describes one verification context.
type Config struct {
	Target string

	// BlockTags verifies a block tag at the head of every unit. The pattern
	// layout must reserve the template's tag size.
	BlockTags bool
	// VerifyPrefix also checks the prefix inside block-tagged units.
	VerifyPrefix bool
	// Policy is the base tag policy. A zero Flags selects btag.DefaultPolicy.
	Policy btag.VerifyPolicy
	// Mode derives the effective policy from Policy.
	Mode btag.Mode

	// Retries hands miscompares to the classifier when the target is
	// RandomAccess.
	Retries      bool
	RandomAccess bool
	// Positional seeks the pattern cursor to each record's offset instead
	// of consuming the pattern sequentially.
	Positional bool

	DumpLimit int
	Resolver  btag.Resolver
	// Command seeds the reproduction command lines; pattern and layout
	// fields are filled in from the pattern state.
	Command reread.CommandInfo
	Sink    *report.Sink
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithHandler registers the trigger handler.
func WithHandler(h Handler) Option {
	return func(d *Dispatcher) { d.handler = h }
}

// WithClassifier registers the reread classifier.
func WithClassifier(c Classifier) Option {
	return func(d *Dispatcher) { d.classifier = c }
}

// Dispatcher verifies records for one I/O stream. It owns its pattern
// state, template and policy and is not safe for concurrent use.
type Dispatcher struct {
	state      *pattern.State
	tmpl       *btag.Template
	cfg        Config
	policy     btag.VerifyPolicy
	handler    Handler
	classifier Classifier
	scratch    []byte
}

// New returns a dispatcher. tmpl may be nil when block tags are disabled.
func New(state *pattern.State, tmpl *btag.Template, cfg Config, opts ...Option) *Dispatcher {
	if cfg.Policy.Flags == 0 {
		cfg.Policy = btag.DefaultPolicy()
	}
	if cfg.DumpLimit <= 0 {
		cfg.DumpLimit = report.DefaultDumpLimit
	}
	d := &Dispatcher{state: state, tmpl: tmpl, cfg: cfg}
	d.policy = cfg.Policy.ForMode(cfg.Mode)
	for _, o := range opts {
		o(d)
	}
	return d
}

// Policy returns the effective tag policy.
func (d *Dispatcher) Policy() btag.VerifyPolicy { return d.policy }

// SetPolicy replaces the effective tag policy.
func (d *Dispatcher) SetPolicy(p btag.VerifyPolicy) { d.policy = p }

// SetMode re-derives the effective policy from the base policy when the
// I/O mode toggles.
func (d *Dispatcher) SetMode(m btag.Mode) {
	d.cfg.Mode = m
	d.policy = d.cfg.Policy.ForMode(m)
}

// Strategy returns the strategy used for every record.
func (d *Dispatcher) Strategy() Strategy {
	l := d.state.Layout()
	switch {
	case d.cfg.BlockTags && d.tmpl != nil:
		return StrategyBlockTag
	case d.state.Kind() == pattern.KindIOT || l.LBAWord:
		return StrategyLBA
	case l.PrefixLen > 0:
		return StrategyPrefix
	default:
		return StrategyPlain
	}
}

// Verify checks rec against the data the pattern state expects. On mismatch
// it returns a *MiscompareError carrying the same Result.
func (d *Dispatcher) Verify(ctx context.Context, rec Record) (Result, error) {
	if err := ctx.Err(); err != nil {
		return d.fail(ctx, rec, err)
	}
	if len(rec.Data) == 0 {
		return d.fail(ctx, rec, ErrEmptyRecord)
	}

	if d.cfg.Positional {
		d.state.Seek(rec.Offset)
	}
	reconstructable := d.state.Reconstructable(rec.Offset)
	exp := d.expected(len(rec.Data))
	d.state.Expected(exp, rec.LBA)

	strategy := d.Strategy()
	m, ok := d.check(exp, rec)
	if ok {
		return Result{OK: true, Strategy: strategy, Index: -1}, nil
	}

	res := d.result(strategy, m, exp, rec)
	d.fire(ctx, OnMiscompare, &res)
	d.analyze(&res, exp, rec)
	d.report(&res, exp, rec)

	if d.cfg.Retries && d.cfg.RandomAccess && d.classifier != nil {
		cl := d.classifier.Classify(ctx, d.event(exp, rec, res, reconstructable))
		res.Classification = &cl
	}
	return res, &MiscompareError{Target: d.cfg.Target, Result: res}
}

// Stalled reports that no progress was made on rec.
func (d *Dispatcher) Stalled(ctx context.Context, rec Record, detail string) {
	res := Result{Index: -1, Offset: rec.Offset, LBA: rec.LBA, Detail: detail}
	d.fire(ctx, OnNoProgress, &res)
	d.cfg.Sink.Emitf(report.SevWarning, "%s: no progress at offset %d: %s", d.cfg.Target, rec.Offset, detail)
}

func (d *Dispatcher) fail(ctx context.Context, rec Record, err error) (Result, error) {
	res := Result{Index: -1, Offset: rec.Offset, LBA: rec.LBA, Detail: err.Error()}
	d.fire(ctx, OnError, &res)
	return res, err
}

func (d *Dispatcher) fire(ctx context.Context, ev Event, res *Result) {
	if d.handler != nil {
		d.handler.Handle(ctx, ev, res)
	}
}

func (d *Dispatcher) expected(n int) []byte {
	if cap(d.scratch) < n {
		d.scratch = make([]byte, n)
	}
	return d.scratch[:n]
}

type mismatch struct {
	index  int
	unit   int
	field  string
	detail string
	tag    *btag.VerifyResult
}

// check compares rec.Data with exp. It reads the layout, template and
// policy but changes nothing, so the classifier can rerun it on reread
// data.
func (d *Dispatcher) check(exp []byte, rec Record) (mismatch, bool) {
	data := rec.Data
	l := d.state.Layout()
	strategy := d.Strategy()

	if len(data) != len(exp) {
		n := min(len(data), len(exp))
		return mismatch{index: n, unit: n / l.UnitSize, field: "length"}, false
	}
	if strategy == StrategyLBA && d.state.Kind() == pattern.KindIOT && !l.Timestamp && l.TagSize == 0 &&
		bytes.Equal(exp, data) {
		return mismatch{}, true
	}

	for u := 0; u < l.Units(len(data)); u++ {
		base := u * l.UnitSize
		eu, gu := l.Unit(exp, u), l.Unit(data, u)

		if strategy == StrategyBlockTag {
			pos := d.position(rec, base)
			res := btag.Verify(d.tmpl.Expected(pos), gu, d.policy, rec.IsRAW)
			if !res.OK() {
				m := mismatch{index: base + max(res.Index, 0), unit: u, field: tagField(&res), tag: &res}
				if err := res.Err(); err != nil {
					m.detail = err.Error()
				}
				return m, false
			}
		}

		if strategy == StrategyPrefix || (strategy == StrategyBlockTag && d.cfg.VerifyPrefix) {
			w := l.PrefixRegion().Clip(len(eu))
			if i, ok := firstDiff(w.Of(eu), w.Of(gu)); !ok {
				return mismatch{index: base + w.Off + i, unit: u, field: "prefix"}, false
			}
		}

		if w := l.Slot().Clip(len(eu)); l.LBAWord && !l.Timestamp && w.Len == pattern.WordSize {
			want, got := buf.U32BE(w.Of(eu)), buf.U32BE(w.Of(gu))
			if want != got {
				i, _ := firstDiff(w.Of(eu), w.Of(gu))
				return mismatch{
					index:  base + w.Off + i,
					unit:   u,
					field:  "lbdata",
					detail: fmt.Sprintf("expected lba %d (0x%08X), received lba %d (0x%08X)", want, want, got, got),
				}, false
			}
		}

		if i, ok := l.Compare(eu, gu); !ok {
			return mismatch{index: base + i, unit: u}, false
		}
	}
	return mismatch{}, true
}

func (d *Dispatcher) position(rec Record, base int) btag.Position {
	return btag.Position{
		Offset:       rec.Offset + int64(base),
		RecordIndex:  rec.RecordIndex,
		RecordSize:   uint32(len(rec.Data)),
		RecordNumber: rec.RecordNumber,
		StepOffset:   rec.StepOffset,
	}
}

func tagField(r *btag.VerifyResult) string {
	if r.Status == btag.StatusIncorrectCRC && r.Errors == 0 {
		return "btag crc32"
	}
	return "btag " + r.Field.String()
}

func firstDiff(a, b []byte) (int, bool) {
	for i := range a {
		if i >= len(b) || a[i] != b[i] {
			return i, false
		}
	}
	return -1, true
}

func (d *Dispatcher) result(strategy Strategy, m mismatch, exp []byte, rec Record) Result {
	res := Result{
		Strategy: strategy,
		Index:    m.index,
		Offset:   rec.Offset + int64(m.index),
		Unit:     m.unit,
		LBA:      rec.LBA + uint64(m.unit),
		Tag:      m.tag,
		Field:    m.field,
		Detail:   m.detail,
	}
	if m.index < len(exp) {
		res.Expected = exp[m.index]
	}
	if m.index < len(rec.Data) {
		res.Received = rec.Data[m.index]
	}
	return res
}

// analyze attaches IOT forensics and the good/bad block sequence.
func (d *Dispatcher) analyze(res *Result, exp []byte, rec Record) {
	l := d.state.Layout()
	if d.state.Kind() == pattern.KindIOT {
		unit := l.Unit(rec.Data, res.Unit)
		hdr := min(l.HeaderRegion().End(), len(unit))
		opts := iot.AnalyzeOptions{
			ScanOptions: iot.ScanOptions{BaseSeed: d.state.BaseSeed(), UnitOffset: hdr},
			ExpectedLBA: uint32(res.LBA),
			Generation:  d.state.Generation(),
		}
		if g := d.state.Generation(); g > 1 {
			opts.PriorSeed = d.state.BaseSeed() * (g - 1)
		}
		v := iot.AnalyzeBlock(unit[hdr:], opts)
		res.Verdict = &v
		if res.Detail == "" {
			res.Detail = v.String()
		}
	}
	if len(rec.Data) > l.UnitSize && l.TagSize == 0 && !l.Timestamp {
		s := iot.ClassifySequenceRun(rec.Data, exp, l.UnitSize, iot.RunOptions{
			BaseOffset: rec.Offset,
			FirstBlock: rec.LBA,
			Resolver:   d.cfg.Resolver,
		})
		res.Runs = &s
	}
}

// report writes the miscompare to the sink.
func (d *Dispatcher) report(res *Result, exp []byte, rec Record) {
	sink := d.cfg.Sink
	if sink == nil {
		return
	}
	cat := report.CatMiscompare
	if res.Tag != nil {
		cat = report.CatIntegrity
	}
	issue := fmt.Sprintf("data miscompare (%s)", res.Strategy)
	if res.Field != "" {
		issue += ": " + res.Field
	}
	if res.Detail != "" {
		issue += ": " + res.Detail
	}
	sink.Record(report.Diagnostic{
		Severity: report.SevError,
		Category: cat,
		Target:   d.cfg.Target,
		Offset:   res.Offset,
		Record:   uint64(rec.RecordNumber),
		Field:    res.Field,
		Issue:    issue,
		Expected: fmt.Sprintf("0x%02x", res.Expected),
		Actual:   fmt.Sprintf("0x%02x", res.Received),
	})

	var b strings.Builder
	fmt.Fprintf(&b, "record %d, offset %d, byte index %d, unit %d (lba %d)\n",
		rec.RecordNumber, res.Offset, res.Index, res.Unit, res.LBA)
	l := d.state.Layout()
	masked := func(i int) bool { return l.UnitSize > 0 && l.Masked(i%l.UnitSize) }
	b.WriteString(report.CompareDump(exp, rec.Data, res.Index, d.cfg.DumpLimit, rec.Offset, masked))
	if res.Tag != nil {
		base := res.Unit * l.UnitSize
		b.WriteString(btag.Report(d.tmpl.Expected(d.position(rec, base)), l.Unit(rec.Data, res.Unit),
			d.policy, rec.IsRAW, btag.Location{Name: d.cfg.Target, Offset: rec.Offset + int64(base), Resolver: d.cfg.Resolver}))
	}
	if res.Runs != nil && res.Runs.BadBlocks > 0 {
		b.WriteString(res.Runs.String())
	}
	sink.Emit(report.SevError, strings.TrimSuffix(b.String(), "\n"))
}

// event builds the classifier hand-off. The verify closure reruns check
// against a private copy of the expected data.
func (d *Dispatcher) event(exp []byte, rec Record, res Result, reconstructable bool) reread.Event {
	expected := bytes.Clone(exp)
	ci := d.cfg.Command
	l := d.state.Layout()
	if ci.Target == "" {
		ci.Target = d.cfg.Target
	}
	if ci.BlockSize == 0 {
		ci.BlockSize = len(rec.Data)
	}
	if ci.Prefix == "" {
		ci.Prefix = d.state.Prefix()
	}
	ci.Kind = d.state.Kind()
	ci.Value = d.state.Value()
	ci.UnitSize = l.UnitSize
	ci.BlockTags = d.Strategy() == StrategyBlockTag
	ci.LBData = l.LBAWord
	ci.Timestamp = l.Timestamp
	ci.DumpLimit = d.cfg.DumpLimit
	ci.Reconstructable = reconstructable

	return reread.Event{
		Offset:       rec.Offset,
		Index:        res.Index,
		RecordNumber: uint64(rec.RecordNumber),
		Expected:     expected,
		Received:     rec.Data,
		Verify: func(_ context.Context, data []byte) bool {
			r := rec
			r.Data = data
			_, ok := d.check(expected, r)
			return ok
		},
		Command: ci,
	}
}
