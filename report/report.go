package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Report collects all diagnostics found while verifying one or more targets.
type Report struct {
	Target  string        `json:"target,omitempty"`
	Bytes   int64         `json:"bytes"` // bytes verified
	Elapsed time.Duration `json:"elapsed"`

	Diagnostics []Diagnostic `json:"diagnostics"`
	Summary     Summary      `json:"summary"`

	BySeverity map[Severity][]Diagnostic `json:"-"`
	ByOffset   []Diagnostic              `json:"-"`
}

// Summary provides quick statistics.
type Summary struct {
	Critical int `json:"critical"`
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Info     int `json:"info"`
}

// NewReport creates an empty report.
func NewReport() *Report {
	return &Report{BySeverity: make(map[Severity][]Diagnostic)}
}

// Add appends a diagnostic and updates the summary.
func (r *Report) Add(d Diagnostic) {
	r.Diagnostics = append(r.Diagnostics, d)
	switch d.Severity {
	case SevCritical:
		r.Summary.Critical++
	case SevError:
		r.Summary.Errors++
	case SevWarning:
		r.Summary.Warnings++
	case SevInfo:
		r.Summary.Info++
	}
	r.BySeverity[d.Severity] = append(r.BySeverity[d.Severity], d)
}

// Finalize sorts diagnostics by target and offset.
func (r *Report) Finalize() {
	r.ByOffset = make([]Diagnostic, len(r.Diagnostics))
	copy(r.ByOffset, r.Diagnostics)
	sort.SliceStable(r.ByOffset, func(i, j int) bool {
		a, b := r.ByOffset[i], r.ByOffset[j]
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.Offset < b.Offset
	})
}

// HasErrors reports whether any error or critical diagnostic was added.
func (r *Report) HasErrors() bool {
	return r.Summary.Critical > 0 || r.Summary.Errors > 0
}

// FormatJSON returns the report as indented JSON.
func (r *Report) FormatJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FormatText returns a human-readable report grouped by severity.
func (r *Report) FormatText() string {
	var b strings.Builder

	b.WriteString(strings.Repeat("=", 79) + "\n")
	b.WriteString("Data Integrity Report\n")
	b.WriteString(strings.Repeat("=", 79) + "\n\n")

	if r.Target != "" {
		fmt.Fprintf(&b, "Target:   %s\n", r.Target)
	}
	fmt.Fprintf(&b, "Verified: %s\n", humanize.IBytes(uint64(max(r.Bytes, 0))))
	fmt.Fprintf(&b, "Elapsed:  %v\n\n", r.Elapsed)

	b.WriteString("SUMMARY\n")
	b.WriteString(strings.Repeat("-", 79) + "\n")
	fmt.Fprintf(&b, "  Critical: %d\n", r.Summary.Critical)
	fmt.Fprintf(&b, "  Errors:   %d\n", r.Summary.Errors)
	fmt.Fprintf(&b, "  Warnings: %d\n", r.Summary.Warnings)
	fmt.Fprintf(&b, "  Info:     %d\n\n", r.Summary.Info)

	if len(r.Diagnostics) == 0 {
		b.WriteString("No issues found.\n")
		return b.String()
	}

	b.WriteString("DIAGNOSTICS\n")
	b.WriteString(strings.Repeat("-", 79) + "\n")
	for _, sev := range []Severity{SevCritical, SevError, SevWarning, SevInfo} {
		diags := r.BySeverity[sev]
		if len(diags) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s (%d)\n", sev, len(diags))
		for i, d := range diags {
			fmt.Fprintf(&b, "\n%d. [%s] %s at offset %d", i+1, d.Category, d.Target, d.Offset)
			if d.Record > 0 {
				fmt.Fprintf(&b, " (record %d)", d.Record)
			}
			b.WriteString("\n")
			fmt.Fprintf(&b, "   %s\n", d.Issue)
			if d.Field != "" {
				fmt.Fprintf(&b, "   Field:    %s\n", d.Field)
			}
			if d.Expected != nil {
				fmt.Fprintf(&b, "   Expected: %v\n", d.Expected)
			}
			if d.Actual != nil {
				fmt.Fprintf(&b, "   Actual:   %v\n", d.Actual)
			}
			for _, a := range d.Artifacts {
				fmt.Fprintf(&b, "   Artifact: %s\n", a)
			}
			for _, c := range d.Commands {
				fmt.Fprintf(&b, "   Reproduce: %s\n", c)
			}
		}
	}
	return b.String()
}

// FormatCompact returns one line per issue, ordered by offset.
func (r *Report) FormatCompact() string {
	if len(r.Diagnostics) == 0 {
		return "No issues found.\n"
	}
	if len(r.ByOffset) != len(r.Diagnostics) {
		r.Finalize()
	}
	var b strings.Builder
	for _, d := range r.ByOffset {
		fmt.Fprintf(&b, "%s:%d [%s/%s] %s\n", d.Target, d.Offset, d.Severity, d.Category, d.Issue)
	}
	return b.String()
}
