// Package report collects and renders data-integrity diagnostics.
//
// A Sink is the single serialized writer shared by every I/O stream: each
// stream's verifier and reread classifier emit through it, so lines from
// concurrent streams never interleave. Diagnostics are also accumulated into
// a Report that can be rendered as text, JSON, or a compact one-line-per-issue
// listing.
package report

// Severity classifies how serious a diagnostic is.
type Severity int

const (
	SevInfo     Severity = iota // progress and context lines
	SevWarning                  // degraded behavior (e.g. buffered reread fallback)
	SevError                    // data miscompare or failed reread
	SevCritical                 // corruption that persisted across every reread
)

func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "INFO"
	case SevWarning:
		return "WARNING"
	case SevError:
		return "ERROR"
	case SevCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the severity by name in JSON output.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Category classifies the kind of issue found.
type Category int

const (
	CatMiscompare Category = iota // received data differs from expected
	CatIntegrity                  // block tag field or CRC failure
	CatReread                     // reread classification outcome
	CatArtifact                   // evidence file handling
)

func (c Category) String() string {
	switch c {
	case CatMiscompare:
		return "MISCOMPARE"
	case CatIntegrity:
		return "INTEGRITY"
	case CatReread:
		return "REREAD"
	case CatArtifact:
		return "ARTIFACT"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the category by name in JSON output.
func (c Category) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// Diagnostic is a single issue found while verifying a target.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Category Category `json:"category"`

	Target string `json:"target,omitempty"`
	Offset int64  `json:"offset"`         // byte offset of the issue in the target
	Record uint64 `json:"record,omitempty"` // 1-based record number
	Field  string `json:"field,omitempty"`  // block tag field or strategy name

	Issue    string `json:"issue"`
	Expected any    `json:"expected,omitempty"`
	Actual   any    `json:"actual,omitempty"`

	// Commands reproduce the failure with the exerciser.
	Commands []string `json:"commands,omitempty"`
	// Artifacts are evidence files written for this issue.
	Artifacts []string `json:"artifacts,omitempty"`
}
