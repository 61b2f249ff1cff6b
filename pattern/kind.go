package pattern

import "fmt"

// Kind selects the data pattern family.
type Kind int

const (
	KindPattern Kind = iota
	KindASCII
	KindIncrement
	KindIOT
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindPattern:
		return "pattern"
	case KindASCII:
		return "ascii"
	case KindIncrement:
		return "incr"
	case KindIOT:
		return "iot"
	case KindFile:
		return "file"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a textual pattern name back to its Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "pattern", "":
		return KindPattern, nil
	case "ascii":
		return KindASCII, nil
	case "incr", "increment":
		return KindIncrement, nil
	case "iot":
		return KindIOT, nil
	case "file":
		return KindFile, nil
	}
	return 0, fmt.Errorf("pattern: unknown kind %q", s)
}
