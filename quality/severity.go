package quality

import (
	"fmt"
	"strings"
)

// Severity ranks how serious an Issue is. Higher values are more severe.
type Severity uint8

const (
	SeverityInfo     Severity = 0x1
	SeverityWarning  Severity = 0x2
	SeverityError    Severity = 0x3
	SeverityCritical Severity = 0x4
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the severity name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a severity name, case-insensitively.
func (s *Severity) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "INFO":
		*s = SeverityInfo
	case "WARNING":
		*s = SeverityWarning
	case "ERROR":
		*s = SeverityError
	case "CRITICAL":
		*s = SeverityCritical
	default:
		return fmt.Errorf("unknown severity: %q", text)
	}

	return nil
}

// Kind identifies the category of an Issue.
type Kind string

const (
	KindShapeMismatch    Kind = "shape_mismatch"
	KindColumnMismatch   Kind = "column_mismatch"
	KindStringMismatch   Kind = "string_mismatch"
	KindNullMismatch     Kind = "null_mismatch"
	KindMinorError       Kind = "minor_error"
	KindModerateError    Kind = "moderate_error"
	KindHighError        Kind = "high_error"
	KindComparisonFailed Kind = "comparison_failed"
	KindExcellentQuality Kind = "excellent_quality"
)

// SeverityForKind returns the severity every issue of kind carries.
func SeverityForKind(kind Kind) Severity {
	switch kind {
	case KindShapeMismatch, KindColumnMismatch, KindComparisonFailed:
		return SeverityCritical
	case KindStringMismatch, KindNullMismatch, KindHighError:
		return SeverityError
	case KindModerateError:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Relative error tier bounds, in percent. Each tier is half-open: [lower, upper).
const (
	ExcellentErrorPct = 0.01
	MinorErrorPct     = 0.1
	ModerateErrorPct  = 1.0
)

// kindForRelativeError maps a relative error percentage to its tier.
func kindForRelativeError(pct float64) Kind {
	switch {
	case pct < ExcellentErrorPct:
		return KindExcellentQuality
	case pct < MinorErrorPct:
		return KindMinorError
	case pct < ModerateErrorPct:
		return KindModerateError
	default:
		return KindHighError
	}
}
