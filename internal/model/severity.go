package model

import (
	"fmt"
	"strings"
)

// Severity is the importance of an analyzer issue.
// Values are ordered so that a larger value is more severe.
type Severity int

const (
	// SeverityInfo marks an opportunity rather than a defect, such as a
	// missing Open Graph tag or a page without a main landmark.
	SeverityInfo Severity = iota

	// SeverityWarning marks a defect that degrades SEO or accessibility
	// without breaking the page, such as images without alt text.
	SeverityWarning

	// SeverityError marks a defect that search engines or assistive
	// technology penalize directly: no title, no h1, no viewport.
	SeverityError
)

// String returns the lowercase wire name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseSeverity converts a wire name back to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return SeverityInfo, nil
	case "warning":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	default:
		return SeverityInfo, fmt.Errorf("unknown severity %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	if s < SeverityInfo || s > SeverityError {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// AllSeverities lists severities from most to least severe.
func AllSeverities() []Severity {
	return []Severity{SeverityError, SeverityWarning, SeverityInfo}
}
