package entities

import (
	"fmt"
	"strings"
)

// Severity is the ordered tier shared by alerts and report urgency.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{"none", "low", "medium", "high", "critical"}

// AllSeverities lists every tier from lowest to highest.
func AllSeverities() []Severity {
	return []Severity{SeverityNone, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

func (s Severity) String() string {
	if s < SeverityNone || s > SeverityCritical {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// Valid reports whether s is one of the defined tiers.
func (s Severity) Valid() bool {
	return s >= SeverityNone && s <= SeverityCritical
}

// Raise returns the next tier up, capped at critical.
func (s Severity) Raise() Severity {
	if s >= SeverityCritical {
		return SeverityCritical
	}
	return s + 1
}

// AtLeast returns the higher of s and floor.
func (s Severity) AtLeast(floor Severity) Severity {
	if floor > s {
		return floor
	}
	return s
}

// ParseSeverity accepts the lower-case tier names, case-insensitively.
func ParseSeverity(v string) (Severity, error) {
	name := strings.ToLower(strings.TrimSpace(v))
	for i, n := range severityNames {
		if n == name {
			return Severity(i), nil
		}
	}
	return SeverityNone, fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, v)
}

func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: severity %d out of range", ErrInvalidInput, int(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
