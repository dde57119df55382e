// Package risk defines the ordered risk scale shared by plans, the validator
// and the safety policy confirmation threshold.
package risk

import (
	"fmt"
	"strings"
)

type Level int

const (
	Minimal Level = iota
	Low
	Medium
	High
	Critical
)

var levelNames = [...]string{"minimal", "low", "medium", "high", "critical"}

func (l Level) String() string {
	if l < Minimal || l > Critical {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// Parse accepts the lowercase names, case-insensitively. "none" is an alias
// for Minimal so a threshold of none means every level crosses it.
func Parse(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "none" {
		return Minimal, nil
	}
	for i, n := range levelNames {
		if n == name {
			return Level(i), nil
		}
	}
	return Minimal, fmt.Errorf("unknown risk level %q", s)
}

func (l Level) MarshalText() ([]byte, error) {
	if l < Minimal || l > Critical {
		return nil, fmt.Errorf("unknown risk level %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// AtLeast reports whether l is at or above threshold.
func (l Level) AtLeast(threshold Level) bool {
	return l >= threshold
}

// Max returns the highest of the given levels, Minimal for none.
func Max(levels ...Level) Level {
	out := Minimal
	for _, l := range levels {
		if l > out {
			out = l
		}
	}
	return out
}
