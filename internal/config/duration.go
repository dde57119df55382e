package config

import (
	"fmt"
	"strings"
	"time"

	vigilErrors "github.com/harunnryd/vigil/internal/errors"
)

// DurationOrDefault parses value, or fallback when value is blank. Negative
// durations are rejected; zero is allowed and means "disabled" to callers
// that support it.
func DurationOrDefault(value, fallback string) (time.Duration, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		raw = strings.TrimSpace(fallback)
	}
	if raw == "" {
		return 0, fmt.Errorf("%w: empty duration", vigilErrors.ErrInvalidInput)
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: duration %q: %v", vigilErrors.ErrInvalidInput, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: duration %q is negative", vigilErrors.ErrInvalidInput, raw)
	}
	return d, nil
}
