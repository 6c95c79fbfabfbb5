package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration knobs (dispatch.tick, dispatch.send_timeout, the http timeouts,
// store.busy_timeout) are Go duration strings in the config file. An empty
// field means "unset"; the caller decides what unset falls back to.

// ParseDurationField parses one duration field. Empty yields zero; negative
// values are rejected.
func ParseDurationField(field, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	return d, nil
}

// ParseDurationOrDefault substitutes def for an unset field, keeping the
// documented defaults in one place at the call site.
func ParseDurationOrDefault(field, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(field, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
