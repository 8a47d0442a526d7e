package config

import (
	"fmt"
	"strings"
	"time"
)

// Every duration in the config file is a Go duration string ("500ms", "2m").
// Empty means "use the runtime default", which the two helpers below encode
// in the only two flavors the schema needs.

// ParseDurationField parses one duration field; empty is 0, negatives are
// rejected. The path names the field in errors ("scheduler.tick_interval").
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with an explicit fallback for
// fields whose zero value is not a usable runtime setting.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
