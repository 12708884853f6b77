package utils

import (
	"fmt"
	"strings"
	"time"
)

// ParseRFC3339 parses an RFC 3339 timestamp, with or without fractional
// seconds, and returns it in UTC.
func ParseRFC3339(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t.UTC(), nil
}
