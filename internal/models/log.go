package models

import (
	"strings"
	"time"
)

// Level is a log entry severity level.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// Ordinal places the level on the fixed debug<info<warn<error scale.
// Fatal shares the error rank. Unknown levels rank below debug.
func (l Level) Ordinal() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError, LevelFatal:
		return 3
	default:
		return -1
	}
}

// IsError reports whether the level is error or fatal.
func (l Level) IsError() bool {
	return l == LevelError || l == LevelFatal
}

// Code returns the single-letter code used in compact renderings.
func (l Level) Code() string {
	switch l {
	case LevelDebug:
		return "D"
	case LevelInfo:
		return "I"
	case LevelWarn:
		return "W"
	case LevelError:
		return "E"
	case LevelFatal:
		return "F"
	default:
		return "?"
	}
}

// ParseLevel maps free-form level names onto Level. The second return value
// is false when the input is not a recognised level.
func ParseLevel(value string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug", "trace":
		return LevelDebug, true
	case "info", "information":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error", "err":
		return LevelError, true
	case "fatal", "critical", "panic":
		return LevelFatal, true
	default:
		return "", false
	}
}

// LogEntry is a single structured log line. Entries are produced by the
// storage layer already scoped to one organisation and are never mutated.
type LogEntry struct {
	ID        string         `json:"id"`
	StreamID  string         `json:"streamId"`
	OrgID     string         `json:"orgId"`
	ServiceID string         `json:"serviceId"`
	Env       string         `json:"env,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// MetadataString returns metadata[key] when it holds a string.
func (e LogEntry) MetadataString(key string) string {
	if e.Metadata == nil {
		return ""
	}
	if v, ok := e.Metadata[key].(string); ok {
		return v
	}
	return ""
}

// LogQuery describes a bounded read from the storage collaborator.
type LogQuery struct {
	OrgID     string
	Start     time.Time
	End       time.Time
	StreamIDs []string
	Level     Level
	Search    string
	Limit     int
}
