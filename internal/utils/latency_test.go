package utils

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLatencyTrackerPercentile(t *testing.T) {
	tracker := NewLatencyTracker(10)
	durations := []time.Duration{50 * time.Millisecond, 10 * time.Millisecond, 40 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}
	for _, d := range durations {
		tracker.Observe(d)
	}

	if tracker.Count() != len(durations) {
		t.Fatalf("expected count %d, got %d", len(durations), tracker.Count())
	}
	if p95 := tracker.Percentile(95); p95 < 40*time.Millisecond {
		t.Fatalf("expected percentile >= 40ms, got %v", p95)
	}
	if lo := tracker.Percentile(0); lo != 10*time.Millisecond {
		t.Fatalf("expected min 10ms, got %v", lo)
	}
	if hi := tracker.Percentile(100); hi != 50*time.Millisecond {
		t.Fatalf("expected max 50ms, got %v", hi)
	}
}

func TestLatencyTrackerKeepsMostRecent(t *testing.T) {
	tracker := NewLatencyTracker(3)
	for i := 0; i < 10; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}
	if tracker.Count() != 3 {
		t.Fatalf("expected tracker size 3, got %d", tracker.Count())
	}
	if lo := tracker.Percentile(0); lo != 7*time.Millisecond {
		t.Fatalf("expected oldest retained sample 7ms, got %v", lo)
	}
}

func TestLatencyTrackerEmpty(t *testing.T) {
	if got := NewLatencyTracker(0).Percentile(95); got != 0 {
		t.Fatalf("expected zero without samples, got %v", got)
	}
}

func TestLoggerLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warning", true)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("org_id", "org-1"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"service":"mirador-insights"`) {
		t.Fatalf("unexpected json output: %s", out)
	}
	if ParseLogLevel("bogus") != slog.LevelInfo {
		t.Fatalf("unknown level should default to info")
	}
}
