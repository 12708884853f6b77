package assistant

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/miradorstack/mirador-insights/internal/models"
)

func TestRenderEntriesGroupsAndCollapses(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	entries := []models.LogEntry{
		{ServiceID: "auth", Level: models.LevelError, Timestamp: t0.Add(time.Second), Message: "Token validation failed for session abc123"},
		{ServiceID: "auth", Level: models.LevelError, Timestamp: t0.Add(3 * time.Second), Message: "Token validation failed for session xyz789"},
		{ServiceID: "api", Level: models.LevelInfo, Timestamp: t0, Message: "request served"},
	}

	got := RenderEntries(entries, 75, 120)
	want := "[auth]\n+1s E Token validation failed for session abc123 (x2)\n[api]\n+0s I request served\n"
	if got != want {
		t.Fatalf("unexpected rendering:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderEntriesSingleServiceHasNoHeader(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	entries := []models.LogEntry{
		{ServiceID: "api", Level: models.LevelWarn, Timestamp: t0, Message: "slow request"},
		{ServiceID: "api", Level: models.LevelInfo, Timestamp: t0.Add(90 * time.Second), Message: "ok"},
	}
	got := RenderEntries(entries, 75, 120)
	if got != "+0s W slow request\n+90s I ok\n" {
		t.Fatalf("unexpected rendering %q", got)
	}
}

func TestRenderEntriesCapsInputAndMessageLength(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	var entries []models.LogEntry
	for i := 0; i < 100; i++ {
		entries = append(entries, models.LogEntry{
			ServiceID: "api",
			Level:     models.LevelInfo,
			Timestamp: t0.Add(time.Duration(i) * time.Second),
			Message:   fmt.Sprintf("unique-word-%s %s", strings.Repeat("z", i%3+1), strings.Repeat("m", 200)),
		})
	}
	got := RenderEntries(entries, 10, 40)
	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 collapsed lines from 10 rendered entries, got %d:\n%s", len(lines), got)
	}
	if !strings.HasSuffix(lines[0], "(x4)") {
		t.Fatalf("expected first line to collapse 4 entries, got %q", lines[0])
	}
	for _, line := range lines {
		if len(line) > 40+len("+0s I ")+len(" (x4)") {
			t.Fatalf("line not truncated: %q", line)
		}
	}
}

func TestRenderEntriesOffsetsNeverNegative(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ordered := []models.LogEntry{
		{ServiceID: "api", Level: models.LevelInfo, Timestamp: t0, Message: "first"},
		{ServiceID: "api", Level: models.LevelInfo, Timestamp: t0.Add(5 * time.Second), Message: "second"},
	}
	if got := RenderEntries(ordered, 10, 120); got != "+0s I first\n+5s I second\n" {
		t.Fatalf("unexpected ordered rendering %q", got)
	}

	shuffled := []models.LogEntry{ordered[1], ordered[0]}
	got := RenderEntries(shuffled, 10, 120)
	if strings.Contains(got, "+-") || got != "+5s I second\n+0s I first\n" {
		t.Fatalf("unexpected unordered rendering %q", got)
	}
}

func TestRenderEntriesEmpty(t *testing.T) {
	if got := RenderEntries(nil, 10, 10); got != "" {
		t.Fatalf("expected empty rendering, got %q", got)
	}
}
