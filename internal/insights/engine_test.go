package insights

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/miradorstack/mirador-insights/internal/models"
)

func entry(id, service string, level models.Level, msg string) models.LogEntry {
	return models.LogEntry{
		ID:        id,
		ServiceID: service,
		Level:     level,
		Message:   msg,
		Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestGenerateLocalSummaryCollapsesSessionErrors(t *testing.T) {
	entries := []models.LogEntry{
		entry("1", "auth", models.LevelError, "Token validation failed for session abc123"),
		entry("2", "auth", models.LevelError, "Token validation failed for session xyz789"),
		entry("3", "api", models.LevelInfo, "request served"),
	}

	summary := NewEngine(models.Limits{}).GenerateLocalSummary(entries)
	if summary.ErrorCount != 2 || summary.WarnCount != 0 {
		t.Fatalf("unexpected counts: errors=%d warns=%d", summary.ErrorCount, summary.WarnCount)
	}
	if len(summary.Insights) != 1 {
		t.Fatalf("expected one insight, got %+v", summary.Insights)
	}
	got := summary.Insights[0]
	if got.ID != "error-auth" || got.Severity != models.SeverityCritical || got.Category != models.CategoryError {
		t.Fatalf("unexpected insight: %+v", got)
	}
	if got.Count != 2 || !strings.HasSuffix(got.Text, "(2x)") {
		t.Fatalf("expected a 2x error insight, got %+v", got)
	}
	if !reflect.DeepEqual(got.Services, []string{"auth"}) {
		t.Fatalf("unexpected services %v", got.Services)
	}
	if got.SearchHint != "Token validation failed" {
		t.Fatalf("unexpected search hint %q", got.SearchHint)
	}
	if !strings.Contains(summary.Summary, "2 errors") {
		t.Fatalf("summary should mention error count: %q", summary.Summary)
	}
}

func TestGenerateLocalSummaryEmpty(t *testing.T) {
	summary := NewEngine(models.DefaultLimits()).GenerateLocalSummary(nil)
	if summary.Summary != EmptySummary {
		t.Fatalf("unexpected summary %q", summary.Summary)
	}
	if summary.Insights == nil || len(summary.Insights) != 0 {
		t.Fatalf("expected empty non-nil insights, got %#v", summary.Insights)
	}
	if summary.ErrorCount != 0 || summary.WarnCount != 0 {
		t.Fatalf("expected zero counts")
	}
}

func TestGenerateLocalSummaryIsDeterministic(t *testing.T) {
	var entries []models.LogEntry
	for i := 0; i < 30; i++ {
		entries = append(entries, entry(fmt.Sprintf("h%d", i), "gateway", models.LevelInfo, fmt.Sprintf("health check ok in %d ms", i)))
	}
	for i := 0; i < 4; i++ {
		entries = append(entries, entry(fmt.Sprintf("e%d", i), "billing", models.LevelError, "charge declined"))
	}

	engine := NewEngine(models.DefaultLimits())
	first := engine.GenerateLocalSummary(entries)
	second := engine.GenerateLocalSummary(entries)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical results:\n%+v\n%+v", first, second)
	}
}

func TestGenerateLocalSummaryPatternSeverity(t *testing.T) {
	var entries []models.LogEntry
	for i := 0; i < 25; i++ {
		entries = append(entries, entry(fmt.Sprintf("a%d", i), "gateway", models.LevelInfo, fmt.Sprintf("health check ok in %d ms", i)))
	}
	for i := 0; i < 7; i++ {
		entries = append(entries, entry(fmt.Sprintf("b%d", i), "worker", models.LevelWarn, fmt.Sprintf("queue depth %d above target", i+100)))
	}
	for i := 0; i < 5; i++ {
		entries = append(entries, entry(fmt.Sprintf("c%d", i), "worker", models.LevelInfo, "tick"))
	}

	summary := NewEngine(models.DefaultLimits()).GenerateLocalSummary(entries)
	if len(summary.Insights) != 2 {
		t.Fatalf("expected two pattern insights, got %+v", summary.Insights)
	}
	if summary.Insights[0].Severity != models.SeverityWarning || summary.Insights[0].Count != 25 {
		t.Fatalf("expected warning for 25 repeats, got %+v", summary.Insights[0])
	}
	if summary.Insights[1].Severity != models.SeverityInfo || summary.Insights[1].Count != 7 {
		t.Fatalf("expected info for 7 repeats, got %+v", summary.Insights[1])
	}
	if summary.Insights[0].SearchHint != "health check" {
		t.Fatalf("unexpected hint %q", summary.Insights[0].SearchHint)
	}
	if summary.WarnCount != 7 || !strings.Contains(summary.Summary, "7 warnings") {
		t.Fatalf("unexpected warning summary %q", summary.Summary)
	}
	if len(summary.Patterns) != 2 {
		t.Fatalf("expected pattern keys, got %v", summary.Patterns)
	}
}

func TestGenerateLocalSummaryCapsInsights(t *testing.T) {
	var entries []models.LogEntry
	for i := 0; i < 8; i++ {
		entries = append(entries, entry(fmt.Sprintf("e%d", i), fmt.Sprintf("svc-%c", 'a'+i), models.LevelError, "boom"))
	}
	summary := NewEngine(models.DefaultLimits()).GenerateLocalSummary(entries)
	if len(summary.Insights) != 5 {
		t.Fatalf("expected 5 insights, got %d", len(summary.Insights))
	}
	if summary.Insights[0].ID != "error-svc-a" || summary.Insights[4].ID != "error-svc-e" {
		t.Fatalf("expected services in first-seen order, got %s..%s", summary.Insights[0].ID, summary.Insights[4].ID)
	}
}

func TestDistinctErrorMessages(t *testing.T) {
	entries := []models.LogEntry{
		entry("1", "db", models.LevelError, "connection reset by peer 10.0.0.1"),
		entry("2", "db", models.LevelError, "connection reset by peer 10.0.0.2"),
		entry("3", "db", models.LevelInfo, "pool resized"),
		entry("4", "db", models.LevelFatal, "out of memory"),
	}
	got := NewEngine(models.DefaultLimits()).DistinctErrorMessages(entries)
	want := []string{"connection reset by peer 10.0.0.1", "out of memory"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}
