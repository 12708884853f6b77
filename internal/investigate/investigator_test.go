package investigate

import (
	"fmt"
	"strings"
	"testing"

	"github.com/miradorstack/mirador-insights/internal/models"
)

func logs(n int, service string, level models.Level, format string) []models.LogEntry {
	out := make([]models.LogEntry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.LogEntry{
			ID:        fmt.Sprintf("%s-%d", service, i),
			ServiceID: service,
			Level:     level,
			Message:   fmt.Sprintf(format, i),
		})
	}
	return out
}

func TestRelatedSearchHintMatchesMessageOrService(t *testing.T) {
	broader := append(logs(3, "auth", models.LevelInfo, "login %d ok"), logs(3, "api", models.LevelError, "Upstream TIMEOUT after %d s")...)
	broader = append(broader, logs(2, "db", models.LevelInfo, "vacuum %d")...)

	sel := NewInvestigator(models.DefaultLimits()).Related(models.Insight{
		SearchHint: "upstream timeout",
		Services:   []string{"auth"},
	}, nil, broader)

	if sel.Strategy != StrategySearchHint {
		t.Fatalf("unexpected strategy %s", sel.Strategy)
	}
	if len(sel.Entries) != 6 {
		t.Fatalf("expected 6 related entries, got %d", len(sel.Entries))
	}
	if sel.Entries[0].ID != "auth-0" || sel.Entries[5].ID != "api-2" {
		t.Fatalf("expected source order, got %s..%s", sel.Entries[0].ID, sel.Entries[5].ID)
	}
}

func TestRelatedServicesStrategy(t *testing.T) {
	broader := append(logs(2, "auth", models.LevelInfo, "a %d"), logs(2, "api", models.LevelInfo, "b %d")...)
	sel := NewInvestigator(models.DefaultLimits()).Related(models.Insight{Services: []string{"api"}}, nil, broader)
	if sel.Strategy != StrategyServices || len(sel.Entries) != 2 || sel.Entries[0].ServiceID != "api" {
		t.Fatalf("unexpected selection %+v", sel)
	}
}

func TestRelatedErrorCategoryUsesBroader(t *testing.T) {
	scoped := logs(5, "api", models.LevelError, "scoped %d")
	broader := append(logs(3, "api", models.LevelInfo, "ok %d"), logs(2, "worker", models.LevelFatal, "crash %d")...)

	sel := NewInvestigator(models.DefaultLimits()).Related(models.Insight{Category: models.CategoryError}, scoped, broader)
	if sel.Strategy != StrategyErrors || len(sel.Entries) != 2 {
		t.Fatalf("unexpected selection %+v", sel)
	}
	for _, e := range sel.Entries {
		if e.ServiceID != "worker" {
			t.Fatalf("expected broader error entries only, got %+v", e)
		}
	}
}

func TestRelatedScopedFallbackIsCapped(t *testing.T) {
	scoped := logs(40, "api", models.LevelInfo, "line %d")
	res := NewInvestigator(models.DefaultLimits()).Investigate(models.Insight{Text: "spike", Category: models.CategoryAnomaly}, scoped, nil)
	if len(res.RelatedLogs) != 15 {
		t.Fatalf("expected cap of 15, got %d", len(res.RelatedLogs))
	}
	if res.RelatedLogs[0].ID != "api-0" {
		t.Fatalf("expected head of scoped entries, got %s", res.RelatedLogs[0].ID)
	}
	if res.Insight != "spike" || !strings.Contains(res.Explanation, "15") {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestInvestigateNoMatches(t *testing.T) {
	res := NewInvestigator(models.DefaultLimits()).Investigate(models.Insight{SearchHint: "nothing here"}, logs(3, "api", models.LevelInfo, "x %d"), nil)
	if len(res.RelatedLogs) != 0 || res.RelatedLogs == nil {
		t.Fatalf("expected empty non-nil related logs, got %#v", res.RelatedLogs)
	}
	if res.Explanation != Explanation(0) {
		t.Fatalf("unexpected explanation %q", res.Explanation)
	}
}
