package assistant

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/miradorstack/mirador-insights/internal/models"
)

func TestActionRulesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte(`rules:
  - id: checkout-db
    match:
      service: "checkout"
      message_contains: ["deadlock"]
    causes: ["Concurrent writers on the orders table"]
    actions: ["Review transaction ordering"]
  - id: payments-only
    match:
      service: "payments"
    actions: ["Page payments on-call"]
`), 0644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	rules, err := LoadActionRules(path, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	if rules.Len() != 2 {
		t.Fatalf("expected 2 rules, got %d", rules.Len())
	}

	causes, actions := rules.Recommend(Subject{
		Category: models.CategoryError,
		Entries:  []models.LogEntry{{ServiceID: "checkout", Level: models.LevelError, Message: "Deadlock detected on orders"}},
	})
	if len(causes) != 1 || len(actions) != 1 || actions[0] != "Review transaction ordering" {
		t.Fatalf("unexpected recommendation causes=%v actions=%v", causes, actions)
	}
}

func TestActionRulesMissingFileUsesDefaults(t *testing.T) {
	rules, err := LoadActionRules("non-existent.yaml", nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if rules.Len() == 0 {
		t.Fatalf("expected built-in rules")
	}

	causes, actions := rules.Recommend(Subject{Entries: []models.LogEntry{
		{ServiceID: "api", Level: models.LevelFatal, Message: "upstream request timed out"},
		{ServiceID: "api", Level: models.LevelError, Message: "upstream request timed out"},
	}})
	if len(causes) != 1 {
		t.Fatalf("expected timeout cause only, got %v", causes)
	}
	if len(actions) != 3 {
		t.Fatalf("expected timeout and generic actions, got %v", actions)
	}
}

func TestActionRulesNilIsEmpty(t *testing.T) {
	var rules *ActionRules
	causes, actions := rules.Recommend(Subject{})
	if causes != nil || actions != nil {
		t.Fatalf("expected nil recommendations")
	}
}
