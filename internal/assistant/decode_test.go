package assistant

import (
	"testing"

	"github.com/miradorstack/mirador-insights/internal/models"
)

func TestExtractObjectSkipsProseAndStringBraces(t *testing.T) {
	text := "Here you go:\n```json\n{\"summary\": \"a } brace and a \\\" quote\", \"n\": {\"x\": 1}}\n```\ntrailing {junk}"
	got, ok := ExtractObject(text)
	if !ok {
		t.Fatalf("expected an object")
	}
	want := "{\"summary\": \"a } brace and a \\\" quote\", \"n\": {\"x\": 1}}"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestExtractObjectUnbalanced(t *testing.T) {
	if _, ok := ExtractObject(`{"summary": "never closed"`); ok {
		t.Fatalf("expected no object for unbalanced input")
	}
	if _, ok := ExtractObject("no json here"); ok {
		t.Fatalf("expected no object for plain text")
	}
}

func TestDecodeObjectToleratesCommentsAndTrailingCommas(t *testing.T) {
	decoded := DecodeObject(`{
  // model commentary
  "summary": "two services failing",
  "insights": ["legacy string insight",],
}`)
	if decoded.Status != Parsed {
		t.Fatalf("expected parsed result, got %q", decoded.Reason)
	}
	remote := decodeSummary(decoded.Value)
	if remote.Summary != "two services failing" {
		t.Fatalf("unexpected summary %q", remote.Summary)
	}
	if len(remote.Insights) != 1 {
		t.Fatalf("expected one insight, got %+v", remote.Insights)
	}
	got := remote.Insights[0]
	if got.Text != "legacy string insight" || got.Severity != models.SeverityInfo || got.Category != models.CategoryPattern {
		t.Fatalf("legacy insight not coerced: %+v", got)
	}
}

func TestDecodeObjectInvalid(t *testing.T) {
	decoded := DecodeObject(`{"summary": nope}`)
	if decoded.Status != Unparsed || decoded.Reason == "" {
		t.Fatalf("expected unparsed result with reason, got %+v", decoded)
	}
}

func TestDecodeSummaryStructuredInsights(t *testing.T) {
	decoded := DecodeObject(`{"insights": [
		{"text": "db pool exhausted", "severity": "CRITICAL", "category": "performance", "searchHint": "pool", "services": ["db", 7], "count": 12},
		{"text": "odd", "severity": "urgent", "category": "mystery"},
		{"severity": "info"},
		42
	]}`)
	if decoded.Status != Parsed {
		t.Fatalf("expected parsed, got %q", decoded.Reason)
	}
	remote := decodeSummary(decoded.Value)
	if len(remote.Insights) != 2 {
		t.Fatalf("expected two usable insights, got %+v", remote.Insights)
	}
	first := remote.Insights[0]
	if first.ID != "ai-1" || first.Severity != models.SeverityCritical || first.Category != models.CategoryPerformance {
		t.Fatalf("unexpected first insight %+v", first)
	}
	if len(first.Services) != 1 || first.Services[0] != "db" || first.Count != 12 || first.SearchHint != "pool" {
		t.Fatalf("unexpected first insight details %+v", first)
	}
	second := remote.Insights[1]
	if second.ID != "ai-2" || second.Severity != models.SeverityInfo || second.Category != models.CategoryPattern {
		t.Fatalf("expected defaults for unknown enums, got %+v", second)
	}
}

func TestDecodeAnalysisAcceptsSingleString(t *testing.T) {
	decoded := DecodeObject(`{"summary": "s", "possibleCauses": "one cause", "suggestedActions": ["a", "", "b"]}`)
	remote := decodeAnalysis(decoded.Value)
	if len(remote.PossibleCauses) != 1 || remote.PossibleCauses[0] != "one cause" {
		t.Fatalf("unexpected causes %v", remote.PossibleCauses)
	}
	if len(remote.SuggestedActions) != 2 {
		t.Fatalf("unexpected actions %v", remote.SuggestedActions)
	}
}
