package assistant

import (
	"fmt"
	"strings"
	"time"

	"github.com/miradorstack/mirador-insights/internal/models"
	"github.com/miradorstack/mirador-insights/internal/patterns"
)

// RenderEntries renders at most limit entries in a compact form:
//
//	+<seconds since earliest entry>s <level code> <message>
//
// Lines are grouped by service, with a "[service]" header when more than one
// service is present. Within a service, messages that normalise to the same
// key collapse into their first line with an "(xN)" suffix. Storage returns
// entries oldest first, so the earliest entry is normally entries[0].
func RenderEntries(entries []models.LogEntry, limit, messageLen int) string {
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	if len(entries) == 0 {
		return ""
	}

	base := entries[0].Timestamp
	for _, e := range entries[1:] {
		if e.Timestamp.Before(base) {
			base = e.Timestamp
		}
	}

	type line struct {
		offset time.Duration
		level  models.Level
		text   string
		count  int
	}
	type group struct {
		service string
		lines   []*line
		byKey   map[string]*line
	}

	groups := make([]*group, 0)
	byService := make(map[string]*group)
	for _, e := range entries {
		service := e.ServiceID
		if service == "" {
			service = "unknown"
		}
		g, ok := byService[service]
		if !ok {
			g = &group{service: service, byKey: make(map[string]*line)}
			byService[service] = g
			groups = append(groups, g)
		}
		text := patterns.Truncate(strings.TrimSpace(e.Message), messageLen)
		key := string(e.Level) + "|" + patterns.Normalize(e.Message, messageLen)
		if existing, ok := g.byKey[key]; ok {
			existing.count++
			continue
		}
		l := &line{offset: e.Timestamp.Sub(base), level: e.Level, text: text, count: 1}
		g.byKey[key] = l
		g.lines = append(g.lines, l)
	}

	var b strings.Builder
	for _, g := range groups {
		if len(groups) > 1 {
			fmt.Fprintf(&b, "[%s]\n", g.service)
		}
		for _, l := range g.lines {
			fmt.Fprintf(&b, "+%ds %s %s", int64(l.offset/time.Second), l.level.Code(), l.text)
			if l.count > 1 {
				fmt.Fprintf(&b, " (x%d)", l.count)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

const systemPrompt = "You are a site reliability assistant analysing application logs. " +
	"Reply with a single JSON object and no other text."

func summaryPrompt(rendered string, local models.AssistantSummary) []models.ChatMessage {
	user := fmt.Sprintf(`Summarise these logs. Local counts: %d errors, %d warnings.
Respond as {"summary": string, "insights": [{"text": string, "severity": "critical"|"warning"|"info", "category": "error"|"performance"|"pattern"|"anomaly"|"health", "searchHint": string, "services": [string]}]} with at most 5 insights.

Logs (offset, level, message):
%s`, local.ErrorCount, local.WarnCount, rendered)
	return []models.ChatMessage{{Role: "system", Content: systemPrompt}, {Role: "user", Content: user}}
}

func errorPrompt(rendered string, messages []string) []models.ChatMessage {
	user := fmt.Sprintf(`Analyse these error logs and explain likely causes.
Respond as {"summary": string, "possibleCauses": [string], "suggestedActions": [string]}.

Distinct error messages:
- %s

Logs (offset, level, message):
%s`, strings.Join(messages, "\n- "), rendered)
	return []models.ChatMessage{{Role: "system", Content: systemPrompt}, {Role: "user", Content: user}}
}

func investigationPrompt(insight models.Insight, rendered string) []models.ChatMessage {
	services := "none"
	if len(insight.Services) > 0 {
		services = strings.Join(insight.Services, ", ")
	}
	user := fmt.Sprintf(`Investigate this insight using the related logs.
Insight: %s
Category: %s
Severity: %s
Services: %s
Respond as {"explanation": string, "suggestedActions": [string]}.

Related logs (offset, level, message):
%s`, insight.Text, insight.Category, insight.Severity, services, rendered)
	return []models.ChatMessage{{Role: "system", Content: systemPrompt}, {Role: "user", Content: user}}
}
