// Package insights produces deterministic, local insights over a slice of
// log entries. It never performs I/O and is the fallback for every
// remote-enhanced operation.
package insights

import (
	"fmt"
	"sort"

	"github.com/miradorstack/mirador-insights/internal/models"
	"github.com/miradorstack/mirador-insights/internal/patterns"
)

// EmptySummary is returned when there is nothing to analyse.
const EmptySummary = "No logs to analyze in the current time range."

// Engine computes local summaries.
type Engine struct {
	limits models.Limits
}

// NewEngine constructs an Engine; zero limits fall back to defaults.
func NewEngine(limits models.Limits) *Engine {
	return &Engine{limits: limits.WithDefaults()}
}

// Limits exposes the effective thresholds.
func (e *Engine) Limits() models.Limits {
	return e.limits
}

// patternAggregate tracks one normalised pattern in first-seen order.
type patternAggregate struct {
	key      string
	sample   string
	count    int
	order    int
	services []string
}

type patternCounter struct {
	keyLength int
	byKey     map[string]*patternAggregate
	ordered   []*patternAggregate
}

func newPatternCounter(keyLength int) *patternCounter {
	return &patternCounter{keyLength: keyLength, byKey: make(map[string]*patternAggregate)}
}

func (c *patternCounter) add(entry models.LogEntry) {
	key := patterns.Normalize(entry.Message, c.keyLength)
	agg, ok := c.byKey[key]
	if !ok {
		agg = &patternAggregate{key: key, sample: entry.Message, order: len(c.ordered)}
		c.byKey[key] = agg
		c.ordered = append(c.ordered, agg)
	}
	agg.count++
	if entry.ServiceID != "" && !containsString(agg.services, entry.ServiceID) {
		agg.services = append(agg.services, entry.ServiceID)
	}
}

// ranked returns aggregates by descending count; ties keep first-seen order.
func (c *patternCounter) ranked() []*patternAggregate {
	out := append([]*patternAggregate(nil), c.ordered...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].count > out[j].count
	})
	return out
}

// GenerateLocalSummary summarises entries without any external call. The
// output depends only on the input, so repeated calls agree.
func (e *Engine) GenerateLocalSummary(entries []models.LogEntry) models.AssistantSummary {
	if len(entries) == 0 {
		return models.AssistantSummary{Summary: EmptySummary, Insights: []models.Insight{}}
	}

	errorCount, warnCount := CountLevels(entries)

	result := make([]models.Insight, 0, e.limits.MaxInsights)
	if errorCount > 0 {
		result = append(result, e.errorInsights(entries)...)
	}
	patternInsights, patternKeys := e.patternInsights(entries)
	result = append(result, patternInsights...)
	if len(result) > e.limits.MaxInsights {
		result = result[:e.limits.MaxInsights]
	}

	return models.AssistantSummary{
		Summary:    summaryText(len(entries), errorCount, warnCount),
		Insights:   result,
		ErrorCount: errorCount,
		WarnCount:  warnCount,
		Patterns:   patternKeys,
	}
}

// CountLevels returns the number of error/fatal entries and warn entries.
func CountLevels(entries []models.LogEntry) (errors, warnings int) {
	for _, entry := range entries {
		switch {
		case entry.Level.IsError():
			errors++
		case entry.Level == models.LevelWarn:
			warnings++
		}
	}
	return errors, warnings
}

// errorInsights emits one critical insight per service that logged errors,
// describing that service's most frequent error pattern.
func (e *Engine) errorInsights(entries []models.LogEntry) []models.Insight {
	services := make([]string, 0)
	byService := make(map[string]*patternCounter)
	for _, entry := range entries {
		if !entry.Level.IsError() {
			continue
		}
		counter, ok := byService[entry.ServiceID]
		if !ok {
			counter = newPatternCounter(e.limits.InsightKeyLength)
			byService[entry.ServiceID] = counter
			services = append(services, entry.ServiceID)
		}
		counter.add(entry)
	}

	out := make([]models.Insight, 0, len(services))
	for _, service := range services {
		top := byService[service].ranked()[0]
		text := top.sample
		if top.count > 1 {
			text = fmt.Sprintf("%s (%dx)", text, top.count)
		}
		insight := models.Insight{
			ID:         "error-" + serviceLabel(service),
			Text:       text,
			Severity:   models.SeverityCritical,
			Category:   models.CategoryError,
			SearchHint: patterns.FirstWords(top.sample, 3),
			Count:      top.count,
		}
		if service != "" {
			insight.Services = []string{service}
		}
		out = append(out, insight)
	}
	return out
}

// patternInsights reports the most frequent patterns across all entries.
func (e *Engine) patternInsights(entries []models.LogEntry) ([]models.Insight, []string) {
	counter := newPatternCounter(e.limits.InsightKeyLength)
	for _, entry := range entries {
		counter.add(entry)
	}

	out := make([]models.Insight, 0, e.limits.TopPatterns)
	keys := make([]string, 0, e.limits.TopPatterns)
	for _, agg := range counter.ranked() {
		if len(out) == e.limits.TopPatterns {
			break
		}
		if agg.count <= e.limits.PatternMinCount {
			break
		}
		severity := models.SeverityInfo
		if agg.count > e.limits.PatternWarningCount {
			severity = models.SeverityWarning
		}
		services := append([]string(nil), agg.services...)
		sort.Strings(services)
		out = append(out, models.Insight{
			ID:         fmt.Sprintf("pattern-%d", len(out)+1),
			Text:       fmt.Sprintf("Repeated message: %q (%dx)", patterns.Truncate(agg.sample, e.limits.PromptMessageLength), agg.count),
			Severity:   severity,
			Category:   models.CategoryPattern,
			SearchHint: patterns.FirstWords(agg.sample, 2),
			Services:   services,
			Count:      agg.count,
		})
		keys = append(keys, agg.key)
	}
	return out, keys
}

func summaryText(total, errors, warnings int) string {
	head := fmt.Sprintf("Analyzed %s.", plural(total, "entry", "entries"))
	switch {
	case errors > 0:
		return fmt.Sprintf("%s Found %s that need attention.", head, plural(errors, "error", "errors"))
	case warnings > 0:
		return fmt.Sprintf("%s Found %s.", head, plural(warnings, "warning", "warnings"))
	default:
		return head + " No errors or warnings detected."
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

func serviceLabel(service string) string {
	if service == "" {
		return "unknown"
	}
	return service
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// ErrorEntries returns the error and fatal entries of the slice.
func ErrorEntries(entries []models.LogEntry) []models.LogEntry {
	out := make([]models.LogEntry, 0)
	for _, entry := range entries {
		if entry.Level.IsError() {
			out = append(out, entry)
		}
	}
	return out
}

// DistinctErrorMessages returns the first message of each distinct error
// pattern in source order, capped at MaxErrorMessages.
func (e *Engine) DistinctErrorMessages(entries []models.LogEntry) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, entry := range entries {
		if !entry.Level.IsError() {
			continue
		}
		key := patterns.Normalize(entry.Message, e.limits.InsightKeyLength)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, entry.Message)
		if len(out) == e.limits.MaxErrorMessages {
			break
		}
	}
	return out
}
