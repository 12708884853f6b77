// Package investigate selects the log entries related to a single insight.
package investigate

import (
	"fmt"
	"strings"

	"github.com/miradorstack/mirador-insights/internal/models"
)

// Strategy names the selection rule that produced a related set.
type Strategy string

const (
	StrategySearchHint Strategy = "search_hint"
	StrategyServices   Strategy = "services"
	StrategyErrors     Strategy = "category_errors"
	StrategyScoped     Strategy = "scoped_sample"
)

// Selection is the outcome of related-entry selection.
type Selection struct {
	Strategy Strategy
	Entries  []models.LogEntry
}

// Investigator performs related-entry selection with fixed caps.
type Investigator struct {
	limits models.Limits
}

// NewInvestigator constructs an Investigator; zero limits fall back to defaults.
func NewInvestigator(limits models.Limits) *Investigator {
	return &Investigator{limits: limits.WithDefaults()}
}

// Related applies the first applicable strategy:
//
//  1. a search hint matches on message substring or service membership
//  2. a services list matches on service membership
//  3. error insights take error-level entries of the broader window; any
//     other category takes the head of the scoped window
//
// Strategies 1 and 2 search the broader window, or the scoped window when no
// broader entries were supplied. The result keeps source order and is capped
// at MaxRelatedLogs.
func (i *Investigator) Related(insight models.Insight, scoped, broader []models.LogEntry) Selection {
	pool := broader
	if len(pool) == 0 {
		pool = scoped
	}

	services := make(map[string]struct{}, len(insight.Services))
	for _, s := range insight.Services {
		services[s] = struct{}{}
	}
	inServices := func(e models.LogEntry) bool {
		_, ok := services[e.ServiceID]
		return ok
	}

	hint := strings.ToLower(strings.TrimSpace(insight.SearchHint))
	switch {
	case hint != "":
		return Selection{Strategy: StrategySearchHint, Entries: i.filter(pool, func(e models.LogEntry) bool {
			return strings.Contains(strings.ToLower(e.Message), hint) || inServices(e)
		})}
	case len(services) > 0:
		return Selection{Strategy: StrategyServices, Entries: i.filter(pool, inServices)}
	case insight.Category == models.CategoryError:
		return Selection{Strategy: StrategyErrors, Entries: i.filter(broader, func(e models.LogEntry) bool {
			return e.Level.IsError()
		})}
	default:
		head := scoped
		if len(head) > i.limits.ScopedFallbackSize {
			head = head[:i.limits.ScopedFallbackSize]
		}
		return Selection{Strategy: StrategyScoped, Entries: i.filter(head, func(models.LogEntry) bool { return true })}
	}
}

func (i *Investigator) filter(entries []models.LogEntry, keep func(models.LogEntry) bool) []models.LogEntry {
	out := make([]models.LogEntry, 0)
	for _, e := range entries {
		if len(out) == i.limits.MaxRelatedLogs {
			break
		}
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Investigate returns the local investigation result: the related entries
// and an explanation that cites how many were found.
func (i *Investigator) Investigate(insight models.Insight, scoped, broader []models.LogEntry) models.InvestigationResult {
	selection := i.Related(insight, scoped, broader)
	return models.InvestigationResult{
		Insight:     insight.Text,
		Explanation: Explanation(len(selection.Entries)),
		RelatedLogs: selection.Entries,
	}
}

// Explanation is the canned explanation used when no remote narrative is
// available.
func Explanation(count int) string {
	switch count {
	case 0:
		return "No related log entries were found for this insight."
	case 1:
		return "Found 1 related log entry. Review it for context around this insight."
	default:
		return fmt.Sprintf("Found %d related log entries. Review them for context around this insight.", count)
	}
}
