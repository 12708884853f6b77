package patterns

import (
	"fmt"
	"sort"

	"github.com/miradorstack/mirador-insights/internal/models"
)

const groupNameLength = 80

// Grouper clusters entries whose messages normalise to the same key.
type Grouper struct {
	keyLength int
	maxGroups int
}

// NewGrouper constructs a Grouper using the grouping limits.
func NewGrouper(limits models.Limits) *Grouper {
	limits = limits.WithDefaults()
	return &Grouper{keyLength: limits.GroupKeyLength, maxGroups: limits.MaxGroups}
}

type groupAggregate struct {
	pattern string
	sample  string
	order   int
	logIDs  []string
}

// Group returns the repeated-pattern groups of entries: only patterns seen
// more than once, largest first, at most maxGroups. Ties keep first-seen order.
func (g *Grouper) Group(entries []models.LogEntry) []models.LogGroup {
	if len(entries) == 0 {
		return []models.LogGroup{}
	}

	byPattern := make(map[string]*groupAggregate)
	for _, entry := range entries {
		key := Normalize(entry.Message, g.keyLength)
		agg, ok := byPattern[key]
		if !ok {
			agg = &groupAggregate{pattern: key, sample: entry.Message, order: len(byPattern)}
			byPattern[key] = agg
		}
		agg.logIDs = append(agg.logIDs, entry.ID)
	}

	repeated := make([]*groupAggregate, 0, len(byPattern))
	for _, agg := range byPattern {
		if len(agg.logIDs) > 1 {
			repeated = append(repeated, agg)
		}
	}
	sort.Slice(repeated, func(i, j int) bool {
		if len(repeated[i].logIDs) != len(repeated[j].logIDs) {
			return len(repeated[i].logIDs) > len(repeated[j].logIDs)
		}
		return repeated[i].order < repeated[j].order
	})
	if len(repeated) > g.maxGroups {
		repeated = repeated[:g.maxGroups]
	}

	groups := make([]models.LogGroup, 0, len(repeated))
	for i, agg := range repeated {
		groups = append(groups, models.LogGroup{
			ID:      fmt.Sprintf("group-%d", i+1),
			Name:    Truncate(agg.sample, groupNameLength),
			Pattern: agg.pattern,
			Count:   len(agg.logIDs),
			LogIDs:  agg.logIDs,
		})
	}
	return groups
}
