package models

// Limits holds the empirical thresholds used by the insight, grouping,
// investigation and prompt code. Zero fields are replaced by defaults.
type Limits struct {
	InsightKeyLength    int `yaml:"insightKeyLength"`
	GroupKeyLength      int `yaml:"groupKeyLength"`
	PromptMessageLength int `yaml:"promptMessageLength"`
	PatternMinCount     int `yaml:"patternMinCount"`
	PatternWarningCount int `yaml:"patternWarningCount"`
	TopPatterns         int `yaml:"topPatterns"`
	MaxInsights         int `yaml:"maxInsights"`
	MaxErrorMessages    int `yaml:"maxErrorMessages"`
	MaxGroups           int `yaml:"maxGroups"`
	MaxRelatedLogs      int `yaml:"maxRelatedLogs"`
	ScopedFallbackSize  int `yaml:"scopedFallbackSize"`
	ErrorPromptSize     int `yaml:"errorPromptSize"`
	SummaryPromptSize   int `yaml:"summaryPromptSize"`
}

// DefaultLimits returns the stock thresholds.
func DefaultLimits() Limits {
	return Limits{
		InsightKeyLength:    60,
		GroupKeyLength:      100,
		PromptMessageLength: 120,
		PatternMinCount:     5,
		PatternWarningCount: 20,
		TopPatterns:         3,
		MaxInsights:         5,
		MaxErrorMessages:    10,
		MaxGroups:           20,
		MaxRelatedLogs:      15,
		ScopedFallbackSize:  20,
		ErrorPromptSize:     50,
		SummaryPromptSize:   75,
	}
}

// WithDefaults returns a copy of l with every non-positive field replaced by
// its default.
func (l Limits) WithDefaults() Limits {
	d := DefaultLimits()
	fill := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&l.InsightKeyLength, d.InsightKeyLength)
	fill(&l.GroupKeyLength, d.GroupKeyLength)
	fill(&l.PromptMessageLength, d.PromptMessageLength)
	fill(&l.PatternMinCount, d.PatternMinCount)
	fill(&l.PatternWarningCount, d.PatternWarningCount)
	fill(&l.TopPatterns, d.TopPatterns)
	fill(&l.MaxInsights, d.MaxInsights)
	fill(&l.MaxErrorMessages, d.MaxErrorMessages)
	fill(&l.MaxGroups, d.MaxGroups)
	fill(&l.MaxRelatedLogs, d.MaxRelatedLogs)
	fill(&l.ScopedFallbackSize, d.ScopedFallbackSize)
	fill(&l.ErrorPromptSize, d.ErrorPromptSize)
	fill(&l.SummaryPromptSize, d.SummaryPromptSize)
	return l
}
