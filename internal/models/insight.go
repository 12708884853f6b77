package models

// Severity ranks an insight.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

// Category classifies an insight.
type Category string

const (
	CategoryError       Category = "error"
	CategoryPerformance Category = "performance"
	CategoryPattern     Category = "pattern"
	CategoryAnomaly     Category = "anomaly"
	CategoryHealth      Category = "health"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryError, CategoryPerformance, CategoryPattern, CategoryAnomaly, CategoryHealth:
		return true
	}
	return false
}

// Insight is a single actionable observation over a set of log entries.
type Insight struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Severity   Severity `json:"severity"`
	Category   Category `json:"category"`
	SearchHint string   `json:"searchHint,omitempty"`
	Services   []string `json:"services,omitempty"`
	Count      int      `json:"count,omitempty"`
}

// AssistantSummary is the result of summarising a slice of entries.
type AssistantSummary struct {
	Summary    string    `json:"summary"`
	Insights   []Insight `json:"insights"`
	ErrorCount int       `json:"errorCount"`
	WarnCount  int       `json:"warnCount"`
	Patterns   []string  `json:"patterns,omitempty"`
}

// ErrorAnalysis is the result of analysing the error-level entries of a slice.
type ErrorAnalysis struct {
	Summary          string   `json:"summary"`
	ErrorMessages    []string `json:"errorMessages"`
	PossibleCauses   []string `json:"possibleCauses"`
	SuggestedActions []string `json:"suggestedActions"`
}

// InvestigationResult is the drill-down view of a single insight.
type InvestigationResult struct {
	Insight          string     `json:"insight"`
	Explanation      string     `json:"explanation"`
	RelatedLogs      []LogEntry `json:"relatedLogs"`
	SuggestedActions []string   `json:"suggestedActions,omitempty"`
}
