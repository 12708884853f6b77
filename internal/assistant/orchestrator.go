// Package assistant combines the local insight engine and investigator with
// an optional text-generation collaborator. Every operation computes its
// local result first; the remote path can only enrich it.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-insights/internal/insights"
	"github.com/miradorstack/mirador-insights/internal/investigate"
	"github.com/miradorstack/mirador-insights/internal/metrics"
	"github.com/miradorstack/mirador-insights/internal/models"
)

// Operation names used in logs and metrics.
const (
	OpSummarize     = "summarize"
	OpAnalyzeErrors = "analyze_errors"
	OpInvestigate   = "investigate"
)

// NoErrorsSummary is the canned analysis text when the slice has no errors.
const NoErrorsSummary = "No errors found in the current time range."

// TextGenerator is the text-generation collaborator.
type TextGenerator interface {
	Execute(ctx context.Context, token string, req models.TextGenRequest) (models.TextGenResult, error)
	Status(ctx context.Context) (models.TextGenStatus, error)
}

// Settings are the process-wide model parameters, read once at startup.
type Settings struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	// Verbose emits a debug record for every stage without changing results.
	Verbose bool
}

// Orchestrator is constructed once per process and shared by handlers.
type Orchestrator struct {
	client       TextGenerator
	settings     Settings
	limits       models.Limits
	engine       *insights.Engine
	investigator *investigate.Investigator
	rules        *ActionRules
	logger       *slog.Logger

	mu        sync.Mutex
	available *bool
}

// NewOrchestrator wires the local engines with the collaborator. client may
// be nil, in which case every operation is local-only.
func NewOrchestrator(client TextGenerator, settings Settings, limits models.Limits, rules *ActionRules, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if rules == nil {
		rules = DefaultActionRules(logger)
	}
	limits = limits.WithDefaults()
	return &Orchestrator{
		client:       client,
		settings:     settings,
		limits:       limits,
		engine:       insights.NewEngine(limits),
		investigator: investigate.NewInvestigator(limits),
		rules:        rules,
		logger:       logger,
	}
}

// Limits exposes the effective thresholds.
func (o *Orchestrator) Limits() models.Limits {
	return o.limits
}

// statusProbeTimeout bounds the availability probe, which runs detached from
// the caller's cancellation.
const statusProbeTimeout = 5 * time.Second

// IsConfigured lazily probes the collaborator and caches the answer until
// ResetAvailabilityCache is called. A failed probe caches false. A caller
// that is already gone gets false and leaves the cache untouched.
func (o *Orchestrator) IsConfigured(ctx context.Context) bool {
	if o.client == nil {
		return false
	}
	o.mu.Lock()
	if o.available != nil {
		v := *o.available
		o.mu.Unlock()
		return v
	}
	o.mu.Unlock()

	if ctx.Err() != nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusProbeTimeout)
	defer cancel()
	status, err := o.client.Status(probeCtx)
	configured := err == nil && status.Configured
	if err != nil {
		o.logger.Warn("text generation status probe failed", "error", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.available == nil {
		o.available = &configured
	}
	return *o.available
}

// ResetAvailabilityCache forgets the cached probe result.
func (o *Orchestrator) ResetAvailabilityCache() {
	o.mu.Lock()
	o.available = nil
	o.mu.Unlock()
}

// SummarizeLogs returns the local summary, enriched by the collaborator when
// token is set and the call succeeds.
func (o *Orchestrator) SummarizeLogs(ctx context.Context, entries []models.LogEntry, token string) models.AssistantSummary {
	start := time.Now()
	local := o.engine.GenerateLocalSummary(entries)
	o.trace(OpSummarize, "local summary computed", "entries", len(entries), "insights", len(local.Insights))

	if !o.remoteEligible(ctx, token, len(entries)) {
		metrics.ObserveAssistant(OpSummarize, time.Since(start), metrics.OutcomeLocal)
		return local
	}

	rendered := RenderEntries(entries, o.limits.SummaryPromptSize, o.limits.PromptMessageLength)
	decoded, correlationID, err := o.complete(ctx, OpSummarize, token, summaryPrompt(rendered, local))
	if err != nil {
		metrics.ObserveAssistant(OpSummarize, time.Since(start), metrics.OutcomeFallback)
		return local
	}

	remote := decodeSummary(decoded.Value)
	if remote.Summary == "" && len(remote.Insights) == 0 {
		o.logger.Warn("text generation reply missing fields", "operation", OpSummarize, "correlation_id", correlationID)
		metrics.ObserveAssistant(OpSummarize, time.Since(start), metrics.OutcomeFallback)
		return local
	}

	merged := local
	merged.Insights = append([]models.Insight(nil), local.Insights...)
	if len(remote.Insights) > 0 {
		merged.Insights = remote.Insights
	}
	if remote.Summary != "" {
		merged.Summary = remote.Summary
	}
	if len(merged.Insights) > o.limits.MaxInsights {
		merged.Insights = merged.Insights[:o.limits.MaxInsights]
	}
	o.trace(OpSummarize, "remote summary merged", "correlation_id", correlationID, "insights", len(merged.Insights))
	metrics.ObserveAssistant(OpSummarize, time.Since(start), metrics.OutcomeRemote)
	return merged
}

// AnalyzeErrors explains the error-level entries of the slice. The
// deduplicated error messages are always computed locally.
func (o *Orchestrator) AnalyzeErrors(ctx context.Context, entries []models.LogEntry, token string) models.ErrorAnalysis {
	start := time.Now()
	errs := insights.ErrorEntries(entries)
	if len(errs) == 0 {
		metrics.ObserveAssistant(OpAnalyzeErrors, time.Since(start), metrics.OutcomeLocal)
		return NoErrorsAnalysis()
	}

	messages := o.engine.DistinctErrorMessages(errs)
	causes, actions := o.rules.Recommend(Subject{Category: models.CategoryError, Entries: errs})
	local := models.ErrorAnalysis{
		Summary:          errorSummary(errs, len(messages)),
		ErrorMessages:    messages,
		PossibleCauses:   causes,
		SuggestedActions: actions,
	}
	o.trace(OpAnalyzeErrors, "local analysis computed", "errors", len(errs), "messages", len(messages))

	if !o.remoteEligible(ctx, token, len(errs)) {
		metrics.ObserveAssistant(OpAnalyzeErrors, time.Since(start), metrics.OutcomeLocal)
		return local
	}

	rendered := RenderEntries(errs, o.limits.ErrorPromptSize, o.limits.PromptMessageLength)
	decoded, correlationID, err := o.complete(ctx, OpAnalyzeErrors, token, errorPrompt(rendered, messages))
	if err != nil {
		metrics.ObserveAssistant(OpAnalyzeErrors, time.Since(start), metrics.OutcomeFallback)
		return local
	}

	remote := decodeAnalysis(decoded.Value)
	merged := local
	if remote.Summary != "" {
		merged.Summary = remote.Summary
	}
	if len(remote.PossibleCauses) > 0 {
		merged.PossibleCauses = remote.PossibleCauses
	}
	if len(remote.SuggestedActions) > 0 {
		merged.SuggestedActions = remote.SuggestedActions
	}
	o.trace(OpAnalyzeErrors, "remote analysis merged", "correlation_id", correlationID)
	metrics.ObserveAssistant(OpAnalyzeErrors, time.Since(start), metrics.OutcomeRemote)
	return merged
}

// Investigate drills into one insight. Without a token the explanation is
// the canned local one.
func (o *Orchestrator) Investigate(ctx context.Context, insight models.Insight, scoped, broader []models.LogEntry, token string) models.InvestigationResult {
	start := time.Now()
	local := o.investigator.Investigate(insight, scoped, broader)
	_, actions := o.rules.Recommend(Subject{Category: insight.Category, Services: insight.Services, Entries: local.RelatedLogs})
	if len(actions) > 0 {
		local.SuggestedActions = actions
	}
	o.trace(OpInvestigate, "related entries selected", "related", len(local.RelatedLogs))

	if !o.remoteEligible(ctx, token, 1) {
		metrics.ObserveAssistant(OpInvestigate, time.Since(start), metrics.OutcomeLocal)
		return local
	}

	rendered := RenderEntries(local.RelatedLogs, o.limits.MaxRelatedLogs, o.limits.PromptMessageLength)
	decoded, correlationID, err := o.complete(ctx, OpInvestigate, token, investigationPrompt(insight, rendered))
	if err != nil {
		metrics.ObserveAssistant(OpInvestigate, time.Since(start), metrics.OutcomeFallback)
		return local
	}

	remote := decodeInvestigation(decoded.Value)
	merged := local
	if remote.Explanation != "" {
		merged.Explanation = remote.Explanation
	}
	if len(remote.SuggestedActions) > 0 {
		merged.SuggestedActions = remote.SuggestedActions
	}
	o.trace(OpInvestigate, "remote investigation merged", "correlation_id", correlationID)
	metrics.ObserveAssistant(OpInvestigate, time.Since(start), metrics.OutcomeRemote)
	return merged
}

// NoErrorsAnalysis is the canned result for a slice without errors.
func NoErrorsAnalysis() models.ErrorAnalysis {
	return models.ErrorAnalysis{
		Summary:          NoErrorsSummary,
		ErrorMessages:    []string{},
		PossibleCauses:   []string{},
		SuggestedActions: []string{},
	}
}

func (o *Orchestrator) remoteEligible(ctx context.Context, token string, n int) bool {
	if token == "" || n == 0 || ctx.Err() != nil {
		return false
	}
	return o.IsConfigured(ctx)
}

// complete performs the single remote call of an operation and decodes the
// first JSON object of the reply. Every failure is logged with a
// correlation id and returned so the caller can fall back.
func (o *Orchestrator) complete(ctx context.Context, op, token string, messages []models.ChatMessage) (Decoded, string, error) {
	correlationID := uuid.NewString()
	req := models.TextGenRequest{
		Provider:  o.settings.Provider,
		Operation: models.OperationChatCompletions,
		Params: models.ChatParams{
			Messages:    messages,
			Model:       o.settings.Model,
			Temperature: o.settings.Temperature,
			MaxTokens:   o.settings.MaxTokens,
		},
	}
	o.trace(op, "text generation request", "correlation_id", correlationID, "messages", len(messages))

	result, err := o.client.Execute(ctx, token, req)
	if err != nil {
		o.logger.Warn("text generation call failed; using local result", "operation", op, "correlation_id", correlationID, "error", err)
		return Decoded{}, correlationID, err
	}
	o.trace(op, "text generation reply", "correlation_id", correlationID, "model", result.Model, "total_tokens", result.Usage.TotalTokens)

	decoded := DecodeObject(result.Content)
	if decoded.Status != Parsed {
		o.logger.Warn("text generation reply not decodable; using local result", "operation", op, "correlation_id", correlationID, "reason", decoded.Reason)
		return decoded, correlationID, fmt.Errorf("decode reply: %s", decoded.Reason)
	}
	return decoded, correlationID, nil
}

func (o *Orchestrator) trace(op, msg string, args ...any) {
	if !o.settings.Verbose {
		return
	}
	o.logger.Debug(msg, append([]any{"operation", op}, args...)...)
}

func errorSummary(errs []models.LogEntry, distinct int) string {
	services := make(map[string]struct{})
	for _, e := range errs {
		services[e.ServiceID] = struct{}{}
	}
	return fmt.Sprintf("Found %s across %s (%s).",
		countNoun(len(errs), "error", "errors"),
		countNoun(len(services), "service", "services"),
		countNoun(distinct, "distinct message", "distinct messages"))
}

func countNoun(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}
