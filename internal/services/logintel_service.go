package services

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/miradorstack/mirador-insights/internal/api"
	"github.com/miradorstack/mirador-insights/internal/assistant"
	"github.com/miradorstack/mirador-insights/internal/models"
	"github.com/miradorstack/mirador-insights/internal/patterns"
	"github.com/miradorstack/mirador-insights/internal/stream"
	"github.com/miradorstack/mirador-insights/internal/utils"
)

// LogStore reads entries scoped to one organisation.
type LogStore interface {
	Query(ctx context.Context, q models.LogQuery) ([]models.LogEntry, error)
}

// Options tunes the service. Zero values select defaults.
type Options struct {
	QueryLimit   int
	BroaderLimit int
	TailBuffer   int
}

func (o Options) withDefaults() Options {
	if o.QueryLimit <= 0 {
		o.QueryLimit = 1000
	}
	if o.BroaderLimit <= 0 {
		o.BroaderLimit = 500
	}
	if o.TailBuffer <= 0 {
		o.TailBuffer = stream.DefaultSinkBuffer
	}
	return o
}

// LogIntelligenceService implements the gRPC LogIntelligence service.
type LogIntelligenceService struct {
	logger      *slog.Logger
	store       LogStore
	assistant   *assistant.Orchestrator
	grouper     *patterns.Grouper
	broadcaster *stream.Broadcaster
	opts        Options
	latencies   *utils.LatencyTracker
}

// NewLogIntelligenceService constructs the service facade. store and
// broadcaster may be nil; the operations that need them then fail with
// FailedPrecondition.
func NewLogIntelligenceService(logger *slog.Logger, store LogStore, orchestrator *assistant.Orchestrator, grouper *patterns.Grouper, broadcaster *stream.Broadcaster, opts Options) *LogIntelligenceService {
	if logger == nil {
		logger = slog.Default()
	}
	if grouper == nil {
		limits := models.DefaultLimits()
		if orchestrator != nil {
			limits = orchestrator.Limits()
		}
		grouper = patterns.NewGrouper(limits)
	}
	return &LogIntelligenceService{
		logger:      logger,
		store:       store,
		assistant:   orchestrator,
		grouper:     grouper,
		broadcaster: broadcaster,
		opts:        opts.withDefaults(),
		latencies:   utils.NewLatencyTracker(1024),
	}
}

// Summarize reads the requested window and summarises it.
func (s *LogIntelligenceService) Summarize(ctx context.Context, req *api.SummarizeRequest) (*models.AssistantSummary, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.assistant == nil {
		return nil, status.Error(codes.FailedPrecondition, "assistant not configured")
	}
	entries, _, err := s.load(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	summary := s.assistant.SummarizeLogs(ctx, entries, api.BearerToken(ctx))
	s.observe(start, "summarize")
	return &summary, nil
}

// AnalyzeErrors reads the requested window and analyses its error entries.
func (s *LogIntelligenceService) AnalyzeErrors(ctx context.Context, req *api.AnalyzeErrorsRequest) (*models.ErrorAnalysis, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.assistant == nil {
		return nil, status.Error(codes.FailedPrecondition, "assistant not configured")
	}
	entries, _, err := s.load(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	analysis := s.assistant.AnalyzeErrors(ctx, entries, api.BearerToken(ctx))
	s.observe(start, "analyze_errors")
	return &analysis, nil
}

// Investigate drills into one insight using the scoped window plus the
// unfiltered entries of the same window.
func (s *LogIntelligenceService) Investigate(ctx context.Context, req *api.InvestigateRequest) (*models.InvestigationResult, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.assistant == nil {
		return nil, status.Error(codes.FailedPrecondition, "assistant not configured")
	}
	if req.Insight.ID == "" && req.Insight.Text == "" {
		return nil, status.Error(codes.InvalidArgument, "insight id or text is required")
	}
	scoped, query, err := s.load(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	broader, err := s.store.Query(ctx, api.BroaderQuery(query, s.opts.BroaderLimit))
	if err != nil {
		s.logger.Error("broader query failed", slog.String("org_id", query.OrgID), slog.Any("error", err))
		return nil, status.Error(codes.Unavailable, "log storage unavailable")
	}

	start := time.Now()
	result := s.assistant.Investigate(ctx, req.Insight, scoped, broader, api.BearerToken(ctx))
	s.observe(start, "investigate")
	return &result, nil
}

// GroupLogs clusters the requested window by normalised message.
func (s *LogIntelligenceService) GroupLogs(ctx context.Context, req *api.GroupLogsRequest) (*api.GroupLogsResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	entries, _, err := s.load(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	return &api.GroupLogsResponse{Groups: s.grouper.Group(entries), Total: len(entries)}, nil
}

// Status reports remote availability and the live subscriber count.
func (s *LogIntelligenceService) Status(ctx context.Context, _ *api.StatusRequest) (*api.StatusResponse, error) {
	return s.status(ctx), nil
}

// ResetAvailability discards the cached availability probe and probes again.
func (s *LogIntelligenceService) ResetAvailability(ctx context.Context, _ *api.ResetAvailabilityRequest) (*api.StatusResponse, error) {
	if s.assistant != nil {
		s.assistant.ResetAvailabilityCache()
	}
	return s.status(ctx), nil
}

// Tail registers the caller as a live subscriber until it disconnects.
func (s *LogIntelligenceService) Tail(req *api.TailRequest, srv api.TailStream) error {
	if s.broadcaster == nil {
		return status.Error(codes.FailedPrecondition, "live tail not configured")
	}
	orgID, filters, err := api.FromTailRequest(req)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	sink := stream.NewQueueSink(s.opts.TailBuffer, func(f stream.Frame) error {
		return srv.Send(api.ToTailFrame(f))
	})
	id := s.broadcaster.Register(sink, orgID, filters)
	defer s.broadcaster.Unregister(id)

	_ = sink.Send(stream.ConnectedFrame(id, s.broadcaster.Count()))
	if err := sink.Serve(srv.Context()); err != nil {
		s.logger.Debug("tail closed", slog.String("subscriber_id", id), slog.Any("error", err))
		return status.Error(codes.Unavailable, "tail write failed")
	}
	return nil
}

// LatencyP95 returns the current p95 assistant latency.
func (s *LogIntelligenceService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func (s *LogIntelligenceService) load(ctx context.Context, req api.LogQueryRequest) ([]models.LogEntry, models.LogQuery, error) {
	query, err := api.FromQueryRequest(req, s.opts.QueryLimit)
	if err != nil {
		return nil, models.LogQuery{}, status.Error(codes.InvalidArgument, err.Error())
	}
	if s.store == nil {
		return nil, query, status.Error(codes.FailedPrecondition, "log storage not configured")
	}
	entries, err := s.store.Query(ctx, query)
	if err != nil {
		s.logger.Error("log query failed", slog.String("org_id", query.OrgID), slog.Any("error", err))
		return nil, query, status.Error(codes.Unavailable, "log storage unavailable")
	}
	s.logger.Debug("log query", slog.String("org_id", query.OrgID), slog.Int("entries", len(entries)))
	return entries, query, nil
}

func (s *LogIntelligenceService) status(ctx context.Context) *api.StatusResponse {
	resp := &api.StatusResponse{LatencyP95Ms: float64(s.LatencyP95()) / float64(time.Millisecond)}
	if s.assistant != nil {
		resp.Configured = s.assistant.IsConfigured(ctx)
	}
	if s.broadcaster != nil {
		resp.Subscribers = s.broadcaster.Count()
	}
	return resp
}

func (s *LogIntelligenceService) observe(start time.Time, op string) {
	s.latencies.Observe(time.Since(start))
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("assistant latency", slog.String("operation", op), slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
}
