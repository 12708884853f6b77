package repo

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/zeebo/blake3"

	"github.com/miradorstack/mirador-insights/internal/cache"
	"github.com/miradorstack/mirador-insights/internal/metrics"
	"github.com/miradorstack/mirador-insights/internal/models"
	"github.com/miradorstack/mirador-insights/internal/utils"
)

// OpenSearchConfig configures the storage collaborator.
type OpenSearchConfig struct {
	Addresses          []string
	Username           string
	Password           string
	IndexPattern       string
	InsecureSkipVerify bool
	DefaultLimit       int
	Transport          http.RoundTripper
}

// OpenSearchStore reads log entries from OpenSearch. Every query is scoped
// to one organisation.
type OpenSearchStore struct {
	client   *opensearch.Client
	index    string
	limit    int
	cache    cache.Provider
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewOpenSearchStore builds the client. provider may be nil to disable caching.
func NewOpenSearchStore(cfg OpenSearchConfig, provider cache.Provider, ttl time.Duration, logger *slog.Logger) (*OpenSearchStore, error) {
	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
		}
	}
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}
	if cfg.IndexPattern == "" {
		cfg.IndexPattern = "app-logs-*"
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 1000
	}
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenSearchStore{
		client:   client,
		index:    cfg.IndexPattern,
		limit:    cfg.DefaultLimit,
		cache:    provider,
		cacheTTL: ttl,
		logger:   logger,
	}, nil
}

// Query returns entries matching q in ascending timestamp order.
func (s *OpenSearchStore) Query(ctx context.Context, q models.LogQuery) ([]models.LogEntry, error) {
	const op = "opensearch.query"
	if q.OrgID == "" {
		return nil, utils.NewAppError(op, "orgId is required", nil)
	}
	if q.Limit <= 0 || q.Limit > s.limit {
		q.Limit = s.limit
	}

	body, err := json.Marshal(BuildSearchBody(q))
	if err != nil {
		return nil, utils.NewAppError(op, "encode query", err)
	}
	key := queryCacheKey(s.index, body)
	if cached, err := s.cache.Get(ctx, key); err == nil {
		var entries []models.LogEntry
		if err := json.Unmarshal(cached, &entries); err == nil {
			metrics.ObserveStorageQuery(metrics.QueryCacheHit)
			return entries, nil
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("storage cache read failed", "error", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		metrics.ObserveStorageQuery(metrics.QueryError)
		return nil, utils.NewAppError(op, "search request failed", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		metrics.ObserveStorageQuery(metrics.QueryError)
		return nil, utils.NewAppError(op, "opensearch error", errors.New(res.String()))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string          `json:"_id"`
				Source models.LogEntry `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		metrics.ObserveStorageQuery(metrics.QueryError)
		return nil, utils.NewAppError(op, "decode search response", err)
	}

	entries := make([]models.LogEntry, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		entry := hit.Source
		if entry.ID == "" {
			entry.ID = hit.ID
		}
		entries = append(entries, entry)
	}
	metrics.ObserveStorageQuery(metrics.QuerySuccess)

	if s.cacheTTL > 0 {
		if data, err := json.Marshal(entries); err == nil {
			if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
				s.logger.Warn("storage cache write failed", "error", err)
			}
		}
	}
	return entries, nil
}

// BuildSearchBody renders q as an OpenSearch bool query.
func BuildSearchBody(q models.LogQuery) map[string]any {
	filters := []any{
		map[string]any{"term": map[string]any{"orgId": q.OrgID}},
	}
	if !q.Start.IsZero() || !q.End.IsZero() {
		rng := map[string]any{}
		if !q.Start.IsZero() {
			rng["gte"] = q.Start.UTC().Format(time.RFC3339Nano)
		}
		if !q.End.IsZero() {
			rng["lte"] = q.End.UTC().Format(time.RFC3339Nano)
		}
		filters = append(filters, map[string]any{"range": map[string]any{"timestamp": rng}})
	}
	if len(q.StreamIDs) > 0 {
		filters = append(filters, map[string]any{"terms": map[string]any{"streamId": q.StreamIDs}})
	}
	if q.Level != "" {
		levels := []string{string(q.Level)}
		if q.Level.IsError() {
			levels = []string{string(models.LevelError), string(models.LevelFatal)}
		}
		filters = append(filters, map[string]any{"terms": map[string]any{"level": levels}})
	}

	boolQuery := map[string]any{"filter": filters}
	if q.Search != "" {
		boolQuery["must"] = []any{map[string]any{"match_phrase": map[string]any{"message": q.Search}}}
	}
	return map[string]any{
		"size":  q.Limit,
		"sort":  []any{map[string]any{"timestamp": map[string]any{"order": "asc"}}},
		"query": map[string]any{"bool": boolQuery},
	}
}

func queryCacheKey(index string, body []byte) string {
	h := blake3.New()
	_, _ = h.Write([]byte(index))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(body)
	return "mirador-insights:logs:" + hex.EncodeToString(h.Sum(nil))
}
