package api

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc/metadata"

	"github.com/miradorstack/mirador-insights/internal/models"
	"github.com/miradorstack/mirador-insights/internal/stream"
	"github.com/miradorstack/mirador-insights/internal/utils"
)

// FromQueryRequest validates req and maps it onto a storage query. A
// non-positive limit, or one above maxLimit, is replaced by maxLimit.
func FromQueryRequest(req LogQueryRequest, maxLimit int) (models.LogQuery, error) {
	orgID := strings.TrimSpace(req.OrgID)
	if orgID == "" {
		return models.LogQuery{}, fmt.Errorf("orgId is required")
	}
	start, err := utils.ParseRFC3339(req.Start)
	if err != nil {
		return models.LogQuery{}, fmt.Errorf("start: %w", err)
	}
	end, err := utils.ParseRFC3339(req.End)
	if err != nil {
		return models.LogQuery{}, fmt.Errorf("end: %w", err)
	}
	if end.Before(start) {
		return models.LogQuery{}, fmt.Errorf("end must not be before start")
	}

	query := models.LogQuery{
		OrgID:  orgID,
		Start:  start,
		End:    end,
		Search: strings.TrimSpace(req.Search),
		Limit:  req.Limit,
	}
	for _, id := range req.StreamIDs {
		if id = strings.TrimSpace(id); id != "" {
			query.StreamIDs = append(query.StreamIDs, id)
		}
	}
	if req.Level != "" {
		level, ok := models.ParseLevel(req.Level)
		if !ok {
			return models.LogQuery{}, fmt.Errorf("unknown level %q", req.Level)
		}
		query.Level = level
	}
	if maxLimit > 0 && (query.Limit <= 0 || query.Limit > maxLimit) {
		query.Limit = maxLimit
	}
	return query, nil
}

// BroaderQuery keeps the organisation and window of q and drops every other
// filter.
func BroaderQuery(q models.LogQuery, limit int) models.LogQuery {
	return models.LogQuery{OrgID: q.OrgID, Start: q.Start, End: q.End, Limit: limit}
}

// FromTailRequest validates a tail request and returns its organisation and
// subscriber filters.
func FromTailRequest(req *TailRequest) (string, stream.Filters, error) {
	if req == nil {
		return "", stream.Filters{}, fmt.Errorf("request is nil")
	}
	orgID := strings.TrimSpace(req.OrgID)
	if orgID == "" {
		return "", stream.Filters{}, fmt.Errorf("orgId is required")
	}
	filters, err := stream.ParseFilters(req.StreamIDs, req.MinLevel)
	if err != nil {
		return "", stream.Filters{}, err
	}
	return orgID, filters, nil
}

// ToTailFrame converts a broadcaster frame for the wire.
func ToTailFrame(f stream.Frame) *TailFrame {
	return &TailFrame{Event: f.Event, Data: f.Data, Comment: f.Comment}
}

// BearerToken extracts the caller's credential from the authorization
// metadata. It returns "" when none was sent.
func BearerToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return ""
	}
	token := strings.TrimSpace(values[0])
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}
