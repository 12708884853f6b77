package stream

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/miradorstack/mirador-insights/internal/models"
)

// HeaderOrgID carries the caller's organisation on stream and publish requests.
const HeaderOrgID = "X-Org-ID"

const maxPublishBytes = 4 << 20

// Handler exposes the broadcaster over HTTP.
type Handler struct {
	broadcaster *Broadcaster
	bufferSize  int
	logger      *slog.Logger
	now         func() time.Time
}

// NewHandler constructs the HTTP surface for b.
func NewHandler(b *Broadcaster, bufferSize int, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{broadcaster: b, bufferSize: bufferSize, logger: logger, now: time.Now}
}

// Register mounts the stream and publish routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/logs/stream", h.Stream)
	mux.HandleFunc("POST /api/v1/logs/publish", h.Publish)
}

// ParseFilters reads streamId (repeated or comma separated) and minLevel
// from query values.
func ParseFilters(streamIDs []string, minLevel string) (Filters, error) {
	var filters Filters
	for _, raw := range streamIDs {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				filters.StreamIDs = append(filters.StreamIDs, id)
			}
		}
	}
	if minLevel != "" {
		level, ok := models.ParseLevel(minLevel)
		if !ok {
			return Filters{}, errors.New("unknown minLevel " + minLevel)
		}
		filters.MinLevel = level
	}
	return filters, nil
}

// Stream holds an SSE connection open and registers it as a subscriber.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	orgID := strings.TrimSpace(r.Header.Get(HeaderOrgID))
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "missing "+HeaderOrgID+" header")
		return
	}
	query := r.URL.Query()
	filters, err := ParseFilters(query["streamId"], query.Get("minLevel"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := NewQueueSink(h.bufferSize, SSEWriter(w, flusher.Flush))
	id := h.broadcaster.Register(sink, orgID, filters)
	defer h.broadcaster.Unregister(id)

	_ = sink.Send(ConnectedFrame(id, h.broadcaster.Count()))
	if err := sink.Serve(r.Context()); err != nil {
		h.logger.Debug("stream connection closed", "subscriber_id", id, "error", err)
	}
}

// Publish decodes a batch and broadcasts it to subscribers.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	orgID := strings.TrimSpace(r.Header.Get(HeaderOrgID))
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "missing "+HeaderOrgID+" header")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPublishBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	entries, err := DecodeBatch(body, orgID, h.now())
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrOrgMismatch) {
			status = http.StatusForbidden
		}
		writeError(w, status, err.Error())
		return
	}

	delivered := h.broadcaster.Broadcast(entries)
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(entries), "delivered": delivered})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
