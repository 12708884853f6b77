// Package stream fans newly ingested log entries out to live subscribers.
//
// Delivery is best-effort and at-most-once: a subscriber only sees batches
// broadcast while it is registered, and a subscriber whose sink fails a
// write is removed permanently.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-insights/internal/metrics"
	"github.com/miradorstack/mirador-insights/internal/models"
)

const (
	// EventLogs names frames that carry a JSON array of entries.
	EventLogs = "logs"
	// EventConnected names the first frame sent to a new subscriber.
	EventConnected = "connected"

	// DefaultHeartbeatInterval is the keep-alive period.
	DefaultHeartbeatInterval = 30 * time.Second

	heartbeatComment = "heartbeat"
)

// Frame is one unit written to a subscriber. A frame with a Comment and no
// Event is a keep-alive.
type Frame struct {
	Event   string
	Data    []byte
	Comment string
}

// Sink is a caller-owned destination. Send makes a single attempt and must
// not block on a slow reader; any error evicts the subscriber.
type Sink interface {
	Send(Frame) error
}

// Filters narrows what a subscriber receives. Empty fields match everything.
type Filters struct {
	StreamIDs []string
	MinLevel  models.Level
}

type subscriber struct {
	id        string
	sink      Sink
	orgID     string
	streamIDs map[string]struct{}
	minLevel  int
	hasLevel  bool
}

func (s *subscriber) matches(entry models.LogEntry) bool {
	if entry.OrgID != s.orgID {
		return false
	}
	if len(s.streamIDs) > 0 {
		if _, ok := s.streamIDs[entry.StreamID]; !ok {
			return false
		}
	}
	if s.hasLevel && entry.Level.Ordinal() < s.minLevel {
		return false
	}
	return true
}

// Broadcaster is the subscriber registry. It is safe for concurrent use.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	heartbeat   time.Duration
	logger      *slog.Logger
}

// NewBroadcaster constructs an empty registry.
func NewBroadcaster(heartbeat time.Duration, logger *slog.Logger) *Broadcaster {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]*subscriber),
		heartbeat:   heartbeat,
		logger:      logger,
	}
}

// Register adds a subscriber and returns its id.
func (b *Broadcaster) Register(sink Sink, orgID string, filters Filters) string {
	sub := &subscriber{
		id:    uuid.NewString(),
		sink:  sink,
		orgID: orgID,
	}
	if len(filters.StreamIDs) > 0 {
		sub.streamIDs = make(map[string]struct{}, len(filters.StreamIDs))
		for _, id := range filters.StreamIDs {
			sub.streamIDs[id] = struct{}{}
		}
	}
	if filters.MinLevel != "" {
		sub.hasLevel = true
		sub.minLevel = filters.MinLevel.Ordinal()
	}

	b.mu.Lock()
	b.subscribers[sub.id] = sub
	n := len(b.subscribers)
	b.mu.Unlock()

	metrics.SetSubscribers(n)
	b.logger.Debug("stream subscriber registered", "subscriber_id", sub.id, "org_id", orgID, "subscribers", n)
	return sub.id
}

// Unregister removes a subscriber. Unknown ids are ignored.
func (b *Broadcaster) Unregister(id string) {
	b.mu.Lock()
	_, ok := b.subscribers[id]
	delete(b.subscribers, id)
	n := len(b.subscribers)
	b.mu.Unlock()

	if ok {
		metrics.SetSubscribers(n)
		b.logger.Debug("stream subscriber unregistered", "subscriber_id", id, "subscribers", n)
	}
}

// Count returns the number of registered subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Broadcaster) snapshot() []*subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		out = append(out, s)
	}
	return out
}

// Broadcast writes each subscriber's matching subset of batch as one logs
// frame and returns how many subscribers received a frame. Sinks are
// written outside the registry lock; a failed sink is evicted and does not
// affect the others.
func (b *Broadcaster) Broadcast(batch []models.LogEntry) int {
	if len(batch) == 0 {
		return 0
	}
	delivered := 0
	for _, sub := range b.snapshot() {
		subset := make([]models.LogEntry, 0)
		for _, entry := range batch {
			if sub.matches(entry) {
				subset = append(subset, entry)
			}
		}
		if len(subset) == 0 {
			continue
		}
		data, err := json.Marshal(subset)
		if err != nil {
			b.logger.Error("encode stream batch", "error", err)
			continue
		}
		if err := sub.sink.Send(Frame{Event: EventLogs, Data: data}); err != nil {
			b.evict(sub, err)
			continue
		}
		delivered++
	}
	metrics.AddDeliveries(delivered)
	return delivered
}

// Heartbeat writes a keep-alive comment to every subscriber, evicting those
// whose sink has failed.
func (b *Broadcaster) Heartbeat() {
	for _, sub := range b.snapshot() {
		if err := sub.sink.Send(Frame{Comment: heartbeatComment}); err != nil {
			b.evict(sub, err)
		}
	}
}

// Run sends heartbeats on the configured interval until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Heartbeat()
		}
	}
}

func (b *Broadcaster) evict(sub *subscriber, err error) {
	b.logger.Debug("stream subscriber write failed", "subscriber_id", sub.id, "error", err)
	b.mu.Lock()
	_, ok := b.subscribers[sub.id]
	delete(b.subscribers, sub.id)
	n := len(b.subscribers)
	b.mu.Unlock()
	if ok {
		metrics.IncEvictions()
		metrics.SetSubscribers(n)
	}
}

// ConnectedFrame reports the subscriber's id and the current subscriber count.
func ConnectedFrame(id string, subscribers int) Frame {
	data, _ := json.Marshal(struct {
		SubscriberID string `json:"subscriberId"`
		Subscribers  int    `json:"subscribers"`
	}{id, subscribers})
	return Frame{Event: EventConnected, Data: data}
}
