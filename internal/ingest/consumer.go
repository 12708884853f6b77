// Package ingest feeds log entries from Kafka into the broadcaster.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/miradorstack/mirador-insights/internal/metrics"
	"github.com/miradorstack/mirador-insights/internal/models"
	"github.com/miradorstack/mirador-insights/internal/stream"
)

const (
	// HeaderOrgID is the Kafka header consulted when an entry carries no orgId.
	HeaderOrgID = "org-id"

	decodeOK      = "decoded"
	decodeInvalid = "invalid"

	lagInterval = 5 * time.Second
)

// Publisher receives decoded batches.
type Publisher interface {
	Broadcast(batch []models.LogEntry) int
}

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Stats() kafka.ReaderStats
	Close() error
}

// Config controls the consumer.
type Config struct {
	Brokers       []string
	Topic         string
	GroupID       string
	BatchSize     int
	FlushInterval time.Duration
}

// Consumer reads entries in batches, broadcasts them and commits offsets.
type Consumer struct {
	reader    MessageReader
	publisher Publisher
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewConsumer constructs a consumer backed by a kafka-go reader.
func NewConsumer(cfg Config, publisher Publisher, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newConsumer(reader, publisher, cfg, logger)
}

func newConsumer(reader MessageReader, publisher Publisher, cfg Config, logger *slog.Logger) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{reader: reader, publisher: publisher, cfg: cfg, logger: logger, now: time.Now}
}

// Start consumes until ctx is cancelled. Pending entries are flushed before
// returning.
func (c *Consumer) Start(ctx context.Context) error {
	defer c.reader.Close()
	c.logger.Info("starting ingest consumer", "topic", c.cfg.Topic, "group_id", c.cfg.GroupID, "batch_size", c.cfg.BatchSize)

	go c.reportLag(ctx)

	batch := make([]models.LogEntry, 0, c.cfg.BatchSize)
	pending := make([]kafka.Message, 0, c.cfg.BatchSize)
	lastFlush := c.now()

	flush := func(commitCtx context.Context) {
		if len(pending) == 0 {
			return
		}
		if len(batch) > 0 {
			c.publisher.Broadcast(batch)
			metrics.AddIngestEntries(len(batch))
		}
		if err := c.reader.CommitMessages(commitCtx, pending...); err != nil {
			c.logger.Warn("commit ingest offsets failed", "messages", len(pending), "error", err)
		}
		batch = batch[:0]
		pending = pending[:0]
		lastFlush = c.now()
	}

	for {
		deadline := c.now().Add(c.cfg.FlushInterval)
		if len(pending) > 0 {
			if c.now().Sub(lastFlush) >= c.cfg.FlushInterval {
				flush(ctx)
				continue
			}
			deadline = lastFlush.Add(c.cfg.FlushInterval)
		}

		fetchCtx, cancel := context.WithDeadline(ctx, deadline)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				flushCtx, cancelFlush := context.WithTimeout(context.Background(), 5*time.Second)
				flush(flushCtx)
				cancelFlush()
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				flush(ctx)
				continue
			}
			c.logger.Warn("fetch ingest message failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		entries, err := stream.DecodeBatch(msg.Value, headerValue(msg, HeaderOrgID), c.now())
		if err != nil {
			metrics.ObserveIngestMessage(decodeInvalid)
			c.logger.Warn("discarding undecodable ingest message", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		} else {
			metrics.ObserveIngestMessage(decodeOK)
			batch = append(batch, entries...)
		}
		pending = append(pending, msg)

		if len(batch) >= c.cfg.BatchSize {
			flush(ctx)
		}
	}
}

func (c *Consumer) reportLag(ctx context.Context) {
	ticker := time.NewTicker(lagInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetIngestLag(c.reader.Stats().Lag)
		}
	}
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
