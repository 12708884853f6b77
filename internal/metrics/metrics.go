package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeLocal labels assistant calls answered without a remote attempt.
	OutcomeLocal = "local"
	// OutcomeRemote labels assistant calls enhanced by the text-generation collaborator.
	OutcomeRemote = "remote"
	// OutcomeFallback labels remote attempts that failed and fell back to local output.
	OutcomeFallback = "fallback"

	// QueryCacheHit labels storage queries answered from cache.
	QueryCacheHit = "cache_hit"
	// QuerySuccess labels storage queries answered by the backend.
	QuerySuccess = "success"
	// QueryError labels failed storage queries.
	QueryError = "error"
)

var (
	assistantRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_insights",
			Name:      "assistant_requests_total",
			Help:      "Assistant operations handled, partitioned by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	assistantDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mirador_insights",
			Name:      "assistant_seconds",
			Help:      "Assistant operation latency in seconds.",
			Buckets:   []float64{0.005, 0.05, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"operation"},
	)

	storageQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_insights",
			Name:      "storage_queries_total",
			Help:      "Log storage queries, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	streamSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mirador_insights",
			Name:      "stream_subscribers",
			Help:      "Currently registered live-tail subscribers.",
		},
	)

	streamDeliveriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirador_insights",
			Name:      "stream_deliveries_total",
			Help:      "Log frames delivered to subscribers.",
		},
	)

	streamEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirador_insights",
			Name:      "stream_evictions_total",
			Help:      "Subscribers removed after a failed write.",
		},
	)

	streamDroppedFramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirador_insights",
			Name:      "stream_dropped_frames_total",
			Help:      "Frames discarded because a subscriber buffer was full.",
		},
	)

	ingestMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_insights",
			Name:      "ingest_messages_total",
			Help:      "Kafka messages consumed, partitioned by decode outcome.",
		},
		[]string{"outcome"},
	)

	ingestEntriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirador_insights",
			Name:      "ingest_entries_total",
			Help:      "Log entries broadcast from the ingest consumer.",
		},
	)

	ingestLag = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mirador_insights",
			Name:      "ingest_consumer_lag",
			Help:      "Consumer lag reported by the Kafka reader.",
		},
	)
)

// Register attaches mirador-insights collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		assistantRequestsTotal,
		assistantDurationSeconds,
		storageQueriesTotal,
		streamSubscribers,
		streamDeliveriesTotal,
		streamEvictionsTotal,
		streamDroppedFramesTotal,
		ingestMessagesTotal,
		ingestEntriesTotal,
		ingestLag,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAssistant records an assistant operation duration and outcome label.
func ObserveAssistant(operation string, duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeRemote, OutcomeFallback:
	default:
		outcome = OutcomeLocal
	}
	assistantRequestsTotal.WithLabelValues(operation, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	assistantDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveStorageQuery counts a storage query by outcome.
func ObserveStorageQuery(outcome string) {
	storageQueriesTotal.WithLabelValues(outcome).Inc()
}

// SetSubscribers publishes the current subscriber count.
func SetSubscribers(n int) {
	streamSubscribers.Set(float64(n))
}

// AddDeliveries counts delivered frames.
func AddDeliveries(n int) {
	if n > 0 {
		streamDeliveriesTotal.Add(float64(n))
	}
}

// IncEvictions counts a subscriber removed after a write failure.
func IncEvictions() {
	streamEvictionsTotal.Inc()
}

// IncDroppedFrames counts a frame discarded by a full subscriber buffer.
func IncDroppedFrames() {
	streamDroppedFramesTotal.Inc()
}

// ObserveIngestMessage counts a consumed message by decode outcome.
func ObserveIngestMessage(outcome string) {
	ingestMessagesTotal.WithLabelValues(outcome).Inc()
}

// AddIngestEntries counts entries handed to the broadcaster.
func AddIngestEntries(n int) {
	if n > 0 {
		ingestEntriesTotal.Add(float64(n))
	}
}

// SetIngestLag publishes the reader's lag.
func SetIngestLag(lag int64) {
	ingestLag.Set(float64(lag))
}
