package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"tokenpulse/internal/ingest"
)

// IngestMetrics holds the prometheus collectors for the ingestion pipeline.
type IngestMetrics struct {
	BlocksProcessed    prometheus.Counter
	SnapshotsEmitted   prometheus.Counter
	SessionRetries     prometheus.Counter
	CacheInvalidations prometheus.Counter
	ProviderProgress   prometheus.Gauge
	LastBlock          prometheus.Gauge
}

func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	m := &IngestMetrics{
		BlocksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenpulse_blocks_processed_total",
			Help: "Blocks fully decoded, aggregated, and persisted.",
		}),
		SnapshotsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenpulse_snapshots_emitted_total",
			Help: "Market snapshots upserted into storage.",
		}),
		SessionRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenpulse_session_retries_total",
			Help: "Stream session restarts after retryable errors.",
		}),
		CacheInvalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenpulse_cache_invalidations_total",
			Help: "Metadata cache invalidations caused by undo signals.",
		}),
		ProviderProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tokenpulse_provider_processed_blocks",
			Help: "Provider-reported processed block counter.",
		}),
		LastBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tokenpulse_last_block_number",
			Help: "Number of the last block written to storage.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.BlocksProcessed,
			m.SnapshotsEmitted,
			m.SessionRetries,
			m.CacheInvalidations,
			m.ProviderProgress,
			m.LastBlock,
		)
	}
	return m
}

// Observer records supervisor events into prometheus collectors and the log.
type Observer struct {
	metrics *IngestMetrics
	logger  *zap.Logger
}

func NewObserver(m *IngestMetrics, logger *zap.Logger) *Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Observer{metrics: m, logger: logger}
}

var _ ingest.Observer = (*Observer)(nil)

func (o *Observer) SessionRetry(attempt int, backoff time.Duration, err error) {
	o.metrics.SessionRetries.Inc()
	o.logger.Warn("stream retry",
		zap.Int("attempt", attempt),
		zap.Duration("backoff", backoff),
		zap.String("error_kind", "retryable"),
		zap.Error(err),
	)
}

func (o *Observer) SessionFatal(err error) {
	o.logger.Error("stream fatal",
		zap.String("error_kind", "fatal"),
		zap.Error(err),
	)
}

func (o *Observer) BlockProcessed(blockNumber uint64, snapshots int) {
	o.metrics.BlocksProcessed.Inc()
	o.metrics.SnapshotsEmitted.Add(float64(snapshots))
	o.metrics.LastBlock.Set(float64(blockNumber))
}

func (o *Observer) Progress(processedBlocks uint64) {
	o.metrics.ProviderProgress.Set(float64(processedBlocks))
}

func (o *Observer) CacheInvalidated(lastValidBlock uint64) {
	o.metrics.CacheInvalidations.Inc()
}
