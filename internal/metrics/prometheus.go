package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice order service
type Metrics struct {
	// Relay session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter

	// Audio relay metrics
	ChunksRelayed prometheus.Counter
	BytesRelayed  prometheus.Counter
	InvalidChunks prometheus.Counter

	// Transcript metrics
	TranscriptEvents *prometheus.CounterVec

	// Ingestion metrics
	IngestBatches prometheus.Counter
	IngestItems   *prometheus.CounterVec

	// Cart metrics
	CartLines prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all Prometheus metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Relay session metrics
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voiceorder_ws_sessions_active",
			Help: "Current number of active transcription relay sessions",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceorder_ws_sessions_total",
			Help: "Total number of transcription relay sessions opened",
		}),

		// Audio relay metrics
		ChunksRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceorder_audio_chunks_relayed_total",
			Help: "Total number of audio chunks relayed upstream",
		}),
		BytesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceorder_audio_bytes_relayed_total",
			Help: "Total audio payload bytes relayed upstream",
		}),
		InvalidChunks: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceorder_audio_invalid_chunks_total",
			Help: "Total number of audio chunks rejected for bad size",
		}),

		// Transcript metrics
		TranscriptEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceorder_transcript_events_total",
			Help: "Total number of transcript events by type",
		}, []string{"type"}),

		// Ingestion metrics
		IngestBatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceorder_ingest_batches_total",
			Help: "Total number of order payloads ingested",
		}),
		IngestItems: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceorder_ingest_items_total",
			Help: "Total number of ingested items by outcome",
		}, []string{"outcome"}),

		// Cart metrics
		CartLines: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voiceorder_cart_lines",
			Help: "Current number of cart lines",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceorder_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voiceorder_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordSessionStarted increments the session counters
func (m *Metrics) RecordSessionStarted() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionClosed decrements the active session gauge
func (m *Metrics) RecordSessionClosed() {
	m.SessionsActive.Dec()
}

// RecordChunkRelayed records one relayed audio chunk
func (m *Metrics) RecordChunkRelayed(sizeBytes int) {
	m.ChunksRelayed.Inc()
	m.BytesRelayed.Add(float64(sizeBytes))
}

// RecordInvalidChunk increments the rejected chunk counter
func (m *Metrics) RecordInvalidChunk() {
	m.InvalidChunks.Inc()
}

// RecordTranscriptEvent records a transcript event by type
func (m *Metrics) RecordTranscriptEvent(eventType string) {
	m.TranscriptEvents.WithLabelValues(eventType).Inc()
}

// RecordIngestBatch records one ingested payload and its item outcomes
func (m *Metrics) RecordIngestBatch(added, merged, skipped int) {
	m.IngestBatches.Inc()
	m.IngestItems.WithLabelValues("added").Add(float64(added))
	m.IngestItems.WithLabelValues("merged").Add(float64(merged))
	m.IngestItems.WithLabelValues("skipped").Add(float64(skipped))
}

// SetCartLines sets the current cart line gauge
func (m *Metrics) SetCartLines(count int) {
	m.CartLines.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
