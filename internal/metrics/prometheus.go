package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the USB audio bridge
type Metrics struct {
	// Transport / decoder metrics
	BytesReceived       prometheus.Counter
	FramesReceived      prometheus.Counter
	SyncErrors          prometheus.Counter
	ChecksumErrors      prometheus.Counter
	FramesLostInTransit prometheus.Counter
	BacklogBytes        prometheus.Gauge
	BacklogFlushes      prometheus.Counter

	// Playback metrics
	FramesPlayed          prometheus.Counter
	FramesDroppedPlayback prometheus.Counter
	QueuedLatencySeconds  prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		BytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "usbaudio_bytes_received_total",
			Help: "Total number of bytes read from the serial transport",
		}),
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "usbaudio_frames_received_total",
			Help: "Total number of frames that passed checksum verification",
		}),
		SyncErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "usbaudio_sync_errors_total",
			Help: "Total number of bytes discarded while searching for frame sync",
		}),
		ChecksumErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "usbaudio_checksum_errors_total",
			Help: "Total number of frames dropped due to checksum mismatch",
		}),
		FramesLostInTransit: promauto.NewCounter(prometheus.CounterOpts{
			Name: "usbaudio_frames_lost_transit_total",
			Help: "Total number of frames lost in transit, detected via sequence gaps",
		}),
		BacklogBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "usbaudio_backlog_bytes",
			Help: "Current number of buffered, undecoded bytes",
		}),
		BacklogFlushes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "usbaudio_backlog_flushes_total",
			Help: "Total number of backlog flushes triggered by the latency bound",
		}),

		FramesPlayed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "usbaudio_frames_played_total",
			Help: "Total number of frames accepted by the output device",
		}),
		FramesDroppedPlayback: promauto.NewCounter(prometheus.CounterOpts{
			Name: "usbaudio_frames_dropped_playback_total",
			Help: "Total number of frames dropped because the output device was saturated",
		}),
		QueuedLatencySeconds: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "usbaudio_queued_latency_seconds",
			Help: "Estimated audio latency currently queued in the output device",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "usbaudio_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "usbaudio_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "usbaudio_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// AddBytesReceived adds to the bytes received counter
func (m *Metrics) AddBytesReceived(n uint64) {
	m.BytesReceived.Add(float64(n))
}

// AddFramesReceived adds to the frames received counter
func (m *Metrics) AddFramesReceived(n uint64) {
	m.FramesReceived.Add(float64(n))
}

// AddSyncErrors adds to the sync errors counter
func (m *Metrics) AddSyncErrors(n uint64) {
	m.SyncErrors.Add(float64(n))
}

// AddChecksumErrors adds to the checksum errors counter
func (m *Metrics) AddChecksumErrors(n uint64) {
	m.ChecksumErrors.Add(float64(n))
}

// AddFramesLostInTransit adds to the transit loss counter
func (m *Metrics) AddFramesLostInTransit(n uint64) {
	m.FramesLostInTransit.Add(float64(n))
}

// AddFramesPlayed adds to the frames played counter
func (m *Metrics) AddFramesPlayed(n uint64) {
	m.FramesPlayed.Add(float64(n))
}

// AddFramesDroppedPlayback adds to the playback drop counter
func (m *Metrics) AddFramesDroppedPlayback(n uint64) {
	m.FramesDroppedPlayback.Add(float64(n))
}

// SetBacklogBytes sets the current backlog size gauge
func (m *Metrics) SetBacklogBytes(n int) {
	m.BacklogBytes.Set(float64(n))
}

// SetQueuedLatencySeconds sets the estimated output latency gauge
func (m *Metrics) SetQueuedLatencySeconds(seconds float64) {
	m.QueuedLatencySeconds.Set(seconds)
}

// RecordBacklogFlush increments the backlog flush counter
func (m *Metrics) RecordBacklogFlush() {
	m.BacklogFlushes.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
