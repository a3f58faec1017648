package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the ripper service
type Metrics struct {
	// Session metrics
	ActiveSessions     prometheus.Gauge
	SessionsStarted    prometheus.Counter
	SessionsStopped    prometheus.Counter
	SessionDuration    prometheus.Histogram
	SessionTransitions *prometheus.CounterVec
	StartRejections    *prometheus.CounterVec

	// Capture metrics
	SongsCaptured prometheus.Counter
	SongDuration  prometheus.Histogram
	SongSize      prometheus.Histogram
	SongsFiltered prometheus.Counter

	// Upload metrics
	Uploads        *prometheus.CounterVec
	UploadDuration *prometheus.HistogramVec
	UploadRetries  *prometheus.CounterVec

	// Event feed metrics
	EventSubscribers prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Session metrics
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ripper_active_sessions",
			Help: "Current number of capture sessions in the registry",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ripper_sessions_started_total",
			Help: "Total number of capture sessions started",
		}),
		SessionsStopped: factory.NewCounter(prometheus.CounterOpts{
			Name: "ripper_sessions_stopped_total",
			Help: "Total number of capture sessions stopped on request",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ripper_session_duration_seconds",
			Help:    "Lifetime of capture sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10), // 1s to ~3 days
		}),
		SessionTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ripper_session_transitions_total",
			Help: "Total number of status transitions reported by capture engines",
		}, []string{"status"}),
		StartRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ripper_start_rejections_total",
			Help: "Total number of start requests that returned false",
		}, []string{"reason"}),

		// Capture metrics
		SongsCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "ripper_songs_captured_total",
			Help: "Total number of completed songs captured",
		}),
		SongDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ripper_song_duration_seconds",
			Help:    "Wall-clock duration of captured songs",
			Buckets: prometheus.LinearBuckets(30, 30, 12), // 30s to 6 minutes
		}),
		SongSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ripper_song_size_bytes",
			Help:    "Size of captured songs in bytes",
			Buckets: prometheus.ExponentialBuckets(64*1024, 2, 10), // 64KB to ~32MB
		}),
		SongsFiltered: factory.NewCounter(prometheus.CounterOpts{
			Name: "ripper_songs_filtered_total",
			Help: "Total number of songs skipped by a stream filter",
		}),

		// Upload metrics
		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ripper_uploads_total",
			Help: "Total number of sink uploads by sink kind and outcome",
		}, []string{"kind", "outcome"}),
		UploadDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ripper_upload_duration_seconds",
			Help:    "Duration of sink uploads",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}, []string{"kind"}),
		UploadRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ripper_upload_retries_total",
			Help: "Total number of sink upload retries",
		}, []string{"kind"}),

		EventSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ripper_event_subscribers",
			Help: "Current number of connected status event websockets",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ripper_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ripper_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ripper_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// SetActiveSessions sets the current number of sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionStarted increments the sessions started counter
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
}

// RecordSessionStopped increments the sessions stopped counter and records duration
func (m *Metrics) RecordSessionStopped(durationSeconds float64) {
	m.SessionsStopped.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionTransition counts a status change reported by an engine
func (m *Metrics) RecordSessionTransition(status string) {
	m.SessionTransitions.WithLabelValues(status).Inc()
}

// RecordStartRejected counts a start request that returned false
func (m *Metrics) RecordStartRejected(reason string) {
	m.StartRejections.WithLabelValues(reason).Inc()
}

// RecordSongCaptured records a completed song
func (m *Metrics) RecordSongCaptured(durationSeconds float64, sizeBytes int) {
	m.SongsCaptured.Inc()
	m.SongDuration.Observe(durationSeconds)
	m.SongSize.Observe(float64(sizeBytes))
}

// RecordSongFiltered counts a song skipped by a stream filter
func (m *Metrics) RecordSongFiltered() {
	m.SongsFiltered.Inc()
}

// RecordUpload records one finished sink upload
func (m *Metrics) RecordUpload(kind, outcome string, durationSeconds float64) {
	m.Uploads.WithLabelValues(kind, outcome).Inc()
	m.UploadDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordUploadRetry increments the retry counter
func (m *Metrics) RecordUploadRetry(kind string) {
	m.UploadRetries.WithLabelValues(kind).Inc()
}

// SetEventSubscribers sets the number of connected event websockets
func (m *Metrics) SetEventSubscribers(count int) {
	m.EventSubscribers.Set(float64(count))
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
