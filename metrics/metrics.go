// Package metrics defines the Prometheus collectors exported by archive
// loading, scanning and the HTTP server.
//
// All label values are bounded; paths and archive names never become
// labels. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Load paths reported by ObserveLoad.
const (
	PathWorker   = "worker"
	PathFallback = "fallback"
	PathCache    = "cache"
)

// Metrics holds the collectors registered by New.
type Metrics struct {
	loads          *prometheus.CounterVec
	loadDuration   prometheus.Histogram
	workerFailures *prometheus.CounterVec
	mounted        prometheus.Gauge
	scanDuration   *prometheus.HistogramVec
	scanSkipped    *prometheus.CounterVec
	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	wsActive       prometheus.Gauge
}

// New registers the collectors with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		loads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pak_archive_loads_total",
			Help: "Archives loaded, by the path that produced the directory",
		}, []string{"path"}), // Bounded: "worker", "fallback", "cache"

		loadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pak_archive_load_duration_seconds",
			Help:    "Time spent turning archive bytes into a parsed archive",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),

		workerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pak_worker_failures_total",
			Help: "Background parse attempts that fell back to a synchronous parse",
		}, []string{"reason"}), // Bounded: "disabled", "closed", "error", "timeout", "canceled"

		mounted: f.NewGauge(prometheus.GaugeOpts{
			Name: "pak_mounted_archives",
			Help: "Archives currently mounted",
		}),

		scanDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pak_scan_duration_seconds",
			Help:    "Time spent in a full filesystem scan",
			Buckets: prometheus.DefBuckets,
		}, []string{"scanner"}), // Bounded: "texture", "sound", "entity"

		scanSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pak_scan_items_skipped_total",
			Help: "Files skipped during a scan because they could not be read or parsed",
		}, []string{"scanner"}),

		requestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pak_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "endpoint", "status"}),

		requestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pak_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}), // endpoint is the route pattern, not the URL

		wsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "pak_websocket_connections_active",
			Help: "Currently active WebSocket connections",
		}),
	}
}

// ObserveLoad records one archive load.
func (m *Metrics) ObserveLoad(path string, d time.Duration) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(path).Inc()
	m.loadDuration.Observe(d.Seconds())
}

// WorkerFailure records a background parse that fell back.
func (m *Metrics) WorkerFailure(reason string) {
	if m == nil {
		return
	}
	m.workerFailures.WithLabelValues(reason).Inc()
}

// SetMounted records the number of mounted archives.
func (m *Metrics) SetMounted(n int) {
	if m == nil {
		return
	}
	m.mounted.Set(float64(n))
}

// ObserveScan records one completed scan and how many items it skipped.
func (m *Metrics) ObserveScan(scanner string, d time.Duration, skipped int) {
	if m == nil {
		return
	}
	m.scanDuration.WithLabelValues(scanner).Observe(d.Seconds())
	if skipped > 0 {
		m.scanSkipped.WithLabelValues(scanner).Add(float64(skipped))
	}
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, endpoint, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestTotal.WithLabelValues(method, endpoint, status).Inc()
	m.requestLatency.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

// WebsocketOpened increments the active WebSocket gauge.
func (m *Metrics) WebsocketOpened() {
	if m == nil {
		return
	}
	m.wsActive.Inc()
}

// WebsocketClosed decrements the active WebSocket gauge.
func (m *Metrics) WebsocketClosed() {
	if m == nil {
		return
	}
	m.wsActive.Dec()
}
