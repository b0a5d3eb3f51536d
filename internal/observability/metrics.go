package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// collection pipeline and provider clients.
type Metrics struct {
	ProviderRequests *prometheus.CounterVec // labels: provider, operation, outcome={success,error,empty}
	RequestDuration  *prometheus.HistogramVec

	StationsCollected  prometheus.Counter
	StationFailures    prometheus.Counter
	CollectionDuration prometheus.Histogram
	CollectionRunning  prometheus.Gauge

	// Grid file downloader metrics.
	Downloads        *prometheus.CounterVec // labels: outcome={success,failure}
	DownloadDuration prometheus.Histogram
	DownloadWorkers  prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ProviderRequests,
		m.RequestDuration,
		m.StationsCollected,
		m.StationFailures,
		m.CollectionDuration,
		m.CollectionRunning,
		m.Downloads,
		m.DownloadDuration,
		m.DownloadWorkers,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coletor",
			Name:      "provider_requests_total",
			Help:      "Provider API requests by provider, operation, and outcome.",
		}, []string{"provider", "operation", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "coletor",
			Name:      "provider_request_duration_seconds",
			Help:      "Provider API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider", "operation"}),
		StationsCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coletor",
			Name:      "stations_collected_total",
			Help:      "Stations whose series were fetched and merged successfully.",
		}),
		StationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coletor",
			Name:      "station_failures_total",
			Help:      "Stations skipped during a boundary collection because their fetch failed.",
		}),
		CollectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "coletor",
			Name:      "collection_duration_seconds",
			Help:      "Duration of a complete boundary collection.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
		CollectionRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coletor",
			Name:      "collection_running",
			Help:      "1 while a boundary collection is in progress.",
		}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coletor",
			Name:      "grid_downloads_total",
			Help:      "Daily grid file downloads by outcome.",
		}, []string{"outcome"}),
		DownloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "coletor",
			Name:      "grid_download_duration_seconds",
			Help:      "Duration of one daily grid file download.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		DownloadWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coletor",
			Name:      "grid_download_workers",
			Help:      "Workers currently draining the download queue.",
		}),
	}
}
