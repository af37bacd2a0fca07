package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Render metrics
	RendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportd_renders_total",
			Help: "Total number of report renders",
		},
		[]string{"kind", "outcome"},
	)

	RenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reportd_render_duration_seconds",
			Help:    "Render duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"kind"},
	)

	SectionsPerRender = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reportd_sections_per_render",
			Help:    "Number of sections produced per structured render",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)

	SectionsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportd_sections_dropped_total",
			Help: "Total number of sections removed by the filtering policy",
		},
		[]string{"reason"},
	)

	// Render cache metrics
	RenderCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reportd_render_cache_hits_total",
			Help: "Total number of render cache hits",
		},
	)

	RenderCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reportd_render_cache_misses_total",
			Help: "Total number of render cache misses",
		},
	)

	RenderCacheLocalSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reportd_render_cache_local_size",
			Help: "Current number of renders in the local cache",
		},
	)

	RenderCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reportd_render_cache_evictions_total",
			Help: "Total number of renders evicted from the local cache",
		},
	)

	// Report store metrics
	ReportsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportd_reports_saved_total",
			Help: "Total number of reports persisted",
		},
		[]string{"status"},
	)

	DBWriteQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reportd_db_write_queue_depth",
			Help: "Current depth of the async database write queue",
		},
	)

	ExportsBuilt = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reportd_exports_built_total",
			Help: "Total number of export documents assembled",
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportd_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reportd_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Live render channel metrics
	WSSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reportd_ws_sessions_active",
			Help: "Number of open live render connections",
		},
	)

	WSRendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportd_ws_renders_total",
			Help: "Total number of renders served over live connections",
		},
		[]string{"outcome"},
	)
)

// RecordRenderMetrics records metrics for one completed render.
func RecordRenderMetrics(kind, outcome string, durationSeconds float64, sectionCount int) {
	RendersTotal.WithLabelValues(kind, outcome).Inc()
	RenderDuration.WithLabelValues(kind).Observe(durationSeconds)
	if outcome == "structured" {
		SectionsPerRender.Observe(float64(sectionCount))
	}
}

// RecordDroppedSections records filtering-policy removals by reason.
func RecordDroppedSections(reasons []string) {
	for _, r := range reasons {
		SectionsDropped.WithLabelValues(r).Inc()
	}
}

// RecordHTTPMetrics records metrics for an HTTP request.
func RecordHTTPMetrics(method, route, status string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}
