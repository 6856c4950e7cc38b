package ui

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"neuropeaks/internal/session"
)

// Duration buckets, in seconds. Runs include page capture and frame
// extraction, so they go well past request latencies.
var (
	DefaultHTTPDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultRunDurationBuckets  = []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800}
)

// Metrics holds the presentation API's prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal           *prometheus.CounterVec
	RunDuration         *prometheus.HistogramVec
	PeaksTotal          *prometheus.CounterVec
	HeatmapsTotal       *prometheus.CounterVec
	RunWarningsTotal    *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers every collector on a fresh registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neuropeaks", Name: "runs_total", Help: "Pipeline runs by experiment kind and outcome",
		}, []string{"kind", "status"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "neuropeaks", Name: "run_duration_seconds", Help: "Pipeline run duration", Buckets: DefaultRunDurationBuckets,
		}, []string{"kind"}),
		PeaksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neuropeaks", Name: "peaks_total", Help: "Peaks extracted by signal",
		}, []string{"signal"}),
		HeatmapsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neuropeaks", Name: "heatmaps_total", Help: "Heatmaps rendered by experiment kind",
		}, []string{"kind"}),
		RunWarningsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neuropeaks", Name: "run_warnings_total", Help: "Recoverable problems reported by runs",
		}, []string{"kind"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neuropeaks", Name: "http_requests_total", Help: "Total HTTP requests",
		}, []string{"method", "path", "status_code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "neuropeaks", Name: "http_request_duration_seconds", Help: "HTTP request duration", Buckets: DefaultHTTPDurationBuckets,
		}, []string{"method", "path"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RunsTotal, m.RunDuration, m.PeaksTotal, m.HeatmapsTotal, m.RunWarningsTotal,
		m.HTTPRequestsTotal, m.HTTPRequestDuration,
	)
	return m
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(kind string, sum *session.Summary, err error, elapsed time.Duration) {
	status := string(session.StatusSucceeded)
	if err != nil {
		status = string(session.StatusFailed)
	}
	m.RunsTotal.WithLabelValues(kind, status).Inc()
	m.RunDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if sum == nil {
		return
	}
	for _, p := range sum.Peaks {
		m.PeaksTotal.WithLabelValues(p.Signal).Inc()
	}
	m.HeatmapsTotal.WithLabelValues(kind).Add(float64(len(sum.Heatmaps)))
	m.RunWarningsTotal.WithLabelValues(kind).Add(float64(len(sum.Warnings)))
}

// Middleware counts and times requests by route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
