// Package metrics provides Prometheus metrics for the auction service
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Bid pipeline metrics
	BidsAdmitted     *prometheus.CounterVec
	BidsResolved     *prometheus.CounterVec
	CASConflicts     prometheus.Counter
	ResolveAttempts  prometheus.Histogram
	ResolveDuration  prometheus.Histogram
	DeadLettered     *prometheus.CounterVec
	QueuePublishErrs *prometheus.CounterVec

	// Fanout metrics
	EventsPublished *prometheus.CounterVec

	// Realtime metrics
	ActiveConnections prometheus.Gauge
	FramesBroadcast   *prometheus.CounterVec
	RateLimitRejected *prometheus.CounterVec

	// Lifecycle metrics
	LifecycleTransitions *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on a private registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "auction"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		BidsAdmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bids_admitted_total",
				Help:      "Bid submissions by admission result",
			},
			[]string{"result"},
		),
		BidsResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bids_resolved_total",
				Help:      "Bid work items by terminal outcome",
			},
			[]string{"outcome"},
		),
		CASConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bid_cas_conflicts_total",
				Help:      "Conditional updates that lost the version race",
			},
		),
		ResolveAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bid_resolve_attempts",
				Help:      "CAS attempts used per resolved work item",
				Buckets:   []float64{1, 2, 3, 4, 5, 8, 13},
			},
		),
		ResolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bid_resolve_duration_seconds",
				Help:      "Time from dequeue to terminal outcome",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		DeadLettered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dead_lettered_total",
				Help:      "Work items moved to the dead-letter queue by reason",
			},
			[]string{"reason"},
		),
		QueuePublishErrs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_publish_errors_total",
				Help:      "Failed durable queue publishes",
			},
			[]string{"queue"},
		),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Domain events published by type, sink and result",
			},
			[]string{"type", "sink", "result"},
		),

		ActiveConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "realtime_connections",
				Help:      "Open realtime connections",
			},
		),
		FramesBroadcast: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "realtime_frames_total",
				Help:      "Frames delivered to realtime connections",
			},
			[]string{"event"},
		),
		RateLimitRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_rejected_total",
				Help:      "Requests rejected by admission control",
			},
			[]string{"scope"},
		),

		LifecycleTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auction_transitions_total",
				Help:      "Auction status transitions",
			},
			[]string{"to", "source"},
		),
	}

	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.BidsAdmitted,
		m.BidsResolved,
		m.CASConflicts,
		m.ResolveAttempts,
		m.ResolveDuration,
		m.DeadLettered,
		m.QueuePublishErrs,
		m.EventsPublished,
		m.ActiveConnections,
		m.FramesBroadcast,
		m.RateLimitRejected,
		m.LifecycleTransitions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request count and latency per route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := c.Request().Method
			status := strconv.Itoa(c.Response().Status)

			m.RequestsTotal.WithLabelValues(method, path, status).Inc()
			m.RequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
