package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors exported on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	TicksTotal          *prometheus.CounterVec
	TickDuration        prometheus.Histogram
	FeedErrorsTotal     *prometheus.CounterVec
	FeedRecords         prometheus.Gauge
	TrackedUpgrades     prometheus.Gauge
	ChangesTotal        *prometheus.CounterVec
	AlertsFiredTotal    *prometheus.CounterVec
	NotificationsTotal  *prometheus.CounterVec
	Subscribers         prometheus.Gauge
	HeightLookupsTotal  *prometheus.CounterVec
	LastSuccessfulTick  prometheus.Gauge
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers every collector on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TicksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "upgradewatcher_ticks_total",
			Help: "Poll ticks by outcome (ok, feed_error, skipped).",
		}, []string{"outcome"}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "upgradewatcher_tick_duration_seconds",
			Help:    "Time spent processing one poll tick.",
			Buckets: prometheus.DefBuckets,
		}),
		FeedErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "upgradewatcher_feed_errors_total",
			Help: "Upgrade feed failures by kind.",
		}, []string{"kind"}),
		FeedRecords: f.NewGauge(prometheus.GaugeOpts{
			Name: "upgradewatcher_feed_records",
			Help: "Records accepted from the last feed fetch.",
		}),
		TrackedUpgrades: f.NewGauge(prometheus.GaugeOpts{
			Name: "upgradewatcher_tracked_upgrades",
			Help: "Networks currently tracked.",
		}),
		ChangesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "upgradewatcher_changes_total",
			Help: "Detected upgrade changes by kind.",
		}, []string{"kind"}),
		AlertsFiredTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "upgradewatcher_alerts_fired_total",
			Help: "Threshold alerts fired by threshold.",
		}, []string{"threshold"}),
		NotificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "upgradewatcher_notifications_total",
			Help: "Per-recipient sends by status.",
		}, []string{"status"}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "upgradewatcher_subscribers",
			Help: "Recipients with at least one subscription.",
		}),
		HeightLookupsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "upgradewatcher_height_lookups_total",
			Help: "EVM block height lookups by status.",
		}, []string{"status"}),
		LastSuccessfulTick: f.NewGauge(prometheus.GaugeOpts{
			Name: "upgradewatcher_last_successful_tick_timestamp_seconds",
			Help: "Unix time of the last tick that fetched the feed.",
		}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "upgradewatcher_http_requests_total",
			Help: "Status API requests.",
		}, []string{"route", "code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "upgradewatcher_http_request_duration_seconds",
			Help:    "Status API latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordSends adds one dispatch report to the notification counters.
func (m *Metrics) RecordSends(sent, failed int) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues("sent").Add(float64(sent))
	m.NotificationsTotal.WithLabelValues("failed").Add(float64(failed))
}
