package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "launchwatch"

// promMetrics holds the Prometheus series mirrored from the Collector.
type promMetrics struct {
	registry *prometheus.Registry

	// Scanner metrics
	ScanCycles     prometheus.Counter
	ScanFailures   prometheus.Counter
	CandidatesSeen prometheus.Counter
	Rejections     *prometheus.CounterVec
	Admissions     *prometheus.CounterVec

	// Tracker metrics
	TrackCycles    prometheus.Counter
	FetchFailures  prometheus.Counter
	Signals        *prometheus.CounterVec
	NotifyFailures *prometheus.CounterVec

	// State metrics
	ActivePositions prometheus.Gauge
	GatewayUp       prometheus.Gauge
	EventBuffer     prometheus.Gauge

	// Latency metrics
	CycleDuration *prometheus.HistogramVec
}

// newPromMetrics registers every series on a fresh registry so that several
// collectors (one per test) never collide.
func newPromMetrics() *promMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &promMetrics{
		registry: reg,

		ScanCycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "cycles_total",
			Help:      "Total number of scan cycles run",
		}),
		ScanFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "fetch_failures_total",
			Help:      "Total number of scan cycles skipped because the provider failed",
		}),
		CandidatesSeen: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "candidates_seen_total",
			Help:      "Total number of candidates returned by the provider",
		}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "rejections_total",
			Help:      "Total number of candidates rejected by the eligibility filter, by reason",
		}, []string{"reason"}),
		Admissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "admissions_total",
			Help:      "Total number of admissions, split into live and test",
		}, []string{"kind"}),

		TrackCycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "cycles_total",
			Help:      "Total number of track cycles run",
		}),
		FetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "fetch_failures_total",
			Help:      "Total number of per-position provider fetch failures",
		}),
		Signals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "signals_total",
			Help:      "Total number of tracker signals by type",
		}, []string{"signal"}),
		NotifyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "failures_total",
			Help:      "Total number of alerts that could not be delivered, by alert kind",
		}, []string{"kind"}),

		ActivePositions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_positions",
			Help:      "Current number of positions being tracked",
		}),
		GatewayUp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "gateway_up",
			Help:      "1 when the chat gateway session is connected",
		}),
		EventBuffer: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_buffer_used",
			Help:      "Events waiting in the journal channel",
		}),

		CycleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of scan and track cycles",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"loop"}),
	}
}

// Handler returns an HTTP handler exposing the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.prom.registry, promhttp.HandlerOpts{})
}
