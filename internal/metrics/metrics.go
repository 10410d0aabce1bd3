// Package metrics exposes Prometheus counters for the shortlisting pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Notification results
const (
	ResultSent   = "sent"
	ResultFailed = "failed"
)

// Collector holds the pipeline's Prometheus metrics
type Collector struct {
	applicationsReceived prometheus.Counter
	applicationsRejected *prometheus.CounterVec
	thresholdCrossings   prometheus.Counter
	shortlistRuns        *prometheus.CounterVec
	shortlistDuration    prometheus.Histogram
	notifications        *prometheus.CounterVec
	invalidTransitions   prometheus.Counter
	dispatchQueueDepth   prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewCollector creates the metrics and registers them with reg. A nil reg
// registers with a fresh private registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{
		applicationsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shortlist_applications_received_total",
			Help: "Total number of applications accepted",
		}),
		applicationsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shortlist_applications_refused_total",
			Help: "Applications refused at intake, by reason",
		}, []string{"reason"}),
		thresholdCrossings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shortlist_threshold_crossings_total",
			Help: "Jobs whose application target was reached",
		}),
		shortlistRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shortlist_runs_total",
			Help: "Shortlisting runs, by outcome",
		}, []string{"outcome"}),
		shortlistDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shortlist_run_duration_seconds",
			Help:    "Time taken by one shortlisting run",
			Buckets: prometheus.DefBuckets,
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shortlist_notifications_total",
			Help: "Candidate notifications, by kind and result",
		}, []string{"kind", "result"}),
		invalidTransitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shortlist_invalid_transitions_total",
			Help: "Status changes refused by the state machine",
		}),
		dispatchQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shortlist_dispatch_queue_depth",
			Help: "Jobs waiting for a shortlisting worker",
		}),
		gatherer: gatherer,
	}

	reg.MustRegister(
		c.applicationsReceived,
		c.applicationsRejected,
		c.thresholdCrossings,
		c.shortlistRuns,
		c.shortlistDuration,
		c.notifications,
		c.invalidTransitions,
		c.dispatchQueueDepth,
	)
	return c
}

// RecordApplication counts an accepted application
func (c *Collector) RecordApplication(crossed bool) {
	c.applicationsReceived.Inc()
	if crossed {
		c.thresholdCrossings.Inc()
	}
}

// RecordRefused counts an application turned away at intake
func (c *Collector) RecordRefused(reason string) {
	c.applicationsRejected.WithLabelValues(reason).Inc()
}

// RecordShortlistRun counts a run and observes its duration
func (c *Collector) RecordShortlistRun(outcome string, elapsed time.Duration) {
	c.shortlistRuns.WithLabelValues(outcome).Inc()
	c.shortlistDuration.Observe(elapsed.Seconds())
}

// RecordNotification counts one notification attempt
func (c *Collector) RecordNotification(kind string, err error) {
	result := ResultSent
	if err != nil {
		result = ResultFailed
	}
	c.notifications.WithLabelValues(kind, result).Inc()
}

// RecordInvalidTransition counts a refused status change
func (c *Collector) RecordInvalidTransition() {
	c.invalidTransitions.Inc()
}

// SetQueueDepth reports how many jobs are waiting for a worker
func (c *Collector) SetQueueDepth(n int) {
	c.dispatchQueueDepth.Set(float64(n))
}

// Handler serves the registered metrics in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
