// internal/metrics/collector.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/FairForge/drfailover/internal/ha"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "drfailover"

// Metrics holds the Prometheus collectors for failover invocations.
// It implements ha.Recorder.
type Metrics struct {
	Invocations        *prometheus.CounterVec
	Promotions         *prometheus.CounterVec
	PollAttempts       prometheus.Histogram
	NodegroupScales    *prometheus.CounterVec
	InvocationDuration prometheus.Histogram
	Triggers           *prometheus.CounterVec
	registry           *prometheus.Registry
}

// NewMetrics creates the collectors on a private registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Failover invocations by result",
			},
			[]string{"result"},
		),
		Promotions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "promotion_total",
				Help:      "Database promotion outcomes by outcome and promotion path",
			},
			[]string{"outcome", "path"},
		),
		PollAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "promotion_poll_attempts",
				Help:      "Describe calls made while waiting for writer promotion",
				Buckets:   prometheus.LinearBuckets(0, 1, 13),
			},
		),
		NodegroupScales: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "nodegroup_scale_total",
				Help:      "Node group scale-up attempts by result",
			},
			[]string{"result"},
		),
		InvocationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_seconds",
				Help:      "Wall time of a failover invocation",
				Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 90, 120, 300},
			},
		),
		Triggers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alarm_triggers_total",
				Help:      "Alarm notifications received over HTTP by response status",
			},
			[]string{"status"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.Invocations,
		m.Promotions,
		m.PollAttempts,
		m.NodegroupScales,
		m.InvocationDuration,
		m.Triggers,
	)
	return m
}

// ObservePromotion records the database half of an invocation
func (m *Metrics) ObservePromotion(p ha.PromotionReport) {
	m.Promotions.WithLabelValues(string(p.Outcome), string(p.Path)).Inc()
	// Only outcomes that went through the writer poll carry an attempt count.
	if p.Outcome == ha.OutcomeConfirmed || p.Outcome == ha.OutcomeUnconfirmed {
		m.PollAttempts.Observe(float64(p.PollAttempts))
	}
}

// ObserveScale records a node group scale-up attempt
func (m *Metrics) ObserveScale(err error) {
	m.NodegroupScales.WithLabelValues(resultLabel(err)).Inc()
}

// ObserveInvocation records a finished invocation
func (m *Metrics) ObserveInvocation(d time.Duration, err error) {
	m.Invocations.WithLabelValues(resultLabel(err)).Inc()
	m.InvocationDuration.Observe(d.Seconds())
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveTrigger records an alarm notification and the status it was answered with
func (m *Metrics) ObserveTrigger(status int) {
	m.Triggers.WithLabelValues(strconv.Itoa(status)).Inc()
}
