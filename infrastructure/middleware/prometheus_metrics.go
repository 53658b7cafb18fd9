// Package middleware provides cross-cutting concerns for the aggregation engine.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-consensus/internal/ports"
)

// PrometheusMetrics implements the MetricsCollector interface using Prometheus.
// It tracks aggregation outcomes, stage latency, solver effort and input
// sizes for the engine.
type PrometheusMetrics struct {
	aggregations     *prometheus.CounterVec
	executionLatency *prometheus.HistogramVec
	powerIterations  *prometheus.HistogramVec
	elements         *prometheus.GaugeVec
	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance and registers
// its collectors with reg. A nil reg uses prometheus.DefaultRegisterer.
// Registering twice against the same registry panics, as with promauto.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		aggregations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consensus_aggregations_total",
				Help: "Total number of aggregation runs by method and outcome.",
			},
			[]string{"method", "status"},
		),
		executionLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "consensus_operation_duration_seconds",
				Help:    "Execution time of engine operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "method"},
		),
		powerIterations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "consensus_power_iterations",
				Help:    "Power iteration steps needed to reach the stationary distribution.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 15),
			},
			[]string{"method"},
		),
		elements: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "consensus_elements",
				Help: "Number of distinct elements in the most recent aggregation.",
			},
			[]string{"method"},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consensus_operations_total",
				Help: "Total number of other operations performed by the engine.",
			},
			[]string{"operation", "status"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "consensus_state",
				Help: "Current values of other engine gauges.",
			},
			[]string{"metric", "method"},
		),
	}
}

func labelOr(labels map[string]string, key, fallback string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return fallback
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	pm.executionLatency.WithLabelValues(operation, labelOr(labels, "method", "unknown")).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	status := labelOr(labels, "status", "success")
	switch metric {
	case ports.MetricAggregations:
		pm.aggregations.WithLabelValues(labelOr(labels, "method", "unknown"), status).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric, status).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	method := labelOr(labels, "method", "unknown")
	switch metric {
	case ports.MetricElements:
		pm.elements.WithLabelValues(method).Set(value)
	default:
		pm.systemGauges.WithLabelValues(metric, method).Set(value)
	}
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram. Unknown histogram names are folded into
// the latency histogram under their own operation label.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	method := labelOr(labels, "method", "unknown")
	switch metric {
	case ports.MetricPowerIterations:
		pm.powerIterations.WithLabelValues(method).Observe(value)
	default:
		pm.executionLatency.WithLabelValues(metric, method).Observe(value)
	}
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
