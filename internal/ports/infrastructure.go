package ports

import (
	"context"
	"io"
	"time"

	"github.com/ahrav/go-consensus/internal/domain"
)

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations integrate with observability platforms like Prometheus.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// RankingReader loads one input ranking from a byte stream.
// name labels the resulting domain.Ranking.
type RankingReader interface {
	ReadRanking(ctx context.Context, name string, r io.Reader) (domain.Ranking, error)
}

// RankingWriter serializes one consensus ranking.
type RankingWriter interface {
	WriteRanking(ctx context.Context, w io.Writer, result domain.AggregateRanking) error
}

// Metric and operation names reported through MetricsCollector. Labels
// carry "method" and, for counters, "status" ("success" or "error").
const (
	MetricAggregations    = "aggregations_total"
	MetricPowerIterations = "power_iterations"
	MetricElements        = "elements"
	MetricRankings        = "rankings"

	OperationAggregate   = "aggregate"
	OperationUnitExecute = "unit_execute"
	OperationRunPlan     = "run_plan"
)
