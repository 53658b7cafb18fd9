package application

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

// UnitAdapter wraps a ports.Unit to implement the ports.Executable
// interface so units can run inside pipelines and layers. It also reports
// each execution to the configured logger and metrics collector.
type UnitAdapter struct {
	// unit is the underlying unit that performs the actual work.
	unit ports.Unit
	// id is the unique identifier for this adapter within the plan.
	id string
	// unitType is the registry type the unit was built from, used as a label.
	unitType string
	logger   zerolog.Logger
	metrics  ports.MetricsCollector
}

// AdapterOption configures a UnitAdapter.
type AdapterOption func(*UnitAdapter)

// WithAdapterLogger sets the logger used for per-unit debug records.
func WithAdapterLogger(logger zerolog.Logger) AdapterOption {
	return func(ua *UnitAdapter) { ua.logger = logger }
}

// WithAdapterMetrics sets the collector that receives per-unit latency.
func WithAdapterMetrics(metrics ports.MetricsCollector) AdapterOption {
	return func(ua *UnitAdapter) { ua.metrics = metrics }
}

// WithUnitType records the unit's registry type for labels.
func WithUnitType(unitType string) AdapterOption {
	return func(ua *UnitAdapter) { ua.unitType = unitType }
}

// NewUnitAdapter creates a new adapter that wraps a ports.Unit.
func NewUnitAdapter(unit ports.Unit, id string, opts ...AdapterOption) *UnitAdapter {
	ua := &UnitAdapter{
		unit:   unit,
		id:     id,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(ua)
	}
	return ua
}

// Execute delegates to the underlying unit's Execute method and records
// its latency and outcome.
func (ua *UnitAdapter) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	start := time.Now()
	ua.logger.Debug().Str("unit", ua.id).Str("type", ua.unitType).Msg("unit started")

	next, err := ua.unit.Execute(ctx, state)
	elapsed := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		ua.logger.Debug().Err(err).Str("unit", ua.id).Dur("elapsed", elapsed).Msg("unit failed")
	} else {
		ua.logger.Debug().Str("unit", ua.id).Dur("elapsed", elapsed).Msg("unit finished")
	}

	if ua.metrics != nil {
		labels := map[string]string{"method": ua.unitType, "unit": ua.id, "status": status}
		ua.metrics.RecordLatency(ports.OperationUnitExecute, elapsed, labels)
		ua.metrics.RecordCounter(ports.OperationUnitExecute, 1, labels)
	}
	return next, err
}

// ID returns the unique string identifier for this adapter.
func (ua *UnitAdapter) ID() string { return ua.id }

// Unit returns the wrapped unit.
func (ua *UnitAdapter) Unit() ports.Unit { return ua.unit }
