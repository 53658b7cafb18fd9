package units

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

var _ ports.Unit = (*NormalizeUnit)(nil)

// NormalizeUnit rescales every input ranking to [0, 1] with min-max
// normalization so values from differently scaled sources become
// comparable. With Reverse set each value v becomes 1 − v, turning
// "larger raw score is better" sources into the engine's smaller-is-better
// convention. A ranking whose values are all equal maps to 0.
type NormalizeUnit struct {
	name   string
	config NormalizeConfig
	tracer trace.Tracer
}

// NormalizeConfig controls normalization.
type NormalizeConfig struct {
	// Reverse flips normalized values so the largest raw value ranks first.
	Reverse bool `yaml:"reverse" json:"reverse"`
}

// NewNormalizeUnit creates a NormalizeUnit.
func NewNormalizeUnit(name string, config NormalizeConfig) (*NormalizeUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	return &NormalizeUnit{name: name, config: config, tracer: otel.Tracer("normalize-unit")}, nil
}

// Name returns the unique identifier for this unit instance.
func (nu *NormalizeUnit) Name() string { return nu.name }

// Execute replaces domain.KeyRankings with the normalized rankings.
// Consensus results already in state are left alone.
func (nu *NormalizeUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := nu.tracer.Start(ctx, "NormalizeUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "normalize"),
			attribute.String("unit.id", nu.name),
			attribute.Bool("config.reverse", nu.config.Reverse),
		),
	)
	defer span.End()

	rankings, ok := domain.Get(state, domain.KeyRankings)
	if !ok {
		span.RecordError(ErrRankingsNotFound)
		return state, fmt.Errorf("normalize unit %s: %w", nu.name, ErrRankingsNotFound)
	}
	out := make([]domain.Ranking, len(rankings))
	for i, r := range rankings {
		out[i] = Normalize(r, nu.config.Reverse)
	}
	return domain.With(state, domain.KeyRankings, out), nil
}

// Normalize returns a min-max normalized copy of r, optionally reversed.
func Normalize(r domain.Ranking, reverse bool) domain.Ranking {
	if len(r.Entries) == 0 {
		return r.WithValues(func(v float64) float64 { return v })
	}
	lo, hi := r.Entries[0].Value, r.Entries[0].Value
	for _, e := range r.Entries[1:] {
		lo = min(lo, e.Value)
		hi = max(hi, e.Value)
	}
	span := hi - lo
	return r.WithValues(func(v float64) float64 {
		if span == 0 {
			return 0
		}
		n := (v - lo) / span
		if reverse {
			return 1 - n
		}
		return n
	})
}

// Validate always succeeds; the configuration has no invalid states.
func (nu *NormalizeUnit) Validate() error { return nil }

// NewNormalizeFromConfig creates a NormalizeUnit from a plan parameter map.
func NewNormalizeFromConfig(id string, config map[string]any) (ports.Unit, error) {
	var cfg NormalizeConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	return NewNormalizeUnit(id, cfg)
}
