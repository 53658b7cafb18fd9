package units

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

var (
	_ ports.Unit        = (*BordaUnit)(nil)
	_ domain.Aggregator = (*BordaUnit)(nil)
)

// Borda statistic names accepted in plan parameters.
const (
	StatisticMedian        = "median"
	StatisticGeometricMean = "geometric_mean"
	StatisticPNorm         = "pnorm"
)

// BordaUnit aggregates rankings with a positional statistic applied to each
// element's value vector independently. Elements are scored in registry
// order and ranked ascending, so ties keep first-seen order.
//
// Every element must appear in at least one of the aggregated rankings;
// with primary_rankings set, elements only present in later rankings are
// outside the registry and therefore never scored.
//
// Concurrency: the unit is stateless and safe for concurrent execution.
type BordaUnit struct {
	name   string
	config BordaConfig
	tracer trace.Tracer
}

// BordaConfig selects the positional statistic.
type BordaConfig struct {
	// Statistic is one of "median", "geometric_mean" or "pnorm".
	Statistic string `yaml:"statistic" json:"statistic" validate:"required,oneof=median geometric_mean pnorm"`

	// P is the p-norm exponent. Only read when Statistic is "pnorm".
	P float64 `yaml:"p" json:"p" validate:"gte=0"`

	// PrimaryRankings restricts aggregation to the first k input rankings.
	// 0 aggregates all of them.
	PrimaryRankings int `yaml:"primary_rankings" json:"primary_rankings" validate:"gte=0"`
}

// Method returns the domain method the configuration describes.
func (c BordaConfig) Method() domain.Method {
	switch c.Statistic {
	case StatisticGeometricMean:
		return domain.GeometricMean()
	case StatisticPNorm:
		return domain.PNorm(c.P)
	default:
		return domain.Median()
	}
}

// BordaConfigFor maps a Borda domain.Method to a unit configuration.
func BordaConfigFor(method domain.Method) (BordaConfig, error) {
	switch method.Kind {
	case domain.MethodBordaMedian:
		return BordaConfig{Statistic: StatisticMedian}, nil
	case domain.MethodBordaGeometricMean:
		return BordaConfig{Statistic: StatisticGeometricMean}, nil
	case domain.MethodBordaPNorm:
		return BordaConfig{Statistic: StatisticPNorm, P: method.P}, nil
	default:
		return BordaConfig{}, fmt.Errorf("%w: %s is not a positional method", domain.ErrUnknownMethod, method.Kind)
	}
}

// DefaultBordaConfig returns the median statistic over all rankings.
func DefaultBordaConfig() BordaConfig {
	return BordaConfig{Statistic: StatisticMedian, P: 1}
}

// NewBordaUnit creates a BordaUnit with validated configuration.
// Returns ErrEmptyUnitName if name is empty, or a configuration validation
// error if config fails its constraints.
func NewBordaUnit(name string, config BordaConfig) (*BordaUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	u := &BordaUnit{name: name, config: config, tracer: otel.Tracer("borda-unit")}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// Name returns the unique identifier for this unit instance.
func (bu *BordaUnit) Name() string { return bu.name }

// Method returns the positional method the unit applies.
func (bu *BordaUnit) Method() domain.Method { return bu.config.Method() }

// Execute aggregates domain.KeyRankings and stores the result in the
// consensus map under the unit's name.
func (bu *BordaUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	coll, err := rankingsFromState(state, bu.config.PrimaryRankings)
	if err != nil {
		return state, fmt.Errorf("borda unit %s: %w", bu.name, err)
	}
	result, err := bu.aggregate(ctx, coll)
	if err != nil {
		return state, err
	}
	return state.WithConsensus(bu.name, result), nil
}

// Aggregate implements domain.Aggregator.
func (bu *BordaUnit) Aggregate(ctx context.Context, rankings []domain.Ranking) (domain.AggregateRanking, error) {
	coll, err := collect(rankings, bu.config.PrimaryRankings)
	if err != nil {
		return domain.AggregateRanking{}, domain.NewAggregationError(bu.config.Method().Kind, "collect", err)
	}
	return bu.aggregate(ctx, coll)
}

func (bu *BordaUnit) aggregate(ctx context.Context, coll *domain.Collection) (domain.AggregateRanking, error) {
	method := bu.config.Method()
	_, span := bu.tracer.Start(ctx, "BordaUnit.Aggregate",
		trace.WithAttributes(
			attribute.String("unit.type", "borda"),
			attribute.String("unit.id", bu.name),
			attribute.String("method", method.String()),
			attribute.Int("rankings", coll.NumRankings()),
			attribute.Int("elements", coll.Size()),
		),
	)
	defer span.End()

	result, err := AggregateBorda(ctx, coll, method)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.AggregateRanking{}, err
	}
	return result, nil
}

// AggregateBorda scores every element of coll with the method's statistic
// and ranks them. Failures come back as *domain.AggregationError.
func AggregateBorda(ctx context.Context, coll *domain.Collection, method domain.Method) (domain.AggregateRanking, error) {
	stat, err := StatisticFor(method)
	if err != nil {
		return domain.AggregateRanking{}, domain.NewAggregationError(method.Kind, "configure", err)
	}

	ids := coll.IDs()
	scores := make([]float64, len(ids))
	for i, id := range ids {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return domain.AggregateRanking{}, domain.NewAggregationError(method.Kind, "aggregate", err)
			}
		}
		values, err := coll.Values(id)
		if err != nil {
			return domain.AggregateRanking{}, domain.NewAggregationError(method.Kind, "aggregate", err)
		}
		s, err := stat(values)
		if err != nil {
			return domain.AggregateRanking{}, domain.NewAggregationError(method.Kind, "aggregate",
				&domain.ElementError{ElementID: id, Err: err})
		}
		scores[i] = s
	}

	result, err := domain.RankByScore(method.String(), ids, scores)
	if err != nil {
		return domain.AggregateRanking{}, domain.NewAggregationError(method.Kind, "rank", err)
	}
	return result, nil
}

// Validate checks the configuration, including the p-norm exponent.
func (bu *BordaUnit) Validate() error {
	if err := validate.Struct(bu.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if err := bu.config.Method().Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// UnmarshalParameters decodes YAML parameters and replaces the unit's
// configuration.
//
// Example YAML:
//
//	statistic: pnorm
//	p: 0.5
//	primary_rankings: 3
func (bu *BordaUnit) UnmarshalParameters(params yaml.Node) error {
	config := DefaultBordaConfig()
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	prev := bu.config
	bu.config = config
	if err := bu.Validate(); err != nil {
		bu.config = prev
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	return nil
}

// NewBordaFromConfig creates a BordaUnit from a plan parameter map,
// starting from DefaultBordaConfig.
func NewBordaFromConfig(id string, config map[string]any) (ports.Unit, error) {
	cfg := DefaultBordaConfig()
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	return NewBordaUnit(id, cfg)
}
