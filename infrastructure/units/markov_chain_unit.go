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
	_ ports.Unit        = (*MarkovChainUnit)(nil)
	_ domain.Aggregator = (*MarkovChainUnit)(nil)
)

// MarkovChainUnit aggregates rankings through a pairwise-dominance Markov
// chain. It builds the transition matrix for its rule, damps it once toward
// the uniform matrix and solves the damped matrix for its stationary
// distribution. The aggregate score of element i is 1 − πᵢ.
//
// Concurrency: the unit is stateless and safe for concurrent execution.
// Matrix rows are built in parallel, bounded by Parallelism.
type MarkovChainUnit struct {
	name   string
	config MarkovChainConfig
	tracer trace.Tracer
}

// MarkovChainConfig controls the rule, damping and solver.
type MarkovChainConfig struct {
	// Rule is "mc1", "mc2" or "mc3".
	Rule string `yaml:"rule" json:"rule" validate:"required,oneof=mc1 mc2 mc3"`

	// Damping is the teleport weight a in [0, 1). 0 leaves the matrix as
	// built, which may not converge for reducible chains.
	Damping float64 `yaml:"damping" json:"damping" validate:"gte=0,lt=1"`

	// Solver configures power iteration.
	Solver SolverOptions `yaml:"solver" json:"solver"`

	// Parallelism bounds concurrent row construction; 0 uses GOMAXPROCS.
	Parallelism int `yaml:"parallelism" json:"parallelism" validate:"gte=0"`

	// PrimaryRankings restricts aggregation to the first k input rankings.
	PrimaryRankings int `yaml:"primary_rankings" json:"primary_rankings" validate:"gte=0"`
}

// Method returns the domain method the configuration describes.
func (c MarkovChainConfig) Method() domain.Method {
	return domain.MarkovChain(domain.MethodKind(c.Rule), c.Damping)
}

// DefaultMarkovChainConfig returns mc1 with the default damping and solver.
func DefaultMarkovChainConfig() MarkovChainConfig {
	return MarkovChainConfig{
		Rule:    string(domain.MethodMC1),
		Damping: domain.DefaultDamping,
		Solver:  DefaultSolverOptions(),
	}
}

// MarkovChainConfigFor maps a Markov domain.Method to a unit configuration
// with default solver settings.
func MarkovChainConfigFor(method domain.Method) (MarkovChainConfig, error) {
	if !method.Kind.IsMarkov() {
		return MarkovChainConfig{}, fmt.Errorf("%w: %s is not a Markov-chain method", domain.ErrUnknownMethod, method.Kind)
	}
	cfg := DefaultMarkovChainConfig()
	cfg.Rule = string(method.Kind)
	cfg.Damping = method.Damping
	return cfg, nil
}

// NewMarkovChainUnit creates a MarkovChainUnit with validated configuration.
func NewMarkovChainUnit(name string, config MarkovChainConfig) (*MarkovChainUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	u := &MarkovChainUnit{name: name, config: config, tracer: otel.Tracer("markov-chain-unit")}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// Name returns the unique identifier for this unit instance.
func (mu *MarkovChainUnit) Name() string { return mu.name }

// Method returns the Markov method the unit applies.
func (mu *MarkovChainUnit) Method() domain.Method { return mu.config.Method() }

// Execute aggregates domain.KeyRankings, stores the consensus under the
// unit's name and records the stationary distribution in
// domain.KeyDistributions.
func (mu *MarkovChainUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	coll, err := rankingsFromState(state, mu.config.PrimaryRankings)
	if err != nil {
		return state, fmt.Errorf("markov chain unit %s: %w", mu.name, err)
	}
	result, dist, err := mu.aggregate(ctx, coll)
	if err != nil {
		return state, err
	}

	dists, _ := domain.Get(state, domain.KeyDistributions)
	next := make(map[string]domain.StationaryDistribution, len(dists)+1)
	for k, v := range dists {
		next[k] = v
	}
	next[mu.name] = dist
	return domain.With(state.WithConsensus(mu.name, result), domain.KeyDistributions, next), nil
}

// Aggregate implements domain.Aggregator.
func (mu *MarkovChainUnit) Aggregate(ctx context.Context, rankings []domain.Ranking) (domain.AggregateRanking, error) {
	coll, err := collect(rankings, mu.config.PrimaryRankings)
	if err != nil {
		return domain.AggregateRanking{}, domain.NewAggregationError(mu.config.Method().Kind, "collect", err)
	}
	result, _, err := mu.aggregate(ctx, coll)
	return result, err
}

func (mu *MarkovChainUnit) aggregate(ctx context.Context, coll *domain.Collection) (domain.AggregateRanking, domain.StationaryDistribution, error) {
	method := mu.config.Method()
	ctx, span := mu.tracer.Start(ctx, "MarkovChainUnit.Aggregate",
		trace.WithAttributes(
			attribute.String("unit.type", "markov_chain"),
			attribute.String("unit.id", mu.name),
			attribute.String("method", method.String()),
			attribute.Int("rankings", coll.NumRankings()),
			attribute.Int("elements", coll.Size()),
		),
	)
	defer span.End()

	result, dist, err := AggregateMarkov(ctx, coll, method, MarkovOptions{
		Solver:      mu.config.Solver,
		Parallelism: mu.config.Parallelism,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.AggregateRanking{}, domain.StationaryDistribution{}, err
	}
	span.SetAttributes(
		attribute.Int("solver.iterations", dist.Iterations),
		attribute.Float64("solver.delta", dist.Delta),
	)
	return result, dist, nil
}

// MarkovOptions carries the knobs of AggregateMarkov that are not part of
// the method itself.
type MarkovOptions struct {
	Solver      SolverOptions
	Parallelism int
}

// AggregateMarkov runs build → damp → solve → rank for a Markov method.
// An empty registry yields an empty ranking. Failures come back as
// *domain.AggregationError naming the failed stage.
func AggregateMarkov(
	ctx context.Context,
	coll *domain.Collection,
	method domain.Method,
	opts MarkovOptions,
) (domain.AggregateRanking, domain.StationaryDistribution, error) {
	fail := func(stage string, err error) (domain.AggregateRanking, domain.StationaryDistribution, error) {
		return domain.AggregateRanking{}, domain.StationaryDistribution{}, domain.NewAggregationError(method.Kind, stage, err)
	}

	if err := method.Validate(); err != nil {
		return fail("configure", err)
	}
	if !method.Kind.IsMarkov() {
		return fail("configure", fmt.Errorf("%w: %s is not a Markov-chain method", domain.ErrUnknownMethod, method.Kind))
	}
	if coll.Size() == 0 {
		return domain.AggregateRanking{Method: method.String(), Entries: []domain.ScoredElement{}}, domain.StationaryDistribution{}, nil
	}

	matrix, err := BuildTransitionMatrix(ctx, coll, method.Kind, BuildOptions{Parallelism: opts.Parallelism})
	if err != nil {
		return fail("build", err)
	}
	damped, err := matrix.Damp(method.Damping)
	if err != nil {
		return fail("damp", err)
	}
	dist, err := SolveStationary(ctx, damped, opts.Solver)
	if err != nil {
		return fail("solve", err)
	}
	result, err := domain.RankByScore(method.String(), coll.IDs(), MarkovScores(dist))
	if err != nil {
		return fail("rank", err)
	}
	return result, dist, nil
}

// Validate checks the configuration.
func (mu *MarkovChainUnit) Validate() error {
	if err := validate.Struct(mu.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// UnmarshalParameters decodes YAML parameters over the defaults and
// replaces the unit's configuration.
//
// Example YAML:
//
//	rule: mc3
//	damping: 0.05
//	solver:
//	  tolerance: 1e-12
//	  max_iterations: 5000
func (mu *MarkovChainUnit) UnmarshalParameters(params yaml.Node) error {
	config := DefaultMarkovChainConfig()
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	mu.config = config
	return nil
}

// NewMarkovChainFromConfig creates a MarkovChainUnit from a plan parameter
// map, starting from DefaultMarkovChainConfig.
func NewMarkovChainFromConfig(id string, config map[string]any) (ports.Unit, error) {
	cfg := DefaultMarkovChainConfig()
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	return NewMarkovChainUnit(id, cfg)
}
