package application

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-consensus/infrastructure/units"
	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

// Engine is the entry point for aggregating rankings. It runs single
// methods, several methods side by side, or whole YAML plans.
//
// An Engine holds no per-run state and is safe for concurrent use.
type Engine struct {
	logger      zerolog.Logger
	metrics     ports.MetricsCollector
	solver      units.SolverOptions
	parallelism int
	registry    *DefaultUnitRegistry
	loader      *PlanLoader
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics sets the metrics collector. Nil disables metrics.
func WithMetrics(metrics ports.MetricsCollector) Option {
	return func(e *Engine) { e.metrics = metrics }
}

// WithSolverOptions sets the power-iteration options used by Markov
// methods run through Aggregate and AggregateAll.
func WithSolverOptions(opts units.SolverOptions) Option {
	return func(e *Engine) { e.solver = opts }
}

// WithParallelism bounds concurrent work: matrix rows, methods in
// AggregateAll and units in parallel plan stages. Values <= 0 use
// GOMAXPROCS.
func WithParallelism(n int) Option {
	return func(e *Engine) { e.parallelism = n }
}

// NewEngine creates an Engine with the built-in unit types registered.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:   zerolog.Nop(),
		solver:   units.DefaultSolverOptions(),
		registry: NewDefaultUnitRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}

	adapterOpts := []AdapterOption{WithAdapterLogger(e.logger)}
	if e.metrics != nil {
		adapterOpts = append(adapterOpts, WithAdapterMetrics(e.metrics))
	}
	loader, err := NewPlanLoader(e.registry,
		WithAdapterOptions(adapterOpts...),
		WithLayerConcurrency(e.parallelism),
	)
	if err != nil {
		return nil, err
	}
	e.loader = loader
	return e, nil
}

// Registry returns the unit registry plans are built from, so callers can
// register additional unit types.
func (e *Engine) Registry() *DefaultUnitRegistry { return e.registry }

// LoadPlan loads and compiles a plan file.
func (e *Engine) LoadPlan(ctx context.Context, path string) (*Plan, error) {
	return e.loader.LoadFromFile(ctx, path)
}

// LoadPlanFromReader loads and compiles a plan from r.
func (e *Engine) LoadPlanFromReader(ctx context.Context, r io.Reader) (*Plan, error) {
	return e.loader.LoadFromReader(ctx, r)
}

// Aggregate combines rankings with a single method. Failures are returned
// as *domain.AggregationError naming the method and stage.
func (e *Engine) Aggregate(ctx context.Context, rankings []domain.Ranking, method domain.Method) (domain.AggregateRanking, error) {
	coll, err := domain.NewCollection(rankings)
	if err != nil {
		e.record(method, 0, time.Duration(0), err)
		return domain.AggregateRanking{}, domain.NewAggregationError(method.Kind, "collect", err)
	}
	return e.aggregate(ctx, coll, method)
}

// AggregateAll runs every method over the same rankings concurrently and
// returns the results keyed by method kind. Each kind may appear once.
// The first failure cancels the remaining methods and is returned.
func (e *Engine) AggregateAll(
	ctx context.Context,
	rankings []domain.Ranking,
	methods ...domain.Method,
) (map[domain.MethodKind]domain.AggregateRanking, error) {
	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: no methods requested", domain.ErrInvalidConfiguration)
	}
	seen := make(map[domain.MethodKind]struct{}, len(methods))
	for _, m := range methods {
		if _, dup := seen[m.Kind]; dup {
			return nil, fmt.Errorf("%w: method %s requested twice", domain.ErrInvalidConfiguration, m.Kind)
		}
		seen[m.Kind] = struct{}{}
	}

	coll, err := domain.NewCollection(rankings)
	if err != nil {
		return nil, domain.NewAggregationError(methods[0].Kind, "collect", err)
	}

	results := make([]domain.AggregateRanking, len(methods))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit())
	for i, m := range methods {
		g.Go(func() error {
			r, err := e.aggregate(gctx, coll, m)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[domain.MethodKind]domain.AggregateRanking, len(methods))
	for i, m := range methods {
		out[m.Kind] = results[i]
	}
	return out, nil
}

func (e *Engine) aggregate(ctx context.Context, coll *domain.Collection, method domain.Method) (domain.AggregateRanking, error) {
	start := time.Now()
	log := e.logger.With().Str("method", method.String()).Logger()
	log.Debug().Int("rankings", coll.NumRankings()).Int("elements", coll.Size()).Msg("aggregation started")

	var (
		result     domain.AggregateRanking
		iterations int
		err        error
	)
	switch {
	case method.Kind.IsBorda():
		result, err = units.AggregateBorda(ctx, coll, method)
	case method.Kind.IsMarkov():
		var dist domain.StationaryDistribution
		result, dist, err = units.AggregateMarkov(ctx, coll, method, units.MarkovOptions{
			Solver:      e.solver,
			Parallelism: e.parallelism,
		})
		iterations = dist.Iterations
		if err == nil {
			log.Debug().Int("iterations", dist.Iterations).Float64("delta", dist.Delta).Msg("stationary distribution converged")
		}
	default:
		err = domain.NewAggregationError(method.Kind, "configure",
			fmt.Errorf("%w: %q", domain.ErrUnknownMethod, method.Kind))
	}

	elapsed := time.Since(start)
	e.record(method, coll.Size(), elapsed, err)
	if iterations > 0 && e.metrics != nil {
		e.metrics.RecordHistogram(ports.MetricPowerIterations, float64(iterations),
			map[string]string{"method": string(method.Kind)})
	}
	if err != nil {
		log.Debug().Err(err).Dur("elapsed", elapsed).Msg("aggregation failed")
		return domain.AggregateRanking{}, err
	}
	log.Debug().Dur("elapsed", elapsed).Msg("aggregation finished")
	return result, nil
}

func (e *Engine) record(method domain.Method, elements int, elapsed time.Duration, err error) {
	if e.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	labels := map[string]string{"method": string(method.Kind), "status": status}
	e.metrics.RecordCounter(ports.MetricAggregations, 1, labels)
	if err == nil {
		e.metrics.RecordLatency(ports.OperationAggregate, elapsed, labels)
		e.metrics.RecordGauge(ports.MetricElements, float64(elements), labels)
	}
}

func (e *Engine) limit() int {
	if e.parallelism > 0 {
		return e.parallelism
	}
	return runtime.GOMAXPROCS(0)
}

// PlanResult holds the outcome of one plan execution.
type PlanResult struct {
	PlanID      string
	ExecutionID string
	// Consensus maps result keys (unit IDs) to their rankings.
	Consensus map[string]domain.AggregateRanking
	// Distributions holds the stationary distribution of every Markov unit.
	Distributions map[string]domain.StationaryDistribution
	// Order lists the keys of Consensus: the plan's aggregation units in
	// declaration order, then any other keys sorted.
	Order []string
}

// RunPlan executes plan over rankings.
func (e *Engine) RunPlan(ctx context.Context, plan *Plan, rankings []domain.Ranking) (*PlanResult, error) {
	if plan == nil {
		return nil, fmt.Errorf("%w: nil plan", domain.ErrInvalidConfiguration)
	}
	if len(rankings) == 0 {
		return nil, domain.ErrNoRankings
	}

	execID := uuid.NewString()
	log := e.logger.With().Str("plan", plan.ID()).Str("execution_id", execID).Logger()
	log.Debug().Int("rankings", len(rankings)).Int("stages", len(plan.Stages())).Msg("plan started")

	state := domain.NewState().WithExecutionContext(domain.ExecutionContext{
		PlanID:      plan.ID(),
		ExecutionID: execID,
	})
	state = domain.With(state, domain.KeyRankings, rankings)

	start := time.Now()
	final, err := plan.Execute(ctx, state)
	elapsed := time.Since(start)

	if e.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		labels := map[string]string{"method": "plan", "status": status}
		e.metrics.RecordCounter(ports.OperationRunPlan, 1, labels)
		e.metrics.RecordLatency(ports.OperationRunPlan, elapsed, labels)
		e.metrics.RecordGauge(ports.MetricRankings, float64(len(rankings)), labels)
	}
	if err != nil {
		log.Debug().Err(err).Dur("elapsed", elapsed).Msg("plan failed")
		return nil, fmt.Errorf("plan %s: %w", plan.ID(), err)
	}

	consensus, _ := domain.Get(final, domain.KeyConsensus)
	dists, _ := domain.Get(final, domain.KeyDistributions)
	if consensus == nil {
		consensus = map[string]domain.AggregateRanking{}
	}
	if dists == nil {
		dists = map[string]domain.StationaryDistribution{}
	}

	if e.metrics != nil {
		for id, d := range dists {
			e.metrics.RecordHistogram(ports.MetricPowerIterations, float64(d.Iterations),
				map[string]string{"method": id})
		}
	}

	log.Debug().Int("results", len(consensus)).Dur("elapsed", elapsed).Msg("plan finished")
	return &PlanResult{
		PlanID:        plan.ID(),
		ExecutionID:   execID,
		Consensus:     consensus,
		Distributions: dists,
		Order:         resultOrder(plan.ResultIDs(), consensus),
	}, nil
}

func resultOrder(declared []string, consensus map[string]domain.AggregateRanking) []string {
	order := make([]string, 0, len(consensus))
	seen := make(map[string]struct{}, len(consensus))
	for _, id := range declared {
		if _, ok := consensus[id]; ok {
			order = append(order, id)
			seen[id] = struct{}{}
		}
	}
	var rest []string
	for id := range consensus {
		if _, ok := seen[id]; !ok {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}
