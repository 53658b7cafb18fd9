package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-consensus/infrastructure/units"
	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
	"github.com/ahrav/go-consensus/internal/testutils"
)

// recordingMetrics is a ports.MetricsCollector that keeps every call.
type recordingMetrics struct {
	mu         sync.Mutex
	latencies  map[string]int
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		latencies:  map[string]int{},
		counters:   map[string]float64{},
		gauges:     map[string]float64{},
		histograms: map[string][]float64{},
	}
}

func (m *recordingMetrics) RecordLatency(operation string, _ time.Duration, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies[operation+"/"+labels["method"]]++
}

func (m *recordingMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[metric+"/"+labels["method"]+"/"+labels["status"]] += value
}

func (m *recordingMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[metric+"/"+labels["method"]] = value
}

func (m *recordingMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := metric + "/" + labels["method"]
	m.histograms[key] = append(m.histograms[key], value)
}

var _ ports.MetricsCollector = (*recordingMetrics)(nil)

// dominantRankings are partial rankings that never disagree: a beats b and
// c, b beats c. Every method ranks a, b, c.
func dominantRankings(t *testing.T) []domain.Ranking {
	return []domain.Ranking{
		testutils.RankingOf(t, "r1", "a", "b", "c"),
		testutils.RankingOf(t, "r2", "a", "c"),
		testutils.RankingOf(t, "r3", "b", "c"),
	}
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(opts...)
	require.NoError(t, err)
	return e
}

func TestEngine_Aggregate(t *testing.T) {
	methods := []domain.Method{
		domain.Median(),
		domain.GeometricMean(),
		domain.PNorm(0.5),
		domain.PNorm(2),
		domain.MarkovChain(domain.MethodMC1, domain.DefaultDamping),
		domain.MarkovChain(domain.MethodMC2, domain.DefaultDamping),
		domain.MarkovChain(domain.MethodMC3, domain.DefaultDamping),
	}

	e := newTestEngine(t)
	for _, m := range methods {
		t.Run(m.String(), func(t *testing.T) {
			result, err := e.Aggregate(context.Background(), dominantRankings(t), m)
			require.NoError(t, err)
			assert.Equal(t, m.String(), result.Method)
			assert.Equal(t, []string{"a", "b", "c"}, result.IDs())
		})
	}
}

func TestEngine_Aggregate_Errors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	t.Run("no rankings", func(t *testing.T) {
		_, err := e.Aggregate(ctx, nil, domain.Median())
		var aggErr *domain.AggregationError
		require.ErrorAs(t, err, &aggErr)
		assert.Equal(t, "collect", aggErr.Stage)
		assert.ErrorIs(t, err, domain.ErrNoRankings)
	})

	t.Run("invalid damping", func(t *testing.T) {
		_, err := e.Aggregate(ctx, dominantRankings(t), domain.MarkovChain(domain.MethodMC2, 1))
		assert.ErrorIs(t, err, domain.ErrInvalidDamping)
	})

	t.Run("non-positive p", func(t *testing.T) {
		_, err := e.Aggregate(ctx, dominantRankings(t), domain.PNorm(0))
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	t.Run("unknown method", func(t *testing.T) {
		_, err := e.Aggregate(ctx, dominantRankings(t), domain.Method{Kind: "kemeny"})
		var aggErr *domain.AggregationError
		require.ErrorAs(t, err, &aggErr)
		assert.Equal(t, "configure", aggErr.Stage)
		assert.ErrorIs(t, err, domain.ErrUnknownMethod)
	})

	t.Run("geometric mean rejects negative values", func(t *testing.T) {
		r, err := domain.RankingFromSlices("neg", []string{"x", "y"}, []float64{-1, 2})
		require.NoError(t, err)
		_, err = e.Aggregate(ctx, []domain.Ranking{r}, domain.GeometricMean())
		assert.ErrorIs(t, err, domain.ErrNonPositiveInput)
	})

	t.Run("did not converge", func(t *testing.T) {
		strict := newTestEngine(t, WithSolverOptions(units.SolverOptions{Tolerance: 1e-300, MaxIterations: 1}))
		rankings := testutils.GenerateRankings(7, testutils.DefaultRankingSetConfig())
		_, err := strict.Aggregate(ctx, rankings, domain.MarkovChain(domain.MethodMC3, 0.05))
		assert.ErrorIs(t, err, domain.ErrDidNotConverge)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		rankings := testutils.GenerateRankings(3, testutils.DefaultRankingSetConfig())
		_, err := e.Aggregate(cctx, rankings, domain.MarkovChain(domain.MethodMC1, 0.05))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestEngine_Aggregate_EmptyRegistry(t *testing.T) {
	e := newTestEngine(t)
	result, err := e.Aggregate(context.Background(),
		[]domain.Ranking{{Name: "empty"}}, domain.MarkovChain(domain.MethodMC1, 0.05))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Len())
}

func TestEngine_Aggregate_Metrics(t *testing.T) {
	metrics := newRecordingMetrics()
	e := newTestEngine(t, WithMetrics(metrics))

	_, err := e.Aggregate(context.Background(), dominantRankings(t), domain.MarkovChain(domain.MethodMC3, 0.05))
	require.NoError(t, err)
	_, err = e.Aggregate(context.Background(), nil, domain.Median())
	require.Error(t, err)

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, 1.0, metrics.counters["aggregations_total/mc3/success"])
	assert.Equal(t, 1.0, metrics.counters["aggregations_total/borda_median/error"])
	assert.Equal(t, 1, metrics.latencies["aggregate/mc3"])
	assert.Equal(t, 3.0, metrics.gauges["elements/mc3"])
	require.Len(t, metrics.histograms["power_iterations/mc3"], 1)
	assert.Positive(t, metrics.histograms["power_iterations/mc3"][0])
}

func TestEngine_AggregateAll(t *testing.T) {
	e := newTestEngine(t, WithParallelism(2))
	rankings := testutils.GenerateRankings(42, testutils.RankingSetConfig{Rankings: 4, Elements: 30, Coverage: 0.7})

	methods := []domain.Method{
		domain.Median(),
		domain.PNorm(1),
		domain.MarkovChain(domain.MethodMC1, 0.05),
		domain.MarkovChain(domain.MethodMC3, 0.1),
	}
	results, err := e.AggregateAll(context.Background(), rankings, methods...)
	require.NoError(t, err)
	require.Len(t, results, len(methods))

	// Each result matches a standalone run of the same method.
	for _, m := range methods {
		single, err := e.Aggregate(context.Background(), rankings, m)
		require.NoError(t, err)
		assert.Equal(t, single, results[m.Kind], m.String())
		assert.Equal(t, 30, results[m.Kind].Len())
	}
}

func TestEngine_AggregateAll_Errors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.AggregateAll(ctx, dominantRankings(t))
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	_, err = e.AggregateAll(ctx, dominantRankings(t), domain.Median(), domain.Median())
	require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), "requested twice")

	_, err = e.AggregateAll(ctx, dominantRankings(t), domain.Median(), domain.MarkovChain(domain.MethodMC2, 2))
	assert.ErrorIs(t, err, domain.ErrInvalidDamping)

	_, err = e.AggregateAll(ctx, nil, domain.Median())
	assert.ErrorIs(t, err, domain.ErrNoRankings)
}

// scoreRankings holds higher-is-better scores; after reversed min-max
// normalization every method ranks a, b, c.
func scoreRankings(t *testing.T) []domain.Ranking {
	t.Helper()
	mk := func(name string, ids []string, values []float64) domain.Ranking {
		r, err := domain.RankingFromSlices(name, ids, values)
		require.NoError(t, err)
		return r
	}
	return []domain.Ranking{
		mk("r1", []string{"a", "b", "c"}, []float64{0.9, 0.5, 0.1}),
		mk("r2", []string{"a", "c", "b"}, []float64{0.8, 0.4, 0.2}),
		mk("r3", []string{"a", "b", "c"}, []float64{1.0, 0.6, 0.3}),
	}
}

func TestEngine_RunPlan(t *testing.T) {
	metrics := newRecordingMetrics()
	e := newTestEngine(t, WithMetrics(metrics))
	ctx := context.Background()

	plan, err := e.LoadPlanFromReader(ctx, strings.NewReader(fullPlanYAML))
	require.NoError(t, err)

	result, err := e.RunPlan(ctx, plan, scoreRankings(t))
	require.NoError(t, err)

	assert.Equal(t, "significance", result.PlanID)
	_, err = uuid.Parse(result.ExecutionID)
	assert.NoError(t, err)
	assert.Equal(t, []string{"median", "mc3"}, result.Order)

	require.Contains(t, result.Consensus, "median")
	require.Contains(t, result.Consensus, "mc3")
	assert.Equal(t, []string{"a", "b"}, result.Consensus["median"].IDs(), "top_k keeps two entries")
	assert.Equal(t, []string{"a", "b"}, result.Consensus["mc3"].IDs())

	require.Contains(t, result.Distributions, "mc3")
	dist := result.Distributions["mc3"]
	assert.Len(t, dist.Probabilities, 3)
	assert.Positive(t, dist.Iterations)

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, 1.0, metrics.counters["run_plan/plan/success"])
	assert.Equal(t, 3.0, metrics.gauges["rankings/plan"])
	assert.Equal(t, 1.0, metrics.counters["unit_execute/markov_chain/success"])
	assert.Equal(t, 1.0, metrics.counters["unit_execute/top_k/success"])
	assert.Len(t, metrics.histograms["power_iterations/mc3"], 1)
}

func TestEngine_RunPlan_ExecutionIDsDiffer(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	plan, err := e.LoadPlanFromReader(ctx, strings.NewReader(fullPlanYAML))
	require.NoError(t, err)

	first, err := e.RunPlan(ctx, plan, scoreRankings(t))
	require.NoError(t, err)
	second, err := e.RunPlan(ctx, plan, scoreRankings(t))
	require.NoError(t, err)
	assert.NotEqual(t, first.ExecutionID, second.ExecutionID)
	assert.Equal(t, first.Consensus, second.Consensus)
}

func TestEngine_RunPlan_Errors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.RunPlan(ctx, nil, scoreRankings(t))
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	plan, err := e.LoadPlanFromReader(ctx, strings.NewReader(fullPlanYAML))
	require.NoError(t, err)
	_, err = e.RunPlan(ctx, plan, nil)
	assert.ErrorIs(t, err, domain.ErrNoRankings)

	// A top_k that targets a result no unit produced fails the run.
	bad, err := e.LoadPlanFromReader(ctx, strings.NewReader(`
version: "1.0.0"
metadata: {name: bad}
units:
  - {id: med, type: borda}
  - {id: top, type: top_k, parameters: {k: 1, target: ghost}}
`))
	require.NoError(t, err)
	_, err = e.RunPlan(ctx, bad, scoreRankings(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, units.ErrConsensusNotFound))
	assert.Contains(t, err.Error(), "plan bad")
}

func TestEngine_RunPlan_CustomUnit(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Registry().RegisterUnitFactory("pin", func(id string, _ map[string]any) (ports.Unit, error) {
		return &pinUnit{name: id}, nil
	}))

	plan, err := e.LoadPlanFromReader(context.Background(), strings.NewReader(`
version: "1.0.0"
metadata: {name: custom}
units:
  - {id: med, type: borda}
  - {id: zz, type: pin}
  - {id: aa, type: pin}
stages:
  - {id: all, units: [med, zz, aa], parallel: true}
`))
	require.NoError(t, err)

	result, err := e.RunPlan(context.Background(), plan, dominantRankings(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"med", "aa", "zz"}, result.Order,
		"declared aggregation units come first, then other keys sorted")
}

// pinUnit stores a fixed one-element consensus under its own name.
type pinUnit struct{ name string }

func (u *pinUnit) Name() string    { return u.name }
func (u *pinUnit) Validate() error { return nil }

func (u *pinUnit) Execute(_ context.Context, state domain.State) (domain.State, error) {
	return state.WithConsensus(u.name, domain.AggregateRanking{
		Method:  "pin",
		Entries: []domain.ScoredElement{{ID: "a", Score: 0}},
	}), nil
}
