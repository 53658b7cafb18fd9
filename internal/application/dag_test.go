package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

// mockExecutable is a test implementation of Executable.
type mockExecutable struct {
	id          string
	executeFunc func(ctx context.Context, state domain.State) (domain.State, error)
	executed    bool
	mu          sync.Mutex
}

func (m *mockExecutable) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	m.mu.Lock()
	m.executed = true
	m.mu.Unlock()

	if m.executeFunc != nil {
		return m.executeFunc(ctx, state)
	}
	return state, nil
}

func (m *mockExecutable) ID() string { return m.id }

func (m *mockExecutable) wasExecuted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executed
}

// producing returns an executable that stores a one-entry consensus result
// under key after an optional delay.
func producing(id, key string, delay time.Duration) *mockExecutable {
	return &mockExecutable{
		id: id,
		executeFunc: func(ctx context.Context, state domain.State) (domain.State, error) {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return state, ctx.Err()
				}
			}
			return state.WithConsensus(key, domain.AggregateRanking{
				Method:  id,
				Entries: []domain.ScoredElement{{ID: key, Score: 1}},
			}), nil
		},
	}
}

var stepKey = domain.NewKey[[]string]("test.steps")

func appendStep(id string) *mockExecutable {
	return &mockExecutable{
		id: id,
		executeFunc: func(ctx context.Context, state domain.State) (domain.State, error) {
			steps, _ := domain.Get(state, stepKey)
			return domain.With(state, stepKey, append(steps, id)), nil
		},
	}
}

func TestPipeline_Execute(t *testing.T) {
	tests := []struct {
		name          string
		setupPipeline func(t *testing.T) (ports.Pipeline, []*mockExecutable)
		wantErr       string
		verify        func(t *testing.T, state domain.State, mocks []*mockExecutable)
	}{
		{
			name: "executes units in sequence",
			setupPipeline: func(t *testing.T) (ports.Pipeline, []*mockExecutable) {
				pipeline := NewPipeline("seq")
				mocks := []*mockExecutable{appendStep("a"), appendStep("b"), appendStep("c")}
				for _, m := range mocks {
					require.NoError(t, pipeline.Add(m))
				}
				return pipeline, mocks
			},
			verify: func(t *testing.T, state domain.State, mocks []*mockExecutable) {
				steps, ok := domain.Get(state, stepKey)
				require.True(t, ok)
				assert.Equal(t, []string{"a", "b", "c"}, steps)
			},
		},
		{
			name: "stops on first error",
			setupPipeline: func(t *testing.T) (ports.Pipeline, []*mockExecutable) {
				pipeline := NewPipeline("failing")
				mocks := []*mockExecutable{
					appendStep("a"),
					{id: "boom", executeFunc: func(ctx context.Context, s domain.State) (domain.State, error) {
						return s, errors.New("boom failed")
					}},
					appendStep("c"),
				}
				for _, m := range mocks {
					require.NoError(t, pipeline.Add(m))
				}
				return pipeline, mocks
			},
			wantErr: "pipeline failing: execution failed at boom: boom failed",
			verify: func(t *testing.T, state domain.State, mocks []*mockExecutable) {
				assert.True(t, mocks[0].wasExecuted())
				assert.True(t, mocks[1].wasExecuted())
				assert.False(t, mocks[2].wasExecuted(), "units after a failure must not run")
				steps, _ := domain.Get(state, stepKey)
				assert.Equal(t, []string{"a"}, steps, "state from before the failure is returned")
			},
		},
		{
			name: "empty pipeline returns input",
			setupPipeline: func(t *testing.T) (ports.Pipeline, []*mockExecutable) {
				return NewPipeline("empty"), nil
			},
			verify: func(t *testing.T, state domain.State, mocks []*mockExecutable) {
				assert.Empty(t, state.Keys())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipeline, mocks := tt.setupPipeline(t)
			state, err := pipeline.Execute(context.Background(), domain.NewState())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			tt.verify(t, state, mocks)
		})
	}
}

func TestPipeline_ContextCancellation(t *testing.T) {
	pipeline := NewPipeline("cancel")
	second := appendStep("second")
	require.NoError(t, pipeline.Add(&mockExecutable{
		id: "first",
		executeFunc: func(ctx context.Context, s domain.State) (domain.State, error) {
			return s, nil
		},
	}))
	require.NoError(t, pipeline.Add(second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pipeline.Execute(ctx, domain.NewState())
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, second.wasExecuted())
}

func TestPipeline_Add(t *testing.T) {
	pipeline := NewPipeline("p")

	require.NoError(t, pipeline.Add(appendStep("a")))
	err := pipeline.Add(appendStep("a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	err = pipeline.Add(nil)
	require.Error(t, err)

	assert.Len(t, pipeline.Executables(), 1)
	assert.Equal(t, "p", pipeline.ID())
}

func TestLayer_Execute(t *testing.T) {
	t.Run("merges results in declaration order", func(t *testing.T) {
		layer := NewLayer("l")
		// Later executables finish first.
		require.NoError(t, layer.Add(producing("slow", "mc1", 30*time.Millisecond)))
		require.NoError(t, layer.Add(producing("medium", "mc2", 10*time.Millisecond)))
		require.NoError(t, layer.Add(producing("fast", "mc3", 0)))

		state, err := layer.Execute(context.Background(), domain.NewState())
		require.NoError(t, err)

		all, ok := domain.Get(state, domain.KeyConsensus)
		require.True(t, ok)
		assert.Len(t, all, 3)
		for key, method := range map[string]string{"mc1": "slow", "mc2": "medium", "mc3": "fast"} {
			got, ok := state.Consensus(key)
			require.True(t, ok, key)
			assert.Equal(t, method, got.Method)
		}
	})

	t.Run("runs concurrently", func(t *testing.T) {
		layer := NewLayer("concurrent")
		layer.SetConcurrencyLimit(4)
		var running, peak atomic.Int32
		for i := 0; i < 4; i++ {
			key := fmt.Sprintf("r%d", i)
			require.NoError(t, layer.Add(&mockExecutable{
				id: key,
				executeFunc: func(ctx context.Context, s domain.State) (domain.State, error) {
					n := running.Add(1)
					for {
						p := peak.Load()
						if n <= p || peak.CompareAndSwap(p, n) {
							break
						}
					}
					time.Sleep(20 * time.Millisecond)
					running.Add(-1)
					return s.WithConsensus(key, domain.AggregateRanking{Method: key}), nil
				},
			}))
		}

		_, err := layer.Execute(context.Background(), domain.NewState())
		require.NoError(t, err)
		assert.Greater(t, peak.Load(), int32(1))
	})

	t.Run("respects concurrency limit", func(t *testing.T) {
		layer := NewLayer("limited")
		layer.SetConcurrencyLimit(1)
		var running, peak atomic.Int32
		for i := 0; i < 3; i++ {
			key := fmt.Sprintf("r%d", i)
			require.NoError(t, layer.Add(&mockExecutable{
				id: key,
				executeFunc: func(ctx context.Context, s domain.State) (domain.State, error) {
					n := running.Add(1)
					if n > peak.Load() {
						peak.Store(n)
					}
					time.Sleep(5 * time.Millisecond)
					running.Add(-1)
					return s.WithConsensus(key, domain.AggregateRanking{Method: key}), nil
				},
			}))
		}

		_, err := layer.Execute(context.Background(), domain.NewState())
		require.NoError(t, err)
		assert.Equal(t, int32(1), peak.Load())
	})

	t.Run("joins every failure", func(t *testing.T) {
		layer := NewLayer("errs")
		errA := errors.New("a failed")
		errB := errors.New("b failed")
		require.NoError(t, layer.Add(&mockExecutable{id: "a", executeFunc: func(ctx context.Context, s domain.State) (domain.State, error) {
			return s, errA
		}}))
		require.NoError(t, layer.Add(producing("ok", "mc1", 0)))
		require.NoError(t, layer.Add(&mockExecutable{id: "b", executeFunc: func(ctx context.Context, s domain.State) (domain.State, error) {
			return s, errB
		}}))

		base := domain.NewState()
		state, err := layer.Execute(context.Background(), base)
		require.Error(t, err)
		assert.ErrorIs(t, err, errA)
		assert.ErrorIs(t, err, errB)
		assert.Contains(t, err.Error(), "layer errs failed with 2 errors")
		_, ok := domain.Get(state, domain.KeyConsensus)
		assert.False(t, ok, "a failed layer returns its input state")
	})

	t.Run("duplicate result key is a merge conflict", func(t *testing.T) {
		layer := NewLayer("dup")
		require.NoError(t, layer.Add(producing("first", "same", 0)))
		require.NoError(t, layer.Add(producing("second", "same", 0)))

		_, err := layer.Execute(context.Background(), domain.NewState())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMergeConflict)
	})

	t.Run("empty layer returns input", func(t *testing.T) {
		base := domain.With(domain.NewState(), domain.KeyPlanID, "p")
		state, err := NewLayer("empty").Execute(context.Background(), base)
		require.NoError(t, err)
		got, _ := domain.Get(state, domain.KeyPlanID)
		assert.Equal(t, "p", got)
	})

	t.Run("custom merge strategy", func(t *testing.T) {
		layer := NewLayer("custom")
		require.NoError(t, layer.Add(producing("a", "x", 0)))
		require.NoError(t, layer.Add(producing("b", "y", 0)))

		var seen int
		layer.SetMergeStrategy(mergeFunc(func(base domain.State, states []domain.State) (domain.State, error) {
			seen = len(states)
			return states[len(states)-1], nil
		}))

		state, err := layer.Execute(context.Background(), domain.NewState())
		require.NoError(t, err)
		assert.Equal(t, 2, seen)
		got, ok := state.Consensus("y")
		require.True(t, ok)
		assert.Equal(t, "b", got.Method)
	})
}

type mergeFunc func(domain.State, []domain.State) (domain.State, error)

func (f mergeFunc) Merge(base domain.State, states []domain.State) (domain.State, error) {
	return f(base, states)
}

func TestConsensusMergeStrategy(t *testing.T) {
	base := domain.NewState().WithConsensus("existing", domain.AggregateRanking{Method: "old"})
	base = domain.With(base, domain.KeyRankings, []domain.Ranking{
		{Name: "r1", Entries: []domain.Entry{{ID: "a", Value: 1}}},
	})

	t.Run("keeps untouched base entries", func(t *testing.T) {
		s1 := base.WithConsensus("new", domain.AggregateRanking{Method: "n"})
		s2 := base

		merged, err := ConsensusMergeStrategy{}.Merge(base, []domain.State{s1, s2})
		require.NoError(t, err)

		all, _ := domain.Get(merged, domain.KeyConsensus)
		assert.Len(t, all, 2)
		assert.Equal(t, "old", all["existing"].Method)
		assert.Equal(t, "n", all["new"].Method)
	})

	t.Run("modified base entry counts as produced", func(t *testing.T) {
		s1 := base.WithConsensus("existing", domain.AggregateRanking{Method: "truncated"})
		merged, err := ConsensusMergeStrategy{}.Merge(base, []domain.State{s1, base})
		require.NoError(t, err)
		got, _ := merged.Consensus("existing")
		assert.Equal(t, "truncated", got.Method)
	})

	t.Run("distributions merge", func(t *testing.T) {
		s1 := domain.With(base, domain.KeyDistributions, map[string]domain.StationaryDistribution{
			"m1": {Probabilities: []float64{1}, Iterations: 2},
		})
		s2 := domain.With(base, domain.KeyDistributions, map[string]domain.StationaryDistribution{
			"m2": {Probabilities: []float64{1}, Iterations: 3},
		})
		merged, err := ConsensusMergeStrategy{}.Merge(base, []domain.State{s1, s2})
		require.NoError(t, err)
		dists, _ := domain.Get(merged, domain.KeyDistributions)
		assert.Len(t, dists, 2)
		assert.Equal(t, 3, dists["m2"].Iterations)
	})

	t.Run("single rankings rewrite is taken", func(t *testing.T) {
		rewritten := []domain.Ranking{{Name: "r1", Entries: []domain.Entry{{ID: "a", Value: 0}}}}
		s1 := domain.With(base, domain.KeyRankings, rewritten)
		merged, err := ConsensusMergeStrategy{}.Merge(base, []domain.State{base, s1})
		require.NoError(t, err)
		got, _ := domain.Get(merged, domain.KeyRankings)
		assert.Equal(t, rewritten, got)
	})

	t.Run("two rankings rewrites conflict", func(t *testing.T) {
		s1 := domain.With(base, domain.KeyRankings, []domain.Ranking{{Name: "x"}})
		s2 := domain.With(base, domain.KeyRankings, []domain.Ranking{{Name: "y"}})
		_, err := ConsensusMergeStrategy{}.Merge(base, []domain.State{s1, s2})
		assert.ErrorIs(t, err, ErrMergeConflict)
	})

	t.Run("no states returns base", func(t *testing.T) {
		merged, err := ConsensusMergeStrategy{}.Merge(base, nil)
		require.NoError(t, err)
		assert.ElementsMatch(t, base.Keys(), merged.Keys())
	})
}
