package units

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/testutils"
)

func TestNewBordaUnit(t *testing.T) {
	tests := []struct {
		name    string
		unit    string
		config  BordaConfig
		wantErr bool
	}{
		{name: "median", unit: "b", config: BordaConfig{Statistic: StatisticMedian}},
		{name: "pnorm", unit: "b", config: BordaConfig{Statistic: StatisticPNorm, P: 0.5}},
		{name: "empty name", unit: "", config: DefaultBordaConfig(), wantErr: true},
		{name: "unknown statistic", unit: "b", config: BordaConfig{Statistic: "mode"}, wantErr: true},
		{name: "pnorm without p", unit: "b", config: BordaConfig{Statistic: StatisticPNorm}, wantErr: true},
		{name: "negative primary", unit: "b", config: BordaConfig{Statistic: StatisticMedian, PrimaryRankings: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := NewBordaUnit(tt.unit, tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.unit, u.Name())
		})
	}
}

func TestBordaUnit_Execute(t *testing.T) {
	tests := []struct {
		name     string
		config   BordaConfig
		rankings []domain.Ranking
		want     []string
	}{
		{
			name:   "median over full overlap",
			config: BordaConfig{Statistic: StatisticMedian},
			rankings: []domain.Ranking{
				testutils.RankingOf(t, "r1", "A", "B", "C"),
				testutils.RankingOf(t, "r2", "C", "A", "B"),
			},
			want: []string{"A", "C", "B"},
		},
		{
			name:   "median over partial overlap",
			config: BordaConfig{Statistic: StatisticMedian},
			rankings: []domain.Ranking{
				testutils.RankingOf(t, "r1", "A", "B"),
				testutils.RankingOf(t, "r2", "B", "C"),
			},
			want: []string{"A", "B", "C"},
		},
		{
			name:   "primary rankings only",
			config: BordaConfig{Statistic: StatisticMedian, PrimaryRankings: 1},
			rankings: []domain.Ranking{
				testutils.RankingOf(t, "r1", "A", "B"),
				testutils.RankingOf(t, "r2", "B", "C"),
			},
			want: []string{"A", "B"},
		},
		{
			name:   "ties keep first-seen order",
			config: BordaConfig{Statistic: StatisticPNorm, P: 1},
			rankings: []domain.Ranking{
				testutils.RankingOf(t, "r1", "X", "Y"),
				testutils.RankingOf(t, "r2", "Y", "X"),
			},
			want: []string{"X", "Y"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := NewBordaUnit("borda", tt.config)
			require.NoError(t, err)

			state := domain.With(domain.NewState(), domain.KeyRankings, tt.rankings)
			next, err := u.Execute(context.Background(), state)
			require.NoError(t, err)

			got, ok := next.Consensus("borda")
			require.True(t, ok)
			assert.Equal(t, tt.want, got.IDs())
			assert.Equal(t, tt.config.Method().String(), got.Method)

			_, ok = state.Consensus("borda")
			assert.False(t, ok, "Execute must not modify the input state")
		})
	}
}

func TestBordaUnit_Scores(t *testing.T) {
	u, err := NewBordaUnit("pn", BordaConfig{Statistic: StatisticPNorm, P: 2})
	require.NoError(t, err)

	result, err := u.Aggregate(context.Background(), []domain.Ranking{
		{Name: "r1", Entries: []domain.Entry{{ID: "a", Value: 3}, {ID: "b", Value: 1}}},
		{Name: "r2", Entries: []domain.Entry{{ID: "a", Value: 4}}},
	})
	require.NoError(t, err)

	score, ok := result.Score("a")
	require.True(t, ok)
	assert.InDelta(t, 12.5, score, 1e-12)
	assert.Equal(t, []string{"b", "a"}, result.IDs())
}

// TestBordaUnit_SingleRankingIdempotent checks that one input ranking comes
// back in its own order under every statistic.
func TestBordaUnit_SingleRankingIdempotent(t *testing.T) {
	input := testutils.RankingOf(t, "only", "e", "b", "d", "a", "c")

	for _, cfg := range []BordaConfig{
		{Statistic: StatisticMedian},
		{Statistic: StatisticGeometricMean},
		{Statistic: StatisticPNorm, P: 0.5},
		{Statistic: StatisticPNorm, P: 3},
	} {
		t.Run(cfg.Method().String(), func(t *testing.T) {
			u, err := NewBordaUnit("b", cfg)
			require.NoError(t, err)
			result, err := u.Aggregate(context.Background(), []domain.Ranking{input})
			require.NoError(t, err)
			assert.Equal(t, []string{"e", "b", "d", "a", "c"}, result.IDs())
		})
	}
}

func TestBordaUnit_Errors(t *testing.T) {
	t.Run("rankings missing from state", func(t *testing.T) {
		u, err := NewBordaUnit("b", DefaultBordaConfig())
		require.NoError(t, err)
		_, err = u.Execute(context.Background(), domain.NewState())
		assert.ErrorIs(t, err, ErrRankingsNotFound)
	})

	t.Run("no rankings", func(t *testing.T) {
		u, err := NewBordaUnit("b", DefaultBordaConfig())
		require.NoError(t, err)
		_, err = u.Aggregate(context.Background(), nil)
		assert.ErrorIs(t, err, domain.ErrNoRankings)
	})

	t.Run("negative value under geometric mean", func(t *testing.T) {
		u, err := NewBordaUnit("b", BordaConfig{Statistic: StatisticGeometricMean})
		require.NoError(t, err)
		_, err = u.Aggregate(context.Background(), []domain.Ranking{
			{Name: "r", Entries: []domain.Entry{{ID: "x", Value: -1}}},
		})
		require.ErrorIs(t, err, domain.ErrNonPositiveInput)

		var aggErr *domain.AggregationError
		require.True(t, errors.As(err, &aggErr))
		assert.Equal(t, domain.MethodBordaGeometricMean, aggErr.Method)
		var elemErr *domain.ElementError
		require.True(t, errors.As(err, &elemErr))
		assert.Equal(t, "x", elemErr.ElementID)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		coll := mustCollection(t, testutils.RankingOf(t, "r", "a"))
		_, err := AggregateBorda(ctx, coll, domain.Median())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBordaUnit_UnmarshalParameters(t *testing.T) {
	u, err := NewBordaUnit("b", DefaultBordaConfig())
	require.NoError(t, err)

	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("statistic: pnorm\np: 0.5\n"), &node))
	require.NoError(t, u.UnmarshalParameters(node))
	assert.Equal(t, domain.PNorm(0.5), u.config.Method())

	var bad yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("statistic: pnorm\np: 0\n"), &bad))
	assert.Error(t, u.UnmarshalParameters(bad))
	assert.Equal(t, domain.PNorm(0.5), u.config.Method(), "failed update must keep the previous config")
}

func TestNewBordaFromConfig(t *testing.T) {
	u, err := NewBordaFromConfig("from_map", map[string]any{"statistic": "geometric_mean", "primary_rankings": 2})
	require.NoError(t, err)
	b := u.(*BordaUnit)
	assert.Equal(t, StatisticGeometricMean, b.config.Statistic)
	assert.Equal(t, 2, b.config.PrimaryRankings)

	def, err := NewBordaFromConfig("defaults", nil)
	require.NoError(t, err)
	assert.Equal(t, StatisticMedian, def.(*BordaUnit).config.Statistic)

	_, err = NewBordaFromConfig("bad", map[string]any{"statistic": "mode"})
	assert.Error(t, err)
}

// TestBordaUnit_ListingOrderInvariant checks that Borda scores depend only on
// entry values, not on the order entries are listed in.
func TestBordaUnit_ListingOrderInvariant(t *testing.T) {
	cfg := testutils.DefaultRankingSetConfig()
	cfg.Scores = true
	rankings := testutils.GenerateRankings(7, cfg)

	rng := rand.New(rand.NewSource(11))
	shuffled := make([]domain.Ranking, len(rankings))
	for i, r := range rankings {
		shuffled[i] = testutils.Shuffled(rng, r)
	}

	for _, stat := range []string{StatisticMedian, StatisticGeometricMean, StatisticPNorm} {
		t.Run(stat, func(t *testing.T) {
			u, err := NewBordaUnit("b", BordaConfig{Statistic: stat, P: 2})
			require.NoError(t, err)

			want, err := u.Aggregate(context.Background(), rankings)
			require.NoError(t, err)
			got, err := u.Aggregate(context.Background(), shuffled)
			require.NoError(t, err)

			require.Equal(t, want.Len(), got.Len())
			for e := 0; e < cfg.Elements; e++ {
				id := testutils.ElementName(e)
				ws, ok := want.Score(id)
				require.True(t, ok, id)
				gs, ok := got.Score(id)
				require.True(t, ok, id)
				assert.Equal(t, ws, gs, id)
			}
		})
	}
}
