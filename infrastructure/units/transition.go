package units

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-consensus/internal/domain"
)

// BuildOptions tunes matrix construction.
type BuildOptions struct {
	// Parallelism bounds the number of rows filled concurrently.
	// Values <= 0 use GOMAXPROCS.
	Parallelism int
}

// dominanceRule returns the off-diagonal cell for one (r, c) pair given the
// number of co-occurring rankings where r is worse and the number where
// both occur. mc1 never needs more than the first win, so it is handled
// separately by the scan.
type dominanceRule func(wins, common, n int) float64

func mc2Rule(wins, common, n int) float64 {
	if common == 0 {
		return 0
	}
	if wins >= (common+1)/2 {
		return 1 / float64(n)
	}
	return 0
}

func mc3Rule(wins, common, n int) float64 {
	if common == 0 {
		return 0
	}
	return float64(wins) / (float64(common) * float64(n))
}

// BuildTransitionMatrix builds the N×N row-stochastic matrix for one of the
// mc1, mc2 or mc3 rules over coll. Off-diagonal cells are at most 1/N and
// the diagonal is set to 1 minus the rest of its row.
//
// A smaller value means better; r is worse than c in a ranking when
// value(r) > value(c). Rankings that lack r or c are ignored for the pair.
//
//   - mc1: cell(r,c) = 1/N if r is worse than c in any co-occurring ranking.
//     The scan stops at the first such ranking.
//   - mc2: cell(r,c) = 1/N if r is worse in at least ceil(common/2) of the
//     common co-occurring rankings, common > 0.
//   - mc3: cell(r,c) = wins / (common × N), 0 when common = 0.
//
// Rows are filled concurrently; each goroutine owns one row slice, so the
// result does not depend on scheduling.
func BuildTransitionMatrix(
	ctx context.Context,
	coll *domain.Collection,
	kind domain.MethodKind,
	opts BuildOptions,
) (*domain.TransitionMatrix, error) {
	var rule dominanceRule
	switch kind {
	case domain.MethodMC1:
	case domain.MethodMC2:
		rule = mc2Rule
	case domain.MethodMC3:
		rule = mc3Rule
	default:
		return nil, fmt.Errorf("%w: %s is not a Markov-chain method", domain.ErrUnknownMethod, kind)
	}

	n := coll.Size()
	if n == 0 {
		return nil, fmt.Errorf("%w: no elements to build a matrix over", domain.ErrInvalidConfiguration)
	}
	table := valueTable(coll)
	cell := 1 / float64(n)
	data := make([]float64, n*n)

	limit := opts.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for r := 0; r < n; r++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row := data[r*n : (r+1)*n]
			var offDiagonal float64
			for c := 0; c < n; c++ {
				if c == r {
					continue
				}
				var v float64
				if rule == nil {
					if anyWorse(table, r, c) {
						v = cell
					}
				} else {
					wins, common := tally(table, r, c)
					v = rule(wins, common, n)
				}
				row[c] = v
				offDiagonal += v
			}
			row[r] = 1 - offDiagonal
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return domain.NewTransitionMatrixFromFlat(n, data)
}

// valueTable lays the rankings out as table[k][i], the value of registry
// element i in ranking k, with NaN marking absence. Ranking values are
// validated finite, so NaN cannot collide with real data.
func valueTable(coll *domain.Collection) [][]float64 {
	ids := coll.IDs()
	table := make([][]float64, coll.NumRankings())
	for k := range table {
		col := make([]float64, len(ids))
		for i, id := range ids {
			if v, ok := coll.Value(k, id); ok {
				col[i] = v
			} else {
				col[i] = math.NaN()
			}
		}
		table[k] = col
	}
	return table
}

func anyWorse(table [][]float64, r, c int) bool {
	for _, col := range table {
		vr, vc := col[r], col[c]
		if math.IsNaN(vr) || math.IsNaN(vc) {
			continue
		}
		if vr > vc {
			return true
		}
	}
	return false
}

func tally(table [][]float64, r, c int) (wins, common int) {
	for _, col := range table {
		vr, vc := col[r], col[c]
		if math.IsNaN(vr) || math.IsNaN(vc) {
			continue
		}
		common++
		if vr > vc {
			wins++
		}
	}
	return wins, common
}
