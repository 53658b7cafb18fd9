package units

import (
	"context"
	"fmt"
	"math"

	"github.com/ahrav/go-consensus/internal/domain"
)

// Solver defaults.
const (
	DefaultTolerance     = 1e-10
	DefaultMaxIterations = 10000

	// ReferenceIterations is the classic fixed schedule of 50 steps, used
	// when SolverOptions.Fixed is set and MaxIterations is 0.
	ReferenceIterations = 50
)

// SolverOptions controls power iteration.
type SolverOptions struct {
	// Tolerance is the L1 change below which iteration stops.
	Tolerance float64 `yaml:"tolerance" json:"tolerance" validate:"gte=0"`

	// MaxIterations caps the number of steps. Reaching it without meeting
	// Tolerance is ErrDidNotConverge unless Fixed is set.
	MaxIterations int `yaml:"max_iterations" json:"max_iterations" validate:"gte=0"`

	// Fixed runs exactly MaxIterations steps and accepts the result,
	// ignoring Tolerance.
	Fixed bool `yaml:"fixed" json:"fixed"`
}

// DefaultSolverOptions returns tolerance-driven iteration with a safety cap.
func DefaultSolverOptions() SolverOptions {
	return SolverOptions{Tolerance: DefaultTolerance, MaxIterations: DefaultMaxIterations}
}

func (o SolverOptions) withDefaults() SolverOptions {
	if o.MaxIterations <= 0 {
		if o.Fixed {
			o.MaxIterations = ReferenceIterations
		} else {
			o.MaxIterations = DefaultMaxIterations
		}
	}
	if o.Tolerance <= 0 && !o.Fixed {
		o.Tolerance = DefaultTolerance
	}
	return o
}

// SolveStationary approximates the stationary distribution π = π·m by power
// iteration: start uniform, multiply by mᵀ, rescale to unit L1 norm, repeat.
// m should already be damped.
//
// It fails with domain.ErrDidNotConverge when the L1 norm collapses to zero,
// NaN or Inf appears, or MaxIterations pass without the L1 change dropping
// below Tolerance. Cancellation is checked between iterations.
func SolveStationary(ctx context.Context, m *domain.TransitionMatrix, opts SolverOptions) (domain.StationaryDistribution, error) {
	opts = opts.withDefaults()
	n := m.N()
	x := make([]float64, n)
	for i := range x {
		x[i] = 1 / float64(n)
	}

	var delta float64
	for iter := 1; iter <= opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return domain.StationaryDistribution{}, err
		}
		y, err := m.MulTransposeVec(x)
		if err != nil {
			return domain.StationaryDistribution{}, err
		}

		var norm float64
		for _, v := range y {
			norm += math.Abs(v)
		}
		if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
			return domain.StationaryDistribution{}, fmt.Errorf("%w: L1 norm %v at iteration %d", domain.ErrDidNotConverge, norm, iter)
		}

		delta = 0
		for i := range y {
			y[i] /= norm
			delta += math.Abs(y[i] - x[i])
		}
		x = y

		if !opts.Fixed && delta < opts.Tolerance {
			return domain.StationaryDistribution{Probabilities: x, Iterations: iter, Delta: delta}, nil
		}
	}

	if opts.Fixed {
		return domain.StationaryDistribution{Probabilities: x, Iterations: opts.MaxIterations, Delta: delta}, nil
	}
	return domain.StationaryDistribution{}, fmt.Errorf("%w: L1 change %g after %d iterations (tolerance %g)",
		domain.ErrDidNotConverge, delta, opts.MaxIterations, opts.Tolerance)
}

// MarkovScores turns π into aggregate scores 1 − πᵢ. Elements with more
// stationary mass get smaller scores and therefore rank earlier.
func MarkovScores(dist domain.StationaryDistribution) []float64 {
	scores := make([]float64, len(dist.Probabilities))
	for i, p := range dist.Probabilities {
		scores[i] = 1 - p
	}
	return scores
}
