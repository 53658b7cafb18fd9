package domain

import (
	"fmt"
	"math"
	"strings"
)

// TransitionMatrix is a square, row-major N×N matrix of transition
// probabilities. Row i holds the probabilities of moving from element i
// to every other element; rows sum to one.
//
// A TransitionMatrix is immutable once returned by a constructor. Damping
// produces a new matrix instead of rewriting cells in place.
type TransitionMatrix struct {
	n    int
	data []float64
}

// NewTransitionMatrix builds an n×n matrix from rows, copying the data.
// Every row must have length n.
func NewTransitionMatrix(rows [][]float64) (*TransitionMatrix, error) {
	n := len(rows)
	if n == 0 {
		return nil, fmt.Errorf("%w: matrix must have at least one row", ErrInvalidConfiguration)
	}
	data := make([]float64, n*n)
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrInvalidConfiguration, i, len(row), n)
		}
		copy(data[i*n:(i+1)*n], row)
	}
	return &TransitionMatrix{n: n, data: data}, nil
}

// NewTransitionMatrixFromFlat wraps a row-major backing slice of length
// n*n. The slice is owned by the matrix afterwards.
func NewTransitionMatrixFromFlat(n int, data []float64) (*TransitionMatrix, error) {
	if n <= 0 || len(data) != n*n {
		return nil, fmt.Errorf("%w: flat data of length %d does not fit %d×%d", ErrInvalidConfiguration, len(data), n, n)
	}
	return &TransitionMatrix{n: n, data: data}, nil
}

// N returns the matrix dimension.
func (m *TransitionMatrix) N() int { return m.n }

// At returns cell (i, j). It panics on out-of-range indices like a slice.
func (m *TransitionMatrix) At(i, j int) float64 { return m.data[i*m.n+j] }

// Row returns a copy of row i.
func (m *TransitionMatrix) Row(i int) []float64 {
	return append([]float64(nil), m.data[i*m.n:(i+1)*m.n]...)
}

// RowSums returns the sum of every row.
func (m *TransitionMatrix) RowSums() []float64 {
	sums := make([]float64, m.n)
	for i := 0; i < m.n; i++ {
		var s float64
		for _, v := range m.data[i*m.n : (i+1)*m.n] {
			s += v
		}
		sums[i] = s
	}
	return sums
}

// ValidateStochastic checks that every entry is finite and non-negative
// (within tol) and every row sums to one within tol.
func (m *TransitionMatrix) ValidateStochastic(tol float64) error {
	for i, s := range m.RowSums() {
		if math.Abs(s-1) > tol {
			return fmt.Errorf("%w: row %d sums to %v", ErrNotStochastic, i, s)
		}
	}
	for idx, v := range m.data {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < -tol {
			return fmt.Errorf("%w: cell (%d,%d) = %v", ErrNotStochastic, idx/m.n, idx%m.n, v)
		}
	}
	return nil
}

// Damp returns (1 − a)·m + (a/N)·J as a new matrix, J being all ones.
// a must lie in [0, 1); a = 0 returns an unchanged copy.
func (m *TransitionMatrix) Damp(a float64) (*TransitionMatrix, error) {
	if a < 0 || a >= 1 || math.IsNaN(a) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidDamping, a)
	}
	teleport := a / float64(m.n)
	out := make([]float64, len(m.data))
	for i, v := range m.data {
		out[i] = (1-a)*v + teleport
	}
	return &TransitionMatrix{n: m.n, data: out}, nil
}

// MulTransposeVec returns y = mᵀ·x, i.e. yⱼ = Σᵢ xᵢ·m(i,j).
// This is one step of the left (stationary) power iteration.
func (m *TransitionMatrix) MulTransposeVec(x []float64) ([]float64, error) {
	if len(x) != m.n {
		return nil, fmt.Errorf("%w: vector length %d, matrix %d×%d", ErrInvalidConfiguration, len(x), m.n, m.n)
	}
	y := make([]float64, m.n)
	for i := 0; i < m.n; i++ {
		xi := x[i]
		if xi == 0 {
			continue
		}
		row := m.data[i*m.n : (i+1)*m.n]
		for j, v := range row {
			y[j] += xi * v
		}
	}
	return y, nil
}

// String implements fmt.Stringer for debugging.
func (m *TransitionMatrix) String() string {
	var b strings.Builder
	for i := 0; i < m.n; i++ {
		b.WriteString("[")
		for j := 0; j < m.n; j++ {
			if j > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%.6g", m.At(i, j))
		}
		b.WriteString("]\n")
	}
	return b.String()
}

// StationaryDistribution is the probability vector π with π = π·A′,
// indexed by element registry position.
type StationaryDistribution struct {
	// Probabilities holds πᵢ ≥ 0 with Σπᵢ = 1.
	Probabilities []float64

	// Iterations is the number of power-iteration steps performed.
	Iterations int

	// Delta is the L1 change of the final step.
	Delta float64
}

// Sum returns Σπᵢ.
func (s StationaryDistribution) Sum() float64 {
	var total float64
	for _, p := range s.Probabilities {
		total += p
	}
	return total
}
