package units

import (
	"fmt"
	"math"
	"sort"

	"github.com/ahrav/go-consensus/internal/domain"
)

// Statistic collapses one element's value vector into a scalar.
type Statistic func(values []float64) (float64, error)

// Median returns the middle value of values, or the mean of the two
// central values when the count is even. values is not modified.
func Median(values []float64) (float64, error) {
	if err := checkValues(values, false); err != nil {
		return 0, err
	}
	sorted := sortedCopy(values)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2], nil
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2, nil
}

// GeometricMean returns the k-th root of the product of the k values.
// It is computed as exp(mean(log v)) so long vectors do not overflow.
// A zero anywhere yields 0 and a single value is returned as is.
func GeometricMean(values []float64) (float64, error) {
	if err := checkValues(values, true); err != nil {
		return 0, err
	}
	if len(values) == 1 {
		return values[0], nil
	}
	var logSum float64
	for _, v := range sortedCopy(values) {
		if v == 0 {
			return 0, nil
		}
		logSum += math.Log(v)
	}
	return math.Exp(logSum / float64(len(values))), nil
}

// PNorm returns (Σ vᵢᵖ) / k. p = 1 is the arithmetic mean.
// Terms are summed in ascending order, so the result is bit-identical for
// any permutation of values.
func PNorm(p float64) Statistic {
	return func(values []float64) (float64, error) {
		if !(p > 0) || math.IsInf(p, 0) {
			return 0, fmt.Errorf("%w: p-norm exponent must be a finite value > 0, got %v", domain.ErrInvalidConfiguration, p)
		}
		if err := checkValues(values, true); err != nil {
			return 0, err
		}
		var sum float64
		for _, v := range sortedCopy(values) {
			if p == 1 {
				sum += v
				continue
			}
			sum += math.Pow(v, p)
		}
		return sum / float64(len(values)), nil
	}
}

// StatisticFor returns the statistic a Borda method applies.
func StatisticFor(method domain.Method) (Statistic, error) {
	if err := method.Validate(); err != nil {
		return nil, err
	}
	switch method.Kind {
	case domain.MethodBordaMedian:
		return Median, nil
	case domain.MethodBordaGeometricMean:
		return GeometricMean, nil
	case domain.MethodBordaPNorm:
		return PNorm(method.P), nil
	default:
		return nil, fmt.Errorf("%w: %s is not a positional method", domain.ErrUnknownMethod, method.Kind)
	}
}

func sortedCopy(values []float64) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return sorted
}

func checkValues(values []float64, nonNegative bool) error {
	if len(values) == 0 {
		return domain.ErrNoValues
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: index %d holds %v", domain.ErrInvalidValue, i, v)
		}
		if nonNegative && v < 0 {
			return fmt.Errorf("%w: index %d holds %v", domain.ErrNonPositiveInput, i, v)
		}
	}
	return nil
}
