package domain

import (
	"fmt"
	"math"
)

// MethodKind identifies one of the supported aggregation methods.
type MethodKind string

// Supported aggregation methods. The first three form the Borda
// (positional) family, the last three the Markov-chain family.
const (
	// MethodBordaMedian aggregates each element's values with the median.
	MethodBordaMedian MethodKind = "borda_median"

	// MethodBordaGeometricMean aggregates with the geometric mean.
	MethodBordaGeometricMean MethodKind = "borda_geometric_mean"

	// MethodBordaPNorm aggregates with (Σ vᵢᵖ)/k; carries parameter P.
	MethodBordaPNorm MethodKind = "borda_pnorm"

	// MethodMC1 moves from r to c if any co-occurring ranking prefers c.
	MethodMC1 MethodKind = "mc1"

	// MethodMC2 moves from r to c if at least half the co-occurring
	// rankings prefer c.
	MethodMC2 MethodKind = "mc2"

	// MethodMC3 moves from r to c in proportion to the co-occurring
	// rankings that prefer c.
	MethodMC3 MethodKind = "mc3"
)

// DefaultDamping is the damping applied to Markov methods when none is set.
const DefaultDamping = 0.05

// MethodKinds lists every supported kind in a stable order.
func MethodKinds() []MethodKind {
	return []MethodKind{
		MethodBordaMedian, MethodBordaGeometricMean, MethodBordaPNorm,
		MethodMC1, MethodMC2, MethodMC3,
	}
}

// String returns the string representation of the method kind.
func (k MethodKind) String() string { return string(k) }

// IsBorda reports whether k belongs to the positional family.
func (k MethodKind) IsBorda() bool {
	return k == MethodBordaMedian || k == MethodBordaGeometricMean || k == MethodBordaPNorm
}

// IsMarkov reports whether k belongs to the Markov-chain family.
func (k MethodKind) IsMarkov() bool {
	return k == MethodMC1 || k == MethodMC2 || k == MethodMC3
}

// Method selects an aggregation variant together with its payload.
// Only the payload field relevant to Kind is read: P for borda_pnorm,
// Damping for the mc* kinds.
type Method struct {
	Kind MethodKind `yaml:"kind" json:"kind" validate:"required,oneof=borda_median borda_geometric_mean borda_pnorm mc1 mc2 mc3"`

	// P is the p-norm exponent. p = 1 is the arithmetic mean.
	P float64 `yaml:"p,omitempty" json:"p,omitempty"`

	// Damping is the teleport weight a in (1 − a)·A + (a/N)·J.
	Damping float64 `yaml:"damping,omitempty" json:"damping,omitempty"`
}

// Median returns the Borda median method.
func Median() Method { return Method{Kind: MethodBordaMedian} }

// GeometricMean returns the Borda geometric-mean method.
func GeometricMean() Method { return Method{Kind: MethodBordaGeometricMean} }

// PNorm returns the Borda p-norm method with exponent p.
func PNorm(p float64) Method { return Method{Kind: MethodBordaPNorm, P: p} }

// MarkovChain returns a Markov method of the given kind with damping a.
func MarkovChain(kind MethodKind, a float64) Method {
	return Method{Kind: kind, Damping: a}
}

// Validate checks that the kind is known and the payload is in range.
func (m Method) Validate() error {
	switch {
	case m.Kind == MethodBordaPNorm:
		if !(m.P > 0) || math.IsInf(m.P, 0) {
			return fmt.Errorf("%w: p-norm exponent must be a finite value > 0, got %v", ErrInvalidConfiguration, m.P)
		}
	case m.Kind.IsMarkov():
		if m.Damping < 0 || m.Damping >= 1 || math.IsNaN(m.Damping) {
			return fmt.Errorf("%w: got %v", ErrInvalidDamping, m.Damping)
		}
	case m.Kind.IsBorda():
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMethod, m.Kind)
	}
	return nil
}

// String renders the method with its payload, e.g. "borda_pnorm(p=0.5)".
func (m Method) String() string {
	switch {
	case m.Kind == MethodBordaPNorm:
		return fmt.Sprintf("%s(p=%g)", m.Kind, m.P)
	case m.Kind.IsMarkov():
		return fmt.Sprintf("%s(a=%g)", m.Kind, m.Damping)
	default:
		return string(m.Kind)
	}
}
