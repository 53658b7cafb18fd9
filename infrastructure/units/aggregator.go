package units

import (
	"fmt"

	"github.com/ahrav/go-consensus/internal/domain"
)

// AggregatorFor returns a unit named name that implements method. opts is
// only read for Markov methods.
func AggregatorFor(name string, method domain.Method, opts MarkovOptions) (domain.Aggregator, error) {
	if err := method.Validate(); err != nil {
		return nil, err
	}
	switch {
	case method.Kind.IsBorda():
		cfg, err := BordaConfigFor(method)
		if err != nil {
			return nil, err
		}
		return NewBordaUnit(name, cfg)
	case method.Kind.IsMarkov():
		cfg, err := MarkovChainConfigFor(method)
		if err != nil {
			return nil, err
		}
		if opts.Solver != (SolverOptions{}) {
			cfg.Solver = opts.Solver
		}
		cfg.Parallelism = opts.Parallelism
		return NewMarkovChainUnit(name, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMethod, method.Kind)
	}
}
