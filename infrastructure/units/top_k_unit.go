package units

import (
	"context"
	"fmt"
	"sort"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

var _ ports.Unit = (*TopKUnit)(nil)

// TopKUnit truncates consensus results to their first K entries. With
// Target set only that result is cut; otherwise every result in state is.
type TopKUnit struct {
	name   string
	config TopKConfig
}

// TopKConfig controls truncation.
type TopKConfig struct {
	// K is the number of entries to keep.
	K int `yaml:"k" json:"k" validate:"required,gt=0"`

	// Target names the consensus result to truncate. Empty means all.
	Target string `yaml:"target" json:"target"`
}

// NewTopKUnit creates a TopKUnit with validated configuration.
func NewTopKUnit(name string, config TopKConfig) (*TopKUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	u := &TopKUnit{name: name, config: config}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// Name returns the unique identifier for this unit instance.
func (tu *TopKUnit) Name() string { return tu.name }

// Execute truncates the targeted consensus results.
// A missing target is ErrConsensusNotFound.
func (tu *TopKUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	if err := ctx.Err(); err != nil {
		return state, err
	}
	if tu.config.Target != "" {
		result, ok := state.Consensus(tu.config.Target)
		if !ok {
			return state, fmt.Errorf("top_k unit %s: %w: %q", tu.name, ErrConsensusNotFound, tu.config.Target)
		}
		return state.WithConsensus(tu.config.Target, result.Top(tu.config.K)), nil
	}

	all, ok := domain.Get(state, domain.KeyConsensus)
	if !ok || len(all) == 0 {
		return state, fmt.Errorf("top_k unit %s: %w", tu.name, ErrConsensusNotFound)
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		state = state.WithConsensus(k, all[k].Top(tu.config.K))
	}
	return state, nil
}

// Validate checks the configuration.
func (tu *TopKUnit) Validate() error {
	if err := validate.Struct(tu.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// NewTopKFromConfig creates a TopKUnit from a plan parameter map.
func NewTopKFromConfig(id string, config map[string]any) (ports.Unit, error) {
	var cfg TopKConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	return NewTopKUnit(id, cfg)
}
