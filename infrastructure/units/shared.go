// Package units provides the aggregation units that implement the
// ports.Unit interface for the go-consensus engine: the Borda and
// Markov-chain aggregators plus the preprocessing and post-processing
// units a plan can chain around them.
package units

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-consensus/internal/domain"
)

// Common errors returned by units.
var (
	// ErrEmptyUnitName is returned when attempting to create a unit with an empty name.
	ErrEmptyUnitName = errors.New("unit name cannot be empty")

	// ErrRankingsNotFound is returned when the input rankings are missing from state.
	ErrRankingsNotFound = errors.New("rankings not found in state")

	// ErrConsensusNotFound is returned when a post-processing unit finds no
	// consensus result to work on.
	ErrConsensusNotFound = errors.New("consensus result not found in state")
)

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()

// decodeConfig overlays a plan's parameter map onto cfg, which already
// holds the unit's defaults, and validates the result.
func decodeConfig(config map[string]any, cfg any) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// rankingsFromState returns the input rankings restricted to the first
// primary rankings (0 means all) as a validated Collection.
func rankingsFromState(state domain.State, primary int) (*domain.Collection, error) {
	rankings, ok := domain.Get(state, domain.KeyRankings)
	if !ok {
		return nil, ErrRankingsNotFound
	}
	return collect(rankings, primary)
}

func collect(rankings []domain.Ranking, primary int) (*domain.Collection, error) {
	if primary > 0 && primary < len(rankings) {
		rankings = rankings[:primary]
	}
	return domain.NewCollection(rankings)
}
