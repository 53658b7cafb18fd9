package application

import (
	"gopkg.in/yaml.v3"
)

// PlanConfig defines the complete specification for an aggregation plan
// and serves as the primary configuration entry point for the engine.
// Use PlanConfig when a run needs more than one method, preprocessing such
// as normalization, or post-processing such as truncation.
type PlanConfig struct {
	// Version specifies the configuration schema version using semantic
	// versioning to ensure compatibility across releases.
	Version string `yaml:"version" validate:"required,semver"`
	// Metadata contains descriptive information about the plan.
	Metadata Metadata `yaml:"metadata" validate:"required"`
	// Units defines the components that run within this plan, each with
	// its own type-specific parameters.
	Units []UnitConfig `yaml:"units" validate:"required,min=1,dive"`
	// Stages lists the execution steps in order. When empty, every unit
	// runs as its own sequential stage in declaration order.
	Stages []StageConfig `yaml:"stages" validate:"dive"`
}

// Metadata provides descriptive information about a plan.
type Metadata struct {
	// Name is the human-readable identifier for this plan.
	Name string `yaml:"name" validate:"required,min=1,max=255"`
	// Description explains the plan's purpose.
	Description string `yaml:"description" validate:"max=1000"`
	// Tags are categorical labels used for grouping plans.
	Tags []string `yaml:"tags" validate:"max=20,dive,min=1,max=50"`
}

// UnitConfig defines a single unit within a plan.
type UnitConfig struct {
	// ID is the unique identifier for this unit within the plan. Borda and
	// Markov-chain units store their consensus result under this ID.
	ID string `yaml:"id" validate:"required,unitid,min=1,max=100"`
	// Type selects the unit implementation and the parameters it accepts:
	// one of borda, markov_chain, normalize, top_k or a type registered at
	// runtime with the unit registry.
	Type string `yaml:"type" validate:"required,min=1,max=100"`
	// Parameters contains type-specific configuration as flexible YAML
	// that is validated according to the unit type.
	Parameters yaml.Node `yaml:"parameters"`
}

// StageConfig groups units into one execution step. A stage with a single
// unit runs it directly; a parallel stage runs its units concurrently on
// the same input and merges their results in declaration order.
type StageConfig struct {
	// ID is the unique identifier for this stage within the plan.
	ID string `yaml:"id" validate:"required,unitid,min=1,max=100"`
	// Units lists the unit IDs that make up this stage.
	Units []string `yaml:"units" validate:"required,min=1,dive,unitid"`
	// Parallel runs the units concurrently instead of in sequence.
	Parallel bool `yaml:"parallel"`
}
