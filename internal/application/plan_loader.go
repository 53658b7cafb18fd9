package application

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

// aggregatingTypes are the built-in unit types that store a consensus
// result under their unit ID.
var aggregatingTypes = []string{"borda", "markov_chain"}

// Plan is a compiled aggregation plan: a pipeline of stages, each stage a
// single unit, a sequential sub-pipeline or a parallel layer.
// A Plan is immutable once built and safe for concurrent execution.
type Plan struct {
	name      string
	version   string
	root      *Pipeline
	resultIDs []string
}

var _ ports.Executable = (*Plan)(nil)

// Execute runs every stage in order on state.
func (p *Plan) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	return p.root.Execute(ctx, state)
}

// ID returns the plan name from its metadata.
func (p *Plan) ID() string { return p.name }

// Version returns the plan's schema version.
func (p *Plan) Version() string { return p.version }

// Stages returns the plan's top-level executables in order.
func (p *Plan) Stages() []ports.Executable { return p.root.Executables() }

// ResultIDs returns the IDs of the built-in aggregation units in
// declaration order. These are the consensus keys a run produces.
func (p *Plan) ResultIDs() []string { return append([]string(nil), p.resultIDs...) }

// PlanLoader provides YAML configuration parsing, validation, and caching
// for aggregation plans, transforming declarative YAML into executable
// Plans.
type PlanLoader struct {
	// validator performs struct field validation and custom validation
	// rules for plan configurations.
	validator *validator.Validate
	// unitRegistry provides factory methods for creating units.
	unitRegistry ports.UnitRegistry
	// adapterOpts are applied to every unit adapter the loader builds.
	adapterOpts []AdapterOption
	// layerLimit bounds concurrency inside parallel stages.
	layerLimit int
	// cache stores compiled plans indexed by SHA256 of the normalized config.
	// Cached plans are shared and never mutated.
	cache   map[string]*Plan
	cacheMu sync.RWMutex
	// sf prevents duplicate compilation when several goroutines load the
	// same plan simultaneously.
	sf singleflight.Group
}

// LoaderOption configures a PlanLoader.
type LoaderOption func(*PlanLoader)

// WithAdapterOptions applies opts to every unit adapter the loader builds.
func WithAdapterOptions(opts ...AdapterOption) LoaderOption {
	return func(pl *PlanLoader) { pl.adapterOpts = append(pl.adapterOpts, opts...) }
}

// WithLayerConcurrency bounds the number of units a parallel stage runs at
// once. Values <= 0 use GOMAXPROCS.
func WithLayerConcurrency(limit int) LoaderOption {
	return func(pl *PlanLoader) { pl.layerLimit = limit }
}

// NewPlanLoader creates a new plan loader with validation capabilities
// and an empty cache.
// NewPlanLoader returns an error if validator registration fails.
func NewPlanLoader(unitRegistry ports.UnitRegistry, opts ...LoaderOption) (*PlanLoader, error) {
	v := validator.New()

	if err := registerCustomValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	pl := &PlanLoader{
		validator:    v,
		unitRegistry: unitRegistry,
		cache:        make(map[string]*Plan),
	}
	for _, opt := range opts {
		opt(pl)
	}
	return pl, nil
}

// load is the common implementation for loading plans from byte data,
// utilizing singleflight to prevent duplicate compilation and SHA256-based
// caching for efficiency.
func (pl *PlanLoader) load(ctx context.Context, data []byte) (*Plan, error) {
	config, err := pl.parseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Hash the normalized config, not raw bytes.
	hash, err := pl.calculateConfigHash(config)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}

	v, err, _ := pl.sf.Do(hash, func() (any, error) {
		if plan, ok := pl.getCachedPlan(hash); ok {
			return plan, nil
		}

		if err := pl.validateConfig(config); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}

		plan, err := pl.buildPlan(ctx, config)
		if err != nil {
			return nil, fmt.Errorf("failed to build plan: %w", err)
		}

		pl.cachePlan(hash, plan)
		return plan, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Plan), nil
}

// LoadFromFile loads and compiles a plan from a YAML file.
// A missing file is reported as ports.ErrConfigNotFound.
func (pl *PlanLoader) LoadFromFile(ctx context.Context, path string) (*Plan, error) {
	cleanPath := filepath.Clean(path)

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ports.NewConfigError(cleanPath, ports.ErrConfigNotFound)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return pl.load(ctx, data)
}

// LoadFromReader loads and compiles a plan from an io.Reader.
func (pl *PlanLoader) LoadFromReader(ctx context.Context, r io.Reader) (*Plan, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	return pl.load(ctx, data)
}

// parseYAML unmarshals YAML into a PlanConfig in strict mode, so unknown
// fields are rejected instead of silently ignored.
func (pl *PlanLoader) parseYAML(data []byte) (*PlanConfig, error) {
	var config PlanConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return &config, nil
}

// validateConfig runs struct tag validation followed by semantic checks.
func (pl *PlanLoader) validateConfig(config *PlanConfig) error {
	if err := pl.validator.Struct(config); err != nil {
		return fmt.Errorf("struct validation failed: %w", err)
	}

	if err := pl.validateSemantics(config); err != nil {
		return fmt.Errorf("semantic validation failed: %w", err)
	}

	return nil
}

// validateSemantics checks rules that struct tags cannot express: IDs are
// unique across units and stages, unit types are known, parameters are
// valid for their type, and every unit is placed in exactly one stage.
func (pl *PlanLoader) validateSemantics(config *PlanConfig) error {
	allIDs := make(map[string]string)
	unitIDs := make(map[string]struct{})
	supported := pl.unitRegistry.GetSupportedTypes()

	for _, unit := range config.Units {
		if kind, exists := allIDs[unit.ID]; exists {
			return fmt.Errorf("duplicate ID %q: already used by %s", unit.ID, kind)
		}
		allIDs[unit.ID] = "unit"
		unitIDs[unit.ID] = struct{}{}

		if slices.Contains(UnitTypes, unit.Type) {
			if err := ValidateUnitParameters(unit.Type, unit.Parameters); err != nil {
				return fmt.Errorf("unit %s parameter validation failed: %w", unit.ID, err)
			}
		} else if !slices.Contains(supported, unit.Type) {
			return fmt.Errorf("unit %s: unknown unit type: %s", unit.ID, unit.Type)
		}
	}

	placed := make(map[string]string)
	for _, stage := range config.Stages {
		if kind, exists := allIDs[stage.ID]; exists {
			return fmt.Errorf("duplicate ID %q: already used by %s", stage.ID, kind)
		}
		allIDs[stage.ID] = "stage"

		for _, unitID := range stage.Units {
			if _, exists := unitIDs[unitID]; !exists {
				return fmt.Errorf("stage %s references non-existent unit: %s", stage.ID, unitID)
			}
			if other, exists := placed[unitID]; exists {
				return fmt.Errorf("unit %s is placed in both stage %s and stage %s", unitID, other, stage.ID)
			}
			placed[unitID] = stage.ID
		}
	}

	if len(config.Stages) > 0 {
		for _, unit := range config.Units {
			if _, ok := placed[unit.ID]; !ok {
				return fmt.Errorf("unit %s is not placed in any stage", unit.ID)
			}
		}
	}

	return nil
}

// buildPlan constructs an executable plan from a validated configuration.
// Without explicit stages every unit runs as its own stage in declaration
// order.
func (pl *PlanLoader) buildPlan(ctx context.Context, config *PlanConfig) (*Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	adapters := make(map[string]*UnitAdapter, len(config.Units))
	var resultIDs []string
	for _, unitConfig := range config.Units {
		unit, err := pl.createUnit(unitConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create unit %s: %w", unitConfig.ID, err)
		}
		opts := append([]AdapterOption{WithUnitType(unitConfig.Type)}, pl.adapterOpts...)
		adapters[unitConfig.ID] = NewUnitAdapter(unit, unitConfig.ID, opts...)
		if slices.Contains(aggregatingTypes, unitConfig.Type) {
			resultIDs = append(resultIDs, unitConfig.ID)
		}
	}

	stages := config.Stages
	if len(stages) == 0 {
		stages = make([]StageConfig, len(config.Units))
		for i, u := range config.Units {
			stages[i] = StageConfig{ID: u.ID, Units: []string{u.ID}}
		}
	}

	root := NewPipeline(config.Metadata.Name)
	for _, stage := range stages {
		exec, err := pl.buildStage(stage, adapters)
		if err != nil {
			return nil, err
		}
		if err := root.Add(exec); err != nil {
			return nil, fmt.Errorf("failed to add stage %s: %w", stage.ID, err)
		}
	}

	return &Plan{
		name:      config.Metadata.Name,
		version:   config.Version,
		root:      root,
		resultIDs: resultIDs,
	}, nil
}

func (pl *PlanLoader) buildStage(stage StageConfig, adapters map[string]*UnitAdapter) (ports.Executable, error) {
	if len(stage.Units) == 1 {
		return adapters[stage.Units[0]], nil
	}

	if stage.Parallel {
		layer := NewLayer(stage.ID)
		layer.SetConcurrencyLimit(pl.layerLimit)
		layer.SetMergeStrategy(ConsensusMergeStrategy{})
		for _, unitID := range stage.Units {
			if err := layer.Add(adapters[unitID]); err != nil {
				return nil, fmt.Errorf("failed to add unit to layer: %w", err)
			}
		}
		return layer, nil
	}

	pipeline := NewPipeline(stage.ID)
	for _, unitID := range stage.Units {
		if err := pipeline.Add(adapters[unitID]); err != nil {
			return nil, fmt.Errorf("failed to add unit to pipeline: %w", err)
		}
	}
	return pipeline, nil
}

// createUnit decodes a unit's YAML parameters and delegates to the registry.
func (pl *PlanLoader) createUnit(config UnitConfig) (ports.Unit, error) {
	params := make(map[string]any)
	if !config.Parameters.IsZero() {
		if err := config.Parameters.Decode(&params); err != nil {
			return nil, fmt.Errorf("failed to decode parameters: %w", err)
		}
	}

	unit, err := pl.unitRegistry.CreateUnit(config.Type, config.ID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create unit: %w", err)
	}

	return unit, nil
}

// calculateConfigHash computes the SHA256 of a re-encoded PlanConfig so
// that whitespace and formatting differences share a cache entry.
func (pl *PlanLoader) calculateConfigHash(config *PlanConfig) (string, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)

	if err := encoder.Encode(config); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}

	hash := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(hash[:]), nil
}

func (pl *PlanLoader) getCachedPlan(hash string) (*Plan, bool) {
	pl.cacheMu.RLock()
	defer pl.cacheMu.RUnlock()

	plan, ok := pl.cache[hash]
	return plan, ok
}

func (pl *PlanLoader) cachePlan(hash string, plan *Plan) {
	pl.cacheMu.Lock()
	defer pl.cacheMu.Unlock()

	pl.cache[hash] = plan
}

// ClearCache removes all cached plans, forcing subsequent loads to
// recompile from source.
func (pl *PlanLoader) ClearCache() {
	pl.cacheMu.Lock()
	defer pl.cacheMu.Unlock()

	pl.cache = make(map[string]*Plan)
}

// registerCustomValidators registers semantic version validation and the
// plan-specific validators.
func registerCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("semver", validateSemver); err != nil {
		return fmt.Errorf("failed to register semver validator: %w", err)
	}

	if err := RegisterPlanValidators(v); err != nil {
		return fmt.Errorf("failed to register plan validators: %w", err)
	}

	return nil
}

// validateSemver validates that a string follows X.Y.Z where X, Y and Z
// are non-negative integers.
func validateSemver(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	var major, minor, patch int
	n, err := fmt.Sscanf(value, "%d.%d.%d", &major, &minor, &patch)
	return err == nil && n == 3 && major >= 0 && minor >= 0 && patch >= 0
}
