package application

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

// ErrMergeConflict is returned when two executables of one layer produce
// the same result key or both rewrite the input rankings.
var ErrMergeConflict = errors.New("conflicting results in parallel layer")

// Pipeline is a sequential execution container that processes executables
// in strict order, where each executable's output becomes the input for
// the next executable in the sequence.
// Use Pipeline when stages depend on each other, e.g. normalization
// before aggregation or truncation after it.
type Pipeline struct {
	// id is the unique identifier for this pipeline, used in error reporting.
	id string
	// executables contains the ordered list of components that will execute
	// sequentially, with state flowing from one to the next.
	executables []ports.Executable
	// idSet tracks executable IDs for O(1) duplicate detection.
	idSet map[string]struct{}
	// mu provides thread-safe access to the executables slice.
	mu sync.RWMutex
}

var (
	_ ports.Pipeline = (*Pipeline)(nil)
	_ ports.Layer    = (*Layer)(nil)
)

// NewPipeline creates a new sequential execution pipeline with the specified
// identifier. The pipeline executes components in the order they were added.
func NewPipeline(id string) *Pipeline {
	return &Pipeline{
		id:          id,
		executables: make([]ports.Executable, 0),
		idSet:       make(map[string]struct{}),
	}
}

// Execute processes all executables in this pipeline sequentially,
// passing the output state from each executable as input to the next.
// Execute stops between executables once ctx is cancelled and wraps any
// failure with the failing executable's ID.
func (p *Pipeline) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	p.mu.RLock()
	executables := make([]ports.Executable, len(p.executables))
	copy(executables, p.executables)
	p.mu.RUnlock()

	currentState := state
	for _, exec := range executables {
		if err := ctx.Err(); err != nil {
			return currentState, err
		}
		newState, err := exec.Execute(ctx, currentState)
		if err != nil {
			return currentState, fmt.Errorf("pipeline %s: execution failed at %s: %w", p.id, exec.ID(), err)
		}
		currentState = newState
	}

	return currentState, nil
}

// ID returns the unique string identifier for this pipeline.
func (p *Pipeline) ID() string {
	return p.id
}

// Add appends an executable to the end of this pipeline's execution
// sequence. Add returns an error if the executable is nil or if an
// executable with the same ID already exists in the pipeline.
func (p *Pipeline) Add(exec ports.Executable) error {
	if exec == nil {
		return fmt.Errorf("cannot add nil executable to pipeline")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	execID := exec.ID()
	if _, exists := p.idSet[execID]; exists {
		return fmt.Errorf("executable with ID %s already exists in pipeline", execID)
	}

	p.executables = append(p.executables, exec)
	p.idSet[execID] = struct{}{}
	return nil
}

// Executables returns a copy of the ordered list of executables.
func (p *Pipeline) Executables() []ports.Executable {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]ports.Executable, len(p.executables))
	copy(result, p.executables)
	return result
}

// Layer is a parallel execution container that runs independent
// executables concurrently on the same input state.
// Results are merged in declaration order, never completion order, so a
// layer's output does not depend on scheduling.
type Layer struct {
	// id is the unique identifier for this layer, used in error reporting.
	id string
	// executables contains the components that will execute concurrently,
	// all receiving the same input state.
	executables []ports.Executable
	// idSet tracks executable IDs for O(1) duplicate detection.
	idSet map[string]struct{}
	// mergeStrategy defines how to combine results from parallel executions.
	// If nil, ConsensusMergeStrategy is used.
	mergeStrategy ports.MergeStrategy
	// concurrencyLimit bounds the number of concurrent executions.
	// Defaults to runtime.GOMAXPROCS(0) if not set.
	concurrencyLimit int
	// mu provides thread-safe access to the layer configuration.
	mu sync.RWMutex
}

// NewLayer creates a new parallel execution layer with the specified
// identifier.
func NewLayer(id string) *Layer {
	return &Layer{
		id:          id,
		executables: make([]ports.Executable, 0),
		idSet:       make(map[string]struct{}),
	}
}

// Execute runs all executables in this layer concurrently, each receiving
// the same immutable input state, then merges their output states with the
// layer's merge strategy.
// Every executable runs to completion; if any fail, Execute returns all
// failures joined with errors.Join and the input state unchanged.
func (l *Layer) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	l.mu.RLock()
	executables := make([]ports.Executable, len(l.executables))
	copy(executables, l.executables)
	limit := l.concurrencyLimit
	strategy := l.mergeStrategy
	l.mu.RUnlock()

	if len(executables) == 0 {
		return state, nil
	}
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	states := make([]domain.State, len(executables))
	errs := make([]error, len(executables))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, exec := range executables {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = fmt.Errorf("executable %s: %w", exec.ID(), err)
				return nil
			}
			newState, err := exec.Execute(ctx, state)
			if err != nil {
				errs[i] = fmt.Errorf("executable %s: %w", exec.ID(), err)
				return nil
			}
			states[i] = newState
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return state, fmt.Errorf("layer %s failed with %d errors: %w", l.id, len(failed), errors.Join(failed...))
	}

	if strategy == nil {
		strategy = ConsensusMergeStrategy{}
	}
	mergedState, err := strategy.Merge(state, states)
	if err != nil {
		return state, fmt.Errorf("layer %s: merge failed: %w", l.id, err)
	}

	return mergedState, nil
}

// ID returns the unique string identifier for this layer.
func (l *Layer) ID() string {
	return l.id
}

// Add includes an executable in this layer's parallel execution group.
// Add returns an error if the executable is nil or if an executable
// with the same ID already exists in the layer.
func (l *Layer) Add(exec ports.Executable) error {
	if exec == nil {
		return fmt.Errorf("cannot add nil executable to layer")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	execID := exec.ID()
	if _, exists := l.idSet[execID]; exists {
		return fmt.Errorf("executable with ID %s already exists in layer", execID)
	}

	l.executables = append(l.executables, exec)
	l.idSet[execID] = struct{}{}
	return nil
}

// Executables returns a copy of the layer's executables in declaration order.
func (l *Layer) Executables() []ports.Executable {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]ports.Executable, len(l.executables))
	copy(result, l.executables)
	return result
}

// SetMergeStrategy configures how parallel execution results are combined.
// The merge strategy must be set before Execute is called.
func (l *Layer) SetMergeStrategy(strategy ports.MergeStrategy) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.mergeStrategy = strategy
}

// SetConcurrencyLimit configures the maximum number of executables that
// run concurrently within this layer. Values <= 0 use GOMAXPROCS.
func (l *Layer) SetConcurrencyLimit(limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.concurrencyLimit = limit
}

// ConsensusMergeStrategy merges the outputs of a parallel layer.
//
// A consensus result or stationary distribution counts as produced by an
// executable when its key is new or its value differs from the base state.
// Produced entries are merged in declaration order; the same key produced
// twice is ErrMergeConflict. Rewritten input rankings are taken from the
// single executable that changed them; two rewrites conflict. All other
// keys keep their base values.
type ConsensusMergeStrategy struct{}

var _ ports.MergeStrategy = ConsensusMergeStrategy{}

// Merge implements ports.MergeStrategy.
func (ConsensusMergeStrategy) Merge(baseState domain.State, states []domain.State) (domain.State, error) {
	if len(states) == 0 {
		return baseState, nil
	}

	merged := baseState

	consensus, changed, err := mergeKeyed(domain.KeyConsensus, baseState, states)
	if err != nil {
		return baseState, err
	}
	if changed {
		merged = domain.With(merged, domain.KeyConsensus, consensus)
	}

	dists, changed, err := mergeKeyed(domain.KeyDistributions, baseState, states)
	if err != nil {
		return baseState, err
	}
	if changed {
		merged = domain.With(merged, domain.KeyDistributions, dists)
	}

	baseRankings, _ := domain.Get(baseState, domain.KeyRankings)
	owner := -1
	for i, s := range states {
		rankings, ok := domain.Get(s, domain.KeyRankings)
		if !ok || reflect.DeepEqual(rankings, baseRankings) {
			continue
		}
		if owner >= 0 {
			return baseState, fmt.Errorf("%w: rankings rewritten by executables %d and %d", ErrMergeConflict, owner, i)
		}
		owner = i
		merged = domain.With(merged, domain.KeyRankings, rankings)
	}

	return merged, nil
}

// mergeKeyed folds the per-executable maps stored under key into the base
// map. It reports whether anything was produced.
func mergeKeyed[V any](key domain.Key[map[string]V], base domain.State, states []domain.State) (map[string]V, bool, error) {
	baseMap, _ := domain.Get(base, key)
	out := make(map[string]V, len(baseMap))
	for k, v := range baseMap {
		out[k] = v
	}

	owners := make(map[string]int)
	for i, s := range states {
		m, ok := domain.Get(s, key)
		if !ok {
			continue
		}
		for k, v := range m {
			if bv, inBase := baseMap[k]; inBase && reflect.DeepEqual(bv, v) {
				continue
			}
			if j, dup := owners[k]; dup {
				return nil, false, fmt.Errorf("%w: result %q produced by executables %d and %d", ErrMergeConflict, k, j, i)
			}
			owners[k] = i
			out[k] = v
		}
	}
	return out, len(owners) > 0, nil
}
