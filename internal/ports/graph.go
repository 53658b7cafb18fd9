package ports

import (
	"context"

	"github.com/ahrav/go-consensus/internal/domain"
)

// MergeStrategy defines how multiple states from parallel executions
// should be combined into a single output state.
type MergeStrategy interface {
	// Merge combines multiple states from parallel executions into a single state.
	// The baseState parameter is the original input state to the layer.
	// The states parameter holds the results in executable declaration order,
	// not completion order.
	// The implementation must be deterministic: given the same inputs in the
	// same order, it must produce the same output.
	// The returned state should be a new instance; do not modify input states.
	Merge(baseState domain.State, states []domain.State) (domain.State, error)
}

// Executable defines the core contract for components that can run as part
// of an aggregation plan: single units, sequential pipelines and parallel
// layers.
type Executable interface {
	// Execute processes the given state and returns the updated state.
	// The context allows for cancellation and timeout control during execution.
	// Execute must be safe for concurrent use when called on different states.
	//
	// The input state is immutable and MUST NOT be modified. Multiple
	// executables may receive the same state instance concurrently when
	// running inside a layer.
	Execute(ctx context.Context, state domain.State) (domain.State, error)

	// ID returns the unique string identifier for this executable component.
	ID() string
}

// Pipeline defines a sequential execution container that runs multiple
// executables in strict order, where each executable's output becomes
// the input for the next.
type Pipeline interface {
	Executable

	// Add appends an executable to the end of this pipeline.
	// Add returns an error if the executable is nil or its ID is already used.
	Add(exec Executable) error

	// Executables returns the ordered list of executables in this pipeline.
	// The returned slice should not be modified by callers.
	Executables() []Executable
}

// Layer defines a parallel execution container that runs independent
// executables concurrently on the same input state.
type Layer interface {
	Executable

	// Add includes an executable in this layer's parallel execution group.
	// Add returns an error if the executable is nil or its ID is already used.
	Add(exec Executable) error

	// Executables returns all executables of the layer in declaration order.
	// The returned slice should not be modified by callers.
	Executables() []Executable

	// SetMergeStrategy configures how parallel execution results are combined.
	// The merge strategy must be set before Execute is called.
	SetMergeStrategy(strategy MergeStrategy)
}
