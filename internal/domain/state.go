// Package domain contains pure, dependency-free domain models and types
// for the rank-aggregation engine.
package domain

import (
	"fmt"
	"maps"
	"reflect"
	"time"
)

// Key represents a type-safe generic key for accessing values in State.
// The type parameter T ensures compile-time type safety when getting and
// setting values, eliminating the need for runtime type assertions.
type Key[T any] struct{ name string }

// NewKey creates a new Key with the specified name and type.
// This function is provided for creating keys outside of the domain package.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Predefined state keys used throughout an aggregation run.
// Each key is strongly typed to ensure type safety at compile time.
var (
	// KeyRankings stores the input rankings being aggregated. Preprocessing
	// units replace it; aggregation units only read it.
	KeyRankings = Key[[]Ranking]{"rankings"}

	// KeyConsensus stores every aggregate ranking produced so far, keyed by
	// the id of the unit that produced it. Aggregate results never flow
	// back into KeyRankings.
	KeyConsensus = Key[map[string]AggregateRanking]{"consensus"}

	// KeyDistributions stores the stationary distributions computed by
	// Markov units, keyed by unit id, for inspection and testing.
	KeyDistributions = Key[map[string]StationaryDistribution]{"distributions"}

	// Execution context keys for tracking metadata across plan execution.

	// KeyPlanID stores the identifier of the plan being executed.
	KeyPlanID = Key[string]{"execution.plan_id"}

	// KeyExecutionID stores a unique identifier for this specific execution
	// instance, useful for tracing and log correlation.
	KeyExecutionID = Key[string]{"execution.execution_id"}
)

// deepCopyValue creates a deep copy of a value to ensure true immutability.
// It handles slices, maps, and other reference types that would otherwise
// allow external modification of State data.
func deepCopyValue(value any) any {
	if value == nil {
		return nil
	}

	// time.Time is immutable and can be returned directly.
	if val, ok := value.(time.Time); ok {
		return val
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Slice:
		newSlice := reflect.MakeSlice(v.Type(), v.Len(), v.Cap())
		for i := 0; i < v.Len(); i++ {
			newSlice.Index(i).Set(reflect.ValueOf(deepCopyValue(v.Index(i).Interface())))
		}
		return newSlice.Interface()

	case reflect.Map:
		newMap := reflect.MakeMap(v.Type())
		for _, key := range v.MapKeys() {
			copiedKey := deepCopyValue(key.Interface())
			copiedValue := deepCopyValue(v.MapIndex(key).Interface())
			newMap.SetMapIndex(reflect.ValueOf(copiedKey), reflect.ValueOf(copiedValue))
		}
		return newMap.Interface()

	case reflect.Ptr:
		if v.IsNil() {
			return v.Interface()
		}
		newPtr := reflect.New(v.Elem().Type())
		newPtr.Elem().Set(reflect.ValueOf(deepCopyValue(v.Elem().Interface())))
		return newPtr.Interface()

	case reflect.Struct:
		// This performs a shallow copy for unexported fields but deep copies
		// exported fields.
		newStruct := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			if newStruct.Field(i).CanSet() {
				newStruct.Field(i).Set(reflect.ValueOf(deepCopyValue(v.Field(i).Interface())))
			}
		}
		return newStruct.Interface()

	default:
		// Primitive types are returned as-is since they are copied by value.
		return value
	}
}

// State represents an immutable collection of aggregation data that flows
// through the pipeline. It uses copy-on-write semantics to ensure
// thread-safety and prevent unintended mutations. State is the primary
// data structure for passing information between Units.
type State struct {
	// data holds the key-value pairs that make up the state.
	// It is unexported to maintain immutability guarantees.
	data map[string]any
}

// NewState creates a new empty State.
// The returned State is ready to use and can be safely shared across
// goroutines.
func NewState() State {
	return State{
		data: make(map[string]any),
	}
}

// Get retrieves a value from the State with compile-time type safety.
// It returns the value and a boolean indicating whether the key exists
// and contains a value of the correct type. The returned value is a deep
// copy to maintain immutability.
//
// Example:
//
//	rankings, ok := Get(state, KeyRankings)
//	if !ok {
//	    // handle missing value
//	}
//	// rankings is typed as []Ranking, no type assertion needed
func Get[T any](s State, key Key[T]) (T, bool) {
	var zero T
	value, exists := s.data[key.name]
	if !exists {
		return zero, false
	}

	copied := deepCopyValue(value)
	val, ok := copied.(T)
	return val, ok
}

// GetRaw is a method version of Get that uses a string key.
// For type safety, use the generic Get function instead.
func (s State) GetRaw(keyName string) (any, bool) {
	value, exists := s.data[keyName]
	if !exists {
		return nil, false
	}
	return deepCopyValue(value), true
}

// With creates a new State with the specified key-value pair added or
// updated. It implements copy-on-write semantics, returning a new State
// instance while leaving the original unchanged. This function is the
// primary way to add or update data in a State.
//
// Example:
//
//	newState := With(state, KeyRankings, rankings)
func With[T any](s State, key Key[T], value T) State {
	newData := maps.Clone(s.data)
	newData[key.name] = deepCopyValue(value)
	return State{data: newData}
}

// WithRaw is a method version of With that uses a string key and allows
// chaining. For type safety, use the generic With function instead.
func (s State) WithRaw(keyName string, value any) State {
	newData := maps.Clone(s.data)
	newData[keyName] = deepCopyValue(value)
	return State{data: newData}
}

// WithMultiple creates a new State with multiple key-value pairs added
// or updated. It is more efficient than chaining multiple With calls as
// it performs a single clone operation. The updates map uses string keys
// for flexibility when updating multiple values at once.
//
// Example:
//
//	updates := map[string]any{
//	    KeyPlanID.name:   "default",
//	    KeyRankings.name: []Ranking{{Name: "r1"}},
//	}
//	newState := state.WithMultiple(updates)
func (s State) WithMultiple(updates map[string]any) State {
	newData := maps.Clone(s.data)
	for k, v := range updates {
		newData[k] = deepCopyValue(v)
	}
	return State{data: newData}
}

// Keys returns all keys present in the State.
// The returned slice can be used to iterate over all stored values and
// is safe to modify without affecting the original State.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// String returns a string representation of the State for debugging purposes.
func (s State) String() string {
	return fmt.Sprintf("State%v", s.data)
}

// ExecutionContext contains metadata about the current aggregation run
// that flows through the State during plan execution.
type ExecutionContext struct {
	// PlanID is the identifier of the plan being executed.
	PlanID string

	// ExecutionID is a unique identifier for this specific run.
	ExecutionID string
}

// WithExecutionContext creates a new State with execution context metadata
// included. It should be called at the beginning of plan execution.
func (s State) WithExecutionContext(ctx ExecutionContext) State {
	updates := map[string]any{
		KeyPlanID.name:      ctx.PlanID,
		KeyExecutionID.name: ctx.ExecutionID,
	}
	return s.WithMultiple(updates)
}

// GetExecutionContext extracts execution context metadata from the State.
// It returns false when either field is missing.
func (s State) GetExecutionContext() (ExecutionContext, bool) {
	planID, ok1 := Get(s, KeyPlanID)
	executionID, ok2 := Get(s, KeyExecutionID)
	if !ok1 || !ok2 {
		return ExecutionContext{}, false
	}
	return ExecutionContext{PlanID: planID, ExecutionID: executionID}, true
}

// WithConsensus returns a new State whose KeyConsensus map additionally
// holds result under id. Existing results are kept.
func (s State) WithConsensus(id string, result AggregateRanking) State {
	current, _ := Get(s, KeyConsensus)
	next := make(map[string]AggregateRanking, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[id] = result
	return With(s, KeyConsensus, next)
}

// Consensus returns the aggregate ranking stored under id.
func (s State) Consensus(id string) (AggregateRanking, bool) {
	current, ok := Get(s, KeyConsensus)
	if !ok {
		return AggregateRanking{}, false
	}
	r, ok := current[id]
	return r, ok
}
