package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur during aggregation operations.
var (
	// ErrNoRankings indicates that an aggregation was requested over an
	// empty list of rankings.
	ErrNoRankings = errors.New("no rankings provided")

	// ErrEmptyElementID indicates that a ranking entry has an empty id.
	ErrEmptyElementID = errors.New("empty element id")

	// ErrDuplicateElement indicates that an element id appears more than
	// once within a single ranking.
	ErrDuplicateElement = errors.New("duplicate element id in ranking")

	// ErrInvalidValue indicates that a ranking value is NaN or infinite.
	ErrInvalidValue = errors.New("value must be a finite number")

	// ErrMissingElementData indicates that no ranking holds a value for an
	// element the engine was asked to aggregate.
	ErrMissingElementData = errors.New("missing element data")

	// ErrNoValues indicates that a positional statistic received an empty
	// value vector.
	ErrNoValues = errors.New("no values to aggregate")

	// ErrNonPositiveInput indicates that a geometric mean or p-norm received
	// a negative value.
	ErrNonPositiveInput = errors.New("non-positive input")

	// ErrInvalidDamping indicates a damping parameter outside [0, 1).
	ErrInvalidDamping = errors.New("damping must be in [0, 1)")

	// ErrDidNotConverge indicates that power iteration collapsed, produced
	// NaN/Inf, or exhausted its iteration cap.
	ErrDidNotConverge = errors.New("stationary distribution did not converge")

	// ErrNotStochastic indicates that a transition matrix row does not sum
	// to one or holds a negative entry.
	ErrNotStochastic = errors.New("matrix is not row-stochastic")

	// ErrUnknownMethod indicates that an aggregation method kind is not
	// one of the supported variants.
	ErrUnknownMethod = errors.New("unknown aggregation method")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// AggregationError represents a failure of one aggregation run.
// It records which method and which pipeline stage failed so callers can
// report the failure without parsing messages.
type AggregationError struct {
	// Method is the aggregation method kind that was running.
	Method MethodKind

	// Stage names the step that failed (e.g. "collect", "build", "solve").
	Stage string

	// Err is the underlying error that caused the failure.
	Err error
}

// Error implements the error interface for AggregationError.
func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregation error: method=%s, stage=%s, err=%v", e.Method, e.Stage, e.Err)
}

// Unwrap returns the underlying error, supporting errors.Is and errors.As.
func (e *AggregationError) Unwrap() error { return e.Err }

// NewAggregationError creates a new AggregationError with the given details.
func NewAggregationError(method MethodKind, stage string, err error) *AggregationError {
	return &AggregationError{
		Method: method,
		Stage:  stage,
		Err:    err,
	}
}

// ElementError attaches the offending element id (and ranking, when known)
// to a data error.
type ElementError struct {
	// Ranking is the name of the ranking that held the element, if any.
	Ranking string

	// ElementID is the element whose data was invalid or missing.
	ElementID string

	// Err is the underlying sentinel error.
	Err error
}

// Error implements the error interface for ElementError.
func (e *ElementError) Error() string {
	if e.Ranking == "" {
		return fmt.Sprintf("element %q: %v", e.ElementID, e.Err)
	}
	return fmt.Sprintf("ranking %q, element %q: %v", e.Ranking, e.ElementID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ElementError) Unwrap() error { return e.Err }

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
