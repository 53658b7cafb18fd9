package domain

import (
	"fmt"
	"math"
)

// Entry is a single element of a ranking: an element id and the value the
// ranking assigns to it. Smaller values are better.
type Entry struct {
	// ID identifies the element. It is unique within one Ranking.
	ID string `json:"id" yaml:"id"`

	// Value is the element's rank or normalized score in this ranking.
	Value float64 `json:"value" yaml:"value"`
}

// Ranking is one source ordering of elements given as id→value pairs.
// Entries keep the order in which the source listed them; that order feeds
// the first-seen element registry and nothing else.
//
// Rankings are treated as immutable once constructed. Different rankings
// may cover different, overlapping sets of elements.
type Ranking struct {
	// Name labels the ranking in logs and errors (usually the source file).
	Name string `json:"name" yaml:"name"`

	// Entries holds the ranking's elements in source order.
	Entries []Entry `json:"entries" yaml:"entries"`
}

// NewRanking builds a Ranking and validates it.
// It returns an *ElementError wrapping ErrEmptyElementID,
// ErrDuplicateElement or ErrInvalidValue when an entry is unusable.
func NewRanking(name string, entries []Entry) (Ranking, error) {
	r := Ranking{Name: name, Entries: append([]Entry(nil), entries...)}
	if err := r.Validate(); err != nil {
		return Ranking{}, err
	}
	return r, nil
}

// RankingFromSlices builds a Ranking from parallel id and value slices,
// which is the shape most readers produce.
func RankingFromSlices(name string, ids []string, values []float64) (Ranking, error) {
	if len(ids) != len(values) {
		ve := NewValidationError("ranking " + name)
		ve.AddError(fmt.Sprintf("ids (%d) and values (%d) differ in length", len(ids), len(values)))
		return Ranking{}, ve
	}
	entries := make([]Entry, len(ids))
	for i := range ids {
		entries[i] = Entry{ID: ids[i], Value: values[i]}
	}
	return NewRanking(name, entries)
}

// Validate checks the ranking invariants: non-empty unique ids and finite
// values.
func (r Ranking) Validate() error {
	seen := make(map[string]struct{}, len(r.Entries))
	for _, e := range r.Entries {
		if e.ID == "" {
			return &ElementError{Ranking: r.Name, ElementID: e.ID, Err: ErrEmptyElementID}
		}
		if _, dup := seen[e.ID]; dup {
			return &ElementError{Ranking: r.Name, ElementID: e.ID, Err: ErrDuplicateElement}
		}
		if math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
			return &ElementError{Ranking: r.Name, ElementID: e.ID, Err: ErrInvalidValue}
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

// Len returns the number of elements in the ranking.
func (r Ranking) Len() int { return len(r.Entries) }

// Lookup returns the ranking's value for id with a linear scan.
// Hot paths go through a Collection, which indexes every ranking once.
func (r Ranking) Lookup(id string) (float64, bool) {
	for _, e := range r.Entries {
		if e.ID == id {
			return e.Value, true
		}
	}
	return 0, false
}

// WithValues returns a copy of r whose values are replaced by fn(value).
// Ids and order are preserved.
func (r Ranking) WithValues(fn func(float64) float64) Ranking {
	out := Ranking{Name: r.Name, Entries: make([]Entry, len(r.Entries))}
	for i, e := range r.Entries {
		out.Entries[i] = Entry{ID: e.ID, Value: fn(e.Value)}
	}
	return out
}
