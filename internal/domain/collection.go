package domain

// ElementIDs returns the ordered union of element ids across rankings in
// first-seen order: every id of the first ranking in its listed order, then
// the ids the second ranking adds, and so on.
//
// The order is only an indexing order for matrix rows/columns and output
// tie-breaks; it is not a result ordering.
// Complexity: O(total entries) using a membership set.
func ElementIDs(rankings []Ranking) []string {
	total := 0
	for _, r := range rankings {
		total += len(r.Entries)
	}
	seen := make(map[string]struct{}, total)
	ids := make([]string, 0, total)
	for _, r := range rankings {
		for _, e := range r.Entries {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// ValuesFor returns the values associated with id across the rankings that
// contain it, in ranking order. The result is empty when no ranking holds
// id; callers treat that as ErrMissingElementData.
func ValuesFor(rankings []Ranking, id string) []float64 {
	values := make([]float64, 0, len(rankings))
	for _, r := range rankings {
		if v, ok := r.Lookup(id); ok {
			values = append(values, v)
		}
	}
	return values
}

// Collection is the validated, indexed form of a list of rankings used by
// one aggregation run. It owns the element registry (ids in first-seen
// order) and an id→value index per ranking so pairwise comparisons are
// O(1) per ranking.
//
// A Collection is read-only after construction and safe for concurrent
// readers, which is what lets matrix rows be filled in parallel.
type Collection struct {
	rankings []Ranking
	ids      []string
	index    map[string]int
	lookup   []map[string]float64
}

// NewCollection validates rankings and builds the registry and indexes.
// It returns ErrNoRankings for an empty list and the first ranking
// validation error otherwise.
func NewCollection(rankings []Ranking) (*Collection, error) {
	if len(rankings) == 0 {
		return nil, ErrNoRankings
	}
	for _, r := range rankings {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}

	ids := ElementIDs(rankings)
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	lookup := make([]map[string]float64, len(rankings))
	for k, r := range rankings {
		m := make(map[string]float64, len(r.Entries))
		for _, e := range r.Entries {
			m[e.ID] = e.Value
		}
		lookup[k] = m
	}

	return &Collection{
		rankings: append([]Ranking(nil), rankings...),
		ids:      ids,
		index:    index,
		lookup:   lookup,
	}, nil
}

// Primary returns a collection restricted to the first k rankings.
// k <= 0 or k >= the number of rankings returns c itself.
func (c *Collection) Primary(k int) (*Collection, error) {
	if k <= 0 || k >= len(c.rankings) {
		return c, nil
	}
	return NewCollection(c.rankings[:k])
}

// IDs returns a copy of the element registry in first-seen order.
func (c *Collection) IDs() []string { return append([]string(nil), c.ids...) }

// Size returns the number of distinct elements (N).
func (c *Collection) Size() int { return len(c.ids) }

// NumRankings returns the number of input rankings.
func (c *Collection) NumRankings() int { return len(c.rankings) }

// ID returns the element id at registry position i.
func (c *Collection) ID(i int) string { return c.ids[i] }

// Index returns the registry position of id.
func (c *Collection) Index(id string) (int, bool) {
	i, ok := c.index[id]
	return i, ok
}

// Value returns ranking k's value for id, if ranking k contains it.
func (c *Collection) Value(k int, id string) (float64, bool) {
	v, ok := c.lookup[k][id]
	return v, ok
}

// Values returns the ValueVector for id in ranking order. An element that
// no ranking holds yields an *ElementError wrapping ErrMissingElementData.
func (c *Collection) Values(id string) ([]float64, error) {
	values := make([]float64, 0, len(c.lookup))
	for _, m := range c.lookup {
		if v, ok := m[id]; ok {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return nil, &ElementError{ElementID: id, Err: ErrMissingElementData}
	}
	return values, nil
}

// Rankings returns a copy of the underlying ranking list.
func (c *Collection) Rankings() []Ranking { return append([]Ranking(nil), c.rankings...) }
