package domain

import (
	"fmt"
	"sort"
)

// ScoredElement is one row of an aggregate ranking.
type ScoredElement struct {
	// ID is the element id.
	ID string `json:"id" yaml:"id"`

	// Score is the aggregate score. Smaller is better for every method:
	// the positional statistic for the Borda family and 1 − πᵢ for the
	// Markov family.
	Score float64 `json:"score" yaml:"score"`
}

// AggregateRanking is the consensus produced by one aggregation run,
// ordered best-first (ascending score). Equal scores keep the element
// registry's first-seen order, so the ordering is reproducible bit for bit.
type AggregateRanking struct {
	// Method names the aggregation that produced the ranking.
	Method string `json:"method" yaml:"method"`

	// Entries holds the elements best-first.
	Entries []ScoredElement `json:"entries" yaml:"entries"`
}

// RankByScore is the output ranker shared by both method families. ids must
// be in registry order and scores[i] must belong to ids[i]. The sort is
// stable, so ties resolve by registry position.
func RankByScore(method string, ids []string, scores []float64) (AggregateRanking, error) {
	if len(ids) != len(scores) {
		return AggregateRanking{}, fmt.Errorf("%w: %d ids, %d scores", ErrInvalidConfiguration, len(ids), len(scores))
	}
	entries := make([]ScoredElement, len(ids))
	for i := range ids {
		entries[i] = ScoredElement{ID: ids[i], Score: scores[i]}
	}
	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].Score < entries[b].Score
	})
	return AggregateRanking{Method: method, Entries: entries}, nil
}

// Len returns the number of ranked elements.
func (a AggregateRanking) Len() int { return len(a.Entries) }

// IDs returns the element ids best-first.
func (a AggregateRanking) IDs() []string {
	ids := make([]string, len(a.Entries))
	for i, e := range a.Entries {
		ids[i] = e.ID
	}
	return ids
}

// Top returns a copy holding only the first k entries.
// k <= 0 or k >= Len returns a full copy.
func (a AggregateRanking) Top(k int) AggregateRanking {
	n := len(a.Entries)
	if k > 0 && k < n {
		n = k
	}
	out := AggregateRanking{Method: a.Method, Entries: make([]ScoredElement, n)}
	copy(out.Entries, a.Entries[:n])
	return out
}

// Score returns the aggregate score of id.
func (a AggregateRanking) Score(id string) (float64, bool) {
	for _, e := range a.Entries {
		if e.ID == id {
			return e.Score, true
		}
	}
	return 0, false
}

// Position returns the zero-based position of id, or -1.
func (a AggregateRanking) Position(id string) int {
	for i, e := range a.Entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}
