package domain

import "context"

// Aggregator defines the interface for fusing several input rankings into
// one consensus ranking. Implementations cover the Borda (positional) and
// Markov-chain families.
type Aggregator interface {
	// Aggregate fuses rankings into an AggregateRanking ordered best-first.
	// Rankings may cover different, overlapping element sets.
	//
	// Returns an error (and no partial result) when:
	//   - rankings is empty (ErrNoRankings)
	//   - a ranking violates its invariants (ErrDuplicateElement, ErrInvalidValue)
	//   - a statistic receives unusable data (ErrNonPositiveInput)
	//   - the stationary solver fails (ErrDidNotConverge)
	//
	// Example:
	//
	//	r1, _ := NewRanking("a", []Entry{{"x", 1}, {"y", 2}})
	//	r2, _ := NewRanking("b", []Entry{{"y", 1}, {"x", 2}})
	//	consensus, err := aggregator.Aggregate(ctx, []Ranking{r1, r2})
	Aggregate(ctx context.Context, rankings []Ranking) (AggregateRanking, error)
}
