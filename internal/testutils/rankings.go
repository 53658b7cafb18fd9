// Package testutils provides utilities for testing, including deterministic
// ranking generators. These components are intended for internal use within
// the project's test suites and are not part of the public API.
package testutils

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/ahrav/go-consensus/internal/domain"
)

// RankingSetConfig describes a random set of overlapping rankings.
type RankingSetConfig struct {
	// Rankings is the number of rankings to generate.
	Rankings int

	// Elements is the size of the element universe ("e0", "e1", ...).
	Elements int

	// Coverage is the probability that a ranking holds a given element.
	// Every element still lands in at least one ranking.
	Coverage float64

	// Scores draws values uniformly from [0, 1) instead of assigning rank
	// positions 1..n.
	Scores bool
}

// DefaultRankingSetConfig returns three rankings over twenty elements with
// 80% coverage.
func DefaultRankingSetConfig() RankingSetConfig {
	return RankingSetConfig{Rankings: 3, Elements: 20, Coverage: 0.8}
}

// GenerateRankings builds a reproducible set of rankings from seed.
// Each ranking lists its elements in a random order; with rank values the
// listing order is the rank order.
func GenerateRankings(seed int64, cfg RankingSetConfig) []domain.Ranking {
	rng := rand.New(rand.NewSource(seed))

	members := make([][]int, cfg.Rankings)
	for e := 0; e < cfg.Elements; e++ {
		placed := false
		for k := 0; k < cfg.Rankings; k++ {
			if rng.Float64() < cfg.Coverage {
				members[k] = append(members[k], e)
				placed = true
			}
		}
		if !placed && cfg.Rankings > 0 {
			k := rng.Intn(cfg.Rankings)
			members[k] = append(members[k], e)
		}
	}

	rankings := make([]domain.Ranking, cfg.Rankings)
	for k, elems := range members {
		rng.Shuffle(len(elems), func(i, j int) { elems[i], elems[j] = elems[j], elems[i] })
		entries := make([]domain.Entry, len(elems))
		for pos, e := range elems {
			v := float64(pos + 1)
			if cfg.Scores {
				v = rng.Float64()
			}
			entries[pos] = domain.Entry{ID: ElementName(e), Value: v}
		}
		rankings[k] = domain.Ranking{Name: fmt.Sprintf("ranking-%d", k), Entries: entries}
	}
	return rankings
}

// ElementName returns the id GenerateRankings uses for element i.
func ElementName(i int) string { return fmt.Sprintf("e%d", i) }

// RankingOf builds a ranking that lists ids with rank values 1..n.
func RankingOf(tb testing.TB, name string, ids ...string) domain.Ranking {
	tb.Helper()
	entries := make([]domain.Entry, len(ids))
	for i, id := range ids {
		entries[i] = domain.Entry{ID: id, Value: float64(i + 1)}
	}
	r, err := domain.NewRanking(name, entries)
	if err != nil {
		tb.Fatalf("RankingOf(%q): %v", name, err)
	}
	return r
}

// Shuffled returns a copy of r with its entries listed in a random order.
// Values are unchanged.
func Shuffled(rng *rand.Rand, r domain.Ranking) domain.Ranking {
	out := domain.Ranking{Name: r.Name, Entries: append([]domain.Entry(nil), r.Entries...)}
	rng.Shuffle(len(out.Entries), func(i, j int) { out.Entries[i], out.Entries[j] = out.Entries[j], out.Entries[i] })
	return out
}
