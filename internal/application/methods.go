package application

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-consensus/internal/domain"
)

// maxSuggestionDistance is the largest edit distance for which an unknown
// method name gets a suggestion.
const maxSuggestionDistance = 3

// methodAliases maps every accepted method name to its kind. Canonical
// kind names are always accepted; the short forms are what people type.
var methodAliases = map[string]domain.MethodKind{
	"borda_median":         domain.MethodBordaMedian,
	"median":               domain.MethodBordaMedian,
	"borda_geometric_mean": domain.MethodBordaGeometricMean,
	"geometric_mean":       domain.MethodBordaGeometricMean,
	"geomean":              domain.MethodBordaGeometricMean,
	"borda_pnorm":          domain.MethodBordaPNorm,
	"pnorm":                domain.MethodBordaPNorm,
	"mc1":                  domain.MethodMC1,
	"mc2":                  domain.MethodMC2,
	"mc3":                  domain.MethodMC3,
}

// MethodNames returns every accepted method name, sorted.
func MethodNames() []string {
	names := make([]string, 0, len(methodAliases))
	for name := range methodAliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseMethodKind resolves a method name, ignoring case and treating '-' as
// '_'. Unknown names fail with domain.ErrUnknownMethod and, when a close
// match exists, a "did you mean" hint.
func ParseMethodKind(name string) (domain.MethodKind, error) {
	key := strings.ReplaceAll(cases.Fold().String(strings.TrimSpace(name)), "-", "_")
	if kind, ok := methodAliases[key]; ok {
		return kind, nil
	}
	if hint := SuggestMethod(key); hint != "" {
		return "", fmt.Errorf("%w: %q (did you mean %q?)", domain.ErrUnknownMethod, name, hint)
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownMethod, name)
}

// ParseMethod resolves name and attaches the payload its kind needs:
// p for borda_pnorm, damping for the Markov kinds. The result is validated.
func ParseMethod(name string, p, damping float64) (domain.Method, error) {
	kind, err := ParseMethodKind(name)
	if err != nil {
		return domain.Method{}, err
	}

	var method domain.Method
	switch {
	case kind == domain.MethodBordaPNorm:
		method = domain.PNorm(p)
	case kind.IsMarkov():
		method = domain.MarkovChain(kind, damping)
	default:
		method = domain.Method{Kind: kind}
	}
	if err := method.Validate(); err != nil {
		return domain.Method{}, err
	}
	return method, nil
}

// SuggestMethod returns the accepted name closest to name by Levenshtein
// distance, or "" when nothing is within maxSuggestionDistance. Ties go to
// the alphabetically first name.
func SuggestMethod(name string) string {
	best, bestDist := "", maxSuggestionDistance+1
	for _, candidate := range MethodNames() {
		if d := levenshtein.ComputeDistance(name, candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}
