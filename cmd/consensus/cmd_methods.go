package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ahrav/go-consensus/internal/application"
	"github.com/ahrav/go-consensus/internal/domain"
)

// methodDescriptions documents each method kind in the order they are listed.
var methodDescriptions = []struct {
	kind domain.MethodKind
	desc string
}{
	{domain.MethodBordaMedian, "median of the element's values"},
	{domain.MethodBordaGeometricMean, "geometric mean of the element's values"},
	{domain.MethodBordaPNorm, "p-norm mean of the element's values (--p)"},
	{domain.MethodMC1, "walk to any element ranked better in some list (--damping)"},
	{domain.MethodMC2, "walk to elements ranked better in a majority of shared lists"},
	{domain.MethodMC3, "walk with probability proportional to shared lists ranking better"},
}

func newMethodsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List the aggregation methods and their accepted names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			aliases := aliasesByKind()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tMETHOD\tALIASES\tDESCRIPTION")
			for _, m := range methodDescriptions {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					displayName(m.kind), m.kind, strings.Join(aliases[m.kind], ", "), m.desc)
			}
			return tw.Flush()
		},
	}
}

// displayName renders a method kind for people: "borda_geometric_mean"
// becomes "Borda Geometric Mean" and "mc2" becomes "MC2".
func displayName(kind domain.MethodKind) string {
	if kind.IsMarkov() {
		return cases.Upper(language.English).String(string(kind))
	}
	words := strings.ReplaceAll(string(kind), "_", " ")
	return cases.Title(language.English).String(words)
}

// aliasesByKind groups the accepted method names other than the canonical
// one by the kind they resolve to.
func aliasesByKind() map[domain.MethodKind][]string {
	out := make(map[domain.MethodKind][]string)
	for _, name := range application.MethodNames() {
		kind, err := application.ParseMethodKind(name)
		if err != nil || name == string(kind) {
			continue
		}
		out[kind] = append(out[kind], name)
	}
	for _, names := range out {
		sort.Strings(names)
	}
	return out
}
