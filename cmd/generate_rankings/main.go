package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/ahrav/go-consensus/infrastructure/rankio"
	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/testutils"
)

func main() {
	defaults := testutils.DefaultRankingSetConfig()
	var (
		rankings  = flag.Int("rankings", defaults.Rankings, "Number of rankings to generate")
		elements  = flag.Int("elements", defaults.Elements, "Size of the element universe")
		coverage  = flag.Float64("coverage", defaults.Coverage, "Probability that a ranking holds a given element")
		scores    = flag.Bool("scores", false, "Draw uniform scores instead of rank positions")
		seed      = flag.Int64("seed", 0, "Random seed; 0 uses the current time")
		outputDir = flag.String("output", "testdata/rankings", "Output directory")
		format    = flag.String("format", "tsv", "File format: tsv or parquet")
	)
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	if *format != "tsv" && *format != "parquet" {
		log.Fatalf("Unknown format %q (want tsv or parquet)", *format)
	}

	cfg := testutils.RankingSetConfig{
		Rankings: *rankings,
		Elements: *elements,
		Coverage: *coverage,
		Scores:   *scores,
	}
	set := testutils.GenerateRankings(*seed, cfg)

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	field := rankio.FieldRank
	if *scores {
		field = rankio.FieldScore
	}
	for _, r := range set {
		path := filepath.Join(*outputDir, r.Name+"."+*format)
		if err := writeRanking(path, *format, r, field); err != nil {
			log.Fatalf("Failed to write %s: %v", path, err)
		}
	}

	fmt.Printf("Generated rankings:\n")
	fmt.Printf("- Directory: %s\n", *outputDir)
	fmt.Printf("- Seed: %d\n", *seed)
	fmt.Printf("- Rankings: %d over %d elements\n", len(set), cfg.Elements)
	fmt.Printf("- Value column: %s\n", field)
}

func writeRanking(path, format string, r domain.Ranking, field rankio.Field) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if format == "parquet" {
		err = rankio.WriteRankingParquet(f, r, field)
	} else {
		err = rankio.WriteRankingTSV(f, r)
	}
	if err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
