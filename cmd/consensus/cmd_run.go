package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-consensus/infrastructure/middleware"
	"github.com/ahrav/go-consensus/infrastructure/rankio"
	"github.com/ahrav/go-consensus/infrastructure/units"
	"github.com/ahrav/go-consensus/internal/application"
	"github.com/ahrav/go-consensus/internal/domain"
)

// runOptions holds the flags of the run command.
type runOptions struct {
	methods       []string
	plan          string
	damping       float64
	p             float64
	field         string
	tres          bool
	skipLines     int
	normalize     bool
	primary       int
	top           int
	format        string
	outputDir     string
	metricsFile   string
	tolerance     float64
	maxIterations int
	fixed         bool
	parallelism   int
}

// namedResult is one consensus ranking with the name used for its output.
type namedResult struct {
	name   string
	result domain.AggregateRanking
}

func newRunCommand(global *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [flags] <ranking-file> [ranking-file ...]",
		Short: "Aggregate ranking files into consensus rankings",
		Long: `Read one ranking per file and aggregate them.

Files ending in .parquet are read as Parquet with id, rank and score columns;
anything else is read as tab-separated rank, id, score rows. Use --tres to
skip the preamble of TRES result files.

Each method (or each aggregation unit of a --plan) produces one output,
written to <output-dir>/<name><ext> or to stdout when no directory is set.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyEnvDefaults(cmd, opts, global.env)
			return runAggregation(cmd.Context(), cmd.OutOrStdout(), global, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&opts.methods, "method", "m", []string{"mc3"}, "Aggregation method; repeat or comma-separate for several")
	f.StringVar(&opts.plan, "plan", "", "YAML plan file; replaces --method, --normalize, --primary and --top")
	f.Float64Var(&opts.damping, "damping", domain.DefaultDamping, "Damping for Markov-chain methods, in [0, 1)")
	f.Float64Var(&opts.p, "p", 1, "Exponent for the borda_pnorm method, > 0")
	f.StringVar(&opts.field, "field", string(rankio.FieldRank), "Value column to aggregate: rank or score")
	f.BoolVar(&opts.tres, "tres", false, "Input files are TRES results; skip their preamble")
	f.IntVar(&opts.skipLines, "skip-lines", 0, "Physical lines to skip at the top of each TSV file")
	f.BoolVar(&opts.normalize, "normalize", false, "Min-max normalize and reverse values first (for larger-is-better scores)")
	f.IntVar(&opts.primary, "primary", 0, "Aggregate only the first N ranking files (0 means all)")
	f.IntVar(&opts.top, "top", 0, "Keep only the first K entries of each result (0 keeps all)")
	f.StringVarP(&opts.format, "format", "f", string(rankio.FormatIDs), "Output format: ids, tsv or parquet")
	f.StringVarP(&opts.outputDir, "output-dir", "o", "", "Directory for result files; stdout when empty")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics in text format to this file")
	f.Float64Var(&opts.tolerance, "tolerance", units.DefaultTolerance, "Power-iteration L1 convergence tolerance")
	f.IntVar(&opts.maxIterations, "max-iterations", units.DefaultMaxIterations, "Power-iteration step cap")
	f.BoolVar(&opts.fixed, "fixed", false, "Run exactly --max-iterations power-iteration steps")
	f.IntVar(&opts.parallelism, "parallelism", 0, "Concurrency bound for matrix rows and methods (0 means GOMAXPROCS)")

	return cmd
}

// applyEnvDefaults fills every flag the user did not set from env.
func applyEnvDefaults(cmd *cobra.Command, opts *runOptions, env envConfig) {
	changed := cmd.Flags().Changed
	if !changed("method") && len(env.Methods) > 0 {
		opts.methods = env.Methods
	}
	if !changed("damping") {
		opts.damping = env.Damping
	}
	if !changed("p") {
		opts.p = env.P
	}
	if !changed("field") && env.Field != "" {
		opts.field = env.Field
	}
	if !changed("format") && env.Format != "" {
		opts.format = env.Format
	}
	if !changed("output-dir") {
		opts.outputDir = env.OutputDir
	}
	if !changed("parallelism") {
		opts.parallelism = env.Parallelism
	}
	if !changed("tolerance") && env.Tolerance > 0 {
		opts.tolerance = env.Tolerance
	}
	if !changed("max-iterations") && env.MaxIterations > 0 {
		opts.maxIterations = env.MaxIterations
	}
}

func runAggregation(ctx context.Context, stdout io.Writer, global *globalOptions, opts *runOptions, files []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := global.logger

	field, err := rankio.ParseField(opts.field)
	if err != nil {
		return err
	}
	format, err := rankio.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	if format == rankio.FormatParquet && opts.outputDir == "" {
		return errors.New("parquet output needs --output-dir")
	}
	writer, err := rankio.NewWriter(format)
	if err != nil {
		return err
	}

	tsvOpts := rankio.TSVOptions{Field: field, SkipLines: opts.skipLines}
	if opts.tres {
		tsvOpts.SkipLines = rankio.TRESHeaderLines
	}
	rankings := make([]domain.Ranking, 0, len(files))
	for _, path := range files {
		r, err := rankio.ReadFile(ctx, path, tsvOpts)
		if err != nil {
			return err
		}
		log.Debug().Str("file", path).Str("ranking", r.Name).Int("elements", r.Len()).Msg("ranking loaded")
		rankings = append(rankings, r)
	}

	engineOpts := []application.Option{
		application.WithLogger(log),
		application.WithParallelism(opts.parallelism),
		application.WithSolverOptions(units.SolverOptions{
			Tolerance:     opts.tolerance,
			MaxIterations: opts.maxIterations,
			Fixed:         opts.fixed,
		}),
	}
	var registry *prometheus.Registry
	if opts.metricsFile != "" {
		registry = prometheus.NewRegistry()
		engineOpts = append(engineOpts, application.WithMetrics(middleware.NewPrometheusMetrics(registry)))
	}
	engine, err := application.NewEngine(engineOpts...)
	if err != nil {
		return err
	}

	var results []namedResult
	if opts.plan != "" {
		results, err = runPlanFile(ctx, engine, opts.plan, rankings)
	} else {
		results, err = runMethods(ctx, engine, opts, rankings)
	}
	if err != nil {
		return err
	}

	if opts.outputDir != "" {
		if err := os.MkdirAll(opts.outputDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	for _, nr := range results {
		if opts.outputDir == "" {
			fmt.Fprintf(stdout, "# %s\n", nr.name)
			if err := writer.WriteRanking(ctx, stdout, nr.result); err != nil {
				return err
			}
			continue
		}
		path, err := writer.WriteFile(ctx, opts.outputDir, nr.name, nr.result)
		if err != nil {
			return err
		}
		log.Info().Str("method", nr.result.Method).Str("path", path).Int("elements", nr.result.Len()).Msg("consensus written")
	}

	if registry != nil {
		if err := prometheus.WriteToTextfile(opts.metricsFile, registry); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

// runMethods aggregates with every --method after the optional normalize
// and primary-ranking steps. Results keep the order the methods were given.
func runMethods(ctx context.Context, engine *application.Engine, opts *runOptions, rankings []domain.Ranking) ([]namedResult, error) {
	if len(opts.methods) == 0 {
		return nil, errors.New("no methods given; use --method or --plan")
	}
	methods := make([]domain.Method, 0, len(opts.methods))
	for _, name := range opts.methods {
		m, err := application.ParseMethod(name, opts.p, opts.damping)
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}

	if opts.primary > 0 && opts.primary < len(rankings) {
		rankings = rankings[:opts.primary]
	}
	if opts.normalize {
		normalized := make([]domain.Ranking, len(rankings))
		for i, r := range rankings {
			normalized[i] = units.Normalize(r, true)
		}
		rankings = normalized
	}

	byKind, err := engine.AggregateAll(ctx, rankings, methods...)
	if err != nil {
		return nil, err
	}
	out := make([]namedResult, len(methods))
	for i, m := range methods {
		result := byKind[m.Kind]
		if opts.top > 0 {
			result = result.Top(opts.top)
		}
		out[i] = namedResult{name: string(m.Kind), result: result}
	}
	return out, nil
}

// runPlanFile executes a YAML plan and returns its results in plan order,
// named by unit ID.
func runPlanFile(ctx context.Context, engine *application.Engine, path string, rankings []domain.Ranking) ([]namedResult, error) {
	plan, err := engine.LoadPlan(ctx, path)
	if err != nil {
		return nil, err
	}
	res, err := engine.RunPlan(ctx, plan, rankings)
	if err != nil {
		return nil, err
	}
	out := make([]namedResult, 0, len(res.Order))
	for _, id := range res.Order {
		out = append(out, namedResult{name: id, result: res.Consensus[id]})
	}
	return out, nil
}
