package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-consensus/infrastructure/logging"
)

var version = "dev"

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	envFile   string
	logLevel  string
	logFormat string

	env    envConfig
	logger zerolog.Logger
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{logger: logging.Nop()}

	cmd := &cobra.Command{
		Use:   "consensus",
		Short: "Aggregate ranked lists into a consensus ranking",
		Long: `consensus combines several rankings of the same elements into one.

It supports positional Borda methods (median, geometric mean, p-norm) and
Markov-chain methods (MC1, MC2, MC3), run directly or through a YAML plan.`,
		Version:      version,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "Optional dotenv file with CONSENSUS_* defaults")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error or disabled")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: console or json")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		env, err := loadEnvConfig(opts.envFile)
		if err != nil {
			return err
		}
		opts.env = env

		level, format := env.LogLevel, env.LogFormat
		if cmd.Flags().Changed("log-level") {
			level = opts.logLevel
		}
		if cmd.Flags().Changed("log-format") {
			format = opts.logFormat
		}
		logger, err := logging.New(logging.Config{Level: level, Format: format, Output: cmd.ErrOrStderr()})
		if err != nil {
			return err
		}
		opts.logger = logger
		return nil
	}

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newMethodsCommand())

	return cmd
}

func execute() error {
	return newRootCommand().Execute()
}
