package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// envPrefix is the prefix of every environment variable the CLI reads,
// e.g. CONSENSUS_DAMPING.
const envPrefix = "CONSENSUS"

// envConfig holds the defaults for flags that were not set on the command
// line.
type envConfig struct {
	LogLevel      string   `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat     string   `envconfig:"LOG_FORMAT" default:"console"`
	Methods       []string `envconfig:"METHODS" default:"mc3"`
	Damping       float64  `envconfig:"DAMPING" default:"0.05"`
	P             float64  `envconfig:"P" default:"1"`
	Field         string   `envconfig:"FIELD" default:"rank"`
	Format        string   `envconfig:"FORMAT" default:"ids"`
	OutputDir     string   `envconfig:"OUTPUT_DIR"`
	Parallelism   int      `envconfig:"PARALLELISM" default:"0"`
	Tolerance     float64  `envconfig:"TOLERANCE" default:"1e-10"`
	MaxIterations int      `envconfig:"MAX_ITERATIONS" default:"10000"`
}

// loadEnvConfig reads envFile when it exists, without overriding variables
// that are already set, then decodes the CONSENSUS_* variables.
func loadEnvConfig(envFile string) (envConfig, error) {
	var cfg envConfig
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}
