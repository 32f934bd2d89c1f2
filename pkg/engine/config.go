package engine

import (
	"flag"
	"fmt"
	"os"

	"github.com/grafana/dskit/flagext"
	"gopkg.in/yaml.v3"

	"github.com/grafana/lazyframe/pkg/engine/internal/executor"
	"github.com/grafana/lazyframe/pkg/engine/internal/planner/optimizer"
)

// Config configures the optimizer and the executor of an [Engine].
type Config struct {
	Optimizer optimizer.Config `yaml:"optimizer"`
	Executor  executor.Config  `yaml:"executor"`
}

// RegisterFlags registers flags without a prefix.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("", f)
}

// RegisterFlagsWithPrefix registers flags with the given prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	cfg.Optimizer.RegisterFlagsWithPrefix(prefix+"optimizer.", f)
	cfg.Executor.RegisterFlagsWithPrefix(prefix+"executor.", f)
}

// Validate returns an error if cfg cannot be used to run queries.
func (cfg *Config) Validate() error {
	if cfg.Optimizer.MaxIterations <= 0 {
		return fmt.Errorf("invalid optimizer max iterations: must be greater than 0, got %d", cfg.Optimizer.MaxIterations)
	}
	if cfg.Executor.Concurrency < 0 {
		return fmt.Errorf("invalid executor concurrency: must not be negative, got %d", cfg.Executor.Concurrency)
	}
	return nil
}

// DefaultConfig returns the configuration used when no flag or file
// overrides it.
func DefaultConfig() Config {
	var cfg Config
	flagext.DefaultValues(&cfg)
	return cfg
}

// LoadConfig reads a YAML configuration file. Settings missing from the
// file keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}
