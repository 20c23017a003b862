package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"merkle-index/internal/hash"
	"merkle-index/internal/scanner"
	"merkle-index/internal/telemetry"
	"merkle-index/internal/walker"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Batch bounds the work per scanner tick in each phase.
type Batch struct {
	Directories  int `yaml:"directories"`
	Paths        int `yaml:"paths"`
	Simple       int `yaml:"simple"`
	Hierarchical int `yaml:"hierarchical"`
}

type Config struct {
	Exclude             []string         `yaml:"exclude"`
	CompositeExtensions []string         `yaml:"composite_extensions"`
	HashAlgorithm       string           `yaml:"hash_algorithm"`
	OutputFile          string           `yaml:"output_file"`
	StateDir            string           `yaml:"state_dir"`
	TickInterval        time.Duration    `yaml:"tick_interval"`
	Batch               Batch            `yaml:"batch"`
	LogLevel            string           `yaml:"log_level"`
	Telemetry           telemetry.Config `yaml:"telemetry"`
}

func DefaultConfig() *Config {
	defaults := scanner.DefaultBatchSizes()
	return &Config{
		Exclude: []string{
			".git/",
			".svn/",
			"node_modules/",
			"vendor/",
			"__pycache__/",
			"Library/",
			"Temp/",
			"*.tmp",
			"*.swp",
			"*.log",
			"*.meta",
			".DS_Store",
			"Thumbs.db",
		},
		CompositeExtensions: append([]string(nil), walker.DefaultCompositeExtensions...),
		HashAlgorithm:       string(hash.SHA256),
		StateDir:            ".merkle-index",
		TickInterval:        0,
		Batch: Batch{
			Directories:  defaults.Directories,
			Paths:        defaults.Paths,
			Simple:       defaults.Simple,
			Hierarchical: defaults.Hierarchical,
		},
		LogLevel:  "info",
		Telemetry: telemetry.DefaultConfig(),
	}
}

// LoadConfig reads a YAML config. A missing file yields the defaults; keys
// absent from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	// An explicit empty list in the file decodes to nil
	if cfg.Exclude == nil {
		cfg.Exclude = []string{}
	}
	if cfg.CompositeExtensions == nil {
		cfg.CompositeExtensions = []string{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := hash.New(hash.Algorithm(c.HashAlgorithm)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Batch.Directories <= 0 || c.Batch.Paths <= 0 || c.Batch.Simple <= 0 || c.Batch.Hierarchical <= 0 {
		return fmt.Errorf("%w: batch sizes must be positive", ErrInvalidConfig)
	}
	if c.TickInterval < 0 {
		return fmt.Errorf("%w: tick_interval must not be negative", ErrInvalidConfig)
	}
	if _, err := c.Level(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for _, ext := range c.CompositeExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("%w: composite extension %q must start with a dot", ErrInvalidConfig, ext)
		}
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return level, nil
}

// BatchSizes converts Batch for the scanner.
func (c *Config) BatchSizes() scanner.BatchSizes {
	return scanner.BatchSizes{
		Directories:  c.Batch.Directories,
		Paths:        c.Batch.Paths,
		Simple:       c.Batch.Simple,
		Hierarchical: c.Batch.Hierarchical,
	}
}
