// Package config loads and validates the gutensearch configuration.
//
// Configuration is a single YAML document with one section per concern
// (server, datalake, gutenberg, activemq, cluster, index, search,
// replication, logging). Every section applies defaults through
// SetDefaults and checks itself through Validate. String values support
// ${VAR}, ${VAR:-default} and $VAR environment expansion, and a .env file
// next to the process is honored when present.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/gutensearch/pkg/guten"
)

// Config is the root configuration shared by every service role.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Datalake    DatalakeConfig    `yaml:"datalake"`
	Gutenberg   GutenbergConfig   `yaml:"gutenberg"`
	ActiveMQ    ActiveMQConfig    `yaml:"activemq"`
	Cluster     ClusterConfig     `yaml:"cluster"`
	Index       IndexConfig       `yaml:"index"`
	Search      SearchConfig      `yaml:"search"`
	Replication ReplicationConfig `yaml:"replication"`
}

// Load reads, expands and validates the configuration file at path.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	// Best effort: a missing .env file is not an error.
	_ = godotenv.Load()

	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", guten.ErrConfig, path, err)
		}
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", guten.ErrConfig, path, err)
		}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", guten.ErrConfig, err)
	}
	return cfg, nil
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Logging.SetDefaults()
	c.Datalake.SetDefaults()
	c.Gutenberg.SetDefaults()
	c.ActiveMQ.SetDefaults()
	c.Cluster.SetDefaults()
	c.Index.SetDefaults()
	c.Search.SetDefaults()
	c.Replication.SetDefaults()
}

// Validate checks every section and wraps failures with the section name.
func (c *Config) Validate() error {
	sections := []struct {
		name     string
		validate func() error
	}{
		{"server", c.Server.Validate},
		{"logging", c.Logging.Validate},
		{"datalake", c.Datalake.Validate},
		{"gutenberg", c.Gutenberg.Validate},
		{"activemq", c.ActiveMQ.Validate},
		{"cluster", c.Cluster.Validate},
		{"index", c.Index.Validate},
		{"search", c.Search.Validate},
		{"replication", c.Replication.Validate},
	}
	for _, s := range sections {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// LoggingConfig configures the process-wide logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level,omitempty"`

	// Format is "simple" (default) or "verbose".
	Format string `yaml:"format,omitempty"`

	// File is the log file path; empty logs to stderr.
	File string `yaml:"file,omitempty"`
}

// SetDefaults applies default values.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

// Validate checks the logging configuration.
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("invalid level %q (valid: debug, info, warn, error)", c.Level)
	}
}
