// Package config holds the converter's configuration and loads optional
// column-plan files that bypass schema inference.
package config

import (
	"fmt"
)

// DefaultGroupSize is the default number of rows per row group. Larger
// groups compress better but cost memory, and a row group is the unit of
// random access for readers.
const DefaultGroupSize = 1_000_000

// Config is the converter's full configuration.
type Config struct {
	// Database is the path of the SQLite database to read
	Database string `yaml:"database"`
	// OutDir is the directory parquet files are written into
	OutDir string `yaml:"out_dir"`
	// Tables selects which tables to extract; empty means all user tables
	Tables []string `yaml:"tables,omitempty"`
	// GroupSize is the number of rows per row group
	GroupSize int `yaml:"group_size"`
	// Compression names the output codec (zstd, snappy, gzip, brotli, lz4, none)
	Compression string `yaml:"compression"`
	// PlanFile optionally points at a YAML file of explicit column plans
	PlanFile string `yaml:"plan_file,omitempty"`
	// IncludeSchema additionally extracts the sqlite_schema table itself
	IncludeSchema bool `yaml:"include_schema"`
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`
}

// New returns a Config with defaults applied.
func New(database, outDir string) *Config {
	return &Config{
		Database:    database,
		OutDir:      outDir,
		GroupSize:   DefaultGroupSize,
		Compression: "zstd",
		LogLevel:    "info",
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database path is required")
	}
	if c.OutDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if c.GroupSize < 1 {
		return fmt.Errorf("group_size must be at least 1")
	}
	return nil
}
