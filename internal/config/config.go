// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

// Package config loads and validates the Mercatus configuration.
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, an optional YAML config file, and
// built-in defaults. The resulting Config struct is constructed once in main
// and injected into each component; there is no ambient configuration state.
package config

import (
	"fmt"
	"strings"
	"time"
)

// KnownStages lists valid pipeline stage names in execution order.
var KnownStages = []string{"intake", "merge", "dq", "mdm", "warehouse"}

// Config is the root configuration for a Mercatus batch run.
type Config struct {
	Intake    IntakeConfig    `koanf:"intake"`
	Database  DatabaseConfig  `koanf:"database"`
	Watermark WatermarkConfig `koanf:"watermark"`
	DQ        DQConfig        `koanf:"dq"`
	Warehouse WarehouseConfig `koanf:"warehouse"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// IntakeConfig controls the landing-zone file intake.
type IntakeConfig struct {
	// LandingDir is the directory watched for dropped order files.
	LandingDir string `koanf:"landing_dir"`

	// ProcessedDir receives raw files after successful staging.
	ProcessedDir string `koanf:"processed_dir"`

	// ArchiveDir receives zipped processed files.
	ArchiveDir string `koanf:"archive_dir"`

	// Delimiter is the field separator in source files (default "|").
	Delimiter string `koanf:"delimiter"`
}

// DatabaseConfig controls the embedded DuckDB store.
type DatabaseConfig struct {
	// Path to the DuckDB database file.
	Path string `koanf:"path"`

	// MaxMemory limits DuckDB's memory usage (e.g. "2GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads for DuckDB query execution. 0 = runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// WatermarkConfig controls the ingestion watermark store.
type WatermarkConfig struct {
	// Path is the BadgerDB directory for persisted watermarks.
	Path string `koanf:"path"`

	// InMemory keeps watermarks in process memory only (testing).
	InMemory bool `koanf:"in_memory"`
}

// CheckConfig names one data-quality check: a column and the registered
// predicate applied to it. Predicates form a closed set; there is no
// expression evaluation.
type CheckConfig struct {
	Name      string   `koanf:"name"`
	Column    string   `koanf:"column"`
	Predicate string   `koanf:"predicate"`
	Args      []string `koanf:"args"`
}

// DQConfig controls data-quality checking and reporting.
type DQConfig struct {
	Enabled   bool          `koanf:"enabled"`
	ReportDir string        `koanf:"report_dir"`
	Checks    []CheckConfig `koanf:"checks"`
}

// WarehouseConfig controls the dimensional load.
type WarehouseConfig struct {
	// DateStart and DateEnd bound the generated date dimension (YYYY-MM-DD).
	DateStart string `koanf:"date_start"`
	DateEnd   string `koanf:"date_end"`

	// FiscalYearStartMonth shifts the fiscal calendar (1 = January).
	FiscalYearStartMonth int `koanf:"fiscal_year_start_month"`

	// Holidays marks dates (YYYY-MM-DD) as holidays in the date dimension.
	Holidays []string `koanf:"holidays"`
}

// PipelineConfig controls stage selection and orchestration.
type PipelineConfig struct {
	// Stages to run, in canonical order. Defaults to all stages.
	Stages []string `koanf:"stages"`

	// EntityConcurrency caps how many MDM entity types consolidate at once.
	EntityConcurrency int `koanf:"entity_concurrency"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for internal consistency.
// It returns the first problem found.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateIntake,
		c.validateDatabase,
		c.validateWatermark,
		c.validateDQ,
		c.validateWarehouse,
		c.validatePipeline,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateIntake() error {
	if c.Intake.LandingDir == "" {
		return fmt.Errorf("intake.landing_dir must be set")
	}
	if c.Intake.ProcessedDir == "" {
		return fmt.Errorf("intake.processed_dir must be set")
	}
	if c.Intake.ArchiveDir == "" {
		return fmt.Errorf("intake.archive_dir must be set")
	}
	if len(c.Intake.Delimiter) != 1 {
		return fmt.Errorf("intake.delimiter must be a single character, got %q", c.Intake.Delimiter)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must be set")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("database.threads must be >= 0, got %d", c.Database.Threads)
	}
	return nil
}

func (c *Config) validateWatermark() error {
	if !c.Watermark.InMemory && c.Watermark.Path == "" {
		return fmt.Errorf("watermark.path must be set unless watermark.in_memory is true")
	}
	return nil
}

func (c *Config) validateDQ() error {
	if !c.DQ.Enabled {
		return nil
	}
	if c.DQ.ReportDir == "" {
		return fmt.Errorf("dq.report_dir must be set when dq.enabled is true")
	}
	for i, check := range c.DQ.Checks {
		if check.Name == "" {
			return fmt.Errorf("dq.checks[%d].name must be set", i)
		}
		if check.Column == "" {
			return fmt.Errorf("dq.checks[%d] (%s): column must be set", i, check.Name)
		}
		if check.Predicate == "" {
			return fmt.Errorf("dq.checks[%d] (%s): predicate must be set", i, check.Name)
		}
	}
	return nil
}

func (c *Config) validateWarehouse() error {
	start, err := time.Parse("2006-01-02", c.Warehouse.DateStart)
	if err != nil {
		return fmt.Errorf("warehouse.date_start: %w", err)
	}
	end, err := time.Parse("2006-01-02", c.Warehouse.DateEnd)
	if err != nil {
		return fmt.Errorf("warehouse.date_end: %w", err)
	}
	if end.Before(start) {
		return fmt.Errorf("warehouse.date_end %s precedes date_start %s", c.Warehouse.DateEnd, c.Warehouse.DateStart)
	}
	if c.Warehouse.FiscalYearStartMonth < 1 || c.Warehouse.FiscalYearStartMonth > 12 {
		return fmt.Errorf("warehouse.fiscal_year_start_month must be 1-12, got %d", c.Warehouse.FiscalYearStartMonth)
	}
	for _, h := range c.Warehouse.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return fmt.Errorf("warehouse.holidays entry %q: %w", h, err)
		}
	}
	return nil
}

func (c *Config) validatePipeline() error {
	known := make(map[string]bool, len(KnownStages))
	for _, s := range KnownStages {
		known[s] = true
	}
	for _, s := range c.Pipeline.Stages {
		if !known[strings.ToLower(s)] {
			return fmt.Errorf("pipeline.stages: unknown stage %q (valid: %s)", s, strings.Join(KnownStages, ", "))
		}
	}
	if c.Pipeline.EntityConcurrency < 1 {
		return fmt.Errorf("pipeline.entity_concurrency must be >= 1, got %d", c.Pipeline.EntityConcurrency)
	}
	return nil
}

// StageEnabled reports whether the named stage should run.
func (c *Config) StageEnabled(stage string) bool {
	for _, s := range c.Pipeline.Stages {
		if strings.EqualFold(s, stage) {
			return true
		}
	}
	return false
}
