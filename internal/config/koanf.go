// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/mercatus/config.yaml",
	"/etc/mercatus/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "MERCATUS_CONFIG"

// defaultConfig returns a Config with all defaults applied. Defaults are
// loaded first, then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Intake: IntakeConfig{
			LandingDir:   "/data/landing",
			ProcessedDir: "/data/processed",
			ArchiveDir:   "/data/archive",
			Delimiter:    "|",
		},
		Database: DatabaseConfig{
			Path:      "/data/mercatus.duckdb",
			MaxMemory: "2GB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		Watermark: WatermarkConfig{
			Path:     "/data/watermarks",
			InMemory: false,
		},
		DQ: DQConfig{
			Enabled:   true,
			ReportDir: "/data/dq_reports",
			Checks: []CheckConfig{
				{Name: "order_id_not_null", Column: "order_id", Predicate: "not_null"},
				{Name: "customer_id_not_null", Column: "customer_id", Predicate: "not_null"},
				{Name: "sales_non_negative", Column: "sales", Predicate: "non_negative"},
				{Name: "quantity_non_negative", Column: "quantity", Predicate: "non_negative"},
				{Name: "order_date_format", Column: "order_date", Predicate: "date_ddmmyyyy"},
				{Name: "ship_date_format", Column: "ship_date", Predicate: "date_ddmmyyyy"},
			},
		},
		Warehouse: WarehouseConfig{
			DateStart:            "2018-01-01",
			DateEnd:              "2026-12-31",
			FiscalYearStartMonth: 1,
			Holidays:             []string{},
		},
		Pipeline: PipelineConfig{
			Stages:            append([]string(nil), KnownStages...),
			EntityConcurrency: 3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile loads configuration from the given file path (may be empty to
// skip the file layer), then applies environment overrides and validates.
func LoadFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file found, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices when
// supplied via environment variables.
var sliceConfigPaths = []string{
	"warehouse.holidays",
	"pipeline.stages",
}

// processSliceFields converts comma-separated env strings to slices for
// known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
//
// Examples:
//   - MERCATUS_LANDING_DIR -> intake.landing_dir
//   - DUCKDB_PATH -> database.path
//   - LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Intake mappings
		"mercatus_landing_dir":   "intake.landing_dir",
		"mercatus_processed_dir": "intake.processed_dir",
		"mercatus_archive_dir":   "intake.archive_dir",
		"mercatus_delimiter":     "intake.delimiter",

		// Database mappings
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Watermark mappings
		"watermark_path":      "watermark.path",
		"watermark_in_memory": "watermark.in_memory",

		// DQ mappings
		"dq_enabled":    "dq.enabled",
		"dq_report_dir": "dq.report_dir",

		// Warehouse mappings
		"dw_date_start":         "warehouse.date_start",
		"dw_date_end":           "warehouse.date_end",
		"dw_fiscal_start_month": "warehouse.fiscal_year_start_month",
		"dw_holidays":           "warehouse.holidays",

		// Pipeline mappings
		"pipeline_stages":             "pipeline.stages",
		"pipeline_entity_concurrency": "pipeline.entity_concurrency",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unmapped keys are skipped so random environment variables cannot
	// pollute the configuration.
	return ""
}
