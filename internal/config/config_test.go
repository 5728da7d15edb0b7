// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() *Config {
	return defaultConfig()
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := defaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			"empty landing dir",
			func(c *Config) { c.Intake.LandingDir = "" },
			"landing_dir",
		},
		{
			"multi-char delimiter",
			func(c *Config) { c.Intake.Delimiter = "||" },
			"delimiter",
		},
		{
			"empty db path",
			func(c *Config) { c.Database.Path = "" },
			"database.path",
		},
		{
			"negative threads",
			func(c *Config) { c.Database.Threads = -1 },
			"threads",
		},
		{
			"missing watermark path",
			func(c *Config) { c.Watermark.Path = ""; c.Watermark.InMemory = false },
			"watermark.path",
		},
		{
			"dq check without predicate",
			func(c *Config) { c.DQ.Checks[0].Predicate = "" },
			"predicate",
		},
		{
			"reversed date range",
			func(c *Config) { c.Warehouse.DateStart = "2026-01-01"; c.Warehouse.DateEnd = "2018-01-01" },
			"precedes",
		},
		{
			"fiscal month out of range",
			func(c *Config) { c.Warehouse.FiscalYearStartMonth = 13 },
			"fiscal_year_start_month",
		},
		{
			"bad holiday",
			func(c *Config) { c.Warehouse.Holidays = []string{"not-a-date"} },
			"holidays",
		},
		{
			"unknown stage",
			func(c *Config) { c.Pipeline.Stages = []string{"intake", "teleport"} },
			"unknown stage",
		},
		{
			"zero entity concurrency",
			func(c *Config) { c.Pipeline.EntityConcurrency = 0 },
			"entity_concurrency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestStageEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.Stages = []string{"intake", "merge"}

	if !cfg.StageEnabled("merge") {
		t.Error("expected merge enabled")
	}
	if !cfg.StageEnabled("MERGE") {
		t.Error("expected stage matching to be case-insensitive")
	}
	if cfg.StageEnabled("warehouse") {
		t.Error("expected warehouse disabled")
	}
}

func TestLoadFileLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
intake:
  landing_dir: /srv/orders/landing
database:
  max_memory: 4GB
warehouse:
  fiscal_year_start_month: 4
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Intake.LandingDir != "/srv/orders/landing" {
		t.Errorf("file value not applied, got %q", cfg.Intake.LandingDir)
	}
	if cfg.Database.MaxMemory != "4GB" {
		t.Errorf("file value not applied, got %q", cfg.Database.MaxMemory)
	}
	if cfg.Warehouse.FiscalYearStartMonth != 4 {
		t.Errorf("file value not applied, got %d", cfg.Warehouse.FiscalYearStartMonth)
	}
	// Untouched keys keep defaults.
	if cfg.Intake.Delimiter != "|" {
		t.Errorf("default delimiter lost, got %q", cfg.Intake.Delimiter)
	}
}

func TestLoadFileEnvOverride(t *testing.T) {
	t.Setenv("DUCKDB_PATH", "/tmp/override.duckdb")
	t.Setenv("DW_HOLIDAYS", "2024-01-01, 2024-12-25")

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Database.Path != "/tmp/override.duckdb" {
		t.Errorf("env override not applied, got %q", cfg.Database.Path)
	}
	if len(cfg.Warehouse.Holidays) != 2 || cfg.Warehouse.Holidays[0] != "2024-01-01" {
		t.Errorf("comma-separated env slice not parsed, got %v", cfg.Warehouse.Holidays)
	}
}

func TestEnvTransformSkipsUnknownKeys(t *testing.T) {
	if got := envTransformFunc("PATH"); got != "" {
		t.Errorf("expected unmapped env var to be skipped, got %q", got)
	}
	if got := envTransformFunc("LOG_LEVEL"); got != "logging.level" {
		t.Errorf("expected logging.level, got %q", got)
	}
}
