// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

// Package main is the entry point for the Mercatus batch pipeline.
//
// Mercatus ingests pipe-delimited retail order extracts from a landing
// directory and carries them through a five-stage batch pipeline:
//
//  1. Intake: parse and stage landing files, archive them, record file audit
//  2. Merge: fingerprint-based CDC from staging into production partitions
//  3. DQ: configured data-quality checks with CSV and Excel reports
//  4. MDM: incremental consolidation of customer, product, and location
//     golden records with stable surrogate keys
//  5. Warehouse: dimension upserts, generated date dimension, fact load
//
// All tabular state lives in a single embedded DuckDB file; MDM watermarks
// persist in a BadgerDB directory so re-runs only replay changed rows.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (MERCATUS_ prefix, e.g. MERCATUS_DATABASE_PATH)
//   - Config file (-config flag, YAML)
//   - Built-in defaults
//
// # Usage
//
// Run the full pipeline:
//
//	mercatus -config config.yaml
//
// Run selected stages only:
//
//	mercatus -config config.yaml -stages intake,merge
//
// The process exits non-zero when any stage fails; later stages still run
// and the run summary is always published.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tomtom215/mercatus/internal/audit"
	"github.com/tomtom215/mercatus/internal/config"
	"github.com/tomtom215/mercatus/internal/database"
	"github.com/tomtom215/mercatus/internal/dq"
	"github.com/tomtom215/mercatus/internal/ingest"
	"github.com/tomtom215/mercatus/internal/logging"
	"github.com/tomtom215/mercatus/internal/mdm"
	"github.com/tomtom215/mercatus/internal/merge"
	"github.com/tomtom215/mercatus/internal/pipeline"
	"github.com/tomtom215/mercatus/internal/warehouse"
	"github.com/tomtom215/mercatus/internal/watermark"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var (
		configPath  = flag.String("config", "", "path to YAML config file (optional; env vars and defaults apply)")
		stages      = flag.String("stages", "", "comma-separated stages to run (default: all from config)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("mercatus " + version)
		return
	}

	cfg, err := loadConfig(*configPath, *stages)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("version", version).Msg("Starting Mercatus pipeline")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error().Err(err).Msg("Pipeline run failed")
		os.Exit(1)
	}
}

func loadConfig(path, stages string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if stages != "" {
		cfg.Pipeline.Stages = strings.Split(stages, ",")
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Database close failed")
		}
	}()

	auditStore := audit.NewStore(db.Conn())
	if err := auditStore.CreateTables(ctx); err != nil {
		return fmt.Errorf("creating audit tables: %w", err)
	}

	marks, badgerDB, err := watermark.Open(cfg.Watermark.Path, cfg.Watermark.InMemory)
	if err != nil {
		return fmt.Errorf("opening watermark store: %w", err)
	}
	defer func() {
		if err := badgerDB.Close(); err != nil {
			logging.Error().Err(err).Msg("Watermark store close failed")
		}
	}()

	runner := pipeline.New(
		cfg,
		ingest.New(&cfg.Intake, db, auditStore),
		merge.New(db, auditStore),
		dq.New(&cfg.DQ, db),
		mdm.New(db, auditStore, marks),
		warehouse.New(&cfg.Warehouse, db),
		pipeline.NewLogNotifier(),
	)

	summary, err := runner.Run(ctx)
	logging.Info().
		Str("run_id", summary.RunID).
		Int("files_staged", summary.FilesStaged).
		Int("fact_rows", summary.FactRows).
		Int("warnings", len(summary.Warnings)).
		Msg("Mercatus pipeline finished")
	return err
}
