// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

// Package pipeline orchestrates one batch run: landing-file intake, the
// staging-to-production merge, data-quality checks, master-data
// consolidation, and the warehouse load. Stages run in canonical order;
// a stage failure is recorded as a warning and the run moves on, so one
// bad input never wedges the whole batch.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/mercatus/internal/config"
	"github.com/tomtom215/mercatus/internal/dq"
	"github.com/tomtom215/mercatus/internal/ingest"
	"github.com/tomtom215/mercatus/internal/logging"
	"github.com/tomtom215/mercatus/internal/mdm"
	"github.com/tomtom215/mercatus/internal/models"
)

// Stage dependencies, one interface per pipeline stage.
type (
	IntakeStage interface {
		Run(ctx context.Context, runID string) (*ingest.Result, error)
	}
	MergeStage interface {
		Run(ctx context.Context, runID string) ([]models.MergeSummary, error)
	}
	QualityStage interface {
		Run(ctx context.Context, runID string) (*dq.Result, error)
	}
	ConsolidateStage interface {
		ConsolidateEntity(ctx context.Context, runID string, spec mdm.EntitySpec) (*models.EntitySummary, error)
	}
	WarehouseStage interface {
		Run(ctx context.Context) (int, error)
	}
)

// Notifier receives the run summary after every run, including failed ones.
type Notifier interface {
	Notify(ctx context.Context, summary *models.RunSummary) error
}

// Runner drives the configured stages for a single batch invocation.
type Runner struct {
	cfg       *config.Config
	intake    IntakeStage
	merge     MergeStage
	quality   QualityStage
	mdm       ConsolidateStage
	warehouse WarehouseStage
	notifier  Notifier
	entities  []mdm.EntitySpec
	now       func() time.Time
}

func New(cfg *config.Config, intake IntakeStage, merge MergeStage, quality QualityStage, consolidate ConsolidateStage, warehouse WarehouseStage, notifier Notifier) *Runner {
	return &Runner{
		cfg:       cfg,
		intake:    intake,
		merge:     merge,
		quality:   quality,
		mdm:       consolidate,
		warehouse: warehouse,
		notifier:  notifier,
		entities:  mdm.Entities(),
		now:       time.Now,
	}
}

// Run executes the enabled stages in canonical order and always produces a
// summary. The returned error is the first stage failure, for the caller's
// exit code; later stages still ran.
func (r *Runner) Run(ctx context.Context) (*models.RunSummary, error) {
	runID := uuid.NewString()
	summary := &models.RunSummary{
		RunID:   runID,
		Started: r.now(),
	}
	log := logging.With().Str("run_id", runID).Logger()
	log.Info().Strs("stages", r.cfg.Pipeline.Stages).Msg("Pipeline run starting")

	var firstErr error
	fail := func(stage string, err error) {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s: %v", stage, err))
		log.Error().Err(err).Str("stage", stage).Msg("Stage failed")
		if firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", stage, err)
		}
	}

	if r.cfg.StageEnabled("intake") && r.intake != nil {
		res, err := r.intake.Run(ctx, runID)
		if err != nil {
			fail("intake", err)
		} else {
			summary.FilesStaged = res.FilesStaged
			summary.FilesFailed = res.FilesFailed
		}
	}

	if r.cfg.StageEnabled("merge") && r.merge != nil {
		merges, err := r.merge.Run(ctx, runID)
		summary.Merges = merges
		if err != nil {
			fail("merge", err)
		}
	}

	if r.cfg.StageEnabled("dq") && r.quality != nil && r.cfg.DQ.Enabled {
		if _, err := r.quality.Run(ctx, runID); err != nil {
			// Quality findings are advisory; a broken report is too.
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("dq: %v", err))
			log.Error().Err(err).Str("stage", "dq").Msg("Stage failed")
		}
	}

	if r.cfg.StageEnabled("mdm") && r.mdm != nil {
		entitySummaries, errs := r.consolidateAll(ctx, runID)
		summary.Entities = entitySummaries
		for _, err := range errs {
			fail("mdm", err)
		}
	}

	if r.cfg.StageEnabled("warehouse") && r.warehouse != nil {
		facts, err := r.warehouse.Run(ctx)
		if err != nil {
			fail("warehouse", err)
		} else {
			summary.FactRows = facts
		}
	}

	summary.Finished = r.now()
	if r.notifier != nil {
		if err := r.notifier.Notify(ctx, summary); err != nil {
			log.Error().Err(err).Msg("Run notification failed")
		}
	}
	return summary, firstErr
}

// consolidateAll runs every entity type, at most EntityConcurrency at once.
// A failed entity is reported but does not stop its siblings; its watermark
// stays put so the next run replays the same window.
func (r *Runner) consolidateAll(ctx context.Context, runID string) ([]models.EntitySummary, []error) {
	var (
		mu        sync.Mutex
		summaries []models.EntitySummary
		errs      []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Pipeline.EntityConcurrency)
	for _, spec := range r.entities {
		g.Go(func() error {
			es, err := r.mdm.ConsolidateEntity(gctx, runID, spec)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", spec.Name, err))
				return nil
			}
			summaries = append(summaries, *es)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // goroutines never return errors

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Entity < summaries[j].Entity })
	return summaries, errs
}
