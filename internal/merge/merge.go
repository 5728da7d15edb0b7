// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

// Package merge applies staged order rows to the production table, one
// month partition at a time. Change detection is by content fingerprint
// keyed on the row's positional identity: a Row ID absent from production
// is an insert, a differing fingerprint is an update, a matching one is a
// no-op, and production Row IDs missing from the staged set are soft
// deleted. Re-running an already-applied partition yields zero counts.
package merge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/mercatus/internal/audit"
	"github.com/tomtom215/mercatus/internal/fingerprint"
	"github.com/tomtom215/mercatus/internal/logging"
	"github.com/tomtom215/mercatus/internal/models"
)

// Store is the slice of the database layer the merge engine needs.
type Store interface {
	DistinctStagedMonths(ctx context.Context) ([]string, error)
	StagedOrdersByMonth(ctx context.Context, monthKey string) ([]models.StagedOrder, error)
	ProductionSnapshot(ctx context.Context, monthKey string) ([]models.ProductionOrder, error)
	InsertProductionOrders(ctx context.Context, rows []models.ProductionOrder) error
	UpdateProductionOrder(ctx context.Context, p *models.ProductionOrder) error
	SoftDeleteProductionRows(ctx context.Context, monthKey string, rowIDs []int64, now time.Time) error
	PartitionLock(monthKey string) *sync.Mutex
}

// AuditLog records run-level merge outcomes.
type AuditLog interface {
	SaveMergeRecord(ctx context.Context, rec *audit.MergeRecord) error
}

// Engine merges staged partitions into production.
type Engine struct {
	store Store
	audit AuditLog
	now   func() time.Time
}

// New creates a merge engine.
func New(store Store, auditLog AuditLog) *Engine {
	return &Engine{store: store, audit: auditLog, now: func() time.Time { return time.Now().UTC() }}
}

// Run merges every month partition present in staging. Each partition runs
// to completion independently; a failed partition is reported and does not
// stop the others.
func (e *Engine) Run(ctx context.Context, runID string) ([]models.MergeSummary, error) {
	months, err := e.store.DistinctStagedMonths(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list staged months: %w", err)
	}

	var summaries []models.MergeSummary
	var firstErr error
	for _, month := range months {
		if err := ctx.Err(); err != nil {
			return summaries, err
		}
		summary, err := e.MergeMonth(ctx, runID, month)
		if err != nil {
			logging.Error().Err(err).Str("partition", month).Msg("Partition merge failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("merge of partition %s failed: %w", month, err)
			}
			continue
		}
		summaries = append(summaries, *summary)
	}
	return summaries, firstErr
}

// MergeMonth merges one partition. The partition lock serializes concurrent
// runs touching the same month.
func (e *Engine) MergeMonth(ctx context.Context, runID, monthKey string) (*models.MergeSummary, error) {
	lock := e.store.PartitionLock(monthKey)
	lock.Lock()
	defer lock.Unlock()

	summary := &models.MergeSummary{
		Partition:  monthKey,
		RunStarted: e.now(),
	}

	staged, err := e.store.StagedOrdersByMonth(ctx, monthKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read staged rows: %w", err)
	}
	production, err := e.store.ProductionSnapshot(ctx, monthKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read production snapshot: %w", err)
	}

	existingHash := make(map[int64]string, len(production))
	deletedAlready := make(map[int64]bool, len(production))
	for i := range production {
		existingHash[production[i].RowID] = production[i].HashKey
		deletedAlready[production[i].RowID] = production[i].IsDeleted
	}

	now := e.now()
	seen := make(map[int64]bool, len(staged))
	var inserts []models.ProductionOrder

	for i := range staged {
		row := &staged[i]
		seen[row.RowID] = true
		hash := fingerprint.Row(row.BusinessValues())

		prior, exists := existingHash[row.RowID]
		switch {
		case !exists:
			inserts = append(inserts, models.ProductionOrder{
				Order:          row.Order,
				SourceMonthKey: monthKey,
				HashKey:        hash,
				ChangeType:     models.ChangeInsert,
				LastModifiedAt: now,
			})
		case prior != hash || deletedAlready[row.RowID]:
			// Content changed, or the row came back after a soft delete.
			updated := models.ProductionOrder{
				Order:          row.Order,
				SourceMonthKey: monthKey,
				HashKey:        hash,
				ChangeType:     models.ChangeUpdate,
				LastModifiedAt: now,
			}
			if err := e.store.UpdateProductionOrder(ctx, &updated); err != nil {
				return nil, fmt.Errorf("failed to update row %d: %w", row.RowID, err)
			}
			summary.Updated++
		default:
			summary.Unchanged++
		}
	}

	// Positional deletion: production rows whose Row ID is absent from the
	// staged set. Rows already soft-deleted stay as they are.
	var toDelete []int64
	for i := range production {
		p := &production[i]
		if !seen[p.RowID] && !p.IsDeleted {
			toDelete = append(toDelete, p.RowID)
		}
	}
	if len(toDelete) > 0 {
		if err := e.store.SoftDeleteProductionRows(ctx, monthKey, toDelete, now); err != nil {
			return nil, fmt.Errorf("failed to soft-delete rows: %w", err)
		}
		summary.Deleted = len(toDelete)
	}

	if len(inserts) > 0 {
		if err := e.store.InsertProductionOrders(ctx, inserts); err != nil {
			return nil, fmt.Errorf("failed to insert rows: %w", err)
		}
		summary.Inserted = len(inserts)
	}

	summary.RunFinished = e.now()
	rec := &audit.MergeRecord{
		RunID:       runID,
		Partition:   monthKey,
		Inserted:    summary.Inserted,
		Updated:     summary.Updated,
		Deleted:     summary.Deleted,
		Unchanged:   summary.Unchanged,
		RunStarted:  summary.RunStarted,
		RunFinished: summary.RunFinished,
	}
	if err := e.audit.SaveMergeRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to write merge audit record: %w", err)
	}

	logging.Info().
		Str("partition", monthKey).
		Int("inserted", summary.Inserted).
		Int("updated", summary.Updated).
		Int("deleted", summary.Deleted).
		Int("unchanged", summary.Unchanged).
		Msg("Partition merged")
	return summary, nil
}
