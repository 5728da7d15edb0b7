// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

package mdm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/mercatus/internal/audit"
	"github.com/tomtom215/mercatus/internal/database"
	"github.com/tomtom215/mercatus/internal/logging"
	"github.com/tomtom215/mercatus/internal/models"
	"github.com/tomtom215/mercatus/internal/watermark"
)

// Store is the slice of the database layer the consolidator needs.
type Store interface {
	ChangedProductionOrders(ctx context.Context, since *time.Time) ([]models.ProductionOrder, error)
	EnsureGoldenTable(ctx context.Context, gt database.GoldenTable) error
	LoadGoldenEntities(ctx context.Context, gt database.GoldenTable) ([]models.GoldenEntity, error)
	ReplaceGoldenEntities(ctx context.Context, gt database.GoldenTable, entities []models.GoldenEntity) error
	EntityLock(entity string) *sync.Mutex
}

// AuditLog records per-key consolidation decisions and serves as the
// watermark fallback.
type AuditLog interface {
	SaveMDMRecords(ctx context.Context, recs []audit.MDMRecord) error
	LastIngestion(ctx context.Context, entity string) (*time.Time, error)
}

// Consolidator runs incremental master-data consolidation.
type Consolidator struct {
	store Store
	audit AuditLog
	marks watermark.Store
	now   func() time.Time
}

// New creates a consolidator.
func New(store Store, auditLog AuditLog, marks watermark.Store) *Consolidator {
	return &Consolidator{
		store: store,
		audit: auditLog,
		marks: marks,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// ConsolidateEntity runs one entity type's consolidation to completion.
// The watermark advances only after the golden rewrite and audit append
// succeed, so a failed run replays its window on the next attempt.
func (c *Consolidator) ConsolidateEntity(ctx context.Context, runID string, spec EntitySpec) (*models.EntitySummary, error) {
	lock := c.store.EntityLock(spec.Name)
	lock.Lock()
	defer lock.Unlock()

	if err := c.store.EnsureGoldenTable(ctx, spec.Table); err != nil {
		return nil, fmt.Errorf("failed to ensure golden table for %s: %w", spec.Name, err)
	}

	existing, err := c.store.LoadGoldenEntities(ctx, spec.Table)
	if err != nil {
		return nil, fmt.Errorf("failed to load golden entities for %s: %w", spec.Name, err)
	}
	golden := make(map[string]models.GoldenEntity, len(existing))
	var maxSK int64
	for _, g := range existing {
		golden[g.NaturalKey] = g
		if g.SurrogateKey > maxSK {
			maxSK = g.SurrogateKey
		}
	}

	since, err := c.resolveWatermark(ctx, spec.Name, len(existing) > 0)
	if err != nil {
		return nil, err
	}

	// Rows changed while this run processes its window are picked up by the
	// next one; the cutoff is taken before the read.
	cutoff := c.now()
	rows, err := c.store.ChangedProductionOrders(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to read changed rows for %s: %w", spec.Name, err)
	}

	groups, keys := groupByNaturalKey(rows, spec)

	summary := &models.EntitySummary{Entity: spec.Name}
	now := c.now()
	var decisions []audit.MDMRecord

	for _, key := range keys {
		group := groups[key]
		latest := group[len(group)-1]

		if latest.ChangeType == models.ChangeDelete || latest.IsDeleted {
			if _, ok := golden[key]; ok {
				delete(golden, key)
				summary.Tombstoned++
			}
			decisions = append(decisions, audit.MDMRecord{
				RunID: runID, Entity: spec.Name, NaturalKey: key,
				Operation: audit.OpDelete, Notes: "Marked as deleted", ChangedAt: now,
			})
			continue
		}

		winner, score := pickWinner(group, spec)
		entity := models.GoldenEntity{
			NaturalKey:   key,
			Fields:       spec.Fields(&winner.Order),
			SourceRowIDs: uniqueRowIDs(group),
			GoldenScore:  score,
			LastUpdated:  now,
		}
		if prior, ok := golden[key]; ok {
			entity.SurrogateKey = prior.SurrogateKey
		}
		golden[key] = entity
		summary.Upserted++
		decisions = append(decisions, audit.MDMRecord{
			RunID: runID, Entity: spec.Name, NaturalKey: key,
			Operation: audit.OpUpsert, Notes: "Inserted or updated", ChangedAt: now,
		})
	}

	assignSurrogateKeys(golden, maxSK)

	final := make([]models.GoldenEntity, 0, len(golden))
	for _, g := range golden {
		final = append(final, g)
	}
	sort.Slice(final, func(i, j int) bool { return final[i].NaturalKey < final[j].NaturalKey })

	if err := c.store.ReplaceGoldenEntities(ctx, spec.Table, final); err != nil {
		return nil, fmt.Errorf("failed to rewrite golden table for %s: %w", spec.Name, err)
	}
	if err := c.audit.SaveMDMRecords(ctx, decisions); err != nil {
		return nil, fmt.Errorf("failed to write consolidation decisions for %s: %w", spec.Name, err)
	}
	if err := c.marks.Set(ctx, spec.Name, cutoff); err != nil {
		return nil, fmt.Errorf("failed to advance watermark for %s: %w", spec.Name, err)
	}

	summary.GoldenSize = len(final)
	logging.Info().
		Str("entity", spec.Name).
		Int("upserted", summary.Upserted).
		Int("tombstoned", summary.Tombstoned).
		Int("golden_size", summary.GoldenSize).
		Msg("Entity consolidated")
	return summary, nil
}

// resolveWatermark returns the incremental cutoff. A lost watermark over an
// already-populated golden table falls back to the audit ledger's recency;
// a virgin entity reads everything.
func (c *Consolidator) resolveWatermark(ctx context.Context, entity string, hasGolden bool) (*time.Time, error) {
	since, err := c.marks.Get(ctx, entity)
	if err != nil {
		return nil, fmt.Errorf("failed to read watermark for %s: %w", entity, err)
	}
	if since != nil || !hasGolden {
		return since, nil
	}

	since, err = c.audit.LastIngestion(ctx, entity)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit fallback for %s: %w", entity, err)
	}
	if since != nil {
		logging.Warn().
			Str("entity", entity).
			Time("fallback", *since).
			Msg("Watermark missing, using audit ledger recency")
	}
	return since, nil
}

// groupByNaturalKey buckets rows per natural key, preserving the store's
// deterministic row order inside each group. Keys come back sorted. Blank
// keys are dropped.
func groupByNaturalKey(rows []models.ProductionOrder, spec EntitySpec) (map[string][]*models.ProductionOrder, []string) {
	groups := make(map[string][]*models.ProductionOrder)
	for i := range rows {
		key := spec.NaturalKey(&rows[i].Order)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], &rows[i])
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return groups, keys
}

// pickWinner returns the group's most complete row: the one with the most
// non-blank important fields, first in row order winning ties.
func pickWinner(group []*models.ProductionOrder, spec EntitySpec) (*models.ProductionOrder, int) {
	winner := group[0]
	best := completeness(spec.Fields(&winner.Order))
	for _, row := range group[1:] {
		if score := completeness(spec.Fields(&row.Order)); score > best {
			winner, best = row, score
		}
	}
	return winner, best
}

func completeness(fields []string) int {
	score := 0
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			score++
		}
	}
	return score
}

// uniqueRowIDs returns the group's contributing Row IDs, first occurrence
// order, duplicates removed.
func uniqueRowIDs(group []*models.ProductionOrder) []int64 {
	seen := make(map[int64]bool, len(group))
	ids := make([]int64, 0, len(group))
	for _, row := range group {
		if !seen[row.RowID] {
			seen[row.RowID] = true
			ids = append(ids, row.RowID)
		}
	}
	return ids
}

// assignSurrogateKeys gives every keyless golden entity a fresh surrogate
// key, max+1 onward in ascending natural-key order. Existing keys are never
// touched.
func assignSurrogateKeys(golden map[string]models.GoldenEntity, maxSK int64) {
	var newKeys []string
	for key, g := range golden {
		if g.SurrogateKey == 0 {
			newKeys = append(newKeys, key)
		}
	}
	sort.Strings(newKeys)
	for _, key := range newKeys {
		maxSK++
		g := golden[key]
		g.SurrogateKey = maxSK
		golden[key] = g
	}
}
