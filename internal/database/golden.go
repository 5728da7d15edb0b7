// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mercatus/internal/logging"
	"github.com/tomtom215/mercatus/internal/models"
)

// GoldenTable describes one entity type's golden table. Tables share a fixed
// frame (surrogate_key, natural_key, source_list, golden_score,
// last_updated) around entity-specific field columns.
type GoldenTable struct {
	// Name of the table, e.g. "mdm_customers".
	Name string

	// FieldColumns holds the entity's important-field column names, in the
	// same order as GoldenEntity.Fields.
	FieldColumns []string
}

// EnsureGoldenTable creates the entity's golden table if missing.
func (db *DB) EnsureGoldenTable(ctx context.Context, gt GoldenTable) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	cols := make([]string, 0, len(gt.FieldColumns))
	for _, c := range gt.FieldColumns {
		cols = append(cols, fmt.Sprintf("%s VARCHAR", c))
	}

	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		surrogate_key BIGINT NOT NULL,
		natural_key VARCHAR NOT NULL PRIMARY KEY,
		%s,
		source_list JSON,
		golden_score INTEGER NOT NULL,
		last_updated TIMESTAMP NOT NULL
	)`, gt.Name, strings.Join(cols, ",\n\t\t"))

	if _, err := db.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create golden table %s: %w", gt.Name, err)
	}
	return nil
}

// LoadGoldenEntities reads the full golden set for an entity type, ordered
// by natural key.
func (db *DB) LoadGoldenEntities(ctx context.Context, gt GoldenTable) ([]models.GoldenEntity, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT surrogate_key, natural_key, %s,
		CAST(source_list AS VARCHAR), golden_score, last_updated
	FROM %s ORDER BY natural_key`,
		strings.Join(gt.FieldColumns, ", "), gt.Name)

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query golden table %s: %w", gt.Name, err)
	}
	defer rows.Close()

	var entities []models.GoldenEntity
	for rows.Next() {
		e := models.GoldenEntity{Fields: make([]string, len(gt.FieldColumns))}
		var sourceList string
		dests := []any{&e.SurrogateKey, &e.NaturalKey}
		for i := range e.Fields {
			dests = append(dests, &e.Fields[i])
		}
		dests = append(dests, &sourceList, &e.GoldenScore, &e.LastUpdated)
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("failed to scan golden entity from %s: %w", gt.Name, err)
		}
		if sourceList != "" {
			if err := json.Unmarshal([]byte(sourceList), &e.SourceRowIDs); err != nil {
				logging.Warn().Err(err).Str("table", gt.Name).Str("key", e.NaturalKey).
					Msg("Failed to parse golden source list")
			}
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating golden table %s: %w", gt.Name, err)
	}
	return entities, nil
}

// ReplaceGoldenEntities rewrites the full golden set for an entity type in
// one transaction. The consolidator computes the new set; this method only
// persists it.
func (db *DB) ReplaceGoldenEntities(ctx context.Context, gt GoldenTable, entities []models.GoldenEntity) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin golden rewrite for %s: %w", gt.Name, err)
	}
	defer rollbackQuietly(tx)

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", gt.Name)); err != nil {
		return fmt.Errorf("failed to clear golden table %s: %w", gt.Name, err)
	}

	placeholders := strings.Repeat("?, ", len(gt.FieldColumns))
	query := fmt.Sprintf(`INSERT INTO %s (surrogate_key, natural_key, %s, source_list, golden_score, last_updated)
		VALUES (?, ?, %s?, ?, ?)`,
		gt.Name, strings.Join(gt.FieldColumns, ", "), placeholders)

	for i := range entities {
		e := &entities[i]
		if len(e.Fields) != len(gt.FieldColumns) {
			return fmt.Errorf("golden entity %s has %d fields, table %s expects %d",
				e.NaturalKey, len(e.Fields), gt.Name, len(gt.FieldColumns))
		}
		sourceList, err := json.Marshal(e.SourceRowIDs)
		if err != nil {
			return fmt.Errorf("failed to marshal source list for %s: %w", e.NaturalKey, err)
		}
		args := []any{e.SurrogateKey, e.NaturalKey}
		for _, f := range e.Fields {
			args = append(args, f)
		}
		args = append(args, string(sourceList), e.GoldenScore, e.LastUpdated)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert golden entity %s into %s: %w", e.NaturalKey, gt.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit golden rewrite for %s: %w", gt.Name, err)
	}
	return nil
}
