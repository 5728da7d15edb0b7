// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/mercatus/internal/logging"
)

// Store persists audit records to DuckDB. Appends take the write lock;
// readers tolerate a concurrent appender via the read lock.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore creates a DuckDB-backed audit store sharing the pipeline's
// database connection. The caller is responsible for calling CreateTables.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateTables creates the three audit tables if they don't exist.
// This should be called during database initialization.
func (s *Store) CreateTables(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS file_audit (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			file_name TEXT NOT NULL,
			month_key TEXT NOT NULL,
			file_date TIMESTAMP,
			size_bytes BIGINT NOT NULL,
			checksum TEXT,
			rows_read INTEGER NOT NULL,
			rows_loaded INTEGER NOT NULL,
			rows_failed INTEGER NOT NULL,
			status TEXT NOT NULL,
			detail TEXT,
			recorded_at TIMESTAMP NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_file_audit_month ON file_audit(month_key);
		CREATE INDEX IF NOT EXISTS idx_file_audit_recorded ON file_audit(recorded_at DESC);

		CREATE TABLE IF NOT EXISTS merge_audit (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			partition TEXT NOT NULL,
			inserted INTEGER NOT NULL,
			updated INTEGER NOT NULL,
			deleted INTEGER NOT NULL,
			unchanged INTEGER NOT NULL,
			run_started TIMESTAMP NOT NULL,
			run_finished TIMESTAMP NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_merge_audit_partition ON merge_audit(partition);
		CREATE INDEX IF NOT EXISTS idx_merge_audit_finished ON merge_audit(run_finished DESC);

		CREATE TABLE IF NOT EXISTS mdm_audit (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			entity TEXT NOT NULL,
			natural_key TEXT NOT NULL,
			operation TEXT NOT NULL,
			notes TEXT,
			changed_at TIMESTAMP NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_mdm_audit_entity ON mdm_audit(entity);
		CREATE INDEX IF NOT EXISTS idx_mdm_audit_changed ON mdm_audit(changed_at DESC);
	`

	for _, stmt := range strings.Split(query, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute audit schema statement: %w", err)
		}
	}

	logging.Debug().Msg("Audit tables created/verified")
	return nil
}

// SaveFileRecord appends a file intake record. A missing ID or timestamp is
// filled in.
func (s *Store) SaveFileRecord(ctx context.Context, rec *FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec == nil {
		return fmt.Errorf("file record cannot be nil")
	}
	fillID(&rec.ID)
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}

	query := `INSERT INTO file_audit (
		id, run_id, file_name, month_key, file_date, size_bytes, checksum,
		rows_read, rows_loaded, rows_failed, status, detail, recorded_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.RunID, rec.FileName, rec.MonthKey, nullTime(rec.FileDate),
		rec.SizeBytes, rec.Checksum, rec.RowsRead, rec.RowsLoaded, rec.RowsFailed,
		string(rec.Status), rec.Detail, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to save file audit record: %w", err)
	}
	return nil
}

// SaveMergeRecord appends a merge run record.
func (s *Store) SaveMergeRecord(ctx context.Context, rec *MergeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec == nil {
		return fmt.Errorf("merge record cannot be nil")
	}
	fillID(&rec.ID)

	query := `INSERT INTO merge_audit (
		id, run_id, partition, inserted, updated, deleted, unchanged,
		run_started, run_finished
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.RunID, rec.Partition, rec.Inserted, rec.Updated,
		rec.Deleted, rec.Unchanged, rec.RunStarted, rec.RunFinished)
	if err != nil {
		return fmt.Errorf("failed to save merge audit record: %w", err)
	}
	return nil
}

// SaveMDMRecords appends a batch of consolidation decisions in one
// transaction, one record per natural key touched by the run.
func (s *Store) SaveMDMRecords(ctx context.Context, recs []MDMRecord) error {
	if len(recs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin mdm audit append: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			logging.Warn().Err(err).Msg("Failed to roll back mdm audit append")
		}
	}()

	query := `INSERT INTO mdm_audit (
		id, run_id, entity, natural_key, operation, notes, changed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)`

	for i := range recs {
		rec := &recs[i]
		fillID(&rec.ID)
		if rec.ChangedAt.IsZero() {
			rec.ChangedAt = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx, query,
			rec.ID, rec.RunID, rec.Entity, rec.NaturalKey,
			string(rec.Operation), rec.Notes, rec.ChangedAt)
		if err != nil {
			return fmt.Errorf("failed to save mdm audit record for %s: %w", rec.NaturalKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mdm audit append: %w", err)
	}
	return nil
}

// FileRecords returns the most recent file intake records, newest first.
func (s *Store) FileRecords(ctx context.Context, limit int) ([]FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, run_id, file_name, month_key, file_date, size_bytes,
		checksum, rows_read, rows_loaded, rows_failed, status, detail, recorded_at
		FROM file_audit ORDER BY recorded_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query file audit records: %w", err)
	}
	defer rows.Close()

	var recs []FileRecord
	for rows.Next() {
		var rec FileRecord
		var fileDate sql.NullTime
		var checksum, detail sql.NullString
		var status string
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.FileName, &rec.MonthKey,
			&fileDate, &rec.SizeBytes, &checksum, &rec.RowsRead, &rec.RowsLoaded,
			&rec.RowsFailed, &status, &detail, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan file audit record: %w", err)
		}
		if fileDate.Valid {
			rec.FileDate = fileDate.Time
		}
		rec.Checksum = checksum.String
		rec.Detail = detail.String
		rec.Status = FileStatus(status)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating file audit records: %w", err)
	}
	return recs, nil
}

// MergeRecords returns all merge runs for a partition, newest first.
// An empty partition returns every run.
func (s *Store) MergeRecords(ctx context.Context, partition string) ([]MergeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, run_id, partition, inserted, updated, deleted, unchanged,
		run_started, run_finished FROM merge_audit`
	var args []any
	if partition != "" {
		query += " WHERE partition = ?"
		args = append(args, partition)
	}
	query += " ORDER BY run_finished DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query merge audit records: %w", err)
	}
	defer rows.Close()

	var recs []MergeRecord
	for rows.Next() {
		var rec MergeRecord
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Partition, &rec.Inserted,
			&rec.Updated, &rec.Deleted, &rec.Unchanged,
			&rec.RunStarted, &rec.RunFinished); err != nil {
			return nil, fmt.Errorf("failed to scan merge audit record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating merge audit records: %w", err)
	}
	return recs, nil
}

// MDMDecisions returns an entity's consolidation decisions after the given
// time, oldest first. A zero time returns all of them.
func (s *Store) MDMDecisions(ctx context.Context, entity string, since time.Time) ([]MDMRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, run_id, entity, natural_key, operation, notes, changed_at
		FROM mdm_audit WHERE entity = ?`
	args := []any{entity}
	if !since.IsZero() {
		query += " AND changed_at > ?"
		args = append(args, since)
	}
	query += " ORDER BY changed_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query mdm audit records: %w", err)
	}
	defer rows.Close()

	var recs []MDMRecord
	for rows.Next() {
		var rec MDMRecord
		var notes sql.NullString
		var op string
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Entity, &rec.NaturalKey,
			&op, &notes, &rec.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mdm audit record: %w", err)
		}
		rec.Operation = Operation(op)
		rec.Notes = notes.String
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mdm audit records: %w", err)
	}
	return recs, nil
}

// LastIngestion returns the recency of the last recorded activity for an
// entity: the newest mdm_audit decision, falling back to the newest merge
// run when the entity has never been consolidated. Returns nil when the
// ledger is empty. Used as the watermark fallback after a watermark reset.
func (s *Store) LastIngestion(ctx context.Context, entity string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest sql.NullTime
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(changed_at) FROM mdm_audit WHERE entity = ?", entity).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("failed to read last mdm activity: %w", err)
	}
	if latest.Valid {
		t := latest.Time
		return &t, nil
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT MAX(run_finished) FROM merge_audit").Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("failed to read last merge activity: %w", err)
	}
	if latest.Valid {
		t := latest.Time
		return &t, nil
	}
	return nil, nil
}

func fillID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
