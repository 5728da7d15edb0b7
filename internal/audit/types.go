// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

// Package audit provides the append-only run ledger with DuckDB persistence.
// Three tables record what the pipeline did: file_audit (per staged file),
// merge_audit (per partition merge run), and mdm_audit (per-key consolidation
// decisions). Records are never updated or compacted.
package audit

import (
	"time"
)

// FileStatus is the intake outcome of one landing-zone file.
type FileStatus string

const (
	FileLoaded  FileStatus = "loaded"
	FileSkipped FileStatus = "skipped"
	FileFailed  FileStatus = "failed"
)

// FileRecord documents one file's trip through intake.
type FileRecord struct {
	ID         string     `json:"id"`
	RunID      string     `json:"run_id"`
	FileName   string     `json:"file_name"`
	MonthKey   string     `json:"month_key"`
	FileDate   time.Time  `json:"file_date"`
	SizeBytes  int64      `json:"size_bytes"`
	Checksum   string     `json:"checksum"`
	RowsRead   int        `json:"rows_read"`
	RowsLoaded int        `json:"rows_loaded"`
	RowsFailed int        `json:"rows_failed"`
	Status     FileStatus `json:"status"`
	Detail     string     `json:"detail,omitempty"`
	RecordedAt time.Time  `json:"recorded_at"`
}

// MergeRecord documents one partition's staging-to-production merge run.
// Zero-change runs still get a record.
type MergeRecord struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	Partition   string    `json:"partition"`
	Inserted    int       `json:"inserted"`
	Updated     int       `json:"updated"`
	Deleted     int       `json:"deleted"`
	Unchanged   int       `json:"unchanged"`
	RunStarted  time.Time `json:"run_started"`
	RunFinished time.Time `json:"run_finished"`
}

// Operation is the consolidation outcome for one natural key.
type Operation string

const (
	OpUpsert Operation = "UPSERT"
	OpDelete Operation = "DELETE"
)

// MDMRecord documents one natural key's consolidation decision.
type MDMRecord struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Entity     string    `json:"entity"`
	NaturalKey string    `json:"natural_key"`
	Operation  Operation `json:"operation"`
	Notes      string    `json:"notes,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
}
