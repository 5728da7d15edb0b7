// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

// Package database wraps the embedded DuckDB store holding the staging,
// production, golden, dimension, fact, and audit tables.
//
// All mutation of shared state goes through this package. Partition-level
// and entity-level read-modify-write sequences are serialized via named
// locks (PartitionLock, EntityLock); callers hold the lock for the duration
// of a merge or consolidation cycle.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/mercatus/internal/config"
	"github.com/tomtom215/mercatus/internal/logging"
)

// defaultQueryTimeout bounds queries whose callers did not set a deadline.
const defaultQueryTimeout = 30 * time.Second

// DB wraps the DuckDB connection and provides data access methods.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig

	// Named locks serializing read-modify-write cycles per month partition
	// and per MDM entity type.
	locks sync.Map // string -> *sync.Mutex
}

// New creates a new database connection and initializes the schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// Ensure the parent directory exists for file-backed databases.
	if cfg.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
		cfg.Path, numThreads, cfg.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{
		conn: conn,
		cfg:  cfg,
	}

	if err := db.initialize(); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logging.Warn().Err(closeErr).Msg("Error closing database after failed init")
		}
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return db, nil
}

// NewFromConn wraps an existing connection and initializes the schema.
// Used by tests running against an in-memory DuckDB.
func NewFromConn(conn *sql.DB) (*DB, error) {
	db := &DB{conn: conn}
	if err := db.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

// Conn exposes the underlying connection for collaborating stores
// (the audit ledger shares the same database file).
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Close checkpoints and closes the database.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	// Flush the WAL so the next open does not replay it.
	if _, err := db.conn.Exec("CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("Checkpoint before close failed")
	}
	return db.conn.Close()
}

// PartitionLock returns the mutex serializing merges for a month partition.
// Two concurrent runs touching the same partition must not interleave
// insert/update/delete application.
func (db *DB) PartitionLock(monthKey string) *sync.Mutex {
	return db.namedLock("partition:" + monthKey)
}

// EntityLock returns the mutex serializing golden-table rewrites for an
// entity type.
func (db *DB) EntityLock(entity string) *sync.Mutex {
	return db.namedLock("entity:" + entity)
}

func (db *DB) namedLock(name string) *sync.Mutex {
	actual, _ := db.locks.LoadOrStore(name, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// ensureContext guarantees queries have a deadline.
func (db *DB) ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), defaultQueryTimeout)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return context.WithTimeout(ctx, defaultQueryTimeout)
	}
	return ctx, func() {}
}
