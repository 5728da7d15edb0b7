// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

// Package watermark tracks per-entity consolidation watermarks. A watermark
// is the last_modified_at cutoff the next incremental consolidation run
// reads from; it only advances after a successful run, so a failed run
// replays its window.
package watermark

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// keyPrefix namespaces watermark records in the shared Badger store.
const keyPrefix = "mdm:watermark:"

// Record is the persisted watermark for one entity type.
type Record struct {
	Entity    string    `json:"entity"`
	Watermark time.Time `json:"watermark"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists per-entity watermarks.
type Store interface {
	// Get returns the entity's watermark, or nil when none has been saved.
	Get(ctx context.Context, entity string) (*time.Time, error)
	// Set advances the entity's watermark. Moving it backwards is rejected.
	Set(ctx context.Context, entity string, t time.Time) error
	// Clear removes the entity's watermark, forcing a full re-read.
	Clear(ctx context.Context, entity string) error
}

// BadgerStore implements Store using BadgerDB for persistence across runs.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a watermark store on the provided BadgerDB instance.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Open opens (or creates) a BadgerDB at path and returns a store over it.
// The caller owns the returned DB handle and must close it.
func Open(path string, inMemory bool) (*BadgerStore, *badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if inMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("open watermark store: %w", err)
	}
	return NewBadgerStore(db), db, nil
}

func (s *BadgerStore) Get(ctx context.Context, entity string) (*time.Time, error) {
	var rec Record

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(watermarkKey(entity))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load watermark for %s: %w", entity, err)
	}

	if rec.Watermark.IsZero() {
		return nil, nil
	}
	t := rec.Watermark
	return &t, nil
}

func (s *BadgerStore) Set(ctx context.Context, entity string, t time.Time) error {
	current, err := s.Get(ctx, entity)
	if err != nil {
		return err
	}
	if current != nil && t.Before(*current) {
		return fmt.Errorf("watermark for %s cannot move backwards: %s < %s",
			entity, t.Format(time.RFC3339), current.Format(time.RFC3339))
	}

	rec := Record{Entity: entity, Watermark: t, UpdatedAt: time.Now().UTC()}
	data, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("marshal watermark for %s: %w", entity, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(watermarkKey(entity), data)
	})
	if err != nil {
		return fmt.Errorf("save watermark for %s: %w", entity, err)
	}
	return nil
}

func (s *BadgerStore) Clear(ctx context.Context, entity string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(watermarkKey(entity))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("clear watermark for %s: %w", entity, err)
	}
	return nil
}

func watermarkKey(entity string) []byte {
	return []byte(keyPrefix + entity)
}

// InMemoryStore implements Store with in-process storage. Useful for tests
// and single-shot runs where persistence is not required.
type InMemoryStore struct {
	mu    sync.RWMutex
	marks map[string]time.Time
}

// NewInMemoryStore creates an empty in-memory watermark store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{marks: make(map[string]time.Time)}
}

func (s *InMemoryStore) Get(_ context.Context, entity string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.marks[entity]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *InMemoryStore) Set(_ context.Context, entity string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.marks[entity]; ok && t.Before(current) {
		return fmt.Errorf("watermark for %s cannot move backwards: %s < %s",
			entity, t.Format(time.RFC3339), current.Format(time.RFC3339))
	}
	s.marks[entity] = t
	return nil
}

func (s *InMemoryStore) Clear(_ context.Context, entity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.marks, entity)
	return nil
}
