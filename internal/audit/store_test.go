// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

//go:build integration

package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory DuckDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := NewStore(db)
	if err := store.CreateTables(context.Background()); err != nil {
		t.Fatalf("CreateTables failed: %v", err)
	}
	return store
}

func TestSaveFileRecord(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec := &FileRecord{
		RunID:      "run-1",
		FileName:   "JAN2024_orders_2024_02_01_08_00_00.csv",
		MonthKey:   "JAN2024",
		FileDate:   time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC),
		SizeBytes:  1024,
		Checksum:   "abc123",
		RowsRead:   100,
		RowsLoaded: 99,
		RowsFailed: 1,
		Status:     FileLoaded,
	}
	if err := store.SaveFileRecord(ctx, rec); err != nil {
		t.Fatalf("SaveFileRecord failed: %v", err)
	}
	if rec.ID == "" {
		t.Error("Expected a generated record ID")
	}
	if rec.RecordedAt.IsZero() {
		t.Error("Expected a filled recorded_at timestamp")
	}

	got, err := store.FileRecords(ctx, 10)
	if err != nil {
		t.Fatalf("FileRecords failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(got))
	}
	if got[0].MonthKey != "JAN2024" || got[0].RowsLoaded != 99 || got[0].Status != FileLoaded {
		t.Errorf("Record round trip mismatch: %+v", got[0])
	}
}

func TestSaveFileRecordNil(t *testing.T) {
	store := setupTestStore(t)
	if err := store.SaveFileRecord(context.Background(), nil); err == nil {
		t.Fatal("Expected error for nil record")
	}
}

func TestMergeRecordsByPartition(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	t0 := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	for i, partition := range []string{"JAN2024", "FEB2024", "JAN2024"} {
		rec := &MergeRecord{
			RunID:       "run-1",
			Partition:   partition,
			Inserted:    i,
			RunStarted:  t0.Add(time.Duration(i) * time.Hour),
			RunFinished: t0.Add(time.Duration(i)*time.Hour + time.Minute),
		}
		if err := store.SaveMergeRecord(ctx, rec); err != nil {
			t.Fatalf("SaveMergeRecord failed: %v", err)
		}
	}

	jan, err := store.MergeRecords(ctx, "JAN2024")
	if err != nil {
		t.Fatalf("MergeRecords failed: %v", err)
	}
	if len(jan) != 2 {
		t.Fatalf("Expected 2 JAN2024 runs, got %d", len(jan))
	}
	if !jan[0].RunFinished.After(jan[1].RunFinished) {
		t.Error("Expected newest-first ordering")
	}

	all, err := store.MergeRecords(ctx, "")
	if err != nil {
		t.Fatalf("MergeRecords failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 runs total, got %d", len(all))
	}
}

func TestMDMDecisions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	t0 := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	recs := []MDMRecord{
		{RunID: "run-1", Entity: "customers", NaturalKey: "CG-12520", Operation: OpUpsert, ChangedAt: t0},
		{RunID: "run-1", Entity: "customers", NaturalKey: "DV-13045", Operation: OpDelete, Notes: "latest row deleted", ChangedAt: t0.Add(time.Minute)},
		{RunID: "run-1", Entity: "products", NaturalKey: "FUR-BO-10001798", Operation: OpUpsert, ChangedAt: t0},
	}
	if err := store.SaveMDMRecords(ctx, recs); err != nil {
		t.Fatalf("SaveMDMRecords failed: %v", err)
	}

	customers, err := store.MDMDecisions(ctx, "customers", time.Time{})
	if err != nil {
		t.Fatalf("MDMDecisions failed: %v", err)
	}
	if len(customers) != 2 {
		t.Fatalf("Expected 2 customer decisions, got %d", len(customers))
	}
	if customers[0].NaturalKey != "CG-12520" {
		t.Error("Expected oldest-first ordering")
	}
	if customers[1].Operation != OpDelete || customers[1].Notes != "latest row deleted" {
		t.Errorf("Decision round trip mismatch: %+v", customers[1])
	}

	// Window filter.
	later, err := store.MDMDecisions(ctx, "customers", t0)
	if err != nil {
		t.Fatalf("MDMDecisions failed: %v", err)
	}
	if len(later) != 1 || later[0].NaturalKey != "DV-13045" {
		t.Errorf("Expected only the decision after t0, got %+v", later)
	}
}

func TestLastIngestion(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// Empty ledger.
	got, err := store.LastIngestion(ctx, "customers")
	if err != nil {
		t.Fatalf("LastIngestion failed: %v", err)
	}
	if got != nil {
		t.Fatalf("Expected nil for empty ledger, got %v", got)
	}

	// Merge activity only: fall back to the newest merge run.
	mergeEnd := time.Date(2024, 2, 1, 9, 1, 0, 0, time.UTC)
	err = store.SaveMergeRecord(ctx, &MergeRecord{
		RunID: "run-1", Partition: "JAN2024",
		RunStarted: mergeEnd.Add(-time.Minute), RunFinished: mergeEnd,
	})
	if err != nil {
		t.Fatalf("SaveMergeRecord failed: %v", err)
	}
	got, err = store.LastIngestion(ctx, "customers")
	if err != nil {
		t.Fatalf("LastIngestion failed: %v", err)
	}
	if got == nil || !got.Equal(mergeEnd) {
		t.Fatalf("Expected merge fallback %v, got %v", mergeEnd, got)
	}

	// Entity decision wins over the merge fallback.
	decided := mergeEnd.Add(time.Hour)
	err = store.SaveMDMRecords(ctx, []MDMRecord{
		{RunID: "run-2", Entity: "customers", NaturalKey: "CG-12520", Operation: OpUpsert, ChangedAt: decided},
	})
	if err != nil {
		t.Fatalf("SaveMDMRecords failed: %v", err)
	}
	got, err = store.LastIngestion(ctx, "customers")
	if err != nil {
		t.Fatalf("LastIngestion failed: %v", err)
	}
	if got == nil || !got.Equal(decided) {
		t.Fatalf("Expected mdm decision time %v, got %v", decided, got)
	}

	// A different entity still sees only the merge fallback.
	got, err = store.LastIngestion(ctx, "products")
	if err != nil {
		t.Fatalf("LastIngestion failed: %v", err)
	}
	if got == nil || !got.Equal(mergeEnd) {
		t.Fatalf("Expected merge fallback for products, got %v", got)
	}
}
