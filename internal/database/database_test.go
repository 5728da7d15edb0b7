// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

//go:build integration

package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/mercatus/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	conn, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory DuckDB: %v", err)
	}
	db, err := NewFromConn(conn)
	if err != nil {
		t.Fatalf("Failed to initialize schema: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return db
}

func testOrder(rowID int64, orderID string) models.Order {
	return models.Order{
		RowID:        rowID,
		OrderID:      orderID,
		OrderDate:    time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		ShipDate:     time.Date(2024, 1, 18, 0, 0, 0, 0, time.UTC),
		ShipMode:     "Second Class",
		CustomerID:   "CG-12520",
		CustomerName: "Claire Gute",
		Segment:      "Consumer",
		Country:      "United States",
		City:         "Henderson",
		State:        "Kentucky",
		PostalCode:   "42420",
		Region:       "South",
		ProductID:    "FUR-BO-10001798",
		Category:     "Furniture",
		SubCategory:  "Bookcases",
		ProductName:  "Bush Somerset Collection Bookcase",
		Sales:        261.96,
		Quantity:     2,
		Discount:     0,
		Profit:       41.91,
	}
}

func TestStagedOrdersRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	ingested := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	staged := []models.StagedOrder{
		{
			Order:          testOrder(1, "CA-2024-152156"),
			SourceFileName: "JAN2024_orders_2024_02_01_08_00_00.csv",
			SourceMonthKey: "JAN2024",
			SourceFileDate: time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC),
			IngestedAt:     ingested,
		},
		{
			Order:          testOrder(2, "CA-2024-152157"),
			SourceFileName: "JAN2024_orders_2024_02_01_08_00_00.csv",
			SourceMonthKey: "JAN2024",
			SourceFileDate: time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC),
			IngestedAt:     ingested,
		},
	}

	if err := db.AppendStagedOrders(ctx, staged); err != nil {
		t.Fatalf("AppendStagedOrders failed: %v", err)
	}

	months, err := db.DistinctStagedMonths(ctx)
	if err != nil {
		t.Fatalf("DistinctStagedMonths failed: %v", err)
	}
	if len(months) != 1 || months[0] != "JAN2024" {
		t.Fatalf("Expected [JAN2024], got %v", months)
	}

	got, err := db.StagedOrdersByMonth(ctx, "JAN2024")
	if err != nil {
		t.Fatalf("StagedOrdersByMonth failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 staged rows, got %d", len(got))
	}
	if got[0].RowID != 1 || got[1].RowID != 2 {
		t.Errorf("Rows not ordered by row_id: %d, %d", got[0].RowID, got[1].RowID)
	}
	if got[0].OrderID != "CA-2024-152156" {
		t.Errorf("OrderID mismatch: %s", got[0].OrderID)
	}
	if !got[0].OrderDate.Equal(staged[0].OrderDate) {
		t.Errorf("OrderDate mismatch: %v", got[0].OrderDate)
	}
}

func TestStagedOrdersByMonthReturnsLatestUpload(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	second := time.Date(2024, 2, 2, 8, 0, 0, 0, time.UTC)

	older := []models.StagedOrder{
		{Order: testOrder(1, "CA-2024-000001"), SourceFileName: "a.csv", SourceMonthKey: "JAN2024", IngestedAt: first},
		{Order: testOrder(2, "CA-2024-000002"), SourceFileName: "a.csv", SourceMonthKey: "JAN2024", IngestedAt: first},
	}
	newer := []models.StagedOrder{
		{Order: testOrder(1, "CA-2024-000001"), SourceFileName: "b.csv", SourceMonthKey: "JAN2024", IngestedAt: second},
	}

	if err := db.AppendStagedOrders(ctx, older); err != nil {
		t.Fatalf("AppendStagedOrders failed: %v", err)
	}
	if err := db.AppendStagedOrders(ctx, newer); err != nil {
		t.Fatalf("AppendStagedOrders failed: %v", err)
	}

	got, err := db.StagedOrdersByMonth(ctx, "JAN2024")
	if err != nil {
		t.Fatalf("StagedOrdersByMonth failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected only the latest upload's 1 row, got %d", len(got))
	}
	if got[0].SourceFileName != "b.csv" {
		t.Errorf("Expected row from b.csv, got %s", got[0].SourceFileName)
	}
}

func TestProductionLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	t0 := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	rows := []models.ProductionOrder{
		{
			Order:          testOrder(1, "CA-2024-152156"),
			SourceMonthKey: "JAN2024",
			HashKey:        "hash-1",
			ChangeType:     models.ChangeInsert,
			LastModifiedAt: t0,
		},
		{
			Order:          testOrder(2, "CA-2024-152157"),
			SourceMonthKey: "JAN2024",
			HashKey:        "hash-2",
			ChangeType:     models.ChangeInsert,
			LastModifiedAt: t0,
		},
	}
	if err := db.InsertProductionOrders(ctx, rows); err != nil {
		t.Fatalf("InsertProductionOrders failed: %v", err)
	}

	snap, err := db.ProductionSnapshot(ctx, "JAN2024")
	if err != nil {
		t.Fatalf("ProductionSnapshot failed: %v", err)
	}
	if len(snap) != 2 {
		t.Fatalf("Expected 2 production rows, got %d", len(snap))
	}
	if snap[0].HashKey != "hash-1" || snap[0].ChangeType != models.ChangeInsert {
		t.Errorf("Unexpected first row: %+v", snap[0])
	}

	// Update row 1.
	t1 := t0.Add(time.Hour)
	updated := rows[0]
	updated.CustomerName = "Claire G."
	updated.HashKey = "hash-1b"
	updated.ChangeType = models.ChangeUpdate
	updated.LastModifiedAt = t1
	if err := db.UpdateProductionOrder(ctx, &updated); err != nil {
		t.Fatalf("UpdateProductionOrder failed: %v", err)
	}

	// Soft-delete row 2.
	if err := db.SoftDeleteProductionRows(ctx, "JAN2024", []int64{2}, t1); err != nil {
		t.Fatalf("SoftDeleteProductionRows failed: %v", err)
	}

	snap, err = db.ProductionSnapshot(ctx, "JAN2024")
	if err != nil {
		t.Fatalf("ProductionSnapshot failed: %v", err)
	}
	if len(snap) != 2 {
		t.Fatalf("Soft delete must retain the row, got %d rows", len(snap))
	}
	if snap[0].CustomerName != "Claire G." || snap[0].ChangeType != models.ChangeUpdate || snap[0].IsDeleted {
		t.Errorf("Unexpected updated row: %+v", snap[0])
	}
	if !snap[1].IsDeleted || snap[1].ChangeType != models.ChangeDelete {
		t.Errorf("Expected soft-deleted row, got %+v", snap[1])
	}

	// Incremental read: only rows modified after t0.
	changed, err := db.ChangedProductionOrders(ctx, &t0)
	if err != nil {
		t.Fatalf("ChangedProductionOrders failed: %v", err)
	}
	if len(changed) != 2 {
		t.Fatalf("Expected 2 changed rows after t0, got %d", len(changed))
	}

	// Nil watermark reads everything.
	all, err := db.ChangedProductionOrders(ctx, nil)
	if err != nil {
		t.Fatalf("ChangedProductionOrders(nil) failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 rows without watermark, got %d", len(all))
	}
}

func TestGoldenTableRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	gt := GoldenTable{
		Name:         "mdm_customers",
		FieldColumns: []string{"customer_name", "segment"},
	}
	if err := db.EnsureGoldenTable(ctx, gt); err != nil {
		t.Fatalf("EnsureGoldenTable failed: %v", err)
	}
	// Idempotent.
	if err := db.EnsureGoldenTable(ctx, gt); err != nil {
		t.Fatalf("EnsureGoldenTable re-run failed: %v", err)
	}

	now := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	entities := []models.GoldenEntity{
		{SurrogateKey: 1, NaturalKey: "AA-10315", Fields: []string{"Alex Avila", "Consumer"}, SourceRowIDs: []int64{3, 7}, GoldenScore: 2, LastUpdated: now},
		{SurrogateKey: 2, NaturalKey: "CG-12520", Fields: []string{"Claire Gute", "Consumer"}, SourceRowIDs: []int64{1}, GoldenScore: 2, LastUpdated: now},
	}
	if err := db.ReplaceGoldenEntities(ctx, gt, entities); err != nil {
		t.Fatalf("ReplaceGoldenEntities failed: %v", err)
	}

	got, err := db.LoadGoldenEntities(ctx, gt)
	if err != nil {
		t.Fatalf("LoadGoldenEntities failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 golden entities, got %d", len(got))
	}
	if got[0].NaturalKey != "AA-10315" || got[0].SurrogateKey != 1 {
		t.Errorf("Unexpected first entity: %+v", got[0])
	}
	if len(got[0].SourceRowIDs) != 2 || got[0].SourceRowIDs[1] != 7 {
		t.Errorf("Source list lost in round trip: %v", got[0].SourceRowIDs)
	}
	if got[1].Fields[0] != "Claire Gute" {
		t.Errorf("Field mismatch: %v", got[1].Fields)
	}

	// A full rewrite replaces, it does not accumulate.
	if err := db.ReplaceGoldenEntities(ctx, gt, entities[:1]); err != nil {
		t.Fatalf("ReplaceGoldenEntities rewrite failed: %v", err)
	}
	got, err = db.LoadGoldenEntities(ctx, gt)
	if err != nil {
		t.Fatalf("LoadGoldenEntities failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 golden entity after rewrite, got %d", len(got))
	}
}

func TestReplaceGoldenEntitiesRejectsFieldMismatch(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	gt := GoldenTable{Name: "mdm_products", FieldColumns: []string{"product_name", "category", "sub_category"}}
	if err := db.EnsureGoldenTable(ctx, gt); err != nil {
		t.Fatalf("EnsureGoldenTable failed: %v", err)
	}

	bad := []models.GoldenEntity{{SurrogateKey: 1, NaturalKey: "X", Fields: []string{"only one"}}}
	if err := db.ReplaceGoldenEntities(ctx, gt, bad); err == nil {
		t.Fatal("Expected field-count mismatch error, got nil")
	}
}

func TestUpsertDimensionRows(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	attrCols := []string{"customer_id", "customer_name", "segment"}
	rows := []models.DimensionRow{
		{HashKey: "h1", Attributes: []string{"CG-12520", "Claire Gute", "Consumer"}},
		{HashKey: "h2", Attributes: []string{"DV-13045", "Darrin Van Huff", "Corporate"}},
	}

	res, err := db.UpsertDimensionRows(ctx, "dim_customers", attrCols, rows, "run-1")
	if err != nil {
		t.Fatalf("UpsertDimensionRows failed: %v", err)
	}
	if res.Inserted != 2 || res.Updated != 0 {
		t.Fatalf("Expected 2 inserts, got %+v", res)
	}

	keys, err := db.DimensionKeysByHash(ctx, "dim_customers")
	if err != nil {
		t.Fatalf("DimensionKeysByHash failed: %v", err)
	}
	if keys["h1"] != 1 || keys["h2"] != 2 {
		t.Errorf("Expected surrogate keys 1 and 2, got %v", keys)
	}

	// Second pass: one changed attribute set, one new key. Existing keys
	// keep their surrogates.
	rows = []models.DimensionRow{
		{HashKey: "h1", Attributes: []string{"CG-12520", "Claire G.", "Consumer"}},
		{HashKey: "h3", Attributes: []string{"SO-20335", "Sean O'Donnell", "Consumer"}},
	}
	res, err = db.UpsertDimensionRows(ctx, "dim_customers", attrCols, rows, "run-2")
	if err != nil {
		t.Fatalf("UpsertDimensionRows failed: %v", err)
	}
	if res.Inserted != 1 || res.Updated != 1 {
		t.Fatalf("Expected 1 insert and 1 update, got %+v", res)
	}

	keys, err = db.DimensionKeysByHash(ctx, "dim_customers")
	if err != nil {
		t.Fatalf("DimensionKeysByHash failed: %v", err)
	}
	if keys["h1"] != 1 {
		t.Errorf("Existing surrogate key changed: %v", keys)
	}
	if keys["h3"] != 3 {
		t.Errorf("Expected new surrogate key 3, got %d", keys["h3"])
	}

	var name string
	err = db.Conn().QueryRowContext(ctx, "SELECT customer_name FROM dim_customers WHERE hash_key = 'h1'").Scan(&name)
	if err != nil {
		t.Fatalf("Failed to read updated attribute: %v", err)
	}
	if name != "Claire G." {
		t.Errorf("Attribute not overwritten in place: %s", name)
	}
}

func TestUpsertDateDimension(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	rows := []models.DateDimRow{
		{
			DateKey: 20240115, FullDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			Day: 15, DayOfWeek: 0, DayName: "Monday", WeekOfYear: 3,
			Month: 1, MonthName: "January", Quarter: 1, Year: 2024, YearMonth: 202401,
			FiscalYear: 2024, FiscalMonth: 1, FiscalQuarter: 1, FiscalYearMonth: 202401,
		},
	}
	if err := db.UpsertDateDimension(ctx, rows); err != nil {
		t.Fatalf("UpsertDateDimension failed: %v", err)
	}

	// Re-run with changed holiday flag upserts, not duplicates.
	rows[0].IsHoliday = true
	if err := db.UpsertDateDimension(ctx, rows); err != nil {
		t.Fatalf("UpsertDateDimension re-run failed: %v", err)
	}

	keys, err := db.DateKeys(ctx)
	if err != nil {
		t.Fatalf("DateKeys failed: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("Expected 1 date row, got %d", len(keys))
	}
	if keys["2024-01-15"] != 20240115 {
		t.Errorf("Date key lookup mismatch: %v", keys)
	}

	var holiday bool
	err = db.Conn().QueryRowContext(ctx, "SELECT is_holiday FROM dim_date WHERE date_key = 20240115").Scan(&holiday)
	if err != nil {
		t.Fatalf("Failed to read holiday flag: %v", err)
	}
	if !holiday {
		t.Error("Holiday flag not overwritten on re-run")
	}
}

func TestUpsertFactRows(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	orderKey := 20240115
	custKey := int64(1)
	rows := []models.FactRow{
		{
			OrderID:      "CA-2024-152156",
			OrderDateKey: &orderKey,
			CustomerKey:  &custKey,
			Sales:        261.96,
			Quantity:     2,
			Profit:       41.91,
			ShipMode:     "Second Class",
		},
	}
	if err := db.UpsertFactRows(ctx, rows); err != nil {
		t.Fatalf("UpsertFactRows failed: %v", err)
	}

	// Unresolvable dimensions land as NULL keys, and a re-run overwrites.
	rows[0].CustomerKey = nil
	rows[0].Sales = 300
	if err := db.UpsertFactRows(ctx, rows); err != nil {
		t.Fatalf("UpsertFactRows re-run failed: %v", err)
	}

	var count int
	if err := db.Conn().QueryRowContext(ctx, "SELECT COUNT(*) FROM fact_orders_sales").Scan(&count); err != nil {
		t.Fatalf("Failed to count fact rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("Expected 1 fact row after upsert, got %d", count)
	}

	var sales float64
	var customerKey sql.NullInt64
	err := db.Conn().QueryRowContext(ctx,
		"SELECT sales, customer_key FROM fact_orders_sales WHERE order_id = ?", "CA-2024-152156").
		Scan(&sales, &customerKey)
	if err != nil {
		t.Fatalf("Failed to read fact row: %v", err)
	}
	if sales != 300 {
		t.Errorf("Sales not overwritten: %v", sales)
	}
	if customerKey.Valid {
		t.Errorf("Expected NULL customer key, got %d", customerKey.Int64)
	}
}

func TestNamedLocksAreStable(t *testing.T) {
	db := setupTestDB(t)

	if db.PartitionLock("JAN2024") != db.PartitionLock("JAN2024") {
		t.Error("PartitionLock must return the same mutex for the same month")
	}
	if db.PartitionLock("JAN2024") == db.PartitionLock("FEB2024") {
		t.Error("Different partitions must not share a mutex")
	}
	if db.EntityLock("customers") == db.PartitionLock("customers") {
		t.Error("Entity and partition namespaces must not collide")
	}
}
