// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/mercatus/internal/models"
)

// ProductionSnapshot returns the current production rows for a month
// partition, ordered by row_id. Soft-deleted rows are included.
func (db *DB) ProductionSnapshot(ctx context.Context, monthKey string) ([]models.ProductionOrder, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + orderColumns + `,
		source_month_key, hash_key, changetype, is_deleted, last_modified_at
	FROM prd_orders
	WHERE source_month_key = ?
	ORDER BY row_id`

	return db.queryProductionOrders(ctx, query, monthKey)
}

// ChangedProductionOrders returns production rows whose changetype marks
// them as inserted, updated, or deleted, modified after the given watermark.
// A nil watermark returns all changed rows (first consolidation run).
// Order is deterministic: last_modified_at, then month, then row_id.
func (db *DB) ChangedProductionOrders(ctx context.Context, since *time.Time) ([]models.ProductionOrder, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + orderColumns + `,
		source_month_key, hash_key, changetype, is_deleted, last_modified_at
	FROM prd_orders
	WHERE changetype IN ('I', 'U', 'D')`

	var args []any
	if since != nil {
		query += ` AND last_modified_at > ?`
		args = append(args, *since)
	}
	query += ` ORDER BY last_modified_at, source_month_key, row_id`

	return db.queryProductionOrders(ctx, query, args...)
}

func (db *DB) queryProductionOrders(ctx context.Context, query string, args ...any) ([]models.ProductionOrder, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query production orders: %w", err)
	}
	defer rows.Close()

	var orders []models.ProductionOrder
	for rows.Next() {
		var p models.ProductionOrder
		var changetype string
		dests := append(orderScanDests(&p.Order),
			&p.SourceMonthKey, &p.HashKey, &changetype, &p.IsDeleted, &p.LastModifiedAt)
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("failed to scan production order: %w", err)
		}
		p.ChangeType = models.ChangeType(changetype)
		orders = append(orders, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating production orders: %w", err)
	}
	return orders, nil
}

// InsertProductionOrders appends new rows to production.
func (db *DB) InsertProductionOrders(ctx context.Context, rows []models.ProductionOrder) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin production insert: %w", err)
	}
	defer rollbackQuietly(tx)

	query := `INSERT INTO prd_orders (` + orderColumns + `,
		source_month_key, hash_key, changetype, is_deleted, last_modified_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for i := range rows {
		p := &rows[i]
		args := append(orderArgs(&p.Order),
			p.SourceMonthKey, p.HashKey, string(p.ChangeType), p.IsDeleted, p.LastModifiedAt)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert production row %d/%s: %w", p.RowID, p.SourceMonthKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit production insert: %w", err)
	}
	return nil
}

// UpdateProductionOrder overwrites one production row's business columns in
// place and refreshes its CDC metadata.
func (db *DB) UpdateProductionOrder(ctx context.Context, p *models.ProductionOrder) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `UPDATE prd_orders SET
		order_id = ?, order_date = ?, ship_date = ?, ship_mode = ?,
		customer_id = ?, customer_name = ?, segment = ?,
		country = ?, city = ?, state = ?, postal_code = ?, region = ?,
		product_id = ?, category = ?, sub_category = ?, product_name = ?,
		sales = ?, quantity = ?, discount = ?, profit = ?,
		hash_key = ?, changetype = ?, is_deleted = false, last_modified_at = ?
	WHERE source_month_key = ? AND row_id = ?`

	args := []any{
		p.OrderID, nullTime(p.OrderDate), nullTime(p.ShipDate), p.ShipMode,
		p.CustomerID, p.CustomerName, p.Segment,
		p.Country, p.City, p.State, p.PostalCode, p.Region,
		p.ProductID, p.Category, p.SubCategory, p.ProductName,
		p.Sales, p.Quantity, p.Discount, p.Profit,
		p.HashKey, string(p.ChangeType), p.LastModifiedAt,
		p.SourceMonthKey, p.RowID,
	}

	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update production row %d/%s: %w", p.RowID, p.SourceMonthKey, err)
	}
	return nil
}

// SoftDeleteProductionRows marks the given row_ids in a partition as
// deleted. Field values are retained; only metadata changes.
func (db *DB) SoftDeleteProductionRows(ctx context.Context, monthKey string, rowIDs []int64, now time.Time) error {
	if len(rowIDs) == 0 {
		return nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	placeholders := make([]string, len(rowIDs))
	args := []any{now, monthKey}
	for i, id := range rowIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf(`UPDATE prd_orders
		SET is_deleted = true, changetype = 'D', last_modified_at = ?
		WHERE source_month_key = ? AND row_id IN (%s)`,
		strings.Join(placeholders, ","))

	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to soft-delete production rows: %w", err)
	}
	return nil
}
