// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/mercatus/internal/models"
)

// AppendStagedOrders appends one file's rows to the staging table.
// Staging is append-only; each upload generation is distinguished by its
// source_file_date.
func (db *DB) AppendStagedOrders(ctx context.Context, rows []models.StagedOrder) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin staging transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	query := `INSERT INTO stg_orders (` + orderColumns + `,
		source_file_name, source_month_key, source_file_date, ingested_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for i := range rows {
		r := &rows[i]
		args := append(orderArgs(&r.Order),
			r.SourceFileName, r.SourceMonthKey, nullTime(r.SourceFileDate), r.IngestedAt)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert staged row %d: %w", r.RowID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit staging transaction: %w", err)
	}
	return nil
}

// DistinctStagedMonths returns every month partition present in staging.
func (db *DB) DistinctStagedMonths(ctx context.Context) ([]string, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		"SELECT DISTINCT source_month_key FROM stg_orders ORDER BY source_month_key")
	if err != nil {
		return nil, fmt.Errorf("failed to query staged months: %w", err)
	}
	defer rows.Close()

	var months []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("failed to scan staged month: %w", err)
		}
		months = append(months, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating staged months: %w", err)
	}
	return months, nil
}

// StagedOrdersByMonth returns the current staged snapshot for a month: the
// rows of the most recent upload generation, ordered by row_id. Older
// generations remain in staging for traceability but do not participate in
// the merge.
func (db *DB) StagedOrdersByMonth(ctx context.Context, monthKey string) ([]models.StagedOrder, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + orderColumns + `,
		source_file_name, source_month_key, source_file_date, ingested_at
	FROM stg_orders
	WHERE source_month_key = ?
	  AND ingested_at = (SELECT MAX(ingested_at) FROM stg_orders WHERE source_month_key = ?)
	ORDER BY row_id`

	rows, err := db.conn.QueryContext(ctx, query, monthKey, monthKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query staged orders for %s: %w", monthKey, err)
	}
	defer rows.Close()

	var staged []models.StagedOrder
	for rows.Next() {
		var s models.StagedOrder
		var fileDate sql.NullTime
		dests := append(orderScanDests(&s.Order),
			&s.SourceFileName, &s.SourceMonthKey, &fileDate, &s.IngestedAt)
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("failed to scan staged order: %w", err)
		}
		if fileDate.Valid {
			s.SourceFileDate = fileDate.Time
		}
		staged = append(staged, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating staged orders: %w", err)
	}
	return staged, nil
}

// orderArgs returns the insert arguments for the shared business columns,
// in orderColumns order.
func orderArgs(o *models.Order) []any {
	return []any{
		o.RowID, o.OrderID, nullTime(o.OrderDate), nullTime(o.ShipDate), o.ShipMode,
		o.CustomerID, o.CustomerName, o.Segment,
		o.Country, o.City, o.State, o.PostalCode, o.Region,
		o.ProductID, o.Category, o.SubCategory, o.ProductName,
		o.Sales, o.Quantity, o.Discount, o.Profit,
	}
}

// orderScan holds nullable scan targets for one order row.
// scanned values are folded back into the Order by finishOrderScan.
type orderScan struct {
	orderDate sql.NullTime
	shipDate  sql.NullTime
}

// orderScanDests returns scan destinations matching orderColumns.
// Date columns go through a dateScanner so NULLs land as the zero time.
func orderScanDests(o *models.Order) []any {
	holder := &orderScan{}
	return []any{
		&o.RowID, &o.OrderID, scanDate(&holder.orderDate, &o.OrderDate), scanDate(&holder.shipDate, &o.ShipDate), &o.ShipMode,
		&o.CustomerID, &o.CustomerName, &o.Segment,
		&o.Country, &o.City, &o.State, &o.PostalCode, &o.Region,
		&o.ProductID, &o.Category, &o.SubCategory, &o.ProductName,
		&o.Sales, &o.Quantity, &o.Discount, &o.Profit,
	}
}

// dateScanner folds a nullable scanned date into its target on Scan.
type dateScanner struct {
	holder *sql.NullTime
	target *time.Time
}

func (d *dateScanner) Scan(src any) error {
	if err := d.holder.Scan(src); err != nil {
		return err
	}
	if d.holder.Valid {
		*d.target = d.holder.Time
	} else {
		*d.target = time.Time{}
	}
	return nil
}

func scanDate(holder *sql.NullTime, target *time.Time) *dateScanner {
	return &dateScanner{holder: holder, target: target}
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// rollbackQuietly rolls back a transaction, ignoring ErrTxDone after commit.
func rollbackQuietly(tx *sql.Tx) {
	_ = tx.Rollback()
}
