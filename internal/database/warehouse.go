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

// DimensionUpsertResult reports one dimension upsert.
type DimensionUpsertResult struct {
	Inserted int
	Updated  int
}

// UpsertDimensionRows upserts rows into a dimension table, matching by
// hash_key. New keys receive a fresh surrogate key (max existing + 1,
// assigned in input order); existing keys have their attribute columns
// overwritten in place. History is not versioned.
func (db *DB) UpsertDimensionRows(ctx context.Context, table string, attrCols []string, rows []models.DimensionRow, sourceInfo string) (DimensionUpsertResult, error) {
	var result DimensionUpsertResult
	if len(rows) == 0 {
		return result, nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin dimension upsert for %s: %w", table, err)
	}
	defer rollbackQuietly(tx)

	existing := make(map[string]int64)
	var maxKey int64
	keyRows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT hash_key, surrogate_key FROM %s", table))
	if err != nil {
		return result, fmt.Errorf("failed to read dimension keys from %s: %w", table, err)
	}
	for keyRows.Next() {
		var hash string
		var key int64
		if err := keyRows.Scan(&hash, &key); err != nil {
			keyRows.Close()
			return result, fmt.Errorf("failed to scan dimension key from %s: %w", table, err)
		}
		existing[hash] = key
		if key > maxKey {
			maxKey = key
		}
	}
	if err := keyRows.Err(); err != nil {
		keyRows.Close()
		return result, fmt.Errorf("error iterating dimension keys from %s: %w", table, err)
	}
	keyRows.Close()

	now := time.Now().UTC()

	setClauses := make([]string, len(attrCols))
	for i, c := range attrCols {
		setClauses[i] = c + " = ?"
	}
	updateQuery := fmt.Sprintf(`UPDATE %s SET %s, current_flag = true, source_info = ? WHERE hash_key = ?`,
		table, strings.Join(setClauses, ", "))

	insertQuery := fmt.Sprintf(`INSERT INTO %s (surrogate_key, hash_key, %s, effective_from, effective_to, current_flag, source_info)
		VALUES (?, ?, %sNULL, true, ?)`,
		table, strings.Join(attrCols, ", "), strings.Repeat("?, ", len(attrCols)+1))

	for i := range rows {
		r := &rows[i]
		if len(r.Attributes) != len(attrCols) {
			return result, fmt.Errorf("dimension row for %s has %d attributes, expected %d",
				table, len(r.Attributes), len(attrCols))
		}
		if _, ok := existing[r.HashKey]; ok {
			args := make([]any, 0, len(attrCols)+2)
			for _, a := range r.Attributes {
				args = append(args, a)
			}
			args = append(args, sourceInfo, r.HashKey)
			if _, err := tx.ExecContext(ctx, updateQuery, args...); err != nil {
				return result, fmt.Errorf("failed to update dimension row in %s: %w", table, err)
			}
			result.Updated++
			continue
		}

		maxKey++
		existing[r.HashKey] = maxKey
		args := []any{maxKey, r.HashKey}
		for _, a := range r.Attributes {
			args = append(args, a)
		}
		args = append(args, now, sourceInfo)
		if _, err := tx.ExecContext(ctx, insertQuery, args...); err != nil {
			return result, fmt.Errorf("failed to insert dimension row into %s: %w", table, err)
		}
		result.Inserted++
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit dimension upsert for %s: %w", table, err)
	}
	return result, nil
}

// DimensionKeysByHash returns the current hash_key -> surrogate_key mapping
// of a dimension table, used for fact-row lookups.
func (db *DB) DimensionKeysByHash(ctx context.Context, table string) (map[string]int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		fmt.Sprintf("SELECT hash_key, surrogate_key FROM %s WHERE current_flag", table))
	if err != nil {
		return nil, fmt.Errorf("failed to query dimension keys from %s: %w", table, err)
	}
	defer rows.Close()

	keys := make(map[string]int64)
	for rows.Next() {
		var hash string
		var key int64
		if err := rows.Scan(&hash, &key); err != nil {
			return nil, fmt.Errorf("failed to scan dimension key from %s: %w", table, err)
		}
		keys[hash] = key
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dimension keys from %s: %w", table, err)
	}
	return keys, nil
}

// UpsertDateDimension upserts generated date rows keyed by date_key.
func (db *DB) UpsertDateDimension(ctx context.Context, rows []models.DateDimRow) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin date dimension upsert: %w", err)
	}
	defer rollbackQuietly(tx)

	query := `INSERT INTO dim_date (
		date_key, full_date, day, day_of_week, day_name, week_of_year,
		month, month_name, quarter, year, year_month,
		fiscal_year, fiscal_month, fiscal_quarter, fiscal_year_month,
		is_weekend, is_holiday, is_first_day_of_month, is_last_day_of_month
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (date_key) DO UPDATE SET
		full_date = EXCLUDED.full_date,
		day = EXCLUDED.day,
		day_of_week = EXCLUDED.day_of_week,
		day_name = EXCLUDED.day_name,
		week_of_year = EXCLUDED.week_of_year,
		month = EXCLUDED.month,
		month_name = EXCLUDED.month_name,
		quarter = EXCLUDED.quarter,
		year = EXCLUDED.year,
		year_month = EXCLUDED.year_month,
		fiscal_year = EXCLUDED.fiscal_year,
		fiscal_month = EXCLUDED.fiscal_month,
		fiscal_quarter = EXCLUDED.fiscal_quarter,
		fiscal_year_month = EXCLUDED.fiscal_year_month,
		is_weekend = EXCLUDED.is_weekend,
		is_holiday = EXCLUDED.is_holiday,
		is_first_day_of_month = EXCLUDED.is_first_day_of_month,
		is_last_day_of_month = EXCLUDED.is_last_day_of_month`

	for i := range rows {
		d := &rows[i]
		_, err := tx.ExecContext(ctx, query,
			d.DateKey, d.FullDate, d.Day, d.DayOfWeek, d.DayName, d.WeekOfYear,
			d.Month, d.MonthName, d.Quarter, d.Year, d.YearMonth,
			d.FiscalYear, d.FiscalMonth, d.FiscalQuarter, d.FiscalYearMonth,
			d.IsWeekend, d.IsHoliday, d.IsFirstDayOfMonth, d.IsLastDayOfMonth)
		if err != nil {
			return fmt.Errorf("failed to upsert date dimension row %d: %w", d.DateKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit date dimension upsert: %w", err)
	}
	return nil
}

// DateKeys returns the full_date -> date_key mapping of the date dimension.
// Map keys use the YYYY-MM-DD layout.
func (db *DB) DateKeys(ctx context.Context) (map[string]int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, "SELECT full_date, date_key FROM dim_date")
	if err != nil {
		return nil, fmt.Errorf("failed to query date keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]int)
	for rows.Next() {
		var fullDate time.Time
		var key int
		if err := rows.Scan(&fullDate, &key); err != nil {
			return nil, fmt.Errorf("failed to scan date key: %w", err)
		}
		keys[fullDate.Format("2006-01-02")] = key
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating date keys: %w", err)
	}
	return keys, nil
}

// UpsertFactRows upserts fact rows keyed by order_id. Conflicting keys
// overwrite all non-key columns.
func (db *DB) UpsertFactRows(ctx context.Context, rows []models.FactRow) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin fact upsert: %w", err)
	}
	defer rollbackQuietly(tx)

	query := `INSERT INTO fact_orders_sales (
		order_id, order_date_key, ship_date_key, customer_key, product_key, geography_key,
		sales, quantity, discount, profit, ship_mode
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (order_id) DO UPDATE SET
		order_date_key = EXCLUDED.order_date_key,
		ship_date_key = EXCLUDED.ship_date_key,
		customer_key = EXCLUDED.customer_key,
		product_key = EXCLUDED.product_key,
		geography_key = EXCLUDED.geography_key,
		sales = EXCLUDED.sales,
		quantity = EXCLUDED.quantity,
		discount = EXCLUDED.discount,
		profit = EXCLUDED.profit,
		ship_mode = EXCLUDED.ship_mode`

	for i := range rows {
		f := &rows[i]
		_, err := tx.ExecContext(ctx, query,
			f.OrderID, nullInt(f.OrderDateKey), nullInt(f.ShipDateKey),
			nullInt64(f.CustomerKey), nullInt64(f.ProductKey), nullInt64(f.GeographyKey),
			f.Sales, f.Quantity, f.Discount, f.Profit, f.ShipMode)
		if err != nil {
			return fmt.Errorf("failed to upsert fact row %s: %w", f.OrderID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit fact upsert: %w", err)
	}
	return nil
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
