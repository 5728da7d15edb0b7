// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

package models

import "time"

// DimensionRow is one row bound for a dimension table. HashKey is the
// DW-local identity: a fingerprint over the natural-key columns, distinct
// from the golden surrogate key. Attributes is aligned positionally with the
// dimension's attribute column list.
type DimensionRow struct {
	HashKey    string   `json:"hash_key"`
	Attributes []string `json:"attributes"`
}

// DateDimRow is one generated date dimension row. Every field is a pure
// function of FullDate (plus the fiscal start month and holiday set), so
// generation is bit-reproducible for the same inputs.
type DateDimRow struct {
	DateKey           int       `json:"date_key"` // YYYYMMDD
	FullDate          time.Time `json:"full_date"`
	Day               int       `json:"day"`
	DayOfWeek         int       `json:"day_of_week"` // Monday=0 .. Sunday=6
	DayName           string    `json:"day_name"`
	WeekOfYear        int       `json:"week_of_year"` // ISO week
	Month             int       `json:"month"`
	MonthName         string    `json:"month_name"`
	Quarter           int       `json:"quarter"`
	Year              int       `json:"year"`
	YearMonth         int       `json:"year_month"` // YYYYMM
	FiscalYear        int       `json:"fiscal_year"`
	FiscalMonth       int       `json:"fiscal_month"`
	FiscalQuarter     int       `json:"fiscal_quarter"`
	FiscalYearMonth   int       `json:"fiscal_year_month"`
	IsWeekend         bool      `json:"is_weekend"`
	IsHoliday         bool      `json:"is_holiday"`
	IsFirstDayOfMonth bool      `json:"is_first_day_of_month"`
	IsLastDayOfMonth  bool      `json:"is_last_day_of_month"`
}

// FactRow is one fact table row keyed by order ID. Dimension keys are
// pointers: a failed dimension lookup degrades the row to a NULL reference
// rather than failing the load.
type FactRow struct {
	OrderID      string  `json:"order_id"`
	OrderDateKey *int    `json:"order_date_key"`
	ShipDateKey  *int    `json:"ship_date_key"`
	CustomerKey  *int64  `json:"customer_key"`
	ProductKey   *int64  `json:"product_key"`
	GeographyKey *int64  `json:"geography_key"`
	Sales        float64 `json:"sales"`
	Quantity     int64   `json:"quantity"`
	Discount     float64 `json:"discount"`
	Profit       float64 `json:"profit"`
	ShipMode     string  `json:"ship_mode"`
}
