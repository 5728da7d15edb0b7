// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

package database

import (
	"fmt"
	"strings"
)

// schemaStatements holds the DDL for all fixed tables. Golden (MDM) tables
// are created on demand per entity spec, see golden.go.
const schemaStatements = `
	CREATE TABLE IF NOT EXISTS stg_orders (
		row_id BIGINT NOT NULL,
		order_id VARCHAR NOT NULL,
		order_date DATE,
		ship_date DATE,
		ship_mode VARCHAR,
		customer_id VARCHAR,
		customer_name VARCHAR,
		segment VARCHAR,
		country VARCHAR,
		city VARCHAR,
		state VARCHAR,
		postal_code VARCHAR,
		region VARCHAR,
		product_id VARCHAR,
		category VARCHAR,
		sub_category VARCHAR,
		product_name VARCHAR,
		sales DOUBLE,
		quantity BIGINT,
		discount DOUBLE,
		profit DOUBLE,
		source_file_name VARCHAR NOT NULL,
		source_month_key VARCHAR NOT NULL,
		source_file_date TIMESTAMP,
		ingested_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_stg_month ON stg_orders(source_month_key);

	CREATE TABLE IF NOT EXISTS prd_orders (
		row_id BIGINT NOT NULL,
		order_id VARCHAR NOT NULL,
		order_date DATE,
		ship_date DATE,
		ship_mode VARCHAR,
		customer_id VARCHAR,
		customer_name VARCHAR,
		segment VARCHAR,
		country VARCHAR,
		city VARCHAR,
		state VARCHAR,
		postal_code VARCHAR,
		region VARCHAR,
		product_id VARCHAR,
		category VARCHAR,
		sub_category VARCHAR,
		product_name VARCHAR,
		sales DOUBLE,
		quantity BIGINT,
		discount DOUBLE,
		profit DOUBLE,
		source_month_key VARCHAR NOT NULL,
		hash_key VARCHAR NOT NULL,
		changetype VARCHAR NOT NULL,
		is_deleted BOOLEAN NOT NULL DEFAULT false,
		last_modified_at TIMESTAMP NOT NULL,
		PRIMARY KEY (source_month_key, row_id)
	);

	CREATE INDEX IF NOT EXISTS idx_prd_month ON prd_orders(source_month_key);
	CREATE INDEX IF NOT EXISTS idx_prd_modified ON prd_orders(last_modified_at);

	CREATE TABLE IF NOT EXISTS dim_customers (
		surrogate_key BIGINT NOT NULL,
		hash_key VARCHAR NOT NULL UNIQUE,
		customer_id VARCHAR,
		customer_name VARCHAR,
		segment VARCHAR,
		effective_from TIMESTAMP,
		effective_to TIMESTAMP,
		current_flag BOOLEAN NOT NULL DEFAULT true,
		source_info VARCHAR
	);

	CREATE TABLE IF NOT EXISTS dim_products (
		surrogate_key BIGINT NOT NULL,
		hash_key VARCHAR NOT NULL UNIQUE,
		product_id VARCHAR,
		product_name VARCHAR,
		category VARCHAR,
		sub_category VARCHAR,
		effective_from TIMESTAMP,
		effective_to TIMESTAMP,
		current_flag BOOLEAN NOT NULL DEFAULT true,
		source_info VARCHAR
	);

	CREATE TABLE IF NOT EXISTS dim_geography (
		surrogate_key BIGINT NOT NULL,
		hash_key VARCHAR NOT NULL UNIQUE,
		country VARCHAR,
		city VARCHAR,
		state VARCHAR,
		postal_code VARCHAR,
		region VARCHAR,
		effective_from TIMESTAMP,
		effective_to TIMESTAMP,
		current_flag BOOLEAN NOT NULL DEFAULT true,
		source_info VARCHAR
	);

	CREATE TABLE IF NOT EXISTS dim_date (
		date_key INTEGER PRIMARY KEY,
		full_date DATE NOT NULL,
		day INTEGER NOT NULL,
		day_of_week INTEGER NOT NULL,
		day_name VARCHAR NOT NULL,
		week_of_year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		month_name VARCHAR NOT NULL,
		quarter INTEGER NOT NULL,
		year INTEGER NOT NULL,
		year_month INTEGER NOT NULL,
		fiscal_year INTEGER NOT NULL,
		fiscal_month INTEGER NOT NULL,
		fiscal_quarter INTEGER NOT NULL,
		fiscal_year_month INTEGER NOT NULL,
		is_weekend BOOLEAN NOT NULL,
		is_holiday BOOLEAN NOT NULL,
		is_first_day_of_month BOOLEAN NOT NULL,
		is_last_day_of_month BOOLEAN NOT NULL
	);

	CREATE TABLE IF NOT EXISTS fact_orders_sales (
		order_id VARCHAR PRIMARY KEY,
		order_date_key INTEGER,
		ship_date_key INTEGER,
		customer_key BIGINT,
		product_key BIGINT,
		geography_key BIGINT,
		sales DOUBLE,
		quantity BIGINT,
		discount DOUBLE,
		profit DOUBLE,
		ship_mode VARCHAR
	);
`

// initialize creates all fixed tables and indexes.
func (db *DB) initialize() error {
	for _, stmt := range strings.Split(schemaStatements, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// orderColumns lists the business columns shared by stg_orders and
// prd_orders, in insert order.
const orderColumns = `row_id, order_id, order_date, ship_date, ship_mode,
	customer_id, customer_name, segment,
	country, city, state, postal_code, region,
	product_id, category, sub_category, product_name,
	sales, quantity, discount, profit`
