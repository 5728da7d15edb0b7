// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

// Package mdm consolidates production order rows into golden master-data
// records, one table per entity type. Consolidation is incremental over a
// per-entity watermark, picks the most complete row per natural key, and
// assigns stable surrogate keys that are never reused or renumbered.
package mdm

import (
	"strings"

	"github.com/tomtom215/mercatus/internal/database"
	"github.com/tomtom215/mercatus/internal/models"
)

// EntitySpec declares how one entity type is extracted from order rows.
type EntitySpec struct {
	// Name identifies the entity in watermarks and audit records.
	Name string
	// Table is the golden table this entity consolidates into.
	Table database.GoldenTable
	// NaturalKey extracts the row's natural key. A blank key drops the row.
	NaturalKey func(o *models.Order) string
	// Fields extracts the important fields, aligned with Table.FieldColumns.
	Fields func(o *models.Order) []string
}

// Entities returns the consolidated entity types: customers, products, and
// locations (composite geographic key).
func Entities() []EntitySpec {
	return []EntitySpec{
		{
			Name: "customers",
			Table: database.GoldenTable{
				Name:         "mdm_customers",
				FieldColumns: []string{"customer_name", "segment"},
			},
			NaturalKey: func(o *models.Order) string { return strings.TrimSpace(o.CustomerID) },
			Fields: func(o *models.Order) []string {
				return []string{o.CustomerName, o.Segment}
			},
		},
		{
			Name: "products",
			Table: database.GoldenTable{
				Name:         "mdm_products",
				FieldColumns: []string{"product_name", "category", "sub_category"},
			},
			NaturalKey: func(o *models.Order) string { return strings.TrimSpace(o.ProductID) },
			Fields: func(o *models.Order) []string {
				return []string{o.ProductName, o.Category, o.SubCategory}
			},
		},
		{
			Name: "locations",
			Table: database.GoldenTable{
				Name:         "mdm_locations",
				FieldColumns: []string{"country", "region", "state", "city", "postal_code"},
			},
			NaturalKey: func(o *models.Order) string { return LocationKey(o) },
			Fields: func(o *models.Order) []string {
				return []string{o.Country, o.Region, o.State, o.City, o.PostalCode}
			},
		},
	}
}

// LocationKey builds the composite geographic natural key. All components
// blank means no key.
func LocationKey(o *models.Order) string {
	parts := []string{o.Country, o.Region, o.State, o.City, o.PostalCode}
	blank := true
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
		if parts[i] != "" {
			blank = false
		}
	}
	if blank {
		return ""
	}
	return strings.Join(parts, "|")
}
