// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/mercatus/internal/config"
	"github.com/tomtom215/mercatus/internal/database"
	"github.com/tomtom215/mercatus/internal/fingerprint"
	"github.com/tomtom215/mercatus/internal/logging"
	"github.com/tomtom215/mercatus/internal/mdm"
	"github.com/tomtom215/mercatus/internal/models"
)

// Store is the slice of the database layer the loader needs.
type Store interface {
	LoadGoldenEntities(ctx context.Context, gt database.GoldenTable) ([]models.GoldenEntity, error)
	UpsertDimensionRows(ctx context.Context, table string, attrCols []string, rows []models.DimensionRow, sourceInfo string) (database.DimensionUpsertResult, error)
	DimensionKeysByHash(ctx context.Context, table string) (map[string]int64, error)
	UpsertDateDimension(ctx context.Context, rows []models.DateDimRow) error
	DateKeys(ctx context.Context) (map[string]int, error)
	ChangedProductionOrders(ctx context.Context, since *time.Time) ([]models.ProductionOrder, error)
	UpsertFactRows(ctx context.Context, rows []models.FactRow) error
}

// dimensionSpec wires one golden table to its warehouse dimension. Identity
// is a fingerprint over the business-key columns; fromGolden and fromOrder
// must emit the same column order so golden rows and production rows hash
// alike.
type dimensionSpec struct {
	table      string
	attrCols   []string
	golden     database.GoldenTable
	fromGolden func(g *models.GoldenEntity) []string
	fromOrder  func(o *models.Order) []string
}

func dimensionSpecs() []dimensionSpec {
	entities := make(map[string]database.GoldenTable)
	for _, e := range mdm.Entities() {
		entities[e.Name] = e.Table
	}

	return []dimensionSpec{
		{
			table:    "dim_customers",
			attrCols: []string{"customer_id", "customer_name", "segment"},
			golden:   entities["customers"],
			fromGolden: func(g *models.GoldenEntity) []string {
				return []string{g.NaturalKey, g.Fields[0], g.Fields[1]}
			},
			fromOrder: func(o *models.Order) []string {
				return []string{o.CustomerID, o.CustomerName, o.Segment}
			},
		},
		{
			table:    "dim_products",
			attrCols: []string{"product_id", "product_name", "category", "sub_category"},
			golden:   entities["products"],
			fromGolden: func(g *models.GoldenEntity) []string {
				return []string{g.NaturalKey, g.Fields[0], g.Fields[1], g.Fields[2]}
			},
			fromOrder: func(o *models.Order) []string {
				return []string{o.ProductID, o.ProductName, o.Category, o.SubCategory}
			},
		},
		{
			// Golden location fields are country, region, state, city,
			// postal_code; the dimension carries them in geographic order.
			table:    "dim_geography",
			attrCols: []string{"country", "city", "state", "postal_code", "region"},
			golden:   entities["locations"],
			fromGolden: func(g *models.GoldenEntity) []string {
				return []string{g.Fields[0], g.Fields[3], g.Fields[2], g.Fields[4], g.Fields[1]}
			},
			fromOrder: func(o *models.Order) []string {
				return []string{o.Country, o.City, o.State, o.PostalCode, o.Region}
			},
		},
	}
}

// Loader builds the dimensional model from golden and production data.
type Loader struct {
	cfg   *config.WarehouseConfig
	store Store
}

// New creates a warehouse loader.
func New(cfg *config.WarehouseConfig, store Store) *Loader {
	return &Loader{cfg: cfg, store: store}
}

// Run loads all dimensions, the date dimension, and the fact table.
// Returns the number of fact rows written.
func (l *Loader) Run(ctx context.Context) (int, error) {
	specs := dimensionSpecs()
	for _, spec := range specs {
		if err := l.loadDimension(ctx, spec); err != nil {
			return 0, err
		}
	}
	if err := l.loadDateDimension(ctx); err != nil {
		return 0, err
	}
	return l.loadFacts(ctx, specs)
}

func (l *Loader) loadDimension(ctx context.Context, spec dimensionSpec) error {
	entities, err := l.store.LoadGoldenEntities(ctx, spec.golden)
	if err != nil {
		return fmt.Errorf("failed to load golden entities for %s: %w", spec.table, err)
	}

	rows := make([]models.DimensionRow, 0, len(entities))
	for i := range entities {
		attrs := spec.fromGolden(&entities[i])
		rows = append(rows, models.DimensionRow{
			HashKey:    fingerprint.Row(attrs),
			Attributes: attrs,
		})
	}

	result, err := l.store.UpsertDimensionRows(ctx, spec.table, spec.attrCols, rows, spec.golden.Name)
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", spec.table, err)
	}
	logging.Info().
		Str("dimension", spec.table).
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Msg("Dimension loaded")
	return nil
}

func (l *Loader) loadDateDimension(ctx context.Context) error {
	start, err := time.Parse("2006-01-02", l.cfg.DateStart)
	if err != nil {
		return fmt.Errorf("bad warehouse date_start: %w", err)
	}
	end, err := time.Parse("2006-01-02", l.cfg.DateEnd)
	if err != nil {
		return fmt.Errorf("bad warehouse date_end: %w", err)
	}
	holidays := make([]time.Time, 0, len(l.cfg.Holidays))
	for _, h := range l.cfg.Holidays {
		d, err := time.Parse("2006-01-02", h)
		if err != nil {
			return fmt.Errorf("bad holiday %q: %w", h, err)
		}
		holidays = append(holidays, d)
	}

	rows, err := GenerateDateDim(start, end, l.cfg.FiscalYearStartMonth, holidays)
	if err != nil {
		return err
	}
	if err := l.store.UpsertDateDimension(ctx, rows); err != nil {
		return fmt.Errorf("failed to upsert date dimension: %w", err)
	}
	logging.Info().Int("days", len(rows)).Msg("Date dimension loaded")
	return nil
}

// loadFacts joins every production row to the current dimension surrogate
// keys. A lookup miss leaves the key NULL; it never fails the load.
func (l *Loader) loadFacts(ctx context.Context, specs []dimensionSpec) (int, error) {
	dimKeys := make(map[string]map[string]int64, len(specs))
	for _, spec := range specs {
		keys, err := l.store.DimensionKeysByHash(ctx, spec.table)
		if err != nil {
			return 0, fmt.Errorf("failed to read %s keys: %w", spec.table, err)
		}
		dimKeys[spec.table] = keys
	}
	dateKeys, err := l.store.DateKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read date keys: %w", err)
	}

	production, err := l.store.ChangedProductionOrders(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to read production rows: %w", err)
	}

	facts := make([]models.FactRow, 0, len(production))
	for i := range production {
		o := &production[i].Order
		fact := models.FactRow{
			OrderID:  o.OrderID,
			Sales:    o.Sales,
			Quantity: o.Quantity,
			Discount: o.Discount,
			Profit:   o.Profit,
			ShipMode: o.ShipMode,
		}
		for _, spec := range specs {
			key, ok := dimKeys[spec.table][fingerprint.Row(spec.fromOrder(o))]
			if !ok {
				continue
			}
			k := key
			switch spec.table {
			case "dim_customers":
				fact.CustomerKey = &k
			case "dim_products":
				fact.ProductKey = &k
			case "dim_geography":
				fact.GeographyKey = &k
			}
		}
		fact.OrderDateKey = lookupDateKey(dateKeys, o.OrderDate)
		fact.ShipDateKey = lookupDateKey(dateKeys, o.ShipDate)
		facts = append(facts, fact)
	}

	if err := l.store.UpsertFactRows(ctx, facts); err != nil {
		return 0, fmt.Errorf("failed to upsert fact rows: %w", err)
	}
	logging.Info().Int("rows", len(facts)).Msg("Fact table loaded")
	return len(facts), nil
}

func lookupDateKey(dateKeys map[string]int, d time.Time) *int {
	if d.IsZero() {
		return nil
	}
	key, ok := dateKeys[d.Format("2006-01-02")]
	if !ok {
		return nil
	}
	return &key
}
