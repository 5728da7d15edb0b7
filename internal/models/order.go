// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

// Package models defines the shared row types flowing through the pipeline:
// business order rows, staging and production metadata, golden entities, and
// run summaries.
package models

import (
	"strconv"
	"time"
)

// DateFormat is the canonical date layout used when stringifying order dates
// for fingerprinting and reporting (matches the source feed's dd-mm-yyyy).
const DateFormat = "02-01-2006"

// Order is one retail order line as delivered by the source feed.
// RowID is a 1-based position within the source file and is the row's stable
// identity inside its month partition.
type Order struct {
	RowID        int64     `json:"row_id"`
	OrderID      string    `json:"order_id"`
	OrderDate    time.Time `json:"order_date"`
	ShipDate     time.Time `json:"ship_date"`
	ShipMode     string    `json:"ship_mode"`
	CustomerID   string    `json:"customer_id"`
	CustomerName string    `json:"customer_name"`
	Segment      string    `json:"segment"`
	Country      string    `json:"country"`
	City         string    `json:"city"`
	State        string    `json:"state"`
	PostalCode   string    `json:"postal_code"`
	Region       string    `json:"region"`
	ProductID    string    `json:"product_id"`
	Category     string    `json:"category"`
	SubCategory  string    `json:"sub_category"`
	ProductName  string    `json:"product_name"`
	Sales        float64   `json:"sales"`
	Quantity     int64     `json:"quantity"`
	Discount     float64   `json:"discount"`
	Profit       float64   `json:"profit"`
}

// BusinessValues returns the ordered, stringified business columns used for
// change-detection fingerprinting. RowID is identity, not content, and is
// excluded. The order here is fixed; changing it changes every fingerprint.
func (o *Order) BusinessValues() []string {
	return []string{
		o.OrderID,
		formatDate(o.OrderDate),
		formatDate(o.ShipDate),
		o.ShipMode,
		o.CustomerID,
		o.CustomerName,
		o.Segment,
		o.Country,
		o.City,
		o.State,
		o.PostalCode,
		o.Region,
		o.ProductID,
		o.Category,
		o.SubCategory,
		o.ProductName,
		strconv.FormatFloat(o.Sales, 'f', -1, 64),
		strconv.FormatInt(o.Quantity, 10),
		strconv.FormatFloat(o.Discount, 'f', -1, 64),
		strconv.FormatFloat(o.Profit, 'f', -1, 64),
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateFormat)
}

// StagedOrder is an order row freshly loaded into staging, carrying source
// file provenance.
type StagedOrder struct {
	Order

	SourceFileName string    `json:"source_file_name"`
	SourceMonthKey string    `json:"source_month_key"` // Partition key, e.g. "JAN2024"
	SourceFileDate time.Time `json:"source_file_date"`
	IngestedAt     time.Time `json:"ingested_at"`
}

// ChangeType marks how a production row last changed.
type ChangeType string

const (
	ChangeInsert ChangeType = "I"
	ChangeUpdate ChangeType = "U"
	ChangeDelete ChangeType = "D"
)

// ProductionOrder is an order row in the production table together with its
// CDC metadata. Rows are never physically deleted; deletions are soft.
type ProductionOrder struct {
	Order

	SourceMonthKey string     `json:"source_month_key"`
	HashKey        string     `json:"hash_key"`
	ChangeType     ChangeType `json:"changetype"`
	IsDeleted      bool       `json:"is_deleted"`
	LastModifiedAt time.Time  `json:"last_modified_at"`
}

// GoldenEntity is one deduplicated master-data record. Fields is aligned
// positionally with the owning entity spec's field names.
type GoldenEntity struct {
	SurrogateKey int64     `json:"surrogate_key"`
	NaturalKey   string    `json:"natural_key"`
	Fields       []string  `json:"fields"`
	SourceRowIDs []int64   `json:"source_list"`  // Contributing production Row IDs
	GoldenScore  int       `json:"golden_score"` // Non-blank important fields in the winning row
	LastUpdated  time.Time `json:"last_updated"`
}

// MergeSummary reports one partition's staging-to-production merge.
type MergeSummary struct {
	Partition   string    `json:"partition"`
	Inserted    int       `json:"inserted"`
	Updated     int       `json:"updated"`
	Deleted     int       `json:"deleted"`
	Unchanged   int       `json:"unchanged"`
	RunStarted  time.Time `json:"run_started"`
	RunFinished time.Time `json:"run_finished"`
}

// NoOp reports whether the merge made no changes at all.
func (m *MergeSummary) NoOp() bool {
	return m.Inserted == 0 && m.Updated == 0 && m.Deleted == 0
}

// EntitySummary reports one entity type's consolidation run.
type EntitySummary struct {
	Entity     string `json:"entity"`
	Upserted   int    `json:"upserted"`
	Tombstoned int    `json:"tombstoned"`
	GoldenSize int    `json:"golden_size"` // Entities in the golden table after the run
}

// RunSummary is the per-invocation report consumed by the notification layer.
// It is always produced, even for a zero-change run.
type RunSummary struct {
	RunID       string          `json:"run_id"`
	Started     time.Time       `json:"started"`
	Finished    time.Time       `json:"finished"`
	FilesStaged int             `json:"files_staged"`
	FilesFailed int             `json:"files_failed"`
	Merges      []MergeSummary  `json:"merges,omitempty"`
	Entities    []EntitySummary `json:"entities,omitempty"`
	FactRows    int             `json:"fact_rows"`
	Warnings    []string        `json:"warnings,omitempty"`
}
