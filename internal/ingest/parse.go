// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

package ingest

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/tomtom215/mercatus/internal/models"
)

// Source column headers as delivered by the feed. Row ID in the source is
// ignored; identity is reassigned positionally per file.
const (
	colOrderID      = "Order ID"
	colOrderDate    = "Order Date"
	colShipDate     = "Ship Date"
	colShipMode     = "Ship Mode"
	colCustomerID   = "Customer ID"
	colCustomerName = "Customer Name"
	colSegment      = "Segment"
	colCountry      = "Country"
	colCity         = "City"
	colState        = "State"
	colPostalCode   = "Postal Code"
	colRegion       = "Region"
	colProductID    = "Product ID"
	colCategory     = "Category"
	colSubCategory  = "Sub-Category"
	colProductName  = "Product Name"
	colSales        = "Sales"
	colQuantity     = "Quantity"
	colDiscount     = "Discount"
	colProfit       = "Profit"
)

// requiredColumns must all be present in the header for a file to load.
var requiredColumns = []string{
	colOrderID, colOrderDate, colShipDate, colShipMode,
	colCustomerID, colCustomerName, colSegment,
	colCountry, colCity, colState, colPostalCode, colRegion,
	colProductID, colCategory, colSubCategory, colProductName,
	colSales, colQuantity, colDiscount, colProfit,
}

// decodeToUTF8 returns the payload as UTF-8, treating anything that is not
// already valid UTF-8 as Windows-1252 (the feed's legacy export encoding).
func decodeToUTF8(raw []byte) ([]byte, error) {
	if utf8.Valid(raw) {
		return raw, nil
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("cp1252 decode failed: %w", err)
	}
	return decoded, nil
}

// parseResult is the outcome of parsing one decoded file.
type parseResult struct {
	Orders     []models.Order
	RowsRead   int
	RowsFailed int
}

// parseOrders parses a decoded delimited payload into order rows. Rows that
// fail type casting are counted and skipped; the file keeps loading. Row IDs
// are assigned 1-based in file order across all data rows, failed ones
// included, so a row's identity does not shift when a neighbour is rejected.
func parseOrders(payload []byte, delimiter rune) (*parseResult, error) {
	r := csv.NewReader(strings.NewReader(string(payload)))
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv parse failed: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("file is empty")
	}

	header := records[0]
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing required column %q", col)
		}
	}

	result := &parseResult{}
	for i, record := range records[1:] {
		result.RowsRead++
		rowID := int64(i + 1)

		order, err := castOrder(record, idx)
		if err != nil {
			result.RowsFailed++
			continue
		}
		order.RowID = rowID
		result.Orders = append(result.Orders, *order)
	}
	return result, nil
}

func castOrder(record []string, idx map[string]int) (*models.Order, error) {
	field := func(col string) string {
		i := idx[col]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	orderID := field(colOrderID)
	if orderID == "" {
		return nil, fmt.Errorf("missing order id")
	}

	orderDate, err := castDate(field(colOrderDate))
	if err != nil {
		return nil, fmt.Errorf("bad order date: %w", err)
	}
	shipDate, err := castDate(field(colShipDate))
	if err != nil {
		return nil, fmt.Errorf("bad ship date: %w", err)
	}
	sales, err := castFloat(field(colSales))
	if err != nil {
		return nil, fmt.Errorf("bad sales: %w", err)
	}
	quantity, err := castInt(field(colQuantity))
	if err != nil {
		return nil, fmt.Errorf("bad quantity: %w", err)
	}
	discount, err := castFloat(field(colDiscount))
	if err != nil {
		return nil, fmt.Errorf("bad discount: %w", err)
	}
	profit, err := castFloat(field(colProfit))
	if err != nil {
		return nil, fmt.Errorf("bad profit: %w", err)
	}

	return &models.Order{
		OrderID:      orderID,
		OrderDate:    orderDate,
		ShipDate:     shipDate,
		ShipMode:     field(colShipMode),
		CustomerID:   field(colCustomerID),
		CustomerName: field(colCustomerName),
		Segment:      field(colSegment),
		Country:      field(colCountry),
		City:         field(colCity),
		State:        field(colState),
		PostalCode:   field(colPostalCode),
		Region:       field(colRegion),
		ProductID:    field(colProductID),
		Category:     field(colCategory),
		SubCategory:  field(colSubCategory),
		ProductName:  field(colProductName),
		Sales:        sales,
		Quantity:     quantity,
		Discount:     discount,
		Profit:       profit,
	}, nil
}

func castDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(models.DateFormat, v)
}

func castFloat(v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseFloat(v, 64)
}

func castInt(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}
