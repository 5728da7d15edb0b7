// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

// Package dq runs configured data-quality checks over the staging and
// production tables and writes violation reports. Checks select predicates
// from a closed named registry; there is no expression evaluation. Check
// failures are reported, never fatal to the batch.
package dq

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/mercatus/internal/models"
)

// Predicate reports whether a column value violates the check. Value is the
// canonical string form of the column; args come from the check config.
type Predicate func(value string, args []string) bool

// predicates is the closed registry of named checks.
var predicates = map[string]Predicate{
	"not_null":      notNull,
	"non_negative":  nonNegative,
	"date_ddmmyyyy": dateDDMMYYYY,
	"allowed_set":   allowedSet,
}

// LookupPredicate returns the named predicate.
func LookupPredicate(name string) (Predicate, error) {
	p, ok := predicates[name]
	if !ok {
		return nil, fmt.Errorf("unknown predicate %q", name)
	}
	return p, nil
}

func notNull(value string, _ []string) bool {
	return strings.TrimSpace(value) == ""
}

func nonNegative(value string, _ []string) bool {
	v := strings.TrimSpace(value)
	if v == "" {
		return false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return true
	}
	return f < 0
}

func dateDDMMYYYY(value string, _ []string) bool {
	v := strings.TrimSpace(value)
	if v == "" {
		return false
	}
	_, err := time.Parse(models.DateFormat, v)
	return err != nil
}

func allowedSet(value string, args []string) bool {
	v := strings.TrimSpace(value)
	if v == "" {
		return false
	}
	for _, allowed := range args {
		if strings.EqualFold(v, strings.TrimSpace(allowed)) {
			return false
		}
	}
	return true
}

// columnValue returns the canonical string form of an order column. Dates
// use the feed's dd-mm-yyyy layout; a zero date is blank.
func columnValue(o *models.Order, column string) (string, error) {
	switch column {
	case "row_id":
		return strconv.FormatInt(o.RowID, 10), nil
	case "order_id":
		return o.OrderID, nil
	case "order_date":
		return formatDate(o.OrderDate), nil
	case "ship_date":
		return formatDate(o.ShipDate), nil
	case "ship_mode":
		return o.ShipMode, nil
	case "customer_id":
		return o.CustomerID, nil
	case "customer_name":
		return o.CustomerName, nil
	case "segment":
		return o.Segment, nil
	case "country":
		return o.Country, nil
	case "city":
		return o.City, nil
	case "state":
		return o.State, nil
	case "postal_code":
		return o.PostalCode, nil
	case "region":
		return o.Region, nil
	case "product_id":
		return o.ProductID, nil
	case "category":
		return o.Category, nil
	case "sub_category":
		return o.SubCategory, nil
	case "product_name":
		return o.ProductName, nil
	case "sales":
		return strconv.FormatFloat(o.Sales, 'f', -1, 64), nil
	case "quantity":
		return strconv.FormatInt(o.Quantity, 10), nil
	case "discount":
		return strconv.FormatFloat(o.Discount, 'f', -1, 64), nil
	case "profit":
		return strconv.FormatFloat(o.Profit, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("unknown column %q", column)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(models.DateFormat)
}
