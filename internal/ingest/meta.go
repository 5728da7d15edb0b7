// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

package ingest

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FileMeta is the metadata encoded in a landing-zone file name. The expected
// layout is MONTHYEAR_TABLENAME_YYYY_MM_DD_HH_MM_SS.csv, e.g.
// JAN2024_orders_2024_02_01_08_30_00.csv.
type FileMeta struct {
	FileName  string
	MonthKey  string
	TableName string
	FileDate  time.Time
}

// ParseFileName extracts the month partition key, table name, and export
// timestamp from a landing file name.
func ParseFileName(name string) (FileMeta, error) {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	parts := strings.Split(stem, "_")
	if len(parts) != 8 {
		return FileMeta{}, fmt.Errorf("file name %q does not match MONTHYEAR_TABLE_YYYY_MM_DD_HH_MM_SS", base)
	}

	nums := make([]int, 6)
	for i, p := range parts[2:] {
		n, err := strconv.Atoi(p)
		if err != nil {
			return FileMeta{}, fmt.Errorf("file name %q has non-numeric timestamp part %q", base, p)
		}
		nums[i] = n
	}

	meta := FileMeta{
		FileName:  base,
		MonthKey:  parts[0],
		TableName: parts[1],
		FileDate:  time.Date(nums[0], time.Month(nums[1]), nums[2], nums[3], nums[4], nums[5], 0, time.UTC),
	}
	if meta.MonthKey == "" || meta.TableName == "" {
		return FileMeta{}, fmt.Errorf("file name %q has an empty month key or table name", base)
	}
	return meta, nil
}
