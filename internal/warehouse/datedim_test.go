// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

package warehouse

import (
	"reflect"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGenerateDateDimFirstWeekOfJanuary(t *testing.T) {
	rows, err := GenerateDateDim(day(2024, 1, 1), day(2024, 1, 7), 1, nil)
	if err != nil {
		t.Fatalf("GenerateDateDim failed: %v", err)
	}
	if len(rows) != 7 {
		t.Fatalf("Expected 7 days, got %d", len(rows))
	}

	first := rows[0]
	if first.DateKey != 20240101 {
		t.Errorf("DateKey = %d, want 20240101", first.DateKey)
	}
	if !first.IsFirstDayOfMonth {
		t.Error("2024-01-01 must be first day of month")
	}
	if first.DayOfWeek != 0 || first.DayName != "Monday" {
		t.Errorf("2024-01-01 is a Monday: dow=%d name=%s", first.DayOfWeek, first.DayName)
	}
	if first.WeekOfYear != 1 {
		t.Errorf("ISO week = %d, want 1", first.WeekOfYear)
	}

	// Saturday the 6th and Sunday the 7th are the weekend.
	for _, row := range rows {
		wantWeekend := row.Day == 6 || row.Day == 7
		if row.IsWeekend != wantWeekend {
			t.Errorf("Day %d: IsWeekend = %v, want %v", row.Day, row.IsWeekend, wantWeekend)
		}
	}
}

func TestGenerateDateDimCalendarFields(t *testing.T) {
	rows, err := GenerateDateDim(day(2024, 2, 29), day(2024, 2, 29), 1, nil)
	if err != nil {
		t.Fatalf("GenerateDateDim failed: %v", err)
	}
	row := rows[0]

	if row.DateKey != 20240229 {
		t.Errorf("DateKey = %d", row.DateKey)
	}
	if !row.IsLastDayOfMonth {
		t.Error("2024-02-29 is the last day of a leap February")
	}
	if row.Quarter != 1 || row.YearMonth != 202402 || row.MonthName != "February" {
		t.Errorf("Calendar fields mismatch: %+v", row)
	}
	// Calendar fiscal config makes fiscal == calendar.
	if row.FiscalYear != 2024 || row.FiscalMonth != 2 || row.FiscalQuarter != 1 || row.FiscalYearMonth != 202402 {
		t.Errorf("Fiscal fields mismatch: %+v", row)
	}
}

func TestGenerateDateDimFiscalShift(t *testing.T) {
	// Fiscal year starting in April: March 2024 belongs to FY2023 month 12;
	// April 2024 opens FY2024 month 1.
	rows, err := GenerateDateDim(day(2024, 3, 31), day(2024, 4, 1), 4, nil)
	if err != nil {
		t.Fatalf("GenerateDateDim failed: %v", err)
	}

	march := rows[0]
	if march.FiscalYear != 2023 || march.FiscalMonth != 12 || march.FiscalQuarter != 4 {
		t.Errorf("March fiscal fields: %+v", march)
	}
	if march.FiscalYearMonth != 202312 {
		t.Errorf("March FiscalYearMonth = %d", march.FiscalYearMonth)
	}

	april := rows[1]
	if april.FiscalYear != 2024 || april.FiscalMonth != 1 || april.FiscalQuarter != 1 {
		t.Errorf("April fiscal fields: %+v", april)
	}
}

func TestGenerateDateDimHolidays(t *testing.T) {
	holidays := []time.Time{day(2024, 1, 1), day(2024, 12, 25)}
	rows, err := GenerateDateDim(day(2024, 1, 1), day(2024, 1, 2), 1, holidays)
	if err != nil {
		t.Fatalf("GenerateDateDim failed: %v", err)
	}
	if !rows[0].IsHoliday {
		t.Error("2024-01-01 should be a holiday")
	}
	if rows[1].IsHoliday {
		t.Error("2024-01-02 should not be a holiday")
	}
}

func TestGenerateDateDimReproducible(t *testing.T) {
	a, err := GenerateDateDim(day(2024, 1, 1), day(2024, 3, 31), 4, []time.Time{day(2024, 1, 1)})
	if err != nil {
		t.Fatalf("GenerateDateDim failed: %v", err)
	}
	b, err := GenerateDateDim(day(2024, 1, 1), day(2024, 3, 31), 4, []time.Time{day(2024, 1, 1)})
	if err != nil {
		t.Fatalf("GenerateDateDim failed: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("Same inputs must produce identical rows")
	}
}

func TestGenerateDateDimRejectsBadInput(t *testing.T) {
	if _, err := GenerateDateDim(day(2024, 1, 2), day(2024, 1, 1), 1, nil); err == nil {
		t.Error("Reversed range should fail")
	}
	if _, err := GenerateDateDim(day(2024, 1, 1), day(2024, 1, 2), 0, nil); err == nil {
		t.Error("Fiscal month 0 should fail")
	}
	if _, err := GenerateDateDim(day(2024, 1, 1), day(2024, 1, 2), 13, nil); err == nil {
		t.Error("Fiscal month 13 should fail")
	}
}
