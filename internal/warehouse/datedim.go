// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

// Package warehouse loads the dimensional model: dimension upserts from the
// golden master-data tables, a generated date dimension, and the sales fact
// build.
package warehouse

import (
	"fmt"
	"time"

	"github.com/tomtom215/mercatus/internal/models"
)

// GenerateDateDim derives one row per day over [start, end]. The derivation
// is a pure function of the inputs: the same range, fiscal start month, and
// holiday set always produce identical rows. day_of_week is Monday=0,
// week_of_year is the ISO week.
func GenerateDateDim(start, end time.Time, fiscalYearStartMonth int, holidays []time.Time) ([]models.DateDimRow, error) {
	if fiscalYearStartMonth < 1 || fiscalYearStartMonth > 12 {
		return nil, fmt.Errorf("fiscal year start month must be 1..12, got %d", fiscalYearStartMonth)
	}
	start = truncateDay(start)
	end = truncateDay(end)
	if end.Before(start) {
		return nil, fmt.Errorf("date range end %s precedes start %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	holidaySet := make(map[int]bool, len(holidays))
	for _, h := range holidays {
		holidaySet[dateKey(truncateDay(h))] = true
	}

	var rows []models.DateDimRow
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := dateKey(d)
		dow := mondayIndexed(d.Weekday())
		_, isoWeek := d.ISOWeek()
		month := int(d.Month())
		year := d.Year()

		fiscalYear := year
		if month < fiscalYearStartMonth {
			fiscalYear = year - 1
		}
		fiscalMonth := ((month-fiscalYearStartMonth)+12)%12 + 1
		fiscalQuarter := (fiscalMonth-1)/3 + 1

		rows = append(rows, models.DateDimRow{
			DateKey:           key,
			FullDate:          d,
			Day:               d.Day(),
			DayOfWeek:         dow,
			DayName:           d.Weekday().String(),
			WeekOfYear:        isoWeek,
			Month:             month,
			MonthName:         d.Month().String(),
			Quarter:           (month-1)/3 + 1,
			Year:              year,
			YearMonth:         year*100 + month,
			FiscalYear:        fiscalYear,
			FiscalMonth:       fiscalMonth,
			FiscalQuarter:     fiscalQuarter,
			FiscalYearMonth:   fiscalYear*100 + fiscalMonth,
			IsWeekend:         dow == 5 || dow == 6,
			IsHoliday:         holidaySet[key],
			IsFirstDayOfMonth: d.Day() == 1,
			IsLastDayOfMonth:  d.AddDate(0, 0, 1).Day() == 1,
		})
	}
	return rows, nil
}

func dateKey(d time.Time) int {
	return d.Year()*10000 + int(d.Month())*100 + d.Day()
}

// mondayIndexed converts Go's Sunday=0 weekday to Monday=0.
func mondayIndexed(w time.Weekday) int {
	return (int(w) + 6) % 7
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
