// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

package dq

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary  = "Inconsistencies_Summary"
	sheetExamples = "Inconsistencies_Examples"
	sheetQuality  = "Quality_Report"

	// maxExampleRows caps the examples sheet; the CSV carries every violation.
	maxExampleRows = 100
)

// writeReports writes the violations CSV and the Excel workbook into the
// configured report directory, stamping both with the run time.
func (r *Runner) writeReports(runID string, res *Result) error {
	if err := os.MkdirAll(r.cfg.ReportDir, 0o755); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}
	stamp := r.now().UTC().Format("20060102_150405")

	csvPath := filepath.Join(r.cfg.ReportDir, "dq_violations_"+stamp+".csv")
	if err := writeViolationsCSV(csvPath, res.Violations); err != nil {
		return err
	}
	res.CSVPath = csvPath

	bookPath := filepath.Join(r.cfg.ReportDir, "dq_report_"+stamp+".xlsx")
	if err := r.writeWorkbook(bookPath, runID, res); err != nil {
		return err
	}
	res.WorkbookPath = bookPath
	return nil
}

func writeViolationsCSV(path string, violations []Violation) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating violations csv: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"target", "check", "column", "month_key", "row_id", "order_id", "value"}); err != nil {
		f.Close()
		return err
	}
	for _, v := range violations {
		record := []string{
			string(v.Target), v.Check, v.Column, v.MonthKey,
			strconv.FormatInt(v.RowID, 10), v.OrderID, v.Value,
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (r *Runner) writeWorkbook(path, runID string, res *Result) error {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(sheetSummary); err != nil {
		return err
	}
	f.SetCellValue(sheetSummary, "A1", "Check")
	f.SetCellValue(sheetSummary, "B1", "Target")
	f.SetCellValue(sheetSummary, "C1", "Column")
	f.SetCellValue(sheetSummary, "D1", "Violations")
	for i, s := range res.Summaries {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheetSummary, "A"+row, s.Check)
		f.SetCellValue(sheetSummary, "B"+row, string(s.Target))
		f.SetCellValue(sheetSummary, "C"+row, s.Column)
		f.SetCellValue(sheetSummary, "D"+row, s.Violations)
	}

	if _, err := f.NewSheet(sheetExamples); err != nil {
		return err
	}
	f.SetCellValue(sheetExamples, "A1", "Target")
	f.SetCellValue(sheetExamples, "B1", "Check")
	f.SetCellValue(sheetExamples, "C1", "Column")
	f.SetCellValue(sheetExamples, "D1", "Month")
	f.SetCellValue(sheetExamples, "E1", "Row ID")
	f.SetCellValue(sheetExamples, "F1", "Order ID")
	f.SetCellValue(sheetExamples, "G1", "Value")
	examples := res.Violations
	if len(examples) > maxExampleRows {
		examples = examples[:maxExampleRows]
	}
	for i, v := range examples {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheetExamples, "A"+row, string(v.Target))
		f.SetCellValue(sheetExamples, "B"+row, v.Check)
		f.SetCellValue(sheetExamples, "C"+row, v.Column)
		f.SetCellValue(sheetExamples, "D"+row, v.MonthKey)
		f.SetCellValue(sheetExamples, "E"+row, v.RowID)
		f.SetCellValue(sheetExamples, "F"+row, v.OrderID)
		f.SetCellValue(sheetExamples, "G"+row, v.Value)
	}

	if _, err := f.NewSheet(sheetQuality); err != nil {
		return err
	}
	f.SetCellValue(sheetQuality, "A1", "Field")
	f.SetCellValue(sheetQuality, "B1", "Value")
	f.SetCellValue(sheetQuality, "A2", "run_id")
	f.SetCellValue(sheetQuality, "B2", runID)
	f.SetCellValue(sheetQuality, "A3", "run_ts")
	f.SetCellValue(sheetQuality, "B3", r.now().UTC().Format(time.RFC3339))
	f.SetCellValue(sheetQuality, "A4", "rows_checked")
	f.SetCellValue(sheetQuality, "B4", res.RowsChecked)
	f.SetCellValue(sheetQuality, "A5", "violations")
	f.SetCellValue(sheetQuality, "B5", len(res.Violations))
	f.SetCellValue(sheetQuality, "A6", "message")
	f.SetCellValue(sheetQuality, "B6", "DQ run completed")

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}
	idx, err := f.GetSheetIndex(sheetSummary)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}
