// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

package dq

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/mercatus/internal/config"
	"github.com/tomtom215/mercatus/internal/logging"
	"github.com/tomtom215/mercatus/internal/models"
)

// Target names the table family a check ran against.
type Target string

const (
	TargetStaging    Target = "stg"
	TargetProduction Target = "prd"
)

// Store is the read surface the runner needs. *database.DB satisfies it.
type Store interface {
	DistinctStagedMonths(ctx context.Context) ([]string, error)
	StagedOrdersByMonth(ctx context.Context, monthKey string) ([]models.StagedOrder, error)
	ChangedProductionOrders(ctx context.Context, since *time.Time) ([]models.ProductionOrder, error)
}

// Violation is one row that failed one check.
type Violation struct {
	Target   Target
	Check    string
	Column   string
	MonthKey string
	RowID    int64
	OrderID  string
	Value    string
}

// CheckSummary aggregates one check's violations against one target.
type CheckSummary struct {
	Check      string
	Target     Target
	Column     string
	Violations int
}

// Result reports one data-quality run.
type Result struct {
	RowsChecked  int
	Violations   []Violation
	Summaries    []CheckSummary
	CSVPath      string
	WorkbookPath string
}

type compiledCheck struct {
	cfg  config.CheckConfig
	pred Predicate
}

// Runner executes the configured checks against staging and production rows
// and writes the violation reports.
type Runner struct {
	cfg   *config.DQConfig
	store Store
	now   func() time.Time
}

func New(cfg *config.DQConfig, store Store) *Runner {
	return &Runner{cfg: cfg, store: store, now: time.Now}
}

// Run applies every configured check to all staged rows and to the full
// production table, then writes the CSV and workbook reports. A store or
// report failure is returned; individual violations never are.
func (r *Runner) Run(ctx context.Context, runID string) (*Result, error) {
	checks, err := r.compileChecks()
	if err != nil {
		return nil, err
	}

	res := &Result{}
	counts := make(map[string]int, len(checks))

	months, err := r.store.DistinctStagedMonths(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing staged months: %w", err)
	}
	for _, month := range months {
		rows, err := r.store.StagedOrdersByMonth(ctx, month)
		if err != nil {
			return nil, fmt.Errorf("reading staged rows for %s: %w", month, err)
		}
		for i := range rows {
			r.checkRow(checks, TargetStaging, month, &rows[i].Order, res, counts)
			res.RowsChecked++
		}
	}

	prodRows, err := r.store.ChangedProductionOrders(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("reading production rows: %w", err)
	}
	for i := range prodRows {
		r.checkRow(checks, TargetProduction, prodRows[i].SourceMonthKey, &prodRows[i].Order, res, counts)
		res.RowsChecked++
	}

	for _, target := range []Target{TargetStaging, TargetProduction} {
		for _, c := range checks {
			res.Summaries = append(res.Summaries, CheckSummary{
				Check:      c.cfg.Name,
				Target:     target,
				Column:     c.cfg.Column,
				Violations: counts[summaryKey(target, c.cfg.Name)],
			})
		}
	}

	if err := r.writeReports(runID, res); err != nil {
		return nil, err
	}

	logging.Info().
		Str("run_id", runID).
		Int("rows_checked", res.RowsChecked).
		Int("violations", len(res.Violations)).
		Str("workbook", res.WorkbookPath).
		Msg("Data quality run completed")
	return res, nil
}

func (r *Runner) compileChecks() ([]compiledCheck, error) {
	checks := make([]compiledCheck, 0, len(r.cfg.Checks))
	for _, cc := range r.cfg.Checks {
		pred, err := LookupPredicate(cc.Predicate)
		if err != nil {
			return nil, fmt.Errorf("check %q: %w", cc.Name, err)
		}
		// Fail fast on a column the accessor does not know.
		if _, err := columnValue(&models.Order{}, cc.Column); err != nil {
			return nil, fmt.Errorf("check %q: %w", cc.Name, err)
		}
		checks = append(checks, compiledCheck{cfg: cc, pred: pred})
	}
	return checks, nil
}

func (r *Runner) checkRow(checks []compiledCheck, target Target, monthKey string, o *models.Order, res *Result, counts map[string]int) {
	for _, c := range checks {
		value, err := columnValue(o, c.cfg.Column)
		if err != nil {
			continue // validated in compileChecks
		}
		if !c.pred(value, c.cfg.Args) {
			continue
		}
		counts[summaryKey(target, c.cfg.Name)]++
		res.Violations = append(res.Violations, Violation{
			Target:   target,
			Check:    c.cfg.Name,
			Column:   c.cfg.Column,
			MonthKey: monthKey,
			RowID:    o.RowID,
			OrderID:  o.OrderID,
			Value:    value,
		})
	}
}

func summaryKey(target Target, check string) string {
	return string(target) + "/" + check
}
