// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mercatus/internal/logging"
	"github.com/tomtom215/mercatus/internal/models"
)

// LogNotifier publishes run summaries to the structured log. It stands in
// for an operator-facing channel; anything that can tail the log gets the
// full summary as one JSON payload.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(_ context.Context, summary *models.RunSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshaling run summary: %w", err)
	}
	evt := logging.Info()
	if len(summary.Warnings) > 0 {
		evt = logging.Warn()
	}
	evt.
		Str("run_id", summary.RunID).
		Dur("elapsed", summary.Finished.Sub(summary.Started).Round(time.Millisecond)).
		Int("files_staged", summary.FilesStaged).
		Int("fact_rows", summary.FactRows).
		Int("warnings", len(summary.Warnings)).
		RawJSON("summary", payload).
		Msg("Pipeline run finished")
	return nil
}
