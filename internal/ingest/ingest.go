// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

// Package ingest moves landing-zone order exports into the staging table.
// For each CSV file it normalizes the encoding to UTF-8, parses and casts
// the rows, assigns positional Row IDs, appends them to staging with
// provenance columns, writes a file-level audit record, and archives the
// processed file as a zip. A malformed file is skipped and logged; it never
// aborts the batch.
package ingest

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/mercatus/internal/audit"
	"github.com/tomtom215/mercatus/internal/config"
	"github.com/tomtom215/mercatus/internal/fingerprint"
	"github.com/tomtom215/mercatus/internal/logging"
	"github.com/tomtom215/mercatus/internal/models"
)

// StagingStore appends parsed rows to the staging table.
type StagingStore interface {
	AppendStagedOrders(ctx context.Context, rows []models.StagedOrder) error
}

// AuditLog records per-file intake outcomes.
type AuditLog interface {
	SaveFileRecord(ctx context.Context, rec *audit.FileRecord) error
}

// Intake scans the landing directory and stages every order export it finds.
type Intake struct {
	cfg   *config.IntakeConfig
	store StagingStore
	audit AuditLog
}

// New creates an intake runner.
func New(cfg *config.IntakeConfig, store StagingStore, auditLog AuditLog) *Intake {
	return &Intake{cfg: cfg, store: store, audit: auditLog}
}

// Result summarizes one intake sweep.
type Result struct {
	FilesStaged int
	FilesFailed int
	RowsLoaded  int
}

// Run stages every CSV file in the landing directory, in name order.
func (in *Intake) Run(ctx context.Context, runID string) (*Result, error) {
	entries, err := os.ReadDir(in.cfg.LandingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read landing directory %s: %w", in.cfg.LandingDir, err)
	}
	if err := os.MkdirAll(in.cfg.ProcessedDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create processed directory: %w", err)
	}
	if err := os.MkdirAll(in.cfg.ArchiveDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	result := &Result{}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		loaded, err := in.stageFile(ctx, runID, name)
		if err != nil {
			logging.Warn().Err(err).Str("file", name).Msg("Skipping file")
			result.FilesFailed++
			continue
		}
		result.FilesStaged++
		result.RowsLoaded += loaded
	}

	logging.Info().
		Int("staged", result.FilesStaged).
		Int("failed", result.FilesFailed).
		Int("rows", result.RowsLoaded).
		Msg("Intake sweep complete")
	return result, nil
}

// stageFile loads one landing file end to end. Any failure before the
// staging append leaves the file in the landing directory for the next run;
// the audit record captures why it was skipped.
func (in *Intake) stageFile(ctx context.Context, runID, name string) (int, error) {
	path := filepath.Join(in.cfg.LandingDir, name)
	rec := &audit.FileRecord{
		RunID:    runID,
		FileName: name,
		Status:   audit.FileFailed,
	}

	meta, err := ParseFileName(name)
	if err != nil {
		rec.Detail = err.Error()
		in.saveAudit(ctx, rec)
		return 0, err
	}
	rec.MonthKey = meta.MonthKey
	rec.FileDate = meta.FileDate

	raw, err := os.ReadFile(path)
	if err != nil {
		rec.Detail = err.Error()
		in.saveAudit(ctx, rec)
		return 0, fmt.Errorf("failed to read %s: %w", name, err)
	}
	rec.SizeBytes = int64(len(raw))

	payload, err := decodeToUTF8(raw)
	if err != nil {
		rec.Detail = err.Error()
		in.saveAudit(ctx, rec)
		return 0, err
	}
	rec.Checksum = fingerprint.Checksum(payload)

	delimiter := ([]rune(in.cfg.Delimiter))[0]
	parsed, err := parseOrders(payload, delimiter)
	if err != nil {
		rec.Detail = err.Error()
		rec.Status = audit.FileSkipped
		in.saveAudit(ctx, rec)
		return 0, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	rec.RowsRead = parsed.RowsRead
	rec.RowsFailed = parsed.RowsFailed

	ingestedAt := time.Now().UTC()
	staged := make([]models.StagedOrder, len(parsed.Orders))
	for i, order := range parsed.Orders {
		staged[i] = models.StagedOrder{
			Order:          order,
			SourceFileName: name,
			SourceMonthKey: meta.MonthKey,
			SourceFileDate: meta.FileDate,
			IngestedAt:     ingestedAt,
		}
	}

	if err := in.store.AppendStagedOrders(ctx, staged); err != nil {
		rec.Detail = err.Error()
		in.saveAudit(ctx, rec)
		return 0, fmt.Errorf("failed to stage %s: %w", name, err)
	}
	rec.RowsLoaded = len(staged)
	rec.Status = audit.FileLoaded
	in.saveAudit(ctx, rec)

	if err := in.archive(path, name); err != nil {
		// Already staged; a re-run would double-append. Log loudly instead
		// of failing the file.
		logging.Error().Err(err).Str("file", name).Msg("Staged file could not be archived")
	}

	logging.Info().
		Str("file", name).
		Str("month", meta.MonthKey).
		Int("rows_read", parsed.RowsRead).
		Int("rows_loaded", len(staged)).
		Int("rows_failed", parsed.RowsFailed).
		Msg("File staged")
	return len(staged), nil
}

func (in *Intake) saveAudit(ctx context.Context, rec *audit.FileRecord) {
	if err := in.audit.SaveFileRecord(ctx, rec); err != nil {
		logging.Error().Err(err).Str("file", rec.FileName).Msg("Failed to write file audit record")
	}
}

// archive moves a staged landing file to the processed directory and zips
// it into the archive directory.
func (in *Intake) archive(path, name string) error {
	processedPath := filepath.Join(in.cfg.ProcessedDir, name)
	if err := os.Rename(path, processedPath); err != nil {
		return fmt.Errorf("failed to move to processed: %w", err)
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	zipPath := filepath.Join(in.cfg.ArchiveDir, stem+".zip")
	if err := zipFile(processedPath, zipPath, name); err != nil {
		return err
	}
	if err := os.Remove(processedPath); err != nil {
		return fmt.Errorf("failed to remove processed copy: %w", err)
	}
	return nil
}

func zipFile(srcPath, zipPath, arcName string) error {
	src, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("failed to read processed file: %w", err)
	}

	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	zw := zip.NewWriter(out)
	w, err := zw.Create(arcName)
	if err != nil {
		out.Close()
		return fmt.Errorf("failed to create archive entry: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		out.Close()
		return fmt.Errorf("failed to write archive entry: %w", err)
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return out.Close()
}
