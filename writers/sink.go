//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of AssetFlow.
//
// AssetFlow is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// AssetFlow is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with AssetFlow. If not, see https://www.gnu.org/licenses/.

package writers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aaronlmathis/assetflow/core"
)

// Table output formats.
const (
	FormatCSV     = "csv"
	FormatJSON    = "json"
	FormatParquet = "parquet"
)

// ReportSinkOptions configures ReportSink.
type ReportSinkOptions struct {
	Dir            string      // Output directory for tables and relative workbook paths
	Format         string      // csv, json or parquet
	PostgresDSN    string      // Mirror every table into PostgreSQL when set
	PostgresSchema string      // Schema for mirrored tables
	Uploader       *S3Uploader // Upload every file to S3 when set
	Logger         *slog.Logger
}

// ReportSinkOption is a functional option for ReportSink.
type ReportSinkOption func(*ReportSinkOptions)

func WithReportDir(dir string) ReportSinkOption {
	return func(o *ReportSinkOptions) { o.Dir = dir }
}

func WithTableFormat(format string) ReportSinkOption {
	return func(o *ReportSinkOptions) { o.Format = format }
}

// WithPostgresMirror copies every table into schema (the default search path when empty).
func WithPostgresMirror(dsn, schema string) ReportSinkOption {
	return func(o *ReportSinkOptions) {
		o.PostgresDSN = dsn
		o.PostgresSchema = schema
	}
}

func WithS3Upload(uploader *S3Uploader) ReportSinkOption {
	return func(o *ReportSinkOptions) { o.Uploader = uploader }
}

func WithSinkLogger(logger *slog.Logger) ReportSinkOption {
	return func(o *ReportSinkOptions) { o.Logger = logger }
}

// ReportSink writes pipeline tables and the final workbook. Every failure is returned;
// nothing is written best-effort.
type ReportSink struct {
	opts ReportSinkOptions
}

// NewReportSink validates options. The output directory is created on first write.
func NewReportSink(options ...ReportSinkOption) (*ReportSink, error) {
	opts := ReportSinkOptions{Dir: ".", Format: FormatCSV}
	for _, option := range options {
		option(&opts)
	}
	switch opts.Format {
	case FormatCSV, FormatJSON, FormatParquet:
	default:
		return nil, fmt.Errorf("unsupported table format %q", opts.Format)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &ReportSink{opts: opts}, nil
}

// TablePath returns the file WriteTable uses for name.
func (s *ReportSink) TablePath(name string) string {
	ext := s.opts.Format
	if ext == FormatJSON {
		ext = "jsonl"
	}
	return filepath.Join(s.opts.Dir, name+"."+ext)
}

// WriteTable writes t durably as name and returns the local path.
func (s *ReportSink) WriteTable(ctx context.Context, name string, t *core.Table) (string, error) {
	start := time.Now()
	path := s.TablePath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	sink, err := s.fileSink(path, name, t.Columns())
	if err != nil {
		return "", err
	}
	if err := core.Pour(ctx, t, sink); err != nil {
		return "", fmt.Errorf("write table %s: %w", name, err)
	}

	if s.opts.PostgresDSN != "" {
		if err := s.mirror(ctx, name, t); err != nil {
			return "", err
		}
	}
	if s.opts.Uploader != nil {
		if _, err := s.opts.Uploader.UploadFile(ctx, path); err != nil {
			return "", err
		}
	}

	s.opts.Logger.Info("table written", "table", name, "path", path, "rows", t.Len(), "duration", time.Since(start))
	return path, nil
}

// WriteWorkbook writes sheets to path, relative paths resolving against the report dir,
// and returns the final path.
func (s *ReportSink) WriteWorkbook(ctx context.Context, path string, sheets []Sheet) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.opts.Dir, path)
	}
	if err := WriteWorkbook(path, sheets); err != nil {
		return "", err
	}
	if s.opts.Uploader != nil {
		if _, err := s.opts.Uploader.UploadFile(ctx, path); err != nil {
			return "", err
		}
	}
	s.opts.Logger.Info("workbook written", "path", path, "sheets", len(sheets))
	return path, nil
}

func (s *ReportSink) fileSink(path, name string, columns []string) (core.DataSink, error) {
	switch s.opts.Format {
	case FormatParquet:
		return NewParquetWriter(path,
			WithFieldOrder(columns),
			WithMetadata(map[string]string{"assetflow.table": name}),
		)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	if s.opts.Format == FormatJSON {
		return NewJSONWriter(f), nil
	}
	w, err := NewCSVWriter(f, WithHeaders(columns))
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (s *ReportSink) mirror(ctx context.Context, name string, t *core.Table) error {
	table := name
	if s.opts.PostgresSchema != "" {
		table = s.opts.PostgresSchema + "." + name
	}
	w, err := NewPostgresWriter(
		WithPostgresDSN(s.opts.PostgresDSN),
		WithTableName(table),
		WithColumns(t.Columns()),
		WithCreateTable(true),
		WithTruncateTable(true),
	)
	if err != nil {
		return err
	}
	if err := core.Pour(ctx, t, w); err != nil {
		return fmt.Errorf("mirror table %s: %w", name, err)
	}
	return nil
}
