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
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/lib/pq"

	"github.com/aaronlmathis/assetflow/core"
)

// Package writers provides implementations of core.DataSink for writing data to various destinations.
//
// This file implements the PostgreSQL writer. Batches are loaded with COPY inside one
// transaction each; conflict handling switches to INSERT ... ON CONFLICT.

// PostgresWriterError wraps PostgreSQL-specific write errors with context about the operation.
type PostgresWriterError struct {
	Op  string // The operation being performed (e.g., "write", "connect", "copy")
	Err error  // The underlying error
}

func (e *PostgresWriterError) Error() string {
	return fmt.Sprintf("postgres writer %s: %v", e.Op, e.Err)
}

func (e *PostgresWriterError) Unwrap() error {
	return e.Err
}

// PostgresWriterStats holds PostgreSQL write performance statistics.
type PostgresWriterStats struct {
	RecordsWritten   int64
	BatchesWritten   int64
	TransactionCount int64
	LastWriteTime    time.Time
	WriteDuration    time.Duration
	ConnectionTime   time.Duration
	NullValueCounts  map[string]int64
}

// ConflictResolution defines how to handle key conflicts.
type ConflictResolution int

const (
	// ConflictError fails the batch on conflict and loads with COPY.
	ConflictError ConflictResolution = iota
	// ConflictIgnore skips conflicting rows (ON CONFLICT DO NOTHING).
	ConflictIgnore
	// ConflictUpdate overwrites conflicting rows (ON CONFLICT DO UPDATE).
	ConflictUpdate
)

// PostgresWriterOptions configures the PostgreSQL writer.
type PostgresWriterOptions struct {
	DSN                string
	TableName          string // "name" or "schema.name"
	Columns            []string
	BatchSize          int
	CreateTable        bool
	TruncateTable      bool
	ConflictResolution ConflictResolution
	ConflictColumns    []string
	UpdateColumns      []string
	ConnMaxLifetime    time.Duration
	MaxOpenConns       int
	QueryTimeout       time.Duration
}

// PostgresWriterOption represents a configuration function for PostgresWriterOptions.
type PostgresWriterOption func(*PostgresWriterOptions)

func WithPostgresDSN(dsn string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.DSN = dsn
	}
}

func WithTableName(tableName string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.TableName = tableName
	}
}

// WithColumns sets the columns to write, in order.
func WithColumns(columns []string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.Columns = append([]string(nil), columns...)
	}
}

func WithPostgresBatchSize(size int) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCreateTable creates the table on first flush, typing columns from the first batch.
func WithCreateTable(create bool) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.CreateTable = create
	}
}

func WithTruncateTable(truncate bool) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.TruncateTable = truncate
	}
}

func WithConflictResolution(resolution ConflictResolution, conflictCols, updateCols []string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.ConflictResolution = resolution
		opts.ConflictColumns = append([]string(nil), conflictCols...)
		opts.UpdateColumns = append([]string(nil), updateCols...)
	}
}

func WithPostgresConnectionPool(maxOpen int, maxLifetime time.Duration) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.MaxOpenConns = maxOpen
		opts.ConnMaxLifetime = maxLifetime
	}
}

func WithPostgresQueryTimeout(timeout time.Duration) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.QueryTimeout = timeout
	}
}

// PostgresWriter implements core.DataSink for PostgreSQL output.
type PostgresWriter struct {
	db          *sql.DB
	options     PostgresWriterOptions
	columns     []string
	recordBuf   []core.Record
	stats       PostgresWriterStats
	initialized bool
	errorState  bool
	mu          sync.Mutex
}

// NewPostgresWriter validates options. The connection is opened on the first flush.
func NewPostgresWriter(opts ...PostgresWriterOption) (*PostgresWriter, error) {
	options := (&PostgresWriterOptions{}).withDefaults()
	for _, opt := range opts {
		opt(options)
	}
	if err := validateOptions(options); err != nil {
		return nil, &PostgresWriterError{Op: "validate", Err: err}
	}

	return &PostgresWriter{
		options:   *options,
		columns:   append([]string(nil), options.Columns...),
		recordBuf: make([]core.Record, 0, options.BatchSize),
		stats:     PostgresWriterStats{NullValueCounts: make(map[string]int64)},
	}, nil
}

// Stats returns a copy of the current write statistics.
func (w *PostgresWriter) Stats() PostgresWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	statsCopy := w.stats
	statsCopy.NullValueCounts = make(map[string]int64, len(w.stats.NullValueCounts))
	for k, v := range w.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

// Write implements the core.DataSink interface.
func (w *PostgresWriter) Write(ctx context.Context, record core.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.errorState {
		return &PostgresWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}
	if len(w.columns) == 0 {
		for key := range record {
			w.columns = append(w.columns, key)
		}
		sort.Strings(w.columns)
	}

	for k, v := range record {
		if core.IsNull(v) {
			w.stats.NullValueCounts[k]++
		}
	}
	w.recordBuf = append(w.recordBuf, record)
	w.stats.RecordsWritten++

	if len(w.recordBuf) >= w.options.BatchSize {
		if err := w.flushBufferUnsafe(ctx); err != nil {
			w.errorState = true
			return err
		}
	}
	return nil
}

// Flush implements the core.DataSink interface.
func (w *PostgresWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), w.options.QueryTimeout)
	defer cancel()
	if err := w.flushBufferUnsafe(ctx); err != nil {
		w.errorState = true
		return err
	}
	return nil
}

// Close implements the core.DataSink interface.
func (w *PostgresWriter) Close() error {
	flushErr := w.Flush()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.db != nil {
		if err := w.db.Close(); err != nil && flushErr == nil {
			return &PostgresWriterError{Op: "close", Err: err}
		}
		w.db = nil
	}
	return flushErr
}

func (opts *PostgresWriterOptions) withDefaults() *PostgresWriterOptions {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.QueryTimeout == 0 {
		opts.QueryTimeout = 30 * time.Second
	}
	if opts.ConnMaxLifetime == 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 4
	}
	return opts
}

func validateOptions(opts *PostgresWriterOptions) error {
	if opts.DSN == "" {
		return fmt.Errorf("dsn is required")
	}
	if opts.TableName == "" {
		return fmt.Errorf("table name is required")
	}
	if opts.ConflictResolution == ConflictUpdate && len(opts.UpdateColumns) == 0 {
		return fmt.Errorf("update columns required for conflict update resolution")
	}
	if opts.ConflictResolution != ConflictError && len(opts.ConflictColumns) == 0 {
		return fmt.Errorf("conflict columns required for conflict resolution")
	}
	return nil
}

func (w *PostgresWriter) connectUnsafe(ctx context.Context) error {
	start := time.Now()
	db, err := sql.Open("postgres", w.options.DSN)
	if err != nil {
		return &PostgresWriterError{Op: "connect", Err: err}
	}
	db.SetMaxOpenConns(w.options.MaxOpenConns)
	db.SetConnMaxLifetime(w.options.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return &PostgresWriterError{Op: "ping", Err: err}
	}
	w.db = db
	w.stats.ConnectionTime = time.Since(start)
	return nil
}

// flushBufferUnsafe writes the buffer in one transaction (must hold mutex).
func (w *PostgresWriter) flushBufferUnsafe(ctx context.Context) (err error) {
	if len(w.recordBuf) == 0 {
		return nil
	}
	start := time.Now()

	if w.db == nil {
		if err := w.connectUnsafe(ctx); err != nil {
			return err
		}
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return &PostgresWriterError{Op: "begin", Err: err}
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if !w.initialized {
		for _, stmt := range w.setupStatements() {
			if _, err = tx.ExecContext(ctx, stmt); err != nil {
				return &PostgresWriterError{Op: "setup", Err: err}
			}
		}
	}

	if w.options.ConflictResolution == ConflictError {
		err = w.copyRows(ctx, tx)
	} else {
		err = w.insertRows(ctx, tx)
	}
	if err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return &PostgresWriterError{Op: "commit", Err: err}
	}

	w.initialized = true
	w.stats.TransactionCount++
	w.stats.BatchesWritten++
	w.stats.LastWriteTime = time.Now()
	w.stats.WriteDuration += time.Since(start)
	w.recordBuf = w.recordBuf[:0]
	return nil
}

func (w *PostgresWriter) copyRows(ctx context.Context, tx *sql.Tx) error {
	copyStmt := pq.CopyIn(w.options.TableName, w.columns...)
	if schema, table := splitTableName(w.options.TableName); schema != "" {
		copyStmt = pq.CopyInSchema(schema, table, w.columns...)
	}
	stmt, err := tx.PrepareContext(ctx, copyStmt)
	if err != nil {
		return &PostgresWriterError{Op: "copy_prepare", Err: err}
	}
	defer stmt.Close()

	for _, record := range w.recordBuf {
		if _, err := stmt.ExecContext(ctx, w.rowValues(record)...); err != nil {
			return &PostgresWriterError{Op: "copy_row", Err: err}
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return &PostgresWriterError{Op: "copy_flush", Err: err}
	}
	return nil
}

func (w *PostgresWriter) insertRows(ctx context.Context, tx *sql.Tx) error {
	stmt, err := tx.PrepareContext(ctx, w.insertStatement())
	if err != nil {
		return &PostgresWriterError{Op: "prepare", Err: err}
	}
	defer stmt.Close()

	for _, record := range w.recordBuf {
		if _, err := stmt.ExecContext(ctx, w.rowValues(record)...); err != nil {
			return &PostgresWriterError{Op: "insert", Err: err}
		}
	}
	return nil
}

// setupStatements returns the CREATE and TRUNCATE statements run before the first batch.
func (w *PostgresWriter) setupStatements() []string {
	var stmts []string
	table := quoteTable(w.options.TableName)
	if w.options.CreateTable {
		defs := make([]string, len(w.columns))
		for i, col := range w.columns {
			values := make([]interface{}, len(w.recordBuf))
			for j, rec := range w.recordBuf {
				values[j] = rec[col]
			}
			defs[i] = pq.QuoteIdentifier(col) + " " + inferSQLType(values)
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", ")))
	}
	if w.options.TruncateTable {
		stmts = append(stmts, "TRUNCATE TABLE "+table)
	}
	return stmts
}

func (w *PostgresWriter) insertStatement() string {
	cols := quoteAll(w.columns)
	placeholders := make([]string, len(w.columns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteTable(w.options.TableName), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	conflict := strings.Join(quoteAll(w.options.ConflictColumns), ", ")

	switch w.options.ConflictResolution {
	case ConflictIgnore:
		query += fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", conflict)
	case ConflictUpdate:
		sets := make([]string, len(w.options.UpdateColumns))
		for i, col := range w.options.UpdateColumns {
			q := pq.QuoteIdentifier(col)
			sets[i] = q + " = EXCLUDED." + q
		}
		query += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", conflict, strings.Join(sets, ", "))
	}
	return query
}

func (w *PostgresWriter) rowValues(record core.Record) []interface{} {
	values := make([]interface{}, len(w.columns))
	for i, col := range w.columns {
		values[i] = convertValue(record[col])
	}
	return values
}

// inferSQLType picks a column type that holds every non-null value.
func inferSQLType(values []interface{}) string {
	switch InferArrowType(values).ID() {
	case arrow.INT64:
		return "BIGINT"
	case arrow.FLOAT64:
		return "DOUBLE PRECISION"
	case arrow.BOOL:
		return "BOOLEAN"
	case arrow.TIMESTAMP:
		return "TIMESTAMPTZ"
	case arrow.BINARY:
		return "BYTEA"
	default:
		return "TEXT"
	}
}

// convertValue converts cells to values lib/pq can encode.
func convertValue(value interface{}) interface{} {
	if core.IsNull(value) {
		return nil
	}
	switch v := value.(type) {
	case time.Time, bool, int64, float64, string, []byte:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int16:
		return int64(v)
	case int8:
		return int64(v)
	case uint32:
		return int64(v)
	case uint16:
		return int64(v)
	case uint8:
		return int64(v)
	case float32:
		return float64(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func splitTableName(name string) (string, string) {
	if i := strings.Index(name, "."); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

func quoteTable(name string) string {
	schema, table := splitTableName(name)
	if schema == "" {
		return pq.QuoteIdentifier(table)
	}
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = pq.QuoteIdentifier(n)
	}
	return out
}
