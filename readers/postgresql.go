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

package readers

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/aaronlmathis/assetflow/core"
)

// Package readers provides implementations of core.DataSource for reading data from various sources.
//
// This file implements the PostgreSQL reader. It runs one query lazily on the first Read
// and streams the result set row by row.

// PostgresReaderError provides structured error information for Postgres reader operations
type PostgresReaderError struct {
	Op  string // Operation that failed (e.g., "connect", "query", "scan", "read")
	Err error  // Underlying error
}

func (e *PostgresReaderError) Error() string {
	return fmt.Sprintf("postgres reader %s: %v", e.Op, e.Err)
}

func (e *PostgresReaderError) Unwrap() error {
	return e.Err
}

// PostgresReaderStats holds statistics about the Postgres reader's performance
type PostgresReaderStats struct {
	RecordsRead     int64
	ConnectionTime  time.Duration
	QueryDuration   time.Duration
	ReadDuration    time.Duration
	NullValueCounts map[string]int64
}

// PostgresReaderOptions configures the Postgres reader
type PostgresReaderOptions struct {
	DSN             string        // Database connection string
	Query           string        // SQL query to execute
	Params          []interface{} // Optional query parameters
	Table           string        // Read a whole table instead of Query, optionally schema-qualified
	ConnMaxLifetime time.Duration // Maximum connection lifetime
	MaxOpenConns    int           // Maximum open connections
	QueryTimeout    time.Duration // Connect and query timeout
}

// PostgresReaderOption represents a configuration function for PostgresReaderOptions
type PostgresReaderOption func(*PostgresReaderOptions)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.DSN = dsn
	}
}

// WithPostgresQuery sets the SQL query and optional parameters.
func WithPostgresQuery(query string, params ...interface{}) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.Query = query
		opts.Params = append([]interface{}(nil), params...)
	}
}

// WithPostgresTable reads every row of table ("name" or "schema.name").
func WithPostgresTable(table string) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.Table = table
	}
}

// WithPostgresConnectionPool configures the connection pool.
func WithPostgresConnectionPool(maxOpen int, lifetime time.Duration) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.MaxOpenConns = maxOpen
		opts.ConnMaxLifetime = lifetime
	}
}

// WithPostgresQueryTimeout sets the query execution timeout.
func WithPostgresQueryTimeout(timeout time.Duration) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.QueryTimeout = timeout
	}
}

// PostgresReader implements core.DataSource for PostgreSQL databases.
type PostgresReader struct {
	mu          sync.Mutex
	db          *sql.DB
	rows        *sql.Rows
	cancel      context.CancelFunc
	columnNames []string
	columnTypes []*sql.ColumnType
	scanBuffer  []interface{}
	values      []interface{}
	query       string
	stats       PostgresReaderStats
	opts        *PostgresReaderOptions
	finished    bool
}

// NewPostgresReader validates options and builds the query. No connection is made until the first Read.
func NewPostgresReader(options ...PostgresReaderOption) (*PostgresReader, error) {
	opts := (&PostgresReaderOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	if opts.DSN == "" {
		return nil, &PostgresReaderError{Op: "validate", Err: fmt.Errorf("dsn is required")}
	}
	query, err := opts.buildQuery()
	if err != nil {
		return nil, &PostgresReaderError{Op: "validate", Err: err}
	}

	return &PostgresReader{
		query: query,
		opts:  opts,
		stats: PostgresReaderStats{NullValueCounts: make(map[string]int64)},
	}, nil
}

// Query returns the SQL the reader will run.
func (p *PostgresReader) Query() string {
	return p.query
}

// Read implements the core.DataSource interface.
func (p *PostgresReader) Read(ctx context.Context) (core.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	defer func() { p.stats.ReadDuration += time.Since(start) }()

	select {
	case <-ctx.Done():
		return nil, &PostgresReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	if p.finished {
		return nil, io.EOF
	}
	if p.rows == nil {
		if err := p.executeQuery(ctx); err != nil {
			return nil, err
		}
	}

	if !p.rows.Next() {
		if err := p.rows.Err(); err != nil {
			return nil, &PostgresReaderError{Op: "read", Err: err}
		}
		p.finished = true
		return nil, io.EOF
	}

	if err := p.rows.Scan(p.scanBuffer...); err != nil {
		return nil, &PostgresReaderError{Op: "scan", Err: err}
	}

	p.stats.RecordsRead++
	return p.convertRowToRecord(), nil
}

// Columns returns the result set columns once the query has run.
func (p *PostgresReader) Columns() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.columnNames...)
}

// Stats returns statistics about the PostgreSQL reader's performance
func (p *PostgresReader) Stats() PostgresReaderStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	statsCopy := p.stats
	statsCopy.NullValueCounts = make(map[string]int64, len(p.stats.NullValueCounts))
	for k, v := range p.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

// Close releases all resources held by the PostgreSQL reader
func (p *PostgresReader) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []string

	if p.rows != nil {
		if err := p.rows.Close(); err != nil {
			errs = append(errs, "closing rows: "+err.Error())
		}
		p.rows = nil
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			errs = append(errs, "closing database: "+err.Error())
		}
		p.db = nil
	}

	if len(errs) > 0 {
		return &PostgresReaderError{Op: "close", Err: fmt.Errorf("%s", strings.Join(errs, "; "))}
	}
	return nil
}

func (opts *PostgresReaderOptions) withDefaults() *PostgresReaderOptions {
	result := &PostgresReaderOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.QueryTimeout <= 0 {
		result.QueryTimeout = 5 * time.Minute
	}
	if result.ConnMaxLifetime <= 0 {
		result.ConnMaxLifetime = 5 * time.Minute
	}
	if result.MaxOpenConns <= 0 {
		result.MaxOpenConns = 4
	}
	return result
}

// buildQuery returns Query, or a SELECT over Table with quoted identifiers.
func (opts *PostgresReaderOptions) buildQuery() (string, error) {
	if opts.Query != "" {
		return opts.Query, nil
	}
	if opts.Table == "" {
		return "", fmt.Errorf("query or table is required")
	}
	return "SELECT * FROM " + quoteQualified(opts.Table), nil
}

// quoteQualified quotes each dot-separated part of a table name.
func quoteQualified(table string) string {
	parts := strings.Split(table, ".")
	for i, part := range parts {
		parts[i] = pq.QuoteIdentifier(part)
	}
	return strings.Join(parts, ".")
}

func (p *PostgresReader) executeQuery(ctx context.Context) error {
	start := time.Now()
	db, err := sql.Open("postgres", p.opts.DSN)
	if err != nil {
		return &PostgresReaderError{Op: "connect", Err: err}
	}
	db.SetMaxOpenConns(p.opts.MaxOpenConns)
	db.SetConnMaxLifetime(p.opts.ConnMaxLifetime)
	p.db = db

	queryCtx, cancel := context.WithTimeout(ctx, p.opts.QueryTimeout)
	p.cancel = cancel

	if err := db.PingContext(queryCtx); err != nil {
		return &PostgresReaderError{Op: "ping", Err: err}
	}
	p.stats.ConnectionTime = time.Since(start)

	start = time.Now()
	p.rows, err = db.QueryContext(queryCtx, p.query, p.opts.Params...)
	if err != nil {
		return &PostgresReaderError{Op: "query", Err: err}
	}
	p.stats.QueryDuration = time.Since(start)

	if p.columnNames, err = p.rows.Columns(); err != nil {
		return &PostgresReaderError{Op: "columns", Err: err}
	}
	if p.columnTypes, err = p.rows.ColumnTypes(); err != nil {
		return &PostgresReaderError{Op: "column_types", Err: err}
	}

	p.values = make([]interface{}, len(p.columnNames))
	p.scanBuffer = make([]interface{}, len(p.columnNames))
	for i := range p.scanBuffer {
		p.scanBuffer[i] = &p.values[i]
	}
	return nil
}

// convertSQLValue converts lib/pq driver values to the cell types used by core.
func convertSQLValue(value interface{}, dbType string) interface{} {
	if b, ok := value.([]byte); ok {
		switch dbType {
		case "NUMERIC", "DECIMAL":
			if f, err := strconv.ParseFloat(string(b), 64); err == nil {
				return f
			}
			return string(b)
		case "BYTEA":
			return b
		default:
			return string(b)
		}
	}

	switch v := value.(type) {
	case time.Time:
		return v.UTC()
	case int64:
		return int(v)
	case float32:
		return float64(v)
	default:
		return v
	}
}

func (p *PostgresReader) convertRowToRecord() core.Record {
	record := make(core.Record, len(p.columnNames))
	for i, name := range p.columnNames {
		value := p.values[i]
		if value == nil {
			p.stats.NullValueCounts[name]++
			record[name] = nil
			continue
		}
		record[name] = convertSQLValue(value, p.columnTypes[i].DatabaseTypeName())
	}
	return record
}
