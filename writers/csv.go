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
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/aaronlmathis/assetflow/core"
)

// CSVWriterError wraps CSV-specific write errors with context.
type CSVWriterError struct {
	Op  string
	Err error
}

func (e *CSVWriterError) Error() string {
	return fmt.Sprintf("csv writer %s: %v", e.Op, e.Err)
}

func (e *CSVWriterError) Unwrap() error {
	return e.Err
}

// CSVWriterStats holds CSV write performance statistics.
type CSVWriterStats struct {
	RecordsWritten  int64
	FlushCount      int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// CSVWriterOptions configures CSV output.
type CSVWriterOptions struct {
	Comma       rune
	UseCRLF     bool
	WriteHeader bool
	Headers     []string
	BatchSize   int
}

// WriterOptionCSV is a functional option.
type WriterOptionCSV func(*CSVWriterOptions)

// WithHeaders fixes the column order. Without it the first record's keys are used, sorted.
func WithHeaders(headers []string) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.Headers = append([]string(nil), headers...)
	}
}

func WithComma(delim rune) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.Comma = delim
	}
}

func WithWriteHeader(write bool) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.WriteHeader = write
	}
}

func WithCSVBatchSize(size int) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.BatchSize = size
	}
}

func WithUseCRLF(useCRLF bool) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.UseCRLF = useCRLF
	}
}

// CSVWriter implements core.DataSink for CSV output with stats and batching.
type CSVWriter struct {
	writer      *csv.Writer
	closer      io.Closer
	options     CSVWriterOptions
	headers     []string
	recordBuf   []core.Record
	stats       CSVWriterStats
	wroteHeader bool
	errorState  bool
	mu          sync.Mutex
}

// NewCSVWriter creates a new CSV writer.
func NewCSVWriter(w io.WriteCloser, opts ...WriterOptionCSV) (*CSVWriter, error) {
	options := CSVWriterOptions{
		Comma:       ',',
		WriteHeader: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	cw := csv.NewWriter(w)
	cw.Comma = options.Comma
	cw.UseCRLF = options.UseCRLF

	return &CSVWriter{
		writer:    cw,
		closer:    w,
		options:   options,
		headers:   append([]string(nil), options.Headers...),
		recordBuf: make([]core.Record, 0, max(options.BatchSize, 1)),
		stats:     CSVWriterStats{NullValueCounts: make(map[string]int64)},
	}, nil
}

// Write implements the core.DataSink interface.
func (c *CSVWriter) Write(ctx context.Context, record core.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.errorState {
		return &CSVWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}

	for k, v := range record {
		if core.IsNull(v) {
			c.stats.NullValueCounts[k]++
		}
	}

	if len(c.headers) == 0 {
		for key := range record {
			c.headers = append(c.headers, key)
		}
		sort.Strings(c.headers)
	}
	if !c.wroteHeader && c.options.WriteHeader {
		if err := c.writer.Write(c.headers); err != nil {
			c.errorState = true
			return &CSVWriterError{Op: "write_header", Err: err}
		}
		c.wroteHeader = true
	}

	c.recordBuf = append(c.recordBuf, record)
	c.stats.RecordsWritten++

	if c.options.BatchSize > 0 && len(c.recordBuf) >= c.options.BatchSize {
		if err := c.flushBufferUnsafe(); err != nil {
			c.errorState = true
			return &CSVWriterError{Op: "flush_batch", Err: err}
		}
	}
	return nil
}

// Flush implements the core.DataSink interface.
func (c *CSVWriter) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A header-only file for an empty table.
	if !c.wroteHeader && c.options.WriteHeader && len(c.headers) > 0 {
		if err := c.writer.Write(c.headers); err != nil {
			return &CSVWriterError{Op: "write_header", Err: err}
		}
		c.wroteHeader = true
	}
	if err := c.flushBufferUnsafe(); err != nil {
		return &CSVWriterError{Op: "flush", Err: err}
	}
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		return &CSVWriterError{Op: "flush_writer", Err: err}
	}
	return nil
}

// Close implements the core.DataSink interface.
func (c *CSVWriter) Close() error {
	if err := c.Flush(); err != nil {
		return err
	}
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// flushBufferUnsafe writes buffered records (must hold mutex).
func (c *CSVWriter) flushBufferUnsafe() error {
	if len(c.recordBuf) == 0 {
		return nil
	}
	start := time.Now()

	for _, record := range c.recordBuf {
		row := make([]string, len(c.headers))
		for i, key := range c.headers {
			row[i] = FormatCell(record[key])
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		return fmt.Errorf("CSV writer flush error: %w", err)
	}

	c.stats.FlushCount++
	c.stats.LastFlushTime = time.Now()
	c.stats.FlushDuration += time.Since(start)
	c.recordBuf = c.recordBuf[:0]
	return nil
}

// Stats returns write statistics.
func (c *CSVWriter) Stats() CSVWriterStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	statsCopy := c.stats
	statsCopy.NullValueCounts = make(map[string]int64, len(c.stats.NullValueCounts))
	for k, v := range c.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

// FormatCell renders a cell as text. Nulls become empty strings, midnight UTC times
// render as plain dates and floats use the shortest exact representation.
func FormatCell(value interface{}) string {
	if core.IsNull(value) {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case time.Time:
		if v.Equal(v.Truncate(24*time.Hour)) && v.Location() == time.UTC {
			return v.Format("2006-01-02")
		}
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
