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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aaronlmathis/assetflow/core"
)

// CSVReaderError wraps structured error information for the CSV reader.
type CSVReaderError struct {
	Op  string
	Err error
}

func (e *CSVReaderError) Error() string {
	return fmt.Sprintf("csv reader %s: %v", e.Op, e.Err)
}

func (e *CSVReaderError) Unwrap() error {
	return e.Err
}

// CSVReaderStats holds statistics about the CSV reader's performance.
type CSVReaderStats struct {
	RecordsRead     int64
	ReadDuration    time.Duration
	LastReadTime    time.Time
	NullValueCounts map[string]int64
}

// CSVReaderOptions configures the CSV reader.
type CSVReaderOptions struct {
	Comma            rune
	Comment          rune
	LazyQuotes       bool
	TrimLeadingSpace bool
	HasHeaders       bool
	InferTypes       bool     // Convert numeric and boolean cells; otherwise every cell stays a string
	NullValues       []string // Cell contents treated as null besides the empty string
}

// ReaderOptionCSV allows functional customization of CSVReader.
type ReaderOptionCSV func(*CSVReaderOptions)

func WithCSVComma(r rune) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.Comma = r }
}

func WithCSVHasHeaders(hasHeaders bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.HasHeaders = hasHeaders }
}

func WithCSVTrimSpace(trim bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.TrimLeadingSpace = trim }
}

func WithCSVInferTypes(infer bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.InferTypes = infer }
}

func WithCSVNullValues(values ...string) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.NullValues = append(o.NullValues, values...) }
}

// CSVReader implements core.DataSource for CSV streams.
type CSVReader struct {
	reader  *csv.Reader
	headers []string
	closer  io.Closer
	stats   CSVReaderStats
	opts    CSVReaderOptions
	nulls   map[string]bool
}

// NewCSVReader creates a CSVReader with default or overridden options.
func NewCSVReader(r io.ReadCloser, options ...ReaderOptionCSV) (*CSVReader, error) {
	opts := CSVReaderOptions{
		Comma:            ',',
		HasHeaders:       true,
		TrimLeadingSpace: true,
		InferTypes:       true,
		NullValues:       []string{"NA", "NaN", "null"},
	}

	for _, opt := range options {
		opt(&opts)
	}

	csvReader := csv.NewReader(r)
	csvReader.Comma = opts.Comma
	csvReader.Comment = opts.Comment
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = opts.LazyQuotes
	csvReader.TrimLeadingSpace = opts.TrimLeadingSpace
	csvReader.ReuseRecord = true

	reader := &CSVReader{
		reader: csvReader,
		closer: r,
		opts:   opts,
		stats:  CSVReaderStats{NullValueCounts: make(map[string]int64)},
		nulls:  make(map[string]bool, len(opts.NullValues)),
	}
	for _, v := range opts.NullValues {
		reader.nulls[v] = true
	}

	if opts.HasHeaders {
		headers, err := csvReader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return reader, nil
			}
			return nil, &CSVReaderError{Op: "read_headers", Err: err}
		}
		reader.headers = make([]string, len(headers))
		for i, h := range headers {
			reader.headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		}
	}

	return reader, nil
}

// Read implements the core.DataSource interface.
func (c *CSVReader) Read(ctx context.Context) (core.Record, error) {
	start := time.Now()

	select {
	case <-ctx.Done():
		return nil, &CSVReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	fields, err := c.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &CSVReaderError{Op: "read_record", Err: err}
	}

	res := make(core.Record, len(fields))
	for i, val := range fields {
		key := c.key(i)
		if c.isNull(val) {
			c.stats.NullValueCounts[key]++
			res[key] = nil
			continue
		}
		res[key] = c.parseValue(val)
	}
	// Short rows leave trailing columns null.
	for i := len(fields); i < len(c.headers); i++ {
		res[c.headers[i]] = nil
	}

	c.stats.RecordsRead++
	c.stats.LastReadTime = time.Now()
	c.stats.ReadDuration += time.Since(start)

	return res, nil
}

// Columns returns the header row.
func (c *CSVReader) Columns() []string {
	return append([]string(nil), c.headers...)
}

// Close implements the core.DataSource interface.
func (c *CSVReader) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// Stats returns CSV reader performance stats.
func (c *CSVReader) Stats() CSVReaderStats {
	return c.stats
}

func (c *CSVReader) key(i int) string {
	if i < len(c.headers) {
		return c.headers[i]
	}
	return "col_" + strconv.Itoa(i)
}

func (c *CSVReader) isNull(value string) bool {
	v := strings.TrimSpace(value)
	return v == "" || c.nulls[v]
}

// parseValue attempts to infer int, float, bool, or falls back to string.
func (c *CSVReader) parseValue(value string) interface{} {
	value = strings.TrimSpace(value)
	if !c.opts.InferTypes {
		return value
	}
	return inferValue(value)
}

// inferValue converts a trimmed text cell to int, float64 or bool when it parses as one.
func inferValue(value string) interface{} {
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(value); err == nil && len(value) > 1 {
		return b
	}
	return value
}
