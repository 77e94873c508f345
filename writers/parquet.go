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
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/assetflow/core"
)

// Package writers provides implementations of core.DataSink for writing data to various destinations.
//
// This file implements the Parquet writer. Records are buffered and written as Arrow record
// batches; the schema is inferred from the first batch, widening ints to float64 when a
// column mixes the two.

// ParquetWriterError wraps Parquet-specific write errors with context about the operation.
type ParquetWriterError struct {
	Op  string // Operation that failed (e.g., "schema", "append_value", "write_batch")
	Err error  // Underlying error
}

func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// ParquetWriterStats holds statistics about the Parquet writer's performance.
type ParquetWriterStats struct {
	RecordsWritten  int64
	BatchesWritten  int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// ParquetWriterOptions configures the Parquet writer.
type ParquetWriterOptions struct {
	BatchSize    int64                // Records buffered before a batch is written
	Schema       *arrow.Schema        // Pre-defined schema; inferred when nil
	Compression  compress.Compression // Compression codec
	FieldOrder   []string             // Column order; sorted keys of the first record when empty
	RowGroupSize int64                // Maximum rows per row group
	Metadata     map[string]string    // Key/value metadata stored with the schema
}

// WriterOption represents a configuration function for ParquetWriterOptions.
type WriterOption func(*ParquetWriterOptions)

// WithBatchSize sets the number of records to buffer before writing a batch.
func WithBatchSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCompression sets the Parquet compression codec.
func WithCompression(compression compress.Compression) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Compression = compression
	}
}

// WithFieldOrder sets the column order of the Parquet schema.
func WithFieldOrder(fields []string) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.FieldOrder = append([]string(nil), fields...)
	}
}

// WithSchema skips inference and writes with schema.
func WithSchema(schema *arrow.Schema) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Schema = schema
	}
}

func WithRowGroupSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.RowGroupSize = size
	}
}

func WithMetadata(metadata map[string]string) WriterOption {
	return func(opts *ParquetWriterOptions) {
		if opts.Metadata == nil {
			opts.Metadata = make(map[string]string)
		}
		for k, v := range metadata {
			opts.Metadata[k] = v
		}
	}
}

// ParquetWriter implements core.DataSink for Parquet output.
type ParquetWriter struct {
	sink         io.Writer
	writer       *pqarrow.FileWriter
	schema       *arrow.Schema
	fieldOrder   []string
	recordBuffer []core.Record
	builders     []array.Builder
	allocator    memory.Allocator
	stats        ParquetWriterStats
	opts         *ParquetWriterOptions
	closed       bool
	errorState   bool
}

// NewParquetWriter creates the file (and its parent directories) and returns a writer for it.
func NewParquetWriter(filename string, options ...WriterOption) (*ParquetWriter, error) {
	if dir := filepath.Dir(filename); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &ParquetWriterError{Op: "create_directory", Err: err}
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return nil, &ParquetWriterError{Op: "open_file", Err: err}
	}
	return NewParquetStreamWriter(file, options...), nil
}

// NewParquetStreamWriter writes Parquet to w. w is closed by Close when it implements io.Closer.
func NewParquetStreamWriter(w io.Writer, options ...WriterOption) *ParquetWriter {
	opts := (&ParquetWriterOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	p := &ParquetWriter{
		sink:         w,
		schema:       opts.Schema,
		fieldOrder:   opts.FieldOrder,
		recordBuffer: make([]core.Record, 0, opts.BatchSize),
		allocator:    memory.NewGoAllocator(),
		stats:        ParquetWriterStats{NullValueCounts: make(map[string]int64)},
		opts:         opts,
	}
	if p.schema != nil && len(p.fieldOrder) == 0 {
		for _, f := range p.schema.Fields() {
			p.fieldOrder = append(p.fieldOrder, f.Name)
		}
	}
	return p
}

// Stats returns the current statistics of the Parquet writer.
func (p *ParquetWriter) Stats() ParquetWriterStats {
	return p.stats
}

// Schema returns the schema in use, nil before the first batch is written.
func (p *ParquetWriter) Schema() *arrow.Schema {
	return p.schema
}

// Write implements the core.DataSink interface.
func (p *ParquetWriter) Write(ctx context.Context, record core.Record) error {
	if p.closed {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("parquet writer is closed")}
	}
	if p.errorState {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}

	if len(p.fieldOrder) == 0 {
		p.fieldOrder = sortedKeys(record)
	}
	p.recordBuffer = append(p.recordBuffer, record)
	p.stats.RecordsWritten++

	if int64(len(p.recordBuffer)) >= p.opts.BatchSize {
		if err := p.flushBatch(); err != nil {
			p.errorState = true
			return err
		}
	}
	return nil
}

// Flush implements the core.DataSink interface.
func (p *ParquetWriter) Flush() error {
	if len(p.recordBuffer) == 0 {
		return nil
	}
	if err := p.flushBatch(); err != nil {
		p.errorState = true
		return err
	}
	return nil
}

// Close flushes remaining records and finalises the file footer.
func (p *ParquetWriter) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.Flush(); err != nil {
		return err
	}
	// An empty table still gets a valid file with its columns.
	if p.writer == nil && !p.errorState {
		if err := p.initialize(nil); err != nil {
			return err
		}
	}

	for _, b := range p.builders {
		b.Release()
	}
	p.builders = nil

	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			return &ParquetWriterError{Op: "close_writer", Err: err}
		}
		p.writer = nil
	}
	return nil
}

func (opts *ParquetWriterOptions) withDefaults() *ParquetWriterOptions {
	result := &ParquetWriterOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	if result.RowGroupSize <= 0 {
		result.RowGroupSize = 10000
	}
	if result.Compression == 0 {
		result.Compression = compress.Codecs.Snappy
	}
	return result
}

// initialize fixes the schema from sample and opens the file writer.
func (p *ParquetWriter) initialize(sample []core.Record) error {
	if p.schema == nil {
		fields := make([]arrow.Field, len(p.fieldOrder))
		for i, name := range p.fieldOrder {
			values := make([]interface{}, len(sample))
			for j, rec := range sample {
				values[j] = rec[name]
			}
			fields[i] = arrow.Field{Name: name, Type: InferArrowType(values), Nullable: true}
		}
		var md *arrow.Metadata
		if len(p.opts.Metadata) > 0 {
			m := arrow.MetadataFrom(p.opts.Metadata)
			md = &m
		}
		p.schema = arrow.NewSchema(fields, md)
	}

	props := parquet.NewWriterProperties(
		parquet.WithCompression(p.opts.Compression),
		parquet.WithMaxRowGroupLength(p.opts.RowGroupSize),
	)
	writer, err := pqarrow.NewFileWriter(p.schema, p.sink, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return &ParquetWriterError{Op: "create_writer", Err: err}
	}
	p.writer = writer

	p.builders = make([]array.Builder, len(p.fieldOrder))
	for i, name := range p.fieldOrder {
		idx := p.schema.FieldIndices(name)
		if len(idx) == 0 {
			return &ParquetWriterError{Op: "initialize_builders", Err: fmt.Errorf("field %s not found in schema", name)}
		}
		p.builders[i] = array.NewBuilder(p.allocator, p.schema.Field(idx[0]).Type)
	}
	return nil
}

// flushBatch writes the current buffer as one Arrow record batch.
func (p *ParquetWriter) flushBatch() error {
	start := time.Now()

	if p.writer == nil {
		if err := p.initialize(p.recordBuffer); err != nil {
			return err
		}
	}

	for _, record := range p.recordBuffer {
		for i, name := range p.fieldOrder {
			value := record[name]
			if core.IsNull(value) {
				p.builders[i].AppendNull()
				p.stats.NullValueCounts[name]++
				continue
			}
			if err := appendValue(p.builders[i], value); err != nil {
				return &ParquetWriterError{Op: "append_value", Err: fmt.Errorf("field %s: %w", name, err)}
			}
		}
	}

	arrays := make([]arrow.Array, len(p.builders))
	for i, b := range p.builders {
		arrays[i] = b.NewArray()
	}
	rec := array.NewRecord(p.schema, arrays, int64(len(p.recordBuffer)))
	for _, a := range arrays {
		a.Release()
	}
	defer rec.Release()

	if err := p.writer.Write(rec); err != nil {
		return &ParquetWriterError{Op: "write_batch", Err: err}
	}

	p.recordBuffer = p.recordBuffer[:0]
	p.stats.BatchesWritten++
	p.stats.FlushDuration += time.Since(start)
	p.stats.LastFlushTime = time.Now()
	return nil
}

// InferArrowType picks the narrowest Arrow type that holds every non-null value.
// Columns mixing ints and floats become float64; anything else mixed becomes string.
func InferArrowType(values []interface{}) arrow.DataType {
	var ints, floats, bools, times, bytesSeen, others int
	for _, v := range values {
		if core.IsNull(v) {
			continue
		}
		switch v.(type) {
		case int, int8, int16, int32, int64, uint8, uint16, uint32, uint64:
			ints++
		case float32, float64:
			floats++
		case bool:
			bools++
		case time.Time:
			times++
		case []byte:
			bytesSeen++
		default:
			others++
		}
	}

	switch {
	case others > 0:
		return arrow.BinaryTypes.String
	case ints+floats > 0 && bools+times+bytesSeen == 0:
		if floats > 0 {
			return arrow.PrimitiveTypes.Float64
		}
		return arrow.PrimitiveTypes.Int64
	case bools > 0 && ints+floats+times+bytesSeen == 0:
		return arrow.FixedWidthTypes.Boolean
	case times > 0 && ints+floats+bools+bytesSeen == 0:
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
	case bytesSeen > 0 && ints+floats+bools+times == 0:
		return arrow.BinaryTypes.Binary
	default:
		return arrow.BinaryTypes.String
	}
}

func appendValue(builder array.Builder, value interface{}) error {
	switch b := builder.(type) {
	case *array.Int64Builder:
		f, ok := core.ToFloat(value)
		if !ok || f != math.Trunc(f) {
			return fmt.Errorf("cannot store %T %v as int64", value, value)
		}
		b.Append(int64(f))
	case *array.Float64Builder:
		f, ok := core.ToFloat(value)
		if !ok {
			return fmt.Errorf("cannot store %T %v as float64", value, value)
		}
		b.Append(f)
	case *array.BooleanBuilder:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("cannot store %T as bool", value)
		}
		b.Append(v)
	case *array.TimestampBuilder:
		t, ok := core.ToTime(value)
		if !ok {
			return fmt.Errorf("cannot store %T %v as timestamp", value, value)
		}
		b.Append(arrow.Timestamp(t.UnixMicro()))
	case *array.BinaryBuilder:
		v, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("cannot store %T as binary", value)
		}
		b.Append(v)
	case *array.StringBuilder:
		b.Append(FormatCell(value))
	default:
		return fmt.Errorf("unsupported builder %T", builder)
	}
	return nil
}

func sortedKeys(record core.Record) []string {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
