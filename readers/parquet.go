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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/file"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/assetflow/core"
)

// ParquetReaderError provides structured error information for parquet reader operations
type ParquetReaderError struct {
	Op  string // Operation that failed (e.g., "read", "load_batch", "open_file", "schema")
	Err error  // Underlying error
}

func (e *ParquetReaderError) Error() string {
	return fmt.Sprintf("parquet reader %s: %v", e.Op, e.Err)
}

func (e *ParquetReaderError) Unwrap() error {
	return e.Err
}

// ParquetReaderStats holds statistics about the Parquet reader's performance
type ParquetReaderStats struct {
	RecordsRead     int64
	BatchesRead     int64
	ReadDuration    time.Duration
	NullValueCounts map[string]int64
}

// ParquetReaderOptions configures the Parquet reader
type ParquetReaderOptions struct {
	BatchSize int64    // Rows per Arrow batch
	Columns   []string // Optional projection
}

// ReaderOptionParquet represents a configuration function
type ReaderOptionParquet func(*ParquetReaderOptions)

func WithParquetBatchSize(size int64) ReaderOptionParquet {
	return func(opts *ParquetReaderOptions) {
		opts.BatchSize = size
	}
}

func WithParquetColumns(columns ...string) ReaderOptionParquet {
	return func(opts *ParquetReaderOptions) {
		opts.Columns = append([]string(nil), columns...)
	}
}

// ParquetReader implements core.DataSource for Parquet data through Apache Arrow.
type ParquetReader struct {
	closer          io.Closer
	recordReader    pqarrow.RecordReader
	currentBatch    arrow.Record
	currentBatchIdx int
	schema          *arrow.Schema
	columns         []string
	stats           ParquetReaderStats
}

// NewParquetReader opens a Parquet file.
func NewParquetReader(filename string, options ...ReaderOptionParquet) (*ParquetReader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, &ParquetReaderError{Op: "open_file", Err: err}
	}
	reader, err := newParquetReader(f, f, options...)
	if err != nil {
		f.Close()
		return nil, err
	}
	return reader, nil
}

// NewParquetReaderFromBytes reads Parquet data already held in memory, such as an S3 object.
func NewParquetReaderFromBytes(data []byte, options ...ReaderOptionParquet) (*ParquetReader, error) {
	return newParquetReader(bytes.NewReader(data), nil, options...)
}

func newParquetReader(src parquet.ReaderAtSeeker, closer io.Closer, options ...ReaderOptionParquet) (*ParquetReader, error) {
	opts := &ParquetReaderOptions{BatchSize: 1024}
	for _, option := range options {
		option(opts)
	}

	parquetReader, err := file.NewParquetReader(src)
	if err != nil {
		return nil, &ParquetReaderError{Op: "create_reader", Err: err}
	}

	arrowReader, err := pqarrow.NewFileReader(parquetReader,
		pqarrow.ArrowReadProperties{BatchSize: opts.BatchSize}, memory.NewGoAllocator())
	if err != nil {
		return nil, &ParquetReaderError{Op: "create_arrow_reader", Err: err}
	}

	schema, err := arrowReader.Schema()
	if err != nil {
		return nil, &ParquetReaderError{Op: "get_schema", Err: err}
	}

	var colIndices []int
	var columns []string
	if len(opts.Columns) > 0 {
		for _, name := range opts.Columns {
			idx := schema.FieldIndices(name)
			if len(idx) == 0 {
				return nil, &ParquetReaderError{Op: "column_projection", Err: fmt.Errorf("column %q not found in schema", name)}
			}
			colIndices = append(colIndices, idx[0])
			columns = append(columns, name)
		}
	} else {
		for _, f := range schema.Fields() {
			columns = append(columns, f.Name)
		}
	}

	recordReader, err := arrowReader.GetRecordReader(context.Background(), colIndices, nil)
	if err != nil {
		return nil, &ParquetReaderError{Op: "create_record_reader", Err: err}
	}

	return &ParquetReader{
		closer:       closer,
		recordReader: recordReader,
		schema:       schema,
		columns:      columns,
		stats:        ParquetReaderStats{NullValueCounts: make(map[string]int64)},
	}, nil
}

// Read returns the next record or io.EOF.
func (p *ParquetReader) Read(ctx context.Context) (core.Record, error) {
	start := time.Now()
	defer func() { p.stats.ReadDuration += time.Since(start) }()

	select {
	case <-ctx.Done():
		return nil, &ParquetReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	for p.currentBatch == nil || p.currentBatchIdx >= int(p.currentBatch.NumRows()) {
		if err := p.loadNextBatch(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, &ParquetReaderError{Op: "load_batch", Err: err}
		}
	}

	result := p.extractRecordFromBatch(p.currentBatch, p.currentBatchIdx)
	p.currentBatchIdx++
	p.stats.RecordsRead++
	return result, nil
}

// Columns returns the (projected) schema field names.
func (p *ParquetReader) Columns() []string {
	return append([]string(nil), p.columns...)
}

// Schema returns the Arrow schema of the Parquet data
func (p *ParquetReader) Schema() *arrow.Schema {
	return p.schema
}

// Stats returns statistics about the Parquet reader
func (p *ParquetReader) Stats() ParquetReaderStats {
	return p.stats
}

// Close releases Arrow buffers and closes the underlying file
func (p *ParquetReader) Close() error {
	if p.currentBatch != nil {
		p.currentBatch.Release()
		p.currentBatch = nil
	}
	if p.recordReader != nil {
		p.recordReader.Release()
		p.recordReader = nil
	}
	if p.closer != nil {
		err := p.closer.Close()
		p.closer = nil
		return err
	}
	return nil
}

func (p *ParquetReader) loadNextBatch() error {
	if p.currentBatch != nil {
		p.currentBatch.Release()
		p.currentBatch = nil
	}

	rec, err := p.recordReader.Read()
	if err != nil {
		return err
	}
	if rec == nil {
		return io.EOF
	}
	// The record reader releases its current batch on the next call.
	rec.Retain()
	p.currentBatch = rec
	p.currentBatchIdx = 0
	p.stats.BatchesRead++
	return nil
}

// extractRecordFromBatch builds a core.Record from a row in an Arrow Record batch
func (p *ParquetReader) extractRecordFromBatch(record arrow.Record, pos int) core.Record {
	res := make(core.Record, record.NumCols())
	sch := record.Schema()
	for i := 0; i < int(record.NumCols()); i++ {
		field := sch.Field(i)
		res[field.Name] = p.extractValueFromColumn(record.Column(i), pos, field.Name)
	}
	return res
}

func (p *ParquetReader) extractValueFromColumn(col arrow.Array, rowIdx int, fieldName string) interface{} {
	if col.IsNull(rowIdx) {
		p.stats.NullValueCounts[fieldName]++
		return nil
	}

	switch arr := col.(type) {
	case *array.Boolean:
		return arr.Value(rowIdx)
	case *array.Int8:
		return arr.Value(rowIdx)
	case *array.Int16:
		return arr.Value(rowIdx)
	case *array.Int32:
		return arr.Value(rowIdx)
	case *array.Int64:
		return arr.Value(rowIdx)
	case *array.Uint8:
		return arr.Value(rowIdx)
	case *array.Uint16:
		return arr.Value(rowIdx)
	case *array.Uint32:
		return arr.Value(rowIdx)
	case *array.Uint64:
		return arr.Value(rowIdx)
	case *array.Float32:
		return arr.Value(rowIdx)
	case *array.Float64:
		return arr.Value(rowIdx)
	case *array.String:
		return arr.Value(rowIdx)
	case *array.Binary:
		return arr.Value(rowIdx)
	case *array.Timestamp:
		unit := arr.DataType().(*arrow.TimestampType).Unit
		return arr.Value(rowIdx).ToTime(unit).UTC()
	case *array.Date32:
		return arr.Value(rowIdx).ToTime()
	case *array.Date64:
		return arr.Value(rowIdx).ToTime()
	default:
		return fmt.Sprintf("%v", col.GetOneForMarshal(rowIdx))
	}
}
