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

package core

import (
	"context"
)

// Package core defines the core interfaces for the AssetFlow library.
//
// Sources and sinks stream records one at a time; assets work on whole tables,
// and Drain / Pour bridge the two worlds.

// DataSource defines the interface for data extraction.
// Implementations stream records from a source (e.g., CSV, Parquet, PostgreSQL).
type DataSource interface {
	// Read returns the next record or io.EOF when no more records are available.
	Read(ctx context.Context) (Record, error)
	// Close releases any resources held by the data source.
	Close() error
}

// ColumnSource is implemented by sources that know their column order up front
// (CSV headers, SQL result sets, Parquet schemas).
type ColumnSource interface {
	Columns() []string
}

// DataSink defines the interface for data loading.
type DataSink interface {
	// Write outputs a single record to the sink.
	Write(ctx context.Context, record Record) error
	// Flush ensures all buffered data is written to the sink.
	Flush() error
	// Close releases any resources held by the data sink.
	Close() error
}

// Transformer defines the interface for per-row transformation operations.
type Transformer interface {
	// Transform applies the transformation to a record and returns the result.
	Transform(ctx context.Context, record Record) (Record, error)
}

// Filter defines the interface for record filtering.
type Filter interface {
	// ShouldInclude returns true if the record should be included in the output.
	ShouldInclude(ctx context.Context, record Record) (bool, error)
}
