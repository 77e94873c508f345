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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/aaronlmathis/assetflow/core"
)

// JSONWriterError wraps JSON-specific write errors with context.
type JSONWriterError struct {
	Op  string
	Err error
}

func (e *JSONWriterError) Error() string {
	return fmt.Sprintf("json writer %s: %v", e.Op, e.Err)
}

func (e *JSONWriterError) Unwrap() error {
	return e.Err
}

// JSONWriter implements core.DataSink for JSON lines files
type JSONWriter struct {
	writer  *bufio.Writer
	closer  io.Closer
	written int64
}

// NewJSONWriter creates a new JSON writer for line-delimited JSON output
func NewJSONWriter(w io.WriteCloser) *JSONWriter {
	return &JSONWriter{
		writer: bufio.NewWriter(w),
		closer: w,
	}
}

// Write implements the core.DataSink interface.
// NaN becomes null and times are written the way FormatCell renders them.
func (j *JSONWriter) Write(ctx context.Context, record core.Record) error {
	data, err := json.Marshal(jsonSafe(record))
	if err != nil {
		return &JSONWriterError{Op: "marshal", Err: err}
	}
	if _, err := j.writer.Write(data); err != nil {
		return &JSONWriterError{Op: "write", Err: err}
	}
	if err := j.writer.WriteByte('\n'); err != nil {
		return &JSONWriterError{Op: "write", Err: err}
	}
	j.written++
	return nil
}

// Flush implements the core.DataSink interface
func (j *JSONWriter) Flush() error {
	if err := j.writer.Flush(); err != nil {
		return &JSONWriterError{Op: "flush", Err: err}
	}
	return nil
}

// Close implements the core.DataSink interface
func (j *JSONWriter) Close() error {
	if err := j.Flush(); err != nil {
		return err
	}
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}

// RecordsWritten returns the number of lines written.
func (j *JSONWriter) RecordsWritten() int64 {
	return j.written
}

func jsonSafe(record core.Record) map[string]interface{} {
	out := make(map[string]interface{}, len(record))
	for k, v := range record {
		switch val := v.(type) {
		case float64:
			if math.IsNaN(val) || math.IsInf(val, 0) {
				out[k] = nil
				continue
			}
		case time.Time:
			out[k] = FormatCell(val)
			continue
		}
		out[k] = v
	}
	return out
}
