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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aaronlmathis/assetflow/core"
)

// JSONReaderError wraps structured error information for the JSON reader.
type JSONReaderError struct {
	Op   string
	Line int
	Err  error
}

func (e *JSONReaderError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("json reader %s at line %d: %v", e.Op, e.Line, e.Err)
	}
	return fmt.Sprintf("json reader %s: %v", e.Op, e.Err)
}

func (e *JSONReaderError) Unwrap() error {
	return e.Err
}

// JSONReader implements core.DataSource for line-delimited JSON.
// Numbers are decoded as float64, blank lines are skipped.
type JSONReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	line    int
}

// NewJSONReader creates a new JSON reader for line-delimited JSON.
func NewJSONReader(r io.ReadCloser) *JSONReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &JSONReader{
		scanner: scanner,
		closer:  r,
	}
}

// Read implements the core.DataSource interface.
func (j *JSONReader) Read(ctx context.Context) (core.Record, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, &JSONReaderError{Op: "read", Err: ctx.Err()}
		default:
		}

		if !j.scanner.Scan() {
			if err := j.scanner.Err(); err != nil {
				return nil, &JSONReaderError{Op: "scan", Line: j.line, Err: err}
			}
			return nil, io.EOF
		}
		j.line++

		line := bytes.TrimSpace(j.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var record core.Record
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, &JSONReaderError{Op: "decode", Line: j.line, Err: err}
		}
		return record, nil
	}
}

// Close implements the core.DataSource interface.
func (j *JSONReader) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}
