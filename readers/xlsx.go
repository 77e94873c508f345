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
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/aaronlmathis/assetflow/core"
)

// XLSXReaderError provides structured error information for workbook reads.
type XLSXReaderError struct {
	Op    string
	Sheet string
	Err   error
}

func (e *XLSXReaderError) Error() string {
	if e.Sheet != "" {
		return fmt.Sprintf("xlsx reader %s [%s]: %v", e.Op, e.Sheet, e.Err)
	}
	return fmt.Sprintf("xlsx reader %s: %v", e.Op, e.Err)
}

func (e *XLSXReaderError) Unwrap() error {
	return e.Err
}

// XLSXReader implements core.DataSource over one worksheet. The first row holds the headers.
type XLSXReader struct {
	headers []string
	rows    [][]string
	pos     int
	infer   bool
}

// NewXLSXReader opens a workbook file and selects sheet (the first sheet when empty).
func NewXLSXReader(path, sheet string) (*XLSXReader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &XLSXReaderError{Op: "open", Err: err}
	}
	defer f.Close()
	return newXLSXReader(f, sheet)
}

// NewXLSXReaderFromBytes reads a workbook held in memory.
func NewXLSXReaderFromBytes(data []byte, sheet string) (*XLSXReader, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &XLSXReaderError{Op: "open", Err: err}
	}
	defer f.Close()
	return newXLSXReader(f, sheet)
}

func newXLSXReader(f *excelize.File, sheet string) (*XLSXReader, error) {
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, &XLSXReaderError{Op: "select_sheet", Err: fmt.Errorf("workbook has no sheets")}
		}
		sheet = sheets[0]
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, &XLSXReaderError{Op: "select_sheet", Sheet: sheet, Err: fmt.Errorf("sheet not found")}
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &XLSXReaderError{Op: "get_rows", Sheet: sheet, Err: err}
	}

	r := &XLSXReader{infer: true}
	if len(rows) > 0 {
		r.headers = rows[0]
		r.rows = rows[1:]
	}
	return r, nil
}

// Read implements the core.DataSource interface.
// Trailing empty cells are omitted by the workbook format and come back as nulls.
func (x *XLSXReader) Read(ctx context.Context) (core.Record, error) {
	select {
	case <-ctx.Done():
		return nil, &XLSXReaderError{Op: "read", Err: ctx.Err()}
	default:
	}
	if x.pos >= len(x.rows) {
		return nil, io.EOF
	}

	row := x.rows[x.pos]
	x.pos++

	rec := make(core.Record, len(x.headers))
	for i, h := range x.headers {
		if i >= len(row) || strings.TrimSpace(row[i]) == "" {
			rec[h] = nil
			continue
		}
		if x.infer {
			rec[h] = inferValue(strings.TrimSpace(row[i]))
		} else {
			rec[h] = row[i]
		}
	}
	return rec, nil
}

// Columns returns the header row.
func (x *XLSXReader) Columns() []string {
	return append([]string(nil), x.headers...)
}

// Close implements the core.DataSource interface.
func (x *XLSXReader) Close() error {
	return nil
}

// ReadWorkbookSheet reads one sheet of a workbook file into a table.
func ReadWorkbookSheet(path, sheet string) (*core.Table, error) {
	r, err := NewXLSXReader(path, sheet)
	if err != nil {
		return nil, err
	}
	return core.Drain(context.Background(), r)
}

// WorkbookSheets lists the sheet names of a workbook file in order.
func WorkbookSheets(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &XLSXReaderError{Op: "open", Err: err}
	}
	defer f.Close()
	return f.GetSheetList(), nil
}
