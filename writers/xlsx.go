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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/aaronlmathis/assetflow/core"
)

// XLSXWriterError wraps workbook write errors with the sheet involved.
type XLSXWriterError struct {
	Op    string
	Sheet string
	Err   error
}

func (e *XLSXWriterError) Error() string {
	if e.Sheet != "" {
		return fmt.Sprintf("xlsx writer %s [%s]: %v", e.Op, e.Sheet, e.Err)
	}
	return fmt.Sprintf("xlsx writer %s: %v", e.Op, e.Err)
}

func (e *XLSXWriterError) Unwrap() error {
	return e.Err
}

// Sheet is one named table of a workbook.
type Sheet struct {
	Name  string
	Table *core.Table
}

// WriteWorkbook writes sheets, in order, to a new workbook at path. Each sheet gets a
// header row followed by one row per record; nulls are left as empty cells.
func WriteWorkbook(path string, sheets []Sheet) error {
	if len(sheets) == 0 {
		return &XLSXWriterError{Op: "validate", Err: fmt.Errorf("workbook needs at least one sheet")}
	}
	seen := make(map[string]bool, len(sheets))
	for _, s := range sheets {
		if err := validateSheetName(s.Name); err != nil {
			return &XLSXWriterError{Op: "validate", Sheet: s.Name, Err: err}
		}
		if seen[strings.ToLower(s.Name)] {
			return &XLSXWriterError{Op: "validate", Sheet: s.Name, Err: fmt.Errorf("duplicate sheet name")}
		}
		seen[strings.ToLower(s.Name)] = true
		if s.Table == nil {
			return &XLSXWriterError{Op: "validate", Sheet: s.Name, Err: fmt.Errorf("sheet has no table")}
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	defaultSheet := f.GetSheetName(0)
	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, s.Name); err != nil {
				return &XLSXWriterError{Op: "rename_sheet", Sheet: s.Name, Err: err}
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return &XLSXWriterError{Op: "new_sheet", Sheet: s.Name, Err: err}
		}
		if err := writeSheet(f, s); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &XLSXWriterError{Op: "create_directory", Err: err}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return &XLSXWriterError{Op: "save", Err: err}
	}
	return nil
}

func writeSheet(f *excelize.File, s Sheet) error {
	columns := s.Table.Columns()
	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(s.Name, "A1", &header); err != nil {
		return &XLSXWriterError{Op: "write_header", Sheet: s.Name, Err: err}
	}

	for r := 0; r < s.Table.Len(); r++ {
		rec := s.Table.Row(r)
		row := make([]interface{}, len(columns))
		for i, c := range columns {
			row[i] = cellValue(rec[c])
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return &XLSXWriterError{Op: "cell_name", Sheet: s.Name, Err: err}
		}
		if err := f.SetSheetRow(s.Name, cell, &row); err != nil {
			return &XLSXWriterError{Op: "write_row", Sheet: s.Name, Err: fmt.Errorf("row %d: %w", r, err)}
		}
	}
	return nil
}

// cellValue keeps numbers and booleans native and renders times as text.
func cellValue(value interface{}) interface{} {
	if core.IsNull(value) {
		return nil
	}
	switch v := value.(type) {
	case time.Time:
		return FormatCell(v)
	case []byte:
		return string(v)
	}
	return value
}

func validateSheetName(name string) error {
	if name == "" {
		return fmt.Errorf("sheet name is empty")
	}
	if len([]rune(name)) > 31 {
		return fmt.Errorf("sheet name longer than 31 characters")
	}
	if strings.ContainsAny(name, `:\/?*[]`) {
		return fmt.Errorf("sheet name contains one of : \\ / ? * [ ]")
	}
	return nil
}
