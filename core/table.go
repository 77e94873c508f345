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
	"sort"
)

// Table is an ordered set of columns plus the rows that carry them.
// A Table is never mutated after construction; every accessor hands out copies
// so that a materialized asset output stays intact while downstream assets read it.
type Table struct {
	columns []string
	rows    []Record
}

// NewTable builds a table from an explicit column order and a set of rows.
// Rows are copied. Columns present in rows but missing from columns are ignored by
// accessors that work column-wise, but kept in the row maps.
func NewTable(columns []string, rows []Record) *Table {
	t := &Table{
		columns: append([]string(nil), columns...),
		rows:    make([]Record, len(rows)),
	}
	for i, r := range rows {
		t.rows[i] = r.Clone()
	}
	return t
}

// NewTableFromRecords infers the column order from the records: the union of all
// keys, sorted. Used for sources without a native column order (JSON, MongoDB).
func NewTableFromRecords(rows []Record) *Table {
	seen := make(map[string]bool)
	var columns []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)
	return NewTable(columns, rows)
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.columns...)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Row returns a copy of row i.
func (t *Table) Row(i int) Record {
	return t.rows[i].Clone()
}

// Rows returns copies of all rows.
func (t *Table) Rows() []Record {
	if t == nil {
		return nil
	}
	out := make([]Record, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Clone()
	}
	return out
}

// Column returns the values of one column in row order.
func (t *Table) Column(name string) []interface{} {
	out := make([]interface{}, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[name]
	}
	return out
}

// HasColumn reports whether the column is declared.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.columns {
		if c == name {
			return true
		}
	}
	return false
}

// Require returns a SchemaViolationError naming subject when any of cols is not declared.
func (t *Table) Require(subject string, cols ...string) error {
	var missing []string
	for _, c := range cols {
		if !t.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &SchemaViolationError{Subject: subject, Missing: missing}
	}
	return nil
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	return NewTable(t.columns, t.rows)
}

// Project returns a table restricted to cols, in that order.
func (t *Table) Project(cols ...string) *Table {
	rows := make([]Record, len(t.rows))
	for i, r := range t.rows {
		out := make(Record, len(cols))
		for _, c := range cols {
			out[c] = r[c]
		}
		rows[i] = out
	}
	return &Table{columns: append([]string(nil), cols...), rows: rows}
}

// WithRows returns a table sharing this table's columns with a new row set.
func (t *Table) WithRows(rows []Record) *Table {
	return NewTable(t.columns, rows)
}
