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

package transform

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aaronlmathis/assetflow/core"
)

// Package transform provides per-row transformers plus the table-wide reshaping
// operations (sort, de-duplication) that assets build on.
//
// Row transformers never modify their input record.

// Select creates a transformer that keeps only the specified fields.
func Select(fields ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record, len(fields))
		for _, field := range fields {
			if value, exists := record[field]; exists {
				result[field] = value
			}
		}
		return result, nil
	})
}

// AddField creates a transformer that adds a new field computed from the current record.
func AddField(field string, fn func(core.Record) interface{}) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		result[field] = fn(record)
		return result, nil
	})
}

// ParseTime creates a transformer that parses a date field into a time.Time.
// Values that are already times pass through; nulls stay nil. Anything else that
// does not parse is an error, so malformed input fails the consuming asset.
func ParseTime(field string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		value := record[field]
		if core.IsNull(value) {
			result[field] = nil
			return result, nil
		}
		parsed, ok := core.ToTime(value)
		if !ok {
			return nil, fmt.Errorf("failed to parse time field %s: unsupported value %v", field, value)
		}
		result[field] = parsed
		return result, nil
	})
}

// Apply runs every row of t through the transformers in order and returns the
// result with the given output columns (the input columns when columns is nil).
func Apply(ctx context.Context, t *core.Table, columns []string, transformers ...core.Transformer) (*core.Table, error) {
	rows := make([]core.Record, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		row := t.Row(i)
		for _, tr := range transformers {
			var err error
			if row, err = tr.Transform(ctx, row); err != nil {
				return nil, fmt.Errorf("transform failed at row %d: %w", i, err)
			}
		}
		rows = append(rows, row)
	}
	if columns == nil {
		columns = t.Columns()
	}
	return core.NewTable(columns, rows), nil
}

// SortBy returns a copy of t stably sorted by the given fields, ascending.
func SortBy(t *core.Table, fields ...string) *core.Table {
	rows := t.Rows()
	sort.SliceStable(rows, func(i, j int) bool {
		for _, f := range fields {
			if c := core.Compare(rows[i][f], rows[j][f]); c != 0 {
				return c < 0
			}
		}
		return false
	})
	return t.WithRows(rows)
}

// DropDuplicates keeps the first row for every distinct combination of keys.
func DropDuplicates(t *core.Table, keys ...string) *core.Table {
	seen := make(map[string]bool, t.Len())
	var kept []core.Record
	for i := 0; i < t.Len(); i++ {
		row := t.Row(i)
		k := core.KeyOf(row, keys...)
		if seen[k] {
			continue
		}
		seen[k] = true
		kept = append(kept, row)
	}
	return t.WithRows(kept)
}

// CountDuplicates returns how many rows repeat an earlier row's key
// (pandas' duplicated(subset=keys).sum()).
func CountDuplicates(t *core.Table, keys ...string) int {
	return t.Len() - DropDuplicates(t, keys...).Len()
}

// WeekStart returns the Monday 00:00 of the week containing ts, in ts's location.
func WeekStart(ts time.Time) time.Time {
	offset := (int(ts.Weekday()) + 6) % 7
	y, m, d := ts.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, ts.Location())
}
