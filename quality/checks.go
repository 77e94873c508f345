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

package quality

import (
	"fmt"
	"time"

	"github.com/aaronlmathis/assetflow/core"
	"github.com/aaronlmathis/assetflow/transform"
)

// NoFutureDates passes when the latest parseable date in column is not after now().
// An empty column passes.
func NoFutureDates(column string, now func() time.Time) Check {
	return Check{
		Name:     "no_future_dates",
		Requires: []string{column},
		Predicate: func(t *core.Table) (bool, string) {
			var latest time.Time
			for _, v := range t.Column(column) {
				if ts, ok := core.ToTime(v); ok && ts.After(latest) {
					latest = ts
				}
			}
			if latest.IsZero() {
				return true, "No future dates (no dates present)"
			}
			today := now()
			if latest.After(today) {
				return false, fmt.Sprintf("No future dates: latest %s is after %s",
					latest.Format("2006-01-02"), today.Format("2006-01-02"))
			}
			return true, fmt.Sprintf("No future dates (latest %s)", latest.Format("2006-01-02"))
		},
	}
}

// NotNull passes when column has no null cells.
func NotNull(column string) Check {
	return Check{
		Name:     "not_null_" + column,
		Requires: []string{column},
		Predicate: func(t *core.Table) (bool, string) {
			nulls := 0
			for _, v := range t.Column(column) {
				if core.IsNull(v) {
					nulls++
				}
			}
			if nulls > 0 {
				return false, fmt.Sprintf("Column %s has %d null values", column, nulls)
			}
			return true, fmt.Sprintf("Column %s has no nulls", column)
		},
	}
}

// Unique passes when no two rows share the same values for columns.
// The description carries the duplicate count.
func Unique(columns ...string) Check {
	name := "unique"
	for _, c := range columns {
		name += "_" + c
	}
	return Check{
		Name:     name,
		Requires: columns,
		Predicate: func(t *core.Table) (bool, string) {
			dups := transform.CountDuplicates(t, columns...)
			return dups == 0, fmt.Sprintf("Duplicates found on %v: %d", columns, dups)
		},
	}
}

// Positive passes when every non-null value of column is > 0.
// Nulls are NotNull's concern and are ignored here.
func Positive(column string) Check {
	return boundCheck("positive_"+column, column, func(f float64) bool { return f > 0 },
		fmt.Sprintf("%s > 0", column))
}

// NonNegative passes when every non-null value of column is >= 0.
func NonNegative(column string) Check {
	return boundCheck("non_negative_"+column, column, func(f float64) bool { return f >= 0 },
		fmt.Sprintf("%s >= 0", column))
}

// InRange passes when every non-null value of column lies in [min, max].
func InRange(column string, min, max float64) Check {
	return boundCheck("in_range_"+column, column, func(f float64) bool { return f >= min && f <= max },
		fmt.Sprintf("%s within [%g, %g]", column, min, max))
}

// MinRows passes when the table has at least n rows.
func MinRows(n int) Check {
	return Check{
		Name: "min_rows",
		Predicate: func(t *core.Table) (bool, string) {
			return t.Len() >= n, fmt.Sprintf("Row count %d (minimum %d)", t.Len(), n)
		},
	}
}

func boundCheck(name, column string, ok func(float64) bool, label string) Check {
	return Check{
		Name:     name,
		Requires: []string{column},
		Predicate: func(t *core.Table) (bool, string) {
			violations := 0
			for _, v := range t.Column(column) {
				if core.IsNull(v) {
					continue
				}
				f, numeric := core.ToFloat(v)
				if !numeric || !ok(f) {
					violations++
				}
			}
			if violations > 0 {
				return false, fmt.Sprintf("%s: %d violating rows", label, violations)
			}
			return true, label
		},
	}
}
