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

package filter

import (
	"context"
	"fmt"
	"reflect"

	"github.com/aaronlmathis/assetflow/core"
)

// Package filter provides composable row filters and a helper that applies them to a table.
//
// All constructors return core.Filter implementations.

// NotNull creates a filter that excludes records where any of the fields is missing, nil, empty or NaN.
func NotNull(fields ...string) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		for _, field := range fields {
			if core.IsNull(record[field]) {
				return false, nil
			}
		}
		return true, nil
	})
}

// Equals creates a filter that includes records where the field equals the specified value.
func Equals(field string, expectedValue interface{}) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		value, exists := record[field]
		if !exists {
			return false, nil
		}
		return reflect.DeepEqual(value, expectedValue), nil
	})
}

// In creates a filter that includes records whose field value is one of values.
// Values are matched on their string form so that an allow-list of names matches
// whatever scalar type the reader produced.
func In(field string, values ...string) core.Filter {
	allowed := make(map[string]bool, len(values))
	for _, v := range values {
		allowed[v] = true
	}

	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		value, exists := record[field]
		if !exists || value == nil {
			return false, nil
		}
		return allowed[fmt.Sprintf("%v", value)], nil
	})
}

// Between creates a filter that includes records where the numeric field is between min and max (inclusive).
func Between(field string, min, max float64) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		num, ok := core.ToFloat(record[field])
		if !ok {
			return false, nil
		}
		return num >= min && num <= max, nil
	})
}

// And creates a filter that requires all provided filters to pass.
func And(filters ...core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		for _, filter := range filters {
			include, err := filter.ShouldInclude(ctx, record)
			if err != nil {
				return false, err
			}
			if !include {
				return false, nil
			}
		}
		return true, nil
	})
}

// Not creates a filter that negates the provided filter.
func Not(filter core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		include, err := filter.ShouldInclude(ctx, record)
		if err != nil {
			return false, err
		}
		return !include, nil
	})
}

// Custom creates a filter using a user-provided predicate function.
func Custom(predicate func(core.Record) bool) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		return predicate(record), nil
	})
}

// Apply returns a new table holding the rows of t that pass every filter, in their original order.
func Apply(ctx context.Context, t *core.Table, filters ...core.Filter) (*core.Table, error) {
	combined := And(filters...)
	var kept []core.Record
	for i := 0; i < t.Len(); i++ {
		row := t.Row(i)
		include, err := combined.ShouldInclude(ctx, row)
		if err != nil {
			return nil, fmt.Errorf("filter failed at row %d: %w", i, err)
		}
		if include {
			kept = append(kept, row)
		}
	}
	return t.WithRows(kept), nil
}
