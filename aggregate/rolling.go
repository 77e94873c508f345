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

package aggregate

import (
	"fmt"

	"github.com/aaronlmathis/assetflow/core"
)

// RollingMean adds outField to every row of t: the mean of valueField over the
// trailing window rows of the same group, in table order.
//
// The value is nil until the group has window rows, and nil whenever the
// window holds a null. Rows of one group never contribute to another group.
func RollingMean(t *core.Table, groupField, valueField, outField string, window int) (*core.Table, error) {
	if window <= 0 {
		return nil, fmt.Errorf("rolling window must be positive, got %d", window)
	}

	history := make(map[string][]interface{})
	rows := t.Rows()
	for _, row := range rows {
		key := core.KeyOf(row, groupField)
		values := append(history[key], row[valueField])
		if len(values) > window {
			values = values[len(values)-window:]
		}
		history[key] = values

		row[outField] = windowMean(values, window)
	}

	columns := t.Columns()
	if !t.HasColumn(outField) {
		columns = append(columns, outField)
	}
	return core.NewTable(columns, rows), nil
}

func windowMean(values []interface{}, window int) interface{} {
	if len(values) < window {
		return nil
	}
	var sum float64
	for _, v := range values {
		f, ok := core.ToFloat(v)
		if !ok {
			return nil
		}
		sum += f
	}
	return sum / float64(window)
}
