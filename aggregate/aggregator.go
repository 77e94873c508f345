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
	"context"

	"github.com/aaronlmathis/assetflow/core"
)

// Aggregator defines the interface for data aggregation operations.
// Aggregators consume records one at a time and produce a single value.
type Aggregator interface {
	// Add processes a record for aggregation.
	Add(ctx context.Context, record core.Record) error
	// Result returns the aggregated value; nil means undefined (e.g. min of no values).
	Result() (interface{}, error)
	// Reset clears the aggregator state for reuse.
	Reset()
	// Clone returns a fresh aggregator with the same configuration and empty state.
	Clone() Aggregator
}

// Reduce feeds every row of t to the aggregator and returns its result.
func Reduce(ctx context.Context, t *core.Table, agg Aggregator) (interface{}, error) {
	agg.Reset()
	for i := 0; i < t.Len(); i++ {
		if err := agg.Add(ctx, t.Row(i)); err != nil {
			return nil, err
		}
	}
	return agg.Result()
}
