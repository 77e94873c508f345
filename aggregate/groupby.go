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
	"fmt"

	"github.com/aaronlmathis/assetflow/core"
)

type namedAggregator struct {
	output     string
	aggregator Aggregator
}

// GroupBy implements grouping and aggregation operations.
// Groups are emitted in the order their first row appears.
type GroupBy struct {
	groupFields []string
	aggregators []namedAggregator
}

// NewGroupBy creates a new GroupBy aggregator.
func NewGroupBy(groupFields ...string) *GroupBy {
	return &GroupBy{groupFields: groupFields}
}

// Count adds a row count aggregator for the specified output field.
func (g *GroupBy) Count(outputField string) *GroupBy {
	return g.With(outputField, &CountAggregator{})
}

// Sum adds a sum aggregator for the specified field.
func (g *GroupBy) Sum(field, outputField string) *GroupBy {
	return g.With(outputField, &SumAggregator{Field: field})
}

// Avg adds an average aggregator for the specified field.
func (g *GroupBy) Avg(field, outputField string) *GroupBy {
	return g.With(outputField, &AvgAggregator{Field: field})
}

// Min adds a minimum aggregator for the specified field.
func (g *GroupBy) Min(field, outputField string) *GroupBy {
	return g.With(outputField, &MinAggregator{Field: field})
}

// Max adds a maximum aggregator for the specified field.
func (g *GroupBy) Max(field, outputField string) *GroupBy {
	return g.With(outputField, &MaxAggregator{Field: field})
}

// With adds an arbitrary aggregator under outputField.
func (g *GroupBy) With(outputField string, agg Aggregator) *GroupBy {
	g.aggregators = append(g.aggregators, namedAggregator{output: outputField, aggregator: agg})
	return g
}

// Process aggregates the rows of t and returns one row per group with the group
// fields followed by the aggregate outputs.
func (g *GroupBy) Process(ctx context.Context, t *core.Table) (*core.Table, error) {
	type group struct {
		key  core.Record
		aggs []Aggregator
	}

	index := make(map[string]*group)
	var order []*group

	for i := 0; i < t.Len(); i++ {
		record := t.Row(i)
		groupKey := core.KeyOf(record, g.groupFields...)

		grp, exists := index[groupKey]
		if !exists {
			grp = &group{key: make(core.Record, len(g.groupFields))}
			for _, f := range g.groupFields {
				grp.key[f] = record[f]
			}
			for _, na := range g.aggregators {
				grp.aggs = append(grp.aggs, na.aggregator.Clone())
			}
			index[groupKey] = grp
			order = append(order, grp)
		}

		for j, agg := range grp.aggs {
			if err := agg.Add(ctx, record); err != nil {
				return nil, fmt.Errorf("aggregation error for field %s: %w", g.aggregators[j].output, err)
			}
		}
	}

	columns := append([]string(nil), g.groupFields...)
	for _, na := range g.aggregators {
		columns = append(columns, na.output)
	}

	results := make([]core.Record, 0, len(order))
	for _, grp := range order {
		result := grp.key.Clone()
		for j, agg := range grp.aggs {
			value, err := agg.Result()
			if err != nil {
				return nil, fmt.Errorf("failed to get result for field %s: %w", g.aggregators[j].output, err)
			}
			result[g.aggregators[j].output] = value
		}
		results = append(results, result)
	}

	return core.NewTable(columns, results), nil
}

// CountAggregator counts records, or non-null values of Field when it is set.
type CountAggregator struct {
	Field string
	count int
}

func (c *CountAggregator) Add(ctx context.Context, record core.Record) error {
	if c.Field == "" || !core.IsNull(record[c.Field]) {
		c.count++
	}
	return nil
}

func (c *CountAggregator) Result() (interface{}, error) { return c.count, nil }
func (c *CountAggregator) Reset()                       { c.count = 0 }
func (c *CountAggregator) Clone() Aggregator            { return &CountAggregator{Field: c.Field} }

// SumAggregator sums numeric values; nulls are skipped and an empty sum is 0.
type SumAggregator struct {
	Field string
	sum   float64
}

func (s *SumAggregator) Add(ctx context.Context, record core.Record) error {
	if num, ok := core.ToFloat(record[s.Field]); ok {
		s.sum += num
	}
	return nil
}

func (s *SumAggregator) Result() (interface{}, error) { return s.sum, nil }
func (s *SumAggregator) Reset()                       { s.sum = 0 }
func (s *SumAggregator) Clone() Aggregator            { return &SumAggregator{Field: s.Field} }

// AvgAggregator calculates the mean of numeric values; nil when there are none.
type AvgAggregator struct {
	Field string
	sum   float64
	count int
}

func (a *AvgAggregator) Add(ctx context.Context, record core.Record) error {
	if num, ok := core.ToFloat(record[a.Field]); ok {
		a.sum += num
		a.count++
	}
	return nil
}

func (a *AvgAggregator) Result() (interface{}, error) {
	if a.count == 0 {
		return nil, nil
	}
	return a.sum / float64(a.count), nil
}

func (a *AvgAggregator) Reset() {
	a.sum = 0
	a.count = 0
}

func (a *AvgAggregator) Clone() Aggregator { return &AvgAggregator{Field: a.Field} }

// MinAggregator finds the minimum non-null value.
type MinAggregator struct {
	Field string
	min   interface{}
	set   bool
}

func (m *MinAggregator) Add(ctx context.Context, record core.Record) error {
	value := record[m.Field]
	if core.IsNull(value) {
		return nil
	}
	if !m.set || core.Compare(value, m.min) < 0 {
		m.min = value
		m.set = true
	}
	return nil
}

func (m *MinAggregator) Result() (interface{}, error) { return m.min, nil }

func (m *MinAggregator) Reset() {
	m.min = nil
	m.set = false
}

func (m *MinAggregator) Clone() Aggregator { return &MinAggregator{Field: m.Field} }

// MaxAggregator finds the maximum non-null value.
type MaxAggregator struct {
	Field string
	max   interface{}
	set   bool
}

func (m *MaxAggregator) Add(ctx context.Context, record core.Record) error {
	value := record[m.Field]
	if core.IsNull(value) {
		return nil
	}
	if !m.set || core.Compare(value, m.max) > 0 {
		m.max = value
		m.set = true
	}
	return nil
}

func (m *MaxAggregator) Result() (interface{}, error) { return m.max, nil }

func (m *MaxAggregator) Reset() {
	m.max = nil
	m.set = false
}

func (m *MaxAggregator) Clone() Aggregator { return &MaxAggregator{Field: m.Field} }

// DistinctAggregator counts distinct non-null values of Field.
type DistinctAggregator struct {
	Field string
	seen  map[string]bool
}

func (d *DistinctAggregator) Add(ctx context.Context, record core.Record) error {
	if core.IsNull(record[d.Field]) {
		return nil
	}
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	d.seen[core.KeyOf(record, d.Field)] = true
	return nil
}

func (d *DistinctAggregator) Result() (interface{}, error) { return len(d.seen), nil }
func (d *DistinctAggregator) Reset()                       { d.seen = nil }
func (d *DistinctAggregator) Clone() Aggregator            { return &DistinctAggregator{Field: d.Field} }

// NullRateAggregator returns the fraction of records (0..1) where Field is null.
type NullRateAggregator struct {
	Field string
	nulls int
	total int
}

func (n *NullRateAggregator) Add(ctx context.Context, record core.Record) error {
	n.total++
	if core.IsNull(record[n.Field]) {
		n.nulls++
	}
	return nil
}

func (n *NullRateAggregator) Result() (interface{}, error) {
	if n.total == 0 {
		return nil, nil
	}
	return float64(n.nulls) / float64(n.total), nil
}

func (n *NullRateAggregator) Reset() {
	n.nulls = 0
	n.total = 0
}

func (n *NullRateAggregator) Clone() Aggregator { return &NullRateAggregator{Field: n.Field} }
