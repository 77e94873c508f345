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

package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aaronlmathis/assetflow/aggregate"
	"github.com/aaronlmathis/assetflow/core"
	"github.com/aaronlmathis/assetflow/filter"
	"github.com/aaronlmathis/assetflow/transform"
	"github.com/aaronlmathis/assetflow/writers"
)

// Dataset columns.
const (
	ColCountry          = "country"
	ColDate             = "date"
	ColNewCases         = "new_cases"
	ColPeopleVaccinated = "people_vaccinated"
	ColPopulation       = "population"

	ColDailyIncidence = "daily_incidence"
	ColIncidence7d    = "incidence_7d"

	ColWeek         = "week"
	ColWeeklyCases  = "weekly_cases"
	ColPrevCases    = "prev_cases"
	ColGrowthFactor = "growth_factor"
)

// CleanColumns is the projection kept by Clean, in order.
var CleanColumns = []string{ColCountry, ColDate, ColNewCases, ColPeopleVaccinated, ColPopulation}

// per100k scales daily cases to an incidence rate.
const per100k = 100000

// Profile summarizes the raw dataset in a single row.
func Profile(ctx context.Context, raw *core.Table) (*core.Table, error) {
	reduce := func(agg aggregate.Aggregator) (interface{}, error) {
		return aggregate.Reduce(ctx, raw, agg)
	}

	minDate, err := reduce(&aggregate.MinAggregator{Field: ColDate})
	if err != nil {
		return nil, err
	}
	maxDate, err := reduce(&aggregate.MaxAggregator{Field: ColDate})
	if err != nil {
		return nil, err
	}
	countries, err := reduce(&aggregate.DistinctAggregator{Field: ColCountry})
	if err != nil {
		return nil, err
	}
	minCases, err := reduce(&aggregate.MinAggregator{Field: ColNewCases})
	if err != nil {
		return nil, err
	}
	maxCases, err := reduce(&aggregate.MaxAggregator{Field: ColNewCases})
	if err != nil {
		return nil, err
	}
	nullRate, err := reduce(&aggregate.NullRateAggregator{Field: ColPeopleVaccinated})
	if err != nil {
		return nil, err
	}

	var dateRange interface{}
	if minDate != nil {
		dateRange = fmt.Sprintf("%s → %s", writers.FormatCell(minDate), writers.FormatCell(maxDate))
	}
	var pctNull interface{}
	if rate, ok := nullRate.(float64); ok {
		pctNull = math.Round(rate*100*100) / 100
	}

	row := core.Record{
		"num_rows":                   raw.Len(),
		"num_columns":                len(raw.Columns()),
		"date_range":                 dateRange,
		"distinct_countries":         countries,
		"min_new_cases":              minCases,
		"max_new_cases":              maxCases,
		"pct_null_people_vaccinated": pctNull,
	}
	columns := []string{
		"num_rows", "num_columns", "date_range", "distinct_countries",
		"min_new_cases", "max_new_cases", "pct_null_people_vaccinated",
	}
	return core.NewTable(columns, []core.Record{row}), nil
}

// Clean keeps the allow-listed countries with both case and vaccination counts,
// drops repeated (country, date) rows keeping the first, parses dates and sorts
// by country then date.
func Clean(ctx context.Context, raw *core.Table, countries []string) (*core.Table, error) {
	kept, err := filter.Apply(ctx, raw,
		filter.In(ColCountry, countries...),
		filter.NotNull(ColNewCases, ColPeopleVaccinated),
	)
	if err != nil {
		return nil, err
	}
	kept = transform.DropDuplicates(kept, ColCountry, ColDate)

	parsed, err := transform.Apply(ctx, kept, CleanColumns,
		transform.ParseTime(ColDate),
		transform.Select(CleanColumns...),
	)
	if err != nil {
		return nil, err
	}
	return transform.SortBy(parsed, ColCountry, ColDate), nil
}

// Incidence adds the daily incidence per 100k inhabitants and its trailing
// window-row mean per country. Rows are ordered by country then date first.
func Incidence(ctx context.Context, clean *core.Table, window int) (*core.Table, error) {
	withRate, err := transform.Apply(ctx, transform.SortBy(clean, ColCountry, ColDate),
		[]string{ColCountry, ColDate, ColDailyIncidence},
		transform.AddField(ColDailyIncidence, dailyIncidence),
		transform.Select(ColCountry, ColDate, ColDailyIncidence),
	)
	if err != nil {
		return nil, err
	}
	return aggregate.RollingMean(withRate, ColCountry, ColDailyIncidence, ColIncidence7d, window)
}

func dailyIncidence(r core.Record) interface{} {
	cases, ok := core.ToFloat(r[ColNewCases])
	if !ok {
		return nil
	}
	population, ok := core.ToFloat(r[ColPopulation])
	if !ok || population == 0 {
		return nil
	}
	return cases / population * per100k
}

// WeeklyGrowth sums new cases per country and Monday-starting week, then divides
// every week by the one before it. A country's first week has no predecessor and
// a zero predecessor has no ratio; neither produces a row.
func WeeklyGrowth(ctx context.Context, clean *core.Table) (*core.Table, error) {
	bucketed, err := transform.Apply(ctx, clean, nil, transform.AddField(ColWeek, weekOf))
	if err != nil {
		return nil, err
	}
	for i := 0; i < bucketed.Len(); i++ {
		if bucketed.Row(i)[ColWeek] == nil {
			return nil, fmt.Errorf("row %d: %s %v is not a date", i, ColDate, bucketed.Row(i)[ColDate])
		}
	}

	weekly, err := aggregate.NewGroupBy(ColCountry, ColWeek).
		Sum(ColNewCases, ColWeeklyCases).
		Process(ctx, bucketed)
	if err != nil {
		return nil, err
	}
	weekly = transform.SortBy(weekly, ColCountry, ColWeek)

	columns := []string{ColCountry, ColWeek, ColWeeklyCases, ColPrevCases, ColGrowthFactor}
	var rows []core.Record
	prev := make(map[string]float64)
	for _, row := range weekly.Rows() {
		country := core.KeyOf(row, ColCountry)
		cases, _ := core.ToFloat(row[ColWeeklyCases])
		last, seen := prev[country]
		prev[country] = cases
		if !seen || last == 0 {
			continue
		}
		row[ColPrevCases] = last
		row[ColGrowthFactor] = cases / last
		rows = append(rows, row)
	}
	return core.NewTable(columns, rows), nil
}

func weekOf(r core.Record) interface{} {
	ts, ok := core.ToTime(r[ColDate])
	if !ok {
		return nil
	}
	return transform.WeekStart(ts.In(time.UTC))
}
