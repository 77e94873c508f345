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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/assetflow/core"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func obs(country, date string, newCases, vaccinated, population interface{}) core.Record {
	return core.Record{
		ColCountry:          country,
		ColDate:             date,
		ColNewCases:         newCases,
		ColPeopleVaccinated: vaccinated,
		ColPopulation:       population,
		"continent":         "South America",
	}
}

func rawTable(rows ...core.Record) *core.Table {
	return core.NewTable(append(append([]string(nil), CleanColumns...), "continent"), rows)
}

func TestClean_FiltersDedupesAndSorts(t *testing.T) {
	raw := rawTable(
		obs("Peru", "2021-01-05", 7, 100, 33000000),
		obs("Ecuador", "2021-01-05", 3, 50, 17000000),
		obs("Ecuador", "2021-01-04", 5, 40, 17000000),
		obs("Ecuador", "2021-01-04", 9, 41, 17000000), // repeated key, dropped
		obs("Chile", "2021-01-04", 11, 60, 19000000),  // not allow-listed
		obs("Peru", "2021-01-04", nil, 90, 33000000),  // no case count
		obs("Peru", "2021-01-06", 8, "", 33000000),    // no vaccination count
	)

	clean, err := Clean(context.Background(), raw, []string{"Ecuador", "Peru"})
	require.NoError(t, err)

	assert.Equal(t, CleanColumns, clean.Columns())
	require.Equal(t, 3, clean.Len())

	first := clean.Row(0)
	assert.Equal(t, "Ecuador", first[ColCountry])
	assert.Equal(t, day("2021-01-04"), first[ColDate])
	assert.Equal(t, 5, first[ColNewCases], "the first occurrence of a key is kept")
	_, hasContinent := first["continent"]
	assert.False(t, hasContinent)

	assert.Equal(t, day("2021-01-05"), clean.Row(1)[ColDate])
	assert.Equal(t, "Peru", clean.Row(2)[ColCountry])
	assert.Equal(t, 7, clean.Row(2)[ColNewCases])
}

func TestClean_BadDate(t *testing.T) {
	raw := rawTable(obs("Peru", "yesterday", 1, 1, 1))
	_, err := Clean(context.Background(), raw, []string{"Peru"})
	assert.Error(t, err)
}

func TestClean_EmptyAllowList(t *testing.T) {
	raw := rawTable(obs("Peru", "2021-01-04", 1, 1, 1))
	clean, err := Clean(context.Background(), raw, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, clean.Len())
	assert.Equal(t, CleanColumns, clean.Columns())
}

func cleanTable(rows ...core.Record) *core.Table {
	for _, r := range rows {
		if s, ok := r[ColDate].(string); ok {
			r[ColDate] = day(s)
		}
	}
	return core.NewTable(CleanColumns, rows)
}

func TestIncidence_RollingWithinCountry(t *testing.T) {
	clean := cleanTable(
		obs("Ecuador", "2021-01-01", 1, 1, 100000),
		obs("Ecuador", "2021-01-02", 2, 1, 100000),
		obs("Ecuador", "2021-01-03", 3, 1, 100000),
		obs("Ecuador", "2021-01-04", 4, 1, 100000),
		obs("Peru", "2021-01-01", 50, 1, 200000),
		obs("Peru", "2021-01-02", 50, 1, 200000),
	)

	out, err := Incidence(context.Background(), clean, 3)
	require.NoError(t, err)

	assert.Equal(t, []string{ColCountry, ColDate, ColDailyIncidence, ColIncidence7d}, out.Columns())
	require.Equal(t, 6, out.Len())

	rolling := out.Column(ColIncidence7d)
	assert.Nil(t, rolling[0])
	assert.Nil(t, rolling[1])
	assert.InDelta(t, 2.0, rolling[2], 1e-9)
	assert.InDelta(t, 3.0, rolling[3], 1e-9)

	// Peru never sees Ecuador's rows.
	assert.Nil(t, rolling[4])
	assert.Nil(t, rolling[5])
	assert.InDelta(t, 25.0, out.Row(4)[ColDailyIncidence], 1e-9)
}

func TestIncidence_UndefinedValueInWindow(t *testing.T) {
	clean := cleanTable(
		obs("Ecuador", "2021-01-01", 1, 1, 100000),
		obs("Ecuador", "2021-01-02", 2, 1, 0), // zero population: no rate
		obs("Ecuador", "2021-01-03", 3, 1, 100000),
		obs("Ecuador", "2021-01-04", 4, 1, 100000),
	)

	out, err := Incidence(context.Background(), clean, 2)
	require.NoError(t, err)

	rolling := out.Column(ColIncidence7d)
	assert.Nil(t, rolling[1])
	assert.Nil(t, rolling[2])
	assert.InDelta(t, 3.5, rolling[3], 1e-9)
}

func TestIncidence_InvalidWindow(t *testing.T) {
	_, err := Incidence(context.Background(), cleanTable(), 0)
	assert.Error(t, err)
}

func TestWeeklyGrowth_ZeroWeekGivesZeroFactor(t *testing.T) {
	// Weeks starting 2021-01-04, 01-11 and 01-18 sum to 100, 150 and 0.
	clean := cleanTable(
		obs("Ecuador", "2021-01-04", 60, 1, 1),
		obs("Ecuador", "2021-01-10", 40, 1, 1),
		obs("Ecuador", "2021-01-11", 150, 1, 1),
		obs("Ecuador", "2021-01-19", 0, 1, 1),
	)

	out, err := WeeklyGrowth(context.Background(), clean)
	require.NoError(t, err)

	assert.Equal(t, []string{ColCountry, ColWeek, ColWeeklyCases, ColPrevCases, ColGrowthFactor}, out.Columns())
	require.Equal(t, 2, out.Len())

	assert.Equal(t, day("2021-01-11"), out.Row(0)[ColWeek])
	assert.Equal(t, 150.0, out.Row(0)[ColWeeklyCases])
	assert.Equal(t, 100.0, out.Row(0)[ColPrevCases])
	assert.Equal(t, 1.5, out.Row(0)[ColGrowthFactor])

	assert.Equal(t, day("2021-01-18"), out.Row(1)[ColWeek])
	assert.Equal(t, 0.0, out.Row(1)[ColGrowthFactor])
}

func TestWeeklyGrowth_ZeroPreviousWeekDropped(t *testing.T) {
	clean := cleanTable(
		obs("Peru", "2021-01-04", 0, 1, 1),
		obs("Peru", "2021-01-11", 50, 1, 1),
		obs("Peru", "2021-01-18", 100, 1, 1),
		obs("Ecuador", "2021-01-04", 10, 1, 1),
		obs("Ecuador", "2021-01-11", 30, 1, 1),
	)

	out, err := WeeklyGrowth(context.Background(), clean)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())

	assert.Equal(t, "Ecuador", out.Row(0)[ColCountry])
	assert.Equal(t, 3.0, out.Row(0)[ColGrowthFactor])
	assert.Equal(t, "Peru", out.Row(1)[ColCountry])
	assert.Equal(t, day("2021-01-18"), out.Row(1)[ColWeek])
	assert.Equal(t, 2.0, out.Row(1)[ColGrowthFactor])
}

func TestWeeklyGrowth_SingleWeek(t *testing.T) {
	out, err := WeeklyGrowth(context.Background(), cleanTable(obs("Peru", "2021-01-04", 5, 1, 1)))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
}

func TestProfile(t *testing.T) {
	raw := rawTable(
		obs("Ecuador", "2021-01-04", 5, 40, 17000000),
		obs("Peru", "2021-01-02", 12, nil, 33000000),
		obs("Peru", "2021-01-09", 0, 90, 33000000),
	)

	profile, err := Profile(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, 1, profile.Len())

	row := profile.Row(0)
	assert.Equal(t, 3, row["num_rows"])
	assert.Equal(t, 6, row["num_columns"])
	assert.Equal(t, "2021-01-02 → 2021-01-09", row["date_range"])
	assert.Equal(t, 2, row["distinct_countries"])
	assert.Equal(t, 0, row["min_new_cases"])
	assert.Equal(t, 12, row["max_new_cases"])
	assert.Equal(t, 33.33, row["pct_null_people_vaccinated"])
}

func TestProfile_EmptyTable(t *testing.T) {
	profile, err := Profile(context.Background(), rawTable())
	require.NoError(t, err)

	row := profile.Row(0)
	assert.Equal(t, 0, row["num_rows"])
	assert.Nil(t, row["date_range"])
	assert.Nil(t, row["pct_null_people_vaccinated"])
}
