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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/assetflow/core"
)

func covidRows() *core.Table {
	return core.NewTable([]string{"country", "date", "population", "new_cases"}, []core.Record{
		{"country": "Peru", "date": "2021-01-04", "population": 33000000, "new_cases": 10},
		{"country": "Peru", "date": "2021-01-05", "population": 33000000, "new_cases": 0},
		{"country": "Ecuador", "date": "2021-01-04", "population": 17000000, "new_cases": 5.5},
	})
}

func TestChecks(t *testing.T) {
	now := func() time.Time { return time.Date(2021, 1, 4, 12, 0, 0, 0, time.UTC) }

	tests := []struct {
		name   string
		check  Check
		table  *core.Table
		passed bool
		desc   string
	}{
		{"future date", NoFutureDates("date", now), covidRows(), false, "latest 2021-01-05 is after 2021-01-04"},
		{"no future date", NoFutureDates("date", func() time.Time { return now().AddDate(0, 1, 0) }), covidRows(), true, "latest 2021-01-05"},
		{"not null", NotNull("country"), covidRows(), true, "Column country has no nulls"},
		{"unique", Unique("country", "date"), covidRows(), true, "Duplicates found on [country date]: 0"},
		{"positive", Positive("population"), covidRows(), true, "population > 0"},
		{"non negative", NonNegative("new_cases"), covidRows(), true, "new_cases >= 0"},
		{"in range", InRange("new_cases", 1, 10), covidRows(), false, "1 violating rows"},
		{"min rows", MinRows(4), covidRows(), false, "Row count 3 (minimum 4)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passed, desc := tt.check.Predicate(tt.table)
			assert.Equal(t, tt.passed, passed)
			assert.Contains(t, desc, tt.desc)
		})
	}
}

func TestNotNull_CountsNulls(t *testing.T) {
	table := core.NewTable([]string{"population"}, []core.Record{
		{"population": nil}, {"population": ""}, {"population": 1},
	})
	passed, desc := NotNull("population").Predicate(table)
	assert.False(t, passed)
	assert.Equal(t, "Column population has 2 null values", desc)
}

func TestUnique_ReportsDuplicateCount(t *testing.T) {
	table := core.NewTable([]string{"country", "date"}, []core.Record{
		{"country": "Peru", "date": "2021-01-04"},
		{"country": "Peru", "date": "2021-01-04"},
		{"country": "Peru", "date": "2021-01-04"},
	})
	passed, desc := Unique("country", "date").Predicate(table)
	assert.False(t, passed)
	assert.Equal(t, "Duplicates found on [country date]: 2", desc)
}

func TestEngine_Run(t *testing.T) {
	engine := NewEngine(NotNull("country"), InRange("new_cases", 0, 5))

	results, err := engine.Run("clean", covidRows())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "clean", results[0].Subject)
	assert.True(t, results[0].Passed)
	assert.False(t, results[1].Passed)

	failed := Failed(results)
	require.Len(t, failed, 1)
	assert.Equal(t, "in_range_new_cases", failed[0].Check)
	assert.Contains(t, failed[0].String(), "[FAIL] clean/in_range_new_cases")

	table := ResultsTable(results)
	assert.Equal(t, []string{"subject", "check", "passed", "description"}, table.Columns())
	assert.Equal(t, false, table.Row(1)["passed"])
}

func TestEngine_SchemaViolation(t *testing.T) {
	var sv *core.SchemaViolationError

	_, err := NewEngine(NotNull("people_vaccinated")).Run("ingest", covidRows())
	require.Error(t, err)
	require.True(t, errors.As(err, &sv))
	assert.Equal(t, []string{"people_vaccinated"}, sv.Missing)

	_, err = NewEngine(MinRows(1)).Run("export", "report.xlsx")
	require.True(t, errors.As(err, &sv))
	assert.Contains(t, sv.Error(), "expected a table")
}

func TestEngine_PredicateSeesCopy(t *testing.T) {
	mutating := Check{
		Name: "mutating",
		Predicate: func(t *core.Table) (bool, string) {
			row := t.Row(0)
			row["country"] = "changed"
			return true, ""
		},
	}
	table := covidRows()
	_, err := NewEngine(mutating).Run("clean", table)
	require.NoError(t, err)
	assert.Equal(t, "Peru", table.Row(0)["country"])
}

func TestCheck_On(t *testing.T) {
	c := Unique("country", "date")
	bound := c.On("clean")
	bound.Requires[0] = "x"
	assert.Equal(t, "clean", bound.Subject)
	assert.Equal(t, "", c.Subject)
	assert.Equal(t, "country", c.Requires[0])
}
