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
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/assetflow/config"
	"github.com/aaronlmathis/assetflow/core"
	"github.com/aaronlmathis/assetflow/dag"
	"github.com/aaronlmathis/assetflow/readers"
	"github.com/aaronlmathis/assetflow/writers"
)

// Mock source serving a fixed table
type mockSource struct {
	mu    sync.Mutex
	table *core.Table
	err   error
	urls  []string
}

func (m *mockSource) Fetch(ctx context.Context, url string) (*core.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.urls = append(m.urls, url)
	if m.err != nil {
		return nil, m.err
	}
	return m.table.Clone(), nil
}

// covidDataset holds three full weeks for Ecuador and Peru plus rows the clean step removes.
func covidDataset() *core.Table {
	start := day("2021-01-04")
	var rows []core.Record
	for i := 0; i < 21; i++ {
		date := start.AddDate(0, 0, i).Format("2006-01-02")
		rows = append(rows,
			obs("Ecuador", date, 10+i, 1000*i, 17000000),
			obs("Peru", date, 20, 2000*i, 33000000),
			obs("Chile", date, 30, 3000*i, 19000000),
		)
	}
	rows = append(rows, obs("Ecuador", "2021-01-04", 99, 0, 17000000))
	return rawTable(rows...)
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Source.URL = "https://example.test/covid.csv"
	cfg.Report.Dir = t.TempDir()
	return cfg
}

func testSink(t *testing.T, cfg *config.Config) *writers.ReportSink {
	sink, err := writers.NewReportSink(writers.WithReportDir(cfg.Report.Dir))
	require.NoError(t, err)
	return sink
}

func fixedClock() time.Time { return day("2021-06-01") }

func run(t *testing.T, cfg *config.Config, deps Deps) *dag.ExecutionContext {
	g, err := Build(cfg, deps)
	require.NoError(t, err)
	ec, err := dag.NewExecutor(dag.WithMaxWorkers(2), dag.WithStrictChecks(cfg.Execution.StrictChecks)).
		Execute(context.Background(), g)
	require.NoError(t, err)
	return ec
}

func TestBuild_Structure(t *testing.T) {
	cfg := testConfig(t)
	g, err := Build(cfg, Deps{Source: &mockSource{}, Sink: testSink(t, cfg)})
	require.NoError(t, err)

	assert.Equal(t, []string{
		AssetIngest, AssetProfile, AssetInputChecks, AssetClean,
		AssetIncidence, AssetWeeklyGrowth, AssetOutputChecks, AssetExport,
	}, g.Names())
	assert.Equal(t, []string{AssetClean, AssetIncidence, AssetWeeklyGrowth, AssetProfile}, g.Upstream(AssetExport))

	order := g.ResolveOrder()
	require.Len(t, order, 8)
	assert.Equal(t, AssetIngest, order[0])
	assert.Equal(t, AssetExport, order[len(order)-1])

	node, ok := g.Node(AssetInputChecks)
	require.True(t, ok)
	assert.True(t, node.IsCheckOnly())
	assert.Equal(t, "quality", node.Group)
	assert.Len(t, node.Checks, 7)

	clean, _ := g.Node(AssetClean)
	require.Len(t, clean.Checks, 2)
	assert.Equal(t, AssetClean, clean.Checks[0].Subject)
}

func TestBuild_StrictExportWaitsForChecks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Execution.StrictChecks = true
	g, err := Build(cfg, Deps{Source: &mockSource{}, Sink: testSink(t, cfg)})
	require.NoError(t, err)

	assert.Contains(t, g.Upstream(AssetExport), AssetInputChecks)
	assert.Contains(t, g.Upstream(AssetExport), AssetOutputChecks)
}

func TestBuild_MissingDeps(t *testing.T) {
	cfg := testConfig(t)

	_, err := Build(nil, Deps{Source: &mockSource{}, Sink: testSink(t, cfg)})
	assert.Error(t, err)
	_, err = Build(cfg, Deps{Sink: testSink(t, cfg)})
	assert.Error(t, err)
	_, err = Build(cfg, Deps{Source: &mockSource{}})
	assert.Error(t, err)
}

func TestPipeline_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	source := &mockSource{table: covidDataset()}
	sink := testSink(t, cfg)

	ec := run(t, cfg, Deps{Source: source, Sink: sink, Clock: fixedClock})

	assert.Equal(t, []string{cfg.Source.URL}, source.urls)
	assert.Empty(t, ec.Failures())

	// The repeated Ecuador row trips the raw uniqueness check; nothing else fails.
	failed := ec.FailedChecks()
	require.Len(t, failed, 1, ec.Summary())
	assert.Equal(t, AssetIngest, failed[0].Subject)
	assert.Equal(t, "unique_country_date", failed[0].Check)

	clean, ok := ec.Table(AssetClean)
	require.True(t, ok)
	assert.Equal(t, 42, clean.Len())

	incidence, _ := ec.Table(AssetIncidence)
	assert.Equal(t, 42, incidence.Len())
	assert.Nil(t, incidence.Row(5)[ColIncidence7d])
	assert.NotNil(t, incidence.Row(6)[ColIncidence7d])

	growth, _ := ec.Table(AssetWeeklyGrowth)
	assert.Equal(t, 4, growth.Len())
	assert.Equal(t, 1.0, growth.Row(2)[ColGrowthFactor], "Peru reports a flat 20 per day")

	out, ok := ec.Output(AssetExport)
	require.True(t, ok)
	path, ok := out.(string)
	require.True(t, ok)
	assert.FileExists(t, path)

	sheets, err := readers.WorkbookSheets(path)
	require.NoError(t, err)
	assert.Equal(t, []string{SheetCleanData, SheetIncidence, SheetWeeklyGrowth, SheetProfile}, sheets)

	back, err := readers.ReadWorkbookSheet(path, SheetCleanData)
	require.NoError(t, err)
	assert.Equal(t, CleanColumns, back.Columns())
	assert.Equal(t, clean.Len(), back.Len())
	assert.Equal(t, "Ecuador", back.Row(0)[ColCountry])
	assert.Equal(t, "2021-01-04", back.Row(0)[ColDate])
	assert.Equal(t, 10, back.Row(0)[ColNewCases])

	profile, err := readers.ReadWorkbookSheet(path, SheetProfile)
	require.NoError(t, err)
	require.Equal(t, 1, profile.Len())
	assert.Equal(t, 64, profile.Row(0)["num_rows"])
	assert.Equal(t, 3, profile.Row(0)["distinct_countries"])

	_, err = os.Stat(sink.TablePath(AssetProfile))
	assert.NoError(t, err, "profile is also written as a table")
}

func TestPipeline_SourceFailureSkipsEverything(t *testing.T) {
	cfg := testConfig(t)
	fetchErr := &readers.FetchError{Op: "request", URL: cfg.Source.URL, Err: errors.New("connection refused")}

	ec := run(t, cfg, Deps{Source: &mockSource{err: fetchErr}, Sink: testSink(t, cfg), Clock: fixedClock})

	failures := ec.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, AssetIngest, failures[0].Asset)

	var fe *readers.FetchError
	assert.True(t, errors.As(failures[0], &fe))

	assert.Len(t, ec.Skipped(), 7)
	assert.Equal(t, dag.StateSkipped, ec.State(AssetExport))
	_, ok := ec.Output(AssetExport)
	assert.False(t, ok)
}

func TestPipeline_SchemaViolationFailsDependents(t *testing.T) {
	cfg := testConfig(t)
	broken := core.NewTable([]string{ColCountry, ColDate}, []core.Record{{ColCountry: "Peru", ColDate: "2021-01-04"}})

	ec := run(t, cfg, Deps{Source: &mockSource{table: broken}, Sink: testSink(t, cfg), Clock: fixedClock})

	assert.True(t, ec.Succeeded(AssetIngest))
	assert.Equal(t, dag.StateFailed, ec.State(AssetClean))
	assert.Equal(t, dag.StateFailed, ec.State(AssetProfile))
	assert.Equal(t, dag.StateSkipped, ec.State(AssetExport))

	var sv *core.SchemaViolationError
	for _, f := range ec.Failures() {
		if f.Asset == AssetClean {
			assert.True(t, errors.As(f, &sv))
		}
	}
}

func TestPipeline_StrictChecksBlockExport(t *testing.T) {
	for _, strict := range []bool{false, true} {
		t.Run(fmt.Sprintf("strict=%v", strict), func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Execution.StrictChecks = strict
			cfg.Pipeline.IncidenceMax = 0.01

			ec := run(t, cfg, Deps{Source: &mockSource{table: covidDataset()}, Sink: testSink(t, cfg), Clock: fixedClock})

			var names []string
			for _, c := range ec.FailedChecks() {
				names = append(names, c.Check)
			}
			assert.Contains(t, names, "in_range_incidence_7d")

			if strict {
				assert.Equal(t, dag.StateFailed, ec.State(AssetOutputChecks))
				assert.Equal(t, dag.StateSkipped, ec.State(AssetExport))
			} else {
				assert.True(t, ec.Succeeded(AssetExport))
			}
		})
	}
}

func TestPipeline_FutureDatesFlagged(t *testing.T) {
	cfg := testConfig(t)
	early := func() time.Time { return day("2021-01-10") }

	ec := run(t, cfg, Deps{Source: &mockSource{table: covidDataset()}, Sink: testSink(t, cfg), Clock: early})

	var found bool
	for _, c := range ec.FailedChecks() {
		if c.Check == "no_future_dates" {
			found = true
		}
	}
	assert.True(t, found)
	assert.True(t, ec.Succeeded(AssetExport))
}
