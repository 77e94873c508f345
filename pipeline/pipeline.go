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

// pipeline.go - the COVID report asset graph
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/aaronlmathis/assetflow/config"
	"github.com/aaronlmathis/assetflow/core"
	"github.com/aaronlmathis/assetflow/dag"
	"github.com/aaronlmathis/assetflow/quality"
	"github.com/aaronlmathis/assetflow/readers"
	"github.com/aaronlmathis/assetflow/writers"
)

// Asset names, in registration order.
const (
	AssetIngest       = "ingest"
	AssetProfile      = "profile"
	AssetInputChecks  = "input_checks"
	AssetClean        = "clean"
	AssetIncidence    = "incidence_7d"
	AssetWeeklyGrowth = "weekly_growth"
	AssetOutputChecks = "output_checks"
	AssetExport       = "export"
)

// Workbook sheet names, in export order.
const (
	SheetCleanData    = "CleanData"
	SheetIncidence    = "Incidence7d"
	SheetWeeklyGrowth = "WeeklyGrowth"
	SheetProfile      = "Profile"
)

// Sink persists report artifacts. *writers.ReportSink implements it.
type Sink interface {
	WriteTable(ctx context.Context, name string, t *core.Table) (string, error)
	WriteWorkbook(ctx context.Context, path string, sheets []writers.Sheet) (string, error)
}

// Deps are the collaborators the assets call out to.
type Deps struct {
	Source readers.Fetcher
	Sink   Sink
	Clock  func() time.Time // Reference "now" for the future-date check; time.Now when nil
}

// Build registers every asset of the report pipeline and validates the graph.
// With cfg.Execution.StrictChecks the export also waits for both check assets,
// so a failed check keeps the workbook from being written.
func Build(cfg *config.Config, deps Deps) (*dag.Graph, error) {
	if cfg == nil {
		return nil, fmt.Errorf("pipeline config is required")
	}
	if deps.Source == nil {
		return nil, fmt.Errorf("pipeline source is required")
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("pipeline sink is required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	p := cfg.Pipeline
	var stepOpts []dag.AssetOption
	if cfg.Execution.StepTimeout > 0 {
		stepOpts = append(stepOpts, dag.WithTimeout(cfg.Execution.StepTimeout))
	}
	opts := func(extra ...dag.AssetOption) []dag.AssetOption {
		return append(append([]dag.AssetOption(nil), stepOpts...), extra...)
	}

	ingestOpts := opts(
		dag.WithGroup("ingestion"),
		dag.WithDescription("Raw dataset fetched from the configured source"),
	)
	if retries := cfg.Execution.Retry.MaxAttempts - 1; retries > 0 {
		ingestOpts = append(ingestOpts, dag.WithRetries(retries, &dag.ExponentialBackoff{
			BaseDelay: cfg.Execution.Retry.InitialDelay,
			MaxDelay:  cfg.Execution.Retry.MaxDelay,
		}))
	}

	exportUpstream := []string{AssetClean, AssetIncidence, AssetWeeklyGrowth, AssetProfile}
	if cfg.Execution.StrictChecks {
		exportUpstream = append(exportUpstream, AssetInputChecks, AssetOutputChecks)
	}

	nodes := []dag.AssetNode{
		dag.NewAsset(AssetIngest, nil, ingestAsset(deps.Source, cfg.Source.URL), ingestOpts...),

		dag.NewAsset(AssetProfile, []string{AssetIngest}, profileAsset(deps.Sink),
			opts(dag.WithGroup("profiling"), dag.WithDescription("One-row summary of the raw dataset"))...),

		dag.NewCheckAsset(AssetInputChecks, AssetIngest, InputChecks(deps.Clock),
			dag.WithGroup("quality"), dag.WithDescription("Sanity checks on the raw dataset")),

		dag.NewAsset(AssetClean, []string{AssetIngest}, cleanAsset(p.Countries),
			opts(
				dag.WithGroup("processing"),
				dag.WithDescription("Allow-listed, de-duplicated and sorted observations"),
				dag.WithChecks(quality.Unique(ColCountry, ColDate), quality.NotNull(ColNewCases)),
			)...),

		dag.NewAsset(AssetIncidence, []string{AssetClean}, incidenceAsset(p.RollingWindow),
			opts(dag.WithGroup("metrics"), dag.WithDescription("Trailing mean of daily cases per 100k inhabitants"))...),

		dag.NewAsset(AssetWeeklyGrowth, []string{AssetClean}, weeklyGrowthAsset(),
			opts(dag.WithGroup("metrics"), dag.WithDescription("Week-over-week growth of reported cases"))...),

		dag.NewCheckAsset(AssetOutputChecks, AssetIncidence,
			[]quality.Check{quality.InRange(ColIncidence7d, p.IncidenceMin, p.IncidenceMax)},
			dag.WithGroup("quality"), dag.WithDescription("Bounds on the rolling incidence")),

		dag.NewAsset(AssetExport, exportUpstream, exportAsset(deps.Sink, p.Workbook),
			opts(dag.WithGroup("reporting"), dag.WithDescription("Consolidated workbook"))...),
	}

	registry, err := dag.NewRegistry(nodes...)
	if err != nil {
		return nil, err
	}
	return registry.Build()
}

// InputChecks are the checks run against the raw dataset.
func InputChecks(now func() time.Time) []quality.Check {
	return []quality.Check{
		quality.NoFutureDates(ColDate, now),
		quality.NotNull(ColCountry),
		quality.NotNull(ColDate),
		quality.NotNull(ColPopulation),
		quality.Unique(ColCountry, ColDate),
		quality.Positive(ColPopulation),
		quality.NonNegative(ColNewCases),
	}
}

func ingestAsset(source readers.Fetcher, url string) dag.TransformFunc {
	return func(ctx context.Context, in dag.Inputs) (interface{}, error) {
		t, err := source.Fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		in.Logger().Info("dataset ingested", "rows", t.Len(), "columns", len(t.Columns()))
		return t, nil
	}
}

func profileAsset(sink Sink) dag.TransformFunc {
	return func(ctx context.Context, in dag.Inputs) (interface{}, error) {
		raw, err := in.Table(AssetIngest, ColCountry, ColDate, ColNewCases, ColPeopleVaccinated)
		if err != nil {
			return nil, err
		}
		profile, err := Profile(ctx, raw)
		if err != nil {
			return nil, err
		}
		path, err := sink.WriteTable(ctx, AssetProfile, profile)
		if err != nil {
			return nil, fmt.Errorf("write profile: %w", err)
		}
		in.Logger().Info("profile written", "path", path)
		return profile, nil
	}
}

func cleanAsset(countries []string) dag.TransformFunc {
	return func(ctx context.Context, in dag.Inputs) (interface{}, error) {
		raw, err := in.Table(AssetIngest, CleanColumns...)
		if err != nil {
			return nil, err
		}
		return Clean(ctx, raw, countries)
	}
}

func incidenceAsset(window int) dag.TransformFunc {
	return func(ctx context.Context, in dag.Inputs) (interface{}, error) {
		clean, err := in.Table(AssetClean, ColCountry, ColDate, ColNewCases, ColPopulation)
		if err != nil {
			return nil, err
		}
		return Incidence(ctx, clean, window)
	}
}

func weeklyGrowthAsset() dag.TransformFunc {
	return func(ctx context.Context, in dag.Inputs) (interface{}, error) {
		clean, err := in.Table(AssetClean, ColCountry, ColDate, ColNewCases)
		if err != nil {
			return nil, err
		}
		return WeeklyGrowth(ctx, clean)
	}
}

func exportAsset(sink Sink, workbook string) dag.TransformFunc {
	return func(ctx context.Context, in dag.Inputs) (interface{}, error) {
		sources := []struct{ asset, sheet string }{
			{AssetClean, SheetCleanData},
			{AssetIncidence, SheetIncidence},
			{AssetWeeklyGrowth, SheetWeeklyGrowth},
			{AssetProfile, SheetProfile},
		}
		sheets := make([]writers.Sheet, 0, len(sources))
		for _, s := range sources {
			t, err := in.Table(s.asset)
			if err != nil {
				return nil, err
			}
			sheets = append(sheets, writers.Sheet{Name: s.sheet, Table: t})
		}

		path, err := sink.WriteWorkbook(ctx, workbook, sheets)
		if err != nil {
			return nil, err
		}
		in.Logger().Info("report exported", "path", path)
		return path, nil
	}
}
