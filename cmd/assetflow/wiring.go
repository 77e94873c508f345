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

package main

import (
	"context"
	"log/slog"

	"github.com/aaronlmathis/assetflow/config"
	"github.com/aaronlmathis/assetflow/dag"
	"github.com/aaronlmathis/assetflow/pipeline"
	"github.com/aaronlmathis/assetflow/readers"
	"github.com/aaronlmathis/assetflow/writers"
)

// loadConfig reads the config file and applies the log flag overrides.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	return cfg, nil
}

func awsOptions(cfg *config.Config) readers.AWSOptions {
	return readers.AWSOptions{
		Region:  cfg.Source.AWS.Region,
		Profile: cfg.Source.AWS.Profile,
	}
}

func newSource(cfg *config.Config, logger *slog.Logger) *readers.Source {
	return readers.NewSource(
		readers.WithSourceTimeout(cfg.Source.Timeout),
		readers.WithSourceRetries(cfg.Source.Retries, cfg.Source.RetryDelay),
		readers.WithSourceHeaders(cfg.Source.Headers),
		readers.WithSourceSheet(cfg.Source.Sheet),
		readers.WithSourceAWS(awsOptions(cfg)),
		readers.WithSourceS3Endpoint(cfg.Source.AWS.Endpoint, cfg.Source.AWS.PathStyle),
		readers.WithSourceLogger(logger),
	)
}

// newSink creates the report sink. Uploads are only configured when upload is set,
// so commands that never write (graph) do not load AWS credentials.
func newSink(ctx context.Context, cfg *config.Config, logger *slog.Logger, upload bool) (*writers.ReportSink, error) {
	opts := []writers.ReportSinkOption{
		writers.WithReportDir(cfg.Report.Dir),
		writers.WithTableFormat(cfg.Report.Format),
		writers.WithSinkLogger(logger),
	}
	if cfg.Report.Postgres.DSN != "" {
		opts = append(opts, writers.WithPostgresMirror(cfg.Report.Postgres.DSN, cfg.Report.Postgres.Schema))
	}
	if upload && cfg.Report.S3.Bucket != "" {
		uploader, err := writers.NewS3Uploader(ctx,
			writers.WithUploadBucket(cfg.Report.S3.Bucket),
			writers.WithUploadPrefix(cfg.Report.S3.Prefix),
			writers.WithUploadAWS(awsOptions(cfg)),
			writers.WithUploadEndpoint(cfg.Source.AWS.Endpoint, cfg.Source.AWS.PathStyle),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, writers.WithS3Upload(uploader))
	}
	return writers.NewReportSink(opts...)
}

func newExecutor(cfg *config.Config, logger *slog.Logger) *dag.Executor {
	return dag.NewExecutor(
		dag.WithMaxWorkers(cfg.Execution.MaxWorkers),
		dag.WithStrictChecks(cfg.Execution.StrictChecks),
		dag.WithLogger(logger),
		dag.WithBackoffStrategy(&dag.ExponentialBackoff{
			BaseDelay: cfg.Execution.Retry.InitialDelay,
			MaxDelay:  cfg.Execution.Retry.MaxDelay,
		}),
	)
}

func buildGraph(ctx context.Context, cfg *config.Config, logger *slog.Logger, upload bool) (*dag.Graph, error) {
	sink, err := newSink(ctx, cfg, logger, upload)
	if err != nil {
		return nil, err
	}
	return pipeline.Build(cfg, pipeline.Deps{
		Source: newSource(cfg, logger),
		Sink:   sink,
	})
}
