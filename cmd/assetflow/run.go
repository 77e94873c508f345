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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aaronlmathis/assetflow/config"
	"github.com/aaronlmathis/assetflow/dag"
	"github.com/aaronlmathis/assetflow/pipeline"
)

// errReportNotProduced is returned after the status line has already explained the failure.
var errReportNotProduced = errors.New("report not produced")

func newRunCmd(opts *rootOptions) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the asset graph and export the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("strict") {
				cfg.Execution.StrictChecks = strict
			}
			logger := newLogger(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPipeline(ctx, cfg, logger, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail the owning asset on any failed check")
	return cmd
}

func runPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	g, err := buildGraph(ctx, cfg, logger, true)
	if err != nil {
		return describeBuildError(err)
	}

	ec, err := newExecutor(cfg, logger).Execute(ctx, g)
	if ec != nil {
		fmt.Fprint(out, ec.Summary())
	}
	if err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(out, "✘ Run aborted: %v\n", err)
		return errReportNotProduced
	}
	return reportStatus(out, ec)
}

// reportStatus prints the final status line. Only the export path decides the outcome;
// failed non-strict checks are reported but do not fail the run.
func reportStatus(out io.Writer, ec *dag.ExecutionContext) error {
	if ec.Succeeded(pipeline.AssetExport) {
		value, _ := ec.Output(pipeline.AssetExport)
		path, _ := value.(string)
		if failed := len(ec.FailedChecks()); failed > 0 {
			color.New(color.FgYellow, color.Bold).Fprintf(out, "⚠ Report written to %s (%d failed checks)\n", path, failed)
		} else {
			color.New(color.FgGreen, color.Bold).Fprintf(out, "✔ Report written to %s\n", path)
		}
		return nil
	}

	reason := string(ec.State(pipeline.AssetExport))
	for _, s := range ec.Skipped() {
		if s.Asset == pipeline.AssetExport {
			reason = "skipped because " + s.FailedAncestor + " failed"
		}
	}
	for _, f := range ec.Failures() {
		if f.Asset == pipeline.AssetExport {
			reason = f.Err.Error()
		}
	}
	color.New(color.FgRed, color.Bold).Fprintf(out, "✘ Report not produced: export %s\n", reason)
	return errReportNotProduced
}

func describeBuildError(err error) error {
	var gse dag.GraphStructureError
	if errors.As(err, &gse) {
		return fmt.Errorf("invalid asset graph (%s): %w", strings.Join(gse.Nodes(), ", "), err)
	}
	return err
}
