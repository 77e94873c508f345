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
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newGraphCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the resolved execution order and graph structure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())

			g, err := buildGraph(cmd.Context(), cfg, logger, false)
			if err != nil {
				return describeBuildError(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Order: %s\n", strings.Join(g.ResolveOrder(), " → "))
			g.Print(out)
			return nil
		},
	}
}
