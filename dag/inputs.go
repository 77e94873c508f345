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

package dag

import (
	"fmt"
	"log/slog"

	"github.com/aaronlmathis/assetflow/core"
)

// Inputs gives a transform read access to its upstream outputs.
type Inputs struct {
	asset  string
	names  []string
	values map[string]interface{}
	logger *slog.Logger
}

// NewInputs binds upstream values for asset. The executor builds these; tests of
// individual transforms may build them directly.
func NewInputs(asset string, values map[string]interface{}, logger *slog.Logger, names ...string) Inputs {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if len(names) == 0 {
		for n := range values {
			names = append(names, n)
		}
	}
	return Inputs{asset: asset, names: names, values: values, logger: logger}
}

// Asset returns the name of the asset being materialized.
func (in Inputs) Asset() string { return in.asset }

// Names returns the bound upstream names in declaration order.
func (in Inputs) Names() []string {
	return append([]string(nil), in.names...)
}

// Value returns the raw output of an upstream.
func (in Inputs) Value(name string) (interface{}, bool) {
	v, ok := in.values[name]
	return v, ok
}

// Table returns a copy of an upstream's table output. It fails with a
// SchemaViolationError if the output is not a table or lacks a required column.
func (in Inputs) Table(name string, required ...string) (*core.Table, error) {
	v, ok := in.values[name]
	if !ok {
		return nil, fmt.Errorf("asset %s has no upstream %s", in.asset, name)
	}
	t, ok := v.(*core.Table)
	if !ok {
		return nil, &core.SchemaViolationError{
			Subject: name,
			Reason:  fmt.Sprintf("expected a table, got %T", v),
		}
	}
	if err := t.Require(name, required...); err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// Logger returns a logger carrying the run and asset attributes.
func (in Inputs) Logger() *slog.Logger {
	return in.logger
}
