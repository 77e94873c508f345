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

// Package quality evaluates named data-quality predicates against materialized asset outputs.
//
// A failed predicate is a normal outcome recorded as a CheckResult; only structural
// problems (the subject is not a table, or lacks a column a check requires) are errors.
package quality

import (
	"fmt"

	"github.com/aaronlmathis/assetflow/core"
)

// Predicate inspects a table and reports whether it passed plus a human-readable description.
type Predicate func(t *core.Table) (passed bool, description string)

// Check is a named predicate bound to a subject asset.
type Check struct {
	Name      string    // Stable identifier, e.g. "unique_country_date"
	Subject   string    // Asset whose output is checked; empty means the owning asset
	Requires  []string  // Columns the predicate needs; absence is a SchemaViolationError
	Predicate Predicate // Evaluated against a copy of the subject output
}

// On returns a copy of the check bound to subject.
func (c Check) On(subject string) Check {
	c.Subject = subject
	c.Requires = append([]string(nil), c.Requires...)
	return c
}

// CheckResult records one evaluated check. It is never mutated after creation.
type CheckResult struct {
	Check       string
	Subject     string
	Passed      bool
	Description string
}

func (r CheckResult) String() string {
	status := "PASS"
	if !r.Passed {
		status = "FAIL"
	}
	return fmt.Sprintf("[%s] %s/%s: %s", status, r.Subject, r.Check, r.Description)
}

// Engine runs a fixed list of checks.
type Engine struct {
	checks []Check
}

// NewEngine creates an engine for checks.
func NewEngine(checks ...Check) *Engine {
	return &Engine{checks: append([]Check(nil), checks...)}
}

// Run evaluates every check against output, which must be a *core.Table.
// The subject name labels the results and any SchemaViolationError.
func (e *Engine) Run(subject string, output interface{}) ([]CheckResult, error) {
	table, ok := output.(*core.Table)
	if !ok {
		return nil, &core.SchemaViolationError{
			Subject: subject,
			Reason:  fmt.Sprintf("expected a table, got %T", output),
		}
	}

	results := make([]CheckResult, 0, len(e.checks))
	for _, c := range e.checks {
		if err := table.Require(subject, c.Requires...); err != nil {
			return results, err
		}
		passed, description := c.Predicate(table.Clone())
		results = append(results, CheckResult{
			Check:       c.Name,
			Subject:     subject,
			Passed:      passed,
			Description: description,
		})
	}
	return results, nil
}

// Failed returns the results that did not pass.
func Failed(results []CheckResult) []CheckResult {
	var out []CheckResult
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// ResultsTable renders results as a table with columns subject, check, passed, description.
func ResultsTable(results []CheckResult) *core.Table {
	rows := make([]core.Record, len(results))
	for i, r := range results {
		rows[i] = core.Record{
			"subject":     r.Subject,
			"check":       r.Check,
			"passed":      r.Passed,
			"description": r.Description,
		}
	}
	return core.NewTable([]string{"subject", "check", "passed", "description"}, rows)
}
