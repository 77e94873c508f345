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
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aaronlmathis/assetflow/core"
	"github.com/aaronlmathis/assetflow/quality"
)

// Diagnostic is one entry of a run's log.
type Diagnostic struct {
	Time    time.Time
	Level   slog.Level
	Asset   string
	Message string
}

func (d Diagnostic) String() string {
	if d.Asset == "" {
		return fmt.Sprintf("%s %-5s %s", d.Time.Format(time.RFC3339), d.Level, d.Message)
	}
	return fmt.Sprintf("%s %-5s [%s] %s", d.Time.Format(time.RFC3339), d.Level, d.Asset, d.Message)
}

// SkippedAsset records an asset that was not executed because an ancestor failed.
type SkippedAsset struct {
	Asset          string
	FailedAncestor string
}

// ExecutionContext holds everything produced by one run.
type ExecutionContext struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time

	graph   *Graph
	logger  *slog.Logger
	mu      sync.RWMutex
	outputs map[string]interface{}
	states  map[string]NodeState

	failures    map[string]*StepFailure
	skipped     map[string]string
	checks      []quality.CheckResult
	diagnostics []Diagnostic
}

func newExecutionContext(g *Graph, logger *slog.Logger) *ExecutionContext {
	ec := &ExecutionContext{
		RunID:     uuid.NewString(),
		StartTime: time.Now(),
		graph:     g,
		outputs:   make(map[string]interface{}),
		states:    make(map[string]NodeState, g.Len()),
		failures:  make(map[string]*StepFailure),
		skipped:   make(map[string]string),
	}
	for _, name := range g.order {
		ec.states[name] = StatePending
	}
	ec.logger = logger.With("run_id", ec.RunID)
	return ec
}

// Output returns the materialized output of name.
func (ec *ExecutionContext) Output(name string) (interface{}, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	v, ok := ec.outputs[name]
	return v, ok
}

// Table returns a copy of name's output when it is a table.
func (ec *ExecutionContext) Table(name string) (*core.Table, bool) {
	v, ok := ec.Output(name)
	if !ok {
		return nil, false
	}
	t, ok := v.(*core.Table)
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// State returns the execution state of name.
func (ec *ExecutionContext) State(name string) NodeState {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.states[name]
}

// Succeeded reports whether name was materialized.
func (ec *ExecutionContext) Succeeded(name string) bool {
	return ec.State(name) == StateSucceeded
}

// Failures returns every StepFailure in resolved order.
func (ec *ExecutionContext) Failures() []*StepFailure {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	out := make([]*StepFailure, 0, len(ec.failures))
	for _, f := range ec.failures {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		return ec.graph.index[out[i].Asset] < ec.graph.index[out[j].Asset]
	})
	return out
}

// Skipped returns the assets that were not executed, in registration order.
func (ec *ExecutionContext) Skipped() []SkippedAsset {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	out := make([]SkippedAsset, 0, len(ec.skipped))
	for name, ancestor := range ec.skipped {
		out = append(out, SkippedAsset{Asset: name, FailedAncestor: ancestor})
	}
	sort.Slice(out, func(i, j int) bool {
		return ec.graph.index[out[i].Asset] < ec.graph.index[out[j].Asset]
	})
	return out
}

// CheckResults returns all check results in the order they were recorded.
func (ec *ExecutionContext) CheckResults() []quality.CheckResult {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return append([]quality.CheckResult(nil), ec.checks...)
}

// FailedChecks returns the check results that did not pass.
func (ec *ExecutionContext) FailedChecks() []quality.CheckResult {
	return quality.Failed(ec.CheckResults())
}

// Diagnostics returns the run log.
func (ec *ExecutionContext) Diagnostics() []Diagnostic {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return append([]Diagnostic(nil), ec.diagnostics...)
}

// OK reports whether every asset succeeded and every check passed.
func (ec *ExecutionContext) OK() bool {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return len(ec.failures) == 0 && len(ec.skipped) == 0 && len(quality.Failed(ec.checks)) == 0
}

// Summary renders the end-of-run report.
func (ec *ExecutionContext) Summary() string {
	var succeeded int
	ec.mu.RLock()
	for _, s := range ec.states {
		if s == StateSucceeded {
			succeeded++
		}
	}
	ec.mu.RUnlock()

	failures := ec.Failures()
	skipped := ec.Skipped()
	failedChecks := ec.FailedChecks()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Run %s finished in %v: %d succeeded, %d failed, %d skipped, %d/%d checks failed\n",
		ec.RunID, ec.EndTime.Sub(ec.StartTime).Round(time.Millisecond),
		succeeded, len(failures), len(skipped), len(failedChecks), len(ec.CheckResults()))

	if len(failures) > 0 {
		sb.WriteString("Step failures:\n")
		for _, f := range failures {
			fmt.Fprintf(&sb, "  - %s: %v\n", f.Asset, f.Err)
		}
	}
	if len(skipped) > 0 {
		sb.WriteString("Skipped:\n")
		for _, s := range skipped {
			fmt.Fprintf(&sb, "  - %s (upstream %s failed)\n", s.Asset, s.FailedAncestor)
		}
	}
	if len(failedChecks) > 0 {
		sb.WriteString("Failed checks:\n")
		for _, c := range failedChecks {
			fmt.Fprintf(&sb, "  - %s\n", c)
		}
	}
	return sb.String()
}

// store materializes name's output. Outputs are insert-once.
func (ec *ExecutionContext) store(name string, value interface{}) error {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if _, exists := ec.outputs[name]; exists {
		return fmt.Errorf("output of %s already materialized", name)
	}
	ec.outputs[name] = value
	ec.states[name] = StateSucceeded
	return nil
}

func (ec *ExecutionContext) fail(f *StepFailure) {
	ec.mu.Lock()
	ec.failures[f.Asset] = f
	ec.states[f.Asset] = StateFailed
	ec.mu.Unlock()
	ec.log(slog.LevelError, f.Asset, "asset failed", "attempts", f.Attempts, "error", f.Err)
}

func (ec *ExecutionContext) skip(name, ancestor string) {
	ec.mu.Lock()
	ec.skipped[name] = ancestor
	ec.states[name] = StateSkipped
	ec.mu.Unlock()
	ec.log(slog.LevelWarn, name, "asset skipped", "failed_ancestor", ancestor)
}

func (ec *ExecutionContext) addChecks(results []quality.CheckResult) {
	ec.mu.Lock()
	ec.checks = append(ec.checks, results...)
	ec.mu.Unlock()
	for _, r := range results {
		level := slog.LevelInfo
		if !r.Passed {
			level = slog.LevelWarn
		}
		ec.log(level, r.Subject, "check "+r.Check, "passed", r.Passed, "description", r.Description)
	}
}

// failedAncestor returns the failed asset that prevents name from running, if any.
func (ec *ExecutionContext) failedAncestor(name string) (string, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	for _, up := range ec.graph.nodes[name].Upstream {
		if _, failed := ec.failures[up]; failed {
			return up, true
		}
		if ancestor, skipped := ec.skipped[up]; skipped {
			return ancestor, true
		}
	}
	return "", false
}

// log appends a diagnostic and forwards it to the structured logger.
func (ec *ExecutionContext) log(level slog.Level, asset, msg string, attrs ...any) {
	d := Diagnostic{Time: time.Now(), Level: level, Asset: asset, Message: msg}
	if len(attrs) > 0 {
		var parts []string
		for i := 0; i+1 < len(attrs); i += 2 {
			parts = append(parts, fmt.Sprintf("%v=%v", attrs[i], attrs[i+1]))
		}
		d.Message += " " + strings.Join(parts, " ")
	}
	ec.mu.Lock()
	ec.diagnostics = append(ec.diagnostics, d)
	ec.mu.Unlock()

	if asset != "" {
		attrs = append([]any{"asset", asset}, attrs...)
	}
	ec.logger.Log(context.Background(), level, msg, attrs...)
}
