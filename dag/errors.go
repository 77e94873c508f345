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
	"strings"
)

// GraphStructureError is implemented by errors that make a graph unusable.
// They are raised before any asset executes.
type GraphStructureError interface {
	error
	// Nodes returns the offending asset names.
	Nodes() []string
}

// CycleError reports a dependency cycle. Cycle lists the assets on it, starting
// and ending with the same name (a self-dependency is [a, a]).
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// Nodes returns the distinct assets on the cycle.
func (e *CycleError) Nodes() []string {
	if len(e.Cycle) <= 1 {
		return append([]string(nil), e.Cycle...)
	}
	return append([]string(nil), e.Cycle[:len(e.Cycle)-1]...)
}

// UnknownDependencyError reports an upstream (or check subject) that is not registered.
type UnknownDependencyError struct {
	Asset   string
	Missing string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("asset %s depends on unknown asset %s", e.Asset, e.Missing)
}

func (e *UnknownDependencyError) Nodes() []string { return []string{e.Asset, e.Missing} }

// DuplicateAssetError reports a second registration under the same name.
type DuplicateAssetError struct {
	Asset string
}

func (e *DuplicateAssetError) Error() string {
	return fmt.Sprintf("asset %s registered more than once", e.Asset)
}

func (e *DuplicateAssetError) Nodes() []string { return []string{e.Asset} }

// MissingUpstreamOutputError means the scheduler reached an asset before one of
// its upstreams was materialized. With a valid order this cannot happen; seeing it
// indicates a scheduler bug rather than bad data.
type MissingUpstreamOutputError struct {
	Asset    string
	Upstream string
}

func (e *MissingUpstreamOutputError) Error() string {
	return fmt.Sprintf("scheduler invariant violated: %s started before upstream %s was materialized", e.Asset, e.Upstream)
}

// StepFailure records an asset whose transform (or strict-mode checks) failed.
type StepFailure struct {
	Asset    string
	Err      error
	Attempts int
}

func (e *StepFailure) Error() string {
	return fmt.Sprintf("asset %s failed after %d attempt(s): %v", e.Asset, e.Attempts, e.Err)
}

func (e *StepFailure) Unwrap() error {
	return e.Err
}

// FailedCheckError is the cause of a StepFailure escalated from failed checks in strict mode.
type FailedCheckError struct {
	Asset  string
	Failed []string
}

func (e *FailedCheckError) Error() string {
	return fmt.Sprintf("%d quality check(s) failed for %s: %s", len(e.Failed), e.Asset, strings.Join(e.Failed, "; "))
}
