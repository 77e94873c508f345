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
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/assetflow/quality"
)

func noop(ctx context.Context, in Inputs) (interface{}, error) {
	return nil, nil
}

func mustBuild(t *testing.T, nodes ...AssetNode) *Graph {
	t.Helper()
	r, err := NewRegistry(nodes...)
	require.NoError(t, err)
	g, err := r.Build()
	require.NoError(t, err)
	return g
}

func positions(order []string) map[string]int {
	pos := make(map[string]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	return pos
}

// TestRegistry_DuplicateName tests that a name can only be registered once
func TestRegistry_DuplicateName(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	require.NoError(t, r.Register("a", nil, noop))

	err = r.Register("a", nil, noop)
	var dup *DuplicateAssetError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "a", dup.Asset)
	assert.Equal(t, 1, r.Len())
}

// TestRegistry_UnknownDependency tests that a missing upstream is named
func TestRegistry_UnknownDependency(t *testing.T) {
	r, err := NewRegistry(
		NewAsset("a", nil, noop),
		NewAsset("b", []string{"a", "ghost"}, noop),
	)
	require.NoError(t, err)

	err = r.Validate()
	var unknown *UnknownDependencyError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "b", unknown.Asset)
	assert.Equal(t, "ghost", unknown.Missing)

	var structural GraphStructureError
	require.ErrorAs(t, err, &structural)
	assert.Contains(t, structural.Nodes(), "ghost")
}

// TestRegistry_CheckSubjectMustBeUpstream tests check subject binding
func TestRegistry_CheckSubjectMustBeUpstream(t *testing.T) {
	r, err := NewRegistry(
		NewAsset("a", nil, noop),
		NewAsset("b", nil, noop, WithChecks(quality.MinRows(1).On("a"))),
	)
	require.NoError(t, err)

	var unknown *UnknownDependencyError
	require.ErrorAs(t, r.Validate(), &unknown)
	assert.Equal(t, "a", unknown.Missing)
}

// TestRegistry_Cycles tests self and mutual cycles
func TestRegistry_Cycles(t *testing.T) {
	tests := []struct {
		name  string
		nodes []AssetNode
		on    []string
	}{
		{
			name:  "self reference",
			nodes: []AssetNode{NewAsset("a", []string{"a"}, noop)},
			on:    []string{"a"},
		},
		{
			name: "mutual reference",
			nodes: []AssetNode{
				NewAsset("a", []string{"b"}, noop),
				NewAsset("b", []string{"a"}, noop),
			},
			on: []string{"a", "b"},
		},
		{
			name: "cycle behind an acyclic prefix",
			nodes: []AssetNode{
				NewAsset("root", nil, noop),
				NewAsset("x", []string{"root", "z"}, noop),
				NewAsset("y", []string{"x"}, noop),
				NewAsset("z", []string{"y"}, noop),
			},
			on: []string{"x", "y", "z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRegistry(tt.nodes...)
			require.NoError(t, err)

			_, err = r.Build()
			var cycle *CycleError
			require.ErrorAs(t, err, &cycle)
			assert.ElementsMatch(t, tt.on, cycle.Nodes())
			assert.Equal(t, cycle.Cycle[0], cycle.Cycle[len(cycle.Cycle)-1])
			assert.NotContains(t, cycle.Nodes(), "root")
		})
	}
}

// TestRegistry_OrderIrrelevantForValidation tests registering downstream before upstream
func TestRegistry_OrderIrrelevantForValidation(t *testing.T) {
	g := mustBuild(t,
		NewAsset("c", []string{"b"}, noop),
		NewAsset("b", []string{"a"}, noop),
		NewAsset("a", nil, noop),
	)
	assert.Equal(t, []string{"a", "b", "c"}, g.ResolveOrder())
	assert.Equal(t, []string{"c", "b", "a"}, g.Names())
}

// TestGraph_ResolveOrderTieBreak tests registration order deciding between ready assets
func TestGraph_ResolveOrderTieBreak(t *testing.T) {
	g := mustBuild(t,
		NewAsset("ingest", nil, noop),
		NewAsset("profile", []string{"ingest"}, noop),
		NewCheckAsset("input_checks", "ingest", []quality.Check{quality.MinRows(1)}),
		NewAsset("clean", []string{"ingest"}, noop),
		NewAsset("incidence", []string{"clean"}, noop),
		NewAsset("growth", []string{"clean"}, noop),
		NewAsset("export", []string{"clean", "incidence", "growth", "profile"}, noop),
	)

	want := []string{"ingest", "profile", "input_checks", "clean", "incidence", "growth", "export"}
	for i := 0; i < 5; i++ {
		assert.Equal(t, want, g.ResolveOrder())
	}

	assert.Equal(t, [][]string{
		{"ingest"},
		{"profile", "input_checks", "clean"},
		{"incidence", "growth"},
		{"export"},
	}, g.Levels())
}

// TestGraph_ResolveOrderIsTopological tests the permutation property on random DAGs
func TestGraph_ResolveOrderIsTopological(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		n := 2 + rng.Intn(20)
		nodes := make([]AssetNode, n)
		for i := 0; i < n; i++ {
			var ups []string
			for j := 0; j < i; j++ {
				if rng.Float64() < 0.3 {
					ups = append(ups, fmt.Sprintf("n%d", j))
				}
			}
			nodes[i] = NewAsset(fmt.Sprintf("n%d", i), ups, noop)
		}
		rng.Shuffle(n, func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })

		g := mustBuild(t, nodes...)
		order := g.ResolveOrder()
		require.Len(t, order, n)
		assert.ElementsMatch(t, g.Names(), order)

		pos := positions(order)
		for _, name := range order {
			for _, up := range g.Upstream(name) {
				assert.Less(t, pos[up], pos[name], "%s must come after %s", name, up)
			}
		}
	}
}

// TestGraph_Dependents tests transitive dependents
func TestGraph_Dependents(t *testing.T) {
	g := mustBuild(t,
		NewAsset("a", nil, noop),
		NewAsset("b", []string{"a"}, noop),
		NewAsset("c", []string{"b"}, noop),
		NewAsset("d", nil, noop),
		NewAsset("e", []string{"c", "d"}, noop),
	)

	assert.Equal(t, []string{"b", "c", "e"}, g.Dependents("a"))
	assert.Equal(t, []string{"e"}, g.Dependents("d"))
	assert.Empty(t, g.Dependents("e"))
	assert.Equal(t, []string{"b"}, g.Downstream("a"))
}

// TestGraph_Immutable tests that mutating a registered node does not leak into the graph
func TestGraph_Immutable(t *testing.T) {
	ups := []string{"a"}
	r, err := NewRegistry(NewAsset("a", nil, noop))
	require.NoError(t, err)
	require.NoError(t, r.Register("b", ups, noop))
	g, err := r.Build()
	require.NoError(t, err)

	ups[0] = "changed"
	node, ok := g.Node("b")
	require.True(t, ok)
	node.Upstream[0] = "mutated"

	assert.Equal(t, []string{"a"}, g.Upstream("b"))
}

// TestGraph_Describe tests the printed structure
func TestGraph_Describe(t *testing.T) {
	g := mustBuild(t,
		NewAsset("a", nil, noop, WithGroup("ingestion"), WithDescription("raw data")),
		NewAsset("b", []string{"a"}, noop),
	)

	out := g.Describe()
	assert.Contains(t, out, "Assets: 2")
	assert.Contains(t, out, "a [asset, ingestion]")
	assert.Contains(t, out, "raw data")
	assert.Contains(t, out, "← depends on: a")
}

// TestErrors_Messages tests that graph errors name the offending nodes
func TestErrors_Messages(t *testing.T) {
	assert.EqualError(t, &CycleError{Cycle: []string{"a", "b", "a"}}, "dependency cycle detected: a -> b -> a")
	assert.Contains(t, (&UnknownDependencyError{Asset: "b", Missing: "x"}).Error(), "unknown asset x")

	cause := errors.New("boom")
	f := &StepFailure{Asset: "clean", Err: cause, Attempts: 2}
	assert.ErrorIs(t, f, cause)
	assert.Contains(t, f.Error(), "clean")
}
