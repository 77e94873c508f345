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

// Package dag models a pipeline as a graph of named assets, resolves a deterministic
// execution order and executes it with failures scoped to the failed subtree.
package dag

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Graph is a validated, immutable set of assets. Obtain one from Registry.Build.
type Graph struct {
	nodes      map[string]*AssetNode
	order      []string // Registration order
	index      map[string]int
	downstream map[string][]string
}

// Len returns the number of assets.
func (g *Graph) Len() int {
	return len(g.order)
}

// Names returns asset names in registration order.
func (g *Graph) Names() []string {
	return append([]string(nil), g.order...)
}

// Node returns a copy of the named asset.
func (g *Graph) Node(name string) (AssetNode, bool) {
	n, ok := g.nodes[name]
	if !ok {
		return AssetNode{}, false
	}
	return *n.clone(), true
}

// HasNode reports whether name is an asset of the graph.
func (g *Graph) HasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Upstream returns the declared dependencies of name.
func (g *Graph) Upstream(name string) []string {
	if n, ok := g.nodes[name]; ok {
		return append([]string(nil), n.Upstream...)
	}
	return nil
}

// Downstream returns the assets that directly depend on name, in registration order.
func (g *Graph) Downstream(name string) []string {
	return append([]string(nil), g.downstream[name]...)
}

// Dependents returns every asset that transitively depends on name, in registration order.
func (g *Graph) Dependents(name string) []string {
	seen := make(map[string]bool)
	queue := g.Downstream(name)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		queue = append(queue, g.downstream[cur]...)
	}

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return g.index[out[i]] < g.index[out[j]] })
	return out
}

// ResolveOrder performs Kahn's algorithm. When several assets are ready at once the
// one registered first goes first, so the order is reproducible across runs.
func (g *Graph) ResolveOrder() []string {
	inDegree := make(map[string]int, len(g.order))
	for _, name := range g.order {
		inDegree[name] = len(g.nodes[name].Upstream)
	}

	var ready []string
	for _, name := range g.order {
		if inDegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	result := make([]string, 0, len(g.order))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return g.index[ready[i]] < g.index[ready[j]] })
		current := ready[0]
		ready = ready[1:]
		result = append(result, current)

		for _, down := range g.downstream[current] {
			// Each upstream edge counts once per declaration.
			for _, up := range g.nodes[down].Upstream {
				if up == current {
					inDegree[down]--
				}
			}
			if inDegree[down] == 0 {
				ready = append(ready, down)
			}
		}
	}
	return result
}

// Levels groups the resolved order into dependency levels. Every asset in level i
// depends only on assets in levels before i, so a level may run concurrently.
func (g *Graph) Levels() [][]string {
	order := g.ResolveOrder()
	level := make(map[string]int, len(order))
	maxLevel := -1
	for _, name := range order {
		l := 0
		for _, up := range g.nodes[name].Upstream {
			if level[up]+1 > l {
				l = level[up] + 1
			}
		}
		level[name] = l
		if l > maxLevel {
			maxLevel = l
		}
	}

	result := make([][]string, maxLevel+1)
	for _, name := range order {
		result[level[name]] = append(result[level[name]], name)
	}
	return result
}

// Print writes a human-readable view of the graph in resolved order.
func (g *Graph) Print(w io.Writer) {
	fmt.Fprintf(w, "Assets: %d\n", len(g.order))
	for i, level := range g.Levels() {
		fmt.Fprintf(w, "Level %d:\n", i)
		for _, name := range level {
			n := g.nodes[name]
			kind := "asset"
			if n.IsCheckOnly() {
				kind = "checks"
			}
			if n.Group != "" {
				fmt.Fprintf(w, "  %s [%s, %s]\n", name, kind, n.Group)
			} else {
				fmt.Fprintf(w, "  %s [%s]\n", name, kind)
			}
			if n.Description != "" {
				fmt.Fprintf(w, "    %s\n", n.Description)
			}
			if len(n.Upstream) > 0 {
				fmt.Fprintf(w, "    ← depends on: %s\n", strings.Join(n.Upstream, ", "))
			}
			if down := g.downstream[name]; len(down) > 0 {
				fmt.Fprintf(w, "    → feeds: %s\n", strings.Join(down, ", "))
			}
			if len(n.Checks) > 0 {
				names := make([]string, len(n.Checks))
				for i, c := range n.Checks {
					names[i] = c.Subject + "/" + c.Name
				}
				fmt.Fprintf(w, "    checks: %s\n", strings.Join(names, ", "))
			}
			if n.Timeout > 0 {
				fmt.Fprintf(w, "    timeout: %v\n", n.Timeout)
			}
			if n.Retry != nil {
				fmt.Fprintf(w, "    retries: %d\n", n.Retry.MaxRetries)
			}
		}
	}
}

// Describe returns Print's output as a string.
func (g *Graph) Describe() string {
	var sb strings.Builder
	g.Print(&sb)
	return sb.String()
}
