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

// dag_builder.go - explicit registry for asset graphs
package dag

import (
	"fmt"
)

// Registry collects AssetNodes and validates them into a Graph.
// Registration order is remembered and used to break ties when resolving execution order.
type Registry struct {
	nodes map[string]*AssetNode
	order []string
}

// NewRegistry creates a registry pre-populated with nodes.
func NewRegistry(nodes ...AssetNode) (*Registry, error) {
	r := &Registry{nodes: make(map[string]*AssetNode)}
	for _, n := range nodes {
		if err := r.Add(n); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an asset built from its parts.
func (r *Registry) Register(name string, upstream []string, transform TransformFunc, opts ...AssetOption) error {
	return r.Add(NewAsset(name, upstream, transform, opts...))
}

// Add adds a pre-built asset. Names must be unique and non-empty.
func (r *Registry) Add(node AssetNode) error {
	if node.Name == "" {
		return fmt.Errorf("asset name must not be empty")
	}
	if _, exists := r.nodes[node.Name]; exists {
		return &DuplicateAssetError{Asset: node.Name}
	}
	if node.Transform == nil && len(node.Checks) == 0 {
		return fmt.Errorf("asset %s has neither a transform nor checks", node.Name)
	}
	r.nodes[node.Name] = node.clone()
	r.order = append(r.order, node.Name)
	return nil
}

// Len returns the number of registered assets.
func (r *Registry) Len() int {
	return len(r.order)
}

// Validate checks that every upstream and check subject resolves and that the graph is acyclic.
// It returns a GraphStructureError on the first problem found.
func (r *Registry) Validate() error {
	for _, name := range r.order {
		node := r.nodes[name]
		for _, up := range node.Upstream {
			if _, ok := r.nodes[up]; !ok {
				return &UnknownDependencyError{Asset: name, Missing: up}
			}
		}
		for _, c := range node.Checks {
			if c.Subject == name && !node.IsCheckOnly() {
				continue
			}
			if !contains(node.Upstream, c.Subject) {
				return &UnknownDependencyError{Asset: name, Missing: c.Subject}
			}
		}
	}

	if cycle := r.findCycle(); cycle != nil {
		return &CycleError{Cycle: cycle}
	}
	return nil
}

// Build validates the registry and returns an immutable Graph.
func (r *Registry) Build() (*Graph, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	g := &Graph{
		nodes:      make(map[string]*AssetNode, len(r.nodes)),
		order:      append([]string(nil), r.order...),
		index:      make(map[string]int, len(r.order)),
		downstream: make(map[string][]string, len(r.order)),
	}
	for i, name := range r.order {
		node := r.nodes[name]
		g.nodes[name] = node.clone()
		g.index[name] = i
		for _, up := range node.Upstream {
			if !contains(g.downstream[up], name) {
				g.downstream[up] = append(g.downstream[up], name)
			}
		}
	}
	return g, nil
}

// findCycle runs a depth-first search over upstream edges in registration order and
// returns the first cycle found as a closed path, or nil.
func (r *Registry) findCycle() []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(r.nodes))
	var stack []string

	var visit func(name string) []string
	visit = func(name string) []string {
		color[name] = grey
		stack = append(stack, name)
		for _, up := range r.nodes[name].Upstream {
			switch color[up] {
			case grey:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == up {
						cycle := append([]string(nil), stack[i:]...)
						return append(cycle, up)
					}
				}
			case white:
				if cycle := visit(up); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		return nil
	}

	for _, name := range r.order {
		if color[name] == white {
			if cycle := visit(name); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
