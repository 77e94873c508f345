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
	"time"

	"github.com/aaronlmathis/assetflow/quality"
)

// TransformFunc computes an asset's output from its upstream outputs.
// It must be a pure function of in: the same upstream outputs give the same result.
type TransformFunc func(ctx context.Context, in Inputs) (interface{}, error)

// AssetNode is one named step of the graph.
type AssetNode struct {
	Name        string
	Upstream    []string // Declared dependencies; order is the input-binding order
	Transform   TransformFunc
	Group       string // Metadata only
	Description string
	Checks      []quality.Check // Run once the asset (or, for check-only assets, its subject) is materialized
	Retry       *RetryConfig
	Timeout     time.Duration
}

// IsCheckOnly reports whether the asset has no transform and exists to run checks.
func (n *AssetNode) IsCheckOnly() bool {
	return n.Transform == nil
}

func (n *AssetNode) clone() *AssetNode {
	c := *n
	c.Upstream = append([]string(nil), n.Upstream...)
	c.Checks = make([]quality.Check, len(n.Checks))
	for i, chk := range n.Checks {
		c.Checks[i] = chk.On(chk.Subject)
	}
	if n.Retry != nil {
		r := *n.Retry
		c.Retry = &r
	}
	return &c
}

// AssetOption configures an AssetNode at registration.
type AssetOption func(*AssetNode)

// WithGroup sets the asset's group label.
func WithGroup(group string) AssetOption {
	return func(n *AssetNode) { n.Group = group }
}

// WithDescription sets the asset's description.
func WithDescription(description string) AssetOption {
	return func(n *AssetNode) { n.Description = description }
}

// WithChecks attaches quality checks. A check with an empty Subject is bound to the asset itself.
func WithChecks(checks ...quality.Check) AssetOption {
	return func(n *AssetNode) {
		for _, c := range checks {
			if c.Subject == "" {
				c = c.On(n.Name)
			}
			n.Checks = append(n.Checks, c)
		}
	}
}

// WithRetries retries a failed transform up to maxRetries times with the given backoff.
func WithRetries(maxRetries int, strategy BackoffStrategy) AssetOption {
	return func(n *AssetNode) {
		n.Retry = &RetryConfig{MaxRetries: maxRetries, Strategy: strategy}
	}
}

// WithTimeout bounds a single transform attempt.
func WithTimeout(timeout time.Duration) AssetOption {
	return func(n *AssetNode) { n.Timeout = timeout }
}

// NewAsset builds an AssetNode.
func NewAsset(name string, upstream []string, transform TransformFunc, opts ...AssetOption) AssetNode {
	n := AssetNode{
		Name:      name,
		Upstream:  append([]string(nil), upstream...),
		Transform: transform,
	}
	for _, opt := range opts {
		opt(&n)
	}
	return n
}

// NewCheckAsset builds a check-only asset that depends on subject and evaluates
// checks against it. Its output is the table of its CheckResults.
func NewCheckAsset(name, subject string, checks []quality.Check, opts ...AssetOption) AssetNode {
	n := AssetNode{
		Name:     name,
		Upstream: []string{subject},
	}
	for _, c := range checks {
		n.Checks = append(n.Checks, c.On(subject))
	}
	for _, opt := range opts {
		opt(&n)
	}
	return n
}

// NodeState is the execution state of one asset within a run.
type NodeState string

const (
	StatePending   NodeState = "pending"
	StateSucceeded NodeState = "succeeded"
	StateFailed    NodeState = "failed"
	StateSkipped   NodeState = "skipped"
)
