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

// dag_executor.go - level-parallel execution of asset graphs
package dag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/aaronlmathis/assetflow/quality"
)

// Executor runs a Graph level by level with a bounded worker pool.
type Executor struct {
	maxWorkers   int
	strict       bool
	logger       *slog.Logger
	retryBackoff BackoffStrategy
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxWorkers sets the maximum number of assets executed concurrently.
// One worker gives strictly sequential execution in resolved order.
func WithMaxWorkers(workers int) ExecutorOption {
	return func(e *Executor) {
		if workers > 0 {
			e.maxWorkers = workers
		}
	}
}

// WithStrictChecks escalates every failed check to a StepFailure of the asset that owns it.
func WithStrictChecks(strict bool) ExecutorOption {
	return func(e *Executor) {
		e.strict = strict
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithBackoffStrategy sets the backoff used by assets that retry without their own strategy.
func WithBackoffStrategy(strategy BackoffStrategy) ExecutorOption {
	return func(e *Executor) {
		e.retryBackoff = strategy
	}
}

// NewExecutor creates an executor with options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		maxWorkers: runtime.NumCPU(),
		logger:     slog.New(slog.DiscardHandler),
		retryBackoff: &ExponentialBackoff{
			BaseDelay: time.Second,
			MaxDelay:  time.Minute,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Strict reports whether failed checks escalate to step failures.
func (e *Executor) Strict() bool {
	return e.strict
}

// Execute runs every asset of g. Data-level failures are recorded in the returned
// ExecutionContext and only prevent the failed asset's dependents from running.
// A non-nil error means the run was aborted: the context was cancelled or a
// scheduler invariant was violated.
func (e *Executor) Execute(ctx context.Context, g *Graph) (*ExecutionContext, error) {
	ec := newExecutionContext(g, e.logger)
	defer func() { ec.EndTime = time.Now() }()

	levels := g.Levels()
	ec.log(slog.LevelInfo, "", "run started", "assets", g.Len(), "levels", len(levels), "workers", e.maxWorkers)

	for levelIdx, level := range levels {
		select {
		case <-ctx.Done():
			return ec, ctx.Err()
		default:
		}

		runnable := make([]string, 0, len(level))
		for _, name := range level {
			if ancestor, blocked := ec.failedAncestor(name); blocked {
				ec.skip(name, ancestor)
				continue
			}
			runnable = append(runnable, name)
		}

		if err := e.executeLevel(ctx, ec, runnable); err != nil {
			ec.log(slog.LevelError, "", "run aborted", "error", err)
			return ec, err
		}
		ec.log(slog.LevelDebug, "", fmt.Sprintf("completed level %d", levelIdx), "assets", len(runnable))
	}

	ec.log(slog.LevelInfo, "", "run finished",
		"failures", len(ec.Failures()), "skipped", len(ec.Skipped()), "failed_checks", len(ec.FailedChecks()))
	return ec, nil
}

// executeLevel runs all assets of a level concurrently and returns the first invariant violation.
func (e *Executor) executeLevel(ctx context.Context, ec *ExecutionContext, names []string) error {
	if len(names) == 0 {
		return nil
	}

	workers := e.maxWorkers
	if len(names) < workers {
		workers = len(names)
	}

	nameChan := make(chan string, len(names))
	errChan := make(chan error, len(names))
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range nameChan {
				if err := e.executeAsset(ctx, ec, ec.graph.nodes[name]); err != nil {
					errChan <- err
				}
			}
		}()
	}

	for _, name := range names {
		nameChan <- name
	}
	close(nameChan)

	wg.Wait()
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// executeAsset materializes one asset. Data-level problems are recorded as a StepFailure;
// only invariant violations are returned.
func (e *Executor) executeAsset(ctx context.Context, ec *ExecutionContext, node *AssetNode) error {
	values := make(map[string]interface{}, len(node.Upstream)+1)
	for _, up := range node.Upstream {
		v, ok := ec.Output(up)
		if !ok {
			err := &MissingUpstreamOutputError{Asset: node.Name, Upstream: up}
			ec.fail(&StepFailure{Asset: node.Name, Err: err})
			return err
		}
		values[up] = v
	}

	logger := ec.logger.With("asset", node.Name)
	ec.log(slog.LevelInfo, node.Name, "asset started")
	start := time.Now()

	var (
		output   interface{}
		attempts int
	)
	if node.IsCheckOnly() {
		attempts = 1
	} else {
		var err error
		in := NewInputs(node.Name, values, logger, node.Upstream...)
		output, attempts, err = e.runWithRetry(ctx, ec, node, in)
		if err != nil {
			ec.fail(&StepFailure{Asset: node.Name, Err: err, Attempts: attempts})
			return nil
		}
		values[node.Name] = output
	}

	if len(node.Checks) > 0 {
		results, err := runChecks(node.Checks, values)
		ec.addChecks(results)
		if err != nil {
			ec.fail(&StepFailure{Asset: node.Name, Err: err, Attempts: attempts})
			return nil
		}
		if failed := quality.Failed(results); e.strict && len(failed) > 0 {
			descs := make([]string, len(failed))
			for i, r := range failed {
				descs[i] = r.Check + ": " + r.Description
			}
			ec.fail(&StepFailure{
				Asset:    node.Name,
				Err:      &FailedCheckError{Asset: node.Name, Failed: descs},
				Attempts: attempts,
			})
			return nil
		}
		if node.IsCheckOnly() {
			output = quality.ResultsTable(results)
		}
	}

	if err := ec.store(node.Name, output); err != nil {
		return err
	}
	ec.log(slog.LevelInfo, node.Name, "asset materialized", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// runWithRetry invokes the transform, retrying with backoff when the asset allows it.
func (e *Executor) runWithRetry(ctx context.Context, ec *ExecutionContext, node *AssetNode, in Inputs) (interface{}, int, error) {
	maxRetries := 0
	if node.Retry != nil {
		maxRetries = node.Retry.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		output, err := e.attempt(ctx, node, in)
		if err == nil {
			return output, attempt + 1, nil
		}
		lastErr = err

		if attempt == maxRetries {
			break
		}
		delay := node.Retry.backoff(e.retryBackoff).Delay(attempt)
		ec.log(slog.LevelWarn, node.Name, "attempt failed, retrying",
			"attempt", attempt+1, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, attempt + 1, ctx.Err()
		}
	}
	return nil, maxRetries + 1, lastErr
}

// attempt runs a single transform call, bounded by the asset timeout. Panics become errors.
func (e *Executor) attempt(ctx context.Context, node *AssetNode, in Inputs) (interface{}, error) {
	if node.Timeout <= 0 {
		return safeCall(ctx, node.Transform, in)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, node.Timeout)
	defer cancel()

	type result struct {
		output interface{}
		err    error
	}
	done := make(chan result, 1)
	go func() {
		output, err := safeCall(attemptCtx, node.Transform, in)
		done <- result{output, err}
	}()

	select {
	case r := <-done:
		return r.output, r.err
	case <-attemptCtx.Done():
		return nil, fmt.Errorf("timed out after %v: %w", node.Timeout, attemptCtx.Err())
	}
}

func safeCall(ctx context.Context, fn TransformFunc, in Inputs) (output interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, in)
}

// runChecks evaluates checks in declaration order against their subjects' outputs.
func runChecks(checks []quality.Check, values map[string]interface{}) ([]quality.CheckResult, error) {
	var all []quality.CheckResult
	for _, c := range checks {
		results, err := quality.NewEngine(c).Run(c.Subject, values[c.Subject])
		all = append(all, results...)
		if err != nil {
			return all, err
		}
	}
	return all, nil
}
