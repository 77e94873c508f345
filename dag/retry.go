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
	"math/rand/v2"
	"time"
)

// BackoffStrategy computes the wait before retry attempt n (0-based).
type BackoffStrategy interface {
	Delay(attempt int) time.Duration
}

// RetryConfig is the per-asset retry budget. A nil Strategy defers to the
// executor's default backoff.
type RetryConfig struct {
	MaxRetries int
	Strategy   BackoffStrategy
}

// backoff picks the asset strategy over the executor fallback.
func (rc *RetryConfig) backoff(fallback BackoffStrategy) BackoffStrategy {
	if rc != nil && rc.Strategy != nil {
		return rc.Strategy
	}
	if fallback == nil {
		return &NoBackoff{}
	}
	return fallback
}

// capDelay bounds d by limit; a non-positive limit leaves d uncapped.
func capDelay(d, limit time.Duration) time.Duration {
	if limit > 0 && d > limit {
		return limit
	}
	return d
}

// ExponentialBackoff doubles BaseDelay per attempt, capped at MaxDelay.
type ExponentialBackoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func (b *ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	return capDelay(b.BaseDelay<<uint(attempt), b.MaxDelay)
}

// LinearBackoff waits BaseDelay*(attempt+1), capped at MaxDelay.
type LinearBackoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func (b *LinearBackoff) Delay(attempt int) time.Duration {
	return capDelay(b.BaseDelay*time.Duration(attempt+1), b.MaxDelay)
}

// FixedBackoff waits FixedDelay between every attempt.
type FixedBackoff struct {
	FixedDelay time.Duration
}

func (b *FixedBackoff) Delay(int) time.Duration { return b.FixedDelay }

// JitteredBackoff spreads an exponential delay by up to ±Jitter/2 of itself.
// Useful when several runs hit the same flaky source at once.
type JitteredBackoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    float64 // 0.0 to 1.0
}

func (b *JitteredBackoff) Delay(attempt int) time.Duration {
	base := (&ExponentialBackoff{BaseDelay: b.BaseDelay, MaxDelay: b.MaxDelay}).Delay(attempt)
	if b.Jitter <= 0 {
		return base
	}
	spread := float64(base) * b.Jitter * (rand.Float64() - 0.5)
	return base + time.Duration(spread)
}

// NoBackoff retries immediately.
type NoBackoff struct{}

func (*NoBackoff) Delay(int) time.Duration { return 0 }
