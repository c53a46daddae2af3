//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

// Package metric defines the instrumentation port of the query pipeline and
// its collectors.
package metric

import (
	"context"
	"time"
)

// Collector receives stage level events from the pipeline. Implementations
// must be safe for concurrent use and must not block the caller; wrap slow
// sinks with NewAsync.
type Collector interface {
	// OnStageStart is called before a stage runs with the current variant count.
	OnStageStart(ctx context.Context, stage string, inputCount int)
	// OnStageComplete is called after a stage result was committed.
	OnStageComplete(ctx context.Context, stage string, outputCount int, elapsed time.Duration)
	// OnStageFailure is called when a stage returned an error, panicked or timed out.
	OnStageFailure(ctx context.Context, stage string, err error, elapsed time.Duration)
	// OnStageSkipped is called for a stage that did not run.
	OnStageSkipped(ctx context.Context, stage, reason string)
	// OnTokenUsage reports model tokens consumed by a stage.
	OnTokenUsage(ctx context.Context, stage string, in, out int)
	// OnCost reports the priced cost of a stage's model calls.
	OnCost(ctx context.Context, stage string, cost float64)
}

// Noop discards every event.
type Noop struct{}

// OnStageStart implements Collector.
func (Noop) OnStageStart(context.Context, string, int) {}

// OnStageComplete implements Collector.
func (Noop) OnStageComplete(context.Context, string, int, time.Duration) {}

// OnStageFailure implements Collector.
func (Noop) OnStageFailure(context.Context, string, error, time.Duration) {}

// OnStageSkipped implements Collector.
func (Noop) OnStageSkipped(context.Context, string, string) {}

// OnTokenUsage implements Collector.
func (Noop) OnTokenUsage(context.Context, string, int, int) {}

// OnCost implements Collector.
func (Noop) OnCost(context.Context, string, float64) {}

// Multi fans every event out to several collectors in order.
type Multi []Collector

// NewMulti returns a collector forwarding to every non nil collector.
func NewMulti(collectors ...Collector) Multi {
	m := make(Multi, 0, len(collectors))
	for _, c := range collectors {
		if c != nil {
			m = append(m, c)
		}
	}
	return m
}

// OnStageStart implements Collector.
func (m Multi) OnStageStart(ctx context.Context, stage string, inputCount int) {
	for _, c := range m {
		c.OnStageStart(ctx, stage, inputCount)
	}
}

// OnStageComplete implements Collector.
func (m Multi) OnStageComplete(ctx context.Context, stage string, outputCount int, elapsed time.Duration) {
	for _, c := range m {
		c.OnStageComplete(ctx, stage, outputCount, elapsed)
	}
}

// OnStageFailure implements Collector.
func (m Multi) OnStageFailure(ctx context.Context, stage string, err error, elapsed time.Duration) {
	for _, c := range m {
		c.OnStageFailure(ctx, stage, err, elapsed)
	}
}

// OnStageSkipped implements Collector.
func (m Multi) OnStageSkipped(ctx context.Context, stage, reason string) {
	for _, c := range m {
		c.OnStageSkipped(ctx, stage, reason)
	}
}

// OnTokenUsage implements Collector.
func (m Multi) OnTokenUsage(ctx context.Context, stage string, in, out int) {
	for _, c := range m {
		c.OnTokenUsage(ctx, stage, in, out)
	}
}

// OnCost implements Collector.
func (m Multi) OnCost(ctx context.Context, stage string, cost float64) {
	for _, c := range m {
		c.OnCost(ctx, stage, cost)
	}
}
