//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package metric

import (
	"context"
	"time"

	"trpc.group/trpc-go/trpc-query-go/log"
)

// Log writes pipeline events to the package logger. Successes and skips are
// logged at debug level, failures at warn.
type Log struct{}

// OnStageStart implements Collector.
func (Log) OnStageStart(ctx context.Context, stage string, inputCount int) {
	log.DebugfContext(ctx, "query stage %s started with %d queries", stage, inputCount)
}

// OnStageComplete implements Collector.
func (Log) OnStageComplete(ctx context.Context, stage string, outputCount int, elapsed time.Duration) {
	log.DebugfContext(ctx, "query stage %s completed with %d queries in %s", stage, outputCount, elapsed)
}

// OnStageFailure implements Collector.
func (Log) OnStageFailure(ctx context.Context, stage string, err error, elapsed time.Duration) {
	log.WarnfContext(ctx, "query stage %s failed after %s: %v", stage, elapsed, err)
}

// OnStageSkipped implements Collector.
func (Log) OnStageSkipped(ctx context.Context, stage, reason string) {
	log.DebugfContext(ctx, "query stage %s skipped: %s", stage, reason)
}

// OnTokenUsage implements Collector.
func (Log) OnTokenUsage(ctx context.Context, stage string, in, out int) {
	log.DebugfContext(ctx, "query stage %s used %d input and %d output tokens", stage, in, out)
}

// OnCost implements Collector.
func (Log) OnCost(ctx context.Context, stage string, cost float64) {
	log.DebugfContext(ctx, "query stage %s cost %.6f", stage, cost)
}
