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
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument names and attribute keys.
const (
	MeterName = "trpc.query.pipeline"

	MetricStageRuns     = "query.stage.runs"
	MetricStageDuration = "query.stage.duration"
	MetricStageVariants = "query.stage.variants"
	MetricStageSkips    = "query.stage.skips"
	MetricStageTokens   = "query.stage.tokens"
	MetricStageCost     = "query.stage.cost"
	KeyStage            = "query.stage"
	KeyStatus           = "query.status"
	KeyReason           = "query.reason"
	KeyTokenType        = "query.token.type"
	KeyDirection        = "query.direction"
	TokenTypeInput      = "input"
	TokenTypeOutput     = "output"
	statusSuccess       = "success"
	statusFailed        = "failed"
	directionInput      = "input"
	directionOutput     = "output"
)

// OTel records pipeline events as OpenTelemetry instruments.
type OTel struct {
	runs     metric.Int64Counter
	duration metric.Float64Histogram
	variants metric.Int64Histogram
	skips    metric.Int64Counter
	tokens   metric.Int64Counter
	cost     metric.Float64Counter
}

// NewOTel creates the instruments on mp, or on the global provider when mp is nil.
func NewOTel(mp metric.MeterProvider) (*OTel, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(MeterName)
	o := &OTel{}
	var err error
	if o.runs, err = meter.Int64Counter(
		MetricStageRuns,
		metric.WithDescription("Number of stage executions by outcome"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create metric %s: %w", MetricStageRuns, err)
	}
	if o.duration, err = meter.Float64Histogram(
		MetricStageDuration,
		metric.WithDescription("Duration of stage executions"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create metric %s: %w", MetricStageDuration, err)
	}
	if o.variants, err = meter.Int64Histogram(
		MetricStageVariants,
		metric.WithDescription("Query variants entering and leaving a stage"),
		metric.WithUnit("{query}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create metric %s: %w", MetricStageVariants, err)
	}
	if o.skips, err = meter.Int64Counter(
		MetricStageSkips,
		metric.WithDescription("Number of skipped stages by reason"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create metric %s: %w", MetricStageSkips, err)
	}
	if o.tokens, err = meter.Int64Counter(
		MetricStageTokens,
		metric.WithDescription("Model tokens consumed by stages"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create metric %s: %w", MetricStageTokens, err)
	}
	if o.cost, err = meter.Float64Counter(
		MetricStageCost,
		metric.WithDescription("Priced cost of stage model calls"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create metric %s: %w", MetricStageCost, err)
	}
	return o, nil
}

// OnStageStart implements Collector.
func (o *OTel) OnStageStart(ctx context.Context, stage string, inputCount int) {
	o.variants.Record(ctx, int64(inputCount), metric.WithAttributes(
		attribute.String(KeyStage, stage),
		attribute.String(KeyDirection, directionInput),
	))
}

// OnStageComplete implements Collector.
func (o *OTel) OnStageComplete(ctx context.Context, stage string, outputCount int, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(KeyStage, stage),
		attribute.String(KeyStatus, statusSuccess),
	)
	o.runs.Add(ctx, 1, attrs)
	o.duration.Record(ctx, elapsed.Seconds(), attrs)
	o.variants.Record(ctx, int64(outputCount), metric.WithAttributes(
		attribute.String(KeyStage, stage),
		attribute.String(KeyDirection, directionOutput),
	))
}

// OnStageFailure implements Collector.
func (o *OTel) OnStageFailure(ctx context.Context, stage string, _ error, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(KeyStage, stage),
		attribute.String(KeyStatus, statusFailed),
	)
	o.runs.Add(ctx, 1, attrs)
	o.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// OnStageSkipped implements Collector.
func (o *OTel) OnStageSkipped(ctx context.Context, stage, reason string) {
	o.skips.Add(ctx, 1, metric.WithAttributes(
		attribute.String(KeyStage, stage),
		attribute.String(KeyReason, reason),
	))
}

// OnTokenUsage implements Collector.
func (o *OTel) OnTokenUsage(ctx context.Context, stage string, in, out int) {
	o.tokens.Add(ctx, int64(in), metric.WithAttributes(
		attribute.String(KeyStage, stage),
		attribute.String(KeyTokenType, TokenTypeInput),
	))
	o.tokens.Add(ctx, int64(out), metric.WithAttributes(
		attribute.String(KeyStage, stage),
		attribute.String(KeyTokenType, TokenTypeOutput),
	))
}

// OnCost implements Collector.
func (o *OTel) OnCost(ctx context.Context, stage string, cost float64) {
	o.cost.Add(ctx, cost, metric.WithAttributes(attribute.String(KeyStage, stage)))
}
