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

	"github.com/prometheus/client_golang/prometheus"
)

const (
	promNamespace = "query"
	promSubsystem = "stage"
)

// Prometheus records pipeline events as Prometheus metrics.
type Prometheus struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	skips    *prometheus.CounterVec
	tokens   *prometheus.CounterVec
	cost     *prometheus.CounterVec
}

// NewPrometheus creates the metrics and registers them on reg. A nil reg
// leaves them unregistered.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		// Labels: stage, status (success, failed)
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: promSubsystem,
			Name:      "runs_total",
			Help:      "Total stage executions by outcome",
		}, []string{"stage", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: promNamespace,
			Subsystem: promSubsystem,
			Name:      "duration_seconds",
			Help:      "Stage execution latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"stage", "status"}),
		// Labels: stage, reason (disabled, not_applicable, canceled, aborted, invalid_config)
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: promSubsystem,
			Name:      "skips_total",
			Help:      "Total skipped stages by reason",
		}, []string{"stage", "reason"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: promSubsystem,
			Name:      "tokens_total",
			Help:      "Model tokens consumed by stages",
		}, []string{"stage", "type"}),
		cost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: promSubsystem,
			Name:      "cost_total",
			Help:      "Priced cost of stage model calls",
		}, []string{"stage"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{p.runs, p.duration, p.skips, p.tokens, p.cost} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

// OnStageStart implements Collector.
func (p *Prometheus) OnStageStart(context.Context, string, int) {}

// OnStageComplete implements Collector.
func (p *Prometheus) OnStageComplete(_ context.Context, stage string, _ int, elapsed time.Duration) {
	p.runs.WithLabelValues(stage, statusSuccess).Inc()
	p.duration.WithLabelValues(stage, statusSuccess).Observe(elapsed.Seconds())
}

// OnStageFailure implements Collector.
func (p *Prometheus) OnStageFailure(_ context.Context, stage string, _ error, elapsed time.Duration) {
	p.runs.WithLabelValues(stage, statusFailed).Inc()
	p.duration.WithLabelValues(stage, statusFailed).Observe(elapsed.Seconds())
}

// OnStageSkipped implements Collector.
func (p *Prometheus) OnStageSkipped(_ context.Context, stage, reason string) {
	p.skips.WithLabelValues(stage, reason).Inc()
}

// OnTokenUsage implements Collector.
func (p *Prometheus) OnTokenUsage(_ context.Context, stage string, in, out int) {
	p.tokens.WithLabelValues(stage, TokenTypeInput).Add(float64(in))
	p.tokens.WithLabelValues(stage, TokenTypeOutput).Add(float64(out))
}

// OnCost implements Collector.
func (p *Prometheus) OnCost(_ context.Context, stage string, cost float64) {
	if cost > 0 {
		p.cost.WithLabelValues(stage).Add(cost)
	}
}
