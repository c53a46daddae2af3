//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

// Package pipeline runs the query transformation stages in their fixed
// order and resolves stage failures with the configured fallback policy.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"trpc.group/trpc-go/trpc-query-go/knowledge/embedder"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/metric"
	"trpc.group/trpc-go/trpc-query-go/log"
)

// Tracing names.
const (
	InstrumentName = "trpc.query.pipeline"

	SpanNameExecute     = "transform_query"
	SpanNamePrefixStage = "run_stage"

	KeyRequestID = "trpc.query.request_id"
	KeyTenant    = "trpc.query.tenant"
	KeyChannel   = "trpc.query.channel"
	KeyStage     = "trpc.query.stage"
	KeyStatus    = "trpc.query.stage.status"
	KeyVariants  = "trpc.query.variants"
)

// Vector cache of the embedding dedup similarity, per embedding model.
const (
	dedupVectorCacheSize = 4096
	dedupVectorTTL       = 10 * time.Minute
)

// Pipeline executes the stages. It holds no per request state and is safe
// for concurrent use.
type Pipeline struct {
	stages     []query.Stage
	collector  metric.Collector
	tracer     trace.Tracer
	similarity query.Similarity
	embedders  embedder.Provider

	mu        sync.Mutex
	embedSims map[string]*query.EmbeddingSimilarity
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCollector sets the metrics collector. Wrap slow collectors with
// metric.NewAsync so the pipeline never waits on them.
func WithCollector(c metric.Collector) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.collector = c
		}
	}
}

// WithTracerProvider sets the provider of the pipeline tracer.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pipeline) {
		if tp != nil {
			p.tracer = tp.Tracer(InstrumentName)
		}
	}
}

// WithSimilarity sets the dedup similarity of every run, for example a
// query.NewEmbeddingSimilarity. It takes precedence over the
// dedupEmbeddingModelId of the config.
func WithSimilarity(s query.Similarity) Option {
	return func(p *Pipeline) {
		p.similarity = s
	}
}

// WithStages replaces the registered stages. The stages still run in the
// given order and are switched on by their names in the config.
func WithStages(stages ...query.Stage) Option {
	return func(p *Pipeline) {
		p.stages = stages
	}
}

// New builds a pipeline over the registered stages.
func New(deps Deps, opts ...Option) *Pipeline {
	p := &Pipeline{
		stages:    BuildStages(deps),
		collector: metric.Noop{},
		tracer:    otel.Tracer(InstrumentName),
		embedders: deps.Embedders,
		embedSims: make(map[string]*query.EmbeddingSimilarity),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		names = append(names, s.Name())
	}
	return names
}

// Execute transforms original into retrieval variants.
//
// Only a blank query is reported as an error. A nil or invalid cfg yields a
// context holding the original query alone, and stage failures are
// resolved by cfg.FallbackPolicy and recorded as diagnostics. Any other
// unexpected failure, such as a panicking collector, also yields the
// original query alone.
func (p *Pipeline) Execute(
	ctx context.Context, original string, scope query.Scope, cfg *query.Config, opts ...query.ContextOption,
) (qc *query.Context, err error) {
	if strings.TrimSpace(original) == "" {
		return nil, query.ErrEmptyQuery
	}
	ctx, span := p.tracer.Start(ctx, SpanNameExecute, trace.WithAttributes(
		attribute.String(KeyTenant, scope.Tenant),
		attribute.String(KeyChannel, scope.Channel),
	))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			perr := fmt.Errorf("%w: %v", query.ErrPipelinePanic, r)
			span.RecordError(perr)
			span.SetStatus(codes.Error, perr.Error())
			log.ErrorfContext(ctx, "query transformation failed, returning the original query: %v", perr)
			qc, err = query.NewContext(original, scope, opts...), nil
		}
	}()

	if err := cfg.Validate(); err != nil {
		qc := query.NewContext(original, scope, opts...)
		span.SetAttributes(attribute.String(KeyRequestID, qc.RequestID))
		span.SetStatus(codes.Error, err.Error())
		log.WarnfContext(ctx, "query %s: invalid pipeline config, returning the original query: %v",
			qc.RequestID, err)
		p.skipAll(ctx, qc, p.stages, query.ReasonInvalidConfig)
		return qc, nil
	}

	qc = query.NewContext(original, scope, p.contextOptions(ctx, cfg, opts)...)
	span.SetAttributes(attribute.String(KeyRequestID, qc.RequestID))
	for i, s := range p.stages {
		if err := ctx.Err(); err != nil {
			log.InfofContext(ctx, "query %s: canceled before stage %s: %v", qc.RequestID, s.Name(), err)
			p.skipAll(ctx, qc, p.stages[i:], query.ReasonCanceled)
			break
		}
		if !cfg.Enabled(s.Name()) {
			p.skip(ctx, qc, s.Name(), query.ReasonDisabled)
			continue
		}
		if !p.run(ctx, qc, s, cfg) {
			p.skipAll(ctx, qc, p.stages[i+1:], query.ReasonAborted)
			break
		}
	}
	finish(qc, cfg)
	span.SetAttributes(attribute.Int(KeyVariants, qc.Len()))
	return qc, nil
}

func (p *Pipeline) contextOptions(
	ctx context.Context, cfg *query.Config, opts []query.ContextOption,
) []query.ContextOption {
	out := make([]query.ContextOption, 0, len(opts)+2)
	out = append(out, query.WithDedupThreshold(cfg.DedupThreshold))
	if sim := p.dedupSimilarity(ctx, cfg); sim != nil {
		out = append(out, query.WithSimilarity(ctx, sim))
	}
	return append(out, opts...)
}

// dedupSimilarity returns the similarity the run dedups with, or nil for
// the lexical default. Embedding similarities are kept per model id so
// their vector caches outlive a run.
func (p *Pipeline) dedupSimilarity(ctx context.Context, cfg *query.Config) query.Similarity {
	if p.similarity != nil {
		return p.similarity
	}
	id := cfg.DedupEmbeddingModelID
	if id == "" || p.embedders == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if sim, ok := p.embedSims[id]; ok {
		return sim
	}
	e, err := p.embedders.Embedder(id)
	if err != nil {
		log.WarnfContext(ctx, "dedup embedder %s unavailable, using lexical similarity: %v", id, err)
		return nil
	}
	sim := query.NewEmbeddingSimilarity(e, dedupVectorCacheSize, dedupVectorTTL)
	p.embedSims[id] = sim
	return sim
}

// finish dedups and caps the variants and puts the original back in front
// when keepOriginal is set.
func finish(qc *query.Context, cfg *query.Config) {
	qc.Dedup(cfg.DedupThreshold)
	qc.Cap(cfg.MaxQueries)
	if cfg.KeepOriginal && qc.EnsureOriginal() {
		qc.Dedup(cfg.DedupThreshold)
		qc.Cap(cfg.MaxQueries)
	}
}

// run executes one enabled stage and reports whether the pipeline continues.
// A panic anywhere in the stage, including its applicability check and the
// commit of its delta, is a stage failure.
func (p *Pipeline) run(ctx context.Context, qc *query.Context, s query.Stage, cfg *query.Config) (proceed bool) {
	name := s.Name()
	ctx, span := p.tracer.Start(ctx, SpanNamePrefixStage+" "+name, trace.WithAttributes(
		attribute.String(KeyRequestID, qc.RequestID),
		attribute.String(KeyStage, name),
	))
	defer span.End()

	input := qc.Len()
	start := time.Now()
	before := qc.Clone()
	defer func() {
		if r := recover(); r != nil {
			// Whatever the stage committed before panicking is discarded.
			*qc = *before
			err := &query.StageError{Stage: name, Err: fmt.Errorf("%w: %v", query.ErrStagePanic, r)}
			proceed = p.fail(ctx, span, qc, name, input, err, time.Since(start), cfg)
		}
	}()

	if !s.IsApplicable(qc, cfg) {
		span.SetAttributes(attribute.String(KeyStatus, string(query.StatusSkipped)))
		p.skip(ctx, qc, name, query.ReasonNotApplicable)
		return true
	}

	p.collector.OnStageStart(ctx, name, input)
	// Each stage validates only its own configuration.
	var (
		delta *query.Delta
		err   error
	)
	if sc := cfg.StageConfig(name); sc != nil {
		if verr := sc.Validate(); verr != nil {
			err = &query.StageError{Stage: name, Err: verr}
		}
	}
	if err == nil {
		delta, err = p.transform(ctx, s, qc, cfg)
	}
	elapsed := time.Since(start)
	if err != nil {
		return p.fail(ctx, span, qc, name, input, err, elapsed, cfg)
	}

	qc.Apply(delta)
	qc.Dedup(cfg.DedupThreshold)
	qc.Cap(cfg.MaxQueries)
	d := query.Diagnostic{
		Stage:       name,
		Status:      query.StatusSuccess,
		InputCount:  input,
		OutputCount: qc.Len(),
		Elapsed:     elapsed,
	}
	if u := delta.Usage; u != nil {
		d.InputTokens, d.OutputTokens = u.InputTokens, u.OutputTokens
		p.collector.OnTokenUsage(ctx, name, u.InputTokens, u.OutputTokens)
		if price, ok := cfg.Pricing[u.ModelID]; ok {
			p.collector.OnCost(ctx, name, price.Cost(u.InputTokens, u.OutputTokens))
		}
	}
	qc.RecordDiagnostic(d)
	p.collector.OnStageComplete(ctx, name, qc.Len(), elapsed)
	span.SetAttributes(
		attribute.String(KeyStatus, string(query.StatusSuccess)),
		attribute.Int(KeyVariants, qc.Len()),
	)
	log.DebugfContext(ctx, "query %s: stage %s done in %s, %d -> %d variants",
		qc.RequestID, name, elapsed, input, qc.Len())
	return true
}

type stageResult struct {
	delta *query.Delta
	err   error
}

// transform runs the stage on a clone of qc under the stage deadline. A
// stage that overruns is abandoned and its late result dropped.
func (p *Pipeline) transform(
	ctx context.Context, s query.Stage, qc *query.Context, cfg *query.Config,
) (*query.Delta, error) {
	name := s.Name()
	runCtx := ctx
	if cfg.StageTimeoutMs > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.StageTimeoutMs)*time.Millisecond)
		defer cancel()
	}

	snapshot := qc.Clone()
	ch := make(chan stageResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- stageResult{err: fmt.Errorf("%w: %v", query.ErrStagePanic, r)}
			}
		}()
		delta, err := s.Transform(runCtx, snapshot, cfg)
		ch <- stageResult{delta: delta, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, &query.StageError{Stage: name, Err: r.err}
		}
		if r.delta == nil {
			return &query.Delta{}, nil
		}
		return r.delta, nil
	case <-runCtx.Done():
		if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, &query.StageError{
				Stage: name,
				Err:   fmt.Errorf("%w after %dms", query.ErrStageTimeout, cfg.StageTimeoutMs),
			}
		}
		return nil, &query.StageError{Stage: name, Err: ctx.Err()}
	}
}

// fail records a failed stage and applies the fallback policy. It reports
// whether the pipeline continues.
func (p *Pipeline) fail(
	ctx context.Context, span trace.Span, qc *query.Context,
	name string, input int, err error, elapsed time.Duration, cfg *query.Config,
) bool {
	policy := cfg.FallbackPolicy
	if policy == "" {
		policy = query.FallbackSkipStage
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String(KeyStatus, string(query.StatusFailed)))
	log.WarnfContext(ctx, "query %s: stage %s failed, fallback %s: %v", qc.RequestID, name, policy, err)

	proceed := true
	// A canceled request stops at the next stage boundary whatever the policy.
	if ctx.Err() == nil {
		switch policy {
		case query.FallbackAbort:
			proceed = false
		case query.FallbackResetToOriginal:
			qc.Reset()
		}
	}
	qc.RecordDiagnostic(query.Diagnostic{
		Stage:       name,
		Status:      query.StatusFailed,
		InputCount:  input,
		OutputCount: qc.Len(),
		Elapsed:     elapsed,
		Error:       err.Error(),
	})
	p.collector.OnStageFailure(ctx, name, err, elapsed)
	return proceed
}

func (p *Pipeline) skip(ctx context.Context, qc *query.Context, name, reason string) {
	qc.RecordDiagnostic(query.Diagnostic{
		Stage:       name,
		Status:      query.StatusSkipped,
		InputCount:  qc.Len(),
		OutputCount: qc.Len(),
		Reason:      reason,
	})
	p.collector.OnStageSkipped(ctx, name, reason)
}

func (p *Pipeline) skipAll(ctx context.Context, qc *query.Context, stages []query.Stage, reason string) {
	for _, s := range stages {
		p.skip(ctx, qc, s.Name(), reason)
	}
}
