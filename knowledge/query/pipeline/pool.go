//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
)

// BatchRequest is one query of a batch.
type BatchRequest struct {
	Query   string
	Scope   query.Scope
	Options []query.ContextOption
}

// BatchResult is the outcome of one BatchRequest, at the same index.
type BatchResult struct {
	Context *query.Context
	Err     error
}

type executeParam struct {
	idx      int
	ctx      context.Context
	req      *BatchRequest
	cfg      *query.Config
	pipeline *Pipeline
	results  []BatchResult
	wg       *sync.WaitGroup
}

func (p *executeParam) reset() {
	p.idx = 0
	p.ctx = nil
	p.req = nil
	p.cfg = nil
	p.pipeline = nil
	p.results = nil
	p.wg = nil
}

var executeParamPool = &sync.Pool{
	New: func() any { return new(executeParam) },
}

// Pool runs many pipeline invocations concurrently on a bounded number of
// goroutines. Every invocation owns its query context.
type Pool struct {
	pipeline *Pipeline
	pool     *ants.PoolWithFunc
}

// NewPool creates a pool of size workers over p.
func NewPool(p *Pipeline, size int) (*Pool, error) {
	if p == nil {
		return nil, errors.New("pipeline is nil")
	}
	if size <= 0 {
		return nil, errors.New("pool size must be greater than 0")
	}
	pool, err := ants.NewPoolWithFunc(size, func(args any) {
		param, ok := args.(*executeParam)
		if !ok {
			panic("query pipeline pool args type error")
		}
		wg := param.wg
		defer func() {
			wg.Done()
			param.reset()
			executeParamPool.Put(param)
		}()
		qc, err := param.pipeline.Execute(param.ctx, param.req.Query, param.req.Scope, param.cfg, param.req.Options...)
		param.results[param.idx] = BatchResult{Context: qc, Err: err}
	})
	if err != nil {
		return nil, fmt.Errorf("create query pipeline pool: %w", err)
	}
	return &Pool{pipeline: p, pool: pool}, nil
}

// Execute runs one query on the pool and waits for it.
func (p *Pool) Execute(
	ctx context.Context, q string, scope query.Scope, cfg *query.Config, opts ...query.ContextOption,
) (*query.Context, error) {
	r := p.ExecuteBatch(ctx, cfg, []BatchRequest{{Query: q, Scope: scope, Options: opts}})
	return r[0].Context, r[0].Err
}

// ExecuteBatch runs every request under cfg and returns the results in
// request order.
func (p *Pool) ExecuteBatch(ctx context.Context, cfg *query.Config, reqs []BatchRequest) []BatchResult {
	results := make([]BatchResult, len(reqs))
	var wg sync.WaitGroup
	for idx := range reqs {
		wg.Add(1)
		param := executeParamPool.Get().(*executeParam)
		param.idx = idx
		param.ctx = ctx
		param.req = &reqs[idx]
		param.cfg = cfg
		param.pipeline = p.pipeline
		param.results = results
		param.wg = &wg
		if err := p.pool.Invoke(param); err != nil {
			wg.Done()
			results[idx] = BatchResult{Err: fmt.Errorf("submit query %d: %w", idx, err)}
			param.reset()
			executeParamPool.Put(param)
		}
	}
	wg.Wait()
	return results
}

// Running returns the number of busy workers.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Release stops the workers. Batches submitted afterwards fail.
func (p *Pool) Release() {
	p.pool.Release()
}
