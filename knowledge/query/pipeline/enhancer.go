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

	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
)

// Enhancer adapts a pipeline to query.Enhancer so knowledge search can use
// the transformed variants.
type Enhancer struct {
	pipeline *Pipeline
	cfg      *query.Config
	scope    query.Scope
}

// NewEnhancer returns an enhancer that runs p with cfg in scope.
func NewEnhancer(p *Pipeline, cfg *query.Config, scope query.Scope) *Enhancer {
	return &Enhancer{pipeline: p, cfg: cfg, scope: scope}
}

// EnhanceQuery implements query.Enhancer.
func (e *Enhancer) EnhanceQuery(ctx context.Context, q string) (*query.Enhanced, error) {
	qc, err := e.pipeline.Execute(ctx, q, e.scope, e.cfg)
	if err != nil {
		return nil, err
	}
	variants := qc.Queries()
	return &query.Enhanced{
		Original:       q,
		Enhanced:       variants[0],
		Keywords:       variants,
		Blocked:        qc.RetrievalBlocked,
		Clarifications: append([]string(nil), qc.ClarificationQuestions...),
	}, nil
}

var _ query.Enhancer = (*Enhancer)(nil)
