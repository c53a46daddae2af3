//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

// Package query holds the per request query context, the stage contract and
// the pipeline configuration shared by every query transformation stage.
package query

import "context"

// Enhancer turns a user query into retrieval ready queries.
type Enhancer interface {
	// EnhanceQuery improves a user query by expanding or rephrasing it.
	EnhanceQuery(ctx context.Context, query string) (*Enhanced, error)
}

// Enhanced is the result of an Enhancer.
type Enhanced struct {
	// Original is the original query text.
	Original string
	// Enhanced is the preferred retrieval query.
	Enhanced string
	// Keywords contains every retrieval variant, Enhanced first.
	Keywords []string
	// Blocked is set when retrieval should wait for clarification.
	Blocked bool
	// Clarifications holds the questions to ask before retrying.
	Clarifications []string
}

// PassthroughEnhancer returns the query unchanged.
type PassthroughEnhancer struct{}

// EnhanceQuery implements Enhancer.
func (PassthroughEnhancer) EnhanceQuery(_ context.Context, query string) (*Enhanced, error) {
	return &Enhanced{Original: query, Enhanced: query, Keywords: []string{query}}, nil
}
