//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package stage

import (
	"context"

	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/dictionary"
)

// SemanticAlignment maps colloquial terms to their canonical domain form.
// Without a dictionary it passes variants through unchanged.
type SemanticAlignment struct {
	dict dictionary.Dictionary
}

// NewSemanticAlignment creates the semantic alignment stage.
func NewSemanticAlignment(dict dictionary.Dictionary) *SemanticAlignment {
	return &SemanticAlignment{dict: orNoop(dict)}
}

// Name implements query.Stage.
func (s *SemanticAlignment) Name() string { return query.StageSemanticAlignment }

// IsApplicable implements query.Stage.
func (s *SemanticAlignment) IsApplicable(*query.Context, *query.Config) bool { return true }

// Transform implements query.Stage.
func (s *SemanticAlignment) Transform(ctx context.Context, qc *query.Context, cfg *query.Config) (*query.Delta, error) {
	tenant := qc.Scope.Tenant
	lookup := func(ctx context.Context, term string) (string, bool, error) {
		canonical, ok, err := s.dict.LookupCanonicalForm(ctx, term, tenant)
		if err != nil {
			return "", false, external(serviceDictionary, "lookup canonical form", err)
		}
		return canonical, ok && canonical != "", nil
	}

	variants := qc.Queries()
	out := make([]string, 0, len(variants))
	for _, q := range variants {
		pieces, err := scanTerms(ctx, q, cfg.Alignment.MaxTermLength, lookup)
		if err != nil {
			return nil, err
		}
		out = append(out, join(pieces))
	}
	return &query.Delta{Replace: out}, nil
}
