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
	"strings"

	"trpc.group/trpc-go/trpc-query-go/internal/text"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/prefix"
)

// PrefixCompletion completes short queries from the prefix index of the
// request's tenant and channel.
type PrefixCompletion struct {
	index prefix.Index
}

// NewPrefixCompletion creates the prefix completion stage. The stage is not
// applicable without an index.
func NewPrefixCompletion(index prefix.Index) *PrefixCompletion {
	return &PrefixCompletion{index: index}
}

// Name implements query.Stage.
func (s *PrefixCompletion) Name() string { return query.StagePrefixCompletion }

// IsApplicable implements query.Stage. It requires onlyShortQuery and at
// least one variant whose length qualifies.
func (s *PrefixCompletion) IsApplicable(qc *query.Context, cfg *query.Config) bool {
	if s.index == nil {
		return false
	}
	for _, q := range qc.Queries() {
		if qualifies(q, &cfg.Prefix) {
			return true
		}
	}
	return false
}

// qualifies reports whether q is long enough to complete and short enough
// to be a prefix. Completion is limited to short queries.
func qualifies(q string, c *query.PrefixConfig) bool {
	if !c.OnlyShortQuery {
		return false
	}
	n := text.Len(strings.TrimSpace(q))
	return n >= c.MinPrefixLength && n <= c.ShortQueryMaxLen
}

// Transform implements query.Stage.
func (s *PrefixCompletion) Transform(ctx context.Context, qc *query.Context, cfg *query.Config) (*query.Delta, error) {
	c := cfg.Prefix
	var add []string
	for _, q := range qc.Queries() {
		remaining := c.MaxCandidates - len(add)
		if remaining <= 0 {
			break
		}
		if !qualifies(q, &c) {
			continue
		}
		completions, err := s.index.Complete(ctx, strings.TrimSpace(q), qc.Scope.Tenant, qc.Scope.Channel, remaining)
		if err != nil {
			return nil, external(servicePrefix, "complete", err)
		}
		if len(completions) > remaining {
			completions = completions[:remaining]
		}
		add = append(add, completions...)
	}
	return &query.Delta{Add: add}, nil
}
