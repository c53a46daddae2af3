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
	"sort"

	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/phonetic"
)

// PhoneticCorrection adds sound alike corrections of every variant.
type PhoneticCorrection struct {
	matcher phonetic.Matcher
}

// NewPhoneticCorrection creates the phonetic correction stage. The stage is
// not applicable without a matcher.
func NewPhoneticCorrection(matcher phonetic.Matcher) *PhoneticCorrection {
	return &PhoneticCorrection{matcher: matcher}
}

// Name implements query.Stage.
func (s *PhoneticCorrection) Name() string { return query.StagePhoneticCorrection }

// IsApplicable implements query.Stage.
func (s *PhoneticCorrection) IsApplicable(*query.Context, *query.Config) bool {
	return s.matcher != nil
}

// Transform implements query.Stage.
func (s *PhoneticCorrection) Transform(ctx context.Context, qc *query.Context, cfg *query.Config) (*query.Delta, error) {
	c := cfg.Phonetic
	var add []string
	for _, q := range qc.Queries() {
		cands, err := s.matcher.Candidates(ctx, q, qc.Scope.Tenant)
		if err != nil {
			return nil, external(servicePhonetic, "candidates", err)
		}
		sort.SliceStable(cands, func(i, j int) bool {
			return cands[i].Confidence > cands[j].Confidence
		})
		kept := 0
		for _, cand := range cands {
			if kept >= c.MaxCandidates || cand.Confidence < c.MinConfidence {
				break
			}
			if cand.Text == "" || cand.Text == q {
				continue
			}
			add = append(add, cand.Text)
			kept++
		}
	}
	return &query.Delta{Add: add}, nil
}
