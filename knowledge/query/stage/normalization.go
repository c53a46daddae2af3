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
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/dictionary"
	"trpc.group/trpc-go/trpc-query-go/knowledge/transform"
)

// stopwordMaxLen is the longest Han stopword tried, in runes.
const stopwordMaxLen = 4

// Normalization cleans every variant deterministically: invisible characters
// and repeated punctuation, case, whitespace, stopwords and length.
type Normalization struct {
	dict    dictionary.Dictionary
	cleaner transform.Transformer
}

// NewNormalization creates the normalization stage. A nil dictionary
// disables stopword removal.
func NewNormalization(dict dictionary.Dictionary) *Normalization {
	return &Normalization{dict: orNoop(dict), cleaner: transform.QueryCleaner()}
}

// Name implements query.Stage.
func (s *Normalization) Name() string { return query.StageNormalization }

// IsApplicable implements query.Stage.
func (s *Normalization) IsApplicable(*query.Context, *query.Config) bool { return true }

// Transform implements query.Stage.
func (s *Normalization) Transform(ctx context.Context, qc *query.Context, cfg *query.Config) (*query.Delta, error) {
	c := cfg.Normalization
	variants := qc.Queries()
	out := make([]string, 0, len(variants))
	for _, q := range variants {
		n, err := s.normalize(ctx, q, qc.Scope.Tenant, &c)
		if err != nil {
			return nil, err
		}
		// A variant made only of stopwords is kept as it was.
		if n == "" {
			n = q
		}
		out = append(out, n)
	}
	return &query.Delta{Replace: out}, nil
}

func (s *Normalization) normalize(
	ctx context.Context, q, tenant string, c *query.NormalizationConfig,
) (string, error) {
	q = s.cleaner.Transform(q)
	if c.NormalizeCase {
		if c.CaseMode == query.CaseUpper {
			q = text.Upper(q)
		} else {
			q = text.Lower(q)
		}
	}
	if c.CleanWhitespace {
		q = text.CollapseSpaces(q)
	}
	if c.RemoveStopwords {
		pieces, err := scanTerms(ctx, q, stopwordMaxLen, func(ctx context.Context, term string) (string, bool, error) {
			stop, err := s.dict.IsStopword(ctx, term, tenant)
			if err != nil {
				return "", false, external(serviceDictionary, "is stopword", err)
			}
			return "", stop, nil
		})
		if err != nil {
			return "", err
		}
		q = join(pieces)
		if c.CleanWhitespace {
			q = tidy(q)
		}
	}
	if c.MaxQueryLength > 0 {
		q = text.TruncateAtBoundary(q, c.MaxQueryLength)
	}
	return strings.TrimSpace(q), nil
}
