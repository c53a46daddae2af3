//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package query

import (
	"context"
	"math"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"trpc.group/trpc-go/trpc-query-go/internal/text"
	"trpc.group/trpc-go/trpc-query-go/knowledge/embedder"
	"trpc.group/trpc-go/trpc-query-go/log"
)

// embedTimeout bounds one embedding call made while scoring. Dedup runs
// between stages, outside any stage deadline.
const embedTimeout = 500 * time.Millisecond

// Similarity scores how alike two variants are, in [0, 1].
// Implementations must be safe for concurrent use.
type Similarity interface {
	Score(ctx context.Context, a, b string) float64
}

// SimilarityFunc adapts a context free scoring function to Similarity.
type SimilarityFunc func(a, b string) float64

// Score implements Similarity.
func (f SimilarityFunc) Score(_ context.Context, a, b string) float64 {
	return f(a, b)
}

// LexicalSimilarity is the default dedup similarity: one minus the rune
// edit distance over the longer length, computed on width and case folded
// text with whitespace removed.
func LexicalSimilarity(a, b string) float64 {
	return text.Similarity(a, b)
}

// Lexical is the Similarity form of LexicalSimilarity.
type Lexical struct{}

// Score implements Similarity.
func (Lexical) Score(_ context.Context, a, b string) float64 {
	return LexicalSimilarity(a, b)
}

// EmbeddingSimilarity scores variants by the cosine of their embeddings.
// Vectors are cached; on embedding failure it falls back to lexical scoring.
type EmbeddingSimilarity struct {
	embedder embedder.Embedder
	cache    *expirable.LRU[string, []float64]
}

// NewEmbeddingSimilarity creates an EmbeddingSimilarity caching up to size vectors for ttl.
func NewEmbeddingSimilarity(e embedder.Embedder, size int, ttl time.Duration) *EmbeddingSimilarity {
	if size <= 0 {
		size = 1024
	}
	return &EmbeddingSimilarity{
		embedder: e,
		cache:    expirable.NewLRU[string, []float64](size, nil, ttl),
	}
}

// Score implements Similarity.
func (s *EmbeddingSimilarity) Score(ctx context.Context, a, b string) float64 {
	if a == b {
		return 1
	}
	va, err := s.vector(ctx, a)
	if err != nil {
		log.DebugfContext(ctx, "embedding similarity falls back to lexical: %v", err)
		return LexicalSimilarity(a, b)
	}
	vb, err := s.vector(ctx, b)
	if err != nil {
		log.DebugfContext(ctx, "embedding similarity falls back to lexical: %v", err)
		return LexicalSimilarity(a, b)
	}
	return Cosine(va, vb)
}

func (s *EmbeddingSimilarity) vector(ctx context.Context, q string) ([]float64, error) {
	if v, ok := s.cache.Get(q); ok {
		return v, nil
	}
	ctx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()
	v, err := s.embedder.GetEmbedding(ctx, q)
	if err != nil {
		return nil, err
	}
	s.cache.Add(q, v)
	return v, nil
}

// Cosine returns the cosine similarity of a and b clamped to [0, 1].
// Vectors of different length or zero norm score 0.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return math.Max(0, math.Min(1, dot/(math.Sqrt(na)*math.Sqrt(nb))))
}
