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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-query-go/knowledge/embedder"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/dictionary"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/synonym"
)

// fakeEmbedder maps known texts to fixed vectors.
type fakeEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (e *fakeEmbedder) GetEmbedding(_ context.Context, text string) ([]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float64{0, 0, 1}, nil
}

func (e *fakeEmbedder) GetDimensions() int { return 3 }

const expressQuery = "帮我查下快递单号abc123的物流"

func expressSetup(embErr error) (*embedder.Registry, *synonym.MemoryStore) {
	embedders := embedder.NewRegistry()
	embedders.Register("emb", &fakeEmbedder{
		vectors: map[string][]float64{expressQuery: {1, 0, 0}},
		err:     embErr,
	})
	store := synonym.NewMemoryStore()
	store.Add(synonym.AnyTenant,
		synonym.Entry{Phrase: "快递单号", Text: "运单号", Vector: []float64{1, 0, 0}},
		synonym.Entry{Text: "查询快递物流信息", Vector: []float64{0.9, 0.1, 0}},
		synonym.Entry{Phrase: "物流", Text: "配送进度", Vector: []float64{0.85, 0.5, 0}},
		synonym.Entry{Text: "退货政策", Vector: []float64{0, 1, 0}},
	)
	return embedders, store
}

func TestSynonymRecall_Embedding(t *testing.T) {
	embedders, store := expressSetup(nil)
	cfg := query.DefaultConfig()
	cfg.Synonym = query.SynonymConfig{EmbeddingModelID: "emb", TopK: 2, SimThreshold: 0.8}

	s := NewSynonymRecall(embedders, store, nil)
	qc := newQC(expressQuery)
	delta, err := s.Transform(context.Background(), qc, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"帮我查下运单号abc123的物流", "查询快递物流信息"}, delta.Add)

	qc.Apply(delta)
	qc.Cap(cfg.MaxQueries)
	assert.Equal(t, expressQuery, qc.Queries()[0])
	assert.LessOrEqual(t, qc.Len(), 3)
}

func TestSynonymRecall_ThresholdFilters(t *testing.T) {
	embedders, store := expressSetup(nil)
	cfg := query.DefaultConfig()
	cfg.Synonym = query.SynonymConfig{EmbeddingModelID: "emb", TopK: 5, SimThreshold: 0.999}

	delta, err := NewSynonymRecall(embedders, store, nil).Transform(context.Background(), newQC(expressQuery), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"帮我查下运单号abc123的物流"}, delta.Add)
}

func TestSynonymRecall_DictionaryFill(t *testing.T) {
	dict := staticDict(dictionary.Entries{Synonyms: map[string][]string{"退货": {"退款", "退换货"}}})
	cfg := query.DefaultConfig()
	cfg.Synonym.TopK = 2

	s := NewSynonymRecall(nil, nil, dict)
	delta, err := s.Transform(context.Background(), newQC("怎么退货"), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"怎么退款", "怎么退换货"}, delta.Add)

	cfg.Synonym.TopK = 1
	delta, err = s.Transform(context.Background(), newQC("怎么退货"), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"怎么退款"}, delta.Add)
}

func TestSynonymRecall_DictionaryTopsUpEmbedding(t *testing.T) {
	embedders, store := expressSetup(nil)
	dict := staticDict(dictionary.Entries{Synonyms: map[string][]string{"物流": {"配送"}}})
	cfg := query.DefaultConfig()
	cfg.Synonym = query.SynonymConfig{EmbeddingModelID: "emb", TopK: 2, SimThreshold: 0.999}

	delta, err := NewSynonymRecall(embedders, store, dict).Transform(context.Background(), newQC(expressQuery), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"帮我查下运单号abc123的物流", "帮我查下快递单号abc123的配送"}, delta.Add)
}

func TestSynonymRecall_Failures(t *testing.T) {
	cfg := query.DefaultConfig()
	cfg.Synonym = query.SynonymConfig{EmbeddingModelID: "emb", TopK: 2, SimThreshold: 0.8}

	embedders, store := expressSetup(errBoom)
	_, err := NewSynonymRecall(embedders, store, nil).Transform(context.Background(), newQC(expressQuery), cfg)
	assertExternal(t, err, serviceEmbedder)

	cfg.Synonym.EmbeddingModelID = "missing"
	_, err = NewSynonymRecall(embedders, store, nil).Transform(context.Background(), newQC(expressQuery), cfg)
	assertExternal(t, err, serviceEmbedder)
	assert.ErrorIs(t, err, embedder.ErrUnknownModel)

	cfg.Synonym.EmbeddingModelID = ""
	_, err = NewSynonymRecall(nil, nil, failingDictionary{}).Transform(context.Background(), newQC("退货"), cfg)
	assertExternal(t, err, serviceDictionary)
}
