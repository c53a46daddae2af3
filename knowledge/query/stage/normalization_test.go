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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-query-go/internal/text"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/dictionary"
)

func normalizationConfig(mut func(*query.NormalizationConfig)) *query.Config {
	cfg := query.DefaultConfig()
	mut(&cfg.Normalization)
	return cfg
}

func TestNormalization_Transform(t *testing.T) {
	dict := staticDict(dictionary.Entries{Stopwords: []string{"的", "请问", "the"}})
	tests := []struct {
		name  string
		input string
		mut   func(*query.NormalizationConfig)
		want  string
	}{
		{
			name:  "greeting passes through",
			input: "你好",
			mut:   func(*query.NormalizationConfig) {},
			want:  "你好",
		},
		{
			name:  "case whitespace and repeated punctuation",
			input: "  Where   IS my Order？？ ",
			mut:   func(*query.NormalizationConfig) {},
			want:  "where is my order？",
		},
		{
			name:  "upper case",
			input: "order abc123",
			mut:   func(c *query.NormalizationConfig) { c.CaseMode = query.CaseUpper },
			want:  "ORDER ABC123",
		},
		{
			name:  "case kept when disabled",
			input: "Order  ABC",
			mut: func(c *query.NormalizationConfig) {
				c.NormalizeCase = false
				c.CleanWhitespace = false
			},
			want: "Order  ABC",
		},
		{
			name:  "stopwords removed",
			input: "请问 the status of 快递的物流",
			mut:   func(c *query.NormalizationConfig) { c.RemoveStopwords = true },
			want:  "status of 快递物流",
		},
		{
			name:  "only stopwords keeps the variant",
			input: "的",
			mut:   func(c *query.NormalizationConfig) { c.RemoveStopwords = true },
			want:  "的",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewNormalization(dict)
			delta, err := s.Transform(context.Background(), newQC(tt.input), normalizationConfig(tt.mut))
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, delta.Replace)
			assert.Empty(t, delta.Add)
		})
	}
}

func TestNormalization_TruncatesAtWordBoundary(t *testing.T) {
	input := strings.Repeat("hello world ", 84)
	require.Greater(t, text.Len(input), 1000)

	cfg := normalizationConfig(func(c *query.NormalizationConfig) { c.MaxQueryLength = 512 })
	delta, err := NewNormalization(nil).Transform(context.Background(), newQC(input), cfg)
	require.NoError(t, err)
	require.Len(t, delta.Replace, 1)

	out := delta.Replace[0]
	assert.LessOrEqual(t, text.Len(out), 512)
	for _, w := range strings.Fields(out) {
		assert.Contains(t, []string{"hello", "world"}, w)
	}
}

func TestNormalization_AppliesToEveryVariant(t *testing.T) {
	qc := withVariants("Track  ORDER", "Where IS it")
	delta, err := NewNormalization(nil).Transform(context.Background(), qc, query.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"track order", "where is it"}, delta.Replace)
}

func TestNormalization_Deterministic(t *testing.T) {
	dict := staticDict(dictionary.Entries{Stopwords: []string{"的"}})
	cfg := normalizationConfig(func(c *query.NormalizationConfig) { c.RemoveStopwords = true })
	s := NewNormalization(dict)
	first, err := s.Transform(context.Background(), newQC("我的 ORDER 状态"), cfg)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := s.Transform(context.Background(), newQC("我的 ORDER 状态"), cfg)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestNormalization_DictionaryFailure(t *testing.T) {
	cfg := normalizationConfig(func(c *query.NormalizationConfig) { c.RemoveStopwords = true })
	_, err := NewNormalization(failingDictionary{}).Transform(context.Background(), newQC("退货"), cfg)
	assertExternal(t, err, serviceDictionary)
	assert.ErrorIs(t, err, errBoom)
}
