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

	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/dictionary"
)

func strategyFor(t *testing.T, s *ExpansionStrategy, qc *query.Context, cfg *query.Config) *query.StrategyHint {
	t.Helper()
	delta, err := s.Transform(context.Background(), qc, cfg)
	require.NoError(t, err)
	assert.Nil(t, delta.Replace)
	assert.Nil(t, delta.Add)
	require.NotNil(t, delta.Strategy)
	return delta.Strategy
}

func TestExpansionStrategy_Signals(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		mode    query.StrategyMode
		keyword float64
		reasons []string
	}{
		{name: "identifier", query: "查询订单AB12345", mode: query.StrategyKeyword, keyword: 0.8, reasons: []string{ReasonIdentifier}},
		{name: "long digits", query: "运单 20250101 到哪了", mode: query.StrategyKeyword, keyword: 0.8, reasons: []string{ReasonIdentifier}},
		{name: "open ended", query: "为什么退款这么慢", mode: query.StrategySemantic, keyword: 0.2, reasons: []string{ReasonOpenEnded}},
		{name: "default", query: "退货", mode: query.StrategyHybrid, keyword: 0.5, reasons: []string{ReasonDefault}},
		{
			name:    "mixed signals",
			query:   "如何比较两款耳机",
			mode:    query.StrategyHybrid,
			keyword: 0.4,
			reasons: []string{ReasonComparison, ReasonOpenEnded},
		},
		{
			name:    "quoted and temporal",
			query:   "「七天无理由」最新规则",
			mode:    query.StrategyKeyword,
			keyword: 0.8,
			reasons: []string{ReasonQuoted, ReasonTemporal},
		},
		{name: "latin keyword needs whole word", query: "show me this week's history", mode: query.StrategyHybrid, keyword: 0.5, reasons: []string{ReasonDefault}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := strategyFor(t, NewExpansionStrategy(nil), newQC(tt.query), query.DefaultConfig())
			assert.Equal(t, tt.mode, h.Mode)
			assert.InDelta(t, tt.keyword, h.KeywordWeight, 1e-9)
			assert.InDelta(t, 1, h.KeywordWeight+h.SemanticWeight, 1e-9)
			assert.Equal(t, tt.reasons, h.Reasons)
		})
	}
}

func TestExpansionStrategy_DomainTerms(t *testing.T) {
	dict := staticDict(dictionary.Entries{
		Canonical: map[string]string{"快递单号": "运单号"},
		Synonyms:  map[string][]string{"物流": {"配送"}},
	})
	h := strategyFor(t, NewExpansionStrategy(dict), newQC("快递单号 物流"), query.DefaultConfig())
	assert.Equal(t, query.StrategyHybrid, h.Mode)
	assert.Equal(t, []string{ReasonDomainTerms}, h.Reasons)
	assert.InDelta(t, 2.0/3.0, h.KeywordWeight, 1e-9)

	cfg := query.DefaultConfig()
	cfg.Strategy.MaxTermLength = 1
	cfg.Alignment.MaxTermLength = 8
	h = strategyFor(t, NewExpansionStrategy(dict), newQC("快递单号 物流"), cfg)
	assert.NotContains(t, h.Reasons, ReasonDomainTerms)
}

func TestExpansionStrategy_IntentOverride(t *testing.T) {
	cfg := query.DefaultConfig()
	cfg.Strategy.IntentModes = map[string]query.StrategyMode{"policy_faq": query.StrategySemantic}

	qc := newQC("查询订单AB12345")
	qc.DetectedIntent = &query.Intent{Code: "policy_faq", Confidence: 0.9}
	h := strategyFor(t, NewExpansionStrategy(failingDictionary{}), qc, cfg)
	assert.Equal(t, query.StrategySemantic, h.Mode)
	assert.Equal(t, []string{"intent:policy_faq"}, h.Reasons)
	assert.Equal(t, 0.8, h.SemanticWeight)
}

func TestExpansionStrategy_DefaultMode(t *testing.T) {
	cfg := query.DefaultConfig()
	cfg.Strategy.DefaultMode = query.StrategySemantic
	h := strategyFor(t, NewExpansionStrategy(nil), newQC("退货"), cfg)
	assert.Equal(t, query.StrategySemantic, h.Mode)
	assert.Equal(t, 0.2, h.KeywordWeight)
}

func TestExpansionStrategy_DictionaryFailure(t *testing.T) {
	_, err := NewExpansionStrategy(failingDictionary{}).
		Transform(context.Background(), newQC("退货"), query.DefaultConfig())
	assertExternal(t, err, serviceDictionary)
}
