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
	"trpc.group/trpc-go/trpc-query-go/model"
)

func expandConfig() *query.Config {
	cfg := query.DefaultConfig()
	cfg.Expanding.ModelID = "m"
	return cfg
}

func TestExpansion_Transform(t *testing.T) {
	m := &fakeModel{
		content: "1. 如何退货\n2) 退货流程是什么\n- \"怎么退货\"\n\n- 退货需要什么条件\n5. 多余的一条",
		usage:   &model.Usage{PromptTokens: 50, CompletionTokens: 20},
	}
	qc := withVariants("怎么退货", "退货")
	delta, err := NewExpansion(modelsWith("m", m)).Transform(context.Background(), qc, expandConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"如何退货", "退货流程是什么", "退货需要什么条件"}, delta.Add)
	assert.Nil(t, delta.Replace)
	assert.Equal(t, &query.Usage{ModelID: "m", InputTokens: 50, OutputTokens: 20}, delta.Usage)

	req := m.lastRequest()
	require.NotNil(t, req)
	prompt := req.Messages[0].Content
	assert.Contains(t, prompt, "怎么退货")
	assert.Contains(t, prompt, "3")
	assert.NotContains(t, prompt, "{query}")
	assert.Equal(t, 0.7, *req.GenerationConfig.Temperature)
}

func TestExpansion_CustomPrompt(t *testing.T) {
	cfg := expandConfig()
	cfg.Expanding.PromptTemplate = "Rewrite <{query}> {n} ways"
	cfg.Expanding.N = 2
	m := &fakeModel{content: "a\nb\nc"}

	delta, err := NewExpansion(modelsWith("m", m)).Transform(context.Background(), newQC("refund"), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, delta.Add)
	assert.Equal(t, "Rewrite <refund> 2 ways", m.lastRequest().Messages[0].Content)
}

func TestExpansion_Failures(t *testing.T) {
	_, err := NewExpansion(modelsWith("m", &fakeModel{err: errBoom})).
		Transform(context.Background(), newQC("q"), expandConfig())
	assertExternal(t, err, serviceModel)
	assert.ErrorIs(t, err, errBoom)

	_, err = NewExpansion(nil).Transform(context.Background(), newQC("q"), expandConfig())
	assert.ErrorIs(t, err, model.ErrUnknownModel)
}

func TestParseReformulations(t *testing.T) {
	content := "```\n* “如何退货”\n（2） 退货 政策\n3、退货\n```"
	assert.Equal(t, []string{"如何退货", "退货 政策"}, parseReformulations(content, "退货", 5))
	assert.Empty(t, parseReformulations("", "退货", 3))
}
