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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
	"trpc.group/trpc-go/trpc-query-go/model"
)

func intentConfig() *query.Config {
	cfg := query.DefaultConfig()
	cfg.Intent.ModelID = "m"
	cfg.Intent.Intents = []query.IntentDefinition{
		{Code: "order_tracking", Description: "where is my parcel"},
		{Code: "refund"},
	}
	return cfg
}

func TestIntentExtraction_Accepted(t *testing.T) {
	m := &fakeModel{
		content: `{"intent":"order_tracking","confidence":0.92,` +
			`"slots":[{"name":"order_id","value":" AB12345 ","confidence":1.4},{"name":"","value":"x","confidence":1}]}`,
		usage: &model.Usage{PromptTokens: 120, CompletionTokens: 30},
	}
	s := NewIntentExtraction(modelsWith("m", m))
	qc := withVariants("查询订单AB12345的物流", "订单 AB12345 物流")
	require.True(t, s.IsApplicable(qc, intentConfig()))

	delta, err := s.Transform(context.Background(), qc, intentConfig())
	require.NoError(t, err)
	require.NotNil(t, delta.Intent)
	assert.Equal(t, query.Intent{Code: "order_tracking", Confidence: 0.92}, *delta.Intent)
	assert.Equal(t, map[string]query.Slot{
		"order_id": {Value: "AB12345", Method: query.SlotMethodModel, Confidence: 1},
	}, delta.Slots)
	assert.Equal(t, &query.Usage{ModelID: "m", InputTokens: 120, OutputTokens: 30}, delta.Usage)
	assert.Nil(t, delta.Replace)
	assert.Nil(t, delta.Add)

	req := m.lastRequest()
	require.NotNil(t, req)
	require.Len(t, req.Messages, 1)
	assert.Contains(t, req.Messages[0].Content, "查询订单AB12345的物流")
	assert.NotContains(t, req.Messages[0].Content, "订单 AB12345 物流")
	assert.Contains(t, req.Messages[0].Content, "- order_tracking: where is my parcel")
	require.NotNil(t, req.StructuredOutput)
	assert.Equal(t, model.StructuredOutputJSONSchema, req.StructuredOutput.Type)
	assert.Equal(t, 0.0, *req.GenerationConfig.Temperature)
}

func TestIntentExtraction_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "low confidence", content: `{"intent":"refund","confidence":0.2,"slots":[{"name":"a","value":"b","confidence":1}]}`},
		{name: "unknown intent", content: `{"intent":"weather","confidence":0.9,"slots":[]}`},
		{name: "none", content: `{"intent":"none","confidence":0.99,"slots":[]}`},
		{name: "empty", content: `{"intent":"","confidence":0.99,"slots":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewIntentExtraction(modelsWith("m", &fakeModel{content: tt.content}))
			delta, err := s.Transform(context.Background(), newQC("你好"), intentConfig())
			require.NoError(t, err)
			assert.Nil(t, delta.Intent)
			assert.Empty(t, delta.Slots)
		})
	}
}

func TestIntentExtraction_AnyIntentWhenUnconfigured(t *testing.T) {
	cfg := intentConfig()
	cfg.Intent.Intents = nil
	s := NewIntentExtraction(modelsWith("m", &fakeModel{content: `{"intent":"weather","confidence":0.8,"slots":[]}`}))
	delta, err := s.Transform(context.Background(), newQC("明天天气"), cfg)
	require.NoError(t, err)
	require.NotNil(t, delta.Intent)
	assert.Equal(t, "weather", delta.Intent.Code)
}

func TestIntentExtraction_FencedAnswer(t *testing.T) {
	content := "```json\n{\"intent\":\"refund\",\"confidence\":0.7,\"slots\":[]}\n```"
	s := NewIntentExtraction(modelsWith("m", &fakeModel{content: content}))
	delta, err := s.Transform(context.Background(), newQC("怎么退款"), intentConfig())
	require.NoError(t, err)
	require.NotNil(t, delta.Intent)
	assert.Equal(t, "refund", delta.Intent.Code)
}

func TestIntentExtraction_Failures(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		s := NewIntentExtraction(modelsWith("m", &fakeModel{content: "order_tracking"}))
		_, err := s.Transform(context.Background(), newQC("q"), intentConfig())
		assertExternal(t, err, serviceModel)
	})
	t.Run("model error", func(t *testing.T) {
		s := NewIntentExtraction(modelsWith("m", &fakeModel{err: errBoom}))
		_, err := s.Transform(context.Background(), newQC("q"), intentConfig())
		assertExternal(t, err, serviceModel)
		assert.ErrorIs(t, err, errBoom)
	})
	t.Run("timeout", func(t *testing.T) {
		cfg := intentConfig()
		cfg.Intent.TimeoutMs = 20
		s := NewIntentExtraction(modelsWith("m", &fakeModel{content: "{}", delay: time.Second}))
		_, err := s.Transform(context.Background(), newQC("q"), cfg)
		assertExternal(t, err, serviceModel)
		assert.ErrorIs(t, err, query.ErrStageTimeout)
	})
	t.Run("unknown model", func(t *testing.T) {
		s := NewIntentExtraction(modelsWith("other", &fakeModel{}))
		_, err := s.Transform(context.Background(), newQC("q"), intentConfig())
		assert.ErrorIs(t, err, model.ErrUnknownModel)

		_, err = NewIntentExtraction(nil).Transform(context.Background(), newQC("q"), intentConfig())
		assert.ErrorIs(t, err, model.ErrUnknownModel)
	})
}

func TestIntentExtraction_NotApplicableOnceDetected(t *testing.T) {
	qc := newQC("q")
	qc.DetectedIntent = &query.Intent{Code: "refund", Confidence: 1}
	assert.False(t, NewIntentExtraction(nil).IsApplicable(qc, intentConfig()))
}
