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
	"trpc.group/trpc-go/trpc-query-go/model"
)

const orderPattern = `([A-Za-z]{2,}\d{3,})`

func orderDict(slots ...dictionary.SlotSpec) dictionary.Dictionary {
	if len(slots) == 0 {
		slots = []dictionary.SlotSpec{{Name: "order_id", Description: "订单号", Required: true, Pattern: orderPattern}}
	}
	return staticDict(dictionary.Entries{SlotTemplates: []dictionary.SlotTemplate{
		{Intent: "order_tracking", Slots: slots},
	}})
}

func trackingQC(q string, opts ...query.ContextOption) *query.Context {
	qc := newQC(q, opts...)
	qc.DetectedIntent = &query.Intent{Code: "order_tracking", Confidence: 0.9}
	return qc
}

func runSlots(t *testing.T, s *SlotFilling, qc *query.Context, cfg *query.Config) *query.Delta {
	t.Helper()
	delta, err := s.Transform(context.Background(), qc, cfg)
	require.NoError(t, err)
	require.NotNil(t, delta.Completeness)
	require.NotNil(t, delta.RetrievalBlocked)
	require.NotNil(t, delta.Clarifications)
	return delta
}

func TestSlotFilling_MissingRequiredSlotBlocks(t *testing.T) {
	qc := trackingQC("我的快递到哪了")
	delta := runSlots(t, NewSlotFilling(orderDict()), qc, query.DefaultConfig())

	assert.Equal(t, 0.0, *delta.Completeness)
	assert.True(t, *delta.RetrievalBlocked)
	assert.Equal(t, []string{"请提供您的订单号。"}, delta.Clarifications)
	assert.Empty(t, delta.Slots)

	qc.Apply(delta)
	assert.True(t, qc.RetrievalBlocked)
	assert.Len(t, qc.ClarificationQuestions, 1)
}

func TestSlotFilling_MissingWithoutBlocking(t *testing.T) {
	cfg := query.DefaultConfig()
	cfg.SlotFilling.BlockRetrievalOnMissing = false
	delta := runSlots(t, NewSlotFilling(orderDict()), trackingQC("我的快递到哪了"), cfg)
	assert.False(t, *delta.RetrievalBlocked)
	assert.Len(t, delta.Clarifications, 1)
}

func TestSlotFilling_PatternFill(t *testing.T) {
	delta := runSlots(t, NewSlotFilling(orderDict()), trackingQC("查询订单AB12345的物流"), query.DefaultConfig())

	assert.Equal(t, 1.0, *delta.Completeness)
	assert.False(t, *delta.RetrievalBlocked)
	assert.Empty(t, delta.Clarifications)
	assert.Equal(t, query.Slot{
		Value: "AB12345", Method: query.SlotMethodPattern, Confidence: patternConfidence, Validated: true,
	}, delta.Slots["order_id"])
}

func TestSlotFilling_QuestionFromTemplate(t *testing.T) {
	dict := orderDict(dictionary.SlotSpec{
		Name: "order_id", Required: true, Pattern: orderPattern, Question: "您的订单号是多少？",
	})
	delta := runSlots(t, NewSlotFilling(dict), trackingQC("到哪了"), query.DefaultConfig())
	assert.Equal(t, []string{"您的订单号是多少？"}, delta.Clarifications)
}

func TestSlotFilling_InvalidModelSlot(t *testing.T) {
	qc := trackingQC("查一下 hello 订单")
	qc.ExtractedSlots["order_id"] = query.Slot{Value: "hello", Method: query.SlotMethodModel, Confidence: 0.9}

	delta := runSlots(t, NewSlotFilling(orderDict()), qc, query.DefaultConfig())
	assert.False(t, delta.Slots["order_id"].Validated)
	assert.True(t, *delta.RetrievalBlocked)
	assert.Equal(t, 0.0, *delta.Completeness)
}

func TestSlotFilling_ValidatedSlotNotRechecked(t *testing.T) {
	qc := trackingQC("到哪了")
	qc.ExtractedSlots["order_id"] = query.Slot{Value: "AB12345", Validated: true, Confidence: 1}
	called := false
	v := SlotValidatorFunc(func(context.Context, string, string, string, query.Scope) (bool, error) {
		called = true
		return false, nil
	})

	delta := runSlots(t, NewSlotFilling(orderDict(), WithSlotValidator(v)), qc, query.DefaultConfig())
	assert.False(t, called)
	assert.Equal(t, 1.0, *delta.Completeness)
}

func TestSlotFilling_HistoryFill(t *testing.T) {
	qc := trackingQC("到哪了", query.WithHistory([]string{"我的订单是CD67890", "谢谢"}))
	delta := runSlots(t, NewSlotFilling(orderDict()), qc, query.DefaultConfig())

	slot := delta.Slots["order_id"]
	assert.Equal(t, "CD67890", slot.Value)
	assert.Equal(t, query.SlotMethodHistory, slot.Method)
	assert.Equal(t, historyConfidence, slot.Confidence)

	cfg := query.DefaultConfig()
	cfg.SlotFilling.HistoryTurns = 1
	delta = runSlots(t, NewSlotFilling(orderDict()), qc, cfg)
	assert.NotContains(t, delta.Slots, "order_id")
	assert.True(t, *delta.RetrievalBlocked)

	// The rewrite window belongs to the rewrite stage.
	cfg = query.DefaultConfig()
	cfg.Rewrite.HistoryTurns = 0
	delta = runSlots(t, NewSlotFilling(orderDict()), qc, cfg)
	assert.Equal(t, "CD67890", delta.Slots["order_id"].Value)
}

func TestSlotFilling_Validator(t *testing.T) {
	var got []string
	accept := SlotValidatorFunc(func(_ context.Context, intent, slot, value string, scope query.Scope) (bool, error) {
		got = []string{intent, slot, value, scope.Tenant}
		return value == "AB12345", nil
	})
	s := NewSlotFilling(orderDict(), WithSlotValidator(accept))

	delta := runSlots(t, s, trackingQC("订单AB12345"), query.DefaultConfig())
	assert.True(t, delta.Slots["order_id"].Validated)
	assert.Equal(t, []string{"order_tracking", "order_id", "AB12345", "shop"}, got)

	delta = runSlots(t, s, trackingQC("订单XY99999"), query.DefaultConfig())
	assert.False(t, delta.Slots["order_id"].Validated)
	assert.True(t, *delta.RetrievalBlocked)
}

func TestSlotFilling_ValidatorFailures(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		v := SlotValidatorFunc(func(context.Context, string, string, string, query.Scope) (bool, error) {
			return false, errBoom
		})
		_, err := NewSlotFilling(orderDict(), WithSlotValidator(v)).
			Transform(context.Background(), trackingQC("订单AB12345"), query.DefaultConfig())
		assertExternal(t, err, serviceValidator)
		assert.ErrorIs(t, err, errBoom)
	})
	t.Run("timeout", func(t *testing.T) {
		v := SlotValidatorFunc(func(ctx context.Context, _, _, _ string, _ query.Scope) (bool, error) {
			<-ctx.Done()
			return false, ctx.Err()
		})
		cfg := query.DefaultConfig()
		cfg.SlotFilling.TimeoutMs = 20
		_, err := NewSlotFilling(orderDict(), WithSlotValidator(v)).
			Transform(context.Background(), trackingQC("订单AB12345"), cfg)
		assertExternal(t, err, serviceValidator)
		assert.ErrorIs(t, err, query.ErrStageTimeout)
	})
}

func TestSlotFilling_TemplateLookup(t *testing.T) {
	delta := runSlots(t, NewSlotFilling(nil), trackingQC("到哪了"), query.DefaultConfig())
	assert.Equal(t, 1.0, *delta.Completeness)
	assert.False(t, *delta.RetrievalBlocked)

	_, err := NewSlotFilling(failingDictionary{}).
		Transform(context.Background(), trackingQC("到哪了"), query.DefaultConfig())
	assertExternal(t, err, serviceDictionary)

	bad := orderDict(dictionary.SlotSpec{Name: "order_id", Required: true, Pattern: "("})
	_, err = NewSlotFilling(bad).Transform(context.Background(), trackingQC("到哪了"), query.DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order_id")
}

func TestSlotFilling_SmartQuestion(t *testing.T) {
	cfg := query.DefaultConfig()
	cfg.SlotFilling.EnableSmartQuestionGeneration = true
	cfg.SlotFilling.ModelID = "m"

	m := &fakeModel{
		content: "请问您要查询的订单号是多少？",
		usage:   &model.Usage{PromptTokens: 40, CompletionTokens: 12},
	}
	s := NewSlotFilling(orderDict(), WithQuestionModels(modelsWith("m", m)))
	delta := runSlots(t, s, trackingQC("我的快递到哪了"), cfg)
	assert.Equal(t, []string{"请问您要查询的订单号是多少？"}, delta.Clarifications)
	assert.Equal(t, &query.Usage{ModelID: "m", InputTokens: 40, OutputTokens: 12}, delta.Usage)
	assert.Contains(t, m.lastRequest().Messages[0].Content, "我的快递到哪了")

	failing := NewSlotFilling(orderDict(), WithQuestionModels(modelsWith("m", &fakeModel{err: errBoom})))
	delta = runSlots(t, failing, trackingQC("我的快递到哪了"), cfg)
	assert.Equal(t, []string{"请提供您的订单号。"}, delta.Clarifications)
	assert.Nil(t, delta.Usage)
}

func TestSlotFilling_ClarificationBound(t *testing.T) {
	dict := orderDict(
		dictionary.SlotSpec{Name: "order_id", Required: true, Pattern: orderPattern},
		dictionary.SlotSpec{Name: "phone", Description: "手机号", Required: true, Pattern: `(1\d{10})`},
		dictionary.SlotSpec{Name: "address", Description: "收货地址", Required: true},
		dictionary.SlotSpec{Name: "note", Required: false},
	)
	cfg := query.DefaultConfig()
	cfg.SlotFilling.MaxClarificationAttempts = 2

	delta := runSlots(t, NewSlotFilling(dict), trackingQC("快递到哪了"), cfg)
	assert.Equal(t, []string{"请提供您的order_id。", "请提供您的手机号。"}, delta.Clarifications)
	assert.Equal(t, 0.0, *delta.Completeness)
}

func TestSlotFilling_CompletenessThreshold(t *testing.T) {
	dict := orderDict(
		dictionary.SlotSpec{Name: "order_id", Required: true, Pattern: orderPattern},
		dictionary.SlotSpec{Name: "phone", Required: true, Pattern: `(1\d{10})`},
	)
	cfg := query.DefaultConfig()
	cfg.SlotFilling.CompletenessThreshold = 0.5

	delta := runSlots(t, NewSlotFilling(dict), trackingQC("订单AB12345到哪了"), cfg)
	assert.Equal(t, 0.5, *delta.Completeness)
	assert.False(t, *delta.RetrievalBlocked)
	assert.Empty(t, delta.Clarifications)
}

func TestSlotFilling_Applicability(t *testing.T) {
	s := NewSlotFilling(orderDict())
	assert.False(t, s.IsApplicable(newQC("q"), query.DefaultConfig()))
	assert.True(t, s.IsApplicable(trackingQC("q"), query.DefaultConfig()))
}
