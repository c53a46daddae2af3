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
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/phonetic"
)

type fakeMatcher struct {
	candidates map[string][]phonetic.Candidate
	err        error
}

func (m *fakeMatcher) Candidates(_ context.Context, q, _ string) ([]phonetic.Candidate, error) {
	return m.candidates[q], m.err
}

func TestPhoneticCorrection_FiltersAndBounds(t *testing.T) {
	m := &fakeMatcher{candidates: map[string][]phonetic.Candidate{
		"快滴单号": {
			{Text: "快递单号", Confidence: 0.9},
			{Text: "快的单号", Confidence: 0.7},
			{Text: "块递单号", Confidence: 0.4},
			{Text: "快滴单号", Confidence: 0.95},
		},
		"trak order": {
			{Text: "track order", Confidence: 0.8},
		},
	}}
	cfg := query.DefaultConfig()
	cfg.Phonetic = query.PhoneticConfig{MinConfidence: 0.6, MaxCandidates: 1}

	s := NewPhoneticCorrection(m)
	qc := withVariants("快滴单号", "trak order")
	require.True(t, s.IsApplicable(qc, cfg))
	delta, err := s.Transform(context.Background(), qc, cfg)
	require.NoError(t, err)
	assert.Nil(t, delta.Replace)
	assert.Equal(t, []string{"快递单号", "track order"}, delta.Add)

	cfg.Phonetic.MaxCandidates = 3
	delta, err = s.Transform(context.Background(), qc, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"快递单号", "快的单号", "track order"}, delta.Add)
}

func TestPhoneticCorrection_WithConfusionDictionary(t *testing.T) {
	d := phonetic.NewDictionary()
	d.AddConfusions("*", phonetic.Confusion{Wrong: "快滴", Right: "快递", Confidence: 0.9})
	cfg := query.DefaultConfig()

	delta, err := NewPhoneticCorrection(d).Transform(context.Background(), newQC("快滴单号查询"), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"快递单号查询"}, delta.Add)
}

func TestPhoneticCorrection_NotApplicableWithoutMatcher(t *testing.T) {
	assert.False(t, NewPhoneticCorrection(nil).IsApplicable(newQC("q"), query.DefaultConfig()))
}

func TestPhoneticCorrection_Failure(t *testing.T) {
	_, err := NewPhoneticCorrection(&fakeMatcher{err: errBoom}).
		Transform(context.Background(), newQC("q"), query.DefaultConfig())
	assertExternal(t, err, servicePhonetic)
}
