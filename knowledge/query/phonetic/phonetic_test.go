//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package phonetic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoundex(t *testing.T) {
	tests := map[string]string{
		"Robert":   "R163",
		"Rupert":   "R163",
		"Ashcraft": "A261",
		"Tymczak":  "T522",
		"Lee":      "L000",
		"refund":   "R153",
		"123":      "",
		"":         "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Soundex(in), in)
	}
}

func TestConfusionCandidates(t *testing.T) {
	d := NewDictionary()
	d.AddConfusions("*", Confusion{Wrong: "退活", Right: "退货", Confidence: 0.9})
	d.AddConfusions("shop", Confusion{Wrong: "物留", Right: "物流", Confidence: 0.7})

	got, err := d.Candidates(context.Background(), "怎么退活查物留", "shop")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Candidate{Text: "怎么退货查物留", Confidence: 0.9}, got[0])
	assert.Equal(t, Candidate{Text: "怎么退活查物流", Confidence: 0.7}, got[1])

	got, _ = d.Candidates(context.Background(), "怎么退活查物留", "other")
	require.Len(t, got, 1)
	assert.Equal(t, "怎么退货查物留", got[0].Text)
}

func TestSoundexCandidates(t *testing.T) {
	d := NewDictionary()
	d.AddVocabulary("*", "refund", "policy")

	got, err := d.Candidates(context.Background(), "refnd policy", "t")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "refund policy", got[0].Text)
	assert.InDelta(t, 1-1.0/6, got[0].Confidence, 1e-9)

	got, _ = d.Candidates(context.Background(), "refund policy", "t")
	assert.Empty(t, got)
}
