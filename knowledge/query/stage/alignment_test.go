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

func TestSemanticAlignment_Transform(t *testing.T) {
	dict := staticDict(dictionary.Entries{Canonical: map[string]string{
		"快递单号":   "运单号",
		"退钱":     "退款",
		"refund": "refund request",
	}})
	cfg := query.DefaultConfig()

	qc := withVariants("快递单号查询", "怎么退钱", "Refund status", "你好")
	delta, err := NewSemanticAlignment(dict).Transform(context.Background(), qc, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"运单号查询", "怎么退款", "refund request status", "你好"}, delta.Replace)
}

func TestSemanticAlignment_MaxTermLength(t *testing.T) {
	dict := staticDict(dictionary.Entries{Canonical: map[string]string{"快递单号": "运单号"}})
	cfg := query.DefaultConfig()
	cfg.Alignment.MaxTermLength = 2

	delta, err := NewSemanticAlignment(dict).Transform(context.Background(), newQC("快递单号查询"), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"快递单号查询"}, delta.Replace)
}

func TestSemanticAlignment_Failure(t *testing.T) {
	_, err := NewSemanticAlignment(failingDictionary{}).
		Transform(context.Background(), newQC("退钱"), query.DefaultConfig())
	assertExternal(t, err, serviceDictionary)
}
