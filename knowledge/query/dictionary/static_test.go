//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package dictionary

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
tenants:
  "*":
    synonyms:
      退货: [退款, 退换货]
    canonical:
      快递单号: 运单号
    stopwords: [的, 请问, The]
    slotTemplates:
      - intent: order_tracking
        slots:
          - name: order_id
            required: true
            pattern: '[A-Za-z]{2,4}\d{3,}'
            question: 请提供您的订单号
  shop:
    synonyms:
      退货: [七天无理由]
    slotTemplates:
      - intent: order_tracking
        channel: wechat
        slots:
          - name: order_id
            required: true
          - name: phone
`

func TestStatic(t *testing.T) {
	d, err := ParseFile([]byte(sampleYAML))
	require.NoError(t, err)
	ctx := context.Background()

	syns, err := d.LookupSynonyms(ctx, "退货", "other")
	require.NoError(t, err)
	assert.Equal(t, []string{"退款", "退换货"}, syns)
	syns, _ = d.LookupSynonyms(ctx, "退货", "shop")
	assert.Equal(t, []string{"七天无理由"}, syns)
	syns, _ = d.LookupSynonyms(ctx, "missing", "shop")
	assert.Empty(t, syns)

	c, ok, err := d.LookupCanonicalForm(ctx, "快递单号", "shop")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "运单号", c)

	stop, _ := d.IsStopword(ctx, "the", "any")
	assert.True(t, stop)
	stop, _ = d.IsStopword(ctx, "退货", "any")
	assert.False(t, stop)

	tpl, err := d.GetSlotTemplate(ctx, "order_tracking", "shop", "wechat")
	require.NoError(t, err)
	assert.Len(t, tpl.Slots, 2)
	assert.Len(t, tpl.Required(), 1)

	tpl, err = d.GetSlotTemplate(ctx, "order_tracking", "shop", "app")
	require.NoError(t, err)
	assert.Equal(t, "请提供您的订单号", tpl.Slots[0].Question)

	_, err = d.GetSlotTemplate(ctx, "refund", "shop", "app")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dict.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))
	d, err := LoadFile(path)
	require.NoError(t, err)
	stop, _ := d.IsStopword(context.Background(), "的", "")
	assert.True(t, stop)

	_, err = LoadFile(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
	_, err = ParseFile([]byte("tenants: ["))
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	var d Dictionary = Noop{}
	ctx := context.Background()
	syns, err := d.LookupSynonyms(ctx, "a", "t")
	assert.NoError(t, err)
	assert.Nil(t, syns)
	_, ok, _ := d.LookupCanonicalForm(ctx, "a", "t")
	assert.False(t, ok)
	_, err = d.GetSlotTemplate(ctx, "i", "t", "c")
	assert.ErrorIs(t, err, ErrNotFound)
}
