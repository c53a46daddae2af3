//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package prefix

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrieComplete(t *testing.T) {
	tr := NewTrie()
	tr.Add(Any, Any, "退货流程", 5)
	tr.Add(Any, Any, "退货地址", 5)
	tr.Add("shop", Any, "退货运费", 9)
	tr.Add("shop", "app", "退货", 10)
	tr.Add("shop", "app", "退款进度", 3)
	tr.Add(Any, Any, "退货流程", 1)
	ctx := context.Background()

	got, err := tr.Complete(ctx, "退货", "shop", "app", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"退货运费", "退货地址", "退货流程"}, got)

	got, _ = tr.Complete(ctx, "退货", "other", "web", 10)
	assert.Equal(t, []string{"退货地址", "退货流程"}, got)

	got, _ = tr.Complete(ctx, "退", "shop", "app", 10)
	assert.Equal(t, []string{"退货", "退货运费", "退货地址", "退货流程", "退款进度"}, got)

	got, _ = tr.Complete(ctx, "", "shop", "app", 3)
	assert.Empty(t, got)
	got, _ = tr.Complete(ctx, "退货", "shop", "app", 0)
	assert.Empty(t, got)
}

func TestTrieCaseInsensitive(t *testing.T) {
	tr := NewTrie()
	tr.Add(Any, Any, "iPhone 15 Pro", 1)
	got, _ := tr.Complete(context.Background(), "IPHONE", "t", "c", 5)
	assert.Equal(t, []string{"iPhone 15 Pro"}, got)
}

func TestTrieConcurrent(t *testing.T) {
	tr := NewTrie()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tr.Add(Any, Any, "order status", 1)
		}()
		go func() {
			defer wg.Done()
			_, _ = tr.Complete(context.Background(), "order", "t", "c", 2)
		}()
	}
	wg.Wait()
	got, _ := tr.Complete(context.Background(), "order", "t", "c", 2)
	assert.Equal(t, []string{"order status"}, got)
}
