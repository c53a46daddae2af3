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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDict struct {
	Dictionary
	calls atomic.Int32
	fail  atomic.Bool
}

func (c *countingDict) LookupSynonyms(ctx context.Context, term, tenant string) ([]string, error) {
	c.calls.Add(1)
	if c.fail.Load() {
		return nil, errors.New("unavailable")
	}
	return c.Dictionary.LookupSynonyms(ctx, term, tenant)
}

func (c *countingDict) GetSlotTemplate(ctx context.Context, intent, tenant, channel string) (*SlotTemplate, error) {
	c.calls.Add(1)
	return c.Dictionary.GetSlotTemplate(ctx, intent, tenant, channel)
}

func TestCachedMemoises(t *testing.T) {
	static, err := ParseFile([]byte(sampleYAML))
	require.NoError(t, err)
	next := &countingDict{Dictionary: static}
	c := NewCached(next, WithCacheSize(16), WithCacheTTL(time.Minute))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			syns, err := c.LookupSynonyms(ctx, "退货", "shop")
			assert.NoError(t, err)
			assert.Equal(t, []string{"七天无理由"}, syns)
		}()
	}
	wg.Wait()
	before := next.calls.Load()
	_, _ = c.LookupSynonyms(ctx, "退货", "shop")
	assert.Equal(t, before, next.calls.Load())

	_, err = c.GetSlotTemplate(ctx, "refund", "shop", "app")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.GetSlotTemplate(ctx, "refund", "shop", "app")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, before+1, next.calls.Load())

	stop, err := c.IsStopword(ctx, "的", "shop")
	require.NoError(t, err)
	assert.True(t, stop)
	term, ok, err := c.LookupCanonicalForm(ctx, "快递单号", "shop")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "运单号", term)
	term, ok, _ = c.LookupCanonicalForm(ctx, "快递单号", "shop")
	assert.True(t, ok)
	assert.Equal(t, "运单号", term)
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	next := &countingDict{Dictionary: Noop{}}
	next.fail.Store(true)
	c := NewCached(next)
	ctx := context.Background()

	_, err := c.LookupSynonyms(ctx, "a", "t")
	require.Error(t, err)
	next.fail.Store(false)
	_, err = c.LookupSynonyms(ctx, "a", "t")
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load())

	c.Purge()
	_, _ = c.LookupSynonyms(ctx, "a", "t")
	assert.Equal(t, int32(3), next.calls.Load())
}
