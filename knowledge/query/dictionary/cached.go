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
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultCacheSize = 4096
	defaultCacheTTL  = 5 * time.Minute
)

type canonical struct {
	term string
	ok   bool
}

// Cached memoises a remote Dictionary in a TTL bounded LRU. Misses, including
// ErrNotFound templates, are cached too; other errors are not.
type Cached struct {
	next  Dictionary
	cache *expirable.LRU[string, any]
}

// CacheOption configures Cached.
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	size int
	ttl  time.Duration
}

// WithCacheSize sets the number of cached entries.
func WithCacheSize(size int) CacheOption {
	return func(o *cacheOptions) {
		if size > 0 {
			o.size = size
		}
	}
}

// WithCacheTTL sets how long an entry stays valid.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(o *cacheOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// NewCached wraps next with a cache.
func NewCached(next Dictionary, opts ...CacheOption) *Cached {
	o := cacheOptions{size: defaultCacheSize, ttl: defaultCacheTTL}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cached{next: next, cache: expirable.NewLRU[string, any](o.size, nil, o.ttl)}
}

// Purge drops every cached entry.
func (c *Cached) Purge() {
	c.cache.Purge()
}

// LookupSynonyms implements Dictionary.
func (c *Cached) LookupSynonyms(ctx context.Context, term, tenant string) ([]string, error) {
	key := "syn\x00" + tenant + "\x00" + term
	if v, ok := c.cache.Get(key); ok {
		return v.([]string), nil
	}
	syns, err := c.next.LookupSynonyms(ctx, term, tenant)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, syns)
	return syns, nil
}

// LookupCanonicalForm implements Dictionary.
func (c *Cached) LookupCanonicalForm(ctx context.Context, term, tenant string) (string, bool, error) {
	key := "can\x00" + tenant + "\x00" + term
	if v, ok := c.cache.Get(key); ok {
		cv := v.(canonical)
		return cv.term, cv.ok, nil
	}
	t, ok, err := c.next.LookupCanonicalForm(ctx, term, tenant)
	if err != nil {
		return "", false, err
	}
	c.cache.Add(key, canonical{term: t, ok: ok})
	return t, ok, nil
}

// IsStopword implements Dictionary.
func (c *Cached) IsStopword(ctx context.Context, term, tenant string) (bool, error) {
	key := "stop\x00" + tenant + "\x00" + term
	if v, ok := c.cache.Get(key); ok {
		return v.(bool), nil
	}
	stop, err := c.next.IsStopword(ctx, term, tenant)
	if err != nil {
		return false, err
	}
	c.cache.Add(key, stop)
	return stop, nil
}

// GetSlotTemplate implements Dictionary.
func (c *Cached) GetSlotTemplate(ctx context.Context, intentCode, tenant, channel string) (*SlotTemplate, error) {
	key := "slot\x00" + tenant + "\x00" + channel + "\x00" + intentCode
	if v, ok := c.cache.Get(key); ok {
		if v == nil {
			return nil, ErrNotFound
		}
		return v.(*SlotTemplate), nil
	}
	tpl, err := c.next.GetSlotTemplate(ctx, intentCode, tenant, channel)
	switch {
	case errors.Is(err, ErrNotFound):
		c.cache.Add(key, nil)
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	}
	c.cache.Add(key, tpl)
	return tpl, nil
}
