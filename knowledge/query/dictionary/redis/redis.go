//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

// Package redis provides a dictionary backed by Redis.
//
// Storage layout, with prefix defaulting to "qdict":
//
//	prefix:tenant:synonyms        hash  [term -> json array of synonyms]
//	prefix:tenant:canonical       hash  [term -> canonical term]
//	prefix:tenant:stopwords       set   [term]
//	prefix:tenant:slots:channel   hash  [intent -> json SlotTemplate]
//
// Terms are stored width and case folded. Each lookup tries the request
// tenant first and then dictionary.DefaultTenant.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"trpc.group/trpc-go/trpc-query-go/internal/text"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/dictionary"
)

const (
	defaultKeyPrefix         = "qdict"
	defaultConnectionTimeout = 5 * time.Second
)

var _ dictionary.Dictionary = (*Dictionary)(nil)

// Dictionary implements dictionary.Dictionary over a redis client.
type Dictionary struct {
	client redis.UniversalClient
	prefix string
}

type options struct {
	url    string
	client redis.UniversalClient
	prefix string
}

// Option configures the redis dictionary.
type Option func(*options)

// WithURL creates the client from a redis URL such as redis://localhost:6379/0.
func WithURL(url string) Option {
	return func(o *options) {
		o.url = url
	}
}

// WithClient uses an existing client. It takes precedence over WithURL.
func WithClient(client redis.UniversalClient) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithKeyPrefix sets the key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// New connects to redis and verifies the connection.
func New(opts ...Option) (*Dictionary, error) {
	o := options{prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	client := o.client
	if client == nil {
		if o.url == "" {
			return nil, errors.New("redis dictionary: url or client is required")
		}
		ropts, err := redis.ParseURL(o.url)
		if err != nil {
			return nil, fmt.Errorf("redis dictionary: parse url: %w", err)
		}
		client = redis.NewClient(ropts)
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectionTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis dictionary: connection test failed: %w", err)
	}
	return &Dictionary{client: client, prefix: o.prefix}, nil
}

func (d *Dictionary) key(tenant string, parts ...string) string {
	k := d.prefix + ":" + tenant
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func tenants(tenant string) []string {
	if tenant == "" || tenant == dictionary.DefaultTenant {
		return []string{dictionary.DefaultTenant}
	}
	return []string{tenant, dictionary.DefaultTenant}
}

// hget returns the first value of field found across the tenant chain.
func (d *Dictionary) hget(ctx context.Context, tenant, field string, parts ...string) (string, bool, error) {
	for _, t := range tenants(tenant) {
		v, err := d.client.HGet(ctx, d.key(t, parts...), field).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return "", false, err
		}
		return v, true, nil
	}
	return "", false, nil
}

// LookupSynonyms implements dictionary.Dictionary.
func (d *Dictionary) LookupSynonyms(ctx context.Context, term, tenant string) ([]string, error) {
	raw, ok, err := d.hget(ctx, tenant, text.Fold(term), "synonyms")
	if err != nil || !ok {
		return nil, err
	}
	var syns []string
	if err := json.Unmarshal([]byte(raw), &syns); err != nil {
		return nil, fmt.Errorf("decode synonyms of %q: %w", term, err)
	}
	return syns, nil
}

// LookupCanonicalForm implements dictionary.Dictionary.
func (d *Dictionary) LookupCanonicalForm(ctx context.Context, term, tenant string) (string, bool, error) {
	return d.hget(ctx, tenant, text.Fold(term), "canonical")
}

// IsStopword implements dictionary.Dictionary.
func (d *Dictionary) IsStopword(ctx context.Context, term, tenant string) (bool, error) {
	folded := text.Fold(term)
	for _, t := range tenants(tenant) {
		ok, err := d.client.SIsMember(ctx, d.key(t, "stopwords"), folded).Result()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// GetSlotTemplate implements dictionary.Dictionary.
func (d *Dictionary) GetSlotTemplate(
	ctx context.Context, intentCode, tenant, channel string,
) (*dictionary.SlotTemplate, error) {
	for _, t := range tenants(tenant) {
		for _, ch := range []string{channel, dictionary.AnyChannel} {
			if ch == "" {
				continue
			}
			raw, err := d.client.HGet(ctx, d.key(t, "slots", ch), intentCode).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return nil, err
			}
			var tpl dictionary.SlotTemplate
			if err := json.Unmarshal([]byte(raw), &tpl); err != nil {
				return nil, fmt.Errorf("decode slot template %q: %w", intentCode, err)
			}
			return &tpl, nil
		}
	}
	return nil, dictionary.ErrNotFound
}

// Import writes the entries of one tenant, replacing existing values.
func (d *Dictionary) Import(ctx context.Context, tenant string, e dictionary.Entries) error {
	pipe := d.client.TxPipeline()
	for term, syns := range e.Synonyms {
		raw, err := json.Marshal(syns)
		if err != nil {
			return err
		}
		pipe.HSet(ctx, d.key(tenant, "synonyms"), text.Fold(term), raw)
	}
	for term, canonical := range e.Canonical {
		pipe.HSet(ctx, d.key(tenant, "canonical"), text.Fold(term), canonical)
	}
	for _, w := range e.Stopwords {
		pipe.SAdd(ctx, d.key(tenant, "stopwords"), text.Fold(w))
	}
	for _, tpl := range e.SlotTemplates {
		raw, err := json.Marshal(tpl)
		if err != nil {
			return err
		}
		ch := tpl.Channel
		if ch == "" {
			ch = dictionary.AnyChannel
		}
		pipe.HSet(ctx, d.key(tenant, "slots", ch), tpl.Intent, raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("import dictionary for tenant %s: %w", tenant, err)
	}
	return nil
}
