//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package httpapi

import (
	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/pipeline"
)

// Option configures the server.
type Option func(*options)

type options struct {
	basePath       string
	maxBodyBytes   int64
	allowedOrigins []string
	pool           *pipeline.Pool
	defaultScope   query.Scope
}

// WithBasePath sets the prefix of the transform endpoint.
// Default is "/v1".
func WithBasePath(path string) Option {
	return func(o *options) {
		o.basePath = path
	}
}

// WithMaxBodyBytes limits the size of a request body.
func WithMaxBodyBytes(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBodyBytes = n
		}
	}
}

// WithAllowedOrigins sets the CORS origins. Default allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(o *options) {
		o.allowedOrigins = origins
	}
}

// WithPool runs requests on a bounded worker pool instead of the
// request goroutine.
func WithPool(p *pipeline.Pool) Option {
	return func(o *options) {
		o.pool = p
	}
}

// WithDefaultScope fills the tenant and channel of requests that omit them.
func WithDefaultScope(scope query.Scope) Option {
	return func(o *options) {
		o.defaultScope = scope
	}
}
