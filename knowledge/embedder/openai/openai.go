//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

// Package openai provides an embedder for OpenAI compatible embedding APIs.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"trpc.group/trpc-go/trpc-query-go/knowledge/embedder"
	"trpc.group/trpc-go/trpc-query-go/log"
)

var _ embedder.Embedder = (*Embedder)(nil)

const (
	// DefaultModel is the default embedding model.
	DefaultModel = "text-embedding-3-small"
	// DefaultDimensions is the vector length of DefaultModel.
	DefaultDimensions = 1536
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 2

	textEmbedding3Prefix = "text-embedding-3"
	tracerName           = "trpc.group/trpc-go/trpc-query-go/knowledge/embedder/openai"
)

var (
	errEmptyText      = errors.New("text cannot be empty")
	errEmptyEmbedding = errors.New("empty embedding in response")
)

var defaultRetryBackoff = []time.Duration{
	100 * time.Millisecond,
	200 * time.Millisecond,
	400 * time.Millisecond,
}

// Embedder calls the embeddings endpoint of an OpenAI compatible API.
type Embedder struct {
	client         openai.Client
	model          string
	dimensions     int
	apiKey         string
	baseURL        string
	requestOptions []option.RequestOption
	maxRetries     int
	retryBackoff   []time.Duration
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithModel sets the embedding model.
func WithModel(model string) Option {
	return func(e *Embedder) {
		e.model = model
	}
}

// WithDimensions sets the vector length. Only text-embedding-3 models honour it.
func WithDimensions(dimensions int) Option {
	return func(e *Embedder) {
		e.dimensions = dimensions
	}
}

// WithAPIKey sets the API key. OPENAI_API_KEY is used when unset.
func WithAPIKey(apiKey string) Option {
	return func(e *Embedder) {
		e.apiKey = apiKey
	}
}

// WithBaseURL points the client at an OpenAI compatible endpoint.
func WithBaseURL(baseURL string) Option {
	return func(e *Embedder) {
		e.baseURL = baseURL
	}
}

// WithRequestOptions appends request options passed on every call.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(e *Embedder) {
		e.requestOptions = append(e.requestOptions, opts...)
	}
}

// WithMaxRetries sets the number of retries. Negative values mean none.
func WithMaxRetries(n int) Option {
	return func(e *Embedder) {
		e.maxRetries = max(n, 0)
	}
}

// WithRetryBackoff sets the wait before each retry. The last value is reused
// when there are more retries than entries.
func WithRetryBackoff(backoff []time.Duration) Option {
	return func(e *Embedder) {
		e.retryBackoff = backoff
	}
}

// New creates an Embedder.
func New(opts ...Option) *Embedder {
	e := &Embedder{
		model:        DefaultModel,
		dimensions:   DefaultDimensions,
		maxRetries:   DefaultMaxRetries,
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}
	// Retries are handled here so the backoff is observable in logs.
	clientOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if e.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(e.apiKey))
	}
	if e.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(e.baseURL))
	}
	e.client = openai.NewClient(clientOpts...)
	return e
}

// GetDimensions implements embedder.Embedder.
func (e *Embedder) GetDimensions() int {
	return e.dimensions
}

// GetEmbedding implements embedder.Embedder.
func (e *Embedder) GetEmbedding(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errEmptyText
	}
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		vec, err := e.embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if attempt == e.maxRetries || ctx.Err() != nil {
			break
		}
		wait := e.backoff(attempt)
		log.DebugfContext(ctx, "embedding request failed, retry %d/%d in %v: %v",
			attempt+1, e.maxRetries, wait, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("create embedding: %w", lastErr)
}

func (e *Embedder) backoff(attempt int) time.Duration {
	if len(e.retryBackoff) == 0 {
		return 0
	}
	return e.retryBackoff[min(attempt, len(e.retryBackoff)-1)]
}

func (e *Embedder) embed(ctx context.Context, text string) (vec []float64, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "embeddings "+e.model)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	req := openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if strings.HasPrefix(e.model, textEmbedding3Prefix) {
		req.Dimensions = openai.Int(int64(e.dimensions))
	}
	rsp, err := e.client.Embeddings.New(ctx, req, e.requestOptions...)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("gen_ai.usage.input_tokens", rsp.Usage.PromptTokens))
	if len(rsp.Data) == 0 || len(rsp.Data[0].Embedding) == 0 {
		return nil, errEmptyEmbedding
	}
	return rsp.Data[0].Embedding, nil
}
