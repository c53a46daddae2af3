//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

// Package embedder defines the text embedding port and a registry that
// resolves embedding model ids to embedders.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownModel is returned when no embedder is registered for a model id.
var ErrUnknownModel = errors.New("embedder: unknown model")

// Embedder turns text into a dense vector.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// GetEmbedding returns the embedding of text.
	GetEmbedding(ctx context.Context, text string) ([]float64, error)
	// GetDimensions returns the vector length.
	GetDimensions() int
}

// Provider resolves an embedding model id.
type Provider interface {
	Embedder(modelID string) (Embedder, error)
}

// Registry is a Provider backed by a map. The zero value is ready to use.
type Registry struct {
	mu        sync.RWMutex
	embedders map[string]Embedder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register binds modelID to e, replacing any previous binding.
func (r *Registry) Register(modelID string, e Embedder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.embedders == nil {
		r.embedders = make(map[string]Embedder)
	}
	r.embedders[modelID] = e
}

// Embedder implements Provider.
func (r *Registry) Embedder(modelID string) (Embedder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.embedders[modelID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, modelID)
	}
	return e, nil
}

// Models returns the registered model ids, sorted.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.embedders))
	for id := range r.embedders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
