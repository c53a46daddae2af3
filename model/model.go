//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

// Package model defines the language model port used by the model backed
// query stages.
package model

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownModel is returned when a model id is not registered.
var ErrUnknownModel = errors.New("model: unknown model")

// Info describes a model.
type Info struct {
	Name string
}

// Model generates completions. The returned channel is closed after the
// final response; implementations must be safe for concurrent use.
type Model interface {
	GenerateContent(ctx context.Context, request *Request) (<-chan *Response, error)
	Info() Info
}

// Provider resolves a model id to a Model.
type Provider interface {
	Model(modelID string) (Model, error)
}

// Registry is a Provider backed by a map. The zero value is ready to use.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Model
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register binds modelID to m.
func (r *Registry) Register(modelID string, m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.models == nil {
		r.models = make(map[string]Model)
	}
	r.models[modelID] = m
}

// Model implements Provider.
func (r *Registry) Model(modelID string) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[modelID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, modelID)
	}
	return m, nil
}

// Models returns the registered ids, sorted.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.models))
	for id := range r.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Generate sends request and waits for the final response. Partial responses
// are skipped; a response carrying an API error is returned as an error.
func Generate(ctx context.Context, m Model, request *Request) (*Response, error) {
	ch, err := m.GenerateContent(ctx, request)
	if err != nil {
		return nil, err
	}
	var final *Response
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case rsp, ok := <-ch:
			if !ok {
				if final == nil {
					if err := ctx.Err(); err != nil {
						return nil, err
					}
					return nil, errors.New("model: no response")
				}
				return final, nil
			}
			if rsp == nil {
				continue
			}
			if rsp.Error != nil {
				return nil, rsp.Error
			}
			if !rsp.IsPartial {
				final = rsp
			}
		}
	}
}
