//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

// Package provider constructs model.Model instances from declarative specs.
package provider

import (
	"fmt"
	"os"
	"sync"

	"trpc.group/trpc-go/trpc-query-go/model"
	"trpc.group/trpc-go/trpc-query-go/model/openai"
)

func init() {
	Register("openai", openaiProvider)
}

// Options are the resolved construction options.
type Options struct {
	ProviderName      string
	ModelName         string
	APIKey            string
	BaseURL           string
	ChannelBufferSize *int
	ExtraFields       map[string]any
}

// Option configures Options.
type Option func(*Options)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *Options) {
		o.APIKey = key
	}
}

// WithBaseURL sets the endpoint.
func WithBaseURL(url string) Option {
	return func(o *Options) {
		o.BaseURL = url
	}
}

// WithChannelBufferSize sets the response channel buffer.
func WithChannelBufferSize(size int) Option {
	return func(o *Options) {
		o.ChannelBufferSize = &size
	}
}

// WithExtraFields adds provider specific request fields.
func WithExtraFields(fields map[string]any) Option {
	return func(o *Options) {
		o.ExtraFields = fields
	}
}

// Provider builds a model.Model instance.
type Provider func(opts *Options) (model.Model, error)

var (
	providersMu sync.RWMutex
	providers   = make(map[string]Provider)
)

// Register registers a provider by name.
func Register(name string, provider Provider) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[name] = provider
}

// Get returns the provider by name.
func Get(name string) (Provider, bool) {
	providersMu.RLock()
	defer providersMu.RUnlock()
	p, ok := providers[name]
	return p, ok
}

// Model constructs a model.Model with the given provider and model name.
func Model(providerName, modelName string, opt ...Option) (model.Model, error) {
	opts := &Options{ProviderName: providerName, ModelName: modelName}
	for _, o := range opt {
		o(opts)
	}
	p, ok := Get(providerName)
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerName)
	}
	return p(opts)
}

func openaiProvider(opts *Options) (model.Model, error) {
	var res []openai.Option
	if opts.APIKey != "" {
		res = append(res, openai.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		res = append(res, openai.WithBaseURL(opts.BaseURL))
	}
	if opts.ChannelBufferSize != nil {
		res = append(res, openai.WithChannelBufferSize(*opts.ChannelBufferSize))
	}
	if len(opts.ExtraFields) > 0 {
		res = append(res, openai.WithExtraFields(opts.ExtraFields))
	}
	return openai.New(opts.ModelName, res...), nil
}

// Spec declares one model available to the pipeline under ID.
type Spec struct {
	ID       string `yaml:"id"`
	Provider string `yaml:"provider"`
	Name     string `yaml:"name"`
	BaseURL  string `yaml:"baseUrl"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv   string         `yaml:"apiKeyEnv"`
	ExtraFields map[string]any `yaml:"extraFields"`
}

// BuildRegistry constructs every spec and registers it under its ID.
func BuildRegistry(specs []Spec) (*model.Registry, error) {
	reg := model.NewRegistry()
	for _, s := range specs {
		if s.ID == "" {
			return nil, fmt.Errorf("model spec %q: id is required", s.Name)
		}
		providerName := s.Provider
		if providerName == "" {
			providerName = "openai"
		}
		name := s.Name
		if name == "" {
			name = s.ID
		}
		opts := []Option{WithBaseURL(s.BaseURL), WithExtraFields(s.ExtraFields)}
		if s.APIKeyEnv != "" {
			opts = append(opts, WithAPIKey(os.Getenv(s.APIKeyEnv)))
		}
		m, err := Model(providerName, name, opts...)
		if err != nil {
			return nil, fmt.Errorf("model spec %s: %w", s.ID, err)
		}
		reg.Register(s.ID, m)
	}
	return reg, nil
}
