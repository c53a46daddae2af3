//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"trpc.group/trpc-go/trpc-query-go/knowledge/embedder"
	openaiembedder "trpc.group/trpc-go/trpc-query-go/knowledge/embedder/openai"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/dictionary"
	redisdict "trpc.group/trpc-go/trpc-query-go/knowledge/query/dictionary/redis"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/metric"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/pipeline"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/synonym"
	"trpc.group/trpc-go/trpc-query-go/log"
	"trpc.group/trpc-go/trpc-query-go/model"
	"trpc.group/trpc-go/trpc-query-go/model/openai"
	"trpc.group/trpc-go/trpc-query-go/model/provider"
	"trpc.group/trpc-go/trpc-query-go/telemetry"
)

// dictionaryCacheTTL bounds how stale a cached dictionary answer may be.
const dictionaryCacheTTL = 5 * time.Minute

// app is everything a command needs to run queries.
type app struct {
	pipeline *pipeline.Pipeline
	cfg      *query.Config
	registry *prometheus.Registry
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp wires config, ports and collectors from the flags.
func buildApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg := query.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = query.LoadConfig(opts.configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ValidateStages(); err != nil {
		// The pipeline still runs; failing stages follow the fallback policy.
		log.Warnf("pipeline config: %v", err)
	}

	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	deps := pipeline.Deps{}

	dict, err := loadDictionary(opts)
	if err != nil {
		return nil, err
	}
	deps.Dictionary = dict

	res := &resources{}
	if opts.resourcesPath != "" {
		if res, err = loadResources(opts.resourcesPath); err != nil {
			return nil, err
		}
	}
	models, embedders := openAIProviders(cfg, opts)
	if len(res.Models) > 0 {
		// Declared models replace the ones derived from the config.
		if models, err = provider.BuildRegistry(res.Models); err != nil {
			return nil, err
		}
	}
	deps.Models = models
	deps.Embedders = embedders

	if opts.resourcesPath != "" {
		deps.Phonetic = res.phonetic()
		deps.Prefix = res.trie()
		store := synonym.NewMemoryStore()
		if err := res.indexSynonyms(ctx, store, embedders, cfg.Synonym.EmbeddingModelID); err != nil {
			return nil, err
		}
		deps.Synonyms = store
	}

	if opts.otlpEndpoint != "" {
		clean, err := telemetry.Start(ctx,
			telemetry.WithEndpoint(opts.otlpEndpoint),
			telemetry.WithProtocol(opts.otlpProtocol),
			telemetry.WithServiceName("queryflow"),
		)
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := clean(); err != nil {
				log.Warnf("telemetry shutdown: %v", err)
			}
		})
	}
	collector, err := newCollector(a.registry)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, collector.Close)
	a.pipeline = pipeline.New(deps, pipeline.WithCollector(collector))
	return a, nil
}

func loadDictionary(opts *rootOptions) (dictionary.Dictionary, error) {
	switch {
	case opts.dictionaryPath != "":
		d, err := dictionary.LoadFile(opts.dictionaryPath)
		if err != nil {
			return nil, err
		}
		return d, nil
	case opts.redisURL != "":
		d, err := redisdict.New(redisdict.WithURL(opts.redisURL))
		if err != nil {
			return nil, err
		}
		return dictionary.NewCached(d, dictionary.WithCacheTTL(dictionaryCacheTTL)), nil
	default:
		return dictionary.Noop{}, nil
	}
}

// openAIProviders registers an OpenAI client for every model and embedding
// model id the config refers to.
func openAIProviders(cfg *query.Config, opts *rootOptions) (*model.Registry, *embedder.Registry) {
	models := model.NewRegistry()
	var modelOpts []openai.Option
	var embedOpts []openaiembedder.Option
	if opts.openAIBaseURL != "" {
		modelOpts = append(modelOpts, openai.WithBaseURL(opts.openAIBaseURL))
		embedOpts = append(embedOpts, openaiembedder.WithBaseURL(opts.openAIBaseURL))
	}
	if opts.openAIAPIKey != "" {
		modelOpts = append(modelOpts, openai.WithAPIKey(opts.openAIAPIKey))
		embedOpts = append(embedOpts, openaiembedder.WithAPIKey(opts.openAIAPIKey))
	}
	for _, id := range []string{cfg.Intent.ModelID, cfg.SlotFilling.ModelID, cfg.Expanding.ModelID} {
		if id != "" {
			models.Register(id, openai.New(id, modelOpts...))
		}
	}
	embedders := embedder.NewRegistry()
	for _, id := range []string{cfg.Synonym.EmbeddingModelID, cfg.DedupEmbeddingModelID} {
		if id != "" {
			embedders.Register(id, openaiembedder.New(append(embedOpts, openaiembedder.WithModel(id))...))
		}
	}
	return models, embedders
}

// newCollector reports to OpenTelemetry, Prometheus and the log without
// blocking the pipeline.
func newCollector(reg prometheus.Registerer) (*metric.Async, error) {
	otelCollector, err := metric.NewOTel(otel.GetMeterProvider())
	if err != nil {
		return nil, fmt.Errorf("otel collector: %w", err)
	}
	promCollector, err := metric.NewPrometheus(reg)
	if err != nil {
		return nil, fmt.Errorf("prometheus collector: %w", err)
	}
	return metric.NewAsync(metric.NewMulti(otelCollector, promCollector, metric.Log{})), nil
}
