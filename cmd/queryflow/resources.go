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
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"trpc.group/trpc-go/trpc-query-go/knowledge/embedder"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/phonetic"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/prefix"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/synonym"
	"trpc.group/trpc-go/trpc-query-go/model/provider"
)

// resources is the layout of the --resources file. Tenant "*" is shared by
// every tenant.
type resources struct {
	Models  []provider.Spec            `yaml:"models"`
	Tenants map[string]tenantResources `yaml:"tenants"`
}

type tenantResources struct {
	Confusions  []phonetic.Confusion `yaml:"confusions"`
	Vocabulary  []string             `yaml:"vocabulary"`
	Completions []completion         `yaml:"completions"`
	Synonyms    []synonym.Entry      `yaml:"synonyms"`
}

type completion struct {
	Term    string  `yaml:"term"`
	Weight  float64 `yaml:"weight"`
	Channel string  `yaml:"channel"`
}

func loadResources(path string) (*resources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resources: %w", err)
	}
	var r resources
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse resources: %w", err)
	}
	return &r, nil
}

func (r *resources) phonetic() *phonetic.Dictionary {
	d := phonetic.NewDictionary()
	for tenant, t := range r.Tenants {
		d.AddConfusions(tenant, t.Confusions...)
		d.AddVocabulary(tenant, t.Vocabulary...)
	}
	return d
}

func (r *resources) trie() *prefix.Trie {
	trie := prefix.NewTrie()
	for tenant, t := range r.Tenants {
		for _, c := range t.Completions {
			channel := c.Channel
			if channel == "" {
				channel = prefix.Any
			}
			trie.Add(tenant, channel, c.Term, c.Weight)
		}
	}
	return trie
}

// indexSynonyms embeds every synonym entry with the configured model.
func (r *resources) indexSynonyms(
	ctx context.Context, store *synonym.MemoryStore, embedders embedder.Provider, modelID string,
) error {
	var e embedder.Embedder
	for tenant, t := range r.Tenants {
		if len(t.Synonyms) == 0 {
			continue
		}
		if e == nil {
			if modelID == "" {
				return errors.New("synonym entries need synonym.embeddingModelId")
			}
			var err error
			if e, err = embedders.Embedder(modelID); err != nil {
				return err
			}
		}
		if err := store.Index(ctx, e, tenant, t.Synonyms...); err != nil {
			return err
		}
	}
	return nil
}
