//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

// Package synonym stores embedded synonym entries and finds the ones nearest
// to a query embedding.
package synonym

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"trpc.group/trpc-go/trpc-query-go/knowledge/embedder"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
)

// AnyTenant holds entries visible to every tenant.
const AnyTenant = "*"

// Entry is one synonym. When Phrase is set the entry rewrites occurrences
// of Phrase into Text; otherwise Text is a whole query paraphrase.
type Entry struct {
	Phrase string    `yaml:"phrase" json:"phrase,omitempty"`
	Text   string    `yaml:"text" json:"text"`
	Vector []float64 `yaml:"-" json:"-"`
}

// Match is an entry with its similarity to the searched vector.
type Match struct {
	Entry
	Score float64
}

// Store finds synonym entries near a vector. Implementations must be safe
// for concurrent use.
type Store interface {
	Search(ctx context.Context, vector []float64, tenant string, topK int, threshold float64) ([]Match, error)
}

// MemoryStore is a brute force Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]Entry)}
}

// Add stores entries that already carry vectors.
func (s *MemoryStore) Add(tenant string, entries ...Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[tenant] = append(s.entries[tenant], entries...)
}

// Index embeds each entry with e and stores it. The phrase is embedded when
// present, the text otherwise.
func (s *MemoryStore) Index(ctx context.Context, e embedder.Embedder, tenant string, entries ...Entry) error {
	indexed := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		key := entry.Phrase
		if key == "" {
			key = entry.Text
		}
		vec, err := e.GetEmbedding(ctx, key)
		if err != nil {
			return fmt.Errorf("embed synonym %q: %w", key, err)
		}
		entry.Vector = vec
		indexed = append(indexed, entry)
	}
	s.Add(tenant, indexed...)
	return nil
}

// Search implements Store. Matches are ordered by score, then by text.
func (s *MemoryStore) Search(
	_ context.Context, vector []float64, tenant string, topK int, threshold float64,
) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenants := []string{tenant}
	if tenant != AnyTenant {
		tenants = append(tenants, AnyTenant)
	}
	var matches []Match
	for _, t := range tenants {
		for _, e := range s.entries[t] {
			if score := query.Cosine(vector, e.Vector); score >= threshold {
				matches = append(matches, Match{Entry: e, Score: score})
			}
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Text < matches[j].Text
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}
