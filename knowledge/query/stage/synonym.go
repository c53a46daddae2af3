//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package stage

import (
	"context"
	"strings"

	"trpc.group/trpc-go/trpc-query-go/knowledge/embedder"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/dictionary"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/synonym"
)

// synonymTermMaxLen is the longest Han dictionary term tried, in runes.
const synonymTermMaxLen = 6

// SynonymRecall adds synonym variants of every variant. Variants come from
// the embedding synonym store first; curated dictionary synonyms fill the
// remaining topK slots.
type SynonymRecall struct {
	embedders embedder.Provider
	store     synonym.Store
	dict      dictionary.Dictionary
}

// NewSynonymRecall creates the synonym recall stage. Without embedders or a
// store only dictionary synonyms are used.
func NewSynonymRecall(embedders embedder.Provider, store synonym.Store, dict dictionary.Dictionary) *SynonymRecall {
	return &SynonymRecall{embedders: embedders, store: store, dict: orNoop(dict)}
}

// Name implements query.Stage.
func (s *SynonymRecall) Name() string { return query.StageSynonymRecall }

// IsApplicable implements query.Stage.
func (s *SynonymRecall) IsApplicable(*query.Context, *query.Config) bool { return true }

// Transform implements query.Stage.
func (s *SynonymRecall) Transform(ctx context.Context, qc *query.Context, cfg *query.Config) (*query.Delta, error) {
	c := cfg.Synonym
	var emb embedder.Embedder
	if c.EmbeddingModelID != "" && s.embedders != nil && s.store != nil {
		e, err := s.embedders.Embedder(c.EmbeddingModelID)
		if err != nil {
			return nil, external(serviceEmbedder, "resolve", err)
		}
		emb = e
	}

	var add []string
	for _, q := range qc.Queries() {
		seen := map[string]bool{q: true}
		found := 0
		take := func(v string) {
			v = strings.TrimSpace(v)
			if v == "" || seen[v] || found >= c.TopK {
				return
			}
			seen[v] = true
			add = append(add, v)
			found++
		}
		if emb != nil {
			vec, err := emb.GetEmbedding(ctx, q)
			if err != nil {
				return nil, external(serviceEmbedder, "embed", err)
			}
			matches, err := s.store.Search(ctx, vec, qc.Scope.Tenant, c.TopK, c.SimThreshold)
			if err != nil {
				return nil, external(serviceSynonym, "search", err)
			}
			for _, m := range matches {
				take(substitute(q, m.Entry))
			}
		}
		if found < c.TopK {
			if err := s.dictionarySynonyms(ctx, q, qc.Scope.Tenant, take); err != nil {
				return nil, err
			}
		}
	}
	return &query.Delta{Add: add}, nil
}

// substitute applies a synonym entry to q. It returns "" when the entry's
// phrase does not occur in q.
func substitute(q string, e synonym.Entry) string {
	if e.Phrase == "" {
		return e.Text
	}
	if !strings.Contains(q, e.Phrase) {
		return ""
	}
	return strings.Replace(q, e.Phrase, e.Text, 1)
}

// dictionarySynonyms offers one variant per curated synonym of each term in
// q, in term order.
func (s *SynonymRecall) dictionarySynonyms(ctx context.Context, q, tenant string, take func(string)) error {
	synonyms := make(map[string][]string)
	pieces, err := scanTerms(ctx, q, synonymTermMaxLen, func(ctx context.Context, term string) (string, bool, error) {
		syns, err := s.dict.LookupSynonyms(ctx, term, tenant)
		if err != nil {
			return "", false, external(serviceDictionary, "lookup synonyms", err)
		}
		if len(syns) == 0 {
			return "", false, nil
		}
		synonyms[term] = syns
		return term, true, nil
	})
	if err != nil {
		return err
	}
	for i, p := range pieces {
		if !p.Matched {
			continue
		}
		for _, syn := range synonyms[p.Text] {
			if syn == p.Text {
				continue
			}
			variant := make([]string, 0, len(pieces))
			for j, other := range pieces {
				if j == i {
					variant = append(variant, syn)
				} else {
					variant = append(variant, other.Text)
				}
			}
			take(strings.Join(variant, ""))
		}
	}
	return nil
}
