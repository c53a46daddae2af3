//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

// Package prefix completes short queries from a weighted term index.
package prefix

import (
	"context"
	"sort"
	"sync"

	"trpc.group/trpc-go/trpc-query-go/internal/text"
)

// Any matches every tenant or channel.
const Any = "*"

// Index completes a prefix into full queries, best first.
// Implementations must be safe for concurrent use.
type Index interface {
	Complete(ctx context.Context, prefix, tenant, channel string, limit int) ([]string, error)
}

type node struct {
	children map[rune]*node
	term     string
	weight   float64
	terminal bool
}

type scope struct {
	tenant  string
	channel string
}

// Trie is an in-memory Index keyed by tenant and channel. Entries under Any
// are visible to every tenant or channel.
type Trie struct {
	mu    sync.RWMutex
	roots map[scope]*node
}

// NewTrie returns an empty Trie.
func NewTrie() *Trie {
	return &Trie{roots: make(map[scope]*node)}
}

// Add inserts term with weight. Re-adding a term keeps the higher weight.
func (t *Trie) Add(tenant, channel, term string, weight float64) {
	if term == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	sc := scope{tenant: tenant, channel: channel}
	n := t.roots[sc]
	if n == nil {
		n = &node{}
		t.roots[sc] = n
	}
	for _, r := range text.Fold(term) {
		if n.children == nil {
			n.children = make(map[rune]*node)
		}
		child := n.children[r]
		if child == nil {
			child = &node{}
			n.children[r] = child
		}
		n = child
	}
	if !n.terminal || weight > n.weight {
		n.term, n.weight, n.terminal = term, weight, true
	}
}

func scopes(tenant, channel string) []scope {
	out := []scope{{tenant, channel}}
	if channel != Any {
		out = append(out, scope{tenant, Any})
	}
	if tenant != Any {
		out = append(out, scope{Any, channel})
		if channel != Any {
			out = append(out, scope{Any, Any})
		}
	}
	return out
}

// Complete implements Index. Terms equal to the prefix are not returned.
// Ties in weight are broken alphabetically so results are reproducible.
func (t *Trie) Complete(_ context.Context, prefix, tenant, channel string, limit int) ([]string, error) {
	folded := text.Fold(prefix)
	if folded == "" || limit <= 0 {
		return nil, nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	best := make(map[string]*node)
	for _, sc := range scopes(tenant, channel) {
		n := t.roots[sc]
		for _, r := range folded {
			if n == nil {
				break
			}
			n = n.children[r]
		}
		if n == nil {
			continue
		}
		collect(n, func(leaf *node) {
			key := text.Fold(leaf.term)
			if key == folded {
				return
			}
			if old, ok := best[key]; !ok || leaf.weight > old.weight {
				best[key] = leaf
			}
		})
	}

	leaves := make([]*node, 0, len(best))
	for _, n := range best {
		leaves = append(leaves, n)
	}
	sort.Slice(leaves, func(i, j int) bool {
		if leaves[i].weight != leaves[j].weight {
			return leaves[i].weight > leaves[j].weight
		}
		return leaves[i].term < leaves[j].term
	})
	out := make([]string, 0, min(limit, len(leaves)))
	for _, n := range leaves {
		if len(out) == limit {
			break
		}
		out = append(out, n.term)
	}
	return out, nil
}

func collect(n *node, visit func(*node)) {
	if n.terminal {
		visit(n)
	}
	for _, c := range n.children {
		collect(c, visit)
	}
}
