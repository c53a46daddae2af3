//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

// Package transform provides character level cleaners applied to query text
// before normalization.
package transform

import "strings"

// Transformer rewrites a piece of text.
type Transformer interface {
	Transform(s string) string
	Name() string
}

// Chain applies transformers in order.
type Chain []Transformer

// Transform implements Transformer.
func (c Chain) Transform(s string) string {
	for _, t := range c {
		s = t.Transform(s)
	}
	return s
}

// Name implements Transformer.
func (c Chain) Name() string {
	names := make([]string, 0, len(c))
	for _, t := range c {
		names = append(names, t.Name())
	}
	return "Chain(" + strings.Join(names, ",") + ")"
}

// Invisible lists zero width and byte order mark characters that users paste
// along with queries.
var Invisible = []string{"\u200b", "\u200c", "\u200d", "\u2060", "\ufeff"}

// RepeatedPunct lists punctuation that is collapsed when repeated.
var RepeatedPunct = []string{"?", "？", "!", "！", "。", ".", ",", "，", "~", "～", "、"}

// QueryCleaner returns the default cleaner chain for user queries.
func QueryCleaner() Chain {
	return Chain{NewCharFilter(Invisible...), NewCharDedup(RepeatedPunct...)}
}
