//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package transform

import "strings"

// CharFilter removes specific characters or strings from text.
type CharFilter struct {
	replacer *strings.Replacer
}

// NewCharFilter creates a CharFilter that removes the specified characters or strings.
//
// Example:
//
//	filter := transform.NewCharFilter("\u200b", "\ufeff")
func NewCharFilter(charsToRemove ...string) *CharFilter {
	args := make([]string, 0, len(charsToRemove)*2)
	for _, char := range charsToRemove {
		if char == "" {
			continue
		}
		args = append(args, char, "")
	}
	return &CharFilter{
		replacer: strings.NewReplacer(args...),
	}
}

// Transform implements Transformer.
func (cf *CharFilter) Transform(s string) string {
	return cf.replacer.Replace(s)
}

// Name returns the name of this transformer.
func (cf *CharFilter) Name() string {
	return "CharFilter"
}
