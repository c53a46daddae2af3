//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package transform

import "regexp"

// CharDedup collapses consecutive repeated characters/strings into a single occurrence.
// For example, "？？？" becomes "？", "   " becomes " ".
type CharDedup struct {
	patterns     []*regexp.Regexp
	replacements []string
}

// NewCharDedup creates a CharDedup that collapses consecutive occurrences of the specified strings.
//
// Example:
//
//	dedup := transform.NewCharDedup("？", "!")
//	// Input:  "怎么退货？？？"
//	// Output: "怎么退货？"
func NewCharDedup(charsToDedup ...string) *CharDedup {
	patterns := make([]*regexp.Regexp, 0, len(charsToDedup))
	replacements := make([]string, 0, len(charsToDedup))

	for _, char := range charsToDedup {
		if char == "" {
			continue
		}
		// Escape special regex characters and create pattern for 2+ consecutive occurrences
		escaped := regexp.QuoteMeta(char)
		patterns = append(patterns, regexp.MustCompile("("+escaped+"){2,}"))
		replacements = append(replacements, char)
	}

	return &CharDedup{
		patterns:     patterns,
		replacements: replacements,
	}
}

// Transform implements Transformer.
func (cd *CharDedup) Transform(s string) string {
	for i, pattern := range cd.patterns {
		s = pattern.ReplaceAllLiteralString(s, cd.replacements[i])
	}
	return s
}

// Name returns the name of this transformer.
func (cd *CharDedup) Name() string {
	return "CharDedup"
}
