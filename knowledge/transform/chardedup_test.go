//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package transform_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"trpc.group/trpc-go/trpc-query-go/knowledge/transform"
)

func TestCharDedup_Transform(t *testing.T) {
	tests := []struct {
		name         string
		charsToDedup []string
		input        string
		expected     string
	}{
		{name: "Dedup spaces", charsToDedup: []string{" "}, input: "Hello   World", expected: "Hello World"},
		{name: "Dedup multiple chars", charsToDedup: []string{"\n", " "}, input: "Hello\n\n\nWorld   !", expected: "Hello\nWorld !"},
		{name: "Full width question marks", charsToDedup: []string{"？"}, input: "怎么退货？？？", expected: "怎么退货？"},
		{name: "No consecutive chars", charsToDedup: []string{" "}, input: "Hello World", expected: "Hello World"},
		{name: "Empty string param", charsToDedup: []string{""}, input: "Hello   World", expected: "Hello   World"},
		{name: "Empty input", charsToDedup: []string{" "}, input: "", expected: ""},
		{name: "Dedup regex special char $2", charsToDedup: []string{"$2"}, input: "$2$2$2", expected: "$2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dedup := transform.NewCharDedup(tt.charsToDedup...)
			assert.Equal(t, tt.expected, dedup.Transform(tt.input))
		})
	}
}

func TestCharDedup_Name(t *testing.T) {
	dedup := transform.NewCharDedup(" ")
	assert.Equal(t, "CharDedup", dedup.Name())
}
