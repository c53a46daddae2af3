//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package query

import "context"

// Stage names in pipeline order.
const (
	StageNormalization      = "normalization"
	StagePhoneticCorrection = "phonetic_correction"
	StagePrefixCompletion   = "prefix_completion"
	StageSynonymRecall      = "synonym_recall"
	StageSemanticAlignment  = "semantic_alignment"
	StageIntentExtraction   = "intent_extraction"
	StageSlotFilling        = "slot_filling"
	StageRetrievalRewrite   = "retrieval_rewrite"
	StageExpansion          = "expansion"
	StageExpansionStrategy  = "expansion_strategy"
)

// StageNames lists every stage in execution order.
var StageNames = []string{
	StageNormalization,
	StagePhoneticCorrection,
	StagePrefixCompletion,
	StageSynonymRecall,
	StageSemanticAlignment,
	StageIntentExtraction,
	StageSlotFilling,
	StageRetrievalRewrite,
	StageExpansion,
	StageExpansionStrategy,
}

// Stage is one named transformation step.
//
// Transform must not mutate qc. It returns a Delta describing the variants to
// add or replace and the context fields the stage owns; the orchestrator
// commits it only when Transform returns without error.
type Stage interface {
	// Name returns the stage name used in config and diagnostics.
	Name() string
	// IsApplicable reports whether the stage should run for qc.
	IsApplicable(qc *Context, cfg *Config) bool
	// Transform computes the stage result.
	Transform(ctx context.Context, qc *Context, cfg *Config) (*Delta, error)
}

// Delta is the atomic result of a stage.
type Delta struct {
	// Replace, when non-nil, replaces every variant.
	Replace []string
	// Add lists variants appended after Replace.
	Add []string

	Intent           *Intent
	Slots            map[string]Slot
	Clarifications   []string
	RetrievalBlocked *bool
	Completeness     *float64
	Strategy         *StrategyHint
	Usage            *Usage
}

// Usage is the token consumption of a model backed stage.
type Usage struct {
	ModelID      string
	InputTokens  int
	OutputTokens int
}
