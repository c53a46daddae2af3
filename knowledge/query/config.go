//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package query

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FallbackPolicy decides what a stage failure does to the rest of the run.
type FallbackPolicy string

// Fallback policies.
const (
	// FallbackSkipStage drops the failed stage's result and continues.
	FallbackSkipStage FallbackPolicy = "SKIP_STAGE"
	// FallbackAbort stops the run with the variants accumulated so far.
	FallbackAbort FallbackPolicy = "ABORT"
	// FallbackResetToOriginal discards derived variants and continues.
	FallbackResetToOriginal FallbackPolicy = "RESET_TO_ORIGINAL"
)

// Defaults applied by DefaultConfig.
const (
	DefaultMaxQueries     = 5
	DefaultDedupThreshold = 0.85
	DefaultStageTimeoutMs = 3000
	DefaultMaxQueryLength = 512
	DefaultExpandPrompt   = "Rewrite the search query below into {n} different reformulations " +
		"that keep its meaning. Output one reformulation per line without numbering.\nQuery: {query}"
)

// Case modes for NormalizationConfig.CaseMode.
const (
	CaseLower = "lower"
	CaseUpper = "upper"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Config is the pipeline configuration. It is read only once loaded and may
// be shared by concurrent runs.
type Config struct {
	Stages         StageToggles   `yaml:"stages" json:"stages" validate:"-"`
	MaxQueries     int            `yaml:"maxQueries" json:"maxQueries" validate:"gte=1,lte=64"`
	KeepOriginal   bool           `yaml:"keepOriginal" json:"keepOriginal"`
	DedupThreshold float64        `yaml:"dedupThreshold" json:"dedupThreshold" validate:"gt=0,lte=1"`
	FallbackPolicy FallbackPolicy `yaml:"fallbackPolicy" json:"fallbackPolicy" validate:"omitempty,oneof=SKIP_STAGE ABORT RESET_TO_ORIGINAL"`
	// StageTimeoutMs bounds every stage; zero disables the deadline.
	StageTimeoutMs int `yaml:"stageTimeoutMs" json:"stageTimeoutMs" validate:"gte=0"`
	// DedupEmbeddingModelID switches dedup to embedding cosine similarity with
	// the named embedder; empty means lexical similarity.
	DedupEmbeddingModelID string `yaml:"dedupEmbeddingModelId" json:"dedupEmbeddingModelId,omitempty"`

	Normalization NormalizationConfig `yaml:"normalization" json:"normalization" validate:"-"`
	Phonetic      PhoneticConfig      `yaml:"phonetic" json:"phonetic" validate:"-"`
	Prefix        PrefixConfig        `yaml:"prefix" json:"prefix" validate:"-"`
	Synonym       SynonymConfig       `yaml:"synonym" json:"synonym" validate:"-"`
	Alignment     AlignmentConfig     `yaml:"alignment" json:"alignment" validate:"-"`
	Intent        IntentConfig        `yaml:"intent" json:"intent" validate:"-"`
	SlotFilling   SlotFillingConfig   `yaml:"slotFilling" json:"slotFilling" validate:"-"`
	Rewrite       RewriteConfig       `yaml:"rewrite" json:"rewrite" validate:"-"`
	Expanding     ExpandingConfig     `yaml:"expanding" json:"expanding" validate:"-"`
	Strategy      StrategyConfig      `yaml:"strategy" json:"strategy" validate:"-"`

	// Pricing maps a model id to its token prices, used for cost reporting.
	Pricing map[string]Price `yaml:"pricing" json:"pricing,omitempty" validate:"-"`
}

// StageToggles holds one enable flag per stage.
type StageToggles struct {
	Normalization      bool `yaml:"normalization" json:"normalization"`
	PhoneticCorrection bool `yaml:"phoneticCorrection" json:"phoneticCorrection"`
	PrefixCompletion   bool `yaml:"prefixCompletion" json:"prefixCompletion"`
	SynonymRecall      bool `yaml:"synonymRecall" json:"synonymRecall"`
	SemanticAlignment  bool `yaml:"semanticAlignment" json:"semanticAlignment"`
	IntentExtraction   bool `yaml:"intentExtraction" json:"intentExtraction"`
	SlotFilling        bool `yaml:"slotFilling" json:"slotFilling"`
	RetrievalRewrite   bool `yaml:"retrievalRewrite" json:"retrievalRewrite"`
	Expansion          bool `yaml:"expansion" json:"expansion"`
	ExpansionStrategy  bool `yaml:"expansionStrategy" json:"expansionStrategy"`
}

// Price is the cost of one thousand tokens.
type Price struct {
	InputPer1K  float64 `yaml:"inputPer1K" json:"inputPer1K"`
	OutputPer1K float64 `yaml:"outputPer1K" json:"outputPer1K"`
}

// Cost returns the price of the given token counts.
func (p Price) Cost(in, out int) float64 {
	return float64(in)/1000*p.InputPer1K + float64(out)/1000*p.OutputPer1K
}

// StageConfig is the per stage configuration variant.
type StageConfig interface {
	Validate() error
}

// NormalizationConfig configures the normalization stage.
type NormalizationConfig struct {
	RemoveStopwords bool   `yaml:"removeStopwords" json:"removeStopwords"`
	MaxQueryLength  int    `yaml:"maxQueryLength" json:"maxQueryLength" validate:"gte=0"`
	NormalizeCase   bool   `yaml:"normalizeCase" json:"normalizeCase"`
	CaseMode        string `yaml:"caseMode" json:"caseMode" validate:"omitempty,oneof=lower upper"`
	CleanWhitespace bool   `yaml:"cleanWhitespace" json:"cleanWhitespace"`
}

// PhoneticConfig configures phonetic correction.
type PhoneticConfig struct {
	MinConfidence float64 `yaml:"minConfidence" json:"minConfidence" validate:"gte=0,lte=1"`
	MaxCandidates int     `yaml:"maxCandidates" json:"maxCandidates" validate:"gte=0"`
}

// PrefixConfig configures prefix completion.
type PrefixConfig struct {
	MinPrefixLength  int  `yaml:"minPrefixLength" json:"minPrefixLength" validate:"gte=1"`
	MaxCandidates    int  `yaml:"maxCandidates" json:"maxCandidates" validate:"gte=0"`
	OnlyShortQuery   bool `yaml:"onlyShortQuery" json:"onlyShortQuery"`
	ShortQueryMaxLen int  `yaml:"shortQueryMaxLen" json:"shortQueryMaxLen" validate:"gte=0"`
}

// SynonymConfig configures synonym recall.
type SynonymConfig struct {
	// EmbeddingModelID selects the embedder; empty means dictionary synonyms only.
	EmbeddingModelID string  `yaml:"embeddingModelId" json:"embeddingModelId"`
	TopK             int     `yaml:"topK" json:"topK" validate:"gte=1"`
	SimThreshold     float64 `yaml:"simThreshold" json:"simThreshold" validate:"gte=0,lte=1"`
}

// AlignmentConfig configures semantic alignment.
type AlignmentConfig struct {
	// MaxTermLength is the longest dictionary term, in runes, tried when matching.
	MaxTermLength int `yaml:"maxTermLength" json:"maxTermLength" validate:"gte=1,lte=16"`
}

// IntentDefinition describes one intent the model may choose.
type IntentDefinition struct {
	Code        string `yaml:"code" json:"code" validate:"required"`
	Description string `yaml:"description" json:"description"`
}

// IntentConfig configures intent extraction.
type IntentConfig struct {
	ModelID        string             `yaml:"modelId" json:"modelId" validate:"required"`
	TimeoutMs      int                `yaml:"timeoutMs" json:"timeoutMs" validate:"gte=0"`
	MinConfidence  float64            `yaml:"minConfidence" json:"minConfidence" validate:"gte=0,lte=1"`
	Intents        []IntentDefinition `yaml:"intents" json:"intents,omitempty" validate:"dive"`
	PromptTemplate string             `yaml:"promptTemplate" json:"promptTemplate,omitempty"`
}

// SlotFillingConfig configures slot filling.
type SlotFillingConfig struct {
	MaxClarificationAttempts      int     `yaml:"maxClarificationAttempts" json:"maxClarificationAttempts" validate:"gte=1"`
	CompletenessThreshold         float64 `yaml:"completenessThreshold" json:"completenessThreshold" validate:"gte=0,lte=1"`
	BlockRetrievalOnMissing       bool    `yaml:"blockRetrievalOnMissing" json:"blockRetrievalOnMissing"`
	EnableSmartQuestionGeneration bool    `yaml:"enableSmartQuestionGeneration" json:"enableSmartQuestionGeneration"`
	// TimeoutMs bounds each external validation call.
	TimeoutMs int `yaml:"timeoutMs" json:"timeoutMs" validate:"gte=0"`
	// ModelID is used for smart question generation.
	ModelID string `yaml:"modelId" json:"modelId" validate:"required_if=EnableSmartQuestionGeneration true"`
	// HistoryTurns is how many recent turns are searched for missing values.
	HistoryTurns int `yaml:"historyTurns" json:"historyTurns" validate:"gte=0"`
}

// RewriteConfig configures retrieval rewrite.
type RewriteConfig struct {
	FillerWords  []string `yaml:"fillerWords" json:"fillerWords,omitempty"`
	Pronouns     []string `yaml:"pronouns" json:"pronouns,omitempty"`
	HistoryTurns int      `yaml:"historyTurns" json:"historyTurns" validate:"gte=0"`
}

// ExpandingConfig configures expansion.
type ExpandingConfig struct {
	N              int     `yaml:"n" json:"n" validate:"gte=1,lte=10"`
	Temperature    float64 `yaml:"temperature" json:"temperature" validate:"gte=0,lte=2"`
	PromptTemplate string  `yaml:"promptTemplate" json:"promptTemplate"`
	ModelID        string  `yaml:"modelId" json:"modelId" validate:"required"`
	TimeoutMs      int     `yaml:"timeoutMs" json:"timeoutMs" validate:"gte=0"`
}

// StrategyConfig configures expansion strategy selection.
type StrategyConfig struct {
	// IntentModes forces a mode for an intent code.
	IntentModes map[string]StrategyMode `yaml:"intentModes" json:"intentModes,omitempty" validate:"dive,oneof=keyword semantic hybrid"`
	// DefaultMode is used when no signal fires.
	DefaultMode StrategyMode `yaml:"defaultMode" json:"defaultMode" validate:"omitempty,oneof=keyword semantic hybrid"`
	// MaxTermLength is the longest dictionary term, in runes, counted as a domain term.
	MaxTermLength int `yaml:"maxTermLength" json:"maxTermLength" validate:"gte=1,lte=16"`
}

// Validate implements StageConfig.
func (c *NormalizationConfig) Validate() error {
	return structErrors("normalization", c)
}

// Validate implements StageConfig.
func (c *PhoneticConfig) Validate() error {
	return structErrors("phonetic", c)
}

// Validate implements StageConfig.
func (c *PrefixConfig) Validate() error {
	errs := collect("prefix", validate.Struct(c))
	if c.OnlyShortQuery && c.ShortQueryMaxLen < c.MinPrefixLength {
		errs = append(errs, ValidationError{
			Field:   "prefix.shortQueryMaxLen",
			Message: "must not be smaller than minPrefixLength",
		})
	}
	return errs.orNil()
}

// Validate implements StageConfig.
func (c *SynonymConfig) Validate() error {
	return structErrors("synonym", c)
}

// Validate implements StageConfig.
func (c *AlignmentConfig) Validate() error {
	return structErrors("alignment", c)
}

// Validate implements StageConfig.
func (c *IntentConfig) Validate() error {
	return structErrors("intent", c)
}

// Validate implements StageConfig.
func (c *SlotFillingConfig) Validate() error {
	return structErrors("slotFilling", c)
}

// Validate implements StageConfig.
func (c *RewriteConfig) Validate() error {
	return structErrors("rewrite", c)
}

// Validate implements StageConfig.
func (c *ExpandingConfig) Validate() error {
	errs := collect("expanding", validate.Struct(c))
	if c.PromptTemplate != "" && !strings.Contains(c.PromptTemplate, "{query}") {
		errs = append(errs, ValidationError{
			Field:   "expanding.promptTemplate",
			Message: "must contain the {query} placeholder",
		})
	}
	return errs.orNil()
}

// Validate implements StageConfig.
func (c *StrategyConfig) Validate() error {
	return structErrors("strategy", c)
}

// StageConfig returns the configuration variant owned by the named stage,
// or nil when the stage has no configuration.
func (c *Config) StageConfig(stage string) StageConfig {
	switch stage {
	case StageNormalization:
		return &c.Normalization
	case StagePhoneticCorrection:
		return &c.Phonetic
	case StagePrefixCompletion:
		return &c.Prefix
	case StageSynonymRecall:
		return &c.Synonym
	case StageSemanticAlignment:
		return &c.Alignment
	case StageIntentExtraction:
		return &c.Intent
	case StageSlotFilling:
		return &c.SlotFilling
	case StageRetrievalRewrite:
		return &c.Rewrite
	case StageExpansion:
		return &c.Expanding
	case StageExpansionStrategy:
		return &c.Strategy
	default:
		return nil
	}
}

// Enabled reports whether the named stage is switched on.
func (c *Config) Enabled(stage string) bool {
	t := c.Stages
	switch stage {
	case StageNormalization:
		return t.Normalization
	case StagePhoneticCorrection:
		return t.PhoneticCorrection
	case StagePrefixCompletion:
		return t.PrefixCompletion
	case StageSynonymRecall:
		return t.SynonymRecall
	case StageSemanticAlignment:
		return t.SemanticAlignment
	case StageIntentExtraction:
		return t.IntentExtraction
	case StageSlotFilling:
		return t.SlotFilling
	case StageRetrievalRewrite:
		return t.RetrievalRewrite
	case StageExpansion:
		return t.Expansion
	case StageExpansionStrategy:
		return t.ExpansionStrategy
	default:
		return false
	}
}

// Validate checks the pipeline wide fields. Stage configurations are
// checked by ValidateStages or by the pipeline right before a stage runs.
func (c *Config) Validate() error {
	if c == nil {
		return ValidationErrors{{Field: "config", Message: "is nil"}}
	}
	return structErrors("", c)
}

// ValidateStages validates the pipeline wide fields and the configuration of
// every enabled stage.
func (c *Config) ValidateStages() error {
	if err := c.Validate(); err != nil {
		return err
	}
	var errs ValidationErrors
	for _, name := range StageNames {
		sc := c.StageConfig(name)
		if !c.Enabled(name) || sc == nil {
			continue
		}
		var ve ValidationErrors
		if err := sc.Validate(); errors.As(err, &ve) {
			errs = append(errs, ve...)
		}
	}
	return append(errs, c.timeoutErrors()...).orNil()
}

// timeoutErrors reports call timeouts of enabled stages that the stage
// deadline would always preempt. stageTimeoutMs is the hard ceiling.
func (c *Config) timeoutErrors() ValidationErrors {
	if c.StageTimeoutMs <= 0 {
		return nil
	}
	calls := []struct {
		stage, field string
		ms           int
	}{
		{StageIntentExtraction, "intent.timeoutMs", c.Intent.TimeoutMs},
		{StageSlotFilling, "slotFilling.timeoutMs", c.SlotFilling.TimeoutMs},
		{StageExpansion, "expanding.timeoutMs", c.Expanding.TimeoutMs},
	}
	var errs ValidationErrors
	for _, call := range calls {
		if c.Enabled(call.stage) && call.ms >= c.StageTimeoutMs {
			errs = append(errs, ValidationError{
				Field:   call.field,
				Message: fmt.Sprintf("must be below stageTimeoutMs (%d)", c.StageTimeoutMs),
			})
		}
	}
	return errs
}

// DefaultConfig returns a configuration with every rule based stage enabled
// and every model backed stage disabled.
func DefaultConfig() *Config {
	return &Config{
		Stages: StageToggles{
			Normalization:     true,
			SemanticAlignment: true,
			RetrievalRewrite:  true,
			ExpansionStrategy: true,
		},
		MaxQueries:     DefaultMaxQueries,
		KeepOriginal:   true,
		DedupThreshold: DefaultDedupThreshold,
		FallbackPolicy: FallbackSkipStage,
		StageTimeoutMs: DefaultStageTimeoutMs,
		Normalization: NormalizationConfig{
			MaxQueryLength:  DefaultMaxQueryLength,
			NormalizeCase:   true,
			CaseMode:        CaseLower,
			CleanWhitespace: true,
		},
		Phonetic:  PhoneticConfig{MinConfidence: 0.6, MaxCandidates: 3},
		Prefix:    PrefixConfig{MinPrefixLength: 2, MaxCandidates: 3, OnlyShortQuery: true, ShortQueryMaxLen: 8},
		Synonym:   SynonymConfig{TopK: 2, SimThreshold: 0.8},
		Alignment: AlignmentConfig{MaxTermLength: 4},
		Intent:    IntentConfig{TimeoutMs: 2000, MinConfidence: 0.5},
		SlotFilling: SlotFillingConfig{
			MaxClarificationAttempts: 1,
			CompletenessThreshold:    1,
			BlockRetrievalOnMissing:  true,
			TimeoutMs:                500,
			HistoryTurns:             3,
		},
		Rewrite:   RewriteConfig{HistoryTurns: 3},
		Expanding: ExpandingConfig{N: 3, Temperature: 0.7, PromptTemplate: DefaultExpandPrompt, TimeoutMs: 2500},
		Strategy:  StrategyConfig{DefaultMode: StrategyHybrid, MaxTermLength: 4},
	}
}

// ParseConfig decodes YAML on top of DefaultConfig and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse pipeline config: %w", err)
	}
	if err := cfg.ValidateStages(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline config: %w", err)
	}
	return ParseConfig(data)
}

func structErrors(prefix string, s any) error {
	return collect(prefix, validate.Struct(s)).orNil()
}

// collect converts validator errors into ValidationErrors named after the yaml keys.
func collect(prefix string, err error) ValidationErrors {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{{Field: prefix, Message: err.Error()}}
	}
	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := fe.Field()
		if ns := fe.Namespace(); strings.Contains(ns, ".") {
			field = ns[strings.Index(ns, ".")+1:]
		}
		if prefix != "" {
			field = prefix + "." + field
		}
		msg := "failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		out = append(out, ValidationError{Field: field, Message: msg})
	}
	return out
}
