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
	"regexp"
	"strings"
	"unicode"

	"trpc.group/trpc-go/trpc-query-go/internal/text"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/dictionary"
)

// Reasons recorded on a StrategyHint.
const (
	ReasonIntent      = "intent"
	ReasonIdentifier  = "identifier"
	ReasonQuoted      = "quoted_phrase"
	ReasonDomainTerms = "domain_terms"
	ReasonComparison  = "comparison"
	ReasonTemporal    = "temporal"
	ReasonOpenEnded   = "open_ended"
	ReasonLongQuery   = "long_query"
	ReasonDefault     = "default"
)

var (
	temporalKeywords = []string{
		"latest", "newest", "recent", "current", "today", "now",
		"最新", "最近", "当前", "今天", "现在",
	}
	comparisonKeywords = []string{
		"compare", "difference", "versus", "vs", "better", "best",
		"比较", "区别", "对比", "哪个好",
	}
	openKeywords = []string{
		"explain", "how", "why", "what is", "tell me about",
		"解释", "如何", "为什么", "什么是", "介绍", "怎么",
	}

	quoted = regexp.MustCompile(`["“「『][^"”」』]{2,}["”」』]`)
)

// domainDensity is the share of tokens that must be dictionary terms before
// keyword retrieval is favoured.
const domainDensity = 0.5

// longQueryTokens is the token count above which a query is treated as a
// descriptive, semantic need.
const longQueryTokens = 24

// ExpansionStrategy attaches a retrieval strategy hint for the query router.
// It never changes the variants.
type ExpansionStrategy struct {
	dict dictionary.Dictionary
}

// NewExpansionStrategy creates the expansion strategy stage.
func NewExpansionStrategy(dict dictionary.Dictionary) *ExpansionStrategy {
	return &ExpansionStrategy{dict: orNoop(dict)}
}

// Name implements query.Stage.
func (s *ExpansionStrategy) Name() string { return query.StageExpansionStrategy }

// IsApplicable implements query.Stage.
func (s *ExpansionStrategy) IsApplicable(*query.Context, *query.Config) bool { return true }

// Transform implements query.Stage.
func (s *ExpansionStrategy) Transform(ctx context.Context, qc *query.Context, cfg *query.Config) (*query.Delta, error) {
	c := cfg.Strategy
	if in := qc.DetectedIntent; in != nil {
		if mode, ok := c.IntentModes[in.Code]; ok {
			return &query.Delta{Strategy: hint(mode, ReasonIntent+":"+in.Code)}, nil
		}
	}

	q := qc.Queries()[0]
	lower := text.Lower(q)
	var (
		keyword, semantic int
		reasons           []string
	)
	if hasIdentifier(q) {
		keyword += 2
		reasons = append(reasons, ReasonIdentifier)
	}
	if quoted.MatchString(q) {
		keyword++
		reasons = append(reasons, ReasonQuoted)
	}
	if containsAny(lower, comparisonKeywords) {
		keyword++
		reasons = append(reasons, ReasonComparison)
	}
	if containsAny(lower, temporalKeywords) {
		keyword++
		reasons = append(reasons, ReasonTemporal)
	}
	if containsAny(lower, openKeywords) {
		semantic += 2
		reasons = append(reasons, ReasonOpenEnded)
	}
	tokens := text.Tokens(q)
	if len(tokens) > longQueryTokens {
		semantic++
		reasons = append(reasons, ReasonLongQuery)
	}
	dense, err := s.domainDense(ctx, q, qc.Scope.Tenant, c.MaxTermLength)
	if err != nil {
		return nil, err
	}
	if dense {
		keyword++
		reasons = append(reasons, ReasonDomainTerms)
	}

	mode := c.DefaultMode
	if mode == "" {
		mode = query.StrategyHybrid
	}
	switch {
	case keyword == 0 && semantic == 0:
		reasons = append(reasons, ReasonDefault)
	case keyword >= semantic+2:
		mode = query.StrategyKeyword
	case semantic >= keyword+2:
		mode = query.StrategySemantic
	default:
		mode = query.StrategyHybrid
	}
	h := hint(mode, reasons...)
	if mode == query.StrategyHybrid && keyword+semantic > 0 {
		h.KeywordWeight = float64(keyword+1) / float64(keyword+semantic+2)
		h.SemanticWeight = 1 - h.KeywordWeight
	}
	return &query.Delta{Strategy: h}, nil
}

// hint returns a hint with the default weights of mode.
func hint(mode query.StrategyMode, reasons ...string) *query.StrategyHint {
	h := &query.StrategyHint{Mode: mode, Reasons: reasons}
	switch mode {
	case query.StrategyKeyword:
		h.KeywordWeight, h.SemanticWeight = 0.8, 0.2
	case query.StrategySemantic:
		h.KeywordWeight, h.SemanticWeight = 0.2, 0.8
	default:
		h.KeywordWeight, h.SemanticWeight = 0.5, 0.5
	}
	return h
}

// hasIdentifier finds order numbers, SKUs and error codes: a word of at
// least four characters mixing digits with letters, or a long digit run.
func hasIdentifier(q string) bool {
	for _, seg := range text.Split(q) {
		if seg.Kind != text.KindWord || text.Len(seg.Text) < 4 {
			continue
		}
		var digits, letters int
		for _, r := range seg.Text {
			switch {
			case unicode.IsDigit(r):
				digits++
			case unicode.IsLetter(r):
				letters++
			}
		}
		if digits > 0 && (letters > 0 || digits >= 6) {
			return true
		}
	}
	return false
}

// containsAny matches Latin keywords against whole words and Han keywords
// as substrings.
func containsAny(s string, keywords []string) bool {
	words := make(map[string]bool)
	for _, tok := range text.Tokens(s) {
		words[tok] = true
	}
	for _, kw := range keywords {
		switch {
		case !isLatin(kw), strings.Contains(kw, " "):
			if strings.Contains(s, kw) {
				return true
			}
		case words[kw]:
			return true
		}
	}
	return false
}

func isLatin(s string) bool {
	for _, r := range s {
		if r > 0x7f {
			return false
		}
	}
	return true
}

// domainDense reports whether most tokens of q belong to dictionary terms,
// either colloquial forms or terms with curated synonyms.
func (s *ExpansionStrategy) domainDense(ctx context.Context, q, tenant string, maxN int) (bool, error) {
	pieces, err := scanTerms(ctx, q, maxN, func(ctx context.Context, term string) (string, bool, error) {
		canonical, ok, err := s.dict.LookupCanonicalForm(ctx, term, tenant)
		if err != nil {
			return "", false, external(serviceDictionary, "lookup canonical form", err)
		}
		if ok {
			return canonical, true, nil
		}
		syns, err := s.dict.LookupSynonyms(ctx, term, tenant)
		if err != nil {
			return "", false, external(serviceDictionary, "lookup synonyms", err)
		}
		return term, len(syns) > 0, nil
	})
	if err != nil {
		return false, err
	}
	var total, known int
	for _, p := range pieces {
		n := len(text.Tokens(p.Text))
		total += n
		if p.Matched {
			known += n
		}
	}
	return total > 0 && float64(known)/float64(total) >= domainDensity, nil
}
