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
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Scope carries the routing strings propagated to every stage and port.
type Scope struct {
	Tenant  string `json:"tenant,omitempty"`
	Channel string `json:"channel,omitempty"`
	Region  string `json:"region,omitempty"`
	Env     string `json:"env,omitempty"`
}

// Intent is the detected intent of a query.
type Intent struct {
	Code       string  `json:"code"`
	Confidence float64 `json:"confidence"`
}

// SlotMethod records how a slot value was obtained.
type SlotMethod string

// Slot extraction methods.
const (
	SlotMethodModel   SlotMethod = "model"
	SlotMethodPattern SlotMethod = "pattern"
	SlotMethodHistory SlotMethod = "history"
)

// Slot is one extracted slot value.
type Slot struct {
	Value      string     `json:"value"`
	Method     SlotMethod `json:"method"`
	Confidence float64    `json:"confidence"`
	Validated  bool       `json:"validated"`
}

// Status is the outcome of one stage.
type Status string

// Stage outcomes.
const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Reasons recorded for skipped stages.
const (
	ReasonDisabled      = "disabled"
	ReasonNotApplicable = "not_applicable"
	ReasonCanceled      = "canceled"
	ReasonAborted       = "aborted"
	ReasonInvalidConfig = "invalid_config"
)

// Diagnostic is the outcome record of one stage.
type Diagnostic struct {
	Stage        string        `json:"stage"`
	Status       Status        `json:"status"`
	InputCount   int           `json:"inputCount"`
	OutputCount  int           `json:"outputCount"`
	Elapsed      time.Duration `json:"elapsedNs"`
	Reason       string        `json:"reason,omitempty"`
	Error        string        `json:"error,omitempty"`
	InputTokens  int           `json:"inputTokens,omitempty"`
	OutputTokens int           `json:"outputTokens,omitempty"`
}

// StrategyMode selects how the retriever weighs keyword and vector search.
type StrategyMode string

// Strategy modes.
const (
	StrategyKeyword  StrategyMode = "keyword"
	StrategySemantic StrategyMode = "semantic"
	StrategyHybrid   StrategyMode = "hybrid"
)

// StrategyHint is attached by the expansion strategy stage for the query router.
type StrategyHint struct {
	Mode           StrategyMode `json:"mode"`
	KeywordWeight  float64      `json:"keywordWeight"`
	SemanticWeight float64      `json:"semanticWeight"`
	Reasons        []string     `json:"reasons,omitempty"`
}

// Context is the per request state threaded through the stages.
// It is owned by one pipeline run and must not be shared.
type Context struct {
	RequestID string
	Scope     Scope
	// History holds previous user turns, oldest first.
	History []string

	DetectedIntent         *Intent
	ExtractedSlots         map[string]Slot
	ClarificationQuestions []string
	RetrievalBlocked       bool
	// Completeness is the required slot fill ratio, nil until slot filling ran.
	Completeness *float64
	Strategy     *StrategyHint
	Diagnostics  []Diagnostic

	original   string
	queries    []string
	threshold  float64
	similarity Similarity
	// scoreCtx bounds the calls similarity makes.
	scoreCtx context.Context
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithDedupThreshold sets the similarity at or above which two variants are duplicates.
func WithDedupThreshold(threshold float64) ContextOption {
	return func(c *Context) {
		c.threshold = threshold
	}
}

// WithSimilarity replaces the lexical similarity used for dedup. ctx is
// passed to every Score call, usually the request context.
func WithSimilarity(ctx context.Context, s Similarity) ContextOption {
	return func(c *Context) {
		if s == nil {
			return
		}
		c.similarity = s
		if ctx != nil {
			c.scoreCtx = ctx
		}
	}
}

// WithHistory sets the previous user turns.
func WithHistory(history []string) ContextOption {
	return func(c *Context) {
		c.History = append([]string(nil), history...)
	}
}

// WithRequestID overrides the generated request id.
func WithRequestID(id string) ContextOption {
	return func(c *Context) {
		if id != "" {
			c.RequestID = id
		}
	}
}

// NewContext creates a context whose only variant is original.
func NewContext(original string, scope Scope, opts ...ContextOption) *Context {
	c := &Context{
		RequestID:      uuid.NewString(),
		Scope:          scope,
		ExtractedSlots: make(map[string]Slot),
		original:       original,
		queries:        []string{original},
		threshold:      DefaultDedupThreshold,
		similarity:     Lexical{},
		scoreCtx:       context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OriginalQuery returns the query the context was created with.
func (c *Context) OriginalQuery() string {
	return c.original
}

// Queries returns a copy of the current variants in priority order.
func (c *Context) Queries() []string {
	return append([]string(nil), c.queries...)
}

// Len returns the number of variants.
func (c *Context) Len() int {
	return len(c.queries)
}

// Contains reports whether q is a current variant verbatim.
func (c *Context) Contains(q string) bool {
	for _, v := range c.queries {
		if v == q {
			return true
		}
	}
	return false
}

// Similarity scores two variants with the context's similarity.
func (c *Context) Similarity(a, b string) float64 {
	return c.similarity.Score(c.scoreCtx, a, b)
}

// AddVariant appends q unless it is blank or a duplicate of an existing
// variant under the similarity test.
func (c *Context) AddVariant(q string) bool {
	q = strings.TrimSpace(q)
	if q == "" || c.duplicate(q, c.queries) {
		return false
	}
	c.queries = append(c.queries, q)
	return true
}

func (c *Context) duplicate(q string, kept []string) bool {
	for _, k := range kept {
		if k == q || c.Similarity(k, q) >= c.effectiveThreshold(c.threshold) {
			return true
		}
	}
	return false
}

func (c *Context) effectiveThreshold(threshold float64) float64 {
	if threshold <= 0 || threshold > 1 {
		return 1
	}
	return threshold
}

// Dedup removes every variant that is a duplicate of an earlier one,
// keeping the first occurrence.
func (c *Context) Dedup(threshold float64) {
	threshold = c.effectiveThreshold(threshold)
	kept := make([]string, 0, len(c.queries))
	for _, q := range c.queries {
		dup := false
		for _, k := range kept {
			if k == q || c.Similarity(k, q) >= threshold {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, q)
		}
	}
	c.queries = kept
}

// Cap keeps the first maxQueries variants. A non-positive value disables capping.
func (c *Context) Cap(maxQueries int) {
	if maxQueries > 0 && len(c.queries) > maxQueries {
		c.queries = c.queries[:maxQueries:maxQueries]
	}
}

// EnsureOriginal puts the original query back at position 0 if it is no
// longer present. It reports whether the original was reinserted.
func (c *Context) EnsureOriginal() bool {
	if len(c.queries) > 0 && c.queries[0] == c.original {
		return false
	}
	rest := make([]string, 0, len(c.queries)+1)
	rest = append(rest, c.original)
	for _, q := range c.queries {
		if q != c.original {
			rest = append(rest, q)
		}
	}
	c.queries = rest
	return true
}

// Reset discards every derived variant.
func (c *Context) Reset() {
	c.queries = []string{c.original}
}

// Clone returns an independent copy of the context. A stage that may be
// abandoned on timeout works on a clone so it never races the orchestrator.
func (c *Context) Clone() *Context {
	out := *c
	out.History = append([]string(nil), c.History...)
	out.ExtractedSlots = make(map[string]Slot, len(c.ExtractedSlots))
	for k, v := range c.ExtractedSlots {
		out.ExtractedSlots[k] = v
	}
	out.ClarificationQuestions = append([]string(nil), c.ClarificationQuestions...)
	out.Diagnostics = append([]Diagnostic(nil), c.Diagnostics...)
	out.queries = append([]string(nil), c.queries...)
	if c.DetectedIntent != nil {
		intent := *c.DetectedIntent
		out.DetectedIntent = &intent
	}
	if c.Completeness != nil {
		v := *c.Completeness
		out.Completeness = &v
	}
	if c.Strategy != nil {
		hint := *c.Strategy
		hint.Reasons = append([]string(nil), c.Strategy.Reasons...)
		out.Strategy = &hint
	}
	return &out
}

// RecordDiagnostic appends a stage outcome.
func (c *Context) RecordDiagnostic(d Diagnostic) {
	c.Diagnostics = append(c.Diagnostics, d)
}

// Apply commits a stage delta. Replacements are applied before additions.
// A commit that would leave no variant falls back to the original query.
func (c *Context) Apply(d *Delta) {
	if d == nil {
		return
	}
	if d.Replace != nil {
		c.queries = c.queries[:0:0]
		for _, q := range d.Replace {
			c.AddVariant(q)
		}
	}
	for _, q := range d.Add {
		c.AddVariant(q)
	}
	if len(c.queries) == 0 {
		c.Reset()
	}
	if d.Intent != nil && c.DetectedIntent == nil {
		intent := *d.Intent
		c.DetectedIntent = &intent
	}
	for name, slot := range d.Slots {
		if old, ok := c.ExtractedSlots[name]; ok && old.Validated && !slot.Validated {
			continue
		}
		c.ExtractedSlots[name] = slot
	}
	if d.Clarifications != nil {
		c.ClarificationQuestions = append([]string(nil), d.Clarifications...)
	}
	if d.RetrievalBlocked != nil {
		c.RetrievalBlocked = *d.RetrievalBlocked
	}
	if d.Completeness != nil {
		v := *d.Completeness
		c.Completeness = &v
	}
	if d.Strategy != nil {
		hint := *d.Strategy
		c.Strategy = &hint
	}
}

// Result is the serialisable view of a finished context.
type Result struct {
	RequestID              string          `json:"requestId"`
	OriginalQuery          string          `json:"originalQuery"`
	Queries                []string        `json:"queries"`
	Scope                  Scope           `json:"scope"`
	DetectedIntent         *Intent         `json:"detectedIntent,omitempty"`
	ExtractedSlots         map[string]Slot `json:"extractedSlots,omitempty"`
	ClarificationQuestions []string        `json:"clarificationQuestions,omitempty"`
	RetrievalBlocked       bool            `json:"retrievalBlocked"`
	Completeness           *float64        `json:"completeness,omitempty"`
	Strategy               *StrategyHint   `json:"strategy,omitempty"`
	Diagnostics            []Diagnostic    `json:"diagnostics"`
}

// Result returns a snapshot of the context.
func (c *Context) Result() Result {
	slots := make(map[string]Slot, len(c.ExtractedSlots))
	for k, v := range c.ExtractedSlots {
		slots[k] = v
	}
	return Result{
		RequestID:              c.RequestID,
		OriginalQuery:          c.original,
		Queries:                c.Queries(),
		Scope:                  c.Scope,
		DetectedIntent:         c.DetectedIntent,
		ExtractedSlots:         slots,
		ClarificationQuestions: append([]string(nil), c.ClarificationQuestions...),
		RetrievalBlocked:       c.RetrievalBlocked,
		Completeness:           c.Completeness,
		Strategy:               c.Strategy,
		Diagnostics:            append([]Diagnostic(nil), c.Diagnostics...),
	}
}

// MarshalJSON encodes the context as its Result.
func (c *Context) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Result())
}
