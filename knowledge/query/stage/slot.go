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
	"errors"
	"fmt"
	"regexp"
	"strings"

	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/dictionary"
	"trpc.group/trpc-go/trpc-query-go/log"
	"trpc.group/trpc-go/trpc-query-go/model"
)

// Confidence of slot values found by pattern or in history.
const (
	patternConfidence = 1.0
	historyConfidence = 0.8
)

// DefaultQuestion is asked for a missing slot without a template question.
// %s is the slot description, or its name.
const DefaultQuestion = "请提供您的%s。"

// DefaultQuestionPrompt asks a model for a clarification question.
const DefaultQuestionPrompt = `A customer asked: "{query}"
To answer, we still need this information: {slot} ({description}).
Write one short, polite question in the customer's language asking for it. Output only the question.`

// SlotValidator checks a slot value against an external system, for example
// that an order id exists. Implementations must honour ctx.
type SlotValidator interface {
	ValidateSlot(ctx context.Context, intent, slot, value string, scope query.Scope) (bool, error)
}

// SlotValidatorFunc adapts a function to SlotValidator.
type SlotValidatorFunc func(ctx context.Context, intent, slot, value string, scope query.Scope) (bool, error)

// ValidateSlot implements SlotValidator.
func (f SlotValidatorFunc) ValidateSlot(ctx context.Context, intent, slot, value string, scope query.Scope) (bool, error) {
	return f(ctx, intent, slot, value, scope)
}

// SlotFilling checks the required slots of the detected intent, extracts
// missing values by pattern, validates them and asks for what is missing.
type SlotFilling struct {
	dict      dictionary.Dictionary
	validator SlotValidator
	models    model.Provider
}

// SlotFillingOption configures SlotFilling.
type SlotFillingOption func(*SlotFilling)

// WithSlotValidator sets the external validator.
func WithSlotValidator(v SlotValidator) SlotFillingOption {
	return func(s *SlotFilling) {
		s.validator = v
	}
}

// WithQuestionModels sets the models used for smart question generation.
func WithQuestionModels(models model.Provider) SlotFillingOption {
	return func(s *SlotFilling) {
		s.models = models
	}
}

// NewSlotFilling creates the slot filling stage.
func NewSlotFilling(dict dictionary.Dictionary, opts ...SlotFillingOption) *SlotFilling {
	s := &SlotFilling{dict: orNoop(dict)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements query.Stage.
func (s *SlotFilling) Name() string { return query.StageSlotFilling }

// IsApplicable implements query.Stage. Slot filling needs a detected intent.
func (s *SlotFilling) IsApplicable(qc *query.Context, _ *query.Config) bool {
	return qc.DetectedIntent != nil
}

// Transform implements query.Stage.
func (s *SlotFilling) Transform(ctx context.Context, qc *query.Context, cfg *query.Config) (*query.Delta, error) {
	c := cfg.SlotFilling
	intent := qc.DetectedIntent.Code

	tpl, err := s.dict.GetSlotTemplate(ctx, intent, qc.Scope.Tenant, qc.Scope.Channel)
	if errors.Is(err, dictionary.ErrNotFound) {
		tpl, err = &dictionary.SlotTemplate{Intent: intent}, nil
	}
	if err != nil {
		return nil, external(serviceDictionary, "get slot template", err)
	}

	delta := &query.Delta{Slots: make(map[string]query.Slot)}
	var (
		required int
		filled   int
		missing  []dictionary.SlotSpec
	)
	for _, spec := range tpl.Slots {
		var re *regexp.Regexp
		if spec.Pattern != "" {
			if re, err = regexp.Compile(spec.Pattern); err != nil {
				return nil, fmt.Errorf("slot %s pattern: %w", spec.Name, err)
			}
		}
		slot, ok := s.find(qc, spec, re, c.HistoryTurns)
		if ok && !slot.Validated {
			valid, err := s.validate(ctx, qc, intent, spec, re, slot.Value, c.TimeoutMs)
			if err != nil {
				return nil, err
			}
			slot.Validated = valid
			delta.Slots[spec.Name] = slot
			ok = valid
		}
		if !spec.Required {
			continue
		}
		required++
		if ok {
			filled++
		} else {
			missing = append(missing, spec)
		}
	}

	completeness := 1.0
	if required > 0 {
		completeness = float64(filled) / float64(required)
	}
	blocked := false
	questions := []string{}
	if completeness < c.CompletenessThreshold {
		for _, spec := range missing[:min(len(missing), c.MaxClarificationAttempts)] {
			q, usage := s.question(ctx, qc, spec, &c)
			questions = append(questions, q)
			delta.Usage = addUsage(delta.Usage, usage)
		}
		blocked = c.BlockRetrievalOnMissing
	}
	delta.Completeness = &completeness
	delta.RetrievalBlocked = &blocked
	delta.Clarifications = questions
	return delta, nil
}

// find returns the value of a slot: an already extracted value first, then a
// pattern match in the variants, then a pattern match in recent history.
func (s *SlotFilling) find(
	qc *query.Context, spec dictionary.SlotSpec, re *regexp.Regexp, historyTurns int,
) (query.Slot, bool) {
	if slot, ok := qc.ExtractedSlots[spec.Name]; ok && strings.TrimSpace(slot.Value) != "" {
		return slot, true
	}
	if re == nil {
		return query.Slot{}, false
	}
	sources := append([]string{qc.OriginalQuery()}, qc.Queries()...)
	for _, src := range sources {
		if v := matchValue(re, src); v != "" {
			return query.Slot{Value: v, Method: query.SlotMethodPattern, Confidence: patternConfidence}, true
		}
	}
	history := qc.History
	for i := len(history) - 1; i >= 0 && i >= len(history)-historyTurns; i-- {
		if v := matchValue(re, history[i]); v != "" {
			return query.Slot{Value: v, Method: query.SlotMethodHistory, Confidence: historyConfidence}, true
		}
	}
	return query.Slot{}, false
}

// matchValue returns the first capture group of re in s, or the whole match
// when re has no group.
func matchValue(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	switch {
	case m == nil:
		return ""
	case len(m) > 1:
		return m[1]
	default:
		return m[0]
	}
}

func (s *SlotFilling) validate(
	ctx context.Context, qc *query.Context, intent string,
	spec dictionary.SlotSpec, re *regexp.Regexp, value string, timeoutMs int,
) (bool, error) {
	if re != nil && !re.MatchString(value) {
		return false, nil
	}
	if s.validator == nil {
		return true, nil
	}
	ok, err := within(ctx, timeoutMs, func(ctx context.Context) (bool, error) {
		return s.validator.ValidateSlot(ctx, intent, spec.Name, value, qc.Scope)
	})
	if err != nil {
		return false, external(serviceValidator, "validate "+spec.Name, err)
	}
	return ok, nil
}

// question returns the clarification question for a missing slot. Smart
// generation falls back to the template question on any model failure.
func (s *SlotFilling) question(
	ctx context.Context, qc *query.Context, spec dictionary.SlotSpec, c *query.SlotFillingConfig,
) (string, *query.Usage) {
	fallback := spec.Question
	if fallback == "" {
		label := spec.Description
		if label == "" {
			label = spec.Name
		}
		fallback = fmt.Sprintf(DefaultQuestion, label)
	}
	if !c.EnableSmartQuestionGeneration {
		return fallback, nil
	}
	prompt := fillTemplate(DefaultQuestionPrompt, map[string]string{
		"query":       qc.OriginalQuery(),
		"slot":        spec.Name,
		"description": spec.Description,
	})
	req := &model.Request{
		Messages:         []model.Message{model.NewUserMessage(prompt)},
		GenerationConfig: model.GenerationConfig{Temperature: model.Float64(0.3)},
	}
	rsp, usage, err := generate(ctx, s.models, c.ModelID, c.TimeoutMs, req)
	if err != nil {
		log.WarnfContext(ctx, "query %s: smart question for slot %s failed, using template: %v",
			qc.RequestID, spec.Name, err)
		return fallback, nil
	}
	q := strings.TrimSpace(stripFence(rsp.Content()))
	if q == "" {
		return fallback, usage
	}
	return q, usage
}
