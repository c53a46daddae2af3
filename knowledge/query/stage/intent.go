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
	"encoding/json"
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
	"trpc.group/trpc-go/trpc-query-go/model"
)

// NoIntent is the code a model answers when no listed intent fits.
const NoIntent = "none"

// DefaultIntentPrompt is used when IntentConfig.PromptTemplate is empty.
// {intents} is replaced by the intent list and {query} by the user query.
const DefaultIntentPrompt = `You classify customer service queries.
Choose the single best intent for the query from the list below, or "none" if no intent fits.
Also extract the slot values mentioned in the query.

Intents:
{intents}

Query: {query}`

var intentSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"intent":     map[string]any{"type": "string"},
		"confidence": map[string]any{"type": "number"},
		"slots": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":       map[string]any{"type": "string"},
					"value":      map[string]any{"type": "string"},
					"confidence": map[string]any{"type": "number"},
				},
				"required":             []string{"name", "value", "confidence"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"intent", "confidence", "slots"},
	"additionalProperties": false,
}

type intentAnswer struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Slots      []struct {
		Name       string  `json:"name"`
		Value      string  `json:"value"`
		Confidence float64 `json:"confidence"`
	} `json:"slots"`
}

// IntentExtraction classifies the original query with a structured output
// model. Only the original query is classified so a request never carries
// conflicting intents.
type IntentExtraction struct {
	models model.Provider
}

// NewIntentExtraction creates the intent extraction stage.
func NewIntentExtraction(models model.Provider) *IntentExtraction {
	return &IntentExtraction{models: models}
}

// Name implements query.Stage.
func (s *IntentExtraction) Name() string { return query.StageIntentExtraction }

// IsApplicable implements query.Stage. An intent is written at most once.
func (s *IntentExtraction) IsApplicable(qc *query.Context, _ *query.Config) bool {
	return qc.DetectedIntent == nil
}

// Transform implements query.Stage.
func (s *IntentExtraction) Transform(ctx context.Context, qc *query.Context, cfg *query.Config) (*query.Delta, error) {
	c := cfg.Intent
	tpl := c.PromptTemplate
	if tpl == "" {
		tpl = DefaultIntentPrompt
	}
	prompt := fillTemplate(tpl, map[string]string{
		"intents": describeIntents(c.Intents),
		"query":   qc.OriginalQuery(),
	})
	req := &model.Request{
		Messages: []model.Message{model.NewUserMessage(prompt)},
		GenerationConfig: model.GenerationConfig{
			Temperature: model.Float64(0),
		},
		StructuredOutput: &model.StructuredOutput{
			Type: model.StructuredOutputJSONSchema,
			JSONSchema: &model.JSONSchemaConfig{
				Name:   "intent_extraction",
				Schema: intentSchema,
				Strict: true,
			},
		},
	}
	rsp, usage, err := generate(ctx, s.models, c.ModelID, c.TimeoutMs, req)
	if err != nil {
		return nil, err
	}

	var answer intentAnswer
	if err := json.Unmarshal([]byte(stripFence(rsp.Content())), &answer); err != nil {
		return nil, external(serviceModel, "parse intent", fmt.Errorf("decode %q: %w", rsp.Content(), err))
	}

	delta := &query.Delta{Usage: usage}
	code := strings.TrimSpace(answer.Intent)
	if code == "" || strings.EqualFold(code, NoIntent) || answer.Confidence < c.MinConfidence || !known(code, c.Intents) {
		return delta, nil
	}
	delta.Intent = &query.Intent{Code: code, Confidence: clamp01(answer.Confidence)}
	for _, slot := range answer.Slots {
		name, value := strings.TrimSpace(slot.Name), strings.TrimSpace(slot.Value)
		if name == "" || value == "" {
			continue
		}
		if delta.Slots == nil {
			delta.Slots = make(map[string]query.Slot)
		}
		delta.Slots[name] = query.Slot{
			Value:      value,
			Method:     query.SlotMethodModel,
			Confidence: clamp01(slot.Confidence),
		}
	}
	return delta, nil
}

func describeIntents(intents []query.IntentDefinition) string {
	if len(intents) == 0 {
		return "- any intent code that describes the query in snake_case"
	}
	lines := make([]string, 0, len(intents))
	for _, in := range intents {
		line := "- " + in.Code
		if in.Description != "" {
			line += ": " + in.Description
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// known reports whether code is one of the configured intents. Any code is
// accepted when no intent is configured.
func known(code string, intents []query.IntentDefinition) bool {
	if len(intents) == 0 {
		return true
	}
	for _, in := range intents {
		if in.Code == code {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
