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
	"strconv"
	"strings"

	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
	"trpc.group/trpc-go/trpc-query-go/model"
)

// listMarker matches bullets and numbering a model puts before lines.
var listMarker = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)、:：]|[（(]\d+[)）])\s*`)

// Expansion asks a generative model for reformulations of the leading
// variant and adds them.
type Expansion struct {
	models model.Provider
}

// NewExpansion creates the expansion stage.
func NewExpansion(models model.Provider) *Expansion {
	return &Expansion{models: models}
}

// Name implements query.Stage.
func (s *Expansion) Name() string { return query.StageExpansion }

// IsApplicable implements query.Stage.
func (s *Expansion) IsApplicable(*query.Context, *query.Config) bool { return true }

// Transform implements query.Stage.
func (s *Expansion) Transform(ctx context.Context, qc *query.Context, cfg *query.Config) (*query.Delta, error) {
	c := cfg.Expanding
	tpl := c.PromptTemplate
	if tpl == "" {
		tpl = query.DefaultExpandPrompt
	}
	source := qc.Queries()[0]
	prompt := fillTemplate(tpl, map[string]string{
		"query": source,
		"n":     strconv.Itoa(c.N),
	})
	req := &model.Request{
		Messages: []model.Message{model.NewUserMessage(prompt)},
		GenerationConfig: model.GenerationConfig{
			Temperature: model.Float64(c.Temperature),
		},
	}
	rsp, usage, err := generate(ctx, s.models, c.ModelID, c.TimeoutMs, req)
	if err != nil {
		return nil, err
	}
	return &query.Delta{Add: parseReformulations(rsp.Content(), source, c.N), Usage: usage}, nil
}

// parseReformulations reads one reformulation per line, dropping list
// markers, quotes, blanks and copies of source, and keeps at most n.
func parseReformulations(content, source string, n int) []string {
	var out []string
	for _, line := range strings.Split(stripFence(content), "\n") {
		if len(out) >= n {
			break
		}
		line = listMarker.ReplaceAllString(strings.TrimSpace(line), "")
		line = strings.Trim(line, "\"'“”‘’「」` ")
		if line == "" || line == source {
			continue
		}
		out = append(out, line)
	}
	return out
}
