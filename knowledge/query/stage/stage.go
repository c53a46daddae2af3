//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

// Package stage implements the query transformation stages.
//
// Every stage reads the context and returns a query.Delta; none of them
// mutates the context. External collaborators are injected as the narrow
// ports of the dictionary, phonetic, prefix, synonym, embedder and model
// packages so each stage can be tested against fakes.
package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"trpc.group/trpc-go/trpc-query-go/internal/text"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/dictionary"
)

// Service names used in ExternalServiceError.
const (
	serviceDictionary = "dictionary"
	servicePhonetic   = "phonetic"
	servicePrefix     = "prefix index"
	serviceEmbedder   = "embedder"
	serviceSynonym    = "synonym store"
	serviceModel      = "model"
	serviceValidator  = "slot validator"
)

// orNoop returns d, or a dictionary that knows nothing when d is nil.
func orNoop(d dictionary.Dictionary) dictionary.Dictionary {
	if d == nil {
		return dictionary.Noop{}
	}
	return d
}

// external wraps a failed port call. Deadline errors additionally match
// query.ErrStageTimeout.
func external(service, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, query.ErrStageTimeout) {
		err = fmt.Errorf("%w: %w", query.ErrStageTimeout, err)
	}
	return query.External(service, op, err)
}

// within runs fn under a deadline of ms milliseconds and gives up waiting
// once it expires, even if fn ignores its context. ms <= 0 means no deadline.
func within[T any](ctx context.Context, ms int, fn func(context.Context) (T, error)) (T, error) {
	if ms <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %dms", query.ErrStageTimeout, ms)
		}
		return zero, ctx.Err()
	}
}

// termLookup reports the replacement of a dictionary term.
type termLookup func(ctx context.Context, term string) (string, bool, error)

// scanTerms splits s into pieces and looks every candidate term up. Latin
// words are looked up whole; Han runs are segmented by forward maximum
// matching with windows of at most maxN runes. Whitespace and punctuation
// are returned as unmatched pieces, so joining Text restores s.
func scanTerms(ctx context.Context, s string, maxN int, lookup termLookup) ([]text.Piece, error) {
	var (
		pieces []text.Piece
		err    error
	)
	for _, seg := range text.Split(s) {
		switch seg.Kind {
		case text.KindWord:
			rep, ok, lerr := lookup(ctx, seg.Text)
			if lerr != nil {
				return nil, lerr
			}
			pieces = append(pieces, text.Piece{Text: seg.Text, Replacement: rep, Matched: ok})
		case text.KindHan:
			pieces = append(pieces, text.ForwardMaxMatch(seg.Text, maxN, func(term string) (string, bool) {
				if err != nil {
					return "", false
				}
				rep, ok, lerr := lookup(ctx, term)
				if lerr != nil {
					err = lerr
					return "", false
				}
				return rep, ok
			})...)
			if err != nil {
				return nil, err
			}
		default:
			pieces = append(pieces, text.Piece{Text: seg.Text})
		}
	}
	return pieces, nil
}

// join rebuilds text from pieces, using the replacement of matched pieces.
func join(pieces []text.Piece) string {
	var b strings.Builder
	for _, p := range pieces {
		if p.Matched {
			b.WriteString(p.Replacement)
		} else {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// tidy collapses the whitespace left behind by removed terms.
func tidy(s string) string {
	return text.CollapseSpaces(s)
}

// fillTemplate replaces {key} placeholders.
func fillTemplate(tpl string, values map[string]string) string {
	args := make([]string, 0, len(values)*2)
	for k, v := range values {
		args = append(args, "{"+k+"}", v)
	}
	return strings.NewReplacer(args...).Replace(tpl)
}

// stripFence removes a markdown code fence around a model answer.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// usageOf converts model usage into stage usage.
func usageOf(modelID string, in, out int) *query.Usage {
	return &query.Usage{ModelID: modelID, InputTokens: in, OutputTokens: out}
}

// addUsage merges b into a.
func addUsage(a, b *query.Usage) *query.Usage {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return &query.Usage{
		ModelID:      a.ModelID,
		InputTokens:  a.InputTokens + b.InputTokens,
		OutputTokens: a.OutputTokens + b.OutputTokens,
	}
}
