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
	"sort"
	"strings"
	"unicode"

	"trpc.group/trpc-go/trpc-query-go/internal/text"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/dictionary"
)

// rewriteTermMaxLen is the longest Han filler, pronoun or entity tried, in runes.
const rewriteTermMaxLen = 5

// DefaultFillerWords are conversational words dropped from retrieval queries.
var DefaultFillerWords = []string{
	"请问", "麻烦", "帮我", "帮忙", "我想知道", "我想问", "我想", "想问", "能不能", "可不可以",
	"一下", "谢谢", "你好", "您好", "吗", "呢", "吧", "啊", "呀", "哦", "嘛",
	"please", "pls", "hi", "hello", "hey", "thanks", "thank", "kindly", "um", "uh",
}

// DefaultPronouns are references resolved from the conversation.
var DefaultPronouns = []string{
	"它", "它们", "这个", "那个", "这些", "那些",
	"it", "this", "that", "they", "them", "these", "those",
}

// ellipsisMarkers open a follow up that omits its subject, as in "那退货呢".
var ellipsisMarkers = []string{"那么", "那", "还有", "然后", "what about", "how about", "and"}

// RetrievalRewrite turns every variant into a self contained retrieval query:
// conversational filler is stripped and pronouns or elided subjects are
// replaced by the entity the conversation is about. Variants are replaced.
type RetrievalRewrite struct {
	dict dictionary.Dictionary
}

// NewRetrievalRewrite creates the retrieval rewrite stage. The dictionary
// recognises domain entities in the history.
func NewRetrievalRewrite(dict dictionary.Dictionary) *RetrievalRewrite {
	return &RetrievalRewrite{dict: orNoop(dict)}
}

// Name implements query.Stage.
func (s *RetrievalRewrite) Name() string { return query.StageRetrievalRewrite }

// IsApplicable implements query.Stage.
func (s *RetrievalRewrite) IsApplicable(*query.Context, *query.Config) bool { return true }

// Transform implements query.Stage.
func (s *RetrievalRewrite) Transform(ctx context.Context, qc *query.Context, cfg *query.Config) (*query.Delta, error) {
	c := cfg.Rewrite
	fillers := wordSet(DefaultFillerWords, c.FillerWords)
	pronouns := wordSet(DefaultPronouns, c.Pronouns)

	referent, err := s.referent(ctx, qc, c.HistoryTurns)
	if err != nil {
		return nil, err
	}

	variants := qc.Queries()
	out := make([]string, 0, len(variants))
	for _, q := range variants {
		out = append(out, rewrite(q, fillers, pronouns, referent))
	}
	return &query.Delta{Replace: out}, nil
}

func wordSet(lists ...[]string) map[string]bool {
	set := make(map[string]bool)
	for _, list := range lists {
		for _, w := range list {
			if w = strings.TrimSpace(w); w != "" {
				set[text.Fold(w)] = true
			}
		}
	}
	return set
}

// rewrite strips fillers from q and resolves references to referent.
// A variant that would become empty is returned unchanged.
func rewrite(q string, fillers, pronouns map[string]bool, referent string) string {
	lookup := func(set map[string]bool, rep string) termLookup {
		return func(_ context.Context, term string) (string, bool, error) {
			return rep, set[text.Fold(term)], nil
		}
	}
	// The lookups never fail.
	pieces, _ := scanTerms(context.Background(), q, rewriteTermMaxLen, lookup(fillers, ""))
	out := strings.TrimLeftFunc(tidy(join(pieces)), func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	if out == "" {
		return q
	}
	if referent == "" {
		return out
	}

	resolved := false
	pieces, _ = scanTerms(context.Background(), out, rewriteTermMaxLen, lookup(pronouns, referent))
	for _, p := range pieces {
		resolved = resolved || p.Matched
	}
	if resolved {
		return tidy(join(pieces))
	}
	if rest, ok := cutEllipsis(out); ok && !strings.Contains(rest, referent) {
		return referent + " " + rest
	}
	return out
}

// cutEllipsis strips a leading follow up marker. The marker is matched on
// whole runes so width and case folding cannot shift the cut.
func cutEllipsis(q string) (string, bool) {
	runes := []rune(q)
	for _, m := range ellipsisMarkers {
		marker := []rune(m)
		n := len(marker)
		if len(runes) <= n || text.Lower(string(runes[:n])) != m {
			continue
		}
		// A Latin marker must end at a word boundary.
		if !text.IsHan(marker[0]) && !unicode.IsSpace(runes[n]) {
			continue
		}
		if rest := strings.TrimSpace(string(runes[n:])); rest != "" {
			return rest, true
		}
	}
	return "", false
}

// referent picks the entity a follow up query refers to: the last domain
// term of the most recent history turn that has one, else the most
// confident validated slot value.
func (s *RetrievalRewrite) referent(ctx context.Context, qc *query.Context, turns int) (string, error) {
	history := qc.History
	for i := len(history) - 1; i >= 0 && i >= len(history)-turns; i-- {
		var last string
		pieces, err := scanTerms(ctx, history[i], rewriteTermMaxLen, func(ctx context.Context, term string) (string, bool, error) {
			canonical, ok, err := s.dict.LookupCanonicalForm(ctx, term, qc.Scope.Tenant)
			if err != nil {
				return "", false, external(serviceDictionary, "lookup canonical form", err)
			}
			if ok && canonical != "" {
				return canonical, true, nil
			}
			syns, err := s.dict.LookupSynonyms(ctx, term, qc.Scope.Tenant)
			if err != nil {
				return "", false, external(serviceDictionary, "lookup synonyms", err)
			}
			return term, len(syns) > 0, nil
		})
		if err != nil {
			return "", err
		}
		for _, p := range pieces {
			if p.Matched {
				last = p.Replacement
			}
		}
		if last != "" {
			return last, nil
		}
	}

	names := make([]string, 0, len(qc.ExtractedSlots))
	for name, slot := range qc.ExtractedSlots {
		if slot.Validated && slot.Value != "" {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := qc.ExtractedSlots[names[i]], qc.ExtractedSlots[names[j]]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return names[i] < names[j]
	})
	if len(names) > 0 {
		return qc.ExtractedSlots[names[0]].Value, nil
	}
	return "", nil
}
