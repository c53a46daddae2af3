//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

// Package phonetic finds sound-alike corrections for query variants.
package phonetic

import (
	"context"
	"sort"
	"strings"
	"sync"

	"trpc.group/trpc-go/trpc-query-go/internal/text"
)

// Candidate is one corrected form of a query.
type Candidate struct {
	Text       string
	Confidence float64
}

// Matcher proposes corrections for a query. Implementations must be safe
// for concurrent use.
type Matcher interface {
	Candidates(ctx context.Context, query, tenant string) ([]Candidate, error)
}

// Confusion maps a frequently mistyped form to its intended form, for
// instance a homophone typed through a pinyin input method.
type Confusion struct {
	Wrong      string  `yaml:"wrong"`
	Right      string  `yaml:"right"`
	Confidence float64 `yaml:"confidence"`
}

// Dictionary is a Matcher over per tenant confusion sets and a Latin
// vocabulary compared by Soundex code. Tenant "*" applies to every tenant.
type Dictionary struct {
	mu         sync.RWMutex
	confusions map[string]map[string]Confusion
	vocab      map[string]map[string][]string
	maxWrong   int
}

// NewDictionary returns an empty Dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{
		confusions: make(map[string]map[string]Confusion),
		vocab:      make(map[string]map[string][]string),
	}
}

// AddConfusions registers confusion pairs for tenant.
func (d *Dictionary) AddConfusions(tenant string, cs ...Confusion) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.confusions[tenant]
	if m == nil {
		m = make(map[string]Confusion)
		d.confusions[tenant] = m
	}
	for _, c := range cs {
		m[text.Fold(c.Wrong)] = c
		d.maxWrong = max(d.maxWrong, text.Len(c.Wrong))
	}
}

// AddVocabulary registers correctly spelled Latin words for tenant.
func (d *Dictionary) AddVocabulary(tenant string, words ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.vocab[tenant]
	if m == nil {
		m = make(map[string][]string)
		d.vocab[tenant] = m
	}
	for _, w := range words {
		w = text.Fold(w)
		code := Soundex(w)
		if code == "" {
			continue
		}
		m[code] = append(m[code], w)
	}
}

func tenantChain(tenant string) []string {
	if tenant == "*" {
		return []string{"*"}
	}
	return []string{tenant, "*"}
}

// Candidates implements Matcher. Each candidate changes one span of the
// query; confidence comes from the confusion entry or from spelling
// similarity for Soundex matches. Results are sorted by confidence, best first.
func (d *Dictionary) Candidates(_ context.Context, query, tenant string) ([]Candidate, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	best := make(map[string]float64)
	add := func(s string, conf float64) {
		if s != query && conf > best[s] {
			best[s] = conf
		}
	}
	d.confusionCandidates(query, tenant, add)
	d.soundexCandidates(query, tenant, add)

	out := make([]Candidate, 0, len(best))
	for s, c := range best {
		out = append(out, Candidate{Text: s, Confidence: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Text < out[j].Text
	})
	return out, nil
}

func (d *Dictionary) lookupConfusion(tenant, term string) (Confusion, bool) {
	key := text.Fold(term)
	for _, t := range tenantChain(tenant) {
		if c, ok := d.confusions[t][key]; ok {
			return c, true
		}
	}
	return Confusion{}, false
}

func (d *Dictionary) confusionCandidates(query, tenant string, add func(string, float64)) {
	if d.maxWrong == 0 {
		return
	}
	pieces := text.ForwardMaxMatch(query, d.maxWrong, func(term string) (string, bool) {
		c, ok := d.lookupConfusion(tenant, term)
		return c.Right, ok
	})
	for i, p := range pieces {
		if !p.Matched {
			continue
		}
		c, _ := d.lookupConfusion(tenant, p.Text)
		var b strings.Builder
		for j, q := range pieces {
			if j == i {
				b.WriteString(p.Replacement)
			} else {
				b.WriteString(q.Text)
			}
		}
		add(b.String(), c.Confidence)
	}
}

func (d *Dictionary) soundexCandidates(query, tenant string, add func(string, float64)) {
	segs := text.Split(query)
	for i, seg := range segs {
		if seg.Kind != text.KindWord {
			continue
		}
		word := text.Fold(seg.Text)
		code := Soundex(word)
		if code == "" || d.known(tenant, code, word) {
			continue
		}
		for _, t := range tenantChain(tenant) {
			for _, w := range d.vocab[t][code] {
				var b strings.Builder
				for j, s := range segs {
					if j == i {
						b.WriteString(w)
					} else {
						b.WriteString(s.Text)
					}
				}
				add(b.String(), text.Similarity(word, w))
			}
		}
	}
}

func (d *Dictionary) known(tenant, code, word string) bool {
	for _, t := range tenantChain(tenant) {
		for _, w := range d.vocab[t][code] {
			if w == word {
				return true
			}
		}
	}
	return false
}

// Soundex returns the American Soundex code of an ASCII word, or "" when the
// word does not start with a letter.
func Soundex(word string) string {
	word = strings.ToUpper(word)
	var (
		code []byte
		last byte
	)
	for i := 0; i < len(word); i++ {
		ch := word[i]
		if ch < 'A' || ch > 'Z' {
			if len(code) == 0 {
				return ""
			}
			continue
		}
		digit := soundexDigit(ch)
		if len(code) == 0 {
			code = append(code, ch)
			last = digit
			continue
		}
		switch {
		case digit == '0':
			// H and W do not separate letters with the same code.
			if ch != 'H' && ch != 'W' {
				last = '0'
			}
		case digit != last:
			code = append(code, digit)
			last = digit
		}
		if len(code) == 4 {
			break
		}
	}
	if len(code) == 0 {
		return ""
	}
	for len(code) < 4 {
		code = append(code, '0')
	}
	return string(code)
}

func soundexDigit(ch byte) byte {
	switch ch {
	case 'B', 'F', 'P', 'V':
		return '1'
	case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
		return '2'
	case 'D', 'T':
		return '3'
	case 'L':
		return '4'
	case 'M', 'N':
		return '5'
	case 'R':
		return '6'
	default:
		return '0'
	}
}
