//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

// Package text holds rune level helpers for mixed Chinese and Latin queries.
package text

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/width"
)

// Kind classifies a Segment.
type Kind int

// Segment kinds.
const (
	KindWord Kind = iota
	KindHan
	KindSpace
	KindPunct
)

// Segment is a maximal run of runes of one Kind. Han runs are kept together;
// callers split them further with ForwardMaxMatch.
type Segment struct {
	Text string
	Kind Kind
}

// Fold maps full width forms to their narrow equivalents and case folds.
// The result is only meant for comparison.
func Fold(s string) string {
	return cases.Fold().String(width.Fold.String(s))
}

// Lower lower-cases s after width folding.
func Lower(s string) string {
	return cases.Lower(language.Und).String(width.Fold.String(s))
}

// Upper upper-cases s after width folding.
func Upper(s string) string {
	return cases.Upper(language.Und).String(width.Fold.String(s))
}

// CollapseSpaces trims s and replaces every whitespace run with one space.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Compact removes all whitespace.
func Compact(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// Len returns the length of s in runes.
func Len(s string) int {
	return len([]rune(s))
}

// IsHan reports whether r is a CJK ideograph.
func IsHan(r rune) bool {
	return unicode.Is(unicode.Han, r)
}

func kindOf(r rune) Kind {
	switch {
	case IsHan(r):
		return KindHan
	case unicode.IsSpace(r):
		return KindSpace
	case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-':
		return KindWord
	default:
		return KindPunct
	}
}

// Split cuts s into segments. Concatenating the Text of all segments gives s back.
func Split(s string) []Segment {
	var (
		segs  []Segment
		start = 0
		cur   = Kind(-1)
	)
	for i, r := range s {
		k := kindOf(r)
		// Punctuation is emitted one rune at a time.
		if k != cur || k == KindPunct {
			if cur >= 0 {
				segs = append(segs, Segment{Text: s[start:i], Kind: cur})
			}
			start, cur = i, k
		}
	}
	if cur >= 0 {
		segs = append(segs, Segment{Text: s[start:], Kind: cur})
	}
	return segs
}

// Tokens returns the searchable tokens of s: Latin words and single Han runes.
// Whitespace and punctuation are dropped.
func Tokens(s string) []string {
	var out []string
	for _, seg := range Split(s) {
		switch seg.Kind {
		case KindWord:
			out = append(out, seg.Text)
		case KindHan:
			for _, r := range seg.Text {
				out = append(out, string(r))
			}
		}
	}
	return out
}

// Piece is one unit produced by ForwardMaxMatch.
type Piece struct {
	Text        string
	Replacement string
	Matched     bool
}

// ForwardMaxMatch scans s left to right and at every position tries the
// longest window of at most maxN runes for which lookup reports a match.
// Unmatched runes are merged into a single unmatched piece.
func ForwardMaxMatch(s string, maxN int, lookup func(string) (string, bool)) []Piece {
	if maxN <= 0 {
		maxN = 1
	}
	runes := []rune(s)
	var (
		pieces  []Piece
		pending []rune
	)
	flush := func() {
		if len(pending) > 0 {
			pieces = append(pieces, Piece{Text: string(pending)})
			pending = nil
		}
	}
	for i := 0; i < len(runes); {
		n := maxN
		if rest := len(runes) - i; n > rest {
			n = rest
		}
		matched := false
		for ; n >= 1; n-- {
			term := string(runes[i : i+n])
			if rep, ok := lookup(term); ok {
				flush()
				pieces = append(pieces, Piece{Text: term, Replacement: rep, Matched: true})
				i += n
				matched = true
				break
			}
		}
		if !matched {
			pending = append(pending, runes[i])
			i++
		}
	}
	flush()
	return pieces
}

// TruncateAtBoundary shortens s to at most max runes, cutting at the last
// word boundary that fits. A single word longer than max is cut hard.
func TruncateAtBoundary(s string, max int) string {
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	cut := 0
	for i := max; i > 0; i-- {
		if isBoundary(runes, i) {
			cut = i
			break
		}
	}
	if cut == 0 {
		cut = max
	}
	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace)
}

// isBoundary reports whether cutting before runes[i] keeps whole words.
func isBoundary(runes []rune, i int) bool {
	if i >= len(runes) {
		return true
	}
	prev, next := kindOf(runes[i-1]), kindOf(runes[i])
	return !(prev == KindWord && next == KindWord)
}

// Levenshtein returns the rune level edit distance between a and b.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// Similarity returns 1 - distance/maxLen over folded, whitespace free forms
// of a and b. Two empty strings are identical.
func Similarity(a, b string) float64 {
	fa, fb := Compact(Fold(a)), Compact(Fold(b))
	if fa == fb {
		return 1
	}
	la, lb := Len(fa), Len(fb)
	longest := max(la, lb)
	return 1 - float64(Levenshtein(fa, fb))/float64(longest)
}
