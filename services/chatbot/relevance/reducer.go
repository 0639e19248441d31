// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package relevance trims a guide subtree down to the sections that share
// vocabulary with the user's question.
package relevance

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/homescan/guidebot/services/chatbot/knowledge"
	"golang.org/x/text/unicode/norm"
)

// DefaultTopK is the number of child sections kept after reduction.
const DefaultTopK = 8

// maxTokenWeight caps the score a single token contributes.
const maxTokenWeight = 5

// Outcome reports what Reduce did to the subtree.
type Outcome string

const (
	// OutcomeUnchanged means every child scored zero or every child scored
	// positive, so the subtree was returned as is.
	OutcomeUnchanged Outcome = "unchanged"

	// OutcomeReduced means only the top-scoring children were kept.
	OutcomeReduced Outcome = "reduced"

	// OutcomeFallback means nothing matched lexically and a curated
	// section was substituted by keyword.
	OutcomeFallback Outcome = "fallback"
)

// FallbackRule routes questions containing any keyword to a curated
// section when lexical scoring finds nothing. Paths are tried in order
// relative to the subtree being reduced.
type FallbackRule struct {
	Keywords []string
	Paths    []string
}

// DefaultFallbacks routes damage, deposit and moving questions to the most
// actionable sections of the bundled guide.
func DefaultFallbacks() []FallbackRule {
	return []FallbackRule{
		{
			Keywords: []string{"하자", "고장", "누수", "곰팡", "파손", "결로", "훼손", "망가", "깨졌", "새요", "물이 새"},
			Paths:    []string{"issue_log", "residency_management.issue_log"},
		},
		{
			Keywords: []string{"보증금", "돌려받", "반환", "못 받"},
			Paths:    []string{"deposit_management", "moveout_management.deposit_management"},
		},
		{
			Keywords: []string{"이사", "퇴실", "나가", "이삿짐"},
			Paths:    []string{"moveout_checklist", "moveout_management.moveout_checklist"},
		},
	}
}

// Scored is one child section and its relevance score.
type Scored struct {
	Key   string
	Score int
}

// Reducer selects the children of a guide subtree most relevant to a
// question.
//
// # Description
//
// Each top-level child scores the sum of min(5, rune length) over the
// question tokens that occur in the child's key plus its serialized value.
// Zero-score children are dropped and the top K by score are kept in
// document order. When every child scores zero, or every child scores
// positive, the subtree is returned unchanged. A second pass over a
// reduced subtree therefore returns the same set.
//
// # Thread Safety
//
// Safe for concurrent use. Reduce never modifies its input.
type Reducer struct {
	topK      int
	fallbacks []FallbackRule
}

// Option configures a Reducer.
type Option func(*Reducer)

// WithTopK sets how many children survive reduction. Values below one are
// ignored.
func WithTopK(k int) Option {
	return func(r *Reducer) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithFallbacks replaces the keyword fallback rules.
func WithFallbacks(rules ...FallbackRule) Option {
	return func(r *Reducer) {
		r.fallbacks = rules
	}
}

// NewReducer creates a Reducer with DefaultTopK and DefaultFallbacks.
func NewReducer(opts ...Option) *Reducer {
	r := &Reducer{topK: DefaultTopK, fallbacks: DefaultFallbacks()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reduce returns the part of tree relevant to text.
func (r *Reducer) Reduce(tree *knowledge.Node, text string) (*knowledge.Node, Outcome) {
	if tree.Kind() != knowledge.KindObject || tree.Len() == 0 || strings.TrimSpace(text) == "" {
		return tree, OutcomeUnchanged
	}

	scores := ScoreChildren(tree, Tokenize(text))
	var positive []Scored
	for _, s := range scores {
		if s.Score > 0 {
			positive = append(positive, s)
		}
	}

	switch {
	case len(positive) == 0:
		if n, ok := r.fallback(tree, text); ok {
			return n, OutcomeFallback
		}
		return tree, OutcomeUnchanged
	case len(positive) == len(scores):
		return tree, OutcomeUnchanged
	}

	ranked := append([]Scored(nil), positive...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > r.topK {
		ranked = ranked[:r.topK]
	}

	keep := make(map[string]struct{}, len(ranked))
	for _, s := range ranked {
		keep[s.Key] = struct{}{}
	}
	var keys []string
	for _, key := range tree.Keys() {
		if _, ok := keep[key]; ok {
			keys = append(keys, key)
		}
	}
	return tree.Select(keys), OutcomeReduced
}

// ScoreChildren scores every top-level child of tree, in document order.
func ScoreChildren(tree *knowledge.Node, tokens []string) []Scored {
	out := make([]Scored, 0, tree.Len())
	for _, key := range tree.Keys() {
		child, _ := tree.Field(key)
		out = append(out, Scored{Key: key, Score: Score(key, child, tokens)})
	}
	return out
}

// Score computes the relevance of one child section.
func Score(key string, child *knowledge.Node, tokens []string) int {
	haystack := strings.ToLower(norm.NFC.String(key + " " + child.String()))
	score := 0
	for _, tok := range tokens {
		if tok == "" || !strings.Contains(haystack, tok) {
			continue
		}
		score += min(maxTokenWeight, utf8.RuneCountInString(tok))
	}
	return score
}

func (r *Reducer) fallback(tree *knowledge.Node, text string) (*knowledge.Node, bool) {
	lowered := strings.ToLower(norm.NFC.String(text))
	for _, rule := range r.fallbacks {
		if !containsAny(lowered, rule.Keywords) {
			continue
		}
		for _, path := range rule.Paths {
			n, ok := tree.Lookup(path)
			if !ok {
				continue
			}
			return knowledge.Wrap(path[strings.LastIndex(path, ".")+1:], n), true
		}
	}
	return nil, false
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(s, k) {
			return true
		}
	}
	return false
}
