// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package direct answers curated questions straight from the guide
// document without calling the completion model.
package direct

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/homescan/guidebot/services/chatbot/knowledge"
	"github.com/homescan/guidebot/services/chatbot/relevance"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// Scoring Constants
// =============================================================================

const (
	scoreNormalizedEqual    = 1000
	scoreNormalizedContains = 600
	scorePerOverlapToken    = 50
	scoreHighOverlapBonus   = 200

	// acceptScore, acceptOverlap and acceptRatio are alternative
	// thresholds; meeting any one accepts a candidate.
	acceptScore   = 200
	acceptOverlap = 2
	acceptRatio   = 0.6
)

// =============================================================================
// Types
// =============================================================================

// MatchKind names the strongest rule that matched a candidate.
type MatchKind string

const (
	MatchExact        MatchKind = "exact"
	MatchNormalized   MatchKind = "normalized"
	MatchTokenOverlap MatchKind = "token_overlap"
)

// Candidate is a scored suggestion. Transient, one per registered label.
type Candidate struct {
	Label       string
	SectionPath string
	Score       int
	Overlap     int
	Ratio       float64
	Kind        MatchKind
}

// Accepted reports whether the candidate clears any acceptance threshold.
func (c Candidate) Accepted() bool {
	if c.Kind == MatchExact {
		return true
	}
	return c.Score >= acceptScore || c.Overlap >= acceptOverlap || c.Ratio >= acceptRatio
}

// Answer is a resolved direct answer.
type Answer struct {
	Candidate
	Text string
}

// Resolver matches questions against the guide's suggested questions.
//
// # Description
//
// Candidates come from the suggestions registered under the topic hint,
// or from every topic when there is no hint. Matching runs in priority
// order:
//
//  1. Verbatim equality with a label wins immediately.
//  2. Normalized forms (NFC, lowercase, no spaces or punctuation) that
//     are equal score 1000; containment either way scores 600.
//  3. Shared tokens add 50 each, plus 200 when they cover at least 60%
//     of the label's tokens.
//
// The highest accepted score wins; ties go to the earlier suggestion. The
// winning section path must resolve in the document, otherwise there is
// no answer.
//
// # Thread Safety
//
// Safe for concurrent use.
type Resolver struct {
	kb *knowledge.Base
}

// NewResolver creates a Resolver over a loaded guide.
func NewResolver(kb *knowledge.Base) *Resolver {
	return &Resolver{kb: kb}
}

// Resolve returns a rendered direct answer for the question, if one
// matches confidently.
func (r *Resolver) Resolve(ctx context.Context, topic, question string) (*Answer, bool) {
	_, span := otel.Tracer("direct").Start(ctx, "direct.Resolver.Resolve")
	defer span.End()

	best, ok := Match(question, r.kb.Suggestions(topic))
	span.SetAttributes(attribute.Bool("matched", ok))
	if !ok {
		return nil, false
	}
	span.SetAttributes(
		attribute.String("match_kind", string(best.Kind)),
		attribute.Int("score", best.Score),
		attribute.String("section", best.SectionPath),
	)

	section, err := r.kb.Lookup(best.SectionPath)
	if err != nil {
		slog.Debug("direct answer section missing", "section", best.SectionPath, "error", err)
		return nil, false
	}
	text := knowledge.Render(section)
	if text == "" {
		return nil, false
	}
	return &Answer{Candidate: best, Text: text}, true
}

// Match scores the question against every suggestion and returns the
// winning candidate. Suggestions without a section path never match.
func Match(question string, suggestions []knowledge.Suggestion) (Candidate, bool) {
	q := strings.TrimSpace(question)
	if q == "" {
		return Candidate{}, false
	}

	for _, s := range suggestions {
		if s.Section != "" && q == strings.TrimSpace(s.Label) {
			return Candidate{
				Label:       s.Label,
				SectionPath: s.Section,
				Score:       scoreNormalizedEqual,
				Kind:        MatchExact,
			}, true
		}
	}

	qNorm := normalize(q)
	qTokens := relevance.Tokenize(q)

	var best Candidate
	found := false
	for _, s := range suggestions {
		if s.Section == "" {
			continue
		}
		c := score(qNorm, qTokens, s)
		if !c.Accepted() {
			continue
		}
		if !found || c.Score > best.Score {
			best, found = c, true
		}
	}
	return best, found
}

func score(qNorm string, qTokens []string, s knowledge.Suggestion) Candidate {
	c := Candidate{Label: s.Label, SectionPath: s.Section, Kind: MatchTokenOverlap}

	lNorm := normalize(s.Label)
	switch {
	case qNorm == "" || lNorm == "":
	case qNorm == lNorm:
		c.Score, c.Kind = scoreNormalizedEqual, MatchNormalized
	case strings.Contains(qNorm, lNorm) || strings.Contains(lNorm, qNorm):
		c.Score, c.Kind = scoreNormalizedContains, MatchNormalized
	}

	lTokens := relevance.Tokenize(s.Label)
	if len(lTokens) == 0 {
		return c
	}
	inQuestion := make(map[string]struct{}, len(qTokens))
	for _, t := range qTokens {
		inQuestion[t] = struct{}{}
	}
	for _, t := range lTokens {
		if _, ok := inQuestion[t]; ok {
			c.Overlap++
		}
	}
	c.Ratio = float64(c.Overlap) / float64(len(lTokens))
	c.Score += c.Overlap * scorePerOverlapToken
	if c.Ratio >= acceptRatio {
		c.Score += scoreHighOverlapBonus
	}
	return c
}

// normalize folds a string for comparison: NFC, lowercase, and without
// whitespace, punctuation or symbols.
func normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return r
	}, strings.ToLower(norm.NFC.String(s)))
}
