// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scope decides whether a chat question belongs to the rental
// housing guide domain.
package scope

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// Patterns
// =============================================================================

// inScopeTerms are domain nouns of the guide: tenancy, deposit, lease
// clauses, registry terms, move-in and move-out, and app features.
var inScopeTerms = []string{
	"전세", "월세", "반전세", "임대", "임차", "집주인", "세입자", "보증금", "계약", "특약", "조항",
	"갱신", "중도해지", "등기", "근저당", "가압류", "가처분", "경매", "소유자", "소유권", "확정일자",
	"전입", "대항력", "우선변제", "입주", "퇴실", "이사", "원상복구", "원상", "하자", "누수", "곰팡이",
	"결로", "수리", "관리비", "주거비", "공과금", "매물", "부동산", "중개", "체크리스트", "분쟁",
	"내용증명", "거주", "홈스캔", "home'scan", "homescan", "deposit", "lease", "landlord",
	"tenant", "move-out", "moveout", "move-in",
}

// inScopeWordStarts only count at the start of a word, so "집" matches
// "집 보러" and "집을" but not "맛집".
var inScopeWordStarts = []string{"집"}

// outOfScopeTerms cover finance, politics, entertainment, weather and
// small talk.
var outOfScopeTerms = []string{
	"날씨", "기온", "미세먼지", "주식", "코인", "비트코인", "환율", "선거", "대통령", "정치", "국회",
	"영화", "드라마", "노래", "가수", "아이돌", "연예인", "게임", "축구", "야구", "맛집", "레시피",
	"요리", "운세", "로또", "농담", "심심", "뭐해", "weather", "stock", "bitcoin", "crypto",
	"movie", "election", "football", "joke",
}

// =============================================================================
// Types
// =============================================================================

// Reason explains how a Decision was reached.
type Reason string

const (
	ReasonTopicHint  Reason = "topic_hint"
	ReasonInScope    Reason = "in_scope_match"
	ReasonOutOfScope Reason = "out_of_scope_match"
	ReasonNoSignal   Reason = "no_signal"
)

// Decision is the derived scope verdict for one question.
type Decision struct {
	InScope bool
	Reason  Reason
}

// Classifier decides whether a question is in the guide domain.
//
// # Description
//
// An explicit topic hint always means in scope. Otherwise the text is
// folded (NFC, lowercase) and tested against the in-scope and
// out-of-scope terms:
//
//	in-scope match                      -> in scope
//	out-of-scope match, no in-scope one -> out of scope
//	neither                             -> in scope
//
// Latin terms match whole words, with an optional plural "s", so "lease"
// does not fire inside "please". Other terms match as substrings of the
// text with whitespace removed, so "확정 일자" still finds "확정일자".
//
// # Thread Safety
//
// Safe for concurrent use after construction.
type Classifier struct {
	inScope    termSet
	outOfScope termSet
}

// termSet is one compiled term list. A nil pattern never matches.
type termSet struct {
	// compact runs against the folded text with whitespace removed.
	compact *regexp.Regexp
	// spaced runs against the folded text with whitespace kept.
	spaced *regexp.Regexp
}

func (ts termSet) match(compact, spaced string) bool {
	return (ts.compact != nil && ts.compact.MatchString(compact)) ||
		(ts.spaced != nil && ts.spaced.MatchString(spaced))
}

// NewClassifier returns a Classifier using the built-in term lists.
func NewClassifier() *Classifier {
	c, err := newClassifier(inScopeTerms, inScopeWordStarts, outOfScopeTerms)
	if err != nil {
		panic(fmt.Sprintf("scope: built-in terms do not compile: %v", err))
	}
	return c
}

// NewClassifierWithTerms builds a Classifier from literal term lists.
func NewClassifierWithTerms(inTerms, outTerms []string) (*Classifier, error) {
	return newClassifier(inTerms, nil, outTerms)
}

func newClassifier(inTerms, inWordStarts, outTerms []string) (*Classifier, error) {
	if len(inTerms) == 0 || len(outTerms) == 0 {
		return nil, fmt.Errorf("scope: both term lists must be non-empty")
	}
	in, err := compileTerms(inTerms, inWordStarts)
	if err != nil {
		return nil, fmt.Errorf("scope: in-scope terms: %w", err)
	}
	out, err := compileTerms(outTerms, nil)
	if err != nil {
		return nil, fmt.Errorf("scope: out-of-scope terms: %w", err)
	}
	return &Classifier{inScope: in, outOfScope: out}, nil
}

func compileTerms(terms, wordStarts []string) (termSet, error) {
	var substrings, words, starts []string
	for _, t := range terms {
		f := compactFold(t)
		switch {
		case f == "":
		case isLatin(f):
			words = append(words, regexp.QuoteMeta(f))
		default:
			substrings = append(substrings, regexp.QuoteMeta(f))
		}
	}
	for _, t := range wordStarts {
		if f := compactFold(t); f != "" {
			starts = append(starts, regexp.QuoteMeta(f))
		}
	}

	var (
		ts     termSet
		spaced []string
		err    error
	)
	if len(substrings) > 0 {
		if ts.compact, err = regexp.Compile("(?:" + strings.Join(substrings, "|") + ")"); err != nil {
			return termSet{}, err
		}
	}
	if len(words) > 0 {
		spaced = append(spaced, `\b(?:`+strings.Join(words, "|")+`)s?\b`)
	}
	if len(starts) > 0 {
		spaced = append(spaced, `(?:^|[^\p{Hangul}])(?:`+strings.Join(starts, "|")+`)`)
	}
	if len(spaced) > 0 {
		if ts.spaced, err = regexp.Compile(strings.Join(spaced, "|")); err != nil {
			return termSet{}, err
		}
	}
	return ts, nil
}

func isLatin(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// Classify returns the scope decision for a question.
func (c *Classifier) Classify(ctx context.Context, topic, text string) Decision {
	if ctx == nil {
		ctx = context.Background()
	}
	_, span := otel.Tracer("scope").Start(ctx, "scope.Classifier.Classify",
		trace.WithAttributes(
			attribute.String("topic", topic),
			attribute.Int("text_length", len(text)),
		),
	)
	defer span.End()

	d := c.decide(topic, text)
	span.SetAttributes(
		attribute.Bool("in_scope", d.InScope),
		attribute.String("reason", string(d.Reason)),
	)
	return d
}

// InScope is shorthand for Classify(...).InScope.
func (c *Classifier) InScope(ctx context.Context, topic, text string) bool {
	return c.Classify(ctx, topic, text).InScope
}

func (c *Classifier) decide(topic, text string) Decision {
	if strings.TrimSpace(topic) != "" {
		return Decision{InScope: true, Reason: ReasonTopicHint}
	}
	spaced := fold(text)
	compact := compactFold(text)
	if c.inScope.match(compact, spaced) {
		return Decision{InScope: true, Reason: ReasonInScope}
	}
	if c.outOfScope.match(compact, spaced) {
		return Decision{InScope: false, Reason: ReasonOutOfScope}
	}
	return Decision{InScope: true, Reason: ReasonNoSignal}
}

func fold(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

func compactFold(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, fold(s))
}
