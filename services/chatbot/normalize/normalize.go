// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package normalize rewrites raw model output into the chatbot's display
// format.
//
// Normalize applies, in order: markup stripping, spacing restoration,
// punctuation and line-break normalization, refusal canonicalization and
// the legal disclaimer. Every stage is a pure function and the whole
// transform is idempotent.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/homescan/guidebot/services/chatbot/datatypes"
)

// Normalize runs every stage and returns the display text. Blank input
// yields "".
func Normalize(text string) string {
	s := StripMarkup(text)
	s = RestoreSpacing(s)
	s = NormalizePunctuation(s)
	if s == "" {
		return ""
	}
	if IsOffTopic(s) {
		return datatypes.OffTopicMessage
	}
	return AppendDisclaimer(s)
}

// =============================================================================
// Stage 1: Markup
// =============================================================================

var (
	fencePattern      = regexp.MustCompile("(?m)^[ \t]*```[A-Za-z0-9_-]*[ \t]*\n?")
	headingPattern    = regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]*`)
	boldPattern       = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	underBoldPattern  = regexp.MustCompile(`__([^_\n]+)__`)
	italicPattern     = regexp.MustCompile(`\*([^*\n]+)\*`)
	inlineCodePattern = regexp.MustCompile("`([^`\n]*)`")
	blankRunPattern   = regexp.MustCompile(`(\n\s*){3,}`)
)

// StripMarkup removes heading markers, bold and italic wrappers, code
// fences and inline-code backticks, keeping the wrapped words.
func StripMarkup(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = fencePattern.ReplaceAllString(s, "")
	s = headingPattern.ReplaceAllString(s, "")
	s = boldPattern.ReplaceAllString(s, "$1")
	s = underBoldPattern.ReplaceAllString(s, "$1")
	s = italicPattern.ReplaceAllString(s, "$1")
	s = inlineCodePattern.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, "**", "")
	return blankRunPattern.ReplaceAllString(s, "\n\n")
}

// =============================================================================
// Stage 3: Punctuation
// =============================================================================

var (
	multiDotPattern    = regexp.MustCompile(`\.{2,}\s*$`)
	spaceRunPattern    = regexp.MustCompile(`[ \t]+`)
	sentenceEndPattern = regexp.MustCompile(`([.?!])\s+`)
	lineEdgePattern    = regexp.MustCompile(`[ \t]*\n[ \t]*`)
)

// NormalizePunctuation puts one sentence per line, collapses runs of
// spaces and blank lines, and guarantees a single terminal mark. Only a
// trailing run of dots is collapsed; an ellipsis inside the text stays.
func NormalizePunctuation(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
	if s == "" {
		return ""
	}
	s = multiDotPattern.ReplaceAllString(s, ".")
	s = spaceRunPattern.ReplaceAllString(s, " ")
	s = sentenceEndPattern.ReplaceAllString(s, "$1\n")
	s = lineEdgePattern.ReplaceAllString(s, "\n")
	s = blankRunPattern.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)

	if !strings.HasSuffix(s, ".") && !strings.HasSuffix(s, "?") && !strings.HasSuffix(s, "!") {
		s += "."
	}
	return multiDotPattern.ReplaceAllString(s, ".")
}

// =============================================================================
// Stage 4: Refusal Canonicalization
// =============================================================================

// refusalMarkers are whitespace-free fragments of the approved refusal and
// of the phrasings models produce when paraphrasing it.
var refusalMarkers = []string{
	"입력해주신내용은현재제공중인",
	"가이드에없는내용이라",
	"정확한안내가어려운점양해부탁",
	"계약서점검서비스와는관련이없어",
}

// refusalPhrases match looser paraphrases within one sentence.
var refusalPhrases = []*regexp.Regexp{
	regexp.MustCompile(`(가이드|서비스|제공)[^.\n]{0,30}(범위|영역)[^.\n]{0,10}(밖|벗어)`),
	regexp.MustCompile(`(범위|영역)[^.\n]{0,10}(밖|벗어)[^.\n]{0,20}(질문|문의)`),
	regexp.MustCompile(`관련이\s*없[^.\n]{0,40}(안내가\s*어려|양해\s*부탁|답변을?\s*(드리기)?\s*어려)`),
}

var compactRefusal = compact(datatypes.OffTopicMessage)

// IsOffTopic reports whether the text is the refusal message or a near
// variant of it.
func IsOffTopic(s string) bool {
	if s == datatypes.OffTopicMessage {
		return true
	}
	c := compact(s)
	if strings.Contains(c, compactRefusal) {
		return true
	}
	for _, marker := range refusalMarkers {
		if strings.Contains(c, marker) {
			return true
		}
	}
	for _, p := range refusalPhrases {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// Canonicalize replaces any refusal variant with the approved message.
func Canonicalize(s string) string {
	if IsOffTopic(s) {
		return datatypes.OffTopicMessage
	}
	return s
}

func compact(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// =============================================================================
// Stage 5: Disclaimer
// =============================================================================

var litigationPattern = regexp.MustCompile(`판결|원고|피고|법원의|대법원|1심|2심|확정\s*판결|소송\s*절차`)

// AppendDisclaimer adds the legal disclaimer on its own line when the text
// mentions court decisions or litigation. It never adds it twice.
func AppendDisclaimer(s string) string {
	if !litigationPattern.MatchString(s) || strings.Contains(s, datatypes.LegalDisclaimer) {
		return s
	}
	return s + "\n" + datatypes.LegalDisclaimer
}
