// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package relevance

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// MinTokenLength is the shortest whitespace token kept, in runes.
	MinTokenLength = 2

	// MaxWindows caps the number of tokens generated for text that has
	// no usable whitespace tokens.
	MaxWindows = 40
)

// Tokenize extracts lowercase match tokens from free text.
//
// Whitespace-separated words of at least MinTokenLength runes are kept
// after trimming surrounding punctuation. When the text is a single run
// without spaces, or no word is long enough, the whole run is kept as the
// first token and overlapping 2-rune windows follow it (at most MaxWindows
// tokens in total) so agglutinated input still matches partially. Tokens
// are deduplicated, first occurrence first.
func Tokenize(text string) []string {
	folded := strings.ToLower(norm.NFC.String(text))
	fields := strings.Fields(folded)

	if len(fields) > 1 {
		if tokens := wordTokens(fields); len(tokens) > 0 {
			return tokens
		}
	}
	return windows(strings.Join(fields, ""))
}

func wordTokens(fields []string) []string {
	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tok := strings.TrimFunc(f, isPunct)
		if utf8.RuneCountInString(tok) < MinTokenLength {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}
	return tokens
}

func windows(run string) []string {
	runes := []rune(strings.Map(func(r rune) rune {
		if isPunct(r) {
			return -1
		}
		return r
	}, run))

	seen := make(map[string]struct{})
	var out []string
	if len(runes) >= MinTokenLength {
		word := string(runes)
		seen[word] = struct{}{}
		out = append(out, word)
	}
	for i := 0; i+2 <= len(runes) && len(out) < MaxWindows; i++ {
		w := string(runes[i : i+2])
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func isPunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}
