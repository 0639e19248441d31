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
	"fmt"
	"strings"
	"testing"

	"github.com/homescan/guidebot/services/chatbot/knowledge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, doc string) *knowledge.Node {
	t.Helper()
	n, err := knowledge.Parse([]byte(doc))
	require.NoError(t, err)
	return n
}

// =============================================================================
// Tokenize Tests
// =============================================================================

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "words with punctuation",
			text: "보증금은 언제 받을 수 있나요?",
			want: []string{"보증금은", "언제", "받을", "있나요"},
		},
		{
			name: "lowercases and dedupes",
			text: "Deposit deposit RETURN",
			want: []string{"deposit", "return"},
		},
		{
			name: "single run uses windows",
			text: "보증금반환",
			want: []string{"보증금반환", "보증", "증금", "금반", "반환"},
		},
		{
			name: "single word keeps the word and its windows",
			text: "보증금",
			want: []string{"보증금", "보증", "증금"},
		},
		{
			name: "all short words fall back to windows",
			text: "집 방",
			want: []string{"집방"},
		},
		{
			name: "empty",
			text: "   ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.text))
		})
	}
}

func TestTokenize_WindowCap(t *testing.T) {
	long := strings.Repeat("가나다라마바사아자차카타파하", 5)
	tokens := Tokenize(long)
	assert.LessOrEqual(t, len(tokens), MaxWindows)
	assert.NotEmpty(t, tokens)
}

// =============================================================================
// Score Tests
// =============================================================================

func TestScore_CapsTokenWeight(t *testing.T) {
	child := parse(t, `{"title": "원상복구체크리스트 안내"}`)

	assert.Equal(t, 5, Score("restoration", child, []string{"원상복구체크리스트"}))
	assert.Equal(t, 2+5, Score("restoration", child, []string{"안내", "restoration"}))
	assert.Equal(t, 0, Score("restoration", child, []string{"보증금"}))
}

// =============================================================================
// Reduce Tests
// =============================================================================

func wideTree(t *testing.T, matching, other int) *knowledge.Node {
	t.Helper()
	var parts []string
	for i := 0; i < matching; i++ {
		parts = append(parts, fmt.Sprintf(`"m%02d": {"title": "보증금 항목 %d"}`, i, i))
	}
	for i := 0; i < other; i++ {
		parts = append(parts, fmt.Sprintf(`"o%02d": {"title": "열쇠 항목 %d"}`, i, i))
	}
	return parse(t, "{"+strings.Join(parts, ",")+"}")
}

func TestReduce_KeepsOnlyPositiveChildren(t *testing.T) {
	tree := parse(t, `{
		"deposit": {"title": "보증금 관리"},
		"keys": {"title": "열쇠 반납"},
		"cost": {"title": "주거비 관리", "tip": "보증금과 별도예요"}
	}`)

	got, outcome := NewReducer().Reduce(tree, "보증금 돌려받기")
	assert.Equal(t, OutcomeReduced, outcome)
	assert.Equal(t, []string{"deposit", "cost"}, got.Keys())
	assert.Equal(t, []string{"deposit", "keys", "cost"}, tree.Keys(), "input must not change")
}

func TestReduce_TopKCutoff(t *testing.T) {
	tree := wideTree(t, 10, 2)

	got, outcome := NewReducer().Reduce(tree, "보증금 질문")
	assert.Equal(t, OutcomeReduced, outcome)
	assert.Len(t, got.Keys(), DefaultTopK)
	for _, k := range got.Keys() {
		assert.True(t, strings.HasPrefix(k, "m"), k)
	}

	got, _ = NewReducer(WithTopK(3)).Reduce(tree, "보증금 질문")
	assert.Len(t, got.Keys(), 3)
}

func TestReduce_HigherScoresWin(t *testing.T) {
	tree := parse(t, `{
		"a": {"title": "보증금"},
		"b": {"title": "보증금 반환 일정"},
		"c": {"title": "관련 없음"}
	}`)

	got, _ := NewReducer(WithTopK(1)).Reduce(tree, "보증금 반환 일정")
	assert.Equal(t, []string{"b"}, got.Keys())
}

func TestReduce_AllPositiveUnchanged(t *testing.T) {
	tree := wideTree(t, 12, 0)
	got, outcome := NewReducer().Reduce(tree, "보증금 질문")
	assert.Equal(t, OutcomeUnchanged, outcome)
	assert.Same(t, tree, got)
}

func TestReduce_NoMatchUnchanged(t *testing.T) {
	tree := parse(t, `{"a": {"title": "열쇠"}, "b": {"title": "우편물"}}`)
	got, outcome := NewReducer().Reduce(tree, "전혀 다른 이야기")
	assert.Equal(t, OutcomeUnchanged, outcome)
	assert.Same(t, tree, got)
}

func TestReduce_Idempotent(t *testing.T) {
	tree := wideTree(t, 10, 4)
	r := NewReducer()

	first, _ := r.Reduce(tree, "보증금 질문")
	second, outcome := r.Reduce(first, "보증금 질문")
	assert.Equal(t, OutcomeUnchanged, outcome)
	assert.Equal(t, first.Keys(), second.Keys())
}

func TestReduce_FallbackRoutesDamageToIssueLog(t *testing.T) {
	kb, err := knowledge.LoadDefault()
	require.NoError(t, err)
	tree := kb.Context("residency")

	got, outcome := NewReducer().Reduce(tree, "벽이 파손됐어")
	assert.Equal(t, OutcomeFallback, outcome)
	assert.Equal(t, []string{"issue_log"}, got.Keys())

	again, outcome := NewReducer().Reduce(got, "벽이 파손됐어")
	assert.Equal(t, OutcomeFallback, outcome)
	assert.Equal(t, got.Keys(), again.Keys())
}

func TestReduce_FallbackFromWholeDocument(t *testing.T) {
	tree := parse(t, `{"residency_management": {"issue_log": {"title": "이슈"}}, "other": {"title": "기타"}}`)
	got, outcome := NewReducer().Reduce(tree, "누수")
	assert.Equal(t, OutcomeFallback, outcome)
	assert.Equal(t, []string{"issue_log"}, got.Keys())
}

func TestReduce_NonObjectAndBlankText(t *testing.T) {
	list := parse(t, `["보증금"]`)
	got, outcome := NewReducer().Reduce(list, "보증금")
	assert.Same(t, list, got)
	assert.Equal(t, OutcomeUnchanged, outcome)

	tree := parse(t, `{"a": "보증금", "b": "열쇠"}`)
	got, _ = NewReducer().Reduce(tree, "  ")
	assert.Same(t, tree, got)
}
