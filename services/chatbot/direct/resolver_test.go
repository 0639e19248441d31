// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package direct

import (
	"context"
	"testing"

	"github.com/homescan/guidebot/services/chatbot/knowledge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadGuide(t *testing.T) *knowledge.Base {
	t.Helper()
	kb, err := knowledge.LoadDefault()
	require.NoError(t, err)
	return kb
}

func TestMatch(t *testing.T) {
	suggestions := []knowledge.Suggestion{
		{Label: "보증금 체크리스트 알려줘", Section: "a"},
		{Label: "퇴실 체크리스트 보여줘", Section: "b"},
		{Label: "원상 복구 범위가 궁금해요", Section: "c"},
	}

	tests := []struct {
		name     string
		question string
		section  string
		kind     MatchKind
		ok       bool
	}{
		{
			name:     "exact",
			question: "보증금 체크리스트 알려줘",
			section:  "a",
			kind:     MatchExact,
			ok:       true,
		},
		{
			name:     "exact ignores surrounding whitespace",
			question: "  퇴실 체크리스트 보여줘 ",
			section:  "b",
			kind:     MatchExact,
			ok:       true,
		},
		{
			name:     "normalized equality",
			question: "원상복구 범위가 궁금해요!!",
			section:  "c",
			kind:     MatchNormalized,
			ok:       true,
		},
		{
			name:     "normalized containment",
			question: "퇴실체크리스트",
			section:  "b",
			kind:     MatchNormalized,
			ok:       true,
		},
		{
			name:     "two shared tokens",
			question: "퇴실 체크리스트 다시",
			section:  "b",
			kind:     MatchTokenOverlap,
			ok:       true,
		},
		{
			name:     "one coincidental token is rejected",
			question: "체크리스트 만드는 앱 추천",
			ok:       false,
		},
		{
			name:     "unrelated",
			question: "보증금은 언제 받을 수 있나요?",
			ok:       false,
		},
		{
			name:     "blank",
			question: "   ",
			ok:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Match(tt.question, suggestions)
			require.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, tt.section, got.SectionPath)
			assert.Equal(t, tt.kind, got.Kind)
		})
	}
}

func TestMatch_ExactWinsOverHigherScores(t *testing.T) {
	suggestions := []knowledge.Suggestion{
		// normalizes equal to the question and comes first
		{Label: "보증금 체크리스트 알려줘!", Section: "normalized"},
		{Label: "보증금 체크리스트 알려줘 보증금 체크리스트", Section: "overlap"},
		{Label: "보증금 체크리스트 알려줘", Section: "exact"},
	}
	got, ok := Match("보증금 체크리스트 알려줘", suggestions)
	require.True(t, ok)
	assert.Equal(t, "exact", got.SectionPath)
	assert.Equal(t, MatchExact, got.Kind)
}

func TestMatch_HighestScoreWinsAndTiesGoFirst(t *testing.T) {
	suggestions := []knowledge.Suggestion{
		{Label: "퇴실 일정", Section: "first"},
		{Label: "퇴실 일정", Section: "second"},
		{Label: "퇴실 일정 보증금 반환", Section: "wider"},
	}
	got, ok := Match("퇴실 일정 알려줘", suggestions)
	require.True(t, ok)
	// "퇴실 일정" is contained in the question: 600 + 2*50 + 200
	assert.Equal(t, "first", got.SectionPath)
	assert.Equal(t, 900, got.Score)
}

func TestMatch_SkipsSuggestionsWithoutSection(t *testing.T) {
	_, ok := Match("보증금", []knowledge.Suggestion{{Label: "보증금"}})
	assert.False(t, ok)
}

func TestResolver_RendersMatchedSection(t *testing.T) {
	kb := loadGuide(t)
	r := NewResolver(kb)

	ans, ok := r.Resolve(context.Background(), "moveout", "보증금 체크리스트 알려줘")
	require.True(t, ok)

	section, err := kb.Lookup("moveout_management.deposit_management")
	require.NoError(t, err)
	assert.Equal(t, knowledge.Render(section), ans.Text)
	assert.Equal(t, MatchExact, ans.Kind)
	assert.Contains(t, ans.Text, "보증금 관리")
}

func TestResolver_TopicLimitsCandidates(t *testing.T) {
	r := NewResolver(loadGuide(t))

	_, ok := r.Resolve(context.Background(), "residency", "보증금 체크리스트 알려줘")
	assert.False(t, ok)

	_, ok = r.Resolve(context.Background(), "", "보증금 체크리스트 알려줘")
	assert.True(t, ok)
}

func TestResolver_MissingSectionFallsThrough(t *testing.T) {
	root, err := knowledge.Parse([]byte(`{
		"suggested_questions": {"moveout": [{"label": "없는 섹션", "section": "moveout_management.ghost"}]},
		"moveout_management": {"title": "퇴실"}
	}`))
	require.NoError(t, err)
	kb, err := knowledge.New(root)
	require.NoError(t, err)

	_, ok := NewResolver(kb).Resolve(context.Background(), "moveout", "없는 섹션")
	assert.False(t, ok)
}
