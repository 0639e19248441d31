// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fallback

import (
	"strings"
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

func TestAnswer_RendersDepositSection(t *testing.T) {
	kb := loadGuide(t)
	got := New(kb).Answer("보증금은 언제 받을 수 있나요?")

	node, err := kb.Lookup("moveout_management.deposit_management")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(got, "가이드에는 보증금 반환이 이렇게 돼 있어요.\n\n"))
	assert.Contains(t, got, knowledge.Render(node))
}

func TestAnswer_HousingCostHasOutro(t *testing.T) {
	got := New(loadGuide(t)).Answer("거주 중 관리비는 어떻게 기록해요?")

	assert.True(t, strings.HasPrefix(got, "주거비 관리 기능은"))
	assert.True(t, strings.HasSuffix(got, "세부 설정은 거주 관리 페이지에서 확인해 보세요."))
}

func TestAnswer_CannedRules(t *testing.T) {
	a := New(loadGuide(t))

	tests := []struct {
		text string
		want string
	}{
		{text: "퇴실할 때 도배 문제", want: "도배와 장판 손상"},
		{text: "이사 체크리스트", want: "퇴실 체크리스트에는"},
		{text: "이사 준비", want: "퇴실 관리 페이지에 있어요"},
		{text: "계약서 특약이 궁금해", want: "계약서 점검 페이지"},
		{text: "등기 확인 방법", want: "등기부등본 분석에서는"},
		{text: "매물 검색", want: "매물 찾기"},
		{text: "거주 중에 뭘 봐야 해요", want: "거주 관리 페이지에서 계약 기간"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Contains(t, a.Answer(tt.text), tt.want)
		})
	}
}

func TestAnswer_Default(t *testing.T) {
	assert.Equal(t, DefaultAnswer, New(loadGuide(t)).Answer("무엇을 할 수 있어?"))
}

func TestAnswer_WithoutGuideUsesText(t *testing.T) {
	got := New(nil).Answer("보증금 반환")
	assert.Equal(t, "보증금 반환 일정은 퇴실 관리 페이지에서 확인해 보세요.", got)
}

func TestAnswer_MissingSectionUsesText(t *testing.T) {
	rules := []Rule{{Any: []string{"보증금"}, Section: "nope.missing", Text: "대체 안내"}}
	assert.Equal(t, "대체 안내", New(loadGuide(t), rules...).Answer("보증금"))
}
