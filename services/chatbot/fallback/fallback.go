// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fallback answers from fixed keyword rules when model generation
// fails.
package fallback

import (
	"strings"

	"github.com/homescan/guidebot/services/chatbot/knowledge"
)

// DefaultAnswer is used when no rule matches.
const DefaultAnswer = "지금은 답변을 만들기 어려워요.\n거주 관리, 퇴실 관리, 계약서 점검 중 궁금한 주제를 골라 다시 질문해 주세요."

// Rule maps keywords to a canned answer.
//
// A rule matches when the text contains one of Gate (if any) and one of
// Any (if any). When Section resolves in the guide, the answer is Intro
// followed by the rendered section and Outro; otherwise it is Text.
type Rule struct {
	Gate    []string
	Any     []string
	Section string
	Intro   string
	Outro   string
	Text    string
}

var (
	residencyGate = []string{"거주", "입주", "주거비"}
	moveoutGate   = []string{"퇴실", "이사", "보증금", "원상복구", "원상 복구", "분쟁"}
)

// DefaultRules is the rule table, first match wins.
func DefaultRules() []Rule {
	return []Rule{
		{
			Gate:    residencyGate,
			Any:     []string{"주거비", "월세", "관리비"},
			Section: "residency_management.housing_cost",
			Intro:   "주거비 관리 기능은 가이드 기준으로 이렇게 정리돼 있어요.",
			Outro:   "세부 설정은 거주 관리 페이지에서 확인해 보세요.",
			Text:    "주거비 관리는 거주 관리 페이지에서 확인해 보세요.",
		},
		{
			Gate:    residencyGate,
			Any:     []string{"입주 상태", "입주 기록", "입주기록"},
			Section: "residency_management.move_in_record",
			Intro:   "입주 시 촬영한 사진을 공간별로 분류해서 기록할 수 있어요.",
			Text:    "입주 상태 기록은 거주 관리 페이지에서 확인해 보세요.",
		},
		{
			Gate: residencyGate,
			Text: "거주 관리 페이지에서 계약 기간, 주거비, 입주 상태 기록, 거주 중 이슈를 볼 수 있어요.\n궁금한 걸 골라서 질문해 주세요.",
		},
		{
			Gate:    moveoutGate,
			Any:     []string{"보증금"},
			Section: "moveout_management.deposit_management",
			Intro:   "가이드에는 보증금 반환이 이렇게 돼 있어요.",
			Text:    "보증금 반환 일정은 퇴실 관리 페이지에서 확인해 보세요.",
		},
		{
			Gate: moveoutGate,
			Any:  []string{"분쟁", "도배", "장판", "주방"},
			Text: "도배와 장판 손상, 주방 설비 하자, TV와 액자 흔적 같은 건 퇴실 관리 페이지의 원상 복구 가이드에서 자세히 볼 수 있어요.",
		},
		{
			Gate: moveoutGate,
			Any:  []string{"체크리스트"},
			Text: "퇴실 체크리스트에는 전기, 가스, 수도 해지와 열쇠 반납, 우편물 주소 변경 같은 게 들어가요.\n퇴실 관리 페이지에서 보시면 돼요.",
		},
		{
			Gate: moveoutGate,
			Text: "퇴실 체크리스트, 원상 복구, 보증금 가이드는 퇴실 관리 페이지에 있어요.\n필요한 항목을 골라서 질문해 주세요.",
		},
		{
			Any:  []string{"계약서", "계약"},
			Text: "계약서 위험 조항은 계약서 점검 페이지에서 확인할 수 있어요.\n궁금한 조항이 있으면 말해 주세요.",
		},
		{
			Any:  []string{"등기부등본", "등기"},
			Text: "등기부등본 분석에서는 소유자 일치, 근저당과 가압류, 소유권 이전 시점, 공동 소유 여부, 선순위 권리를 볼 수 있어요.\n등기부등본 페이지에서 확인해 보세요.",
		},
		{
			Any:  []string{"매물", "집 찾기"},
			Text: "매물은 매물 찾기에서 지역, 가격, 옵션으로 검색할 수 있어요.",
		},
	}
}

// Answerer produces rule-based answers.
//
// # Thread Safety
//
// Immutable after construction; safe for concurrent use.
type Answerer struct {
	kb    *knowledge.Base
	rules []Rule
}

// New creates an Answerer over the guide. A nil kb makes section rules
// use their Text.
func New(kb *knowledge.Base, rules ...Rule) *Answerer {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Answerer{kb: kb, rules: rules}
}

// Answer returns the first matching rule's answer, or DefaultAnswer.
func (a *Answerer) Answer(text string) string {
	lower := strings.ToLower(text)
	for _, r := range a.rules {
		if !r.matches(lower) {
			continue
		}
		if answer := a.render(r); answer != "" {
			return answer
		}
	}
	return DefaultAnswer
}

func (r Rule) matches(lower string) bool {
	if len(r.Gate) > 0 && !containsAny(lower, r.Gate) {
		return false
	}
	if len(r.Any) > 0 && !containsAny(lower, r.Any) {
		return false
	}
	return len(r.Gate) > 0 || len(r.Any) > 0
}

func (a *Answerer) render(r Rule) string {
	if r.Section == "" || a.kb == nil {
		return r.Text
	}
	node, err := a.kb.Lookup(r.Section)
	if err != nil {
		return r.Text
	}
	body := knowledge.Render(node)
	if body == "" {
		return r.Text
	}

	parts := make([]string, 0, 3)
	for _, p := range []string{r.Intro, body, r.Outro} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
