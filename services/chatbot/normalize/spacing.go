// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package normalize

import (
	"regexp"
	"sort"
	"strings"
)

// =============================================================================
// Stage 2: Spacing
// =============================================================================

// spacingRule rewrites one known compound the model tends to emit without
// spaces. To must not contain any rule's From, so the table is a fixpoint.
type spacingRule struct {
	From string
	To   string
}

// spacingTable covers the guide's closed vocabulary.
var spacingTable = []spacingRule{
	{"원상복구체크리스트", "원상 복구 체크리스트"},
	{"퇴실체크리스트", "퇴실 체크리스트"},
	{"입주체크리스트", "입주 체크리스트"},
	{"거주계약기간관리", "거주 계약 기간 관리"},
	{"거주중이슈기록", "거주 중 이슈 기록"},
	{"거주중관리", "거주 중 관리"},
	{"입주상태기록", "입주 상태 기록"},
	{"우편물주소변경", "우편물 주소 변경"},
	{"보증금관리", "보증금 관리"},
	{"보증금반환", "보증금 반환"},
	{"주거비관리", "주거비 관리"},
	{"계약서점검", "계약서 점검"},
	{"등기부등본분석", "등기부등본 분석"},
	{"퇴실관리", "퇴실 관리"},
	{"열쇠반납", "열쇠 반납"},
	{"공과금정산", "공과금 정산"},
	{"해보시면돼요", "해 보시면 돼요"},
	{"해보시면", "해 보시면"},
	{"해보세요", "해 보세요"},
	{"하시면돼요", "하시면 돼요"},
}

// spacingStems precede "수 있" / "수 없" and are expanded into rules.
var spacingStems = []string{"할", "볼", "받을", "될", "쓸", "알", "줄", "찾을", "있을", "없을", "드릴"}

var guideTopicPattern = regexp.MustCompile(`가이드에는([가-힣A-Za-z0-9])`)

var spacingRules = buildSpacingRules()

func buildSpacingRules() []spacingRule {
	rules := append([]spacingRule(nil), spacingTable...)
	for _, stem := range spacingStems {
		rules = append(rules,
			spacingRule{stem + "수있", stem + " 수 있"},
			spacingRule{stem + "수없", stem + " 수 없"},
		)
	}
	// longest first so a compound is rewritten before its parts
	sort.SliceStable(rules, func(i, j int) bool {
		return len(rules[i].From) > len(rules[j].From)
	})
	return rules
}

// RestoreSpacing inserts the missing spaces in known compounds.
func RestoreSpacing(s string) string {
	for _, r := range spacingRules {
		if strings.Contains(s, r.From) {
			s = strings.ReplaceAll(s, r.From, r.To)
		}
	}
	return guideTopicPattern.ReplaceAllString(s, "가이드에는 $1")
}
