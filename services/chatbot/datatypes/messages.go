// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// =============================================================================
// Fixed User-Facing Messages
// =============================================================================
//
// OffTopicMessage is compared byte-for-byte by clients to detect a refusal.
// The refusal detection rules in the normalize package are tuned to its
// wording and must change together with it.

const (
	// OffTopicMessage is the single approved out-of-scope answer.
	OffTopicMessage = "입력해 주신 내용은 현재 제공 중인 Home'Scan 가이드에 없는 내용이라 정확한 안내가 어려운 점 양해 부탁드립니다.\n" +
		"가이드에 있는 주제(계약서 점검, 등기부등본 분석, 거주 중 관리, 퇴실 관리)와 관련된 내용을 입력해 주시면 바로 안내해 드릴게요."

	// NotConfiguredMessage is returned when no completion API key is set.
	NotConfiguredMessage = "OpenAI API 키가 설정되지 않았습니다. .env 파일에 OPENAI_API_KEY를 추가해주세요."

	// StreamErrorMessage is emitted once when a stream fails midway.
	StreamErrorMessage = "(응답 생성 중 일시 오류가 있었습니다.)"

	// TruncationNotice is appended to guide context cut to the size budget.
	TruncationNotice = "\n\n(가이드 내용이 많아 일부만 사용했습니다.)"

	// LegalDisclaimer is appended to answers that mention court decisions.
	LegalDisclaimer = "※ 가이드 기준 참고용이며 법률 자문이 아니에요."
)
