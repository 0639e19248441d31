// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generator

import (
	"strings"
	"unicode/utf8"

	"github.com/homescan/guidebot/services/chatbot/datatypes"
	"github.com/homescan/guidebot/services/chatbot/knowledge"
	"github.com/homescan/guidebot/services/llm"
)

// =============================================================================
// Prompt Limits
// =============================================================================

const (
	// MaxHistoryTurns is how many previous turns are sent to the model.
	MaxHistoryTurns = 10

	// MaxContextRunes bounds the serialized guide context.
	MaxContextRunes = 12000
)

// =============================================================================
// System Instructions
// =============================================================================

const behaviorPolicy = `당신은 Home'Scan 앱의 임대차 가이드 도우미예요.
아래 규칙을 지켜 답변하세요.
- 반드시 아래 가이드 정보에 있는 내용만 근거로 답변하세요.
- 친절한 해요체를 사용하세요.
- 마크다운 기호(#, *, ` + "`" + `, 표)를 쓰지 마세요.
- 한 문장이 끝나면 줄을 바꾸세요.
- 띄어쓰기를 정확히 지키세요.
- 가이드에 없는 내용은 추측하지 말고 가이드에서 확인할 수 있는 관련 항목을 안내하세요.
- 질문이 임대차, 계약, 거주, 퇴실과 전혀 관계없을 때만 다음 문장을 그대로 출력하세요.
`

const contextHeader = "가이드 정보 (참고용):\n"

const outOfScopeInstruction = `다음 문장만 그대로 출력하세요.
다른 말은 덧붙이지 마세요.
`

const correctiveInstruction = `[추가 지시]
이 질문은 서비스 범위 안의 질문이에요.
아래 문장은 절대 출력하지 말고 가이드 정보에서 가장 관련 있는 내용을 찾아 안내하세요.
`

// SystemPrompt builds the system message.
//
// # Description
//
// Out-of-scope requests get an instruction to emit only the fixed refusal.
// In-scope requests get the behavior policy followed by the truncated
// guide context. The corrective variant appends a block forbidding the
// refusal; it is used for the single self-correction call.
func SystemPrompt(req Request, corrective bool) string {
	if !req.InScope {
		return outOfScopeInstruction + datatypes.OffTopicMessage
	}

	var b strings.Builder
	b.WriteString(behaviorPolicy)
	b.WriteString(datatypes.OffTopicMessage)
	b.WriteString("\n\n")
	b.WriteString(contextHeader)
	b.WriteString(ContextText(req.Context))
	if corrective {
		b.WriteString("\n\n")
		b.WriteString(correctiveInstruction)
		b.WriteString(datatypes.OffTopicMessage)
	}
	return b.String()
}

// ContextText serializes the guide context, truncated to MaxContextRunes
// with a notice.
func ContextText(ctx *knowledge.Node) string {
	if ctx == nil {
		return ""
	}
	return truncate(ctx.Indented(), MaxContextRunes)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + datatypes.TruncationNotice
		}
		n++
	}
	return s
}

// Messages assembles the full prompt: system message, the most recent
// MaxHistoryTurns turns oldest first, then the question.
func Messages(req Request, corrective bool) []llm.Message {
	history := req.History
	if len(history) > MaxHistoryTurns {
		history = history[len(history)-MaxHistoryTurns:]
	}

	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: SystemPrompt(req, corrective)})
	for _, t := range history {
		role := llm.RoleUser
		if t.Role == datatypes.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Text})
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: req.Question})
}
