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

import "time"

// Turn is one immutable message of a conversation.
//
// Owner is the conversation-owner identifier resolved from the caller's
// credential. Turns of one owner are ordered by CreatedAt, then by ID.
type Turn struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Response converts the turn to its UI shape.
func (t Turn) Response() TurnResponse {
	return TurnResponse{
		ID:        t.ID,
		Type:      t.Role.DisplayType(),
		Text:      t.Text,
		Timestamp: t.CreatedAt,
	}
}
