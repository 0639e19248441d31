// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/homescan/guidebot/pkg/extensions"
	"github.com/homescan/guidebot/services/chatbot/conversation"
	"github.com/homescan/guidebot/services/chatbot/datatypes"
	"github.com/homescan/guidebot/services/chatbot/knowledge"
	"github.com/homescan/guidebot/services/chatbot/middleware"
	"github.com/homescan/guidebot/services/chatbot/observability"
	"github.com/homescan/guidebot/services/chatbot/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Test Doubles
// =============================================================================

type fakeService struct {
	mu          sync.Mutex
	sendErr     error
	streamErr   error
	chunks      []string
	answer      string
	history     []datatypes.Turn
	cleared     []string
	suggestions []knowledge.Suggestion
	lastTopic   string
	lastOwner   string
}

func (f *fakeService) turn(owner, text string) datatypes.Turn {
	return datatypes.Turn{
		ID:        "turn-1",
		Owner:     owner,
		Role:      datatypes.RoleAssistant,
		Text:      text,
		CreatedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fakeService) Send(_ context.Context, owner, text, topic string) (orchestrator.Reply, error) {
	f.mu.Lock()
	f.lastOwner, f.lastTopic = owner, topic
	f.mu.Unlock()
	if f.sendErr != nil {
		return orchestrator.Reply{}, f.sendErr
	}
	return orchestrator.Reply{Turn: f.turn(owner, f.answer), Path: observability.PathGenerated}, nil
}

func (f *fakeService) Stream(_ context.Context, owner, text, topic string, emit orchestrator.StreamFunc) (orchestrator.Reply, error) {
	for _, chunk := range f.chunks {
		if err := emit(datatypes.StreamEvent{Type: datatypes.StreamEventDelta, Content: chunk}); err != nil {
			return orchestrator.Reply{}, err
		}
	}
	if f.streamErr != nil {
		return orchestrator.Reply{}, f.streamErr
	}
	reply := orchestrator.Reply{Turn: f.turn(owner, f.answer), Path: observability.PathGenerated}
	resp := reply.Turn.Response()
	if err := emit(datatypes.StreamEvent{ID: reply.Turn.ID, Type: datatypes.StreamEventFinal, Turn: &resp}); err != nil {
		return reply, err
	}
	return reply, nil
}

func (f *fakeService) History(_ context.Context, owner string) ([]datatypes.Turn, error) {
	return f.history, nil
}

func (f *fakeService) Clear(_ context.Context, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, owner)
	return nil
}

func (f *fakeService) SuggestedPrompts(topic string) []knowledge.Suggestion {
	f.mu.Lock()
	f.lastTopic = topic
	f.mu.Unlock()
	return f.suggestions
}

type recordingAudit struct {
	mu     sync.Mutex
	events []extensions.AuditEvent
}

func (r *recordingAudit) Log(_ context.Context, e extensions.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingAudit) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

func newTestRouter(svc ChatService, audit extensions.AuditLogger) *gin.Engine {
	h := NewChatHandler(svc, audit, WithHeartbeat(0))
	r := gin.New()
	r.GET("/api/chatbot/suggested-questions", h.HandleSuggestions)
	api := r.Group("/api/chatbot", middleware.Auth(&extensions.NopAuthProvider{}, nil))
	api.POST("/messages", h.HandleSend)
	api.POST("/messages/stream", h.HandleStream)
	api.GET("/messages", h.HandleHistory)
	api.DELETE("/messages", h.HandleClear)
	api.GET("/ws", h.HandleWebSocket)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type sseEvent struct {
	id    string
	event string
	data  string
}

func parseSSE(body string) []sseEvent {
	var events []sseEvent
	for _, block := range strings.Split(body, "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "id: "):
				ev.id = strings.TrimPrefix(line, "id: ")
			case strings.HasPrefix(line, "event: "):
				ev.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			}
		}
		if ev.event != "" {
			events = append(events, ev)
		}
	}
	return events
}

// =============================================================================
// Send
// =============================================================================

func TestHandleSend_ReturnsBotTurn(t *testing.T) {
	svc := &fakeService{answer: "보증금은 퇴실일에 돌려받아요."}
	audit := &recordingAudit{}
	r := newTestRouter(svc, audit)

	w := do(r, http.MethodPost, "/api/chatbot/messages", `{"text":"보증금은 언제 받을 수 있나요?","topic":"moveout"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.TurnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "turn-1", resp.ID)
	assert.Equal(t, "bot", resp.Type)
	assert.Equal(t, "보증금은 퇴실일에 돌려받아요.", resp.Text)

	assert.Equal(t, extensions.LocalUserID, svc.lastOwner)
	assert.Equal(t, "moveout", svc.lastTopic)
	assert.Equal(t, []string{extensions.EventMessageAnswered}, audit.types())
}

func TestHandleSend_RejectsBadInput(t *testing.T) {
	r := newTestRouter(&fakeService{}, nil)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"text":`},
		{"missing text", `{"topic":"moveout"}`},
		{"blank text", `{"text":"   "}`},
		{"oversized", fmt.Sprintf(`{"text":%q}`, strings.Repeat("가", datatypes.MaxMessageBytes))},
		{"long topic", fmt.Sprintf(`{"text":"q","topic":%q}`, strings.Repeat("t", datatypes.MaxTopicLength+1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/chatbot/messages", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHandleSend_MapsServiceErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{orchestrator.ErrEmptyMessage, http.StatusBadRequest},
		{fmt.Errorf("persist user turn: %w", conversation.ErrInvalidOwner), http.StatusUnauthorized},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		r := newTestRouter(&fakeService{sendErr: tt.err}, nil)
		w := do(r, http.MethodPost, "/api/chatbot/messages", `{"text":"q"}`)
		assert.Equal(t, tt.want, w.Code, tt.err.Error())
		assert.NotContains(t, w.Body.String(), "disk full")
	}
}

// =============================================================================
// History, Clear, Suggestions
// =============================================================================

func TestHandleHistory(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := &fakeService{history: []datatypes.Turn{
		{ID: "2", Role: datatypes.RoleAssistant, Text: "답변", CreatedAt: at.Add(time.Second)},
		{ID: "1", Role: datatypes.RoleUser, Text: "질문", CreatedAt: at},
	}}
	r := newTestRouter(svc, nil)

	w := do(r, http.MethodGet, "/api/chatbot/messages", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp []datatypes.TurnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "bot", resp[0].Type)
	assert.Equal(t, "user", resp[1].Type)
}

func TestHandleHistory_EmptyIsArray(t *testing.T) {
	w := do(newTestRouter(&fakeService{}, nil), http.MethodGet, "/api/chatbot/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestHandleClear(t *testing.T) {
	svc := &fakeService{}
	audit := &recordingAudit{}
	w := do(newTestRouter(svc, audit), http.MethodDelete, "/api/chatbot/messages", "")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{extensions.LocalUserID}, svc.cleared)
	assert.Equal(t, []string{extensions.EventHistoryCleared}, audit.types())
}

func TestHandleSuggestions(t *testing.T) {
	svc := &fakeService{suggestions: []knowledge.Suggestion{
		{Label: "보증금 체크리스트 알려줘", Section: "moveout_management.deposit_management"},
	}}
	w := do(newTestRouter(svc, nil), http.MethodGet, "/api/chatbot/suggested-questions?topic=moveout", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"label":"보증금 체크리스트 알려줘","section":"moveout_management.deposit_management"}]`, w.Body.String())
	assert.Equal(t, "moveout", svc.lastTopic)
}

// =============================================================================
// SSE Stream
// =============================================================================

func TestHandleStream_DeltasThenFinal(t *testing.T) {
	svc := &fakeService{chunks: []string{"보증금은 ", "돌려받아요."}, answer: "보증금은 돌려받아요."}
	w := do(newTestRouter(svc, nil), http.MethodPost, "/api/chatbot/messages/stream", `{"text":"보증금?"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := parseSSE(w.Body.String())
	require.Len(t, events, 3)
	assert.Equal(t, "delta", events[0].event)
	assert.JSONEq(t, `{"content":"보증금은 "}`, events[0].data)
	assert.NotEmpty(t, events[0].id)
	assert.Equal(t, "delta", events[1].event)

	assert.Equal(t, "final", events[2].event)
	assert.Equal(t, "turn-1", events[2].id)
	var final datatypes.TurnResponse
	require.NoError(t, json.Unmarshal([]byte(events[2].data), &final))
	assert.Equal(t, "bot", final.Type)
	assert.Equal(t, "보증금은 돌려받아요.", final.Text)
}

func TestHandleStream_ServiceErrorBecomesErrorEvent(t *testing.T) {
	svc := &fakeService{chunks: []string{"부분"}, streamErr: errors.New("persist bot turn: disk full")}
	w := do(newTestRouter(svc, nil), http.MethodPost, "/api/chatbot/messages/stream", `{"text":"q"}`)

	events := parseSSE(w.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, "error", events[1].event)
	assert.JSONEq(t, `{"error":"an error occurred while processing your request"}`, events[1].data)
}

func TestHandleStream_InvalidBodyIsPlain400(t *testing.T) {
	w := do(newTestRouter(&fakeService{}, nil), http.MethodPost, "/api/chatbot/messages/stream", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEqual(t, "text/event-stream", w.Header().Get("Content-Type"))
}

// brokenWriter fails every body write, like a client that went away.
type brokenWriter struct {
	header http.Header
	code   int
}

func (b *brokenWriter) Header() http.Header       { return b.header }
func (b *brokenWriter) WriteHeader(code int)      { b.code = code }
func (b *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }
func (b *brokenWriter) Flush()                    {}

func TestHandleStream_ClientGoneIsAudited(t *testing.T) {
	svc := &fakeService{chunks: []string{"a", "b"}}
	audit := &recordingAudit{}
	r := newTestRouter(svc, audit)

	req := httptest.NewRequest(http.MethodPost, "/api/chatbot/messages/stream", strings.NewReader(`{"text":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(&brokenWriter{header: http.Header{}}, req)

	assert.Equal(t, []string{extensions.EventStreamInterrupted}, audit.types())
}

type countingWriter struct {
	mu         sync.Mutex
	keepAlives int
}

func (c *countingWriter) WriteEvent(datatypes.StreamEvent) error { return nil }

func (c *countingWriter) WriteKeepAlive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keepAlives++
	return nil
}

func TestRunHeartbeat_StopsOnDone(t *testing.T) {
	w := &countingWriter{}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		runHeartbeat(context.Background(), w, 5*time.Millisecond, done)
		close(finished)
	}()

	assert.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.keepAlives >= 2
	}, time.Second, 5*time.Millisecond)

	close(done)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("heartbeat did not stop")
	}
}

func TestSSEWriter_KeepAliveFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteKeepAlive())
	assert.Equal(t, ": ping\n\n", rec.Body.String())
}

// =============================================================================
// WebSocket
// =============================================================================

func TestHandleWebSocket_StreamsAndRecovers(t *testing.T) {
	svc := &fakeService{chunks: []string{"안녕", "하세요"}, answer: "안녕하세요"}
	server := httptest.NewServer(newTestRouter(svc, nil))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/chatbot/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	var ev datatypes.StreamEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, datatypes.StreamEventError, ev.Type)

	require.NoError(t, conn.WriteJSON(datatypes.ChatRequest{Text: "인사", Topic: "moveout"}))

	var events []datatypes.StreamEvent
	for {
		var ev datatypes.StreamEvent
		require.NoError(t, conn.ReadJSON(&ev))
		events = append(events, ev)
		if ev.Type == datatypes.StreamEventFinal {
			break
		}
	}
	require.Len(t, events, 3)
	assert.Equal(t, "안녕", events[0].Content)
	require.NotNil(t, events[2].Turn)
	assert.Equal(t, "안녕하세요", events[2].Turn.Text)
}

// =============================================================================
// Health
// =============================================================================

func TestHealthCheck(t *testing.T) {
	r := gin.New()
	r.GET("/health", HealthCheck("1.2.3", false))

	w := do(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","model_configured":false,"version":"1.2.3"}`, w.Body.String())
}
