// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/homescan/guidebot/services/chatbot/config"
	"github.com/homescan/guidebot/services/chatbot/datatypes"
	"github.com/homescan/guidebot/services/llm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memoryConfig writes a config file using the in-memory store and no
// completion API key.
func memoryConfig(t *testing.T) string {
	t.Helper()
	t.Setenv(config.EnvOpenAIKey, "")
	path := filepath.Join(t.TempDir(), "guidebot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: memory\nlogging:\n  level: error\n"), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, logLevel, topicFlag, streamFlag = "", "", "", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// =============================================================================
// Commands
// =============================================================================

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "guidebot "+version+"\n", out)
}

func TestPromptsCommand(t *testing.T) {
	cfg := memoryConfig(t)

	out, err := execute(t, "prompts", "--config", cfg, "--topic", "moveout")
	require.NoError(t, err)
	assert.Contains(t, out, "보증금 체크리스트 알려줘")
	assert.NotContains(t, out, "No suggested questions")
}

func TestAskCommand_OutOfScope(t *testing.T) {
	cfg := memoryConfig(t)

	out, err := execute(t, "ask", "--config", cfg, "오늘", "날씨", "어때?")
	require.NoError(t, err)
	assert.Equal(t, datatypes.OffTopicMessage+"\n", out)
}

func TestAskCommand_NotConfigured(t *testing.T) {
	cfg := memoryConfig(t)

	out, err := execute(t, "ask", "--config", cfg, "보증금은 언제 받을 수 있나요?")
	require.NoError(t, err)
	assert.Contains(t, out, datatypes.NotConfiguredMessage)
}

func TestAskCommand_StreamPrintsAnswerOnce(t *testing.T) {
	cfg := memoryConfig(t)

	out, err := execute(t, "ask", "--config", cfg, "--stream", "오늘 날씨 어때?")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, datatypes.OffTopicMessage))
}

func TestAskCommand_RequiresQuestion(t *testing.T) {
	_, err := execute(t, "ask")
	assert.Error(t, err)
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guidebot.yaml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().OpenAI.Model, cfg.OpenAI.Model)
}

// =============================================================================
// Server Wiring
// =============================================================================

func newTestApp(t *testing.T) (config.Config, *app) {
	t.Helper()
	cfg := config.Default()
	cfg.Store = config.StoreConfig{Backend: "memory"}

	a, err := buildApp(cfg, prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return cfg, a
}

func TestBuildApp_WithoutKeyIsUnconfigured(t *testing.T) {
	_, a := newTestApp(t)
	assert.False(t, a.gen.Configured())
}

func TestRetryPolicy_AttemptsIncludeFirstCall(t *testing.T) {
	defaults := llm.DefaultRetryPolicy()
	policy := retryPolicy(config.Default().OpenAI)

	assert.Equal(t, defaults.MaxAttempts, policy.MaxAttempts)
	assert.Equal(t, defaults.Delay, policy.Delay)
	assert.Equal(t, defaults.AttemptTimeout, policy.AttemptTimeout)

	cfg := config.Default().OpenAI
	cfg.MaxAttempts = 1
	assert.Equal(t, 1, retryPolicy(cfg).MaxAttempts)
}

func TestBuildApp_UnknownKnowledgeFileFails(t *testing.T) {
	cfg := config.Default()
	cfg.Store = config.StoreConfig{Backend: "memory"}
	cfg.Knowledge.Path = filepath.Join(t.TempDir(), "missing.json")

	_, err := buildApp(cfg, prometheus.NewRegistry())
	assert.Error(t, err)
}

func TestNewHTTPHandler_HealthAndCORS(t *testing.T) {
	cfg, a := newTestApp(t)
	cfg.Server.CORSOrigins = []string{"https://homescan.example"}

	handler, err := newHTTPHandler(cfg, a, http.NotFoundHandler())
	require.NoError(t, err)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","model_configured":false,"version":"`+version+`"}`, w.Body.String())

	req := httptest.NewRequest(http.MethodOptions, "/api/chatbot/messages", nil)
	req.Header.Set("Origin", "https://homescan.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, "https://homescan.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewHTTPHandler_JWTWithoutSecretFails(t *testing.T) {
	cfg, a := newTestApp(t)
	cfg.Auth.Provider = "jwt"

	_, err := newHTTPHandler(cfg, a, nil)
	assert.Error(t, err)
}

func TestServeUntilDone_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- serveUntilDone(ctx, srv, time.Second) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
