// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the guidebot server configuration.
//
// Values come from three layers, later ones winning: built-in defaults,
// an optional YAML file, then environment variables. Credentials are read
// once here and never consulted again at request time.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given and the file exists.
const DefaultPath = "guidebot.yaml"

// OpenAISecretPath is the podman/docker secret checked when
// OPENAI_API_KEY is unset.
const OpenAISecretPath = "/run/secrets/openai_api_key"

// Environment variables that override the file.
const (
	EnvOpenAIKey       = "OPENAI_API_KEY"
	EnvFinetunedModel  = "OPENAI_FINETUNED_MODEL_ID"
	EnvOpenAIModel     = "OPENAI_MODEL"
	EnvPort            = "GUIDEBOT_PORT"
	EnvJWTSecret       = "GUIDEBOT_JWT_SECRET"
	EnvOTLPEndpoint    = "OTEL_EXPORTER_OTLP_ENDPOINT"
	defaultServiceName = "guidebot"
)

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Store     StoreConfig     `yaml:"store"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
}

// KnowledgeConfig points at the guide document. An empty path uses the
// guide compiled into the binary.
type KnowledgeConfig struct {
	Path string `yaml:"path"`
}

type OpenAIConfig struct {
	// APIKey is usually left out of the file and set via OPENAI_API_KEY.
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model" validate:"required"`
	BaseURL     string        `yaml:"base_url" validate:"omitempty,url"`
	Temperature float32       `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int           `yaml:"max_tokens" validate:"min=1"`
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
	// MaxAttempts counts every call, the first one included.
	MaxAttempts int           `yaml:"max_attempts" validate:"min=1,max=10"`
	RetryDelay  time.Duration `yaml:"retry_delay" validate:"gte=0"`
}

// Configured reports whether a completion API key is present.
func (c OpenAIConfig) Configured() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// StoreConfig selects the turn store. Path is a directory for badger and
// a file for sqlite.
type StoreConfig struct {
	Backend string `yaml:"backend" validate:"oneof=memory badger sqlite"`
	Path    string `yaml:"path" validate:"required_unless=Backend memory"`
}

type AuthConfig struct {
	Provider  string `yaml:"provider" validate:"oneof=jwt none local"`
	JWTSecret string `yaml:"jwt_secret" validate:"required_if=Provider jwt"`
	Issuer    string `yaml:"issuer"`
}

// RateLimitConfig bounds messages per owner. PerSecond zero disables it.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second" validate:"gte=0"`
	Burst     int     `yaml:"burst" validate:"gte=0"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// TelemetryConfig enables OTLP trace export when OTLPEndpoint is set.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		OpenAI: OpenAIConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.3,
			MaxTokens:   1000,
			Timeout:     60 * time.Second,
			MaxAttempts: 3,
			RetryDelay:  2 * time.Second,
		},
		Store: StoreConfig{
			Backend: "sqlite",
			Path:    filepath.Join("data", "guidebot.db"),
		},
		Auth: AuthConfig{
			Provider: "none",
		},
		RateLimit: RateLimitConfig{
			PerSecond: 1,
			Burst:     5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			ServiceName: defaultServiceName,
		},
	}
}

// =============================================================================
// Loading
// =============================================================================

// Load builds the configuration.
//
// # Description
//
// Starts from Default, decodes the YAML file over it, applies environment
// overrides and validates the result. With an empty path, DefaultPath is
// used if it exists and defaults otherwise.
//
// # Inputs
//
//   - path: YAML file. A named file that does not exist is an error.
//
// # Outputs
//
//   - Config: Validated configuration.
//   - error: Read, parse or validation failure.
func Load(path string) (Config, error) {
	return load(path, os.Getenv, OpenAISecretPath)
}

func load(path string, getenv func(string) string, secretPath string) (Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read the config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, getenv, secretPath); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string, secretPath string) error {
	if v := strings.TrimSpace(getenv(EnvOpenAIKey)); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if cfg.OpenAI.APIKey == "" && secretPath != "" {
		if content, err := os.ReadFile(secretPath); err == nil {
			cfg.OpenAI.APIKey = strings.TrimSpace(string(content))
			slog.Info("Read OpenAI API key from secrets", "path", secretPath)
		}
	}

	if v := strings.TrimSpace(getenv(EnvOpenAIModel)); v != "" {
		cfg.OpenAI.Model = v
	}
	// a fine-tuned model wins over the base model
	if v := strings.TrimSpace(getenv(EnvFinetunedModel)); v != "" {
		cfg.OpenAI.Model = v
	}

	if v := strings.TrimSpace(getenv(EnvPort)); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		cfg.Server.Port = port
	}
	if v := getenv(EnvJWTSecret); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := strings.TrimSpace(getenv(EnvOTLPEndpoint)); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = defaultServiceName
	}
	return nil
}

// =============================================================================
// Validation
// =============================================================================

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints. The error lists every failing field
// by its YAML path.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fieldPath(fe.StructNamespace()), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// fieldPath turns "Config.OpenAI.MaxTokens" into "openai.maxtokens".
func fieldPath(ns string) string {
	ns = strings.TrimPrefix(ns, "Config.")
	return strings.ToLower(ns)
}

// =============================================================================
// Default File
// =============================================================================

// WriteDefault writes the default configuration to path, creating parent
// directories. An existing file is left untouched.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
