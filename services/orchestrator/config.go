// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/conversation"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/runs"
)

// Backend names accepted in Config.LLMBackend.
const (
	BackendAssistants = "assistants"
	BackendOpenAI     = "openai"
	BackendOllama     = "ollama"
)

// Tracing exporters accepted in Config.TraceExporter.
const (
	TraceExporterOTLP   = "otlp"
	TraceExporterStdout = "stdout"
	TraceExporterNone   = "none"
)

// Config holds orchestrator configuration options.
//
// # Description
//
// Config centralizes all configuration for the portfolio chat service.
// Values come from, in increasing priority: defaults, an optional YAML
// file, the environment (including a .env file). CLI flags are applied
// last by the caller.
//
// # Examples
//
//	// Minimal config (uses all defaults)
//	cfg := Config{OpenAIAPIKey: key, AssistantID: "asst_123"}
//
//	// Local Ollama backend, no OpenAI account needed
//	cfg := Config{
//	    LLMBackend:  "ollama",
//	    OllamaURL:   "http://localhost:11434",
//	    OllamaModel: "llama3",
//	}
type Config struct {
	// Port is the HTTP server port. Default: 12210
	Port int `yaml:"port" env:"PORT" validate:"min=1,max=65535"`

	// GinMode sets the Gin framework mode: "debug", "release" or "test".
	GinMode string `yaml:"gin_mode" env:"GIN_MODE" validate:"omitempty,oneof=debug release test"`

	// LLMBackend selects the reasoning engine: "assistants", "openai"
	// or "ollama". Default: "assistants"
	LLMBackend string `yaml:"llm_backend" env:"LLM_BACKEND" validate:"oneof=assistants openai ollama"`

	OpenAIAPIKey  string `yaml:"openai_api_key" env:"OPENAI_API_KEY"`
	AssistantID   string `yaml:"assistant_id" env:"OPENAI_ASSISTANT_ID"`
	OpenAIBaseURL string `yaml:"openai_base_url" env:"OPENAI_BASE_URL" validate:"omitempty,url"`
	OpenAIModel   string `yaml:"openai_model" env:"OPENAI_MODEL"`

	OllamaURL   string `yaml:"ollama_url" env:"OLLAMA_URL" validate:"omitempty,url"`
	OllamaModel string `yaml:"ollama_model" env:"OLLAMA_MODEL"`

	// PersonaPrompt is the system prompt for chat-completion backends.
	// The assistants backend keeps its prompt server-side.
	PersonaPrompt string `yaml:"persona_prompt" env:"PERSONA_PROMPT"`

	// PollInterval is the wait between run status polls. Default: 1s
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL" validate:"gt=0"`

	// MaxPollAttempts bounds the polls after the first status read. Default: 50
	MaxPollAttempts int `yaml:"max_poll_attempts" env:"MAX_POLL_ATTEMPTS" validate:"min=1"`

	// HistoryWindow is the default turn count of the history endpoint. Default: 10
	HistoryWindow int `yaml:"history_window" env:"HISTORY_WINDOW" validate:"min=1"`

	// ConversationMaxAge evicts conversations idle this long. Default: 24h
	ConversationMaxAge time.Duration `yaml:"conversation_max_age" env:"CONVERSATION_MAX_AGE" validate:"gt=0"`

	// SweepInterval is the time between eviction sweeps. Default: 1h
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL" validate:"gt=0"`

	// RateLimitPerMinute is the per-IP chat request rate. A negative value
	// disables limiting. Default: 30
	RateLimitPerMinute int `yaml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE"`
	RateLimitBurst     int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST" validate:"min=0"`

	// WeaviateURL enables the advisory knowledge lookup when set.
	WeaviateURL   string `yaml:"weaviate_url" env:"WEAVIATE_URL" validate:"omitempty,url"`
	WeaviateClass string `yaml:"weaviate_class" env:"WEAVIATE_CLASS"`

	// TraceExporter is "otlp", "stdout" or "none". Default: "none"
	TraceExporter string `yaml:"trace_exporter" env:"TRACE_EXPORTER" validate:"oneof=otlp stdout none"`

	// OTelEndpoint is the OTLP gRPC collector. Default: "aleutian-otel-collector:4317"
	OTelEndpoint string `yaml:"otel_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// AuditEnabled writes audit events to the structured log.
	AuditEnabled bool `yaml:"audit_enabled" env:"AUDIT_ENABLED"`

	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`
	LogJSON  bool   `yaml:"log_json" env:"LOG_JSON"`
	LogDir   string `yaml:"log_dir" env:"LOG_DIR"`
}

// =============================================================================
// Loading
// =============================================================================

// LoadConfig builds a Config from a YAML file and the environment.
//
// # Description
//
//  1. Loads .env from the working directory if present (godotenv does not
//     override variables already set).
//  2. Decodes path as YAML when path is non-empty.
//  3. Overlays environment variables.
//  4. Applies defaults and validates.
//
// # Inputs
//
//   - path: YAML file path. Empty skips the file.
//
// # Outputs
//
//   - Config: Complete, validated configuration.
//   - error: Non-nil if the file cannot be read or the result is invalid.
func LoadConfig(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg = applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	cfg.LLMBackend = strings.ToLower(strings.TrimSpace(cfg.LLMBackend))
	cfg.OpenAIAPIKey = strings.TrimSpace(cfg.OpenAIAPIKey)
	cfg.AssistantID = strings.TrimSpace(cfg.AssistantID)
	cfg.WeaviateURL = strings.Trim(cfg.WeaviateURL, "\"' ")

	if cfg.Port == 0 {
		cfg.Port = 12210
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = BackendAssistants
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = runs.DefaultConfig().PollInterval
	}
	if cfg.MaxPollAttempts == 0 {
		cfg.MaxPollAttempts = runs.DefaultConfig().MaxAttempts
	}
	if cfg.HistoryWindow == 0 {
		cfg.HistoryWindow = conversation.DefaultHistoryWindow
	}
	if cfg.ConversationMaxAge == 0 {
		cfg.ConversationMaxAge = 24 * time.Hour
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 1 * time.Hour
	}
	if cfg.RateLimitPerMinute == 0 {
		cfg.RateLimitPerMinute = 30
	}
	if cfg.TraceExporter == "" {
		cfg.TraceExporter = TraceExporterNone
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "aleutian-otel-collector:4317"
	}
	if cfg.WeaviateClass == "" {
		cfg.WeaviateClass = "PortfolioDocument"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg
}

var configValidate = validator.New()

// Validate checks the configuration against its struct tags.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// runsConfig maps the polling knobs onto the run protocol.
func (c Config) runsConfig() runs.Config {
	return runs.Config{PollInterval: c.PollInterval, MaxAttempts: c.MaxPollAttempts}
}
