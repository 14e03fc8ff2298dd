/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package config provides configuration loading for the governance
// kernel, adapted from the teacher's internal/controlplane/config:
// config sources in priority order are env vars > config file > defaults,
// no Viper, no config-file DSL.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all kernel configuration.
type Config struct {
	// ContractsDir is where the Registry loads agent contract files from
	// (default "./contracts").
	ContractsDir string `json:"contracts_dir"`
	// VarDir is the root the Registry Store, State Manager, and Audit
	// Sink write under (default "/var/lib/governor").
	VarDir string `json:"var_dir"`

	// LLM provider settings (spec.md §6).
	LLM LLMConfig `json:"llm,omitempty"`

	// Retry settings for the Execution Harness (spec.md §4.3).
	Retry RetryConfig `json:"retry,omitempty"`

	// CallTimeout bounds one live-mode provider call (spec.md §5's
	// "default order of minutes, configurable").
	CallTimeout time.Duration `json:"call_timeout,omitempty"`

	// OCI registry auth, when contracts are sourced via oci:// references
	// (see SPEC_FULL.md, "OCI-sourced agent bundles").
	OCIUsername string `json:"oci_username,omitempty"`
	OCIPassword string `json:"oci_password,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level"`
}

// LLMConfig configures the live-mode LLM provider.
type LLMConfig struct {
	Provider string `json:"provider,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	Model    string `json:"model,omitempty"`
}

// RetryConfig configures the Harness's transient-failure retry policy.
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseBackoff time.Duration `json:"base_backoff"`
}

// Default returns configuration with sensible defaults.
func Default() Config {
	return Config{
		ContractsDir: "./contracts",
		VarDir:       "/var/lib/governor",
		LogLevel:     "info",
		CallTimeout:  5 * time.Minute,
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseBackoff: 2 * time.Second,
		},
	}
}

// Load reads configuration from a JSON file (if path is non-empty), then
// overlays environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("GOVERNOR_CONTRACTS_DIR"); v != "" {
		cfg.ContractsDir = v
	}
	if v := os.Getenv("GOVERNOR_VAR_DIR"); v != "" {
		cfg.VarDir = v
	}
	if v := os.Getenv("GOVERNOR_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("GOVERNOR_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("GOVERNOR_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("GOVERNOR_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("GOVERNOR_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retry.MaxAttempts = n
		}
	}
	if v := os.Getenv("GOVERNOR_RETRY_BASE_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retry.BaseBackoff = d
		}
	}
	if v := os.Getenv("GOVERNOR_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CallTimeout = d
		}
	}
	if v := os.Getenv("GOVERNOR_OCI_USERNAME"); v != "" {
		cfg.OCIUsername = v
	}
	if v := os.Getenv("GOVERNOR_OCI_PASSWORD"); v != "" {
		cfg.OCIPassword = v
	}
	if v := os.Getenv("GOVERNOR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() Config {
	cfg, _ := Load("")
	return cfg
}

// HasLLM returns true if an LLM provider is configured, i.e. the kernel
// can run chains in live mode.
func (c Config) HasLLM() bool {
	return c.LLM.Provider != ""
}
