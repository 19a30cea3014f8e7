// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Student maps one real name to its substitute token.
type Student struct {
	RealName string `yaml:"real_name"`
	Token    string `yaml:"token"`
	Grade    string `yaml:"grade"`
}

// Recipient is one delivery target for digests or urgent alerts.
type Recipient struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name"`
}

// Config holds all configuration for the triage pipeline.
type Config struct {
	// Mail source
	SchoolDomains []string
	FetchLimit    int64

	// Privacy mapping
	Students []Student

	// Delivery
	SummaryRecipients []Recipient
	UrgentRecipients  []Recipient

	// OpenAI
	OpenAIKey   string
	OpenAIModel string

	// Gmail OAuth
	GmailClientID     string
	GmailClientSecret string
	GmailRefreshToken string

	// Redis (dedup)
	RedisURL string

	// Postgres (archive)
	DatabaseURL string
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Schools struct {
		Domains []string `yaml:"domains"`
	} `yaml:"schools"`
	Students   []Student `yaml:"students"`
	Recipients struct {
		Summary []Recipient `yaml:"summary"`
		Urgent  []Recipient `yaml:"urgent"`
	} `yaml:"recipients"`
	OpenAI struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`
	Gmail struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		RefreshToken string `yaml:"refresh_token"`
	} `yaml:"gmail"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Fetch struct {
		Limit int64 `yaml:"limit"`
	} `yaml:"fetch"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for overrides. Missing optional integrations
// (OpenAI key, Redis, Postgres) are not errors here; each command decides
// how to degrade without them.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		FetchLimit:        raw.Fetch.Limit,
		SummaryRecipients: raw.Recipients.Summary,
		UrgentRecipients:  raw.Recipients.Urgent,
		OpenAIKey:         firstNonEmpty(raw.OpenAI.APIKey, os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:       firstNonEmpty(raw.OpenAI.Model, envOrDefault("OPENAI_MODEL", "gpt-4o-mini")),
		GmailClientID:     firstNonEmpty(raw.Gmail.ClientID, os.Getenv("GMAIL_CLIENT_ID")),
		GmailClientSecret: firstNonEmpty(raw.Gmail.ClientSecret, os.Getenv("GMAIL_CLIENT_SECRET")),
		GmailRefreshToken: firstNonEmpty(raw.Gmail.RefreshToken, os.Getenv("GMAIL_REFRESH_TOKEN")),
		RedisURL:          firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		DatabaseURL:       firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = envOrDefaultInt64("FETCH_LIMIT", 100)
	}

	// School domains are matched lowercase, same as the Gmail query.
	for _, d := range raw.Schools.Domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			cfg.SchoolDomains = append(cfg.SchoolDomains, d)
		}
	}

	// Students with a missing name or token cannot round-trip; skip them.
	for _, s := range raw.Students {
		s.RealName = strings.TrimSpace(s.RealName)
		s.Token = strings.TrimSpace(s.Token)
		if s.RealName == "" || s.Token == "" {
			continue
		}
		cfg.Students = append(cfg.Students, s)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
