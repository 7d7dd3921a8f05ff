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

	"gopkg.in/yaml.v3"

	"github.com/taskbrief/intake/internal/models"
)

// AgentConfig declares one intake agent: its routing kind, its owning
// user, and its security policy configuration.
type AgentConfig struct {
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind"` // "task-intake" or "intelligence"
	OwnerID    string `yaml:"owner_id"`
	OwnerEmail string `yaml:"owner_email"`

	Security SecurityConfig `yaml:"security"`
}

// SecurityConfig mirrors the per-agent policy settings in YAML.
type SecurityConfig struct {
	Policies           []string `yaml:"policies"`
	MaxRequestsPerHour int      `yaml:"max_requests_per_hour"`
	TrustedDomains     []string `yaml:"trusted_domains"`
	BlockedDomains     []string `yaml:"blocked_domains"`
	RequireTrust       bool     `yaml:"require_trust"`
	AllowSelfService   bool     `yaml:"allow_self_service"`
}

// QueueConfig sizes the admission queue.
type QueueConfig struct {
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`
	Capacity          int `yaml:"capacity"`
	HistoryLimit      int `yaml:"history_limit"`
}

// DeliveryConfig configures the outbound send endpoint and its OAuth2
// client credentials.
type DeliveryConfig struct {
	Endpoint     string `yaml:"endpoint"`
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Config holds all configuration for the intake service.
type Config struct {
	Port        int
	Queue       QueueConfig
	RedisURL    string
	DatabaseURL string
	AnalysisURL string
	Delivery    DeliveryConfig
	Agents      []AgentConfig
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Queue QueueConfig `yaml:"queue"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Analysis struct {
		URL string `yaml:"url"`
	} `yaml:"analysis"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Agents   []AgentConfig  `yaml:"agents"`
}

// Load reads configuration from config.yaml (with env var expansion)
// and environment variables for non-YAML settings.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes, expanding ${VAR} references
// and applying environment overrides.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		Port:        firstPositive(raw.Server.Port, envOrDefaultInt("PORT", 8080)),
		Queue:       raw.Queue,
		RedisURL:    firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		DatabaseURL: firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		AnalysisURL: firstNonEmpty(raw.Analysis.URL, os.Getenv("ANALYSIS_URL")),
		Delivery:    raw.Delivery,
	}

	for _, a := range raw.Agents {
		if a.Name == "" {
			return nil, fmt.Errorf("agent with empty name in config")
		}
		switch a.Kind {
		case "task-intake", "intelligence":
		default:
			return nil, fmt.Errorf("agent %q has unknown kind %q", a.Name, a.Kind)
		}
		cfg.Agents = append(cfg.Agents, a)
	}

	if len(cfg.Agents) == 0 {
		return nil, fmt.Errorf("no agents configured — check config.yaml")
	}

	return cfg, nil
}

// SecurityFor converts an agent's YAML security settings into the
// pipeline's config model. Agents that list no policies get the
// pipeline defaults at evaluation time.
func (a AgentConfig) SecurityFor() models.AgentSecurityConfig {
	return models.AgentSecurityConfig{
		AgentName:          a.Name,
		EnabledPolicies:    a.Security.Policies,
		MaxRequestsPerHour: a.Security.MaxRequestsPerHour,
		TrustedDomains:     a.Security.TrustedDomains,
		BlockedDomains:     a.Security.BlockedDomains,
		RequireTrust:       a.Security.RequireTrust,
		AllowSelfService:   a.Security.AllowSelfService,
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
