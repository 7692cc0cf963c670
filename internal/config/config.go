// Package config loads server configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime configuration for the assistant server.
type Config struct {
	Host   string `env:"WINGMAN_HOST" envDefault:"127.0.0.1"`
	Port   string `env:"WINGMAN_PORT" envDefault:"8080"`
	DBPath string `env:"WINGMAN_DB" envDefault:"wingman.db"`

	// LLM backend (OpenAI-compatible chat completions)
	OpenAIAPIKey  string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string        `env:"WINGMAN_OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	Model         string        `env:"WINGMAN_MODEL" envDefault:"gpt-4o-mini"`
	LLMTimeout    time.Duration `env:"WINGMAN_LLM_TIMEOUT" envDefault:"120s"`

	// Number of recent conversation turns sent as classification context
	HistoryWindow int `env:"WINGMAN_HISTORY_WINDOW" envDefault:"5"`

	// Optional YAML file overriding the built-in agent catalog
	AgentCatalog string `env:"WINGMAN_AGENT_CATALOG"`

	// Optional legacy users.json to import into the credential store on boot
	LegacyUsersFile string `env:"WINGMAN_LEGACY_USERS"`

	// Fallback location for weather queries that don't name one
	DefaultLocation string `env:"WINGMAN_DEFAULT_LOCATION" envDefault:"Mumbai"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}
