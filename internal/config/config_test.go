package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("default port = %q, want 8080", cfg.Port)
	}
	if cfg.Model != "gpt-4o-mini" {
		t.Errorf("default model = %q, want gpt-4o-mini", cfg.Model)
	}
	if cfg.LLMTimeout != 120*time.Second {
		t.Errorf("default LLM timeout = %v, want 120s", cfg.LLMTimeout)
	}
	if cfg.HistoryWindow != 5 {
		t.Errorf("default history window = %d, want 5", cfg.HistoryWindow)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WINGMAN_PORT", "9090")
	t.Setenv("WINGMAN_HISTORY_WINDOW", "12")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("port = %q, want 9090", cfg.Port)
	}
	if cfg.HistoryWindow != 12 {
		t.Errorf("history window = %d, want 12", cfg.HistoryWindow)
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	t.Setenv("WINGMAN_LLM_TIMEOUT", "not-a-duration")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}
