package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.MaxChatHistory != 10 {
		t.Fatalf("MaxChatHistory = %d, want 10", cfg.MaxChatHistory)
	}
	if cfg.HistoryBackend != "file" {
		t.Fatalf("HistoryBackend = %q, want %q", cfg.HistoryBackend, "file")
	}
	if cfg.HistorySnapshotSchedule != "@every 5m" {
		t.Fatalf("HistorySnapshotSchedule = %q, want %q", cfg.HistorySnapshotSchedule, "@every 5m")
	}
	if cfg.HistoryInactivityThreshold != 30*time.Minute {
		t.Fatalf("HistoryInactivityThreshold = %v, want 30m", cfg.HistoryInactivityThreshold)
	}
	if cfg.LLMTextModel != "gemini-2.0-flash-001" {
		t.Fatalf("LLMTextModel = %q, want default", cfg.LLMTextModel)
	}
	if cfg.ImageMaxPixels != 40_000_000 {
		t.Fatalf("ImageMaxPixels = %d, want 40000000", cfg.ImageMaxPixels)
	}
	if err := cfg.RequireLINE(); err == nil {
		t.Fatalf("RequireLINE() error = nil, want missing credentials")
	}
}

func TestLoadLegacyAliases(t *testing.T) {
	clearEnv(t)
	t.Setenv("ChannelSecret", "secret")
	t.Setenv("ChannelAccessToken", "token")
	t.Setenv("GEMINI_TEXT_MODEL", "gemini-text")
	t.Setenv("MAX_OUTPUT_TOKENS", "2048")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LINEChannelSecret != "secret" || cfg.LINEChannelAccessToken != "token" {
		t.Fatalf("LINE credentials = %q/%q, want secret/token", cfg.LINEChannelSecret, cfg.LINEChannelAccessToken)
	}
	if err := cfg.RequireLINE(); err != nil {
		t.Fatalf("RequireLINE() error = %v", err)
	}
	if cfg.LLMTextModel != "gemini-text" {
		t.Fatalf("LLMTextModel = %q, want %q", cfg.LLMTextModel, "gemini-text")
	}
	if cfg.LLMMaxOutputTokens != 2048 {
		t.Fatalf("LLMMaxOutputTokens = %d, want 2048", cfg.LLMMaxOutputTokens)
	}
}

func TestLoadEmptySnapshotScheduleDisables(t *testing.T) {
	clearEnv(t)
	t.Setenv("HISTORY_SNAPSHOT_SCHEDULE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HistorySnapshotSchedule != "" {
		t.Fatalf("HistorySnapshotSchedule = %q, want empty", cfg.HistorySnapshotSchedule)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"zero history", "MAX_CHAT_HISTORY", "0"},
		{"bad provider", "LLM_PROVIDER", "bard"},
		{"bad backend", "HISTORY_BACKEND", "redis"},
		{"postgres without url", "HISTORY_BACKEND", "postgres"},
		{"bad duration", "HISTORY_INACTIVITY_THRESHOLD", "soon"},
		{"tiny threshold", "HISTORY_INACTIVITY_THRESHOLD", "10ms"},
		{"bad bool", "HISTORY_WRITE_THROUGH", "maybe"},
		{"pixel cap below dimension", "IMAGE_MAX_PIXELS", "1000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() error = nil, want error for %s=%q", tc.key, tc.val)
			}
		})
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("MAX_CHAT_HISTORY=4\nAPP_BIND_ADDR=:7070\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("APP_BIND_ADDR", ":9090")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxChatHistory != 4 {
		t.Fatalf("MaxChatHistory = %d, want 4", cfg.MaxChatHistory)
	}
	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want process env to win", cfg.BindAddr)
	}
}

// clearEnv unsets every key Load reads; t.Setenv restores the originals.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"LINE_CHANNEL_SECRET",
		"LINE_CHANNEL_ACCESS_TOKEN",
		"ChannelSecret",
		"ChannelAccessToken",
		"LLM_PROVIDER",
		"LLM_API_KEY",
		"GEMINI_API_KEY",
		"OPENAI_API_KEY",
		"ANTHROPIC_API_KEY",
		"LLM_BASE_URL",
		"GOOGLE_PROJECT_ID",
		"GOOGLE_LOCATION",
		"LLM_TEXT_MODEL",
		"GEMINI_TEXT_MODEL",
		"LLM_VISION_MODEL",
		"GEMINI_VISION_MODEL",
		"LLM_MAX_OUTPUT_TOKENS",
		"MAX_OUTPUT_TOKENS",
		"LLM_TIMEOUT",
		"LLM_MAX_TOOL_ROUNDS",
		"MAX_CHAT_HISTORY",
		"HISTORY_BACKEND",
		"HISTORY_DIR",
		"HISTORY_SQLITE_PATH",
		"DATABASE_URL",
		"HISTORY_INACTIVITY_THRESHOLD",
		"HISTORY_EVICT_INTERVAL",
		"HISTORY_SNAPSHOT_SCHEDULE",
		"HISTORY_WRITE_THROUGH",
		"PROMPTS_FILE",
		"PROMPTS_WATCH",
		"TOOL_DEFAULT_TIMEZONE",
		"BRAVE_API_KEY",
		"IMAGE_MAX_DIMENSION",
		"IMAGE_MAX_BYTES",
		"IMAGE_MAX_PIXELS",
		"RELAY_EVENT_TIMEOUT",
	}
	for _, key := range keys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}
