package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the relay service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	LogLevel         string
	LogFormat        string

	LINEChannelSecret      string
	LINEChannelAccessToken string

	LLMProvider        string
	LLMAPIKey          string
	AnthropicAPIKey    string
	LLMBaseURL         string
	GoogleProjectID    string
	GoogleLocation     string
	LLMTextModel       string
	LLMVisionModel     string
	LLMMaxOutputTokens int
	LLMTimeout         time.Duration
	LLMMaxToolRounds   int

	MaxChatHistory             int
	HistoryBackend             string
	HistoryDir                 string
	HistorySQLitePath          string
	DatabaseURL                string
	HistoryInactivityThreshold time.Duration
	HistoryEvictInterval       time.Duration
	HistorySnapshotSchedule    string
	HistoryWriteThrough        bool

	PromptsFile  string
	PromptsWatch bool

	ToolDefaultTimezone string
	BraveAPIKey         string

	ImageMaxDimension int
	ImageMaxPixels    int
	ImageMaxBytes     int64

	EventTimeout time.Duration
}

// LoadDotEnv loads key/value pairs from the given files into the process
// environment without overriding variables that are already set. A missing
// default ".env" is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "linerelay"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("LOG_FORMAT", "json"),

		// The short names are what the LINE console docs and older deployments use.
		LINEChannelSecret:      firstEnv("LINE_CHANNEL_SECRET", "ChannelSecret"),
		LINEChannelAccessToken: firstEnv("LINE_CHANNEL_ACCESS_TOKEN", "ChannelAccessToken"),

		LLMProvider:     strings.ToLower(envOrDefault("LLM_PROVIDER", "auto")),
		LLMAPIKey:       firstEnv("LLM_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY"),
		AnthropicAPIKey: stringsTrimSpace("ANTHROPIC_API_KEY"),
		LLMBaseURL:      stringsTrimSpace("LLM_BASE_URL"),
		GoogleProjectID: stringsTrimSpace("GOOGLE_PROJECT_ID"),
		GoogleLocation:  envOrDefault("GOOGLE_LOCATION", "us-central1"),
		LLMTextModel:    firstEnvOrDefault("gemini-2.0-flash-001", "LLM_TEXT_MODEL", "GEMINI_TEXT_MODEL"),
		LLMVisionModel:  firstEnvOrDefault("gemini-2.0-flash-001", "LLM_VISION_MODEL", "GEMINI_VISION_MODEL"),

		HistoryBackend:          strings.ToLower(envOrDefault("HISTORY_BACKEND", "file")),
		HistoryDir:              envOrDefault("HISTORY_DIR", "data/history"),
		HistorySQLitePath:       envOrDefault("HISTORY_SQLITE_PATH", "data/history.db"),
		DatabaseURL:             stringsTrimSpace("DATABASE_URL"),
		HistorySnapshotSchedule: envOrDefault("HISTORY_SNAPSHOT_SCHEDULE", "@every 5m"),

		PromptsFile:         stringsTrimSpace("PROMPTS_FILE"),
		ToolDefaultTimezone: envOrDefault("TOOL_DEFAULT_TIMEZONE", "Asia/Taipei"),
		BraveAPIKey:         stringsTrimSpace("BRAVE_API_KEY"),

		ShutdownTimeout:            15 * time.Second,
		LLMMaxOutputTokens:         1024,
		LLMTimeout:                 60 * time.Second,
		LLMMaxToolRounds:           5,
		MaxChatHistory:             10,
		HistoryInactivityThreshold: 30 * time.Minute,
		HistoryEvictInterval:       time.Minute,
		ImageMaxDimension:          1024,
		ImageMaxPixels:             40_000_000,
		ImageMaxBytes:              10 << 20,
		EventTimeout:               90 * time.Second,
	}
	if v, ok := os.LookupEnv("HISTORY_SNAPSHOT_SCHEDULE"); ok {
		// An explicitly empty schedule disables periodic snapshots.
		cfg.HistorySnapshotSchedule = trimSpace(v)
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.LLMTimeout, err = durationFromEnv("LLM_TIMEOUT", cfg.LLMTimeout); err != nil {
		return Config{}, err
	}
	if cfg.HistoryInactivityThreshold, err = durationFromEnv("HISTORY_INACTIVITY_THRESHOLD", cfg.HistoryInactivityThreshold); err != nil {
		return Config{}, err
	}
	if cfg.HistoryEvictInterval, err = durationFromEnv("HISTORY_EVICT_INTERVAL", cfg.HistoryEvictInterval); err != nil {
		return Config{}, err
	}
	if cfg.EventTimeout, err = durationFromEnv("RELAY_EVENT_TIMEOUT", cfg.EventTimeout); err != nil {
		return Config{}, err
	}

	maxTokensKey := "LLM_MAX_OUTPUT_TOKENS"
	if stringsTrimSpace(maxTokensKey) == "" && stringsTrimSpace("MAX_OUTPUT_TOKENS") != "" {
		maxTokensKey = "MAX_OUTPUT_TOKENS"
	}
	if cfg.LLMMaxOutputTokens, err = intFromEnv(maxTokensKey, cfg.LLMMaxOutputTokens); err != nil {
		return Config{}, err
	}
	if cfg.LLMMaxToolRounds, err = intFromEnv("LLM_MAX_TOOL_ROUNDS", cfg.LLMMaxToolRounds); err != nil {
		return Config{}, err
	}
	if cfg.MaxChatHistory, err = intFromEnv("MAX_CHAT_HISTORY", cfg.MaxChatHistory); err != nil {
		return Config{}, err
	}
	if cfg.ImageMaxDimension, err = intFromEnv("IMAGE_MAX_DIMENSION", cfg.ImageMaxDimension); err != nil {
		return Config{}, err
	}
	if cfg.ImageMaxPixels, err = intFromEnv("IMAGE_MAX_PIXELS", cfg.ImageMaxPixels); err != nil {
		return Config{}, err
	}
	maxBytes, err := intFromEnv("IMAGE_MAX_BYTES", int(cfg.ImageMaxBytes))
	if err != nil {
		return Config{}, err
	}
	cfg.ImageMaxBytes = int64(maxBytes)

	if cfg.HistoryWriteThrough, err = boolFromEnv("HISTORY_WRITE_THROUGH", false); err != nil {
		return Config{}, err
	}
	if cfg.PromptsWatch, err = boolFromEnv("PROMPTS_WATCH", false); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations. LINE credentials are checked
// separately by RequireLINE because offline commands do not need them.
func (c Config) Validate() error {
	if c.MaxChatHistory < 1 {
		return fmt.Errorf("MAX_CHAT_HISTORY must be at least 1")
	}
	if c.HistoryInactivityThreshold < time.Second {
		return fmt.Errorf("HISTORY_INACTIVITY_THRESHOLD must be at least 1s")
	}
	if c.HistoryEvictInterval < time.Second {
		return fmt.Errorf("HISTORY_EVICT_INTERVAL must be at least 1s")
	}
	if c.LLMMaxOutputTokens <= 0 {
		return fmt.Errorf("LLM_MAX_OUTPUT_TOKENS must be positive")
	}
	if c.LLMMaxToolRounds < 0 {
		return fmt.Errorf("LLM_MAX_TOOL_ROUNDS must be >= 0")
	}
	if c.ImageMaxDimension < 64 {
		return fmt.Errorf("IMAGE_MAX_DIMENSION must be at least 64")
	}
	if c.ImageMaxPixels < c.ImageMaxDimension*c.ImageMaxDimension {
		return fmt.Errorf("IMAGE_MAX_PIXELS must be at least IMAGE_MAX_DIMENSION squared")
	}
	if c.ImageMaxBytes <= 0 {
		return fmt.Errorf("IMAGE_MAX_BYTES must be positive")
	}
	switch c.LLMProvider {
	case "auto", "openai", "anthropic", "mock":
	default:
		return fmt.Errorf("invalid LLM_PROVIDER: %q (expected auto|openai|anthropic|mock)", c.LLMProvider)
	}
	switch c.HistoryBackend {
	case "file", "sqlite", "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("HISTORY_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("invalid HISTORY_BACKEND: %q (expected file|sqlite|postgres|memory)", c.HistoryBackend)
	}
	return nil
}

// RequireLINE reports missing messaging platform credentials.
func (c Config) RequireLINE() error {
	var missing []string
	if c.LINEChannelSecret == "" {
		missing = append(missing, "LINE_CHANNEL_SECRET")
	}
	if c.LINEChannelAccessToken == "" {
		missing = append(missing, "LINE_CHANNEL_ACCESS_TOKEN")
	}
	if len(missing) > 0 {
		return errors.New("missing required environment: " + strings.Join(missing, ", "))
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := stringsTrimSpace(key); v != "" {
			return v
		}
	}
	return ""
}

func firstEnvOrDefault(fallback string, keys ...string) string {
	if v := firstEnv(keys...); v != "" {
		return v
	}
	return fallback
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	return strings.TrimSpace(v)
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
