package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	LogLevel string

	// Active provider selection at startup.
	Provider string
	Model    string

	GeminiAPIKey string
	QwenAPIKey   string
	OpenAIAPIKey string

	RequestTimeout time.Duration
	MaxUploadBytes int64
	RateLimitRPS   float64

	DatabaseURL string

	TelegramBotToken string
	WebhookURL       string
	// TelegramAdminIDs may use /engine; empty lets everyone.
	TelegramAdminIDs map[int64]bool
	Workers          int
}

// Credentials returns the provider -> API key pairs known from the environment.
func (c *Config) Credentials() map[string]string {
	return map[string]string{
		"gemini": c.GeminiAPIKey,
		"qwen":   c.QwenAPIKey,
		"openai": c.OpenAIAPIKey,
	}
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", "8000"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Provider: getEnv("AI_PROVIDER", "qwen"),
		Model:    getEnv("AI_MODEL", "qwen-vl-plus"),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		QwenAPIKey:   getEnv("QWEN_API_KEY", ""),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),

		RequestTimeout: getDurationEnv("REQUEST_TIMEOUT", 120*time.Second),
		MaxUploadBytes: getInt64Env("MAX_UPLOAD_BYTES", 10*1024*1024),
		RateLimitRPS:   getFloatEnv("RATE_LIMIT_RPS", 0),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		Workers:          getIntEnv("WORKERS", 4),
	}

	admins, err := parseIDs(getEnv("TELEGRAM_ADMIN_IDS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_ADMIN_IDS: %w", err)
	}
	cfg.TelegramAdminIDs = admins

	p, err := strconv.Atoi(cfg.Port)
	if err != nil || p < 1 || p > 65535 {
		return nil, fmt.Errorf("invalid PORT: %q", cfg.Port)
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be > 0 (got %d)", cfg.MaxUploadBytes)
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("REQUEST_TIMEOUT must be > 0 (got %s)", cfg.RequestTimeout)
	}
	if cfg.RateLimitRPS < 0 {
		return nil, fmt.Errorf("RATE_LIMIT_RPS must be >= 0 (got %v)", cfg.RateLimitRPS)
	}
	return cfg, nil
}

// parseIDs reads a comma separated list of Telegram user ids.
func parseIDs(s string) (map[int64]bool, error) {
	ids := map[int64]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, nil
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getDurationEnv(k string, def time.Duration) time.Duration {
	if v := getEnv(k, ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getIntEnv(k string, def int) int {
	if v := getEnv(k, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getInt64Env(k string, def int64) int64 {
	if v := getEnv(k, ""); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getFloatEnv(k string, def float64) float64 {
	if v := getEnv(k, ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
