package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the chat agent backend.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	MongoURI       string
	MongoDBName    string
	MongoDBPerUser bool
	DatabaseURL    string

	LLMProvider  string
	GeminiAPIKey string
	GeminiModel  string
	GeminiURL    string

	ProfileMode    string
	ExtractCadence int
	HistoryWindow  int
	ExtractTimeout time.Duration
	RedactPII      bool
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "mentora"),
		AllowAnyOrigin:   false,
		MongoURI:         trimmedEnv("MONGO_URI"),
		MongoDBName:      envOrDefault("MONGO_DB_NAME", "mentora"),
		// The original deployment kept one checkpoint database per user id.
		MongoDBPerUser:  true,
		DatabaseURL:     trimmedEnv("DATABASE_URL"),
		LLMProvider:     envOrDefault("LLM_PROVIDER", "auto"),
		GeminiAPIKey:    trimmedEnv("GEMINI_API_KEY"),
		GeminiModel:     envOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiURL:       envOrDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		ProfileMode:     envOrDefault("PROFILE_MODE", "structured"),
		ExtractCadence:  5,
		HistoryWindow:   10,
		ShutdownTimeout: 15 * time.Second,
		ExtractTimeout:  45 * time.Second,
		RedactPII:       false,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ExtractTimeout, err = durationFromEnv("PROFILE_EXTRACT_TIMEOUT", cfg.ExtractTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ExtractCadence, err = intFromEnv("PROFILE_EXTRACT_CADENCE", cfg.ExtractCadence)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryWindow, err = intFromEnv("PROFILE_HISTORY_WINDOW", cfg.HistoryWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.MongoDBPerUser, err = boolFromEnv("MONGO_DB_PER_USER", cfg.MongoDBPerUser)
	if err != nil {
		return Config{}, err
	}
	cfg.RedactPII, err = boolFromEnv("APP_REDACT_PII", cfg.RedactPII)
	if err != nil {
		return Config{}, err
	}

	if cfg.ExtractCadence <= 0 {
		return Config{}, fmt.Errorf("PROFILE_EXTRACT_CADENCE must be positive")
	}
	if cfg.HistoryWindow < 2 {
		return Config{}, fmt.Errorf("PROFILE_HISTORY_WINDOW must be at least 2")
	}
	if cfg.ExtractTimeout <= 0 {
		return Config{}, fmt.Errorf("PROFILE_EXTRACT_TIMEOUT must be positive")
	}
	switch cfg.ProfileMode {
	case "structured", "narrative":
	default:
		return Config{}, fmt.Errorf("invalid PROFILE_MODE: %q (expected structured|narrative)", cfg.ProfileMode)
	}
	switch cfg.LLMProvider {
	case "auto", "gemini", "mock":
	default:
		return Config{}, fmt.Errorf("invalid LLM_PROVIDER: %q (expected auto|gemini|mock)", cfg.LLMProvider)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
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
	v := trimmedEnv(key)
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
	v := strings.ToLower(trimmedEnv(key))
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
