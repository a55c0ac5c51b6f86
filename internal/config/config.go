package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config collects every knob the process reads from the environment, so
// handlers and services never touch os.Getenv themselves.
type Config struct {
	DatabaseURL string
	HTTPPort    string
	JWTSecret   string
	LogLevel    string

	// Object storage service.
	StorageURL    string
	StorageKey    string
	StorageBucket string

	// External cloaking engine.
	CloakEngineURL string

	// Optional LLM analyzer; heuristic scoring is used when empty.
	GeminiAPIKey string

	MaxUploadBytes int64

	// Uniform timeout policy for external calls.
	StorageTimeout time.Duration
	CloakTimeout   time.Duration
	ProveTimeout   time.Duration
	AnalyzeTimeout time.Duration
}

const DefaultMaxUploadBytes = 10 << 20 // 10 MiB

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		HTTPPort:       getenv("HTTP_PORT", "8080"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		StorageURL:     os.Getenv("STORAGE_URL"),
		StorageKey:     os.Getenv("STORAGE_KEY"),
		StorageBucket:  getenv("STORAGE_BUCKET", "images"),
		CloakEngineURL: os.Getenv("CLOAK_ENGINE_URL"),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		MaxUploadBytes: getenvInt64("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes),
		StorageTimeout: getenvDuration("STORAGE_TIMEOUT", 30*time.Second),
		CloakTimeout:   getenvDuration("CLOAK_TIMEOUT", 60*time.Second),
		ProveTimeout:   getenvDuration("PROVE_TIMEOUT", 120*time.Second),
		AnalyzeTimeout: getenvDuration("ANALYZE_TIMEOUT", 15*time.Second),
	}
	for name, v := range map[string]string{
		"DATABASE_URL":     c.DatabaseURL,
		"JWT_SECRET":       c.JWTSecret,
		"STORAGE_URL":      c.StorageURL,
		"CLOAK_ENGINE_URL": c.CloakEngineURL,
	} {
		if v == "" {
			return nil, fmt.Errorf("config: %s is empty", name)
		}
	}
	return c, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt64(key string, fallback int64) int64 {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
