// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. Values come from an
// optional YAML file, overridden by environment variables.
type Config struct {
	Addr            string `yaml:"addr"`
	APIKey          string `yaml:"api_key"`
	GeminiAPIKey    string `yaml:"gemini_api_key"`
	AssistModel     string `yaml:"assist_model"`
	FollowUpModel   string `yaml:"followup_model"`
	TranscribeModel string `yaml:"transcribe_model"`
	ContextDir      string `yaml:"context_dir"`
	LogLevel        string `yaml:"log_level"`

	// SessionTTLHours is the idle age after which the retention sweep
	// removes a session record. 0 disables sweeping.
	SessionTTLHours int `yaml:"session_ttl_hours"`

	// RetentionSchedule is a cron expression for the sweep.
	RetentionSchedule string `yaml:"retention_schedule"`
}

// LoadEnvFile loads a .env file into the process environment if one
// exists. Missing files are not an error.
func LoadEnvFile() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty or the file does not exist), then
// environment variables.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Addr:              ":8080",
		AssistModel:       "gemini-2.5-flash",
		FollowUpModel:     "gemini-2.5-flash",
		TranscribeModel:   "gemini-2.5-flash",
		ContextDir:        "contexts",
		LogLevel:          "info",
		SessionTTLHours:   24,
		RetentionSchedule: "@hourly",
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Optional file.
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	cfg.Addr = getEnv("ADDR", cfg.Addr)
	cfg.APIKey = getEnv("API_KEY", cfg.APIKey)
	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.AssistModel = getEnv("ASSIST_MODEL", cfg.AssistModel)
	cfg.FollowUpModel = getEnv("FOLLOWUP_MODEL", cfg.FollowUpModel)
	cfg.TranscribeModel = getEnv("TRANSCRIBE_MODEL", cfg.TranscribeModel)
	cfg.ContextDir = getEnv("CONTEXT_DIR", cfg.ContextDir)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.SessionTTLHours = getEnvInt("SESSION_TIMEOUT_HOURS", cfg.SessionTTLHours)
	cfg.RetentionSchedule = getEnv("RETENTION_SCHEDULE", cfg.RetentionSchedule)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that required fields are set and well-formed.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("ADDR cannot be empty")
	}
	if c.ContextDir == "" {
		return fmt.Errorf("CONTEXT_DIR cannot be empty")
	}
	if c.AssistModel == "" || c.FollowUpModel == "" {
		return fmt.Errorf("models cannot be empty")
	}
	if c.SessionTTLHours < 0 {
		return fmt.Errorf("SESSION_TIMEOUT_HOURS cannot be negative")
	}
	return nil
}

// SessionTTL returns the retention TTL as a duration; 0 means disabled.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// SlogLevel maps the configured log level onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		slog.Warn("ignoring non-integer environment value", "key", key, "value", value)
		return fallback
	}
	return n
}
