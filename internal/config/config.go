package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sydlexius/nerdlinks/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Logging       LoggingConfig       `yaml:"logging"`
	Contributions ContributionsConfig `yaml:"contributions"`
	Rules         RulesConfig         `yaml:"rules"`
	Bio           BioConfig           `yaml:"bio"`
	Discord       DiscordConfig       `yaml:"discord"`
	Spotify       SpotifyConfig       `yaml:"spotify"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
	// AllowedOrigin enables CORS for one browser origin.
	AllowedOrigin string `yaml:"allowed_origin"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
	// RetryAttempts bounds how often a transient storage error is retried.
	RetryAttempts int `yaml:"retry_attempts"`
	RetryBaseMS   int `yaml:"retry_base_ms"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level          string `yaml:"level"`
	Format         string `yaml:"format"`
	FilePath       string `yaml:"file_path"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb"`
	FileMaxFiles   int    `yaml:"file_max_files"`
	FileMaxAgeDays int    `yaml:"file_max_age_days"`
}

// ContributionsConfig controls the contribution workflow.
type ContributionsConfig struct {
	// OpenMode accepts anonymous submissions instead of requiring a token.
	OpenMode bool `yaml:"open_mode"`
	// PendingPingMinutes is the minimum gap between moderation pings.
	PendingPingMinutes int `yaml:"pending_ping_minutes"`
	// SubmitPerMinute limits submissions per client IP. Zero disables it.
	SubmitPerMinute int `yaml:"submit_per_minute"`
}

// RulesConfig controls the platform rule registry.
type RulesConfig struct {
	// File is an optional YAML rule file imported at startup and on change.
	File           string `yaml:"file"`
	RefreshSeconds int    `yaml:"refresh_seconds"`
}

// BioConfig holds settings for artist biography generation.
type BioConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// DiscordConfig holds the moderation channel webhook.
type DiscordConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// SpotifyConfig holds client-credentials settings for artist lookups.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8080,
			BasePath: "/",
		},
		Database: DatabaseConfig{
			Path:          "/data/nerdlinks.db",
			RetryAttempts: 3,
			RetryBaseMS:   50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Contributions: ContributionsConfig{
			PendingPingMinutes: 30,
			SubmitPerMinute:    30,
		},
		Rules: RulesConfig{
			RefreshSeconds: 300,
		},
		Bio: BioConfig{
			Model: "gemini-2.5-flash",
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	envInt("NL_PORT", &c.Server.Port)
	envString("NL_BASE_PATH", &c.Server.BasePath)
	envString("NL_ALLOWED_ORIGIN", &c.Server.AllowedOrigin)
	envString("NL_DB_PATH", &c.Database.Path)
	envInt("NL_DB_RETRY_ATTEMPTS", &c.Database.RetryAttempts)
	envString("NL_LOG_LEVEL", &c.Logging.Level)
	envString("NL_LOG_FORMAT", &c.Logging.Format)
	envString("NL_LOG_FILE", &c.Logging.FilePath)
	envBool("NL_OPEN_MODE", &c.Contributions.OpenMode)
	envInt("NL_PENDING_PING_MINUTES", &c.Contributions.PendingPingMinutes)
	envInt("NL_SUBMIT_PER_MINUTE", &c.Contributions.SubmitPerMinute)
	envString("NL_RULES_FILE", &c.Rules.File)
	envInt("NL_RULES_REFRESH_SECONDS", &c.Rules.RefreshSeconds)
	envString("NL_GEMINI_API_KEY", &c.Bio.APIKey)
	envString("NL_GEMINI_MODEL", &c.Bio.Model)
	envString("NL_DISCORD_WEBHOOK_URL", &c.Discord.WebhookURL)
	envString("NL_SPOTIFY_CLIENT_ID", &c.Spotify.ClientID)
	envString("NL_SPOTIFY_CLIENT_SECRET", &c.Spotify.ClientSecret)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	if c.Database.RetryAttempts < 0 {
		return fmt.Errorf("invalid retry_attempts: %d", c.Database.RetryAttempts)
	}
	if c.Rules.RefreshSeconds < 0 {
		return fmt.Errorf("invalid rules refresh_seconds: %d", c.Rules.RefreshSeconds)
	}
	if c.Contributions.PendingPingMinutes < 0 {
		return fmt.Errorf("invalid pending_ping_minutes: %d", c.Contributions.PendingPingMinutes)
	}
	if (c.Spotify.ClientID == "") != (c.Spotify.ClientSecret == "") {
		return fmt.Errorf("spotify client_id and client_secret must be set together")
	}
	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")
	return nil
}
