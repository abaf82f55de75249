// Package config loads the bot configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration values for the bot.
type Config struct {
	BotToken      string `envconfig:"BOT_TOKEN"`
	WebhookURL    string `envconfig:"WEBHOOK_URL"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`
	Port          string `envconfig:"PORT" default:"8080"`

	// Download pipeline
	CookiesFile     string        `envconfig:"YT_COOKIES_FILE" default:"cookies.txt"`
	YTDLPPath       string        `envconfig:"YTDLP_PATH" default:"yt-dlp"`
	DownloadDir     string        `envconfig:"DOWNLOAD_DIR"`
	PipelineTimeout time.Duration `envconfig:"PIPELINE_TIMEOUT" default:"5m"`
	SonglinkEnabled bool          `envconfig:"SONGLINK_ENABLED" default:"true"`
	SpotifyID       string        `envconfig:"SPOTIFY_CLIENT_ID"`
	SpotifySecret   string        `envconfig:"SPOTIFY_CLIENT_SECRET"`

	// Sessions
	LanguageFile        string        `envconfig:"LANGUAGE_FILE" default:"languages.json"`
	ReminderInterval    time.Duration `envconfig:"REMINDER_INTERVAL" default:"30m"`
	ReminderTypingDelay time.Duration `envconfig:"REMINDER_TYPING_DELAY" default:"2s"`
	ReminderRate        float64       `envconfig:"REMINDER_RATE" default:"20"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = os.TempDir()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return errors.New("BOT_TOKEN must not be empty")
	}
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if c.WebhookURL != "" {
		u, err := url.Parse(c.WebhookURL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return errors.New("WEBHOOK_URL must be an absolute http(s) URL")
		}
	}
	if c.PipelineTimeout <= 0 || c.ReminderInterval <= 0 || c.ReminderTypingDelay < 0 {
		return errors.New("durations must be positive")
	}
	if c.ReminderRate <= 0 {
		return errors.New("REMINDER_RATE must be > 0")
	}
	if strings.TrimSpace(c.LanguageFile) == "" {
		return errors.New("LANGUAGE_FILE must not be empty")
	}
	if (c.SpotifyID == "") != (c.SpotifySecret == "") {
		return errors.New("SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET must be set together")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	return nil
}

// Webhook reports whether updates arrive by webhook instead of long polling.
func (c *Config) Webhook() bool {
	return c.WebhookURL != ""
}

// WebhookPath is the path component of WebhookURL, "/webhook" by default.
func (c *Config) WebhookPath() string {
	u, err := url.Parse(c.WebhookURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "/webhook"
	}
	return u.Path
}

// Spotify reports whether album lookup on Spotify is configured.
func (c *Config) Spotify() bool {
	return c.SpotifyID != "" && c.SpotifySecret != ""
}
