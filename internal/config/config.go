// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Server describes the inbound HTTP listener and the shared webhook secret.
type Server struct {
	Addr          string `yaml:"addr"`
	WebhookSecret string `yaml:"webhook_secret"`
	FrontendURL   string `yaml:"frontend_url"`
}

// Telegram configures the Bot API transport used to relay Cornix commands.
type Telegram struct {
	BotToken       string `yaml:"bot_token"`
	ChatID         string `yaml:"chat_id"`
	APIBaseURL     string `yaml:"api_base_url"`
	TimeoutMs      int    `yaml:"timeout_ms"`
	Attempts       int    `yaml:"attempts"`
	RetryBackoffMs int    `yaml:"retry_backoff_ms"`
}

// Store configures the on-disk signal history.
type Store struct {
	Path          string `yaml:"path"`
	MaxSignals    int    `yaml:"max_signals"`
	RetentionDays int    `yaml:"retention_days"`
	FlushInterval int    `yaml:"flush_interval_ms"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Server   Server   `yaml:"server"`
	Telegram Telegram `yaml:"telegram"`
	Store    Store    `yaml:"store"`
}

// Load reads a YAML file from disk, hydrates a Config struct, and applies
// environment overrides so secrets never have to live in the file.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.applyEnv()
	return &config, nil
}

// applyEnv lets deployment environments (Docker, Koyeb, Railway) inject
// secrets and ports without editing the YAML file.
func (c *Config) applyEnv() {
	overrideString(&c.Server.WebhookSecret, "WEBHOOK_SECRET")
	overrideString(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	overrideString(&c.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	overrideString(&c.Telegram.APIBaseURL, "TELEGRAM_API_BASE_URL")
	overrideString(&c.App.LogLevel, "LOG_LEVEL")
	if port, ok := os.LookupEnv("PORT"); ok {
		if _, err := strconv.Atoi(port); err == nil {
			c.Server.Addr = ":" + port
		}
	}
}

func overrideString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// Validate reports the configuration keys a running relay cannot do without.
func (c *Config) Validate() error {
	var missing []string
	if c.Server.WebhookSecret == "" {
		missing = append(missing, "server.webhook_secret (WEBHOOK_SECRET)")
	}
	if c.Telegram.BotToken == "" {
		missing = append(missing, "telegram.bot_token (TELEGRAM_BOT_TOKEN)")
	}
	if c.Telegram.ChatID == "" {
		missing = append(missing, "telegram.chat_id (TELEGRAM_CHAT_ID)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v", missing)
	}
	return nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
