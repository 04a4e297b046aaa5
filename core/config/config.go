// Package config loads the core bot settings. Values come from a YAML file
// and are then overridden by environment variables named in envconfig tags.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Telegram update modes.
const (
	RunModeWebhook  = "webhook"
	RunModeLongpoll = "longpoll"
)

// Update kinds accepted by rate_limit.exclude_updates.
const (
	UpdateCallback = "callback"
	UpdateMessage  = "message"
)

// TelegramConfig configures the bot API client.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// 0 selects the default of 10 seconds.
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	// Workers sizes the outbound send pool; 0 selects the default.
	Workers int `yaml:"workers" envconfig:"TELEGRAM_WORKERS"`
}

// WebhookConfig is required in webhook mode.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig configures the logger package.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
	// KeysOrder is a comma separated key list written first on every line.
	KeysOrder string `yaml:"keys_order"`
	// DebugSample is "1/50", "50" or "off".
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	Profile     string `yaml:"profile"`
}

// HTTPConfig configures the ops server. An empty Listen disables it.
type HTTPConfig struct {
	Listen     string `yaml:"listen" envconfig:"HTTP_LISTEN"`
	AdminToken string `yaml:"admin_token" envconfig:"HTTP_ADMIN_TOKEN"`
}

// RateLimitConfig paces each user to one update per IntervalMS. Updates
// that would wait longer than MaxDelayMS skip the pacing.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	MaxDelayMS     int      `yaml:"max_delay_ms" envconfig:"RATE_LIMIT_MAX_DELAY_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config is the core section embedded by every bot config.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// Load decodes the YAML file at path into target and applies environment
// overrides. target must be a struct pointer. Validation is up to the caller.
func Load(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read: %w", err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := envconfig.Process("", target); err != nil {
		return fmt.Errorf("config: env: %w", err)
	}
	return nil
}

// Normalize validates cfg and fills defaults in place.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil")
	}
	return errors.Join(
		cfg.normalizeTelegram(),
		cfg.normalizeRateLimit(),
		cfg.normalizeHTTP(),
	)
}

func (c *Config) normalizeTelegram() error {
	t := &c.Telegram
	if strings.TrimSpace(t.Token) == "" {
		return errors.New("telegram.token (BOT_TOKEN) is required")
	}
	if t.Workers < 0 {
		return errors.New("telegram.workers must be >= 0")
	}
	switch mode := strings.ToLower(strings.TrimSpace(t.RunMode)); mode {
	case "", "polling", RunModeLongpoll:
		t.RunMode = RunModeLongpoll
		if t.LongPollTimeoutSeconds < 0 {
			return errors.New("telegram.longpoll_timeout_seconds must be >= 0")
		}
	case RunModeWebhook:
		t.RunMode = RunModeWebhook
		w := c.Webhook
		if strings.TrimSpace(w.URL) == "" || strings.TrimSpace(w.Listen) == "" || w.Port <= 0 {
			return errors.New("webhook.url, webhook.listen and webhook.port are required in webhook mode")
		}
	default:
		return fmt.Errorf("telegram.run_mode %q: want %s or %s", t.RunMode, RunModeLongpoll, RunModeWebhook)
	}
	return nil
}

func (c *Config) normalizeRateLimit() error {
	r := &c.RateLimit
	if r.IntervalMS < 0 || r.MaxDelayMS < 0 {
		return errors.New("rate_limit.interval_ms and rate_limit.max_delay_ms must be >= 0")
	}
	kinds := r.ExcludeUpdates[:0]
	for _, v := range r.ExcludeUpdates {
		k := strings.ToLower(strings.TrimSpace(v))
		switch k {
		case "":
			continue
		case UpdateCallback, UpdateMessage:
			if !slices.Contains(kinds, k) {
				kinds = append(kinds, k)
			}
		default:
			return fmt.Errorf("rate_limit.exclude_updates: unknown kind %q", v)
		}
	}
	r.ExcludeUpdates = kinds
	return nil
}

func (c *Config) normalizeHTTP() error {
	c.HTTP.Listen = strings.TrimSpace(c.HTTP.Listen)
	c.HTTP.AdminToken = strings.TrimSpace(c.HTTP.AdminToken)
	return nil
}
