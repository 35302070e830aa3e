package config

import (
	"fmt"
	"net/url"
	"time"

	"agentwatch/internal/retry"
)

// NotifyConfig represents notification configuration
type NotifyConfig struct {
	Enabled bool `mapstructure:"enabled"`

	Webhook WebhookConfig `mapstructure:"webhook"`
	Slack   SlackConfig   `mapstructure:"slack"`

	// Alert on failed test reports in addition to status changes
	OnTestFailure bool `mapstructure:"on_test_failure"`

	RateLimit NotifyRateLimitConfig `mapstructure:"rate_limit"`
	Retry     *retry.Config         `mapstructure:"retry"`
}

// NotifyRateLimitConfig represents rate limiting configuration
type NotifyRateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	MaxEvents int           `mapstructure:"max_events"`
}

// WebhookConfig represents the webhook notification configuration
type WebhookConfig struct {
	Enabled    bool              `mapstructure:"enabled"`
	URL        string            `mapstructure:"url"`
	Secret     string            `mapstructure:"secret"`
	Timeout    time.Duration     `mapstructure:"timeout"`
	Headers    map[string]string `mapstructure:"headers"`
	CommonData map[string]any    `mapstructure:"common_data"`
}

// SlackConfig represents Slack notification configuration
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
	Username   string `mapstructure:"username"`
	IconEmoji  string `mapstructure:"icon_emoji"`
}

func (cfg *NotifyConfig) setDefaults() {
	if cfg.RateLimit.Interval == 0 {
		cfg.RateLimit.Interval = time.Minute
	}
	if cfg.RateLimit.MaxEvents == 0 {
		cfg.RateLimit.MaxEvents = 10
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultRetryConfig()
	}
	if cfg.Webhook.Timeout == 0 {
		cfg.Webhook.Timeout = 10 * time.Second
	}
	if cfg.Slack.Username == "" {
		cfg.Slack.Username = AppName
	}
}

// Validate notification configuration
func (cfg *NotifyConfig) Validate() error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.RateLimit.Enabled && cfg.RateLimit.MaxEvents <= 0 {
		return fmt.Errorf("rate_limit.max_events must be positive")
	}

	if err := cfg.Retry.Validate(); err != nil {
		return fmt.Errorf("invalid retry config: %w", err)
	}

	if cfg.Webhook.Enabled {
		if err := cfg.Webhook.Validate(); err != nil {
			return fmt.Errorf("invalid webhook config: %w", err)
		}
	}

	if cfg.Slack.Enabled {
		if err := cfg.Slack.Validate(); err != nil {
			return fmt.Errorf("invalid slack config: %w", err)
		}
	}

	return nil
}

// Validate validates webhook configuration
func (cfg *WebhookConfig) Validate() error {
	if cfg.URL == "" {
		return fmt.Errorf("url is required")
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if cfg.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}

// Validate validates slack configuration
func (cfg *SlackConfig) Validate() error {
	if cfg.WebhookURL == "" {
		return fmt.Errorf("webhook_url is required")
	}
	if _, err := url.ParseRequestURI(cfg.WebhookURL); err != nil {
		return fmt.Errorf("invalid webhook_url: %w", err)
	}
	return nil
}
