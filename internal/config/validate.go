package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStreamWide(); err != nil {
		return err
	}
	if err := c.validateTelegram(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStreamWide() error {
	parsed, err := url.Parse(c.StreamWide.BaseURL)
	if err != nil {
		return fmt.Errorf("streamwide.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("streamwide.base_url must be an http(s) URL, got %q", c.StreamWide.BaseURL)
	}
	if parsed.Host == "" {
		return errors.New("streamwide.base_url must include a host")
	}
	if c.StreamWide.MaxSearchPages > 50 {
		return errors.New("streamwide.max_search_pages must be 50 or fewer")
	}
	return nil
}

// validateTelegram only checks shape. Missing credentials are allowed so the
// catalog-only path still works; TelegramReady reports them at use time.
func (c *Config) validateTelegram() error {
	if c.Telegram.AppID < 0 {
		return errors.New("telegram.app_id must be positive")
	}
	if c.Telegram.ProxyPort < 0 || c.Telegram.ProxyPort > 65535 {
		return fmt.Errorf("telegram.proxy_port out of range: %d", c.Telegram.ProxyPort)
	}
	if c.Telegram.ProxyHost != "" && c.Telegram.ProxyPort == 0 {
		return errors.New("telegram.proxy_port is required when telegram.proxy_host is set")
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.ttl <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %q", c.Cache.TTL)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
}
