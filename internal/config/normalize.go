package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStreamWide(); err != nil {
		return err
	}
	if err := c.normalizeTelegram(); err != nil {
		return err
	}
	if err := c.normalizeCache(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeTimeouts()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStreamWide() error {
	if value, ok := lookupEnv("STREAMWIDE_API_URL"); ok {
		c.StreamWide.BaseURL = value
	}
	c.StreamWide.BaseURL = strings.TrimRight(strings.TrimSpace(c.StreamWide.BaseURL), "/")
	if c.StreamWide.BaseURL == "" {
		c.StreamWide.BaseURL = defaultStreamWideBaseURL
	}
	if value, ok := lookupEnv("STREAMWIDE_REFRESH_TOKEN"); ok {
		c.StreamWide.RefreshToken = value
	}
	c.StreamWide.RefreshToken = strings.TrimSpace(c.StreamWide.RefreshToken)
	if c.StreamWide.LeadTimeSeconds <= 0 {
		c.StreamWide.LeadTimeSeconds = defaultLeadTimeSeconds
	}
	if c.StreamWide.RequestTimeoutSeconds <= 0 {
		c.StreamWide.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if c.StreamWide.MaxSearchPages <= 0 {
		c.StreamWide.MaxSearchPages = defaultMaxSearchPages
	}
	return nil
}

func (c *Config) normalizeTelegram() error {
	if value, ok := lookupEnv("TELEGRAM_API_ID"); ok {
		id, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("TELEGRAM_API_ID: %w", err)
		}
		c.Telegram.AppID = id
	}
	if value, ok := lookupEnv("TELEGRAM_API_HASH"); ok {
		c.Telegram.AppHash = value
	}
	if value, ok := lookupEnv("TELEGRAM_PHONE"); ok {
		c.Telegram.Phone = value
	}
	if value, ok := lookupEnv("TELEGRAM_2FA_PASSWORD"); ok {
		c.Telegram.Password = value
	}
	if value, ok := lookupEnv("TELEGRAM_SESSION"); ok {
		c.Telegram.Session = value
	}
	if value, ok := lookupEnv("SOCKS_PROXY_HOST"); ok {
		c.Telegram.ProxyHost = value
	}
	if value, ok := lookupEnv("SOCKS_PROXY_PORT"); ok {
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("SOCKS_PROXY_PORT: %w", err)
		}
		c.Telegram.ProxyPort = port
	}
	c.Telegram.AppHash = strings.TrimSpace(c.Telegram.AppHash)
	c.Telegram.Phone = strings.TrimSpace(c.Telegram.Phone)
	c.Telegram.Session = strings.TrimSpace(c.Telegram.Session)
	c.Telegram.ProxyHost = strings.TrimSpace(c.Telegram.ProxyHost)
	c.Telegram.BotUsername = strings.TrimPrefix(strings.TrimSpace(c.Telegram.BotUsername), "@")
	if c.Telegram.BotUsername == "" {
		c.Telegram.BotUsername = defaultBotUsername
	}
	return nil
}

func (c *Config) normalizeCache() error {
	if value, ok := lookupEnv("FILM_CACHE_TTL"); ok {
		c.Cache.TTL = value
	}
	c.Cache.TTL = strings.TrimSpace(c.Cache.TTL)
	if c.Cache.TTL == "" {
		c.Cache.TTL = defaultCacheTTLText
	}
	ttl, err := time.ParseDuration(c.Cache.TTL)
	if err != nil {
		return fmt.Errorf("cache.ttl: %w", err)
	}
	c.Cache.ttl = ttl
	return nil
}

func (c *Config) normalizeAPI() {
	if value, ok := lookupEnv("FILM_API_TOKEN"); ok {
		c.API.Token = value
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
}

func (c *Config) normalizeTimeouts() {
	fill := func(value *int, def int) {
		if *value <= 0 {
			*value = def
		}
	}
	fill(&c.Timeouts.SearchSeconds, defaultSearchSeconds)
	fill(&c.Timeouts.ManifestSeconds, defaultManifestSeconds)
	fill(&c.Timeouts.BotConnectSeconds, defaultBotConnectSeconds)
	fill(&c.Timeouts.BotResolveSeconds, defaultBotResolveSeconds)
	fill(&c.Timeouts.ConnectWaitSeconds, defaultConnectWaitSeconds)
	fill(&c.Timeouts.DialSeconds, defaultDialSeconds)
	fill(&c.Timeouts.ProxySeconds, defaultProxySeconds)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// lookupEnv returns a trimmed, non-empty environment value.
func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}
