package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for persisted state and logs.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// StreamWide contains configuration for the catalog API.
type StreamWide struct {
	BaseURL               string `toml:"base_url"`
	RefreshToken          string `toml:"refresh_token"`
	LeadTimeSeconds       int    `toml:"lead_time_seconds"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	MaxSearchPages        int    `toml:"max_search_pages"`
}

// Telegram contains configuration for the bot session used as the last
// resolution fallback.
type Telegram struct {
	AppID       int    `toml:"app_id"`
	AppHash     string `toml:"app_hash"`
	Phone       string `toml:"phone"`
	Password    string `toml:"password"`
	BotUsername string `toml:"bot_username"`
	ProxyHost   string `toml:"proxy_host"`
	ProxyPort   int    `toml:"proxy_port"`
	// Session holds a base64 session blob. When set it takes precedence over
	// the session file.
	Session string `toml:"session"`
}

// Cache contains configuration for the playlist resolution cache.
type Cache struct {
	TTL string `toml:"ttl"` // Go duration, default 168h

	ttl time.Duration
}

// API contains configuration for the HTTP API served by `film serve`.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Timeouts bounds each external call made while resolving a title.
type Timeouts struct {
	SearchSeconds      int `toml:"search_seconds"`
	ManifestSeconds    int `toml:"manifest_seconds"`
	BotConnectSeconds  int `toml:"bot_connect_seconds"`
	BotResolveSeconds  int `toml:"bot_resolve_seconds"`
	ConnectWaitSeconds int `toml:"connect_wait_seconds"`
	DialSeconds        int `toml:"dial_seconds"`
	ProxySeconds       int `toml:"proxy_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for film.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - StreamWide: catalog API endpoint and credential tuning
//   - Telegram: bot session credentials and proxy
//   - Cache: resolution cache expiry
//   - API: HTTP API bind address and bearer token
//   - Timeouts: per-call deadlines for the resolution pipeline
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	StreamWide StreamWide `toml:"streamwide"`
	Telegram   Telegram   `toml:"telegram"`
	Cache      Cache      `toml:"cache"`
	API        API        `toml:"api"`
	Timeouts   Timeouts   `toml:"timeouts"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and environment overrides applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("film.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CachePath is the resolution cache file.
func (c *Config) CachePath() string {
	return filepath.Join(c.Paths.DataDir, "playlist_cache.json")
}

// RefreshTokenPath is the file holding the catalog refresh token.
func (c *Config) RefreshTokenPath() string {
	return filepath.Join(c.Paths.DataDir, "streamwide_refresh.txt")
}

// SessionPath is the file holding the serialized bot session.
func (c *Config) SessionPath() string {
	return filepath.Join(c.Paths.DataDir, "telegram_session.json")
}

// CodePath is the side-channel file an operator writes the login code into.
func (c *Config) CodePath() string {
	return filepath.Join(c.Paths.DataDir, "telegram_code.txt")
}

// LockPath is the advisory lock held by a running `film serve`.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "film.lock")
}

// CacheTTL returns the parsed cache expiry.
func (c *Config) CacheTTL() time.Duration {
	if c.Cache.ttl <= 0 {
		return defaultCacheTTL
	}
	return c.Cache.ttl
}

// LeadTime is how long before expiry an access token is refreshed.
func (c *Config) LeadTime() time.Duration {
	return time.Duration(c.StreamWide.LeadTimeSeconds) * time.Second
}

// RequestTimeout bounds a single catalog HTTP request.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.StreamWide.RequestTimeoutSeconds) * time.Second
}

// ProxyAddress returns host:port for the SOCKS5 proxy, or "" when unset.
func (c *Config) ProxyAddress() string {
	host := strings.TrimSpace(c.Telegram.ProxyHost)
	if host == "" || c.Telegram.ProxyPort <= 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", host, c.Telegram.ProxyPort)
}

// TelegramReady reports whether enough bot credentials exist to open a session.
func (c *Config) TelegramReady() error {
	if c.Telegram.AppID <= 0 || strings.TrimSpace(c.Telegram.AppHash) == "" {
		return errors.New("telegram.app_id and telegram.app_hash are required (or set TELEGRAM_API_ID and TELEGRAM_API_HASH)")
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
