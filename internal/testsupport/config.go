// Package testsupport builds isolated film configurations for tests.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/ddanialb/Film/internal/config"
)

// EnvOverrides lists every environment variable config.Load consults.
var EnvOverrides = []string{
	"STREAMWIDE_API_URL", "STREAMWIDE_REFRESH_TOKEN",
	"TELEGRAM_API_ID", "TELEGRAM_API_HASH", "TELEGRAM_PHONE",
	"TELEGRAM_2FA_PASSWORD", "TELEGRAM_SESSION",
	"SOCKS_PROXY_HOST", "SOCKS_PROXY_PORT",
	"FILM_CACHE_TTL", "FILM_API_TOKEN",
}

// ClearEnv blanks every config override for the duration of the test so the
// host environment cannot leak in.
func ClearEnv(t testing.TB) {
	t.Helper()
	for _, key := range EnvOverrides {
		t.Setenv(key, "")
	}
}

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config whose data and log directories live in a
// per-test temp directory. HOME is pointed there as well.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))

	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.API.Bind = "127.0.0.1:0"
	cfg.Logging.Level = "error"
	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithCatalogURL points the catalog client at baseURL.
func WithCatalogURL(baseURL string) ConfigOption {
	return func(c *config.Config) {
		c.StreamWide.BaseURL = baseURL
	}
}

// WithRefreshToken seeds the catalog refresh token.
func WithRefreshToken(token string) ConfigOption {
	return func(c *config.Config) {
		c.StreamWide.RefreshToken = token
	}
}

// WriteConfig encodes cfg as TOML next to its data directory and returns the
// file path.
func WriteConfig(t testing.TB, cfg *config.Config) string {
	t.Helper()

	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	path := filepath.Join(filepath.Dir(cfg.Paths.DataDir), "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
