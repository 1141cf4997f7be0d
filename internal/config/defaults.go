package config

import "time"

const (
	defaultConfigPath            = "~/.config/film/config.toml"
	defaultDataDir               = "~/.local/share/film"
	defaultLogDir                = "~/.local/share/film/logs"
	defaultStreamWideBaseURL     = "https://120e0b2c-b7e9-466f-ba0f-8ca6c6d10dd6.streamwide.tv/api/v1"
	defaultLeadTimeSeconds       = 60
	defaultRequestTimeoutSeconds = 15
	defaultMaxSearchPages        = 10
	defaultBotUsername           = "StreamWideBot"
	defaultCacheTTLText          = "168h"
	defaultCacheTTL              = 7 * 24 * time.Hour
	defaultAPIBind               = "127.0.0.1:7489"
	defaultSearchSeconds         = 15
	defaultManifestSeconds       = 15
	defaultBotConnectSeconds     = 25
	defaultBotResolveSeconds     = 25
	defaultConnectWaitSeconds    = 30
	defaultDialSeconds           = 25
	defaultProxySeconds          = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		StreamWide: StreamWide{
			BaseURL:               defaultStreamWideBaseURL,
			LeadTimeSeconds:       defaultLeadTimeSeconds,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			MaxSearchPages:        defaultMaxSearchPages,
		},
		Telegram: Telegram{
			BotUsername: defaultBotUsername,
		},
		Cache: Cache{
			TTL: defaultCacheTTLText,
			ttl: defaultCacheTTL,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Timeouts: Timeouts{
			SearchSeconds:      defaultSearchSeconds,
			ManifestSeconds:    defaultManifestSeconds,
			BotConnectSeconds:  defaultBotConnectSeconds,
			BotResolveSeconds:  defaultBotResolveSeconds,
			ConnectWaitSeconds: defaultConnectWaitSeconds,
			DialSeconds:        defaultDialSeconds,
			ProxySeconds:       defaultProxySeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
