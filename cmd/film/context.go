package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/ddanialb/Film/internal/botresolver"
	"github.com/ddanialb/Film/internal/config"
	"github.com/ddanialb/Film/internal/logging"
	"github.com/ddanialb/Film/internal/playlistcache"
	"github.com/ddanialb/Film/internal/resolution"
	"github.com/ddanialb/Film/internal/services/streamwide"
	"github.com/ddanialb/Film/internal/services/telegram"
)

var errConflictingFormats = errors.New("--json and --yaml are mutually exclusive")

// commandContext builds configuration and services on first use and shares
// them between the commands of one invocation.
type commandContext struct {
	configFlag *string
	jsonFlag   *bool
	yamlFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	tokensOnce sync.Once
	tokens     *streamwide.TokenManager
	tokensErr  error

	catalogOnce sync.Once
	catalog     *streamwide.Client
	catalogErr  error

	cacheOnce sync.Once
	cache     *playlistcache.Cache

	sessionOnce  sync.Once
	session      *telegram.Session
	sessionStore *telegram.FileSessionStore
	sessionErr   error
}

func newCommandContext(configFlag *string, jsonFlag, yamlFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
		yamlFlag:   yamlFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) log() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to initialize logger: %v\n", err)
			c.logger = logging.NewNop()
			return
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) tokenManager() (*streamwide.TokenManager, error) {
	c.tokensOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.tokensErr = err
			return
		}
		store := streamwide.NewFileCredentialStore(cfg.RefreshTokenPath(), cfg.StreamWide.RefreshToken)
		c.tokens, c.tokensErr = streamwide.NewTokenManager(cfg.StreamWide.BaseURL, store,
			streamwide.WithLeadTime(cfg.LeadTime()),
			streamwide.WithTokenLogger(c.log()))
	})
	return c.tokens, c.tokensErr
}

func (c *commandContext) catalogClient() (*streamwide.Client, error) {
	c.catalogOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.catalogErr = err
			return
		}
		tokens, err := c.tokenManager()
		if err != nil {
			c.catalogErr = err
			return
		}
		c.catalog, c.catalogErr = streamwide.New(cfg.StreamWide.BaseURL, tokens,
			streamwide.WithLogger(c.log()),
			streamwide.WithMaxPages(cfg.StreamWide.MaxSearchPages),
			streamwide.WithRequestTimeout(cfg.RequestTimeout()))
	})
	return c.catalog, c.catalogErr
}

func (c *commandContext) playlistCache() (*playlistcache.Cache, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.cacheOnce.Do(func() {
		c.cache = playlistcache.New(cfg.CachePath(), cfg.CacheTTL(), c.log())
	})
	return c.cache, nil
}

// telegramSession returns the bot session. It fails when the app credentials
// are missing; callers that can run without the bot treat that as optional.
func (c *commandContext) telegramSession() (*telegram.Session, error) {
	c.sessionOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.sessionErr = err
			return
		}
		if err := cfg.TelegramReady(); err != nil {
			c.sessionErr = err
			return
		}
		logger := c.log()
		store := telegram.NewFileSessionStore(cfg.SessionPath(), cfg.Telegram.Session, logger)
		dialer, err := telegram.NewGotdDialer(cfg.Telegram.AppID, cfg.Telegram.AppHash, store, logger)
		if err != nil {
			c.sessionErr = err
			return
		}
		c.sessionStore = store
		c.session = telegram.NewSession(telegram.SessionConfig{
			Phone:        cfg.Telegram.Phone,
			ProxyAddr:    cfg.ProxyAddress(),
			ConnectWait:  seconds(cfg.Timeouts.ConnectWaitSeconds),
			DialTimeout:  seconds(cfg.Timeouts.DialSeconds),
			ProxyTimeout: seconds(cfg.Timeouts.ProxySeconds),
			Password:     telegram.StaticPassword(cfg.Telegram.Password),
		}, dialer, store, telegram.NewCodeFile(cfg.CodePath(), logger), logger)
	})
	return c.session, c.sessionErr
}

// storedSession reports whether persisted session material exists, without
// dialing Telegram.
func (c *commandContext) storedSession() bool {
	cfg, err := c.ensureConfig()
	if err != nil {
		return false
	}
	if cfg.Telegram.Session != "" {
		return true
	}
	_, statErr := os.Stat(cfg.SessionPath())
	return statErr == nil
}

func (c *commandContext) orchestrator() (*resolution.Orchestrator, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	cache, err := c.playlistCache()
	if err != nil {
		return nil, err
	}
	catalog, err := c.catalogClient()
	if err != nil {
		return nil, err
	}
	tokens, err := c.tokenManager()
	if err != nil {
		return nil, err
	}

	deps := resolution.Dependencies{
		Cache:   cache,
		Catalog: catalog,
		Logger:  c.log(),
	}
	if session, err := c.telegramSession(); err == nil {
		deps.Bot = session
		deps.BotResolver = botresolver.New(session,
			botresolver.WithBotUsername(cfg.Telegram.BotUsername),
			botresolver.WithLogger(c.log()))
		deps.Tokens = tokens
	} else {
		c.log().Debug("bot fallback disabled", logging.Error(err))
	}

	return resolution.New(deps, resolution.WithTimeouts(resolution.Timeouts{
		Search:     seconds(cfg.Timeouts.SearchSeconds),
		Seasons:    seconds(cfg.Timeouts.SearchSeconds),
		Manifest:   seconds(cfg.Timeouts.ManifestSeconds),
		BotConnect: seconds(cfg.Timeouts.BotConnectSeconds),
		BotResolve: seconds(cfg.Timeouts.BotResolveSeconds),
	}))
}

// closeSession disconnects the bot session if one was built.
func (c *commandContext) closeSession() {
	if c.session == nil {
		return
	}
	if err := c.session.Close(); err != nil {
		c.log().Debug("close telegram session", logging.Error(err))
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
