package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/ddanialb/Film/internal/logging"
	"github.com/ddanialb/Film/internal/playlistcache"
	"github.com/ddanialb/Film/internal/resolution"
	"github.com/ddanialb/Film/internal/services/streamwide"
	"github.com/ddanialb/Film/internal/services/telegram"
)

// Resolver runs resolutions. *resolution.Orchestrator satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, contentID, title string) resolution.Result
	Season(ctx context.Context, seasonID string) resolution.Result
}

// Tokens manages catalog credentials. *streamwide.TokenManager satisfies it.
type Tokens interface {
	Status() streamwide.TokenStatus
	SetTokens(access, refresh string) error
	ExchangeInitData(ctx context.Context, initData string) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// Telegram is the subset of *telegram.Session the API drives.
type Telegram interface {
	State() telegram.State
	Login(ctx context.Context, phone string, codes telegram.CodeSource, password telegram.PasswordSource) error
}

// Cache is the subset of *playlistcache.Cache the API exposes.
type Cache interface {
	Count() int
	Invalidate(contentID string) (int, error)
}

var (
	_ Resolver = (*resolution.Orchestrator)(nil)
	_ Tokens   = (*streamwide.TokenManager)(nil)
	_ Telegram = (*telegram.Session)(nil)
	_ Cache    = (*playlistcache.Cache)(nil)
)

// Dependencies wires the API handlers. Telegram may be nil when no app
// credentials are configured; the telegram endpoints then answer 503.
type Dependencies struct {
	Resolver Resolver
	Tokens   Tokens
	Telegram Telegram
	Cache    Cache
	// CodePath is the login code side channel written by POST /api/telegram/code.
	CodePath string
	Logger   *slog.Logger
}

// Options configures the listener and lock.
type Options struct {
	Bind     string
	Token    string
	LockPath string
	// ResolveTimeout caps one resolution request. The server's write
	// deadline is derived from it. Zero uses defaultResolveTimeout.
	ResolveTimeout time.Duration
}

// Daemon owns the API server and enforces single-instance execution.
type Daemon struct {
	logger   *slog.Logger
	server   *apiServer
	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                   `json:"running"`
	Address      string                 `json:"address,omitempty"`
	LockFilePath string                 `json:"lockFile"`
	Tokens       streamwide.TokenStatus `json:"tokens"`
	Telegram     TelegramStatus         `json:"telegram"`
	CacheEntries int                    `json:"cacheEntries"`
}

// TelegramStatus describes the bot session as seen by the API.
type TelegramStatus struct {
	Configured      bool   `json:"configured"`
	State           string `json:"state,omitempty"`
	LoginInProgress bool   `json:"loginInProgress"`
	LastLoginError  string `json:"lastLoginError,omitempty"`
}

// New constructs a daemon. Nothing is bound or locked until Start.
func New(opts Options, deps Dependencies) (*Daemon, error) {
	if deps.Resolver == nil || deps.Tokens == nil || deps.Cache == nil {
		return nil, errors.New("daemon requires resolver, tokens, and cache")
	}
	if strings.TrimSpace(opts.LockPath) == "" {
		return nil, errors.New("daemon requires a lock path")
	}
	logger := logging.NewComponentLogger(deps.Logger, "daemon")
	d := &Daemon{
		logger:   logger,
		lockPath: opts.LockPath,
		lock:     flock.New(opts.LockPath),
	}
	d.server = newAPIServer(opts, deps, d)
	return d, nil
}

// Start acquires the lock and begins serving. The server shuts down when ctx
// is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another film server is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.server.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("film server started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.server.address()))
	return nil
}

// Stop shuts the server down and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("film server stopped")
}

// Address returns the bound listener address, or "" when not running.
func (d *Daemon) Address() string {
	return d.server.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		Address:      d.server.address(),
		LockFilePath: d.lockPath,
		Tokens:       d.server.deps.Tokens.Status(),
		Telegram:     d.server.telegramStatus(),
		CacheEntries: d.server.deps.Cache.Count(),
	}
	return status
}
