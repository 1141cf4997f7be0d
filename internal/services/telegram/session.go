package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ddanialb/Film/internal/logging"
	"github.com/ddanialb/Film/internal/services"
)

const (
	defaultConnectWait  = 30 * time.Second
	defaultDialTimeout  = 25 * time.Second
	defaultProxyTimeout = 10 * time.Second
)

// State is the externally visible session state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateUnauthorized State = "unauthorized"
	StateAuthorized   State = "authorized"
)

// SessionConfig configures a Session.
type SessionConfig struct {
	Phone     string
	ProxyAddr string
	// ConnectWait bounds how long a caller waits for another goroutine's
	// connection attempt.
	ConnectWait time.Duration
	// DialTimeout bounds one direct dial plus its authorization probe.
	DialTimeout time.Duration
	// ProxyTimeout bounds the proxied attempt before falling back to direct.
	ProxyTimeout time.Duration
	Password     PasswordSource
}

type connectAttempt struct {
	done chan struct{}
	err  error
}

// Session is the process-wide Telegram session. At most one connection is
// live, one connection attempt runs at a time, one login runs at a time, and
// bot exchanges passed to Do are serialized.
type Session struct {
	cfg    SessionConfig
	dialer Dialer
	store  SessionStore
	codes  CodeSource
	logger *slog.Logger

	mu         sync.Mutex
	conn       Conn
	authorized bool
	connecting *connectAttempt

	loginBusy atomic.Bool
	ops       chan struct{}
}

// NewSession builds a disconnected session. store may be nil when there is no
// persisted material to discard.
func NewSession(cfg SessionConfig, dialer Dialer, store SessionStore, codes CodeSource, logger *slog.Logger) *Session {
	if cfg.ConnectWait <= 0 {
		cfg.ConnectWait = defaultConnectWait
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.ProxyTimeout <= 0 {
		cfg.ProxyTimeout = defaultProxyTimeout
	}
	if cfg.Password == nil {
		cfg.Password = StaticPassword("")
	}
	return &Session{
		cfg:    cfg,
		dialer: dialer,
		store:  store,
		codes:  codes,
		logger: logging.NewComponentLogger(logger, "telegram"),
		ops:    make(chan struct{}, 1),
	}
}

// State reports the current state without touching the network.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.connecting != nil:
		return StateConnecting
	case s.conn == nil:
		return StateDisconnected
	case s.authorized:
		return StateAuthorized
	default:
		return StateUnauthorized
	}
}

// IsAuthorized reports the cached authorization flag.
func (s *Session) IsAuthorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && s.authorized
}

// EnsureConnected makes sure a connection exists and refreshes the
// authorization flag. It returns nil for a connected but unauthorized session.
func (s *Session) EnsureConnected(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		ok, err := conn.Authorized(ctx)
		if err == nil {
			s.setAuthorized(conn, ok)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if s.dialer.IsRevoked(err) {
			return s.revoke(conn, err)
		}
		s.logger.Info("connection probe failed, reconnecting", logging.Error(err))
		s.teardown(conn)
	}
	return s.connectOrWait(ctx)
}

func (s *Session) connectOrWait(ctx context.Context) error {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	if attempt := s.connecting; attempt != nil {
		s.mu.Unlock()
		return s.waitFor(ctx, attempt)
	}
	attempt := &connectAttempt{done: make(chan struct{})}
	s.connecting = attempt
	s.mu.Unlock()

	conn, authorized, err := s.connect(ctx)

	s.mu.Lock()
	s.connecting = nil
	if err == nil {
		s.conn = conn
		s.authorized = authorized
	}
	attempt.err = err
	close(attempt.done)
	s.mu.Unlock()
	return err
}

func (s *Session) waitFor(ctx context.Context, attempt *connectAttempt) error {
	timer := time.NewTimer(s.cfg.ConnectWait)
	defer timer.Stop()
	select {
	case <-attempt.done:
		return attempt.err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return services.Wrap(services.ErrTimeout, "telegram", "connect", "timed out waiting for connection attempt", nil)
	}
}

// connect tries the proxy first, when one is configured, and then a direct
// connection. Each attempt covers the dial and the authorization probe under
// its own timeout; a proxied attempt that fails either step is abandoned.
func (s *Session) connect(ctx context.Context) (Conn, bool, error) {
	if s.cfg.ProxyAddr != "" {
		conn, authorized, err := s.attempt(ctx, s.cfg.ProxyAddr, s.cfg.ProxyTimeout)
		if err == nil {
			s.logConnected(authorized, true)
			return conn, authorized, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		if errors.Is(err, ErrSessionRevoked) {
			return nil, false, err
		}
		logging.WarnWithContext(s.logger, "proxy connection failed, retrying direct", "proxy_dial_failed",
			logging.String("proxy", s.cfg.ProxyAddr),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check SOCKS_PROXY_HOST and SOCKS_PROXY_PORT"))
	}

	conn, authorized, err := s.attempt(ctx, "", s.cfg.DialTimeout)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		return nil, false, err
	}
	s.logConnected(authorized, false)
	return conn, authorized, nil
}

// attempt dials once and probes authorization, all within timeout. The
// returned connection outlives the attempt context.
func (s *Session) attempt(ctx context.Context, proxyAddr string, timeout time.Duration) (Conn, bool, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := s.dialer.Dial(attemptCtx, proxyAddr)
	if err != nil {
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			return nil, false, services.Wrap(services.ErrTimeout, "telegram", "connect", "dial timed out after "+timeout.String(), err)
		}
		return nil, false, services.Wrap(services.ErrTransient, "telegram", "connect", "dial failed", err)
	}

	authorized, err := conn.Authorized(attemptCtx)
	if err != nil {
		_ = conn.Close()
		if s.dialer.IsRevoked(err) {
			s.discardStored(err)
			return nil, false, ErrSessionRevoked
		}
		return nil, false, services.Wrap(services.ErrTransient, "telegram", "connect", "authorization probe failed", err)
	}
	return conn, authorized, nil
}

func (s *Session) logConnected(authorized, proxied bool) {
	s.logger.Info("telegram connected",
		logging.String(logging.FieldEventType, "session_connected"),
		logging.Bool("authorized", authorized),
		logging.Bool("proxy", proxied))
}

// Login authorizes the session. A second caller while a login is running gets
// ErrLoginInProgress. nil codes or password fall back to the session defaults.
func (s *Session) Login(ctx context.Context, phone string, codes CodeSource, password PasswordSource) error {
	if !s.loginBusy.CompareAndSwap(false, true) {
		return ErrLoginInProgress
	}
	defer s.loginBusy.Store(false)

	phone = strings.TrimSpace(phone)
	if phone == "" {
		phone = s.cfg.Phone
	}
	if phone == "" {
		return services.Wrap(services.ErrConfiguration, "telegram", "login", "phone number not configured", nil)
	}
	if codes == nil {
		codes = s.codes
	}
	if codes == nil {
		return services.Wrap(services.ErrConfiguration, "telegram", "login", "no login code source", nil)
	}
	if password == nil {
		password = s.cfg.Password
	}

	err := s.EnsureConnected(ctx)
	if errors.Is(err, ErrSessionRevoked) {
		// the stale key is gone; reconnect with a fresh one to sign in
		err = s.connectOrWait(ctx)
	}
	if err != nil {
		return err
	}
	if s.IsAuthorized() {
		return nil
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return services.Wrap(services.ErrTransient, "telegram", "login", "no connection", nil)
	}

	s.logger.Info("starting telegram login", logging.String(logging.FieldEventType, "login_started"))
	if err := conn.SignIn(ctx, phone, codes, password); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, ErrCodeTimeout) {
			return err
		}
		return services.Wrap(services.ErrNeedsLogin, "telegram", "login", "sign in failed", err)
	}
	s.setAuthorized(conn, true)
	s.logger.Info("telegram login succeeded", logging.String(logging.FieldEventType, "login_succeeded"))
	return nil
}

// Do runs fn with the authorized connection. Calls are serialized. An
// auth-key-revoked error from fn discards the session and returns
// ErrSessionRevoked.
func (s *Session) Do(ctx context.Context, fn func(ctx context.Context, conn Conn) error) error {
	select {
	case s.ops <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.ops }()

	s.mu.Lock()
	conn, authorized := s.conn, s.authorized
	s.mu.Unlock()
	if conn == nil || !authorized {
		return ErrNotAuthorized
	}

	err := fn(ctx, conn)
	if err != nil && s.dialer.IsRevoked(err) {
		return s.revoke(conn, err)
	}
	return err
}

// InitData builds WebApp initData for the logged-in account.
func (s *Session) InitData(ctx context.Context) (string, error) {
	var data string
	err := s.Do(ctx, func(ctx context.Context, conn Conn) error {
		self, err := conn.Self(ctx)
		if err != nil {
			return err
		}
		data, err = BuildInitData(self, time.Now())
		return err
	})
	return data, err
}

// Close tears down the connection.
func (s *Session) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.authorized = false
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (s *Session) setAuthorized(conn Conn, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.authorized = ok
	}
}

func (s *Session) teardown(conn Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		s.authorized = false
	}
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Session) revoke(conn Conn, cause error) error {
	s.teardown(conn)
	s.discardStored(cause)
	return ErrSessionRevoked
}

func (s *Session) discardStored(cause error) {
	logging.WarnWithContext(s.logger, "telegram session revoked", "session_revoked",
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "run `film telegram login` to create a new session"),
		logging.String(logging.FieldImpact, "bot fallback unavailable until login"))
	if s.store == nil {
		return
	}
	if err := s.store.Delete(); err != nil {
		s.logger.Warn("failed to delete revoked session", logging.Error(err))
	}
}
