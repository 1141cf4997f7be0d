package streamwide

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ddanialb/Film/internal/logging"
	"github.com/ddanialb/Film/internal/services"
)

const (
	defaultLeadTime      = time.Minute
	assumedTokenLifetime = 10 * time.Minute
	webAppOrigin         = "https://web-app.streamwide.tv"
)

// TokenManagerOption customises TokenManager construction.
type TokenManagerOption func(*TokenManager)

// WithTokenHTTPClient overrides the HTTP client used for auth endpoints.
func WithTokenHTTPClient(client HTTPDoer) TokenManagerOption {
	return func(m *TokenManager) {
		if client != nil {
			m.httpClient = client
		}
	}
}

// WithLeadTime sets how long before expiry an access token is refreshed.
func WithLeadTime(lead time.Duration) TokenManagerOption {
	return func(m *TokenManager) {
		if lead > 0 {
			m.leadTime = lead
		}
	}
}

// WithTokenLogger attaches a logger.
func WithTokenLogger(logger *slog.Logger) TokenManagerOption {
	return func(m *TokenManager) {
		m.logger = logging.NewComponentLogger(logger, "streamwide-auth")
	}
}

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) TokenManagerOption {
	return func(m *TokenManager) {
		if now != nil {
			m.now = now
		}
	}
}

// credential is replaced wholesale; fields are never edited in place.
type credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TokenStatus summarizes the credential for status displays.
type TokenStatus struct {
	HasAccess  bool      `json:"hasAccess"`
	HasRefresh bool      `json:"hasRefresh"`
	ExpiresAt  time.Time `json:"expiresAt,omitzero"`
	Source     string    `json:"source,omitempty"`
}

// TokenManager owns the catalog access/refresh token pair and refreshes the
// access token on demand.
type TokenManager struct {
	baseURL    string
	httpClient HTTPDoer
	store      CredentialStore
	leadTime   time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.RWMutex
	cred   credential
	source string
}

// NewTokenManager builds a TokenManager and loads the refresh token from store.
func NewTokenManager(baseURL string, store CredentialStore, opts ...TokenManagerOption) (*TokenManager, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("streamwide base url required")
	}
	if store == nil {
		return nil, errors.New("credential store required")
	}
	m := &TokenManager{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		store:      store,
		leadTime:   defaultLeadTime,
		logger:     logging.NewComponentLogger(nil, "streamwide-auth"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	stored, err := store.Load()
	if err != nil {
		return nil, err
	}
	m.cred = credential{RefreshToken: stored.RefreshToken}
	m.source = stored.Source
	if stored.RefreshToken != "" {
		m.logger.Debug("loaded refresh token", logging.String("source", stored.Source))
	}
	return m, nil
}

// Token returns a valid access token, refreshing it first when it is missing
// or within the lead time of expiry. It never fabricates a token: when no
// refresh token exists or the refresh fails, it returns a *services.AuthError.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	if token, ok := m.cachedToken(); ok {
		return token, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked(ctx, false)
}

// Refresh exchanges the refresh token for a new access token regardless of
// the current token's expiry.
func (m *TokenManager) Refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked(ctx, true)
}

func (m *TokenManager) cachedToken() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.validLocked()
}

func (m *TokenManager) validLocked() (string, bool) {
	if m.cred.AccessToken != "" && m.cred.ExpiresAt.Sub(m.now()) > m.leadTime {
		return m.cred.AccessToken, true
	}
	return "", false
}

func (m *TokenManager) refreshLocked(ctx context.Context, force bool) (string, error) {
	if !force {
		if token, ok := m.validLocked(); ok {
			return token, nil
		}
	}
	if m.cred.RefreshToken == "" {
		return "", services.NewAuthError(services.AuthNoCredential, errors.New("no refresh token configured"))
	}

	var resp struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	err := doJSON(ctx, m.httpClient, request{
		method: http.MethodPost,
		url:    m.baseURL + "/accounts/token/refresh/",
		op:     "token refresh",
		body:   map[string]string{"refresh": m.cred.RefreshToken},
	}, &resp)
	if err == nil && strings.TrimSpace(resp.Access) == "" {
		err = errors.New("refresh response missing access token")
	}
	if err != nil {
		m.logger.Info("token refresh failed",
			logging.String(logging.FieldEventType, "token_refresh_failed"),
			logging.Error(err))
		return "", services.NewAuthError(services.AuthRefreshFailed, err)
	}

	refresh := m.cred.RefreshToken
	if rotated := strings.TrimSpace(resp.Refresh); rotated != "" {
		refresh = rotated
	}
	m.replaceLocked(strings.TrimSpace(resp.Access), refresh)
	m.logger.Debug("access token refreshed",
		logging.String(logging.FieldEventType, "token_refreshed"),
		logging.String("expires_at", m.cred.ExpiresAt.UTC().Format(time.RFC3339)))
	return m.cred.AccessToken, nil
}

// ExchangeInitData authenticates with a Telegram WebApp initData string and
// replaces both tokens.
func (m *TokenManager) ExchangeInitData(ctx context.Context, initData string) (string, error) {
	initData = strings.TrimSpace(initData)
	if initData == "" {
		return "", services.Wrap(services.ErrValidation, component, "telegram auth", "initData is empty", nil)
	}

	var resp struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	err := doJSON(ctx, m.httpClient, request{
		method: http.MethodPost,
		url:    m.baseURL + "/accounts/telegram/auth/",
		op:     "telegram auth",
		headers: map[string]string{
			"Origin":  webAppOrigin,
			"Referer": webAppOrigin + "/",
		},
		body: map[string]string{"initData": initData},
	}, &resp)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Access) == "" {
		return "", services.NewAuthError(services.AuthRejected, errors.New("telegram auth response missing access token"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	refresh := strings.TrimSpace(resp.Refresh)
	if refresh == "" {
		refresh = m.cred.RefreshToken
	}
	m.replaceLocked(strings.TrimSpace(resp.Access), refresh)
	m.logger.Info("authenticated with telegram initData",
		logging.String(logging.FieldEventType, "token_exchanged"))
	return m.cred.AccessToken, nil
}

// SetTokens installs tokens supplied by an operator. Either value may be
// empty, but not both.
func (m *TokenManager) SetTokens(access, refresh string) error {
	access = strings.TrimSpace(access)
	refresh = strings.TrimSpace(refresh)
	if access == "" && refresh == "" {
		return services.Wrap(services.ErrValidation, component, "set tokens", "access or refresh token required", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if refresh == "" {
		refresh = m.cred.RefreshToken
	}
	if access == "" {
		m.cred = credential{RefreshToken: refresh}
		m.persistLocked()
		return nil
	}
	m.replaceLocked(access, refresh)
	return nil
}

// Invalidate drops the access token so the next Token call refreshes.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = credential{RefreshToken: m.cred.RefreshToken}
}

// Status reports what credentials are currently held.
func (m *TokenManager) Status() TokenStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, valid := m.validLocked()
	return TokenStatus{
		HasAccess:  valid,
		HasRefresh: m.cred.RefreshToken != "",
		ExpiresAt:  m.cred.ExpiresAt,
		Source:     m.source,
	}
}

func (m *TokenManager) replaceLocked(access, refresh string) {
	m.cred = credential{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    tokenExpiry(access, m.now()),
	}
	if refresh != "" {
		m.persistLocked()
	}
}

// persistLocked saves the refresh token. Failure is logged and otherwise
// ignored; the in-memory credential stays usable.
func (m *TokenManager) persistLocked() {
	if err := m.store.Save(StoredCredential{RefreshToken: m.cred.RefreshToken}); err != nil {
		logging.WarnWithContext(m.logger, "failed to persist refresh token", "token_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the data directory"),
			logging.String(logging.FieldImpact, "refresh token will be lost on restart"))
		return
	}
	m.source = SourceFile
}

// tokenExpiry reads the exp claim of a JWT access token without verifying
// its signature. Opaque tokens get the catalog's usual 10 minute lifetime.
func tokenExpiry(access string, now time.Time) time.Time {
	token, _, err := jwt.NewParser().ParseUnverified(access, jwt.MapClaims{})
	if err != nil {
		return now.Add(assumedTokenLifetime)
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return now.Add(assumedTokenLifetime)
	}
	return exp.Time
}

func (s TokenStatus) String() string {
	if !s.HasAccess && !s.HasRefresh {
		return "no credentials"
	}
	return fmt.Sprintf("access=%t refresh=%t expires=%s", s.HasAccess, s.HasRefresh, s.ExpiresAt.Format(time.RFC3339))
}
