package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ddanialb/Film/internal/media"
	"github.com/ddanialb/Film/internal/resolution"
	"github.com/ddanialb/Film/internal/services"
	"github.com/ddanialb/Film/internal/services/streamwide"
	"github.com/ddanialb/Film/internal/services/telegram"
)

type fakeResolver struct {
	mu        sync.Mutex
	result    resolution.Result
	season    resolution.Result
	gotID     string
	gotTitle  string
	requestID string
	deadline  time.Time
}

func (f *fakeResolver) Resolve(ctx context.Context, contentID, title string) resolution.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotID, f.gotTitle = contentID, title
	f.requestID, _ = services.RequestIDFromContext(ctx)
	f.deadline, _ = ctx.Deadline()
	return f.result
}

func (f *fakeResolver) Season(_ context.Context, seasonID string) resolution.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotID = seasonID
	return f.season
}

type fakeTokens struct {
	status      streamwide.TokenStatus
	setErr      error
	exchangeErr error
	refreshErr  error

	access, refresh, initData string
	refreshed                 int
}

func (f *fakeTokens) Status() streamwide.TokenStatus { return f.status }

func (f *fakeTokens) SetTokens(access, refresh string) error {
	f.access, f.refresh = access, refresh
	return f.setErr
}

func (f *fakeTokens) ExchangeInitData(_ context.Context, initData string) (string, error) {
	f.initData = initData
	if f.exchangeErr != nil {
		return "", f.exchangeErr
	}
	f.status.HasAccess = true
	return "access", nil
}

func (f *fakeTokens) Refresh(context.Context) (string, error) {
	f.refreshed++
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	return "access", nil
}

type fakeTelegram struct {
	gate    chan struct{}
	started chan struct{}
	err     error

	mu     sync.Mutex
	phones []string
}

func (f *fakeTelegram) State() telegram.State { return telegram.StateUnauthorized }

func (f *fakeTelegram) Login(ctx context.Context, phone string, _ telegram.CodeSource, _ telegram.PasswordSource) error {
	f.mu.Lock()
	f.phones = append(f.phones, phone)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

type fakeCache struct {
	count       int
	invalidated []string
}

func (f *fakeCache) Count() int { return f.count }

func (f *fakeCache) Invalidate(contentID string) (int, error) {
	if contentID == "" {
		n := f.count
		f.count = 0
		return n, nil
	}
	if _, err := media.NormalizeContentID(contentID); err != nil {
		return 0, err
	}
	f.invalidated = append(f.invalidated, contentID)
	return 1, nil
}

type harness struct {
	daemon   *Daemon
	resolver *fakeResolver
	tokens   *fakeTokens
	telegram *fakeTelegram
	cache    *fakeCache
	codePath string
}

func newHarness(t *testing.T, token string, withTelegram bool) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		resolver: &fakeResolver{},
		tokens:   &fakeTokens{status: streamwide.TokenStatus{HasRefresh: true, Source: "file"}},
		cache:    &fakeCache{count: 3},
		codePath: filepath.Join(dir, "telegram_code.txt"),
	}
	deps := Dependencies{
		Resolver: h.resolver,
		Tokens:   h.tokens,
		Cache:    h.cache,
		CodePath: h.codePath,
	}
	if withTelegram {
		h.telegram = &fakeTelegram{}
		deps.Telegram = h.telegram
	}
	d, err := New(Options{Bind: "127.0.0.1:0", Token: token, LockPath: filepath.Join(dir, "film.lock")}, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.daemon = d
	return h
}

func (h *harness) do(t *testing.T, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	w := httptest.NewRecorder()
	h.daemon.server.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestLinksMapsResultKinds(t *testing.T) {
	items := []media.DownloadItem{media.NewDownloadItem("Inception.2010.1080p.x265.mkv", "https://cdn/x.mkv", 1<<30)}
	tests := []struct {
		name      string
		result    resolution.Result
		status    int
		success   bool
		needLogin bool
	}{
		{"movie", resolution.Result{Kind: resolution.KindMovie, PlaylistID: "pl", Items: items}, http.StatusOK, true, false},
		{"series", resolution.Result{Kind: resolution.KindSeries, Items: []media.DownloadItem{}}, http.StatusOK, true, false},
		{"needs login", resolution.Result{Kind: resolution.KindNeedsLogin, Items: []media.DownloadItem{}, Message: "login"}, http.StatusOK, false, true},
		{"not found", resolution.Result{Kind: resolution.KindNotFound}, http.StatusNotFound, false, false},
		{"error", resolution.Result{Kind: resolution.KindError, Message: "boom"}, http.StatusBadGateway, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "", false)
			h.resolver.result = tt.result
			w := h.do(t, http.MethodGet, "/api/links?imdbId=tt1375666&title=Inception", "", nil)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
			resp := decode[map[string]any](t, w)
			if resp["success"] != tt.success {
				t.Fatalf("success = %v, want %v", resp["success"], tt.success)
			}
			if got, _ := resp["needLogin"].(bool); got != tt.needLogin {
				t.Fatalf("needLogin = %v, want %v", got, tt.needLogin)
			}
			if resp["type"] != string(tt.result.Kind) {
				t.Fatalf("type = %v, want %s", resp["type"], tt.result.Kind)
			}
			if h.resolver.gotID != "tt1375666" || h.resolver.gotTitle != "Inception" {
				t.Fatalf("resolver got id=%q title=%q", h.resolver.gotID, h.resolver.gotTitle)
			}
		})
	}
}

func TestLinksValidatesContentID(t *testing.T) {
	h := newHarness(t, "", false)
	for _, target := range []string{"/api/links", "/api/links?imdbId=abc", "/api/links?imdbId=%20"} {
		w := h.do(t, http.MethodGet, target, "", nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", target, w.Code)
		}
	}
	if h.resolver.gotID != "" {
		t.Fatal("resolver must not run for invalid ids")
	}
	if w := h.do(t, http.MethodPost, "/api/links?imdbId=tt1", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST status = %d, want 405", w.Code)
	}
}

func TestRequestIDPropagates(t *testing.T) {
	h := newHarness(t, "", false)
	h.resolver.result = resolution.Result{Kind: resolution.KindNotFound}

	w := h.do(t, http.MethodGet, "/api/links?imdbId=tt1", "", http.Header{requestIDHeader: {"req-42"}})
	if got := w.Header().Get(requestIDHeader); got != "req-42" {
		t.Fatalf("response request id = %q", got)
	}
	if h.resolver.requestID != "req-42" {
		t.Fatalf("resolver saw request id %q", h.resolver.requestID)
	}

	w = h.do(t, http.MethodGet, "/api/links?imdbId=tt1", "", nil)
	if w.Header().Get(requestIDHeader) == "" || h.resolver.requestID == "" {
		t.Fatal("expected a generated request id")
	}
}

func TestBearerAuth(t *testing.T) {
	h := newHarness(t, "s3cret", false)
	tests := []struct {
		name   string
		header http.Header
		status int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong scheme", http.Header{"Authorization": {"Basic s3cret"}}, http.StatusUnauthorized},
		{"wrong token", http.Header{"Authorization": {"Bearer nope"}}, http.StatusUnauthorized},
		{"valid", http.Header{"Authorization": {"Bearer s3cret"}}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(t, http.MethodGet, "/api/status", "", tt.header)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}

func TestStatusReportsComponents(t *testing.T) {
	h := newHarness(t, "", true)
	w := h.do(t, http.MethodGet, "/api/status", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	status := decode[Status](t, w)
	if status.Running {
		t.Fatal("daemon was never started")
	}
	if status.CacheEntries != 3 || !status.Tokens.HasRefresh {
		t.Fatalf("unexpected status %+v", status)
	}
	if !status.Telegram.Configured || status.Telegram.State != string(telegram.StateUnauthorized) {
		t.Fatalf("unexpected telegram status %+v", status.Telegram)
	}
}

func TestSeasonEndpoint(t *testing.T) {
	h := newHarness(t, "", false)
	h.resolver.season = resolution.Result{Kind: resolution.KindSeries, Items: []media.DownloadItem{}}

	if w := h.do(t, http.MethodGet, "/api/season", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing seasonId status = %d", w.Code)
	}
	w := h.do(t, http.MethodGet, "/api/season?seasonId=s-2", "", nil)
	if w.Code != http.StatusOK || h.resolver.gotID != "s-2" {
		t.Fatalf("status = %d gotID=%q", w.Code, h.resolver.gotID)
	}
}

func TestTelegramLoginRunsInBackgroundOnce(t *testing.T) {
	h := newHarness(t, "", true)
	h.telegram.gate = make(chan struct{})
	h.telegram.started = make(chan struct{}, 1)

	w := h.do(t, http.MethodPost, "/api/telegram/login", `{"phone":"+15550100"}`, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("first login status = %d (%s)", w.Code, w.Body.String())
	}
	<-h.telegram.started

	w = h.do(t, http.MethodPost, "/api/telegram/login", "", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("second login status = %d, want 409", w.Code)
	}
	if !h.daemon.Status().Telegram.LoginInProgress {
		t.Fatal("expected login in progress")
	}

	close(h.telegram.gate)
	h.daemon.server.loginWG.Wait()

	status := h.daemon.Status().Telegram
	if status.LoginInProgress || status.LastLoginError != "" {
		t.Fatalf("unexpected status after login %+v", status)
	}
	if len(h.telegram.phones) != 1 || h.telegram.phones[0] != "+15550100" {
		t.Fatalf("login calls %v", h.telegram.phones)
	}
}

func TestTelegramLoginFailureIsReported(t *testing.T) {
	h := newHarness(t, "", true)
	h.telegram.err = telegram.ErrCodeTimeout

	if w := h.do(t, http.MethodPost, "/api/telegram/login", "", nil); w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	h.daemon.server.loginWG.Wait()
	if got := h.daemon.Status().Telegram.LastLoginError; got == "" {
		t.Fatal("expected last login error")
	}
}

func TestTelegramEndpointsWithoutTelegram(t *testing.T) {
	h := newHarness(t, "", false)
	if w := h.do(t, http.MethodPost, "/api/telegram/login", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestTelegramCodeWritesSideChannel(t *testing.T) {
	h := newHarness(t, "", true)

	w := h.do(t, http.MethodPost, "/api/telegram/code", `{"code":" 12345 "}`, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	data, err := os.ReadFile(h.codePath)
	if err != nil || string(data) != "12345" {
		t.Fatalf("code file = %q, %v", data, err)
	}

	for _, body := range []string{`{"code":"abc"}`, `{"code":""}`, `{"pin":"1"}`, `not json`} {
		if w := h.do(t, http.MethodPost, "/api/telegram/code", body, nil); w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d, want 400", body, w.Code)
		}
	}
}

func TestTokenEndpoints(t *testing.T) {
	t.Run("init data exchange", func(t *testing.T) {
		h := newHarness(t, "", false)
		w := h.do(t, http.MethodPost, "/api/token", `{"initData":"auth_date=1&hash=x"}`, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
		}
		if h.tokens.initData != "auth_date=1&hash=x" {
			t.Fatalf("initData = %q", h.tokens.initData)
		}
		if status := decode[streamwide.TokenStatus](t, w); !status.HasAccess {
			t.Fatalf("expected access after exchange, got %+v", status)
		}
	})

	t.Run("manual tokens", func(t *testing.T) {
		h := newHarness(t, "", false)
		w := h.do(t, http.MethodPost, "/api/token", `{"access":"a","refresh":"r"}`, nil)
		if w.Code != http.StatusOK || h.tokens.access != "a" || h.tokens.refresh != "r" {
			t.Fatalf("status = %d access=%q refresh=%q", w.Code, h.tokens.access, h.tokens.refresh)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		h := newHarness(t, "", false)
		if w := h.do(t, http.MethodPost, "/api/token", `{}`, nil); w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})

	t.Run("rejected exchange", func(t *testing.T) {
		h := newHarness(t, "", false)
		h.tokens.exchangeErr = services.NewAuthError(services.AuthRejected, errors.New("403"))
		if w := h.do(t, http.MethodPost, "/api/token", `{"initData":"x"}`, nil); w.Code != http.StatusBadGateway {
			t.Fatalf("status = %d, want 502", w.Code)
		}
	})

	t.Run("forced refresh", func(t *testing.T) {
		h := newHarness(t, "", false)
		if w := h.do(t, http.MethodPost, "/api/token/refresh", "", nil); w.Code != http.StatusOK || h.tokens.refreshed != 1 {
			t.Fatalf("status = %d refreshed=%d", w.Code, h.tokens.refreshed)
		}
		h.tokens.refreshErr = services.NewAuthError(services.AuthNoCredential, nil)
		if w := h.do(t, http.MethodPost, "/api/token/refresh", "", nil); w.Code != http.StatusBadGateway {
			t.Fatalf("status = %d, want 502", w.Code)
		}
	})
}

func TestCacheInvalidateEndpoint(t *testing.T) {
	h := newHarness(t, "", false)

	w := h.do(t, http.MethodDelete, "/api/cache?imdbId=tt1375666", "", nil)
	if w.Code != http.StatusOK || decode[map[string]int](t, w)["removed"] != 1 {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if w := h.do(t, http.MethodDelete, "/api/cache?imdbId=bogus", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid id status = %d, want 400", w.Code)
	}
	w = h.do(t, http.MethodDelete, "/api/cache", "", nil)
	if decode[map[string]int](t, w)["removed"] != 3 {
		t.Fatalf("clear-all body=%s", w.Body.String())
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{services.Wrap(services.ErrValidation, "x", "op", "bad", nil), http.StatusBadRequest},
		{services.Wrap(services.ErrNotFound, "x", "op", "", nil), http.StatusNotFound},
		{telegram.ErrLoginInProgress, http.StatusConflict},
		{services.Wrap(services.ErrConfiguration, "x", "op", "", nil), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{services.Wrap(services.ErrTransient, "x", "op", "", nil), http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestResolveTimeoutBoundsRequestAndWrite(t *testing.T) {
	dir := t.TempDir()
	resolver := &fakeResolver{result: resolution.Result{Kind: resolution.KindNotFound}}
	d, err := New(Options{
		Bind:           "127.0.0.1:0",
		LockPath:       filepath.Join(dir, "film.lock"),
		ResolveTimeout: 2 * time.Minute,
	}, Dependencies{Resolver: resolver, Tokens: &fakeTokens{}, Cache: &fakeCache{}, CodePath: filepath.Join(dir, "code.txt")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := d.server.server.WriteTimeout; got != 2*time.Minute+writeMargin {
		t.Fatalf("write timeout = %v", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/links?imdbId=tt1375666", nil)
	d.server.handler.ServeHTTP(httptest.NewRecorder(), req)
	left := time.Until(resolver.deadline)
	if resolver.deadline.IsZero() || left > 2*time.Minute || left < time.Minute {
		t.Fatalf("unexpected resolve deadline, %v left", left)
	}

	h := newHarness(t, "", false)
	if got := h.daemon.server.server.WriteTimeout; got != defaultResolveTimeout+writeMargin {
		t.Fatalf("default write timeout = %v", got)
	}
	if defaultResolveTimeout != resolution.DefaultTimeouts().Budget() {
		t.Fatalf("default resolve timeout %v does not cover the stock budget %v", defaultResolveTimeout, resolution.DefaultTimeouts().Budget())
	}
}
