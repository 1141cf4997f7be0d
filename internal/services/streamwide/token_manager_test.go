package streamwide

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
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ddanialb/Film/internal/services"
)

type memoryStore struct {
	mu      sync.Mutex
	loaded  StoredCredential
	saved   []string
	saveErr error
}

func (s *memoryStore) Load() (StoredCredential, error) { return s.loaded, nil }

func (s *memoryStore) Save(cred StoredCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, cred.RefreshToken)
	return nil
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

type refreshServer struct {
	calls   atomic.Int32
	access  string
	refresh string
	status  int
}

func (s *refreshServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/token/refresh/" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		s.calls.Add(1)
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["refresh"] == "" {
			t.Errorf("expected refresh token in body")
		}
		if s.status != 0 {
			w.WriteHeader(s.status)
			_, _ = w.Write([]byte(`{"detail":"token is invalid"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access": s.access, "refresh": s.refresh})
	}
}

func TestTokenManagerReturnsCachedTokenWithinLeadTime(t *testing.T) {
	srv := &refreshServer{}
	server := httptest.NewServer(srv.handler(t))
	defer server.Close()

	store := &memoryStore{}
	manager, err := NewTokenManager(server.URL, store, WithLeadTime(time.Minute))
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	access := signedToken(t, time.Now().Add(30*time.Minute))
	if err := manager.SetTokens(access, ""); err != nil {
		t.Fatalf("set tokens: %v", err)
	}

	for range 3 {
		token, err := manager.Token(context.Background())
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		if token != access {
			t.Fatalf("expected cached token")
		}
	}
	if srv.calls.Load() != 0 {
		t.Fatalf("expected no refresh calls, got %d", srv.calls.Load())
	}
}

func TestTokenManagerRefreshesInsideLeadTime(t *testing.T) {
	fresh := signedToken(t, time.Now().Add(time.Hour))
	srv := &refreshServer{access: fresh, refresh: "rotated-refresh"}
	server := httptest.NewServer(srv.handler(t))
	defer server.Close()

	store := &memoryStore{loaded: StoredCredential{RefreshToken: "refresh-1", Source: SourceFile}}
	manager, err := NewTokenManager(server.URL, store, WithLeadTime(time.Minute))
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	if err := manager.SetTokens(signedToken(t, time.Now().Add(30*time.Second)), ""); err != nil {
		t.Fatalf("set tokens: %v", err)
	}

	token, err := manager.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if token != fresh {
		t.Fatal("expected refreshed token")
	}
	if srv.calls.Load() != 1 {
		t.Fatalf("expected one refresh call, got %d", srv.calls.Load())
	}
	if got := store.saved[len(store.saved)-1]; got != "rotated-refresh" {
		t.Fatalf("expected rotated refresh token persisted, got %q", got)
	}
	status := manager.Status()
	if !status.HasAccess || !status.HasRefresh {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestTokenManagerConcurrentCallersRefreshOnce(t *testing.T) {
	srv := &refreshServer{access: signedToken(t, time.Now().Add(time.Hour))}
	server := httptest.NewServer(srv.handler(t))
	defer server.Close()

	manager, err := NewTokenManager(server.URL, &memoryStore{loaded: StoredCredential{RefreshToken: "r"}})
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := manager.Token(context.Background()); err != nil {
				t.Errorf("token: %v", err)
			}
		}()
	}
	wg.Wait()
	if srv.calls.Load() != 1 {
		t.Fatalf("expected a single refresh, got %d", srv.calls.Load())
	}
}

func TestTokenManagerWithoutRefreshTokenReturnsAuthError(t *testing.T) {
	manager, err := NewTokenManager("http://127.0.0.1:1", &memoryStore{})
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	_, err = manager.Token(context.Background())
	if !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if reason, _ := services.AuthReasonOf(err); reason != services.AuthNoCredential {
		t.Fatalf("unexpected reason %q", reason)
	}
}

func TestTokenManagerRefreshFailureIsAuthError(t *testing.T) {
	srv := &refreshServer{status: http.StatusUnauthorized}
	server := httptest.NewServer(srv.handler(t))
	defer server.Close()

	manager, err := NewTokenManager(server.URL, &memoryStore{loaded: StoredCredential{RefreshToken: "stale"}})
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	token, err := manager.Token(context.Background())
	if token != "" {
		t.Fatalf("expected no token, got %q", token)
	}
	if reason, ok := services.AuthReasonOf(err); !ok || reason != services.AuthRefreshFailed {
		t.Fatalf("expected refresh_failed auth error, got %v", err)
	}
}

func TestTokenManagerPersistFailureDoesNotFailRefresh(t *testing.T) {
	srv := &refreshServer{access: signedToken(t, time.Now().Add(time.Hour))}
	server := httptest.NewServer(srv.handler(t))
	defer server.Close()

	store := &memoryStore{loaded: StoredCredential{RefreshToken: "r"}, saveErr: errors.New("disk full")}
	manager, err := NewTokenManager(server.URL, store)
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	if _, err := manager.Token(context.Background()); err != nil {
		t.Fatalf("expected refresh to succeed despite persist failure: %v", err)
	}
}

func TestTokenManagerOpaqueTokenGetsAssumedLifetime(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	manager, err := NewTokenManager("http://example.invalid", &memoryStore{}, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	if err := manager.SetTokens("opaque-token", ""); err != nil {
		t.Fatalf("set tokens: %v", err)
	}
	if got := manager.Status().ExpiresAt; !got.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("expires at %v, want now+10m", got)
	}
}

func TestTokenManagerInvalidateForcesRefresh(t *testing.T) {
	srv := &refreshServer{access: signedToken(t, time.Now().Add(time.Hour))}
	server := httptest.NewServer(srv.handler(t))
	defer server.Close()

	manager, err := NewTokenManager(server.URL, &memoryStore{loaded: StoredCredential{RefreshToken: "r"}})
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	if err := manager.SetTokens(signedToken(t, time.Now().Add(time.Hour)), ""); err != nil {
		t.Fatalf("set tokens: %v", err)
	}
	manager.Invalidate()
	if _, err := manager.Token(context.Background()); err != nil {
		t.Fatalf("token: %v", err)
	}
	if srv.calls.Load() != 1 {
		t.Fatalf("expected refresh after invalidate, got %d calls", srv.calls.Load())
	}
}

func TestExchangeInitDataSendsWebAppHeaders(t *testing.T) {
	access := signedToken(t, time.Now().Add(time.Hour))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/telegram/auth/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Origin"); got != "https://web-app.streamwide.tv" {
			t.Errorf("unexpected origin %q", got)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if !strings.HasPrefix(body["initData"], "auth_date=") {
			t.Errorf("unexpected initData %q", body["initData"])
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access": access, "refresh": "new-refresh"})
	}))
	defer server.Close()

	store := &memoryStore{}
	manager, err := NewTokenManager(server.URL, store)
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	token, err := manager.ExchangeInitData(context.Background(), "auth_date=1&user=%7B%7D")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if token != access {
		t.Fatal("expected exchanged access token")
	}
	if len(store.saved) != 1 || store.saved[0] != "new-refresh" {
		t.Fatalf("expected refresh token persisted, got %v", store.saved)
	}
}

func TestSetTokensRequiresValue(t *testing.T) {
	manager, err := NewTokenManager("http://example.invalid", &memoryStore{})
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	if err := manager.SetTokens(" ", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFileCredentialStorePrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "streamwide_refresh.txt")
	if err := os.WriteFile(path, []byte("from-file\n"), 0o600); err != nil {
		t.Fatalf("write token file: %v", err)
	}

	store := NewFileCredentialStore(path, "")
	store.lookupEnv = func(string) (string, bool) { return "", false }
	cred, err := store.Load()
	if err != nil || cred.RefreshToken != "from-file" || cred.Source != SourceFile {
		t.Fatalf("file only: %+v err=%v", cred, err)
	}

	store = NewFileCredentialStore(path, "from-config")
	store.lookupEnv = func(string) (string, bool) { return "", false }
	if cred, _ := store.Load(); cred.RefreshToken != "from-config" || cred.Source != SourceConfig {
		t.Fatalf("config over file: %+v", cred)
	}

	store.lookupEnv = func(key string) (string, bool) {
		if key != EnvRefreshToken {
			t.Fatalf("unexpected env key %q", key)
		}
		return " from-env ", true
	}
	if cred, _ := store.Load(); cred.RefreshToken != "from-env" || cred.Source != SourceEnv {
		t.Fatalf("env first: %+v", cred)
	}
}

func TestFileCredentialStoreSaveWritesOwnerOnlyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "streamwide_refresh.txt")
	store := NewFileCredentialStore(path, "")
	store.lookupEnv = func(string) (string, bool) { return "", false }

	if err := store.Save(StoredCredential{RefreshToken: "saved"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %o", info.Mode().Perm())
	}
	cred, err := store.Load()
	if err != nil || cred.RefreshToken != "saved" {
		t.Fatalf("reload: %+v err=%v", cred, err)
	}
}

type countingDoer struct {
	calls atomic.Int32
}

func (d *countingDoer) Do(req *http.Request) (*http.Response, error) {
	d.calls.Add(1)
	return http.DefaultClient.Do(req)
}

func TestTokenManagerUsesInjectedHTTPClient(t *testing.T) {
	srv := &refreshServer{access: signedToken(t, time.Now().Add(time.Hour))}
	server := httptest.NewServer(srv.handler(t))
	defer server.Close()

	doer := &countingDoer{}
	manager, err := NewTokenManager(server.URL, &memoryStore{loaded: StoredCredential{RefreshToken: "r"}}, WithTokenHTTPClient(doer))
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	if _, err := manager.Token(context.Background()); err != nil {
		t.Fatalf("token: %v", err)
	}
	if doer.calls.Load() != 1 || srv.calls.Load() != 1 {
		t.Fatalf("expected the refresh to go through the injected client, doer=%d server=%d", doer.calls.Load(), srv.calls.Load())
	}
}
