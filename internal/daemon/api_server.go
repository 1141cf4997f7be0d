package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ddanialb/Film/internal/logging"
	"github.com/ddanialb/Film/internal/resolution"
	"github.com/ddanialb/Film/internal/services"
	"github.com/ddanialb/Film/internal/services/telegram"
)

const (
	requestIDHeader = "X-Request-ID"
	maxBodyBytes    = 64 << 10
	loginTimeout    = 5 * time.Minute

	// defaultResolveTimeout matches the worst case of the stock per-step
	// resolution timeouts.
	defaultResolveTimeout = 270 * time.Second
	// writeMargin leaves room to encode the result after the resolve deadline.
	writeMargin = 10 * time.Second
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	deps   Dependencies
	daemon *Daemon

	resolveTimeout time.Duration

	handler http.Handler
	server  *http.Server

	mu       sync.Mutex
	listener net.Listener
	baseCtx  context.Context

	loginBusy atomic.Bool
	loginWG   sync.WaitGroup
	loginErr  atomic.Pointer[string]
}

func newAPIServer(opts Options, deps Dependencies, d *Daemon) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(opts.Bind),
		logger: logging.NewComponentLogger(deps.Logger, "api-server"),
		deps:   deps,
		daemon: d,

		resolveTimeout: opts.ResolveTimeout,
	}
	if srv.resolveTimeout <= 0 {
		srv.resolveTimeout = defaultResolveTimeout
	}

	token := strings.TrimSpace(opts.Token)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/links", srv.authMiddleware(token, srv.handleLinks))
	mux.HandleFunc("/api/season", srv.authMiddleware(token, srv.handleSeason))
	mux.HandleFunc("/api/telegram/login", srv.authMiddleware(token, srv.handleTelegramLogin))
	mux.HandleFunc("/api/telegram/code", srv.authMiddleware(token, srv.handleTelegramCode))
	mux.HandleFunc("/api/token", srv.authMiddleware(token, srv.handleToken))
	mux.HandleFunc("/api/token/refresh", srv.authMiddleware(token, srv.handleTokenRefresh))
	mux.HandleFunc("/api/cache", srv.authMiddleware(token, srv.handleCache))

	srv.handler = srv.withRequestID(mux)
	srv.server = &http.Server{
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      srv.resolveTimeout + writeMargin,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.baseCtx = ctx
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)

	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	s.mu.Unlock()
	s.loginWG.Wait()
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// background is the parent context for work that outlives a request.
func (s *apiServer) background() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

func (s *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status())
}

// linksResponse is a Result plus the flags clients branch on.
type linksResponse struct {
	resolution.Result
	Success   bool `json:"success"`
	NeedLogin bool `json:"needLogin,omitempty"`
}

func (s *apiServer) handleLinks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := r.URL.Query()
	raw := query.Get("imdbId")
	if strings.TrimSpace(raw) == "" {
		s.writeError(w, http.StatusBadRequest, "imdbId is required")
		return
	}
	if _, err := resolution.NormalizeContentID(raw); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.resolveTimeout)
	defer cancel()
	res := s.deps.Resolver.Resolve(ctx, raw, query.Get("title"))
	s.writeJSON(w, resultStatus(res), linksResponse{
		Result:    res,
		Success:   res.Success(),
		NeedLogin: res.NeedsLogin(),
	})
}

func (s *apiServer) handleSeason(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	seasonID := strings.TrimSpace(r.URL.Query().Get("seasonId"))
	if seasonID == "" {
		s.writeError(w, http.StatusBadRequest, "seasonId is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.resolveTimeout)
	defer cancel()
	res := s.deps.Resolver.Season(ctx, seasonID)
	s.writeJSON(w, resultStatus(res), linksResponse{Result: res, Success: res.Success()})
}

// resultStatus maps a result kind to an HTTP status. A login requirement is
// a normal answer the client acts on, so it stays 200.
func resultStatus(res resolution.Result) int {
	switch res.Kind {
	case resolution.KindMovie, resolution.KindSeries, resolution.KindNeedsLogin:
		return http.StatusOK
	case resolution.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

type loginRequest struct {
	Phone string `json:"phone"`
}

func (s *apiServer) handleTelegramLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Telegram == nil {
		s.writeError(w, http.StatusServiceUnavailable, "telegram is not configured")
		return
	}
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.loginBusy.CompareAndSwap(false, true) {
		s.writeError(w, http.StatusConflict, telegram.ErrLoginInProgress.Error())
		return
	}

	requestID, _ := services.RequestIDFromContext(r.Context())
	s.loginErr.Store(nil)
	s.loginWG.Add(1)
	go s.runLogin(requestID, strings.TrimSpace(req.Phone))

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "login started",
		"message": "submit the login code with POST /api/telegram/code",
	})
}

func (s *apiServer) runLogin(requestID, phone string) {
	defer s.loginWG.Done()
	defer s.loginBusy.Store(false)

	ctx, cancel := context.WithTimeout(services.WithRequestID(s.background(), requestID), loginTimeout)
	defer cancel()
	logger := logging.WithContext(ctx, s.logger)

	if err := s.deps.Telegram.Login(ctx, phone, nil, nil); err != nil {
		msg := err.Error()
		s.loginErr.Store(&msg)
		logging.WarnWithContext(logger, "telegram login failed", "telegram_login_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "start the login again and submit the code promptly"))
		return
	}
	logger.Info("telegram login completed", logging.String(logging.FieldEventType, "telegram_login_completed"))
}

func (s *apiServer) telegramStatus() TelegramStatus {
	if s.deps.Telegram == nil {
		return TelegramStatus{}
	}
	status := TelegramStatus{
		Configured:      true,
		State:           string(s.deps.Telegram.State()),
		LoginInProgress: s.loginBusy.Load(),
	}
	if msg := s.loginErr.Load(); msg != nil {
		status.LastLoginError = *msg
	}
	return status
}

type codeRequest struct {
	Code string `json:"code"`
}

func (s *apiServer) handleTelegramCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.CodePath == "" {
		s.writeError(w, http.StatusServiceUnavailable, "telegram is not configured")
		return
	}
	var req codeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := telegram.WriteCode(s.deps.CodePath, req.Code); err != nil {
		s.fail(w, r, err)
		return
	}
	logging.WithContext(r.Context(), s.logger).Info("login code received",
		logging.String(logging.FieldEventType, "telegram_code_received"))
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "code accepted"})
}

type tokenRequest struct {
	Access   string `json:"access"`
	Refresh  string `json:"refresh"`
	InitData string `json:"initData"`
}

func (s *apiServer) handleToken(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.deps.Tokens.Status())
		return
	case http.MethodPost:
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req tokenRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Access = strings.TrimSpace(req.Access)
	req.Refresh = strings.TrimSpace(req.Refresh)
	req.InitData = strings.TrimSpace(req.InitData)
	if req.Access == "" && req.Refresh == "" && req.InitData == "" {
		s.writeError(w, http.StatusBadRequest, "access, refresh, or initData is required")
		return
	}

	if req.Access != "" || req.Refresh != "" {
		if err := s.deps.Tokens.SetTokens(req.Access, req.Refresh); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if req.InitData != "" {
		if _, err := s.deps.Tokens.ExchangeInitData(r.Context(), req.InitData); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, s.deps.Tokens.Status())
}

func (s *apiServer) handleTokenRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, err := s.deps.Tokens.Refresh(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.deps.Tokens.Status())
}

func (s *apiServer) handleCache(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, map[string]int{"entries": s.deps.Cache.Count()})
	case http.MethodDelete:
		removed, err := s.deps.Cache.Invalidate(r.URL.Query().Get("imdbId"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// errorStatus maps the error taxonomy onto HTTP statuses.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, telegram.ErrLoginInProgress):
		return http.StatusConflict
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, services.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, services.ErrAuth), errors.Is(err, services.ErrTransient):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads an optional JSON body into dst. An empty body leaves dst
// untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

// fail writes err with its mapped status. Server-side failures are logged.
func (s *apiServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err),
		)
	}
	s.writeError(w, status, err.Error())
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
