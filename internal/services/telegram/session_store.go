package telegram

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gotd/td/session"

	"github.com/ddanialb/Film/internal/fileutil"
	"github.com/ddanialb/Film/internal/logging"
)

// SessionStore is the persisted session material Session can discard.
type SessionStore interface {
	Delete() error
}

// FileSessionStore implements gotd's session.Storage. A session supplied via
// TELEGRAM_SESSION (base64 or raw JSON) takes precedence over the file; new
// sessions are always written to the file.
type FileSessionStore struct {
	path   string
	env    string
	logger *slog.Logger
	mu     sync.Mutex
}

var _ session.Storage = (*FileSessionStore)(nil)

// NewFileSessionStore builds a store backed by path. envValue is the
// configured session string, if any.
func NewFileSessionStore(path, envValue string, logger *slog.Logger) *FileSessionStore {
	return &FileSessionStore{
		path:   path,
		env:    strings.TrimSpace(envValue),
		logger: logging.NewComponentLogger(logger, "telegram-session"),
	}
}

// LoadSession returns the stored session or session.ErrNotFound.
func (s *FileSessionStore) LoadSession(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.env != "" {
		data, err := decodeSessionString(s.env)
		if err != nil {
			return nil, fmt.Errorf("decode TELEGRAM_SESSION: %w", err)
		}
		return data, nil
	}
	data, err := fileutil.ReadFileIfExists(s.path)
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if len(data) == 0 {
		return nil, session.ErrNotFound
	}
	return data, nil
}

// StoreSession writes the session file with owner-only permissions.
func (s *FileSessionStore) StoreSession(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fileutil.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// Delete removes the session file. A session supplied through the
// environment cannot be removed and is only reported.
func (s *FileSessionStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.env != "" {
		logging.WarnWithContext(s.logger, "environment session was revoked", "session_env_revoked",
			logging.String(logging.FieldErrorHint, "unset TELEGRAM_SESSION or replace it with a fresh session"),
			logging.String(logging.FieldImpact, "bot fallback stays unavailable until the session is replaced"))
		s.env = ""
	}
	return fileutil.RemoveIfExists(s.path)
}

// Exists reports whether any session material is available.
func (s *FileSessionStore) Exists() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.env != "" {
		return true
	}
	data, err := fileutil.ReadFileIfExists(s.path)
	return err == nil && len(data) > 0
}

func decodeSessionString(value string) ([]byte, error) {
	if strings.HasPrefix(value, "{") {
		return []byte(value), nil
	}
	if data, err := base64.StdEncoding.DecodeString(value); err == nil {
		return data, nil
	}
	return base64.RawURLEncoding.DecodeString(value)
}
