package streamwide

import (
	"fmt"
	"os"
	"strings"

	"github.com/ddanialb/Film/internal/fileutil"
)

// EnvRefreshToken names the environment variable consulted first for the
// refresh token.
const EnvRefreshToken = "STREAMWIDE_REFRESH_TOKEN"

// Credential sources reported by StoredCredential.Source.
const (
	SourceEnv    = "env"
	SourceConfig = "config"
	SourceFile   = "file"
)

// StoredCredential is the durable part of the catalog credential.
type StoredCredential struct {
	RefreshToken string
	Source       string
}

// CredentialStore loads and saves the refresh token.
type CredentialStore interface {
	Load() (StoredCredential, error)
	Save(StoredCredential) error
}

// FileCredentialStore resolves the refresh token from, in order: the
// STREAMWIDE_REFRESH_TOKEN environment variable, the configured value, and
// the token file. Save only ever writes the token file.
type FileCredentialStore struct {
	path       string
	configured string
	lookupEnv  func(string) (string, bool)
}

// NewFileCredentialStore builds a store backed by path. configured is the
// refresh token from the config file, if any.
func NewFileCredentialStore(path, configured string) *FileCredentialStore {
	return &FileCredentialStore{
		path:       path,
		configured: strings.TrimSpace(configured),
		lookupEnv:  os.LookupEnv,
	}
}

// Path returns the token file location.
func (s *FileCredentialStore) Path() string { return s.path }

// Load returns the highest-precedence refresh token. A missing file is not an
// error.
func (s *FileCredentialStore) Load() (StoredCredential, error) {
	if value, ok := s.lookupEnv(EnvRefreshToken); ok {
		if value = strings.TrimSpace(value); value != "" {
			return StoredCredential{RefreshToken: value, Source: SourceEnv}, nil
		}
	}
	if s.configured != "" {
		return StoredCredential{RefreshToken: s.configured, Source: SourceConfig}, nil
	}
	if s.path == "" {
		return StoredCredential{}, nil
	}
	data, err := fileutil.ReadFileIfExists(s.path)
	if err != nil {
		return StoredCredential{}, fmt.Errorf("read refresh token: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return StoredCredential{}, nil
	}
	return StoredCredential{RefreshToken: token, Source: SourceFile}, nil
}

// Save writes the refresh token file with owner-only permissions.
func (s *FileCredentialStore) Save(cred StoredCredential) error {
	if s.path == "" {
		return nil
	}
	token := strings.TrimSpace(cred.RefreshToken)
	if token == "" {
		return fileutil.RemoveIfExists(s.path)
	}
	if err := fileutil.WriteFileAtomic(s.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write refresh token: %w", err)
	}
	return nil
}
