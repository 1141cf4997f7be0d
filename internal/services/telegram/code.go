package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ddanialb/Film/internal/fileutil"
	"github.com/ddanialb/Film/internal/logging"
	"github.com/ddanialb/Film/internal/poll"
	"github.com/ddanialb/Film/internal/services"
	"github.com/ddanialb/Film/internal/textutil"
)

// CodeSource supplies the login code Telegram sends to the account.
type CodeSource interface {
	Code(ctx context.Context) (string, error)
}

// PasswordSource supplies the two-factor password, if the account has one.
type PasswordSource interface {
	Password(ctx context.Context) (string, error)
}

// StaticPassword is a fixed two-factor password. Empty means none.
type StaticPassword string

// Password returns the fixed password.
func (p StaticPassword) Password(context.Context) (string, error) {
	return string(p), nil
}

// DefaultCodePolicy waits up to two minutes for the code file.
var DefaultCodePolicy = poll.Policy{Interval: 2 * time.Second, Attempts: 60, WaitFirst: true}

// CodeFile reads the login code from a side-channel file written by
// `film telegram code` or the HTTP API. The file is deleted once read.
type CodeFile struct {
	path   string
	policy poll.Policy
	logger *slog.Logger
}

// NewCodeFile watches path using DefaultCodePolicy.
func NewCodeFile(path string, logger *slog.Logger) *CodeFile {
	return &CodeFile{
		path:   path,
		policy: DefaultCodePolicy,
		logger: logging.NewComponentLogger(logger, "telegram-code"),
	}
}

// WithPolicy returns a copy that polls with p.
func (c *CodeFile) WithPolicy(p poll.Policy) *CodeFile {
	clone := *c
	clone.policy = p
	return &clone
}

// Code blocks until the code file appears, the attempts run out
// (ErrCodeTimeout), or ctx is cancelled (ctx.Err()).
func (c *CodeFile) Code(ctx context.Context) (string, error) {
	c.logger.Info("waiting for telegram login code",
		logging.String(logging.FieldEventType, "login_code_wait"),
		logging.String("path", c.path))

	var code string
	outcome, err := poll.Until(ctx, c.policy, func(context.Context, int) (bool, error) {
		data, err := fileutil.ReadFileIfExists(c.path)
		if err != nil {
			return false, fmt.Errorf("read code file: %w", err)
		}
		value := normalizeCode(string(data))
		if value == "" {
			return false, nil
		}
		if err := fileutil.RemoveIfExists(c.path); err != nil {
			c.logger.Warn("failed to remove code file", logging.Error(err))
		}
		code = value
		return true, nil
	})
	switch outcome {
	case poll.Found:
		c.logger.Info("login code received", logging.String(logging.FieldEventType, "login_code_received"))
		return code, nil
	case poll.Cancelled:
		return "", err
	default:
		if err != nil {
			return "", err
		}
		return "", ErrCodeTimeout
	}
}

// WriteCode stores code in the side-channel file read by CodeFile.
func WriteCode(path, code string) error {
	code = normalizeCode(code)
	if code == "" {
		return services.Wrap(services.ErrValidation, "telegram", "write code", "code must not be empty", nil)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return services.Wrap(services.ErrValidation, "telegram", "write code", "code must be numeric", nil)
		}
	}
	if strings.TrimSpace(path) == "" {
		return errors.New("code file path required")
	}
	return fileutil.WriteFileAtomic(path, []byte(code), 0o600)
}

func normalizeCode(raw string) string {
	raw = textutil.ASCIIDigits(strings.TrimSpace(raw))
	return strings.Join(strings.Fields(raw), "")
}
