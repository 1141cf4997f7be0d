package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTransient        = errors.New("transient failure")
	ErrAuth             = errors.New("authentication error")
	ErrNotFound         = errors.New("not found")
	ErrNeedsLogin       = errors.New("login required")
	ErrInvalidCacheData = errors.New("invalid cache data")
	ErrValidation       = errors.New("validation error")
	ErrConfiguration    = errors.New("configuration error")
	ErrTimeout          = errors.New("timeout")
)

// AuthReason classifies why a credential could not be produced or was refused.
type AuthReason string

const (
	AuthNoCredential  AuthReason = "no_credential"
	AuthRefreshFailed AuthReason = "refresh_failed"
	AuthRejected      AuthReason = "rejected"
)

// AuthError reports an expired, missing, or refused catalog credential.
type AuthError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrAuth, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", ErrAuth, e.Reason, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrAuth) match any AuthError.
func (e *AuthError) Is(target error) bool { return target == ErrAuth }

// NewAuthError builds an AuthError for reason wrapping err.
func NewAuthError(reason AuthReason, err error) error {
	return &AuthError{Reason: reason, Err: err}
}

// AuthReasonOf extracts the AuthReason carried by err, if any.
func AuthReasonOf(err error) (AuthReason, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Reason, true
	}
	return "", false
}

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether err is worth retrying with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
