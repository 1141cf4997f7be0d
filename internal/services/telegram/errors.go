package telegram

import (
	"errors"
	"fmt"

	"github.com/ddanialb/Film/internal/services"
)

var (
	// ErrCodeTimeout is returned when no login code arrives in time.
	ErrCodeTimeout = errors.New("timed out waiting for telegram login code")
	// ErrLoginInProgress is returned to a second concurrent Login caller.
	ErrLoginInProgress = errors.New("telegram login already in progress")
	// ErrNotAuthorized means the session is connected but not logged in.
	ErrNotAuthorized = fmt.Errorf("%w: telegram session not authorized", services.ErrNeedsLogin)
	// ErrSessionRevoked means the server rejected the stored auth key. The
	// persisted session has been deleted.
	ErrSessionRevoked = fmt.Errorf("%w: telegram session revoked", services.ErrNeedsLogin)
)
