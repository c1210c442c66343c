package authcore

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/MrEthical07/authcore/blacklist"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
)

var (
	// ErrUnauthenticated means no valid access token was presented.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden means the subject failed a role or permission requirement.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials is returned by Login when the verifier rejects the secret.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEngineNotReady is returned by methods on a zero or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrSessionInvalid is returned for any refresh token that cannot be rotated.
	ErrSessionInvalid = session.ErrSessionInvalid
	// ErrRefreshReuse is joined with ErrSessionInvalid when a rotated-out refresh
	// token is presented again. The session has been revoked.
	ErrRefreshReuse = session.ErrReuseDetected
	// ErrInvalidToken is returned for malformed, forged, expired or revoked access tokens.
	ErrInvalidToken = jwt.ErrInvalidToken
	// ErrStorageUnavailable wraps persistence failures from either backend.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// AuthorizationError is the guard's failure value. Status is 401 or 403 and Err
// is ErrUnauthenticated or ErrForbidden.
type AuthorizationError struct {
	Status int
	Err    error
}

func (e *AuthorizationError) Error() string {
	if e == nil || e.Err == nil {
		return "authorization failed"
	}
	return e.Err.Error()
}

func (e *AuthorizationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func unauthenticated() *AuthorizationError {
	return &AuthorizationError{Status: http.StatusUnauthorized, Err: ErrUnauthenticated}
}

func forbidden() *AuthorizationError {
	return &AuthorizationError{Status: http.StatusForbidden, Err: ErrForbidden}
}

// storageError tags backend failures with ErrStorageUnavailable while keeping
// the package-level sentinel reachable through errors.Is.
func storageError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, session.ErrStorageUnavailable) || errors.Is(err, blacklist.ErrStorageUnavailable) {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return err
}

func isInvalidToken(err error) bool {
	return errors.Is(err, ErrInvalidToken)
}

func isAuthorizationError(err error) bool {
	var authErr *AuthorizationError
	return errors.As(err, &authErr)
}
