package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
)

// LogoutFailureKind classifies logout failures.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureUnauthenticated
	LogoutFailureStorage
)

// LogoutResult reports what a logout actually revoked.
type LogoutResult struct {
	Failure   LogoutFailureKind
	Err       error
	UserID    string
	SessionID string
	// Revoked is the number of sessions revoked by this call.
	Revoked int
	// TokenID is the blacklisted jti, if any.
	TokenID string
}

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	RevokeByRefreshToken func(ctx context.Context, refreshToken string) (*session.Session, error)
	RevokeAllForUser     func(ctx context.Context, userID string) (int, error)
	Verify               func(ctx context.Context, accessToken string) (*jwt.Claims, error)
	Blacklist            func(ctx context.Context, jti string, expiresAt time.Time) error
}

// RunLogout revokes the session behind refreshToken and, when accessToken is
// still valid, blacklists its jti until Verify would reject it anyway. Stale or
// malformed tokens make the corresponding step a no-op.
func RunLogout(ctx context.Context, refreshToken, accessToken string, deps LogoutDeps) LogoutResult {
	var result LogoutResult

	if refreshToken != "" {
		sess, err := deps.RevokeByRefreshToken(ctx, refreshToken)
		if err != nil {
			return LogoutResult{Failure: LogoutFailureStorage, Err: err}
		}
		if sess != nil {
			result.UserID = sess.UserID
			result.SessionID = sess.ID
			result.Revoked = 1
		}
	}

	if accessToken == "" {
		return result
	}
	claims, err := deps.Verify(ctx, accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrInvalidToken) {
			return result
		}
		result.Failure = LogoutFailureStorage
		result.Err = err
		return result
	}
	if err := deps.Blacklist(ctx, claims.JTI, claims.AcceptedUntil); err != nil {
		result.Failure = LogoutFailureStorage
		result.Err = err
		return result
	}
	result.TokenID = claims.JTI
	if result.UserID == "" {
		result.UserID = claims.UserID
		result.SessionID = claims.SessionID
	}
	return result
}

// RunLogoutAll revokes every session of the access token's user and blacklists
// the presented jti. The access token must be valid.
func RunLogoutAll(ctx context.Context, accessToken string, deps LogoutDeps) LogoutResult {
	if accessToken == "" {
		return LogoutResult{Failure: LogoutFailureUnauthenticated}
	}
	claims, err := deps.Verify(ctx, accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrInvalidToken) {
			return LogoutResult{Failure: LogoutFailureUnauthenticated, Err: err}
		}
		return LogoutResult{Failure: LogoutFailureStorage, Err: err}
	}

	result := LogoutResult{UserID: claims.UserID, SessionID: claims.SessionID}
	n, err := deps.RevokeAllForUser(ctx, claims.UserID)
	if err != nil {
		result.Failure = LogoutFailureStorage
		result.Err = err
		return result
	}
	result.Revoked = n

	if err := deps.Blacklist(ctx, claims.JTI, claims.AcceptedUntil); err != nil {
		result.Failure = LogoutFailureStorage
		result.Err = err
		return result
	}
	result.TokenID = claims.JTI
	return result
}
