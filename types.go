package authcore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/session"
)

// CredentialVerifier checks a login secret. It returns the user id and ok=true on
// success. err is reserved for backend failures, not wrong passwords.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, identifier, secret string) (userID string, ok bool, err error)
}

// CredentialVerifierFunc adapts a function to CredentialVerifier.
type CredentialVerifierFunc func(ctx context.Context, identifier, secret string) (string, bool, error)

func (f CredentialVerifierFunc) VerifyCredentials(ctx context.Context, identifier, secret string) (string, bool, error) {
	return f(ctx, identifier, secret)
}

// RawSubject is a user's authorization data as stored by the application, before
// normalization.
type RawSubject struct {
	ID          string
	Role        string
	Permissions []string
}

// SubjectProvider loads authorization data for a user. It returns (nil, nil) for
// users that no longer exist.
type SubjectProvider interface {
	LoadSubject(ctx context.Context, userID string) (*RawSubject, error)
}

// SubjectProviderFunc adapts a function to SubjectProvider.
type SubjectProviderFunc func(ctx context.Context, userID string) (*RawSubject, error)

func (f SubjectProviderFunc) LoadSubject(ctx context.Context, userID string) (*RawSubject, error) {
	return f(ctx, userID)
}

// Subject is an authenticated principal: the normalized authorization data plus
// the access token it was resolved from.
type Subject struct {
	permission.Subject

	SessionID string
	TokenID   string
	ExpiresAt time.Time
}

// LoginRequest is the input to Engine.Login.
type LoginRequest struct {
	Identifier string
	Secret     string
	Remember   bool
	Client     string
	DeviceID   string
}

// TokenPair is returned by Login and Refresh.
type TokenPair struct {
	AccessToken          string
	AccessTokenID        string
	AccessTokenExpiresAt time.Time
	RefreshToken         string
	// RefreshExpiresAt is the session's current inactivity expiry, which is the
	// latest moment the refresh token can be used.
	RefreshExpiresAt time.Time
	Session          *session.Session
}

// ReuseEvent describes a detected refresh-token reuse. The session has already
// been revoked when the handler runs.
type ReuseEvent struct {
	SessionID string
	IP        string
	UserAgent string
	At        time.Time
}

// ReuseHandler is notified of refresh-token reuse.
type ReuseHandler func(ctx context.Context, event ReuseEvent)

// SweepResult reports what a sweep removed.
type SweepResult struct {
	Sessions  int64
	Blacklist int64
}
