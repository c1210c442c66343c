package session

import "time"

// Revocation reasons recorded by the SQL backend.
const (
	ReasonLogout        = "logout"
	ReasonLogoutAll     = "logout_all"
	ReasonReuseDetected = "reuse_detected"
	// ReasonIssueFailed marks a session whose access token could not be signed.
	ReasonIssueFailed = "issue_failed"
)

// Session is a server-side refresh session.
type Session struct {
	ID                  string
	UserID              string
	CreatedAt           time.Time
	LastUsedAt          time.Time
	AbsoluteExpiresAt   time.Time
	InactivityExpiresAt time.Time
	Remember            bool
	Client              string
	IPHash              string
	UAHash              string
	IsAdmin             bool
	DeviceID            string

	// RefreshHash is the hex keyed digest of the current refresh secret.
	RefreshHash string `json:"-"`

	RevokedAt     time.Time
	RevokedReason string
}

// Live reports whether s can still be rotated at now.
func (s *Session) Live(now time.Time) bool {
	if s == nil || !s.RevokedAt.IsZero() {
		return false
	}
	return !now.After(s.AbsoluteExpiresAt) && !now.After(s.InactivityExpiresAt)
}

// IdleRemaining returns the time left before the inactivity expiry, never negative.
func (s *Session) IdleRemaining(now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	d := s.InactivityExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Device groups sessions by client fingerprint. Sessions reference it weakly.
type Device struct {
	ID        string
	UserID    string
	Name      string
	Type      string
	OS        string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeviceInfo describes a device at registration.
type DeviceInfo struct {
	Name string
	Type string
	OS   string
}

// ClientInfo is the request metadata hashed into the session.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// CreateOptions parameterise CreateSession.
type CreateOptions struct {
	Remember  bool
	Client    string
	IPAddress string
	UserAgent string
	DeviceID  string
	IsAdmin   bool
}

// RefreshRecord describes the refresh token currently bound to a session.
type RefreshRecord struct {
	SessionID string
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Created is returned by CreateSession.
type Created struct {
	Session       *Session
	RefreshToken  string
	RefreshRecord RefreshRecord
}

// Rotated is returned by RotateRefreshToken.
type Rotated struct {
	AccessToken          string
	AccessTokenID        string
	AccessTokenExpiresAt time.Time
	RefreshToken         string
	RefreshRecord        RefreshRecord
	Session              *Session
}

// View is one row of ListSessions.
type View struct {
	Session *Session
	Device  *Device
	Current bool
}

// AccessToken is what an AccessIssuer returns.
type AccessToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// AccessIssuer mints access tokens bound to a session.
type AccessIssuer interface {
	IssueAccess(userID, sessionID string) (AccessToken, error)
}

// AccessIssuerFunc adapts a function to AccessIssuer.
type AccessIssuerFunc func(userID, sessionID string) (AccessToken, error)

// IssueAccess calls f.
func (f AccessIssuerFunc) IssueAccess(userID, sessionID string) (AccessToken, error) {
	return f(userID, sessionID)
}
