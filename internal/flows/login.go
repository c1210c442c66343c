package flows

import (
	"context"
	"strings"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureMissingInput
	LoginFailureInvalidCredentials
	LoginFailureVerifier
	LoginFailureSubject
	LoginFailureSession
	LoginFailureIssueAccess
)

// LoginRequest is the flow-local login input.
type LoginRequest struct {
	Identifier string
	Secret     string
	Remember   bool
	Client     string
	DeviceID   string
}

// LoginResult carries the new session and tokens or failure metadata.
type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	UserID  string
	Created *session.Created
	Access  *jwt.Issued
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	VerifyCredentials func(ctx context.Context, identifier, secret string) (string, bool, error)
	// IsAdmin is optional; when nil sessions are never flagged admin.
	IsAdmin       func(ctx context.Context, userID string) (bool, error)
	ClientInfo    func(ctx context.Context) session.ClientInfo
	CreateSession func(ctx context.Context, userID string, opts session.CreateOptions) (*session.Created, error)
	IssueAccess   func(userID, sessionID string) (*jwt.Issued, error)
}

// RunLogin verifies credentials, opens a session and mints its first access token.
func RunLogin(ctx context.Context, req LoginRequest, deps LoginDeps) LoginResult {
	if strings.TrimSpace(req.Identifier) == "" || req.Secret == "" {
		return LoginResult{Failure: LoginFailureMissingInput}
	}

	userID, ok, err := deps.VerifyCredentials(ctx, req.Identifier, req.Secret)
	req.Secret = ""
	if err != nil {
		return LoginResult{Failure: LoginFailureVerifier, Err: err}
	}
	if !ok || userID == "" {
		return LoginResult{Failure: LoginFailureInvalidCredentials}
	}

	var admin bool
	if deps.IsAdmin != nil {
		admin, err = deps.IsAdmin(ctx, userID)
		if err != nil {
			return LoginResult{Failure: LoginFailureSubject, Err: err, UserID: userID}
		}
	}

	client := deps.ClientInfo(ctx)
	created, err := deps.CreateSession(ctx, userID, session.CreateOptions{
		Remember:  req.Remember,
		Client:    req.Client,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		DeviceID:  req.DeviceID,
		IsAdmin:   admin,
	})
	if err != nil {
		return LoginResult{Failure: LoginFailureSession, Err: err, UserID: userID}
	}

	access, err := deps.IssueAccess(userID, created.Session.ID)
	if err != nil {
		return LoginResult{
			Failure: LoginFailureIssueAccess,
			Err:     err,
			UserID:  userID,
			Created: created,
		}
	}

	return LoginResult{
		UserID:  userID,
		Created: created,
		Access:  access,
	}
}
