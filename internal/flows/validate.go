package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/permission"
)

// AuthenticateFailureKind classifies access-token authentication failures.
type AuthenticateFailureKind int

const (
	AuthenticateFailureNone AuthenticateFailureKind = iota
	AuthenticateFailureMissingToken
	AuthenticateFailureInvalidToken
	AuthenticateFailureRevocationLookup
	AuthenticateFailureUnknownSubject
	AuthenticateFailureSubjectLookup
)

// AuthenticateResult returns the verified claims and resolved subject, or a
// classified failure.
type AuthenticateResult struct {
	Failure AuthenticateFailureKind
	Err     error
	Claims  *jwt.Claims
	Subject *permission.Subject
}

// AuthenticateDeps captures token verification and subject resolution.
type AuthenticateDeps struct {
	Verify func(ctx context.Context, accessToken string) (*jwt.Claims, error)
	// ResolveSubject returns (nil, nil) for a user that no longer exists.
	ResolveSubject func(ctx context.Context, claims *jwt.Claims) (*permission.Subject, error)
}

// RunAuthenticate verifies accessToken and resolves its subject. A revocation
// lookup failure is reported separately and never treated as an invalid token.
func RunAuthenticate(ctx context.Context, accessToken string, deps AuthenticateDeps) AuthenticateResult {
	if accessToken == "" {
		return AuthenticateResult{Failure: AuthenticateFailureMissingToken}
	}

	claims, err := deps.Verify(ctx, accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrInvalidToken) {
			return AuthenticateResult{Failure: AuthenticateFailureInvalidToken, Err: err}
		}
		return AuthenticateResult{Failure: AuthenticateFailureRevocationLookup, Err: err}
	}

	subject, err := deps.ResolveSubject(ctx, claims)
	if err != nil {
		return AuthenticateResult{Failure: AuthenticateFailureSubjectLookup, Err: err, Claims: claims}
	}
	if subject == nil {
		return AuthenticateResult{Failure: AuthenticateFailureUnknownSubject, Claims: claims}
	}

	return AuthenticateResult{Claims: claims, Subject: subject}
}
