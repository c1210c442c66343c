package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureInvalid
	RefreshFailureReuse
	RefreshFailureStorage
	RefreshFailureInternal
)

// RefreshResult carries either the rotated token pair or failure metadata.
type RefreshResult struct {
	Failure   RefreshFailureKind
	Err       error
	SessionID string
	Rotated   *session.Rotated
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	ClientInfo func(ctx context.Context) session.ClientInfo
	Rotate     func(ctx context.Context, refreshToken string, client session.ClientInfo) (*session.Rotated, error)
	// SessionIDOf extracts the session id from a token without validating it.
	SessionIDOf func(refreshToken string) string
}

// RunRefresh executes refresh rotation. The session store already collapses
// unknown, expired and revoked sessions; this flow only separates reuse and
// storage failures so the engine can alert on them.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	var sessionID string
	if deps.SessionIDOf != nil {
		sessionID = deps.SessionIDOf(refreshToken)
	}

	rotated, err := deps.Rotate(ctx, refreshToken, deps.ClientInfo(ctx))
	if err != nil {
		kind := RefreshFailureInternal
		switch {
		case errors.Is(err, session.ErrReuseDetected):
			kind = RefreshFailureReuse
		case errors.Is(err, session.ErrSessionInvalid):
			kind = RefreshFailureInvalid
		case errors.Is(err, session.ErrStorageUnavailable):
			kind = RefreshFailureStorage
		}
		return RefreshResult{Failure: kind, Err: err, SessionID: sessionID}
	}

	return RefreshResult{
		SessionID: rotated.Session.ID,
		Rotated:   rotated,
	}
}
