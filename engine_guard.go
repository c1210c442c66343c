package authcore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/permission"
	"go.uber.org/zap"
)

// Authenticate verifies an access token, including its revocation status, and
// returns its claims. It does not load the subject.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*jwt.Claims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if accessToken == "" {
		return nil, unauthenticated()
	}
	claims, err := e.jwtManager.Verify(ctx, accessToken)
	if err != nil {
		return nil, e.verifyError(err)
	}
	return claims, nil
}

// RequireSubject authenticates accessToken and evaluates req against the
// resolved subject.
//
// A missing or invalid token, or a subject that no longer exists, yields an
// *AuthorizationError with status 401. A failed role or permission check yields
// status 403. Storage and subject lookup failures are returned unchanged so the
// caller can answer 5xx instead of logging the user out.
func (e *Engine) RequireSubject(ctx context.Context, accessToken string, req permission.Requirement) (*Subject, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() { e.metrics.Observe(MetricGuardLatency, time.Since(start)) }()
	}

	subject, err := e.authenticate(ctx, accessToken)
	if err != nil {
		if isAuthorizationError(err) {
			e.metricInc(MetricAuthorizeUnauthenticated)
			e.emitAudit(ctx, auditRecord{eventType: auditEventAuthorizeDenied, err: err}, requirementMetadata(req))
		}
		return nil, err
	}

	result := permission.Evaluate(req, &subject.Subject)
	switch result.Decision {
	case permission.DecisionAuthorized:
		e.metricInc(MetricAuthorizeSuccess)
		return subject, nil
	case permission.DecisionForbidden:
		e.metricInc(MetricAuthorizeForbidden)
		err := forbidden()
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventAuthorizeDenied,
			userID:    subject.ID,
			sessionID: subject.SessionID,
			tokenID:   subject.TokenID,
			err:       err,
		}, requirementMetadata(req))
		return nil, err
	default:
		e.metricInc(MetricAuthorizeUnauthenticated)
		return nil, unauthenticated()
	}
}

// TryGetSubject resolves the subject behind accessToken without enforcing any
// requirement. An absent or invalid token returns (nil, nil); only storage and
// subject lookup failures return an error.
func (e *Engine) TryGetSubject(ctx context.Context, accessToken string) (*Subject, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	subject, err := e.authenticate(ctx, accessToken)
	if err != nil {
		if isAuthorizationError(err) {
			return nil, nil
		}
		return nil, err
	}
	return subject, nil
}

func (e *Engine) authenticate(ctx context.Context, accessToken string) (*Subject, error) {
	res := e.flows.Authenticate(ctx, accessToken)
	switch res.Failure {
	case flows.AuthenticateFailureNone:
		return &Subject{
			Subject:   *res.Subject,
			SessionID: res.Claims.SessionID,
			TokenID:   res.Claims.JTI,
			ExpiresAt: res.Claims.ExpiresAt,
		}, nil
	case flows.AuthenticateFailureMissingToken,
		flows.AuthenticateFailureInvalidToken,
		flows.AuthenticateFailureUnknownSubject:
		return nil, unauthenticated()
	case flows.AuthenticateFailureRevocationLookup:
		return nil, e.verifyError(res.Err)
	default:
		e.logger.Error("subject lookup failed", zap.Error(res.Err))
		return nil, res.Err
	}
}

func (e *Engine) verifyError(err error) error {
	if isInvalidToken(err) {
		return unauthenticated()
	}
	err = storageError(err)
	e.metricInc(MetricStorageError)
	e.logger.Error("revocation lookup failed", zap.Error(err))
	return err
}
