package authcore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/blacklist"
	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/session"
	"go.uber.org/zap"
)

// Engine is the session and token lifecycle façade.
//
// Engine instances are built by [Builder.Build] and safe for concurrent use.
type Engine struct {
	config       Config
	logger       *zap.Logger
	now          func() time.Time
	registry     *permission.Registry
	roleManager  *permission.RoleManager
	sessions     *session.Store
	revocations  blacklist.Registry
	jwtManager   *jwt.Manager
	credentials  CredentialVerifier
	subjects     SubjectProvider
	reuseHandler ReuseHandler
	audit        *audit.Dispatcher
	metrics      *Metrics
	flows        flows.Service
}

// Close drains the audit dispatcher. It does not close injected clients.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.sessions != nil && e.flows.Initialized()
}

func (e *Engine) buildFlows() flows.Service {
	clientInfo := func(ctx context.Context) session.ClientInfo {
		return session.ClientInfo{
			IPAddress: ClientIPFromContext(ctx),
			UserAgent: UserAgentFromContext(ctx),
		}
	}

	login := flows.LoginDeps{
		ClientInfo:    clientInfo,
		CreateSession: e.sessions.CreateSession,
		IssueAccess:   e.jwtManager.Issue,
	}
	if e.credentials != nil {
		login.VerifyCredentials = e.credentials.VerifyCredentials
	}
	if e.subjects != nil {
		login.IsAdmin = e.isAdmin
	}

	return flows.New(flows.Deps{
		Login: login,
		Refresh: flows.RefreshDeps{
			ClientInfo:  clientInfo,
			Rotate:      e.sessions.RotateRefreshToken,
			SessionIDOf: sessionIDOf,
		},
		Authenticate: flows.AuthenticateDeps{
			Verify:         e.jwtManager.Verify,
			ResolveSubject: e.resolveSubject,
		},
		Logout: flows.LogoutDeps{
			RevokeByRefreshToken: e.sessions.RevokeSessionByRefreshToken,
			RevokeAllForUser:     e.sessions.RevokeAllSessionsForUser,
			Verify:               e.jwtManager.Verify,
			Blacklist:            e.revocations.Add,
		},
	})
}

func sessionIDOf(refreshToken string) string {
	tok, err := refresh.Decode(refreshToken)
	if err != nil {
		return ""
	}
	return tok.SessionID.String()
}

// Login verifies credentials through the configured CredentialVerifier and opens
// a new session. IP and user agent are taken from ctx (see WithClientIP).
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*TokenPair, error) {
	if !e.ready() || e.credentials == nil {
		return nil, ErrEngineNotReady
	}

	res := e.flows.Login(ctx, flows.LoginRequest{
		Identifier: req.Identifier,
		Secret:     req.Secret,
		Remember:   req.Remember,
		Client:     req.Client,
		DeviceID:   req.DeviceID,
	})

	switch res.Failure {
	case flows.LoginFailureNone:
		e.metricInc(MetricLoginSuccess)
		e.metricInc(MetricSessionCreated)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventLoginSuccess,
			success:   true,
			userID:    res.UserID,
			sessionID: res.Created.Session.ID,
			tokenID:   res.Access.JTI,
		}, func() map[string]string {
			return map[string]string{"remember": boolString(req.Remember)}
		})
		return &TokenPair{
			AccessToken:          res.Access.Token,
			AccessTokenID:        res.Access.JTI,
			AccessTokenExpiresAt: res.Access.ExpiresAt,
			RefreshToken:         res.Created.RefreshToken,
			RefreshExpiresAt:     res.Created.Session.InactivityExpiresAt,
			Session:              res.Created.Session,
		}, nil

	case flows.LoginFailureMissingInput, flows.LoginFailureInvalidCredentials:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditRecord{eventType: auditEventLoginFailure, err: ErrInvalidCredentials}, func() map[string]string {
			return map[string]string{"identifier": req.Identifier}
		})
		return nil, ErrInvalidCredentials

	default:
		e.metricInc(MetricLoginFailure)
		err := storageError(res.Err)
		if errors.Is(err, ErrStorageUnavailable) {
			e.metricInc(MetricStorageError)
		}
		if res.Failure == flows.LoginFailureIssueAccess && res.Created != nil {
			// The session is unusable without its first access token.
			if revokeErr := e.sessions.RevokeSession(ctx, res.Created.Session.ID, session.ReasonIssueFailed); revokeErr != nil {
				e.logger.Warn("revoke orphaned session failed",
					zap.String("session_id", res.Created.Session.ID),
					zap.Error(revokeErr))
			}
		}
		e.logger.Error("login failed", zap.Int("failure", int(res.Failure)), zap.Error(err))
		e.emitAudit(ctx, auditRecord{eventType: auditEventLoginFailure, userID: res.UserID, err: err}, nil)
		return nil, err
	}
}

// Refresh rotates refreshToken. On any rejection the error is ErrSessionInvalid;
// a reused token additionally matches ErrRefreshReuse and revokes the session.
// Storage failures are returned unchanged. A signing failure after rotation
// revokes the session, so the caller has to log in again.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.Refresh(ctx, refreshToken)
	switch res.Failure {
	case flows.RefreshFailureNone:
		rotated := res.Rotated
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventRefreshSuccess,
			success:   true,
			userID:    rotated.Session.UserID,
			sessionID: rotated.Session.ID,
			tokenID:   rotated.AccessTokenID,
		}, nil)
		return &TokenPair{
			AccessToken:          rotated.AccessToken,
			AccessTokenID:        rotated.AccessTokenID,
			AccessTokenExpiresAt: rotated.AccessTokenExpiresAt,
			RefreshToken:         rotated.RefreshToken,
			RefreshExpiresAt:     rotated.Session.InactivityExpiresAt,
			Session:              rotated.Session,
		}, nil

	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricRefreshReuseDetected)
		e.logger.Warn("refresh token reuse detected, session revoked",
			zap.String("session_id", res.SessionID),
			zap.String("ip", ClientIPFromContext(ctx)))
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventRefreshReuseDetected,
			sessionID: res.SessionID,
			err:       res.Err,
		}, nil)
		if e.reuseHandler != nil {
			e.reuseHandler(ctx, ReuseEvent{
				SessionID: res.SessionID,
				IP:        ClientIPFromContext(ctx),
				UserAgent: UserAgentFromContext(ctx),
				At:        e.now(),
			})
		}
		return nil, res.Err

	case flows.RefreshFailureInvalid:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditRecord{eventType: auditEventRefreshInvalid, sessionID: res.SessionID, err: res.Err}, nil)
		return nil, res.Err

	default:
		e.metricInc(MetricRefreshFailure)
		err := storageError(res.Err)
		if errors.Is(err, ErrStorageUnavailable) {
			e.metricInc(MetricStorageError)
		}
		e.logger.Error("refresh failed", zap.String("session_id", res.SessionID), zap.Error(err))
		e.emitAudit(ctx, auditRecord{eventType: auditEventRefreshInvalid, sessionID: res.SessionID, err: err}, nil)
		return nil, err
	}
}

// Logout revokes the session behind refreshToken and blacklists accessToken's jti
// until its natural expiry. Either token may be empty; stale or malformed tokens
// are ignored so logout is idempotent.
func (e *Engine) Logout(ctx context.Context, refreshToken, accessToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.Logout(ctx, refreshToken, accessToken)
	if res.Failure != flows.LogoutFailureNone {
		err := storageError(res.Err)
		e.metricInc(MetricStorageError)
		e.logger.Error("logout failed", zap.String("session_id", res.SessionID), zap.Error(err))
		return err
	}

	if res.Revoked > 0 {
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventLogoutSession,
			success:   true,
			userID:    res.UserID,
			sessionID: res.SessionID,
		}, nil)
	}
	if res.TokenID != "" {
		e.metricInc(MetricTokenRevoked)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventTokenRevoked,
			success:   true,
			userID:    res.UserID,
			sessionID: res.SessionID,
			tokenID:   res.TokenID,
		}, nil)
	}
	return nil
}

// LogoutAll revokes every session of the access token's user and blacklists the
// presented jti. It returns how many live sessions were revoked. Other access
// tokens of the user stay valid until they expire.
func (e *Engine) LogoutAll(ctx context.Context, accessToken string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}

	res := e.flows.LogoutAll(ctx, accessToken)
	switch res.Failure {
	case flows.LogoutFailureNone:
	case flows.LogoutFailureUnauthenticated:
		return 0, unauthenticated()
	default:
		err := storageError(res.Err)
		e.metricInc(MetricStorageError)
		e.logger.Error("logout all failed", zap.String("user_id", res.UserID), zap.Error(err))
		e.emitAudit(ctx, auditRecord{eventType: auditEventLogoutAll, userID: res.UserID, err: err}, nil)
		return res.Revoked, err
	}

	e.metricInc(MetricLogoutAll)
	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventLogoutAll,
		success:   true,
		userID:    res.UserID,
		sessionID: res.SessionID,
		tokenID:   res.TokenID,
	}, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(res.Revoked)}
	})
	return res.Revoked, nil
}

// RevokeAccessToken blacklists a single jti. expiresAt is the token's exp; the
// entry is kept for the verification leeway beyond it.
func (e *Engine) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.revocations.Add(ctx, jti, expiresAt.Add(e.jwtManager.Leeway())); err != nil {
		return storageError(err)
	}
	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, auditRecord{eventType: auditEventTokenRevoked, success: true, tokenID: jti}, nil)
	return nil
}

// ListSessions returns the live sessions of userID, newest activity first, with
// currentSessionID flagged.
func (e *Engine) ListSessions(ctx context.Context, userID, currentSessionID string) ([]session.View, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	views, err := e.sessions.ListSessions(ctx, userID, currentSessionID)
	if err != nil {
		return nil, storageError(err)
	}
	return views, nil
}

// RegisterDevice creates or updates a device for userID. Pass the returned id as
// LoginRequest.DeviceID to link sessions to it.
func (e *Engine) RegisterDevice(ctx context.Context, userID, deviceID string, info session.DeviceInfo) (*session.Device, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	dev, err := e.sessions.RegisterDevice(ctx, userID, deviceID, info)
	if err != nil {
		return nil, storageError(err)
	}
	e.emitAudit(ctx, auditRecord{eventType: auditEventDeviceRegistered, success: true, userID: userID}, func() map[string]string {
		return map[string]string{"device_id": dev.ID}
	})
	return dev, nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Now returns the engine clock reading.
func (e *Engine) Now() time.Time {
	return e.now()
}
