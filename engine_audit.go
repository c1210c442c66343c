package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authcore/permission"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventLogoutSession        = "logout_session"
	auditEventLogoutAll            = "logout_all"
	auditEventTokenRevoked         = "token_revoked"
	auditEventAuthorizeDenied      = "authorize_denied"
	auditEventDeviceRegistered     = "device_registered"
)

// AuditErrorCode is the stable error label written into audit events.
type AuditErrorCode string

const (
	auditErrUnauthenticated    AuditErrorCode = "unauthenticated"
	auditErrForbidden          AuditErrorCode = "forbidden"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrSessionInvalid     AuditErrorCode = "session_invalid"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

type auditRecord struct {
	eventType string
	success   bool
	userID    string
	sessionID string
	tokenID   string
	err       error
}

func (e *Engine) emitAudit(ctx context.Context, rec auditRecord, metadataBuilder func() map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: rec.eventType,
		UserID:    rec.userID,
		SessionID: rec.sessionID,
		TokenID:   rec.tokenID,
		IP:        ClientIPFromContext(ctx),
		Success:   rec.success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(rec.err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthenticated):
		return auditErrUnauthenticated
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrSessionInvalid):
		return auditErrSessionInvalid
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrStorageUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

func requirementMetadata(req permission.Requirement) func() map[string]string {
	return func() map[string]string {
		md := make(map[string]string, 2)
		if len(req.Roles) > 0 {
			roles := make([]string, len(req.Roles))
			for i, r := range req.Roles {
				roles[i] = r.String()
			}
			md["roles"] = strings.Join(roles, ",")
		}
		if len(req.Permissions) > 0 {
			perms := make([]string, len(req.Permissions))
			for i, p := range req.Permissions {
				perms[i] = string(p)
			}
			md["permissions"] = strings.Join(perms, ",")
		}
		return md
	}
}
