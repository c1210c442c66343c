package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/permission"
)

// ErrorHandler writes the response for a failed guard check.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// DefaultErrorHandler answers with the AuthorizationError status, or 503 for
// storage failures and 500 for anything else.
func DefaultErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	status := StatusFor(err)
	http.Error(w, strings.ToLower(http.StatusText(status)), status)
}

// StatusFor maps an Engine error to an HTTP status code.
func StatusFor(err error) int {
	var authErr *authcore.AuthorizationError
	switch {
	case errors.As(err, &authErr):
		return authErr.Status
	case errors.Is(err, authcore.ErrSessionInvalid), errors.Is(err, authcore.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, authcore.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Require returns middleware that admits a request only when its bearer token
// satisfies req.
func Require(engine *authcore.Engine, req permission.Requirement) func(http.Handler) http.Handler {
	return RequireWithErrorHandler(engine, req, DefaultErrorHandler)
}

// RequireWithErrorHandler is Require with a custom failure response.
func RequireWithErrorHandler(engine *authcore.Engine, req permission.Requirement, onError ErrorHandler) func(http.Handler) http.Handler {
	if onError == nil {
		onError = DefaultErrorHandler
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := WithClient(r)
			token, _ := BearerToken(r.Header.Get("Authorization"))

			subject, err := engine.RequireSubject(ctx, token, req)
			if err != nil {
				onError(w, r, err)
				return
			}

			ctx = authcore.WithSubject(ctx, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

// WithClient returns r's context carrying the client IP and User-Agent.
func WithClient(r *http.Request) context.Context {
	ctx := authcore.WithClientIP(r.Context(), remoteIP(r.RemoteAddr))
	return authcore.WithUserAgent(ctx, r.UserAgent())
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
