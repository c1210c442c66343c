package authcore

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type subjectContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. Login and Refresh hash it
// into the session; audit events record it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// ClientIPFromContext returns the IP set by WithClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

// UserAgentFromContext returns the user agent set by WithUserAgent, or "".
func UserAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

// WithSubject stores an authenticated subject on ctx. The HTTP adapters call it
// after a successful guard check.
func WithSubject(ctx context.Context, subject *Subject) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, subject)
}

// SubjectFromContext returns the subject stored by WithSubject.
func SubjectFromContext(ctx context.Context) (*Subject, bool) {
	if ctx == nil {
		return nil, false
	}
	subject, ok := ctx.Value(subjectContextKey{}).(*Subject)
	return subject, ok && subject != nil
}
