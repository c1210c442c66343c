package authcore

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	_, rdb := newTestRedis(t)
	sink := &countingSink{}
	users := newTestUsers()

	cfg := testConfig()
	b := New().WithConfig(cfg).WithRedis(rdb).WithCredentialVerifier(users).WithAuditSink(sink)
	// WithAuditSink enables auditing; switching it off afterwards must win.
	b.config.Audit.Enabled = false
	engine, err := b.Build()
	require.NoError(t, err)

	_, _ = engine.Login(WithClientIP(context.Background(), "203.0.113.1"), LoginRequest{Identifier: "alice", Secret: "wrong-password"})
	engine.Close()

	require.Zero(t, sink.count.Load())
	require.Zero(t, engine.AuditDropped())
}

func TestAuditLoginEventFields(t *testing.T) {
	env := newRedisEnv(t)
	ctx := WithClientIP(context.Background(), "198.51.100.33")

	pair, err := env.engine.Login(ctx, LoginRequest{Identifier: "alice", Secret: testPassword, Remember: true})
	require.NoError(t, err)

	ev := env.waitEvent(t, auditEventLoginSuccess)
	require.True(t, ev.Success)
	require.Equal(t, "198.51.100.33", ev.IP)
	require.Equal(t, "u1", ev.UserID)
	require.Equal(t, pair.Session.ID, ev.SessionID)
	require.Equal(t, pair.AccessTokenID, ev.TokenID)
	require.Equal(t, "true", ev.Metadata["remember"])
	require.WithinDuration(t, env.clock.Now(), ev.Timestamp, 0)
}

func TestAuditLogoutEvents(t *testing.T) {
	env := newSQLEnv(t)
	pair := env.login(t, "alice")

	require.NoError(t, env.engine.Logout(context.Background(), pair.RefreshToken, pair.AccessToken))

	ev := env.waitEvent(t, auditEventLogoutSession)
	require.Equal(t, pair.Session.ID, ev.SessionID)
	ev = env.waitEvent(t, auditEventTokenRevoked)
	require.Equal(t, pair.AccessTokenID, ev.TokenID)

	other := env.login(t, "alice")
	n, err := env.engine.LogoutAll(context.Background(), other.AccessToken)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	ev = env.waitEvent(t, auditEventLogoutAll)
	require.Equal(t, "1", ev.Metadata["revoked"])
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	env := newRedisEnv(t)
	ctx := context.Background()

	pair := env.login(t, "alice")
	next, err := env.engine.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	_, _ = env.engine.Refresh(ctx, pair.RefreshToken)
	_, _ = env.engine.Login(ctx, LoginRequest{Identifier: "alice", Secret: "super-secret-password"})

	needles := []string{
		testPassword,
		"super-secret-password",
		pair.RefreshToken,
		next.RefreshToken,
		pair.AccessToken,
		next.AccessToken,
	}

	events := make([]AuditEvent, 0, 8)
	timeout := time.After(2 * time.Second)
collectLoop:
	for len(events) < 5 {
		select {
		case ev := <-env.sink.Events():
			events = append(events, ev)
		case <-timeout:
			break collectLoop
		}
	}
	require.NotEmpty(t, events)

	for _, ev := range events {
		for _, needle := range needles {
			require.NotContains(t, ev.Error, needle)
			require.NotEqual(t, needle, ev.TokenID)
			for k, v := range ev.Metadata {
				require.False(t, strings.Contains(k, needle) || strings.Contains(v, needle),
					"secret leaked in %s metadata", ev.EventType)
			}
		}
	}
}
