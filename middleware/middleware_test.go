package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/permission"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct-horse"

func newTestEngine(t *testing.T) (*authcore.Engine, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	cfg := authcore.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Session.HashSecret = []byte("fedcba9876543210fedcba9876543210")

	users := map[string]authcore.RawSubject{
		"alice": {ID: "u1", Role: "admin"},
		"bob":   {ID: "u2", Role: "participant"},
	}
	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithPermissions([]string{"admin:users"}).
		WithRoles(map[string][]string{"admin": {"admin:users"}}).
		WithCredentialVerifier(authcore.CredentialVerifierFunc(func(_ context.Context, id, secret string) (string, bool, error) {
			u, ok := users[id]
			return u.ID, ok && secret == testPassword, nil
		})).
		WithSubjectProvider(authcore.SubjectProviderFunc(func(_ context.Context, userID string) (*authcore.RawSubject, error) {
			for _, u := range users {
				if u.ID == userID {
					cp := u
					return &cp, nil
				}
			}
			return nil, nil
		})).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine, mr
}

func login(t *testing.T, engine *authcore.Engine, who string) *authcore.TokenPair {
	t.Helper()
	pair, err := engine.Login(context.Background(), authcore.LoginRequest{Identifier: who, Secret: testPassword})
	require.NoError(t, err)
	return pair
}

func subjectEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, ok := authcore.SubjectFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		require.Equal(t, "192.0.2.1", authcore.ClientIPFromContext(r.Context()))
		_, _ = w.Write([]byte(subject.ID))
	})
}

func TestRequire(t *testing.T) {
	engine, _ := newTestEngine(t)
	alice := login(t, engine, "alice")
	bob := login(t, engine, "bob")

	handler := RequireRoles(engine, permission.RoleAdmin)(subjectEcho(t))

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "no header", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "empty bearer", header: "Bearer ", status: http.StatusUnauthorized},
		{name: "forged", header: "Bearer a.b.c", status: http.StatusUnauthorized},
		{name: "forbidden role", header: "Bearer " + bob.AccessToken, status: http.StatusForbidden},
		{name: "admin", header: "Bearer " + alice.AccessToken, status: http.StatusOK, body: "u1"},
		{name: "lowercase scheme", header: "bearer " + alice.AccessToken, status: http.StatusOK, body: "u1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				require.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestRequireStorageDownIs503(t *testing.T) {
	engine, mr := newTestEngine(t)
	alice := login(t, engine, "alice")
	mr.Close()

	handler := RequirePermissions(engine, "admin:users")(subjectEcho(t))
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+alice.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOptional(t *testing.T) {
	engine, _ := newTestEngine(t)
	bob := login(t, engine, "bob")
	handler := Optional(engine)(subjectEcho(t))

	for header, want := range map[string]int{
		"":                         http.StatusNoContent,
		"Bearer garbage":           http.StatusNoContent,
		"Bearer " + bob.AccessToken: http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, want, rec.Code, "header %q", header)
	}
}

func TestRefreshCookie(t *testing.T) {
	cfg := authcore.DefaultConfig().Cookie
	now := time.Now()
	pair := &authcore.TokenPair{RefreshToken: "tok", RefreshExpiresAt: now.Add(2 * time.Hour)}

	rec := httptest.NewRecorder()
	SetRefreshCookie(rec, cfg, pair, now)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	require.Equal(t, "refresh_token", c.Name)
	require.Equal(t, "tok", c.Value)
	require.Equal(t, "/auth", c.Path)
	require.Equal(t, 7200, c.MaxAge)
	require.True(t, c.HttpOnly)
	require.True(t, c.Secure)
	require.Equal(t, http.SameSiteStrictMode, c.SameSite)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(c)
	require.Equal(t, "tok", RefreshCookie(req, cfg))

	rec = httptest.NewRecorder()
	ClearRefreshCookie(rec, cfg)
	require.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusUnauthorized, StatusFor(authcore.ErrSessionInvalid))
	require.Equal(t, http.StatusUnauthorized, StatusFor(authcore.ErrInvalidCredentials))
	require.Equal(t, http.StatusServiceUnavailable, StatusFor(authcore.ErrStorageUnavailable))
	require.Equal(t, http.StatusInternalServerError, StatusFor(context.DeadlineExceeded))
}
