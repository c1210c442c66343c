package ginauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/permission"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *authcore.Engine {
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

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialVerifier(authcore.CredentialVerifierFunc(func(_ context.Context, id, _ string) (string, bool, error) {
			return id, true, nil
		})).
		WithSubjectProvider(authcore.SubjectProviderFunc(func(_ context.Context, userID string) (*authcore.RawSubject, error) {
			role := "participant"
			if userID == "root" {
				role = "admin"
			}
			return &authcore.RawSubject{ID: userID, Role: role}, nil
		})).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

func TestGinRequireRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := newTestEngine(t)

	r := gin.New()
	r.GET("/admin", RequireRoles(engine, permission.RoleAdmin), func(c *gin.Context) {
		subject, ok := Subject(c)
		require.True(t, ok)
		fromCtx, ok := authcore.SubjectFromContext(c.Request.Context())
		require.True(t, ok)
		require.Same(t, subject, fromCtx)
		c.String(http.StatusOK, subject.ID)
	})

	token := func(user string) string {
		pair, err := engine.Login(context.Background(), authcore.LoginRequest{Identifier: user, Secret: "x"})
		require.NoError(t, err)
		return pair.AccessToken
	}

	for _, tc := range []struct {
		header string
		status int
	}{
		{header: "", status: http.StatusUnauthorized},
		{header: "Bearer " + token("bob"), status: http.StatusForbidden},
		{header: "Bearer " + token("root"), status: http.StatusOK},
	} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, tc.status, rec.Code)
	}
}

func TestGinOptional(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := newTestEngine(t)

	r := gin.New()
	r.GET("/", Optional(engine), func(c *gin.Context) {
		if _, ok := Subject(c); ok {
			c.Status(http.StatusOK)
			return
		}
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}
