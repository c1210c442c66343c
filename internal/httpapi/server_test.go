package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/directory"
	promexport "github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testKey = "0123456789abcdef0123456789abcdef"

type testServer struct {
	engine *authcore.Engine
	router *mux.Router
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hash, err := directory.HashPassword("correct-horse", bcrypt.MinCost)
	require.NoError(t, err)
	dir, err := directory.New(
		directory.User{ID: "alice", Role: "creator", Hash: []byte(hash)},
	)
	require.NoError(t, err)

	cfg := authcore.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte(testKey)
	cfg.Session.HashSecret = []byte(testKey)
	cfg.Cookie.Insecure = true
	cfg.Sweeper.Interval = 0

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithPermissions([]string{"project:create"}).
		WithRoles(map[string][]string{"creator": {"project:create"}}).
		WithCredentialVerifier(dir).
		WithSubjectProvider(dir).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	metrics, err := promexport.Handler(engine)
	require.NoError(t, err)

	return &testServer{
		engine: engine,
		router: New(engine, WithMetricsHandler(metrics)).Router(),
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, bearer string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.7:5555"
	req.Header.Set("User-Agent", "httpapi-test")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func refreshCookieOf(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "refresh_token" {
			return c
		}
	}
	t.Fatal("no refresh cookie in response")
	return nil
}

func decodeTokens(t *testing.T, rec *httptest.ResponseRecorder) tokenResponse {
	t.Helper()
	var out tokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func (s *testServer) login(t *testing.T) (tokenResponse, *http.Cookie) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/auth/login", loginRequest{Identifier: "alice", Secret: "correct-horse"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookie := refreshCookieOf(t, rec)
	return decodeTokens(t, rec), cookie
}

func TestLoginSetsCookieAndToken(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/auth/login", loginRequest{Identifier: "alice", Secret: "correct-horse"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	cookie := refreshCookieOf(t, rec)
	require.True(t, cookie.HttpOnly)
	require.Equal(t, "/auth", cookie.Path)
	require.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	require.Positive(t, cookie.MaxAge)

	tokens := decodeTokens(t, rec)
	require.NotEmpty(t, tokens.AccessToken)
	require.Equal(t, "Bearer", tokens.TokenType)
	require.Positive(t, tokens.ExpiresIn)
	require.NotEmpty(t, tokens.SessionID)
	require.NotContains(t, rec.Body.String(), cookie.Value)
}

func TestLoginFailures(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/auth/login", loginRequest{Identifier: "alice", Secret: "wrong"}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, rec.Result().Cookies())

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{"))
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/auth/login", nil, "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/sessions", nil, "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/unknown", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMeAndSessions(t *testing.T) {
	s := newTestServer(t)
	tokens, _ := s.login(t)

	rec := s.do(t, http.MethodGet, "/me", nil, tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var me subjectResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&me))
	require.Equal(t, "alice", me.ID)
	require.Equal(t, "CREATOR", me.Role)
	require.Equal(t, []string{"project:create"}, me.Permissions)
	require.Equal(t, tokens.SessionID, me.SessionID)

	rec = s.do(t, http.MethodGet, "/auth/sessions", nil, tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Sessions []sessionResponse `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	require.Len(t, listed.Sessions, 1)
	require.True(t, listed.Sessions[0].Current)
	require.Equal(t, tokens.SessionID, listed.Sessions[0].ID)

	rec = s.do(t, http.MethodGet, "/me", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshRotatesCookie(t *testing.T) {
	s := newTestServer(t)
	first, cookie := s.login(t)

	rec := s.do(t, http.MethodPost, "/auth/refresh", nil, "", cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rotated := refreshCookieOf(t, rec)
	require.NotEqual(t, cookie.Value, rotated.Value)
	second := decodeTokens(t, rec)
	require.Equal(t, first.SessionID, second.SessionID)
	require.NotEqual(t, first.AccessToken, second.AccessToken)

	// Presenting the superseded cookie kills the session and clears the cookie.
	rec = s.do(t, http.MethodPost, "/auth/refresh", nil, "", cookie)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	cleared := refreshCookieOf(t, rec)
	require.Empty(t, cleared.Value)
	require.Negative(t, cleared.MaxAge)

	rec = s.do(t, http.MethodPost, "/auth/refresh", nil, "", rotated)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshWithoutCookie(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/auth/refresh", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutRevokesBothTokens(t *testing.T) {
	s := newTestServer(t)
	tokens, cookie := s.login(t)

	rec := s.do(t, http.MethodPost, "/auth/logout", nil, tokens.AccessToken, cookie)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, refreshCookieOf(t, rec).Value)

	rec = s.do(t, http.MethodGet, "/me", nil, tokens.AccessToken)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = s.do(t, http.MethodPost, "/auth/refresh", nil, "", cookie)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Logging out again is a no-op.
	rec = s.do(t, http.MethodPost, "/auth/logout", nil, tokens.AccessToken, cookie)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLogoutAll(t *testing.T) {
	s := newTestServer(t)
	tokens, _ := s.login(t)
	_, otherCookie := s.login(t)

	rec := s.do(t, http.MethodPost, "/auth/logout-all", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/logout-all", nil, tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.Equal(t, 2, out["revoked"])

	rec = s.do(t, http.MethodPost, "/auth/refresh", nil, "", otherCookie)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterDevice(t *testing.T) {
	s := newTestServer(t)
	tokens, _ := s.login(t)

	rec := s.do(t, http.MethodPost, "/auth/devices", deviceRequest{Name: "laptop", Type: "desktop", OS: "linux"}, tokens.AccessToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var dev device
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&dev))
	require.NotEmpty(t, dev.ID)
	require.Equal(t, "laptop", dev.Name)

	rec = s.do(t, http.MethodPost, "/auth/devices", deviceRequest{Name: "laptop"}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetricsAndHealth(t *testing.T) {
	s := newTestServer(t)
	s.login(t)

	rec := s.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "authcore_login_success_total 1")

	rec = s.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
}
