package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/MrEthical07/authcore/session"
)

const maxBodyBytes = 1 << 16

type loginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
	Remember   bool   `json:"remember"`
	Client     string `json:"client"`
	DeviceID   string `json:"device_id"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	SessionID        string    `json:"session_id"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func (s *Server) tokenResponse(w http.ResponseWriter, pair *authcore.TokenPair) {
	now := s.engine.Now()
	middleware.SetRefreshCookie(w, s.cookie, pair, now)
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:      pair.AccessToken,
		TokenType:        "Bearer",
		ExpiresIn:        int64(pair.AccessTokenExpiresAt.Sub(now) / time.Second),
		SessionID:        pair.Session.ID,
		RefreshExpiresAt: pair.RefreshExpiresAt.UTC(),
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pair, err := s.engine.Login(middleware.WithClient(r), authcore.LoginRequest{
		Identifier: body.Identifier,
		Secret:     body.Secret,
		Remember:   body.Remember,
		Client:     body.Client,
		DeviceID:   body.DeviceID,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.tokenResponse(w, pair)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	token := middleware.RefreshCookie(r, s.cookie)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing refresh token")
		return
	}

	pair, err := s.engine.Refresh(middleware.WithClient(r), token)
	if err != nil {
		if middleware.StatusFor(err) == http.StatusUnauthorized {
			middleware.ClearRefreshCookie(w, s.cookie)
		}
		s.writeEngineError(w, err)
		return
	}
	s.tokenResponse(w, pair)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	access, _ := middleware.BearerToken(r.Header.Get("Authorization"))
	refresh := middleware.RefreshCookie(r, s.cookie)

	if err := s.engine.Logout(middleware.WithClient(r), refresh, access); err != nil {
		s.writeEngineError(w, err)
		return
	}
	middleware.ClearRefreshCookie(w, s.cookie)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) logoutAll(w http.ResponseWriter, r *http.Request) {
	access, _ := middleware.BearerToken(r.Header.Get("Authorization"))

	revoked, err := s.engine.LogoutAll(middleware.WithClient(r), access)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	middleware.ClearRefreshCookie(w, s.cookie)
	writeJSON(w, http.StatusOK, map[string]int{"revoked": revoked})
}

type sessionResponse struct {
	ID                  string    `json:"id"`
	CreatedAt           time.Time `json:"created_at"`
	LastUsedAt          time.Time `json:"last_used_at"`
	AbsoluteExpiresAt   time.Time `json:"absolute_expires_at"`
	InactivityExpiresAt time.Time `json:"inactivity_expires_at"`
	Remember            bool      `json:"remember"`
	Client              string    `json:"client,omitempty"`
	Current             bool      `json:"current"`
	Device              *device   `json:"device,omitempty"`
}

type device struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
	OS   string `json:"os,omitempty"`
}

func toDevice(d *session.Device) *device {
	if d == nil {
		return nil
	}
	return &device{ID: d.ID, Name: d.Name, Type: d.Type, OS: d.OS}
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	subject, _ := authcore.SubjectFromContext(r.Context())

	views, err := s.engine.ListSessions(r.Context(), subject.ID, subject.SessionID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	out := make([]sessionResponse, 0, len(views))
	for _, v := range views {
		out = append(out, sessionResponse{
			ID:                  v.Session.ID,
			CreatedAt:           v.Session.CreatedAt.UTC(),
			LastUsedAt:          v.Session.LastUsedAt.UTC(),
			AbsoluteExpiresAt:   v.Session.AbsoluteExpiresAt.UTC(),
			InactivityExpiresAt: v.Session.InactivityExpiresAt.UTC(),
			Remember:            v.Session.Remember,
			Client:              v.Session.Client,
			Current:             v.Current,
			Device:              toDevice(v.Device),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

type deviceRequest struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	OS       string `json:"os"`
}

func (s *Server) registerDevice(w http.ResponseWriter, r *http.Request) {
	subject, _ := authcore.SubjectFromContext(r.Context())

	var body deviceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dev, err := s.engine.RegisterDevice(r.Context(), subject.ID, body.DeviceID, session.DeviceInfo{
		Name: body.Name,
		Type: body.Type,
		OS:   body.OS,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDevice(dev))
}

type subjectResponse struct {
	ID          string    `json:"id"`
	Role        string    `json:"role"`
	Permissions []string  `json:"permissions"`
	SessionID   string    `json:"session_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	subject, _ := authcore.SubjectFromContext(r.Context())

	perms := make([]string, 0, len(subject.Permissions))
	for _, p := range subject.Permissions.Slice() {
		perms = append(perms, string(p))
	}
	writeJSON(w, http.StatusOK, subjectResponse{
		ID:          subject.ID,
		Role:        subject.Role.String(),
		Permissions: perms,
		SessionID:   subject.SessionID,
		ExpiresAt:   subject.ExpiresAt.UTC(),
	})
}
