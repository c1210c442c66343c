package session

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/google/uuid"
)

// Config holds the session lifetime policy.
type Config struct {
	// ShortLifetime and LongLifetime are the absolute lifetimes of normal and
	// remember-me sessions.
	ShortLifetime time.Duration
	LongLifetime  time.Duration

	// ShortInactivity and LongInactivity are the sliding idle windows.
	ShortInactivity time.Duration
	LongInactivity  time.Duration

	// HashSecret keys the refresh, IP and user-agent digests. At least 32 bytes.
	HashSecret []byte
}

// Validate checks that every window is positive and no idle window outlives its
// absolute lifetime.
func (c Config) Validate() error {
	if c.ShortLifetime <= 0 || c.LongLifetime <= 0 {
		return errors.New("session lifetimes must be > 0")
	}
	if c.ShortInactivity <= 0 || c.LongInactivity <= 0 {
		return errors.New("session inactivity windows must be > 0")
	}
	if c.ShortInactivity > c.ShortLifetime {
		return errors.New("short inactivity window exceeds short lifetime")
	}
	if c.LongInactivity > c.LongLifetime {
		return errors.New("long inactivity window exceeds long lifetime")
	}
	return nil
}

// Store implements the session lifecycle over a Repository.
type Store struct {
	repo   Repository
	access AccessIssuer
	hasher *internal.Hasher
	cfg    Config
	now    func() time.Time
}

// NewStore validates cfg and returns a Store. now defaults to time.Now; its
// result is truncated to milliseconds to match stored precision.
func NewStore(repo Repository, access AccessIssuer, cfg Config, now func() time.Time) (*Store, error) {
	if repo == nil {
		return nil, errors.New("session repository is required")
	}
	if access == nil {
		return nil, errors.New("access issuer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	hasher, err := internal.NewHasher(cfg.HashSecret)
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Store{
		repo:   repo,
		access: access,
		hasher: hasher,
		cfg:    cfg,
		now:    func() time.Time { return now().UTC().Truncate(time.Millisecond) },
	}, nil
}

func (s *Store) refreshHash(tok refresh.Token) string {
	h := s.hasher.RefreshHash(tok.Secret)
	return hex.EncodeToString(h[:])
}

// CreateSession starts a session for userID and returns its first refresh token.
func (s *Store) CreateSession(ctx context.Context, userID string, opts CreateOptions) (*Created, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id is required")
	}

	now := s.now()
	tok, err := refresh.NewSession(now)
	if err != nil {
		return nil, err
	}

	lifetime, idle := s.cfg.ShortLifetime, s.cfg.ShortInactivity
	if opts.Remember {
		lifetime, idle = s.cfg.LongLifetime, s.cfg.LongInactivity
	}
	absolute := now.Add(lifetime)

	sess := &Session{
		ID:                  tok.SessionID.String(),
		UserID:              userID,
		CreatedAt:           now,
		LastUsedAt:          now,
		AbsoluteExpiresAt:   absolute,
		InactivityExpiresAt: nextInactivity(now, absolute, false, idle, idle),
		Remember:            opts.Remember,
		Client:              opts.Client,
		IPHash:              s.hasher.IPHash(opts.IPAddress),
		UAHash:              s.hasher.UserAgentHash(opts.UserAgent),
		IsAdmin:             opts.IsAdmin,
		DeviceID:            opts.DeviceID,
		RefreshHash:         s.refreshHash(tok),
	}
	if err := s.repo.Insert(ctx, sess); err != nil {
		return nil, err
	}

	return &Created{
		Session:       sess,
		RefreshToken:  tok.Encode(),
		RefreshRecord: recordFor(sess),
	}, nil
}

func recordFor(sess *Session) RefreshRecord {
	return RefreshRecord{
		SessionID: sess.ID,
		TokenHash: sess.RefreshHash,
		IssuedAt:  sess.LastUsedAt,
		ExpiresAt: sess.InactivityExpiresAt,
	}
}

// RotateRefreshToken exchanges a refresh token for a new access token and a new
// refresh token. Unknown, expired and revoked sessions all yield
// ErrSessionInvalid. A token that no longer matches a live session revokes the
// session and yields ErrSessionInvalid joined with ErrReuseDetected. If the
// access token cannot be issued after rotating, the session is revoked and the
// caller must log in again.
func (s *Store) RotateRefreshToken(ctx context.Context, refreshToken string, client ClientInfo) (*Rotated, error) {
	presented, err := refresh.Decode(refreshToken)
	if err != nil {
		return nil, ErrSessionInvalid
	}
	next, err := presented.Rotate()
	if err != nil {
		return nil, err
	}

	sess, err := s.repo.Rotate(ctx, RotateRequest{
		SessionID:       presented.SessionID.String(),
		PresentedHash:   s.refreshHash(presented),
		NextHash:        s.refreshHash(next),
		Now:             s.now(),
		ShortInactivity: s.cfg.ShortInactivity,
		LongInactivity:  s.cfg.LongInactivity,
		IPHash:          s.hasher.IPHash(client.IPAddress),
		UAHash:          s.hasher.UserAgentHash(client.UserAgent),
	})
	if err != nil {
		return nil, classify(err)
	}

	access, err := s.access.IssueAccess(sess.UserID, sess.ID)
	if err != nil {
		// The presented token is already consumed and the new one is never
		// handed out, so the session cannot be refreshed again.
		if revokeErr := s.repo.Revoke(ctx, sess.ID, s.now(), ReasonIssueFailed); revokeErr != nil {
			return nil, fmt.Errorf("issue access token: %w (revoke session: %v)", err, revokeErr)
		}
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	return &Rotated{
		AccessToken:          access.Token,
		AccessTokenID:        access.JTI,
		AccessTokenExpiresAt: access.ExpiresAt,
		RefreshToken:         next.Encode(),
		RefreshRecord:        recordFor(sess),
		Session:              sess,
	}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrHashMismatch):
		return fmt.Errorf("%w: %w", ErrSessionInvalid, ErrReuseDetected)
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrExpired),
		errors.Is(err, ErrRevoked),
		errors.Is(err, ErrCorrupt):
		return ErrSessionInvalid
	default:
		return err
	}
}

// RevokeSessionByRefreshToken revokes the session the token belongs to. Malformed,
// unknown or stale tokens are a no-op and return (nil, nil); so is a token whose
// session is already dead.
func (s *Store) RevokeSessionByRefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	tok, err := refresh.Decode(refreshToken)
	if err != nil {
		return nil, nil
	}

	sess, err := s.repo.Get(ctx, tok.SessionID.String())
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrCorrupt) {
			return nil, nil
		}
		return nil, err
	}
	if !sess.RevokedAt.IsZero() {
		return nil, nil
	}
	if subtle.ConstantTimeCompare([]byte(sess.RefreshHash), []byte(s.refreshHash(tok))) != 1 {
		return nil, nil
	}

	if err := s.repo.Revoke(ctx, sess.ID, s.now(), ReasonLogout); err != nil {
		return nil, err
	}
	return sess, nil
}

// RevokeSession revokes a session by id. Revoking a dead or unknown session is
// not an error.
func (s *Store) RevokeSession(ctx context.Context, sessionID, reason string) error {
	if sessionID == "" {
		return nil
	}
	return s.repo.Revoke(ctx, sessionID, s.now(), reason)
}

// RevokeAllSessionsForUser revokes every session of userID and returns how many
// live sessions were affected.
func (s *Store) RevokeAllSessionsForUser(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}
	return s.repo.RevokeAllForUser(ctx, userID, s.now(), ReasonLogoutAll)
}

// ListSessions returns the live sessions of userID, most recently used first.
// currentSessionID marks the caller's own session.
func (s *Store) ListSessions(ctx context.Context, userID, currentSessionID string) ([]View, error) {
	now := s.now()
	sessions, err := s.repo.ListForUser(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	var deviceIDs []string
	seen := make(map[string]struct{})
	for _, sess := range sessions {
		if sess.DeviceID == "" {
			continue
		}
		if _, ok := seen[sess.DeviceID]; ok {
			continue
		}
		seen[sess.DeviceID] = struct{}{}
		deviceIDs = append(deviceIDs, sess.DeviceID)
	}
	devices, err := s.repo.GetDevices(ctx, userID, deviceIDs)
	if err != nil {
		return nil, err
	}

	views := make([]View, 0, len(sessions))
	for _, sess := range sessions {
		if !sess.Live(now) {
			continue
		}
		views = append(views, View{
			Session: sess,
			Device:  devices[sess.DeviceID],
			Current: sess.ID == currentSessionID,
		})
	}
	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i].Session, views[j].Session
		if !a.LastUsedAt.Equal(b.LastUsedAt) {
			return a.LastUsedAt.After(b.LastUsedAt)
		}
		return a.ID > b.ID
	})
	return views, nil
}

// RegisterDevice creates or refreshes a device record for userID. An empty
// deviceID allocates a new one.
func (s *Store) RegisterDevice(ctx context.Context, userID, deviceID string, info DeviceInfo) (*Device, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	now := s.now()
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	return s.repo.UpsertDevice(ctx, &Device{
		ID:        deviceID,
		UserID:    userID,
		Name:      info.Name,
		Type:      info.Type,
		OS:        info.OS,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// Sweep deletes dead sessions from backends that do not expire them natively.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}

// Now returns the store clock reading, truncated to milliseconds.
func (s *Store) Now() time.Time {
	return s.now()
}
