package session

import (
	"context"
	"time"
)

// RotateRequest is one compare-and-swap of a session's refresh hash.
type RotateRequest struct {
	SessionID       string
	PresentedHash   string
	NextHash        string
	Now             time.Time
	ShortInactivity time.Duration
	LongInactivity  time.Duration
	IPHash          string
	UAHash          string
}

// Repository is the persistence contract behind Store.
//
// Rotate must be atomic. When the stored hash differs from PresentedHash on a live
// session, the implementation revokes the session before returning ErrHashMismatch.
// Expiry is evaluated against req.Now with strict "after" semantics.
type Repository interface {
	Insert(ctx context.Context, sess *Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Rotate(ctx context.Context, req RotateRequest) (*Session, error)
	Revoke(ctx context.Context, sessionID string, now time.Time, reason string) error
	RevokeAllForUser(ctx context.Context, userID string, now time.Time, reason string) (int, error)
	ListForUser(ctx context.Context, userID string, now time.Time) ([]*Session, error)
	UpsertDevice(ctx context.Context, dev *Device) (*Device, error)
	GetDevices(ctx context.Context, userID string, ids []string) (map[string]*Device, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

var (
	_ Repository = (*RedisRepository)(nil)
	_ Repository = (*SQLRepository)(nil)
)

func nextInactivity(now, absolute time.Time, remember bool, short, long time.Duration) time.Time {
	ttl := short
	if remember {
		ttl = long
	}
	next := now.Add(ttl)
	if next.After(absolute) {
		return absolute
	}
	return next
}
