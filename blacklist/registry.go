package blacklist

import (
	"context"
	"errors"
	"time"
)

// ErrStorageUnavailable wraps backend failures.
var ErrStorageUnavailable = errors.New("blacklist storage unavailable")

// ErrEmptyJTI is returned by Add for an empty jti.
var ErrEmptyJTI = errors.New("blacklist: empty jti")

// Registry is implemented by every backend in this package.
type Registry interface {
	Add(ctx context.Context, jti string, expiresAt time.Time) error
	Contains(ctx context.Context, jti string) (bool, error)
	Sweep(ctx context.Context) (int64, error)
}

var (
	_ Registry = (*RedisRegistry)(nil)
	_ Registry = (*SQLRegistry)(nil)
)
