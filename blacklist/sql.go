package blacklist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// SQLRegistry stores revoked jti values in the auth_token_blacklist table.
// Expiries are unix milliseconds so the schema is portable across Postgres and SQLite.
type SQLRegistry struct {
	db  *sqlx.DB
	now func() time.Time

	addQuery      string
	containsQuery string
	sweepQuery    string
}

// NewSQLRegistry returns a registry over db. now defaults to time.Now.
func NewSQLRegistry(db *sqlx.DB, now func() time.Time) *SQLRegistry {
	if now == nil {
		now = time.Now
	}
	return &SQLRegistry{
		db:  db,
		now: now,
		addQuery: db.Rebind(`
			INSERT INTO auth_token_blacklist (jti, expires_at)
			VALUES (?, ?)
			ON CONFLICT (jti) DO UPDATE SET expires_at = CASE
				WHEN excluded.expires_at > auth_token_blacklist.expires_at THEN excluded.expires_at
				ELSE auth_token_blacklist.expires_at
			END`),
		containsQuery: db.Rebind(`SELECT expires_at FROM auth_token_blacklist WHERE jti = ?`),
		sweepQuery:    db.Rebind(`DELETE FROM auth_token_blacklist WHERE expires_at < ?`),
	}
}

// Add upserts jti, keeping the later expiry.
func (r *SQLRegistry) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return ErrEmptyJTI
	}
	if _, err := r.db.ExecContext(ctx, r.addQuery, jti, expiresAt.UnixMilli()); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Contains reports whether jti is revoked and not yet past its expiry.
func (r *SQLRegistry) Contains(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	var expMillis int64
	err := r.db.GetContext(ctx, &expMillis, r.containsQuery, jti)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return r.now().UnixMilli() <= expMillis, nil
}

// Sweep deletes entries whose expiry has passed and returns how many were removed.
func (r *SQLRegistry) Sweep(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.sweepQuery, r.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return n, nil
}
