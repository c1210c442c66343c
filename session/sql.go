package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

const sessionColumns = `id, user_id, refresh_hash, created_at, last_used_at, absolute_expires_at,
	inactivity_expires_at, remember, client, ip_hash, ua_hash, is_admin, device_id,
	revoked_at, revoked_reason`

const rotateSessionQuery = `
UPDATE auth_sessions SET
	refresh_hash = :next_hash,
	last_used_at = CAST(:now AS BIGINT),
	inactivity_expires_at = CASE
		WHEN remember AND CAST(:long_idle AS BIGINT) < absolute_expires_at THEN CAST(:long_idle AS BIGINT)
		WHEN NOT remember AND CAST(:short_idle AS BIGINT) < absolute_expires_at THEN CAST(:short_idle AS BIGINT)
		ELSE absolute_expires_at
	END,
	ip_hash = CASE WHEN :ip_hash = '' THEN ip_hash ELSE :ip_hash END,
	ua_hash = CASE WHEN :ua_hash = '' THEN ua_hash ELSE :ua_hash END
WHERE id = :id
	AND refresh_hash = :presented_hash
	AND revoked_at IS NULL
	AND absolute_expires_at >= CAST(:now AS BIGINT)
	AND inactivity_expires_at >= CAST(:now AS BIGINT)
RETURNING ` + sessionColumns

type sessionRow struct {
	ID                  string         `db:"id"`
	UserID              string         `db:"user_id"`
	RefreshHash         string         `db:"refresh_hash"`
	CreatedAt           int64          `db:"created_at"`
	LastUsedAt          int64          `db:"last_used_at"`
	AbsoluteExpiresAt   int64          `db:"absolute_expires_at"`
	InactivityExpiresAt int64          `db:"inactivity_expires_at"`
	Remember            bool           `db:"remember"`
	Client              string         `db:"client"`
	IPHash              string         `db:"ip_hash"`
	UAHash              string         `db:"ua_hash"`
	IsAdmin             bool           `db:"is_admin"`
	DeviceID            sql.NullString `db:"device_id"`
	RevokedAt           sql.NullInt64  `db:"revoked_at"`
	RevokedReason       sql.NullString `db:"revoked_reason"`
}

func (r sessionRow) session() *Session {
	sess := &Session{
		ID:                  r.ID,
		UserID:              r.UserID,
		RefreshHash:         r.RefreshHash,
		CreatedAt:           fromMillis(r.CreatedAt),
		LastUsedAt:          fromMillis(r.LastUsedAt),
		AbsoluteExpiresAt:   fromMillis(r.AbsoluteExpiresAt),
		InactivityExpiresAt: fromMillis(r.InactivityExpiresAt),
		Remember:            r.Remember,
		Client:              r.Client,
		IPHash:              r.IPHash,
		UAHash:              r.UAHash,
		IsAdmin:             r.IsAdmin,
		DeviceID:            r.DeviceID.String,
		RevokedReason:       r.RevokedReason.String,
	}
	if r.RevokedAt.Valid {
		sess.RevokedAt = fromMillis(r.RevokedAt.Int64)
	}
	return sess
}

type deviceRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	Name      string `db:"device_name"`
	Type      string `db:"device_type"`
	OS        string `db:"os"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

// SQLRepository stores sessions in auth_sessions. It works against Postgres
// (pgx stdlib) and SQLite; timestamps are unix milliseconds.
type SQLRepository struct {
	db *sqlx.DB

	insertQuery       string
	getQuery          string
	revokeQuery       string
	revokeAllQuery    string
	listQuery         string
	upsertDeviceQuery string
	deleteQuery       string
}

// NewSQLRepository returns a repository over db. The schema is created by the
// migrations package.
func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{
		db: db,
		insertQuery: db.Rebind(`
			INSERT INTO auth_sessions (` + sessionColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL)`),
		getQuery: db.Rebind(`SELECT ` + sessionColumns + ` FROM auth_sessions WHERE id = ?`),
		revokeQuery: db.Rebind(`
			UPDATE auth_sessions SET revoked_at = ?, revoked_reason = ?
			WHERE id = ? AND revoked_at IS NULL`),
		revokeAllQuery: db.Rebind(`
			UPDATE auth_sessions SET revoked_at = ?, revoked_reason = ?
			WHERE user_id = ? AND revoked_at IS NULL
				AND absolute_expires_at >= ? AND inactivity_expires_at >= ?`),
		listQuery: db.Rebind(`
			SELECT ` + sessionColumns + ` FROM auth_sessions
			WHERE user_id = ? AND revoked_at IS NULL
				AND absolute_expires_at >= ? AND inactivity_expires_at >= ?
			ORDER BY last_used_at DESC`),
		upsertDeviceQuery: db.Rebind(`
			INSERT INTO auth_devices (id, user_id, device_name, device_type, os, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				device_name = excluded.device_name,
				device_type = excluded.device_type,
				os = excluded.os,
				updated_at = excluded.updated_at
			WHERE auth_devices.user_id = excluded.user_id
			RETURNING created_at`),
		deleteQuery: db.Rebind(`
			DELETE FROM auth_sessions
			WHERE revoked_at IS NOT NULL OR absolute_expires_at < ? OR inactivity_expires_at < ?`),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Insert writes a new row.
func (r *SQLRepository) Insert(ctx context.Context, sess *Session) error {
	_, err := r.db.ExecContext(ctx, r.insertQuery,
		sess.ID,
		sess.UserID,
		sess.RefreshHash,
		toMillis(sess.CreatedAt),
		toMillis(sess.LastUsedAt),
		toMillis(sess.AbsoluteExpiresAt),
		toMillis(sess.InactivityExpiresAt),
		sess.Remember,
		sess.Client,
		sess.IPHash,
		sess.UAHash,
		sess.IsAdmin,
		nullString(sess.DeviceID),
	)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// Get loads a row, revoked or not.
func (r *SQLRepository) Get(ctx context.Context, sessionID string) (*Session, error) {
	var row sessionRow
	if err := r.db.GetContext(ctx, &row, r.getQuery, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	return row.session(), nil
}

// Rotate performs the compare-and-swap as one conditional UPDATE. When no row
// matches, the row is re-read to classify the failure; a live session with a
// different hash is revoked as reused.
func (r *SQLRepository) Rotate(ctx context.Context, req RotateRequest) (*Session, error) {
	now := req.Now.UnixMilli()
	query, args, err := sqlx.Named(rotateSessionQuery, map[string]any{
		"id":             req.SessionID,
		"presented_hash": req.PresentedHash,
		"next_hash":      req.NextHash,
		"now":            now,
		"short_idle":     now + req.ShortInactivity.Milliseconds(),
		"long_idle":      now + req.LongInactivity.Milliseconds(),
		"ip_hash":        req.IPHash,
		"ua_hash":        req.UAHash,
	})
	if err != nil {
		return nil, err
	}

	var row sessionRow
	err = r.db.QueryRowxContext(ctx, r.db.Rebind(query), args...).StructScan(&row)
	if err == nil {
		return row.session(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, unavailable(err)
	}

	current, err := r.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	switch {
	case !current.RevokedAt.IsZero():
		return nil, ErrRevoked
	case !current.Live(req.Now):
		return nil, ErrExpired
	}

	if err := r.Revoke(ctx, req.SessionID, req.Now, ReasonReuseDetected); err != nil {
		return nil, err
	}
	return nil, ErrHashMismatch
}

// Revoke marks the row revoked. Already revoked or missing rows are left alone.
func (r *SQLRepository) Revoke(ctx context.Context, sessionID string, now time.Time, reason string) error {
	if _, err := r.db.ExecContext(ctx, r.revokeQuery, now.UnixMilli(), reason, sessionID); err != nil {
		return unavailable(err)
	}
	return nil
}

// RevokeAllForUser revokes every live row for userID in one statement.
func (r *SQLRepository) RevokeAllForUser(ctx context.Context, userID string, now time.Time, reason string) (int, error) {
	ms := now.UnixMilli()
	res, err := r.db.ExecContext(ctx, r.revokeAllQuery, ms, reason, userID, ms, ms)
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

// ListForUser returns live rows ordered by last use, newest first.
func (r *SQLRepository) ListForUser(ctx context.Context, userID string, now time.Time) ([]*Session, error) {
	ms := now.UnixMilli()
	var rows []sessionRow
	if err := r.db.SelectContext(ctx, &rows, r.listQuery, userID, ms, ms); err != nil {
		return nil, unavailable(err)
	}
	out := make([]*Session, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.session())
	}
	return out, nil
}

// UpsertDevice inserts or updates dev unless its id belongs to another user.
func (r *SQLRepository) UpsertDevice(ctx context.Context, dev *Device) (*Device, error) {
	ms := dev.UpdatedAt.UnixMilli()
	var created int64
	err := r.db.GetContext(ctx, &created, r.upsertDeviceQuery,
		dev.ID, dev.UserID, dev.Name, dev.Type, dev.OS, ms, ms)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceOwnership
		}
		return nil, unavailable(err)
	}
	out := *dev
	out.CreatedAt = fromMillis(created)
	return &out, nil
}

// GetDevices loads the listed devices owned by userID.
func (r *SQLRepository) GetDevices(ctx context.Context, userID string, ids []string) (map[string]*Device, error) {
	out := make(map[string]*Device, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`
		SELECT id, user_id, device_name, device_type, os, created_at, updated_at
		FROM auth_devices WHERE user_id = ? AND id IN (?)`, userID, ids)
	if err != nil {
		return nil, err
	}

	var rows []deviceRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, unavailable(err)
	}
	for _, row := range rows {
		out[row.ID] = &Device{
			ID:        row.ID,
			UserID:    row.UserID,
			Name:      row.Name,
			Type:      row.Type,
			OS:        row.OS,
			CreatedAt: fromMillis(row.CreatedAt),
			UpdatedAt: fromMillis(row.UpdatedAt),
		}
	}
	return out, nil
}

// DeleteExpired removes revoked and expired rows.
func (r *SQLRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ms := now.UnixMilli()
	res, err := r.db.ExecContext(ctx, r.deleteQuery, ms, ms)
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}
