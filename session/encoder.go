package session

import (
	"fmt"
	"strconv"
	"time"
)

// Redis hash field names. The rotation script reads uid, rh, abs, idle and rem
// directly, so renaming any of them is a storage format change.
const (
	fieldUserID     = "uid"
	fieldRefresh    = "rh"
	fieldCreated    = "created"
	fieldLastUsed   = "last"
	fieldAbsolute   = "abs"
	fieldInactivity = "idle"
	fieldRemember   = "rem"
	fieldClient     = "client"
	fieldIPHash     = "ip"
	fieldUAHash     = "ua"
	fieldAdmin      = "admin"
	fieldDevice     = "dev"
)

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// encodeHash flattens sess into HSET field/value pairs.
func encodeHash(sess *Session) []any {
	return []any{
		fieldUserID, sess.UserID,
		fieldRefresh, sess.RefreshHash,
		fieldCreated, toMillis(sess.CreatedAt),
		fieldLastUsed, toMillis(sess.LastUsedAt),
		fieldAbsolute, toMillis(sess.AbsoluteExpiresAt),
		fieldInactivity, toMillis(sess.InactivityExpiresAt),
		fieldRemember, boolField(sess.Remember),
		fieldClient, sess.Client,
		fieldIPHash, sess.IPHash,
		fieldUAHash, sess.UAHash,
		fieldAdmin, boolField(sess.IsAdmin),
		fieldDevice, sess.DeviceID,
	}
}

// decodeHash rebuilds a Session from HGETALL output. An empty map means the key
// did not exist.
func decodeHash(id string, fields map[string]string) (*Session, error) {
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	if fields[fieldUserID] == "" || fields[fieldRefresh] == "" {
		return nil, ErrCorrupt
	}

	sess := &Session{
		ID:          id,
		UserID:      fields[fieldUserID],
		RefreshHash: fields[fieldRefresh],
		Remember:    fields[fieldRemember] == "1",
		Client:      fields[fieldClient],
		IPHash:      fields[fieldIPHash],
		UAHash:      fields[fieldUAHash],
		IsAdmin:     fields[fieldAdmin] == "1",
		DeviceID:    fields[fieldDevice],
	}

	for _, f := range []struct {
		name string
		dst  *time.Time
	}{
		{fieldCreated, &sess.CreatedAt},
		{fieldLastUsed, &sess.LastUsedAt},
		{fieldAbsolute, &sess.AbsoluteExpiresAt},
		{fieldInactivity, &sess.InactivityExpiresAt},
	} {
		ms, err := strconv.ParseInt(fields[f.name], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s", ErrCorrupt, f.name)
		}
		*f.dst = fromMillis(ms)
	}

	return sess, nil
}

// pairsToMap converts the flat HGETALL reply returned from Lua.
func pairsToMap(raw []any) map[string]string {
	out := make(map[string]string, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		k, _ := raw[i].(string)
		v, _ := raw[i+1].(string)
		out[k] = v
	}
	return out
}
