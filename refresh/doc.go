// Package refresh implements encoding and decoding of opaque rotating refresh
// tokens.
//
// # Token format
//
// base64url (no padding) of 48 raw bytes: the 16-byte session ULID followed by a
// 32-byte random secret. Tokens are never stored in plaintext; the session store
// retains only a keyed hash of the secret.
//
// # Architecture boundaries
//
// This package owns token encoding/decoding and structural validation. Rotation
// policy, reuse detection, and session invalidation on replay are handled by the
// session store.
//
// # What this package must NOT do
//
//   - Access Redis, SQL, or any I/O.
//   - Import authcore, jwt, or session.
//   - Implement rotation or replay logic.
package refresh
