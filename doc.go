// Package authcore is the session and token lifecycle core: short-lived JWT access
// tokens, rotating opaque refresh tokens bound to server-side sessions, jti
// revocation, and role/permission guards.
//
// Engine methods are safe to call from multiple goroutines after initialization
// through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config] and the
// guard errors. Flow orchestration and audit dispatch live under internal/.
// Persistence is injected: pass a Redis client or an sqlx database to the Builder.
//
// # What this package must NOT do
//
//   - Hold cross-request mutable state outside the injected persistence.
//   - Map storage failures to 401; they propagate to the caller.
//   - Import any sub-package that re-imports authcore (no import cycles).
package authcore
