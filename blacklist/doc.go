// Package blacklist is the revocation registry for access-token jti values that must
// be rejected before their natural expiry.
//
// # Semantics
//
// Add is an idempotent upsert that keeps the later of two expiries. Contains returns
// false once the stored expiry has passed, whether or not the entry has been
// physically removed. Sweep is storage hygiene only and never affects Contains.
//
// # Backends
//
//   - [RedisRegistry] stores one key per jti with PEXPIREAT at the natural expiry.
//   - [SQLRegistry] stores rows in auth_token_blacklist via sqlx.
package blacklist
