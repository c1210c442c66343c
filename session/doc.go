// Package session owns refresh-token sessions: creation, atomic rotation with reuse
// detection, revocation, listing, and device records.
//
// # Persistence
//
// [Store] holds the lifecycle rules and delegates storage to a [Repository]:
//
//   - [RedisRepository] keeps one hash per session and rotates inside a Lua script.
//   - [SQLRepository] keeps rows in auth_sessions and rotates with a single
//     conditional UPDATE ... RETURNING.
//
// Either way rotation is one atomic compare-and-swap on the stored refresh hash.
//
// # Expiry
//
// Every session has a fixed absolute expiry and a sliding inactivity expiry that
// never passes it. Expiry is checked lazily at rotation time; no background work is
// needed for correctness.
//
// # Architecture boundaries
//
// This package does NOT interpret access tokens, evaluate permissions, or enforce
// authentication policy. Access tokens are minted through an injected [AccessIssuer].
//
// # What this package must NOT do
//
//   - Import authcore, jwt, or permission (no upward imports).
//   - Store plaintext refresh secrets, IP addresses, or user agents.
//   - Distinguish expired, revoked and unknown sessions to callers.
package session
