// Package flows contains the orchestration behind each Engine operation.
//
// Each flow function (RunLogin, RunRefresh, RunAuthenticate, RunLogout,
// RunLogoutAll) takes a typed dependency struct and returns a result carrying a
// FailureKind. The Engine maps kinds to public errors, audit events and metrics.
//
// # Architecture boundaries
//
// Flows coordinate the session store, token manager and revocation registry.
// They do NOT own any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Emit audit events or metrics directly.
package flows
