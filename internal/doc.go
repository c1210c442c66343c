// Package internal contains helper utilities that are intentionally private to authcore,
// including random identifier generation and keyed fingerprint hashing.
//
// # Sub-packages
//
//   - audit: async event dispatch primitives shared by the engine
//   - flows: pure-function flow orchestrators for every Engine operation
//   - migrations: embedded SQL schema and golang-migrate runner
//   - config: environment-driven runtime config for the authcore binary
//   - logging: zap logger construction and lumberjack rotation
//   - storage: SQL and Redis connection setup
//   - directory: static bcrypt user directory
//   - httpapi: gorilla/mux HTTP surface over the Engine
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
