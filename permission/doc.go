// Package permission provides the closed role enumeration, the permission set type,
// and the pure authorization evaluator used by authcore guard checks.
//
// # Normalization
//
// Raw role and permission strings coming from a user store are parsed once at the
// boundary ([ParseRole], [Registry.Normalize]). [Evaluate] only ever sees canonical
// values and never re-parses or compares strings loosely.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O. [Evaluate] returns a
// tagged [Result]; mapping a decision to an error or HTTP status is the caller's job.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import authcore, jwt, or session.
//   - See tokens, cookies, or request headers.
package permission
