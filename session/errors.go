package session

import "errors"

// ErrSessionInvalid is the single error callers see for an unknown, expired,
// revoked or reused refresh token.
var ErrSessionInvalid = errors.New("session invalid")

// ErrReuseDetected is joined with ErrSessionInvalid when the presented refresh
// token did not match the live session's current hash. The session has been revoked.
var ErrReuseDetected = errors.New("refresh token reuse detected")

// ErrStorageUnavailable wraps backend failures.
var ErrStorageUnavailable = errors.New("session storage unavailable")

// ErrDeviceOwnership is returned when a device id belongs to another user.
var ErrDeviceOwnership = errors.New("device belongs to another user")

// Repository-level outcomes. Store collapses the first four into ErrSessionInvalid.
var (
	ErrNotFound     = errors.New("session not found")
	ErrExpired      = errors.New("session expired")
	ErrRevoked      = errors.New("session revoked")
	ErrHashMismatch = errors.New("refresh hash mismatch")
	ErrCorrupt      = errors.New("session record corrupt")
)
