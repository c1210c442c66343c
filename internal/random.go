package internal

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// SecretSize is the raw length of a refresh secret.
const SecretSize = 32

// NewSessionID returns a time-ordered, crypto-random session identifier.
func NewSessionID(now time.Time) (ulid.ULID, error) {
	return ulid.New(ulid.Timestamp(now), rand.Reader)
}

// NewSecret returns SecretSize bytes from crypto/rand.
func NewSecret() ([SecretSize]byte, error) {
	var secret [SecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}
