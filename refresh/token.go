package refresh

import (
	"encoding/base64"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/oklog/ulid/v2"
)

// ErrMalformed is returned for any token that does not decode to the expected layout.
var ErrMalformed = errors.New("malformed refresh token")

const rawSize = 16 + internal.SecretSize

// Token is a decoded refresh token.
type Token struct {
	SessionID ulid.ULID
	Secret    [internal.SecretSize]byte
}

// New returns a token with a fresh secret bound to sessionID.
func New(sessionID ulid.ULID) (Token, error) {
	secret, err := internal.NewSecret()
	if err != nil {
		return Token{}, err
	}
	return Token{SessionID: sessionID, Secret: secret}, nil
}

// NewSession allocates a new session ID at now and a matching token.
func NewSession(now time.Time) (Token, error) {
	sid, err := internal.NewSessionID(now)
	if err != nil {
		return Token{}, err
	}
	return New(sid)
}

// Rotate returns a token for the same session with a new secret.
func (t Token) Rotate() (Token, error) {
	return New(t.SessionID)
}

// Encode returns the wire form of t.
func (t Token) Encode() string {
	var raw [rawSize]byte
	copy(raw[:16], t.SessionID[:])
	copy(raw[16:], t.Secret[:])
	return base64.RawURLEncoding.EncodeToString(raw[:])
}

// Decode parses the wire form produced by Encode.
func Decode(s string) (Token, error) {
	var t Token
	if base64.RawURLEncoding.DecodedLen(len(s)) != rawSize {
		return t, ErrMalformed
	}

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(raw) != rawSize {
		return t, ErrMalformed
	}

	copy(t.SessionID[:], raw[:16])
	copy(t.Secret[:], raw[16:])
	if t.SessionID == (ulid.ULID{}) {
		return Token{}, ErrMalformed
	}
	return t, nil
}
