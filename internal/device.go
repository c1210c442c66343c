package internal

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const minHashSecretSize = 32

// Hasher derives independent HMAC keys from one deployment secret so refresh
// secrets, IPs and user agents are never hashed under the same key.
type Hasher struct {
	refreshKey []byte
	ipKey      []byte
	uaKey      []byte
}

// NewHasher expands secret into per-purpose keys with HKDF-SHA256.
func NewHasher(secret []byte) (*Hasher, error) {
	if len(secret) < minHashSecretSize {
		return nil, errors.New("hash secret must be at least 32 bytes")
	}

	h := &Hasher{}
	for _, sub := range []struct {
		info string
		dst  *[]byte
	}{
		{"authcore/refresh", &h.refreshKey},
		{"authcore/ip", &h.ipKey},
		{"authcore/ua", &h.uaKey},
	} {
		key := make([]byte, 32)
		if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(sub.info)), key); err != nil {
			return nil, err
		}
		*sub.dst = key
	}
	return h, nil
}

// RefreshHash returns the keyed digest stored in place of a refresh secret.
func (h *Hasher) RefreshHash(secret [SecretSize]byte) [32]byte {
	return sum(h.refreshKey, secret[:])
}

// IPHash returns the hex keyed digest of an IP address, or "" when ip is empty.
func (h *Hasher) IPHash(ip string) string {
	if ip == "" {
		return ""
	}
	d := sum(h.ipKey, []byte(ip))
	return hex.EncodeToString(d[:])
}

// UserAgentHash returns the hex keyed digest of a user agent, or "" when ua is empty.
func (h *Hasher) UserAgentHash(ua string) string {
	if ua == "" {
		return ""
	}
	d := sum(h.uaKey, []byte(ua))
	return hex.EncodeToString(d[:])
}

func sum(key, data []byte) [32]byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}
