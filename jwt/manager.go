package jwt

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned by Verify for malformed, forged, expired or revoked tokens.
var ErrInvalidToken = errors.New("invalid access token")

// MaxAccessTTL bounds access token lifetime.
const MaxAccessTTL = time.Hour

// SigningMethod selects the JWS algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256.
	MethodHS256 SigningMethod = "hs256"
)

// Config configures a Manager.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

// RevocationChecker reports whether a jti has been revoked before its natural expiry.
type RevocationChecker interface {
	Contains(ctx context.Context, jti string) (bool, error)
}

// Manager issues and verifies access tokens.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	config      Config
	method      jwt.SigningMethod
	signKey     any
	verifyKey   any
	keysByKID   map[string]any
	revocations RevocationChecker
	now         func() time.Time
}

// AccessClaims is the JWT payload. Subject carries the user id and ID the jti.
type AccessClaims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// Issued is the result of Issue.
type Issued struct {
	Token     string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Claims is the verified content of an access token.
type Claims struct {
	UserID    string
	SessionID string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
	// AcceptedUntil is ExpiresAt plus the verification leeway: the last instant
	// Verify still accepts the token. Revocations must outlive it.
	AcceptedUntil time.Time
}

// NewManager validates cfg and returns a Manager. revocations may be nil, in which
// case Verify skips the revocation lookup. now defaults to time.Now.
func NewManager(cfg Config, revocations RevocationChecker, now func() time.Time) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.AccessTTL > MaxAccessTTL {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	if now == nil {
		now = time.Now
	}

	m := &Manager{config: cfg, revocations: revocations, now: now}
	if err := m.loadKeys(); err != nil {
		return nil, err
	}
	if cfg.KeyID != "" && len(m.keysByKID) > 0 {
		if _, ok := m.keysByKID[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}
	return m, nil
}

// loadKeys parses every configured key once so Issue and Verify never decode PEM.
func (m *Manager) loadKeys() error {
	cfg := m.config
	var decode func([]byte) (any, error)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return errors.New("hs256 requires a key of at least 32 bytes")
		}
		m.method = jwt.SigningMethodHS256
		m.signKey = cfg.PrivateKey
		m.verifyKey = cfg.PrivateKey
		decode = func(b []byte) (any, error) { return b, nil }
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			key, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return err
			}
			m.signKey = key
		}
		if len(cfg.PublicKey) > 0 {
			key, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return err
			}
			m.verifyKey = key
		}
		if len(cfg.VerifyKeys) == 0 && m.verifyKey == nil {
			return errors.New("ed25519 requires public key or verify key set")
		}
		decode = func(b []byte) (any, error) { return parseEdPublicKey(b) }
	default:
		return errors.New("unsupported signing method")
	}

	if len(cfg.VerifyKeys) == 0 {
		return nil
	}
	m.keysByKID = make(map[string]any, len(cfg.VerifyKeys))
	for kid, raw := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return errors.New("verify key map contains empty kid")
		}
		key, err := decode(raw)
		if err != nil {
			return fmt.Errorf("invalid verify key for kid %q: %w", kid, err)
		}
		m.keysByKID[kid] = key
	}
	return nil
}

// TTL returns the configured access token lifetime.
func (j *Manager) TTL() time.Duration {
	return j.config.AccessTTL
}

// Leeway returns the clock skew tolerated past exp.
func (j *Manager) Leeway() time.Duration {
	return j.config.Leeway
}

// Issue signs an access token bound to userID and sessionID with a fresh random jti.
func (j *Manager) Issue(userID, sessionID string) (*Issued, error) {
	if userID == "" || sessionID == "" {
		return nil, errors.New("user id and session id are required")
	}

	now := j.now()
	claims := AccessClaims{
		SID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	if j.signKey == nil {
		return nil, errors.New("manager has no signing key")
	}
	token := jwt.NewWithClaims(j.method, claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signed, err := token.SignedString(j.signKey)
	if err != nil {
		return nil, err
	}

	return &Issued{
		Token:     signed,
		JTI:       claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Verify parses tokenStr and rejects it unless structure, signature, expiry and
// revocation status all check out. Decoding failures wrap ErrInvalidToken; a
// failing revocation lookup is returned as-is.
func (j *Manager) Verify(ctx context.Context, tokenStr string) (*Claims, error) {
	claims, err := j.parse(tokenStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if j.revocations != nil {
		revoked, err := j.revocations.Contains(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("revocation lookup: %w", err)
		}
		if revoked {
			return nil, fmt.Errorf("%w: token revoked", ErrInvalidToken)
		}
	}

	return &Claims{
		UserID:    claims.Subject,
		SessionID: claims.SID,
		JTI:       claims.ID,
		IssuedAt:      claims.IssuedAt.Time,
		ExpiresAt:     claims.ExpiresAt.Time,
		AcceptedUntil: claims.ExpiresAt.Time.Add(j.config.Leeway),
	}, nil
}

func (j *Manager) parse(tokenStr string) (*AccessClaims, error) {
	if tokenStr == "" {
		return nil, errors.New("empty token")
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(j.now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, j.keyFor)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" || claims.SID == "" || claims.ID == "" {
		return nil, errors.New("missing subject, session or jti")
	}
	if claims.IssuedAt == nil {
		return nil, errors.New("missing iat")
	}
	if claims.IssuedAt.Time.After(j.now().Add(j.config.MaxFutureIAT)) {
		return nil, errors.New("token iat too far in the future")
	}

	return claims, nil
}

// keyFor picks the verification key. With a kid map or a configured KeyID the
// token header must name a known kid.
func (j *Manager) keyFor(t *jwt.Token) (any, error) {
	if t.Method.Alg() != j.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	if j.keysByKID == nil && j.config.KeyID == "" {
		return j.verifyKey, nil
	}

	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("missing kid")
	}
	if j.keysByKID != nil {
		if key, ok := j.keysByKID[kid]; ok {
			return key, nil
		}
		return nil, errors.New("unknown kid")
	}
	if kid != j.config.KeyID {
		return nil, errors.New("unknown kid")
	}
	return j.verifyKey, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
