package jwt

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

type fakeRevocations struct {
	mu      sync.Mutex
	revoked map[string]bool
	err     error
}

func (f *fakeRevocations) Contains(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.revoked[jti], nil
}

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, rev RevocationChecker, clock *fakeClock) (*Manager, ed25519.PrivateKey) {
	t.Helper()
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "authcore",
		Audience:      "api",
	}, rev, clock.Now)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m, priv
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m, _ := newTestManager(t, &fakeRevocations{}, clock)

	issued, err := m.Issue("user-1", "session-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.JTI == "" {
		t.Fatal("expected jti")
	}
	if got := issued.ExpiresAt.Sub(issued.IssuedAt); got != 15*time.Minute {
		t.Fatalf("expected 15m lifetime, got %s", got)
	}

	claims, err := m.Verify(context.Background(), issued.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.SessionID != "session-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.JTI != issued.JTI || !claims.ExpiresAt.Equal(issued.ExpiresAt) {
		t.Fatalf("claims do not match issuance: %+v vs %+v", claims, issued)
	}
}

func TestIssueJTIUnique(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m, _ := newTestManager(t, nil, clock)

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		issued, err := m.Issue("user-1", "session-1")
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if _, dup := seen[issued.JTI]; dup {
			t.Fatalf("duplicate jti %s", issued.JTI)
		}
		seen[issued.JTI] = struct{}{}
	}
}

func TestVerifyRejectsRevokedJTI(t *testing.T) {
	rev := &fakeRevocations{revoked: map[string]bool{}}
	clock := &fakeClock{now: time.Now()}
	m, _ := newTestManager(t, rev, clock)

	issued, err := m.Issue("user-1", "session-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	rev.mu.Lock()
	rev.revoked[issued.JTI] = true
	rev.mu.Unlock()

	if _, err := m.Verify(context.Background(), issued.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for revoked jti, got %v", err)
	}
}

func TestVerifyPropagatesRevocationLookupFailure(t *testing.T) {
	backendDown := errors.New("backend down")
	rev := &fakeRevocations{err: backendDown}
	clock := &fakeClock{now: time.Now()}
	m, _ := newTestManager(t, rev, clock)

	issued, err := m.Issue("user-1", "session-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	_, err = m.Verify(context.Background(), issued.Token)
	if !errors.Is(err, backendDown) {
		t.Fatalf("expected backend error to propagate, got %v", err)
	}
	if errors.Is(err, ErrInvalidToken) {
		t.Fatal("storage failure must not be reported as an invalid token")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m, _ := newTestManager(t, nil, clock)

	issued, err := m.Issue("user-1", "session-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	clock.Advance(15*time.Minute + time.Second)

	if _, err := m.Verify(context.Background(), issued.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestVerifyRejectsTamperedAndMalformed(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m, _ := newTestManager(t, nil, clock)

	issued, err := m.Issue("user-1", "session-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	tampered := []byte(issued.Token)
	tampered[len(tampered)-2] ^= 0x01

	for _, in := range []string{"", "not.a.jwt", string(tampered), issued.Token + "x"} {
		if _, err := m.Verify(context.Background(), in); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("Verify(%q) expected ErrInvalidToken, got %v", in, err)
		}
	}
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m, _ := newTestManager(t, nil, clock)

	claims := AccessClaims{SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		ID:        "j1",
		Issuer:    "authcore",
		Audience:  gjwt.ClaimStrings{"api"},
		IssuedAt:  gjwt.NewNumericDate(clock.Now()),
		ExpiresAt: gjwt.NewNumericDate(clock.Now().Add(time.Minute)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token, err := tok.SignedString([]byte("secret-secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected wrong algorithm to be rejected, got %v", err)
	}
}

func TestVerifyRequiresBindingClaims(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m, priv := newTestManager(t, nil, clock)

	base := gjwt.RegisteredClaims{
		Issuer:    "authcore",
		Audience:  gjwt.ClaimStrings{"api"},
		IssuedAt:  gjwt.NewNumericDate(clock.Now()),
		ExpiresAt: gjwt.NewNumericDate(clock.Now().Add(time.Minute)),
	}

	cases := map[string]AccessClaims{
		"missing sid": {RegisteredClaims: withSubjectAndID(base, "u1", "j1")},
		"missing sub": {SID: "s1", RegisteredClaims: withSubjectAndID(base, "", "j1")},
		"missing jti": {SID: "s1", RegisteredClaims: withSubjectAndID(base, "u1", "")},
	}
	for name, claims := range cases {
		token, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims).SignedString(priv)
		if err != nil {
			t.Fatalf("%s: sign: %v", name, err)
		}
		if _, err := m.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func withSubjectAndID(c gjwt.RegisteredClaims, sub, id string) gjwt.RegisteredClaims {
	c.Subject = sub
	c.ID = id
	return c
}

func TestVerifyIssuerAudience(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m, priv := newTestManager(t, nil, clock)

	wrongIssuer := AccessClaims{SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		ID:        "j1",
		Issuer:    "other",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(clock.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(clock.Now()),
	}}
	badIssuer, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, wrongIssuer).SignedString(priv)
	if _, err := m.Verify(context.Background(), badIssuer); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	wrongAudience := wrongIssuer
	wrongAudience.Issuer = "authcore"
	wrongAudience.Audience = gjwt.ClaimStrings{"other-api"}
	badAudience, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, wrongAudience).SignedString(priv)
	if _, err := m.Verify(context.Background(), badAudience); err == nil {
		t.Fatal("expected wrong audience to fail")
	}
}

func TestVerifyUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys: map[string][]byte{
			"k1": pub1,
		},
	}, nil, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	good, err := m.Issue("u1", "s1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(context.Background(), good.Token); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	m2, _ := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub2, VerifyKeys: map[string][]byte{"k2": pub2}}, nil, nil)
	if _, err := m2.Verify(context.Background(), good.Token); err == nil {
		t.Fatal("expected verify failure with mismatched key set")
	}
}

func TestNewManagerValidation(t *testing.T) {
	pub, _ := newEdKeys(t)
	cases := map[string]Config{
		"zero ttl":       {SigningMethod: MethodEd25519, PublicKey: pub},
		"hours ttl":      {AccessTTL: 2 * time.Hour, SigningMethod: MethodEd25519, PublicKey: pub},
		"short hmac key": {AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		"no public key":  {AccessTTL: time.Minute, SigningMethod: MethodEd25519},
		"unknown method": {AccessTTL: time.Minute, SigningMethod: "rs256", PublicKey: pub},
		"big leeway":     {AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub, Leeway: time.Hour},
	}
	for name, cfg := range cases {
		if _, err := NewManager(cfg, nil, nil); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestHS256RoundTrip(t *testing.T) {
	m, err := NewManager(Config{
		AccessTTL:     5 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
	}, nil, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	issued, err := m.Issue("u1", "s1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Verify(context.Background(), issued.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "u1" || claims.SessionID != "s1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestVerifyAcceptedUntilIncludesLeeway(t *testing.T) {
	clock := &fakeClock{now: time.Now().Truncate(time.Second)}
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Leeway:        30 * time.Second,
	}, nil, clock.Now)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if m.Leeway() != 30*time.Second {
		t.Fatalf("unexpected leeway %s", m.Leeway())
	}

	issued, err := m.Issue("u1", "s1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	clock.Advance(time.Minute + 10*time.Second)
	claims, err := m.Verify(context.Background(), issued.Token)
	if err != nil {
		t.Fatalf("token inside leeway rejected: %v", err)
	}
	if want := issued.ExpiresAt.Add(30 * time.Second); !claims.AcceptedUntil.Equal(want) {
		t.Fatalf("AcceptedUntil = %s, want %s", claims.AcceptedUntil, want)
	}

	clock.Advance(30 * time.Second)
	if _, err := m.Verify(context.Background(), issued.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected rejection past AcceptedUntil, got %v", err)
	}
}
