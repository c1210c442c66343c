package authcore

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
)

// Config is the engine configuration.
//
// Config instances are intended to be configured during initialization and then
// treated as immutable.
type Config struct {
	JWT       JWTConfig
	Session   SessionConfig
	Blacklist BlacklistConfig
	Cookie    CookieConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Sweeper   SweeperConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access tokens.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures refresh sessions.
type SessionConfig struct {
	RedisPrefix     string
	ShortLifetime   time.Duration
	LongLifetime    time.Duration
	ShortInactivity time.Duration
	LongInactivity  time.Duration
	// HashSecret keys refresh, IP and user-agent digests. At least 32 bytes.
	HashSecret []byte
}

/*
====================================
BLACKLIST CONFIG
====================================
*/

// BlacklistConfig configures the jti revocation registry.
type BlacklistConfig struct {
	RedisPrefix string
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig describes the refresh-token cookie written by the HTTP adapters.
type CookieConfig struct {
	Name   string
	Path   string
	Domain string
	// Insecure drops the Secure attribute. Local development only.
	Insecure bool
}

/*
====================================
AUDIT / METRICS / SWEEPER
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// SweeperConfig controls background deletion of dead rows. Interval 0 disables it.
type SweeperConfig struct {
	Interval time.Duration
}

// DefaultConfig returns a configuration with production defaults. Keys and the
// hash secret must still be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: string(jwt.MethodEd25519),
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix:     "as",
			ShortLifetime:   24 * time.Hour,
			LongLifetime:    30 * 24 * time.Hour,
			ShortInactivity: 2 * time.Hour,
			LongInactivity:  7 * 24 * time.Hour,
		},
		Blacklist: BlacklistConfig{
			RedisPrefix: "abl",
		},
		Cookie: CookieConfig{
			Name: "refresh_token",
			Path: "/auth",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		Sweeper: SweeperConfig{
			Interval: 10 * time.Minute,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.Session.HashSecret = cloneBytes(cfg.Session.HashSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c *Config) sessionConfig() session.Config {
	return session.Config{
		ShortLifetime:   c.Session.ShortLifetime,
		LongLifetime:    c.Session.LongLifetime,
		ShortInactivity: c.Session.ShortInactivity,
		LongInactivity:  c.Session.LongInactivity,
		HashSecret:      c.Session.HashSecret,
	}
}

func (c *Config) jwtConfig() jwt.Config {
	return jwt.Config{
		AccessTTL:     c.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(c.JWT.SigningMethod),
		PrivateKey:    cloneBytes(c.JWT.PrivateKey),
		PublicKey:     cloneBytes(c.JWT.PublicKey),
		Issuer:        c.JWT.Issuer,
		Audience:      c.JWT.Audience,
		Leeway:        c.JWT.Leeway,
		KeyID:         c.JWT.KeyID,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.AccessTTL > jwt.MaxAccessTTL {
		return errors.New("JWT AccessTTL must be <= 1h")
	}
	switch jwt.SigningMethod(c.JWT.SigningMethod) {
	case jwt.MethodEd25519, jwt.MethodHS256:
	default:
		return errors.New("JWT SigningMethod must be ed25519 or hs256")
	}
	if len(c.JWT.PrivateKey) == 0 {
		return errors.New("JWT PrivateKey must be provided")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Session
	if err := c.sessionConfig().Validate(); err != nil {
		return errors.New("Session: " + err.Error())
	}
	if len(c.Session.HashSecret) < 32 {
		return errors.New("Session HashSecret must be at least 32 bytes")
	}
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if strings.TrimSpace(c.Blacklist.RedisPrefix) == "" {
		return errors.New("Blacklist RedisPrefix must not be empty")
	}
	if c.Blacklist.RedisPrefix == c.Session.RedisPrefix {
		return errors.New("Blacklist RedisPrefix must differ from Session RedisPrefix")
	}

	// Cookie
	if c.Cookie.Name == "" || !isCookieToken(c.Cookie.Name) {
		return errors.New("Cookie Name must be a valid cookie token")
	}
	if !strings.HasPrefix(c.Cookie.Path, "/") || c.Cookie.Path == "/" {
		return errors.New("Cookie Path must be an absolute path narrower than /")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Sweeper
	if c.Sweeper.Interval < 0 {
		return errors.New("Sweeper Interval must be >= 0")
	}
	if c.Sweeper.Interval > 0 && c.Sweeper.Interval < time.Second {
		return errors.New("Sweeper Interval must be >= 1s")
	}

	return nil
}

func isCookieToken(name string) bool {
	c := &http.Cookie{Name: name, Value: "x"}
	return c.Valid() == nil
}
