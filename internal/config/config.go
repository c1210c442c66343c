// Package config loads the authcore server configuration from the environment
// and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/spf13/viper"
)

// Storage backends accepted by STORAGE.
const (
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// Config holds server configuration. Every key is read with the AUTHCORE_ prefix.
type Config struct {
	HTTPAddr string `mapstructure:"AUTHCORE_HTTP_ADDR"`

	// Storage selects the session and blacklist backend: redis, postgres or sqlite.
	Storage       string `mapstructure:"AUTHCORE_STORAGE"`
	RedisAddr     string `mapstructure:"AUTHCORE_REDIS_ADDR"`
	RedisPassword string `mapstructure:"AUTHCORE_REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"AUTHCORE_REDIS_DB"`
	// DatabaseURL is a Postgres DSN or a sqlite file path.
	DatabaseURL string `mapstructure:"AUTHCORE_DATABASE_URL"`

	JWTSigningMethod string `mapstructure:"AUTHCORE_JWT_SIGNING_METHOD"`
	// JWTPrivateKey is inline PEM, a file path, or the raw HMAC secret for hs256.
	JWTPrivateKey string        `mapstructure:"AUTHCORE_JWT_PRIVATE_KEY"`
	JWTPublicKey  string        `mapstructure:"AUTHCORE_JWT_PUBLIC_KEY"`
	JWTIssuer     string        `mapstructure:"AUTHCORE_JWT_ISSUER"`
	JWTAudience   string        `mapstructure:"AUTHCORE_JWT_AUDIENCE"`
	JWTAccessTTL  time.Duration `mapstructure:"AUTHCORE_JWT_ACCESS_TTL"`

	SessionHashSecret    string        `mapstructure:"AUTHCORE_SESSION_HASH_SECRET"`
	SessionShortLifetime time.Duration `mapstructure:"AUTHCORE_SESSION_SHORT_LIFETIME"`
	SessionLongLifetime  time.Duration `mapstructure:"AUTHCORE_SESSION_LONG_LIFETIME"`
	SessionShortInactive time.Duration `mapstructure:"AUTHCORE_SESSION_SHORT_INACTIVITY"`
	SessionLongInactive  time.Duration `mapstructure:"AUTHCORE_SESSION_LONG_INACTIVITY"`
	SweepInterval        time.Duration `mapstructure:"AUTHCORE_SWEEP_INTERVAL"`
	CookieInsecure       bool          `mapstructure:"AUTHCORE_COOKIE_INSECURE"`
	CookiePath           string        `mapstructure:"AUTHCORE_COOKIE_PATH"`
	LatencyHistograms    bool          `mapstructure:"AUTHCORE_LATENCY_HISTOGRAMS"`
	AuditLogFile         string        `mapstructure:"AUTHCORE_AUDIT_LOG_FILE"`
	AuditLogMaxSizeMB    int           `mapstructure:"AUTHCORE_AUDIT_LOG_MAX_SIZE_MB"`
	AuditLogMaxBackups   int           `mapstructure:"AUTHCORE_AUDIT_LOG_MAX_BACKUPS"`
	AuditLogMaxAgeDays   int           `mapstructure:"AUTHCORE_AUDIT_LOG_MAX_AGE_DAYS"`
	AuditBufferSize      int           `mapstructure:"AUTHCORE_AUDIT_BUFFER_SIZE"`
	LogLevel             string        `mapstructure:"AUTHCORE_LOG_LEVEL"`
	LogFormat            string        `mapstructure:"AUTHCORE_LOG_FORMAT"`

	// Users lists static accounts as comma-separated identifier:role:bcrypt-hash entries.
	Users string `mapstructure:"AUTHCORE_USERS"`
	// Permissions is the comma-separated permission catalogue.
	Permissions string `mapstructure:"AUTHCORE_PERMISSIONS"`
	// RoleGrants maps roles to permissions: "creator=project:create|project:publish;admin=admin:users".
	RoleGrants string `mapstructure:"AUTHCORE_ROLE_GRANTS"`
}

// Load reads envFile (".env" when empty) if present, then builds and validates
// Config from the environment. Environment variables override the file.
func Load(envFile string) (*Config, error) {
	v := viper.New()

	if envFile == "" {
		envFile = ".env"
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing file is fine

	v.AutomaticEnv()

	defaults := authcore.DefaultConfig()
	v.SetDefault("AUTHCORE_HTTP_ADDR", ":8080")
	v.SetDefault("AUTHCORE_STORAGE", StorageRedis)
	v.SetDefault("AUTHCORE_REDIS_ADDR", "localhost:6379")
	v.SetDefault("AUTHCORE_REDIS_PASSWORD", "")
	v.SetDefault("AUTHCORE_REDIS_DB", 0)
	v.SetDefault("AUTHCORE_DATABASE_URL", "")
	v.SetDefault("AUTHCORE_JWT_SIGNING_METHOD", defaults.JWT.SigningMethod)
	v.SetDefault("AUTHCORE_JWT_PRIVATE_KEY", "")
	v.SetDefault("AUTHCORE_JWT_PUBLIC_KEY", "")
	v.SetDefault("AUTHCORE_JWT_ISSUER", "authcore")
	v.SetDefault("AUTHCORE_JWT_AUDIENCE", "")
	v.SetDefault("AUTHCORE_JWT_ACCESS_TTL", defaults.JWT.AccessTTL)
	v.SetDefault("AUTHCORE_SESSION_HASH_SECRET", "")
	v.SetDefault("AUTHCORE_SESSION_SHORT_LIFETIME", defaults.Session.ShortLifetime)
	v.SetDefault("AUTHCORE_SESSION_LONG_LIFETIME", defaults.Session.LongLifetime)
	v.SetDefault("AUTHCORE_SESSION_SHORT_INACTIVITY", defaults.Session.ShortInactivity)
	v.SetDefault("AUTHCORE_SESSION_LONG_INACTIVITY", defaults.Session.LongInactivity)
	v.SetDefault("AUTHCORE_SWEEP_INTERVAL", defaults.Sweeper.Interval)
	v.SetDefault("AUTHCORE_COOKIE_INSECURE", false)
	v.SetDefault("AUTHCORE_COOKIE_PATH", defaults.Cookie.Path)
	v.SetDefault("AUTHCORE_LATENCY_HISTOGRAMS", false)
	v.SetDefault("AUTHCORE_AUDIT_LOG_FILE", "")
	v.SetDefault("AUTHCORE_AUDIT_LOG_MAX_SIZE_MB", 100)
	v.SetDefault("AUTHCORE_AUDIT_LOG_MAX_BACKUPS", 10)
	v.SetDefault("AUTHCORE_AUDIT_LOG_MAX_AGE_DAYS", 30)
	v.SetDefault("AUTHCORE_AUDIT_BUFFER_SIZE", defaults.Audit.BufferSize)
	v.SetDefault("AUTHCORE_LOG_LEVEL", "info")
	v.SetDefault("AUTHCORE_LOG_FORMAT", "json")
	v.SetDefault("AUTHCORE_USERS", "")
	v.SetDefault("AUTHCORE_PERMISSIONS", "")
	v.SetDefault("AUTHCORE_ROLE_GRANTS", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: AUTHCORE_HTTP_ADDR must be set")
	}
	switch c.Storage {
	case StorageRedis:
		if c.RedisAddr == "" {
			return errors.New("config: AUTHCORE_REDIS_ADDR must be set for redis storage")
		}
	case StoragePostgres, StorageSQLite:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: AUTHCORE_DATABASE_URL must be set for %s storage", c.Storage)
		}
	default:
		return fmt.Errorf("config: AUTHCORE_STORAGE must be redis, postgres or sqlite, got %q", c.Storage)
	}
	if c.AuditLogMaxSizeMB <= 0 {
		return errors.New("config: AUTHCORE_AUDIT_LOG_MAX_SIZE_MB must be > 0")
	}
	return nil
}

// SQLDriver returns the database/sql driver name for the configured storage, or
// "" for redis.
func (c *Config) SQLDriver() string {
	switch c.Storage {
	case StoragePostgres:
		return "pgx"
	case StorageSQLite:
		return "sqlite"
	default:
		return ""
	}
}

// Engine maps the loaded values onto an authcore.Config. Key material is read
// from disk when the values name files.
func (c *Config) Engine() (authcore.Config, error) {
	cfg := authcore.DefaultConfig()

	method := strings.ToLower(strings.TrimSpace(c.JWTSigningMethod))
	cfg.JWT.SigningMethod = method
	cfg.JWT.Issuer = c.JWTIssuer
	cfg.JWT.Audience = c.JWTAudience
	cfg.JWT.AccessTTL = c.JWTAccessTTL

	switch method {
	case "hs256":
		if strings.TrimSpace(c.JWTPrivateKey) == "" {
			return authcore.Config{}, errors.New("config: AUTHCORE_JWT_PRIVATE_KEY must be set")
		}
		cfg.JWT.PrivateKey = []byte(c.JWTPrivateKey)
	default:
		priv, err := loadPEM(c.JWTPrivateKey)
		if err != nil {
			return authcore.Config{}, fmt.Errorf("config: AUTHCORE_JWT_PRIVATE_KEY: %w", err)
		}
		pub, err := loadPEM(c.JWTPublicKey)
		if err != nil {
			return authcore.Config{}, fmt.Errorf("config: AUTHCORE_JWT_PUBLIC_KEY: %w", err)
		}
		cfg.JWT.PrivateKey = priv
		cfg.JWT.PublicKey = pub
	}

	cfg.Session.HashSecret = []byte(c.SessionHashSecret)
	cfg.Session.ShortLifetime = c.SessionShortLifetime
	cfg.Session.LongLifetime = c.SessionLongLifetime
	cfg.Session.ShortInactivity = c.SessionShortInactive
	cfg.Session.LongInactivity = c.SessionLongInactive

	cfg.Cookie.Insecure = c.CookieInsecure
	cfg.Cookie.Path = c.CookiePath
	cfg.Audit.BufferSize = c.AuditBufferSize
	cfg.Metrics.EnableLatencyHistograms = c.LatencyHistograms
	cfg.Sweeper.Interval = c.SweepInterval

	if err := cfg.Validate(); err != nil {
		return authcore.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// PermissionList splits Permissions.
func (c *Config) PermissionList() []string {
	return splitList(c.Permissions, ",")
}

// RoleGrantMap parses RoleGrants.
func (c *Config) RoleGrantMap() (map[string][]string, error) {
	out := make(map[string][]string)
	for _, entry := range splitList(c.RoleGrants, ";") {
		role, perms, ok := strings.Cut(entry, "=")
		role = strings.TrimSpace(role)
		if !ok || role == "" {
			return nil, fmt.Errorf("config: malformed role grant %q", entry)
		}
		out[role] = splitList(perms, "|")
	}
	return out, nil
}

func splitList(s, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadPEM returns s unchanged when it is inline PEM, otherwise the content of
// the file it names.
func loadPEM(s string) ([]byte, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, errors.New("key is empty")
	}
	if strings.HasPrefix(trimmed, "-----BEGIN") {
		return []byte(s), nil
	}
	return os.ReadFile(trimmed)
}
