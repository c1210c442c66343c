package authcore

import (
	"errors"
	"time"

	"github.com/MrEthical07/authcore/blacklist"
	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/session"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	db     *sqlx.DB

	sessionRepo session.Repository
	revocations blacklist.Registry

	permissions []string
	roles       map[string][]string

	credentials  CredentialVerifier
	subjects     SubjectProvider
	auditSink    AuditSink
	logger       *zap.Logger
	now          func() time.Time
	reuseHandler ReuseHandler

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis stores sessions and revoked jtis in Redis.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSQL stores sessions and revoked jtis in the auth_* tables of db. Run the
// migrations first.
func (b *Builder) WithSQL(db *sqlx.DB) *Builder {
	b.db = db
	return b
}

// WithSessionRepository overrides the session backend chosen by WithRedis/WithSQL.
func (b *Builder) WithSessionRepository(repo session.Repository) *Builder {
	b.sessionRepo = repo
	return b
}

// WithBlacklist overrides the revocation backend chosen by WithRedis/WithSQL.
func (b *Builder) WithBlacklist(reg blacklist.Registry) *Builder {
	b.revocations = reg
	return b
}

// WithPermissions registers the permission catalogue. Subject permissions outside
// it are dropped during normalization.
func (b *Builder) WithPermissions(perms []string) *Builder {
	b.permissions = perms
	return b
}

// WithRoles sets the default grants of each role, keyed by role name.
func (b *Builder) WithRoles(r map[string][]string) *Builder {
	b.roles = r
	return b
}

// WithCredentialVerifier sets the collaborator used by Login.
func (b *Builder) WithCredentialVerifier(v CredentialVerifier) *Builder {
	b.credentials = v
	return b
}

// WithSubjectProvider sets where role and permission data comes from. Without
// one, subjects carry only their id.
func (b *Builder) WithSubjectProvider(p SubjectProvider) *Builder {
	b.subjects = p
	return b
}

// WithAuditSink sets the audit sink and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithLogger sets the engine logger. Defaults to zap.NewNop.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now in every component.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithReuseHandler registers a callback for refresh-token reuse.
func (b *Builder) WithReuseHandler(h ReuseHandler) *Builder {
	b.reuseHandler = h
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the guard latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// -------- PERSISTENCE --------
	repo := b.sessionRepo
	revocations := b.revocations
	switch {
	case b.redis != nil:
		if repo == nil {
			repo = session.NewRedisRepository(b.redis, cfg.Session.RedisPrefix)
		}
		if revocations == nil {
			revocations = blacklist.NewRedisRegistry(b.redis, cfg.Blacklist.RedisPrefix, now)
		}
	case b.db != nil:
		if repo == nil {
			repo = session.NewSQLRepository(b.db)
		}
		if revocations == nil {
			revocations = blacklist.NewSQLRegistry(b.db, now)
		}
	}
	if repo == nil || revocations == nil {
		return nil, errors.New("persistence required: use WithRedis or WithSQL")
	}

	// -------- PERMISSION REGISTRY --------
	registry := permission.NewRegistry()
	for _, p := range b.permissions {
		if _, err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	registry.Freeze()

	// -------- ROLE MANAGER --------
	roleManager := permission.NewRoleManager(registry)
	for roleName, permList := range b.roles {
		role, err := permission.ParseRole(roleName)
		if err != nil {
			return nil, errors.New("unknown role " + roleName)
		}
		if err := roleManager.RegisterRole(role, permList); err != nil {
			return nil, err
		}
	}
	roleManager.Freeze()

	// -------- TOKENS --------
	jm, err := jwt.NewManager(cfg.jwtConfig(), revocations, now)
	if err != nil {
		return nil, err
	}

	issuer := session.AccessIssuerFunc(func(userID, sessionID string) (session.AccessToken, error) {
		issued, err := jm.Issue(userID, sessionID)
		if err != nil {
			return session.AccessToken{}, err
		}
		return session.AccessToken{Token: issued.Token, JTI: issued.JTI, ExpiresAt: issued.ExpiresAt}, nil
	})

	store, err := session.NewStore(repo, issuer, cfg.sessionConfig(), now)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cloneConfig(cfg),
		logger:       logger,
		now:          now,
		registry:     registry,
		roleManager:  roleManager,
		sessions:     store,
		revocations:  revocations,
		jwtManager:   jm,
		credentials:  b.credentials,
		subjects:     b.subjects,
		reuseHandler: b.reuseHandler,
		metrics:      NewMetrics(cfg.Metrics),
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Critical:   []string{auditEventRefreshReuseDetected},
	}, b.auditSink, logger)
	engine.flows = engine.buildFlows()

	b.built = true

	return engine, nil
}
