package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/config"
	"github.com/MrEthical07/authcore/internal/directory"
	"github.com/MrEthical07/authcore/internal/logging"
	"github.com/MrEthical07/authcore/internal/migrations"
	"github.com/MrEthical07/authcore/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type app struct {
	stdout  io.Writer
	stdin   io.Reader
	envFile string
}

func newRootCmd(stdout io.Writer, stdin io.Reader) *cobra.Command {
	a := &app{stdout: stdout, stdin: stdin}
	cmd := &cobra.Command{
		Use:           "authcore",
		Short:         "Session and access-token service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "optional .env file; environment variables take precedence")

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newMigrateCmd(a))
	cmd.AddCommand(newSweepCmd(a))
	cmd.AddCommand(newHashPasswordCmd(a))
	cmd.AddCommand(newLoadtestCmd(a))
	return cmd
}

// runtime is everything a command needs once configuration has been loaded.
type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	engine  *authcore.Engine
	closers []func() error
}

func (r *runtime) close() {
	if r.engine != nil {
		r.engine.Close()
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
	_ = r.logger.Sync()
}

// bootstrap loads configuration, connects storage and builds the engine.
// withAudit attaches the audit sink.
func (a *app) bootstrap(ctx context.Context, withAudit bool) (*runtime, error) {
	cfg, err := config.Load(a.envFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger}

	engine, err := a.buildEngine(ctx, rt, withAudit)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.engine = engine
	return rt, nil
}

func (a *app) buildEngine(ctx context.Context, rt *runtime, withAudit bool) (*authcore.Engine, error) {
	cfg := rt.cfg

	engineCfg, err := cfg.Engine()
	if err != nil {
		return nil, err
	}
	dir, err := directory.Parse(cfg.Users)
	if err != nil {
		return nil, fmt.Errorf("config: AUTHCORE_USERS: %w", err)
	}
	grants, err := cfg.RoleGrantMap()
	if err != nil {
		return nil, err
	}

	b := authcore.New().
		WithConfig(engineCfg).
		WithLogger(rt.logger).
		WithCredentialVerifier(dir).
		WithSubjectProvider(dir).
		WithPermissions(cfg.PermissionList()).
		WithRoles(grants)

	switch cfg.Storage {
	case config.StorageRedis:
		rdb, err := storage.OpenRedis(ctx, storage.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, rdb.Close)
		b.WithRedis(rdb)
	default:
		db, err := storage.OpenSQL(ctx, cfg.SQLDriver(), cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, db.Close)
		if cfg.Storage == config.StorageSQLite {
			if err := migrations.Apply(ctx, db); err != nil {
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		b.WithSQL(db)
	}

	if withAudit {
		sink, err := a.auditSink(rt)
		if err != nil {
			return nil, err
		}
		b.WithAuditSink(sink)
	}

	if dir.Len() == 0 {
		rt.logger.Warn("no users configured; every login will fail")
	}
	return b.Build()
}

// auditSink writes audit events to the rotating audit file when one is
// configured, otherwise to the service log.
func (a *app) auditSink(rt *runtime) (authcore.AuditSink, error) {
	cfg := rt.cfg
	if cfg.AuditLogFile == "" {
		return authcore.NewZapSink(rt.logger.Named("audit")), nil
	}
	auditLogger, closeFn, err := logging.NewRotating(logging.RotateConfig{
		Path:       cfg.AuditLogFile,
		MaxSizeMB:  cfg.AuditLogMaxSizeMB,
		MaxBackups: cfg.AuditLogMaxBackups,
		MaxAgeDays: cfg.AuditLogMaxAgeDays,
		Compress:   true,
	})
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, closeFn)
	return authcore.NewZapSink(auditLogger), nil
}

var errNoMigrations = errors.New("redis storage has no schema to migrate")
