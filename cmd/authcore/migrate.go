package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/internal/config"
	"github.com/MrEthical07/authcore/internal/migrations"
	"github.com/MrEthical07/authcore/internal/storage"
	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the SQL schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.migrate(cmd.Context(), "up")
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (Postgres only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.migrate(cmd.Context(), "down")
		},
	})
	return cmd
}

func (a *app) migrate(ctx context.Context, direction string) error {
	cfg, err := config.Load(a.envFile)
	if err != nil {
		return err
	}

	switch cfg.Storage {
	case config.StoragePostgres:
		if err := migrations.Run(cfg.DatabaseURL, direction); err != nil {
			return err
		}
	case config.StorageSQLite:
		if direction != "up" {
			return errors.New("sqlite storage only supports migrate up")
		}
		db, err := storage.OpenSQL(ctx, cfg.SQLDriver(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := migrations.Apply(ctx, db); err != nil {
			return err
		}
	default:
		return errNoMigrations
	}

	fmt.Fprintf(a.stdout, "migrate %s: ok\n", direction)
	return nil
}
