package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/neiandria/clinic-scheduling/internal/config"
	"github.com/neiandria/clinic-scheduling/internal/db"
	"github.com/neiandria/clinic-scheduling/internal/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "clinicctl",
		Short:        "Clinic scheduling admin tool",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(calendarCmd())
	rootCmd.AddCommand(slotsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// connect loads config and opens the Postgres pool every database command
// needs. The caller closes the pool.
func connect(ctx context.Context) (config.Config, *pgxpool.Pool, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, nil, err
	}
	if !cfg.UsePostgres() {
		return cfg, nil, nil, fmt.Errorf("POSTGRES_DSN is required")
	}

	logger := logging.New(cfg.Env)

	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	if err != nil {
		return cfg, nil, nil, err
	}
	return cfg, pool, logger, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, pool, logger, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			defer func() { _ = logger.Sync() }()

			migrator, err := db.NewMigrator(pool, logger)
			if err != nil {
				return err
			}
			defer migrator.Close()

			if err := migrator.Up(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			v, err := migrator.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Schema at version %d.\n", v)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, pool, logger, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			defer func() { _ = logger.Sync() }()

			migrator, err := db.NewMigrator(pool, logger)
			if err != nil {
				return err
			}
			defer migrator.Close()

			return migrator.Status(ctx)
		},
	})

	return cmd
}
