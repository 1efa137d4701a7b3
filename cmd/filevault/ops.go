package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/filevault/internal/app"
	"github.com/dharsanguruparan/filevault/internal/config"
	"github.com/dharsanguruparan/filevault/internal/database"
	"github.com/dharsanguruparan/filevault/internal/processing"
	"github.com/dharsanguruparan/filevault/internal/users"
)

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, app.NewLogger(cfg), nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			pool, err := database.Connect(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()
			return database.Migrate(ctx, pool, logger)
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the IT department and demo admin/manager/user accounts if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			pool, err := database.Connect(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()
			repos := app.PostgresRepositories(pool)
			return users.Seed(ctx, repos.Users, repos.Departments, users.DefaultSeedAccounts(), logger)
		},
	}
}

func newServeCmd() *cobra.Command {
	var memory bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API with an in-process extraction pool",
		Long: `serve runs the HTTP API and extracts metadata on an in-process worker pool instead of
Redis. With --memory, files, users and objects live in process memory and the demo
accounts are seeded on start.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger, memory)
		},
	}
	cmd.Flags().BoolVar(&memory, "memory", false, "Keep all state in memory (no Postgres or S3)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, memory bool) error {
	var repos app.Repositories
	if memory {
		cfg.Storage.Backend = "memory"
		repos = app.MemoryRepositories()
		if err := users.Seed(ctx, repos.Users, repos.Departments, users.DefaultSeedAccounts(), logger); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	} else {
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool, logger); err != nil {
			return err
		}
		repos = app.PostgresRepositories(pool)
	}

	store, blobs, err := app.ObjectStore(ctx, cfg)
	if err != nil {
		return err
	}

	pool := processing.New(app.ExtractJob(cfg, repos, store, logger), cfg.Worker.Concurrency, logger.With("component", "processing"))
	pool.Start(ctx)
	defer pool.Stop()

	srv, err := app.APIServer(cfg, repos, store, blobs, pool, logger)
	if err != nil {
		return err
	}
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
