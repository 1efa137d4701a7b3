package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/filevault/internal/app"
	"github.com/dharsanguruparan/filevault/internal/config"
	"github.com/dharsanguruparan/filevault/internal/database"
	"github.com/dharsanguruparan/filevault/internal/queue"
)

func main() {
	configPath := flag.String("config", os.Getenv("FILEVAULT_CONFIG"), "path to an optional YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Error("migrate database", "error", err)
		os.Exit(1)
	}

	store, blobs, err := app.ObjectStore(ctx, cfg)
	if err != nil {
		logger.Error("init object store", "error", err)
		os.Exit(1)
	}

	client := asynq.NewClient(app.RedisOpt(cfg))
	defer client.Close()

	srv, err := app.APIServer(cfg, app.PostgresRepositories(pool), store, blobs, queue.NewClient(client, cfg.Worker.MaxRetry), logger)
	if err != nil {
		logger.Error("init api", "error", err)
		os.Exit(1)
	}
	if err := srv.Run(ctx); err != nil {
		logger.Error("api stopped", "error", err)
		os.Exit(1)
	}
}
