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
	"github.com/dharsanguruparan/filevault/internal/worker"
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

	store, _, err := app.ObjectStore(ctx, cfg)
	if err != nil {
		logger.Error("init object store", "error", err)
		os.Exit(1)
	}

	job := app.ExtractJob(cfg, app.PostgresRepositories(pool), store, logger)
	processor := worker.NewProcessor(job, logger.With("component", "worker"))

	server := asynq.NewServer(app.RedisOpt(cfg), asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Logger:      &asynqLogger{logger.With("component", "asynq")},
	})

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	logger.Info("worker started", "concurrency", cfg.Worker.Concurrency)
	if err := server.Run(processor.Handler()); err != nil {
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}
