// Package app assembles the services shared by the api, worker and CLI
// binaries from a loaded Config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/filevault/internal/admission"
	"github.com/dharsanguruparan/filevault/internal/api"
	"github.com/dharsanguruparan/filevault/internal/auth"
	"github.com/dharsanguruparan/filevault/internal/catalog"
	"github.com/dharsanguruparan/filevault/internal/config"
	"github.com/dharsanguruparan/filevault/internal/extract"
	"github.com/dharsanguruparan/filevault/internal/queue"
	"github.com/dharsanguruparan/filevault/internal/repository"
	"github.com/dharsanguruparan/filevault/internal/s3storage"
	"github.com/dharsanguruparan/filevault/internal/signing"
	"github.com/dharsanguruparan/filevault/internal/storage"
	"github.com/dharsanguruparan/filevault/internal/users"
)

// NewLogger builds the process logger and installs it as the slog default.
func NewLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// Repositories groups the persistence ports.
type Repositories struct {
	Files       repository.FileRepository
	Users       repository.UserRepository
	Departments repository.DepartmentRepository
}

// PostgresRepositories backs every port with pool.
func PostgresRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Files:       repository.NewFileStore(pool),
		Users:       repository.NewUserStore(pool),
		Departments: repository.NewDepartmentStore(pool),
	}
}

// MemoryRepositories backs every port with process memory.
func MemoryRepositories() Repositories {
	dir := repository.NewMemoryDirectory()
	return Repositories{
		Files:       repository.NewMemoryFiles(),
		Users:       dir.Users(),
		Departments: dir.Departments(),
	}
}

// ObjectStore opens the configured backend. blobs is non-nil only for the
// memory backend, whose signed URLs the api serves itself.
func ObjectStore(ctx context.Context, cfg *config.Config) (store storage.ObjectStore, blobs api.BlobSource, err error) {
	switch cfg.Storage.Backend {
	case "memory":
		mem := storage.NewMemoryStore(signing.NewSigner([]byte(cfg.Storage.SigningSecret)), cfg.Storage.PublicURL)
		return mem, mem, nil
	default:
		s3, err := s3storage.New(cfg.S3)
		if err != nil {
			return nil, nil, fmt.Errorf("init s3: %w", err)
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure bucket: %w", err)
		}
		return s3, nil, nil
	}
}

// RedisOpt is the asynq connection for cfg.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

// ExtractJob builds the metadata extraction job.
func ExtractJob(cfg *config.Config, repos Repositories, store storage.ObjectStore, logger *slog.Logger) *extract.Job {
	extractor := extract.NewExtractor(cfg.Worker.CommandTimeout)
	return extract.NewJob(repos.Files, store, extractor, cfg.Worker.ExtractTimeout, logger.With("component", "extract"))
}

// APIServer wires the HTTP server over the given stores and queue.
func APIServer(cfg *config.Config, repos Repositories, store storage.ObjectStore, blobs api.BlobSource, q queue.Enqueuer, logger *slog.Logger) (*api.Server, error) {
	limits, err := cfg.AdmissionLimits()
	if err != nil {
		return nil, err
	}
	policy := admission.NewPolicy(limits)
	authSvc := auth.NewService(repos.Users, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.CacheSize, cfg.Auth.CacheTTL)

	return api.New(cfg.Server, api.Deps{
		Catalog:   catalog.New(repos.Files, store, q, policy, cfg.Storage.DownloadTTL, logger.With("component", "catalog")),
		Users:     users.NewService(repos.Users, repos.Departments, authSvc, logger.With("component", "users")),
		Auth:      authSvc,
		Admission: policy,
		Blobs:     blobs,
		Logger:    logger,
	}), nil
}
