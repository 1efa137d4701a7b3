package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/filevault/internal/config"
	"github.com/dharsanguruparan/filevault/internal/storage"
	"github.com/dharsanguruparan/filevault/internal/users"
)

type noQueue struct{}

func (noQueue) EnqueueExtract(context.Context, int64) error { return nil }

func memoryConfig() *config.Config {
	cfg := &config.Config{
		Server:  config.ServerConfig{Address: ":0", ShutdownTimeout: time.Second},
		Log:     config.LogConfig{Level: "info", Format: "json"},
		Storage: config.StorageConfig{Backend: "memory", PublicURL: "http://localhost:8080/", DownloadTTL: time.Minute},
		Auth:    config.AuthConfig{JWTSecret: "0123456789abcdef", TokenTTL: time.Hour, CacheSize: 8, CacheTTL: time.Second},
		Worker:  config.WorkerConfig{Concurrency: 1, ExtractTimeout: time.Second, CommandTimeout: time.Second},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestObjectStore_Memory(t *testing.T) {
	t.Parallel()

	store, blobs, err := ObjectStore(context.Background(), memoryConfig())
	require.NoError(t, err)
	require.NotNil(t, blobs)
	assert.IsType(t, &storage.MemoryStore{}, store)
}

func TestNewLogger(t *testing.T) {
	cfg := memoryConfig()
	logger := NewLogger(cfg)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestAPIServer_LoginWithSeededAccount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := memoryConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repos := MemoryRepositories()
	require.NoError(t, users.Seed(ctx, repos.Users, repos.Departments, users.DefaultSeedAccounts()[:1], logger))

	store, blobs, err := ObjectStore(ctx, cfg)
	require.NoError(t, err)
	srv, err := APIServer(cfg, repos, store, blobs, noQueue{}, logger)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]string{"email": "admin@example.com", "password": "admin123"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	assert.NotEmpty(t, tok.AccessToken)
}
