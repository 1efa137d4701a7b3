// Package api exposes the file catalog, authentication and user
// administration over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dharsanguruparan/filevault/internal/admission"
	"github.com/dharsanguruparan/filevault/internal/catalog"
	"github.com/dharsanguruparan/filevault/internal/config"
	"github.com/dharsanguruparan/filevault/internal/metrics"
	"github.com/dharsanguruparan/filevault/internal/model"
	"github.com/dharsanguruparan/filevault/internal/storage"
	"github.com/dharsanguruparan/filevault/internal/users"
)

// Authenticator logs users in and resolves bearer tokens.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, *model.User, error)
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// BlobSource serves objects behind signed URLs. Only the in-memory object
// store provides one.
type BlobSource interface {
	Open(ctx context.Context, key string) (storage.Object, error)
	Verify(key string, q url.Values) bool
}

// Deps are the services the HTTP layer dispatches to. Blobs may be nil.
type Deps struct {
	Catalog   *catalog.Catalog
	Users     *users.Service
	Auth      Authenticator
	Admission *admission.Policy
	Blobs     BlobSource
	Logger    *slog.Logger
}

// Server exposes HTTP endpoints for files, auth and users.
type Server struct {
	cfg       config.ServerConfig
	catalog   *catalog.Catalog
	users     *users.Service
	auth      Authenticator
	admission *admission.Policy
	blobs     BlobSource
	logger    *slog.Logger
	server    *http.Server
	once      sync.Once
	handler   http.Handler
}

// New constructs a Server.
func New(cfg config.ServerConfig, d Deps) *Server {
	return &Server{
		cfg:       cfg,
		catalog:   d.Catalog,
		users:     d.Users,
		auth:      d.Auth,
		admission: d.Admission,
		blobs:     d.Blobs,
		logger:    d.Logger,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	s.once.Do(func() {
		s.handler = s.routes()
	})
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/auth/login", s.handleLogin)
	if s.blobs != nil {
		r.Get("/blobs/*", s.handleBlob)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/auth/me", s.handleMe)

		r.Route("/files", func(r chi.Router) {
			r.Post("/upload", s.handleUpload)
			r.Get("/", s.handleListFiles)
			r.Get("/{id}", s.handleGetFile)
			r.Get("/{id}/download", s.handleDownload)
			r.Delete("/{id}", s.handleDeleteFile)
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", s.handleCreateUser)
			r.Get("/", s.handleListUsers)
			r.Get("/{id}", s.handleGetUser)
			r.Put("/{id}/role", s.handleChangeRole)
		})
	})
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    s.cfg.Address,
		Handler: s.Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown", "error", err)
		}
	}()
	s.logger.Info("api listening", "address", s.cfg.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
