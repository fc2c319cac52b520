// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects the repository, the media
// store, the services, the handlers and the middleware, and decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go loads config.Config and builds the logger, then calls New:
//
//	DB_DRIVER       → sqlite.DB or gormstore.Store   (repository.Store)
//	STORAGE_BACKEND → storage.LocalStore or S3Store  (storage.Store)
//	auth.TokenService, auth.PasswordService, auth.GoogleProvider
//	UserService → AuthService, VideoService
//	AuthHandler, UserHandler, VideoHandler
//
// This is the "composition root" pattern: all dependencies are wired in one
// place, rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/media-backend/internal/auth"
	"github.com/sakif/media-backend/internal/config"
	"github.com/sakif/media-backend/internal/handler"
	"github.com/sakif/media-backend/internal/middleware"
	"github.com/sakif/media-backend/internal/repository"
	"github.com/sakif/media-backend/internal/repository/gormstore"
	sqliteRepo "github.com/sakif/media-backend/internal/repository/sqlite"
	"github.com/sakif/media-backend/internal/service"
	"github.com/sakif/media-backend/internal/storage"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection. Start closes it after the HTTP
// server has drained; callers that never Start must call Close themselves.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	store  repository.Store
	// mediaRoot is set for the local storage backend only.
	mediaRoot string
}

// New creates a Server from cfg. Nothing listens until Start is called.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	// === CREATE DATABASE ===
	store, err := openStore(cfg.Database)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}

	if err := s.setupRoutes(); err != nil {
		store.Close() // Clean up DB if route setup fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func openStore(cfg config.DatabaseConfig) (repository.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		store, err := gormstore.Open(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		return store, nil
	default:
		db, err := sqliteRepo.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return db, nil
	}
}

// openFiles builds the media store. For local storage the media root is also
// returned so setupRoutes can serve it.
func (s *Server) openFiles(ctx context.Context) (storage.Store, string, error) {
	cfg := s.config.Storage
	if cfg.Backend == config.BackendS3 {
		files, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			PublicURL: cfg.S3.PublicURL,
		})
		if err != nil {
			return nil, "", err
		}
		return files, "", nil
	}

	files, err := storage.NewLocalStore(cfg.MediaDir, s.config.Server.URL)
	if err != nil {
		return nil, "", err
	}
	return files, files.Root(), nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /health                   → liveness + database ping
// GET    /uploads/*                → locally stored media (local backend only)
// /auth/*                          → AuthHandler.Routes
// /users/*                         → UserHandler.Routes
// /videos/*                        → VideoHandler.Routes
//
// MIDDLEWARE ORDER MATTERS:
// 1. Sentry: attaches a hub to the request context; panics are reported
// 2. RequestID: assigns a unique ID to each request
// 3. RealIP: extracts real client IP from proxy headers
// 4. Logger: logs each request with timing info
// 5. Recoverer: turns a panic into a 500 instead of crashing
//
// Recoverer sits inside Sentry, and Sentry re-panics, so a panic is both
// reported and recovered.
func (s *Server) setupRoutes() error {
	// === Global Middleware ===
	s.router.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	// === Dependencies ===
	files, mediaRoot, err := s.openFiles(context.Background())
	if err != nil {
		return fmt.Errorf("creating media store: %w", err)
	}
	s.mediaRoot = mediaRoot

	tokens, err := auth.NewTokenService(s.config.Auth.JWTSecret, s.config.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService(s.config.Auth.BcryptCost)

	var google *auth.GoogleProvider
	if s.config.Google.Enabled() {
		google = auth.NewGoogleProvider(s.config.Google.ClientID, s.config.Google.ClientSecret, s.config.Google.CallbackURL)
	} else {
		s.logger.Info("google oauth not configured, server-side google routes disabled")
	}

	// DEPENDENCY CHAIN:
	//   s.store implements both UserRepository and VideoRepository
	//   services receive the repository interfaces and the media store
	//   handlers receive the services
	users := service.NewUserService(s.store, s.store, passwords, files, s.logger)
	authService := service.NewAuthService(users, tokens, passwords, s.logger)
	videos := service.NewVideoService(s.store, files, s.logger)

	requireAuth := auth.RequireAuth(tokens, authService, s.logger)
	maxUpload := s.config.Storage.MaxUploadBytes

	authHandler := handler.NewAuthHandler(authService, google, s.logger)
	userHandler := handler.NewUserHandler(users, maxUpload, s.logger)
	videoHandler := handler.NewVideoHandler(videos, maxUpload, s.logger)

	// === Routes ===
	s.router.Get("/health", s.handleHealth)

	if s.mediaRoot != "" {
		// The URL path and the path below the media root are the same, so
		// there is no StripPrefix here.
		s.router.Handle("/uploads/*", noDirListing(http.FileServer(http.Dir(s.mediaRoot))))
	}

	s.router.Route("/auth", authHandler.Routes)
	s.router.Route("/users", func(r chi.Router) { userHandler.Routes(r, requireAuth) })
	s.router.Route("/videos", func(r chi.Router) { videoHandler.Routes(r, requireAuth) })

	return nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database connection.
func (s *Server) Close() error {
	return s.store.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

// noDirListing hides http.FileServer's directory index pages.
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the database connection
//
// Uploads can be large, so the read and write timeouts are longer than a
// JSON-only API would use.
func (s *Server) Start() error {
	defer s.store.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", s.config.Server.URL),
			slog.String("database", s.config.Database.Driver),
			slog.String("storage", s.config.Storage.Backend),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
