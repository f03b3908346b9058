// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the composition root. New builds every dependency from
// a *config.Config and hands each layer only what it needs:
//
//	sqlite.DB ─┬─► CredentialService ─► AuthHandler
//	           ├─► AdmissionService ──► PhotoHandler
//	           └─► WallFeed ──────────► WallHandler
//	contentstore.Store ─► AdmissionService
//	broadcast.Hub ──────► AdmissionService (publish), WallFeed (subscribe)
//	mailer.Sender ──────► CredentialService
//
// The server owns the database and the hub and closes both on shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/photo-wall/internal/auth"
	"github.com/sakif/photo-wall/internal/broadcast"
	"github.com/sakif/photo-wall/internal/config"
	"github.com/sakif/photo-wall/internal/contentstore"
	"github.com/sakif/photo-wall/internal/emailcheck"
	"github.com/sakif/photo-wall/internal/handler"
	"github.com/sakif/photo-wall/internal/mailer"
	"github.com/sakif/photo-wall/internal/middleware"
	sqliteRepo "github.com/sakif/photo-wall/internal/repository/sqlite"
	"github.com/sakif/photo-wall/internal/service"
	"github.com/sakif/photo-wall/internal/wall"
)

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	hub    *broadcast.Hub
}

// New creates a Server from cfg. Nothing listens until Start or Run.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	// === DATABASE ===
	if cfg.Database.Path != ":memory:" {
		dir := filepath.Dir(cfg.Database.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}
	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		hub:    broadcast.NewHub(cfg.Wall.SendBuffer, logger),
	}

	if err := s.setupRoutes(); err != nil {
		s.hub.Close()
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET  /health                    → liveness
// GET  /ws/wall                   → wall display websocket
// GET  /static/*                  → camera and wall pages (when static_dir is set)
// POST /api/auth                  → request a one-time code
// POST /api/verify                → exchange code for a session token
// GET  /api/photos                → list admitted photos
// GET  /api/photos/content/{ref}  → stream photo bytes
// GET  /api/user                  → current identity          [auth]
// POST /api/upload                → submit a photo            [auth]
//
// MIDDLEWARE ORDER: RequestID before Logger so log lines carry the ID;
// Recoverer inside Logger so a panic is logged as a 500.
func (s *Server) setupRoutes() error {
	cfg := s.config

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, auth.WithTokenTTL(cfg.TokenTTL()))
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ContentStoreTimeout())
	defer cancel()
	store, err := contentstore.NewFromConfig(ctx, cfg.ContentStore, &http.Client{})
	if err != nil {
		return fmt.Errorf("creating content store: %w", err)
	}

	emailOpts := []emailcheck.Option{emailcheck.WithDeepValidation(cfg.Mail.DeepValidation)}
	if len(cfg.Mail.DisposableDomains) > 0 {
		emailOpts = append(emailOpts, emailcheck.WithDisposableDomains(cfg.Mail.DisposableDomains))
	}

	creds := service.NewCredentialService(service.CredentialDeps{
		Users:        s.db,
		Credentials:  s.db,
		Emails:       emailcheck.New(emailOpts...),
		Mail:         s.newMailer(),
		Hasher:       auth.NewCodeHasher(),
		Tokens:       tokens,
		DefaultQuota: cfg.Auth.DefaultQuota,
		MailTimeout:  cfg.MailTimeout(),
	}, s.logger)
	admission := service.NewAdmissionService(s.db, s.db, store, s.hub, cfg.ContentStoreTimeout(), s.logger)
	feed := service.NewWallFeed(s.hub, s.db, wall.Config{
		CellWidth:        cfg.Wall.CellWidth,
		CellHeight:       cfg.Wall.CellHeight,
		CapacityFraction: cfg.Wall.CapacityFraction,
	}, s.logger)

	authHandler := handler.NewAuthHandler(creds, s.logger)
	photoHandler := handler.NewPhotoHandler(admission, handler.DefaultMaxUploadBytes, s.logger)
	wallHandler := handler.NewWallHandler(feed, cfg.ViewportWait(), wall.Viewport{
		Width:  cfg.Wall.DefaultWidth,
		Height: cfg.Wall.DefaultHeight,
	}, s.logger)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/health", handler.HandleHealth)
	s.router.Get("/ws/wall", wallHandler.HandleWall)

	if cfg.Server.StaticDir != "" {
		fileServer := http.FileServer(http.Dir(cfg.Server.StaticDir))
		s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/auth", authHandler.HandleRequestCode)
		r.Post("/verify", authHandler.HandleVerify)
		r.Get("/photos", photoHandler.HandleList)
		r.Get("/photos/content/{ref}", photoHandler.HandleContent)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(auth.NewGuard(tokens)))
			r.Get("/user", authHandler.HandleMe)
			r.Post("/upload", photoHandler.HandleUpload)
		})
	})

	return nil
}

func (s *Server) newMailer() mailer.Sender {
	m := s.config.Mail
	if m.Type == "smtp" {
		return mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     m.Host,
			Port:     m.Port,
			Username: m.Username,
			Password: m.Password,
			From:     m.From,
			FromName: m.FromName,
		})
	}
	s.logger.Warn("mail type is log: codes are written to the log, not delivered")
	return mailer.NewLogSender(s.logger)
}

// Start runs the server until SIGINT or SIGTERM.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is cancelled, then shuts down gracefully:
//  1. stop accepting connections and wait for in-flight requests
//  2. close the hub, which ends every wall session
//  3. close the database
//
// Websocket connections are hijacked, so Shutdown does not wait for them;
// closing the hub is what ends them.
func (s *Server) Run(ctx context.Context) error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute, // uploads from phones on slow links
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("database", s.config.Database.Path),
			slog.String("content_store", s.config.ContentStore.Type),
			slog.String("mail", s.config.Mail.Type),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		s.hub.Close()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout())
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	s.hub.Close()
	if err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	s.logger.Info("server stopped gracefully")
	return nil
}
