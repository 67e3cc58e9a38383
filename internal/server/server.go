// Package server is the composition root: it opens the database, builds the
// services and handlers, mounts the routes and runs the HTTP server with
// graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/config"
	"github.com/sakif/contacts-api/internal/handler"
	"github.com/sakif/contacts-api/internal/middleware"
	"github.com/sakif/contacts-api/internal/notify"
	"github.com/sakif/contacts-api/internal/repository/sqlstore"
	"github.com/sakif/contacts-api/internal/service"
	"github.com/sakif/contacts-api/internal/storage"
)

// Server owns the router, the database connection and the notification
// queue. Both are released when Start returns.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqlstore.DB
	queue  *notify.Queue

	limiters []*middleware.RateLimiter
}

// Option overrides a collaborator that New would otherwise build from the
// configuration.
type Option func(*deps)

type deps struct {
	notifier  notify.Notifier
	uploader  storage.Uploader
	passwords *auth.PasswordService
}

// WithNotifier replaces the configured notifier (Mailtrap or log).
func WithNotifier(n notify.Notifier) Option {
	return func(d *deps) { d.notifier = n }
}

// WithUploader replaces the configured avatar uploader.
func WithUploader(u storage.Uploader) Option {
	return func(d *deps) { d.uploader = u }
}

// WithPasswordService replaces the production bcrypt cost.
func WithPasswordService(p *auth.PasswordService) Option {
	return func(d *deps) { d.passwords = p }
}

// New wires the application:
//
//	sqlstore.DB → UserStore/ContactStore → AuthService/ContactService → handlers
//
// Each layer receives only what it needs; handlers never see the database.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	db, err := sqlstore.New(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	d := deps{passwords: auth.NewPasswordService()}
	for _, opt := range opts {
		opt(&d)
	}
	if d.notifier == nil {
		d.notifier = newNotifier(cfg, logger)
	}
	if d.uploader == nil {
		d.uploader = newUploader(ctx, cfg, logger)
	}

	// Signup only enqueues the verification email.
	queue := notify.NewQueue(d.notifier, notify.DefaultQueueConfig(), logger)
	queue.Start()

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		queue:  queue,
	}

	authService := service.NewAuthService(service.AuthDeps{
		Users:     db.Users(),
		Tokens:    tokens,
		Passwords: d.passwords,
		Uploader:  d.uploader,
		Notifier:  queue,
		BaseURL:   cfg.PublicBaseURL,
		Logger:    logger,
	})
	contactService := service.NewContactService(db.Contacts(), logger)

	s.setupRoutes(authService, contactService)
	return s, nil
}

func newNotifier(cfg config.Config, logger *slog.Logger) notify.Notifier {
	if cfg.Mailtrap.APIKey == "" {
		logger.Warn("MAILTRAP_API_KEY not set, verification links will be logged")
		return notify.NewLogNotifier(logger)
	}
	return notify.NewMailtrap(cfg.Mailtrap)
}

// newUploader returns the MinIO uploader, or storage.Disabled when MinIO is
// not configured. An unreachable MinIO at startup is logged, not fatal: the
// bucket check is repeated implicitly by the first upload.
func newUploader(ctx context.Context, cfg config.Config, logger *slog.Logger) storage.Uploader {
	if cfg.MinIO.Endpoint == "" {
		logger.Warn("MINIO_ENDPOINT not set, avatar uploads are disabled")
		return storage.Disabled{}
	}

	m, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		logger.Error("minio misconfigured, avatar uploads are disabled", slog.String("error", err.Error()))
		return storage.Disabled{}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := m.EnsureBucket(ctx); err != nil {
		logger.Warn("minio bucket check failed", slog.String("error", err.Error()))
	}
	return m
}

// setupRoutes mounts every route.
//
//	GET    /healthz
//	POST   /auth/signup                   (rate limited)
//	POST   /auth/login                    (rate limited)
//	GET    /auth/verify-email?token=      (rate limited)
//	GET    /users/me                      rate limited, bearer
//	POST   /users/avatar                  bearer
//	POST   /contacts                      bearer
//	GET    /contacts                      bearer
//	GET    /contacts/search?query=        bearer
//	GET    /contacts/upcoming-birthdays   bearer
//	GET    /contacts/{id}                 bearer
//	PUT    /contacts/{id}                 bearer
//	DELETE /contacts/{id}                 bearer
//
// Middleware order: RequestID and RealIP first so the logger and the rate
// limiter see them; Sentry wraps the handlers and re-panics into Recoverer.
func (s *Server) setupRoutes(authService *service.AuthService, contactService *service.ContactService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"WWW-Authenticate", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authLimit := s.newLimiter(s.config.RateLimitAuth)
	meLimit := s.newLimiter(s.config.RateLimitMe)
	requireAuth := auth.RequireAuth(authService)

	healthHandler := handler.NewHealthHandler(s.db, s.logger)
	authHandler := handler.NewAuthHandler(authService, s.logger)
	userHandler := handler.NewUserHandler(authService, s.logger)
	contactHandler := handler.NewContactHandler(contactService, s.logger)

	s.router.Get("/healthz", healthHandler.HandleHealth)

	s.router.Route("/auth", func(r chi.Router) {
		r.Use(authLimit.Handler)
		r.Post("/signup", authHandler.HandleSignup)
		r.Post("/login", authHandler.HandleLogin)
		r.Get("/verify-email", authHandler.HandleVerifyEmail)
	})

	// The limiter runs before authentication so rejected tokens count too.
	s.router.Route("/users", func(r chi.Router) {
		r.With(meLimit.Handler, requireAuth).Get("/me", userHandler.HandleMe)
		r.With(requireAuth).Post("/avatar", userHandler.HandleAvatar)
	})

	s.router.Route("/contacts", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/", contactHandler.HandleCreate)
		r.Get("/", contactHandler.HandleList)
		r.Get("/search", contactHandler.HandleSearch)
		r.Get("/upcoming-birthdays", contactHandler.HandleUpcomingBirthdays)
		r.Get("/{id}", contactHandler.HandleGet)
		r.Put("/{id}", contactHandler.HandleUpdate)
		r.Delete("/{id}", contactHandler.HandleDelete)
	})
}

func (s *Server) newLimiter(perMinute int) *middleware.RateLimiter {
	rl := middleware.NewRateLimiter(perMinute)
	s.limiters = append(s.limiters, rl)
	return rl
}

// Handler exposes the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close flushes queued notifications and releases the database
// connection. Start calls it on return; use it directly only when Start was
// never called.
func (s *Server) Close() error {
	s.queue.Stop()
	return s.db.Close()
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up
// to 30 seconds and closes the server.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go s.sweepLimiters(sweepCtx)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("driver", s.config.DBDriver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

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

// sweepLimiters drops idle rate-limit buckets every few minutes so the
// per-client maps don't grow without bound.
func (s *Server) sweepLimiters(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, rl := range s.limiters {
				rl.Sweep(10 * time.Minute)
			}
		}
	}
}
