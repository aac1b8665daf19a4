package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"booking-backend/internal/config"
	"booking-backend/internal/email"
	"booking-backend/internal/handlers"
	"booking-backend/internal/middleware"
	"booking-backend/internal/repository"
	"booking-backend/internal/services"
	"booking-backend/internal/store"
	"booking-backend/internal/token"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Run wires the application together and serves HTTP until interrupted.
func Run() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	// Open the document store
	st, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open document store")
	}
	log.Info().Str("backend", cfg.Storage.Backend).Msg("Document store ready")

	// Initialize repositories
	usersRepo := repository.NewUsersRepository(st)
	availabilityRepo := repository.NewAvailabilityRepository(st)
	bookingsRepo := repository.NewBookingsRepository(st)

	// Initialize collaborators
	var notifier email.Notifier = email.NopNotifier{}
	if cfg.SMTP.Host != "" {
		notifier = email.NewSMTPNotifier(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password)
	}
	codec := token.NewCodec(cfg.Auth.Secret)

	// Initialize services
	userService := services.NewUserService(
		usersRepo,
		codec,
		notifier,
		cfg.Auth.Secret,
		cfg.Auth.SessionTTL(),
		cfg.Auth.AdminCode,
		cfg.Server.BaseURL,
	)
	availabilityService := services.NewAvailabilityService(availabilityRepo)
	bookingService := services.NewBookingService(bookingsRepo, availabilityRepo, usersRepo, notifier)

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService)
	bookingHandler := handlers.NewBookingHandler(bookingService)
	adminHandler := handlers.NewAdminHandler(availabilityService, bookingService, st)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	authLimiter := middleware.NewRateLimiter()

	// Public auth routes
	r.Route("/auth", func(r chi.Router) {
		r.Use(authLimiter.Limit)
		r.Post("/register", userHandler.Register)
		r.Post("/login", userHandler.Login)
		r.Get("/confirm", userHandler.ConfirmEmail)
		r.Post("/forgot-password", userHandler.ForgotPassword)
		r.Post("/reset-password", userHandler.ResetPassword)
	})

	// Protected routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(userService))

		r.Get("/profile", userHandler.GetProfile)
		r.Put("/profile", userHandler.UpdateProfile)
		r.Get("/slots", bookingHandler.FreeSlots)
		r.Get("/bookings", bookingHandler.MyBookings)
		r.Post("/bookings", bookingHandler.Reserve)
		r.Delete("/bookings/{date}/{hour}", bookingHandler.Cancel)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Get("/availability", adminHandler.ListAvailability)
			r.Put("/availability", adminHandler.SetAvailability)
			r.Get("/agenda", adminHandler.Agenda)
			r.Post("/bookings/{date}/{hour}/{username}/paid", adminHandler.TogglePaid)
			r.Get("/history", adminHandler.History)
			r.Get("/history/export", adminHandler.ExportHistory)
			r.Get("/docs/{name}", adminHandler.Document)
		})
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// openStore selects the document store backend from configuration.
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Storage.Backend {
	case "", "file":
		return store.NewFileStore(cfg.Storage.DataDir, cfg.Storage.LockWait())
	case "s3":
		return store.NewS3Store(context.Background(), store.S3Options{
			Region:    cfg.Storage.S3.Region,
			Bucket:    cfg.Storage.S3.Bucket,
			Prefix:    cfg.Storage.S3.Prefix,
			AccessKey: cfg.Storage.S3.AccessKey,
			SecretKey: cfg.Storage.S3.SecretKey,
			Endpoint:  cfg.Storage.S3.Endpoint,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
