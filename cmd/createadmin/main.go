// Command createadmin creates or updates an admin account directly in
// the document store, bypassing registration and email confirmation.
// It shares the advisory file locks with a running server, so it is
// safe to use while the server is up.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/rs/zerolog/log"

	"booking-backend/internal/config"
	"booking-backend/internal/email"
	"booking-backend/internal/repository"
	"booking-backend/internal/services"
	"booking-backend/internal/store"
	"booking-backend/internal/token"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to config file")
		username   = flag.String("username", "", "admin username")
		password   = flag.String("password", "", "admin password")
	)
	flag.Parse()

	if *username == "" || *password == "" {
		log.Fatal().Msg("Both -username and -password are required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	st, err := store.NewFileStore(cfg.Storage.DataDir, cfg.Storage.LockWait())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open document store")
	}

	users := services.NewUserService(
		repository.NewUsersRepository(st),
		token.NewCodec(cfg.Auth.Secret),
		email.NopNotifier{},
		cfg.Auth.Secret,
		cfg.Auth.SessionTTL(),
		cfg.Auth.AdminCode,
		cfg.Server.BaseURL,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := users.CreateAdmin(ctx, *username, *password); err != nil {
		log.Fatal().Err(err).Msg("Failed to create admin account")
	}
	log.Info().Str("username", *username).Msg("Admin account created or updated")
}
