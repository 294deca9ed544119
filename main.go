// Command rest-db-starter serves the users REST API and listing page on top of
// a MySQL, PostgreSQL or SQLite database.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hurl365/rest-db-starter/config"
	"github.com/hurl365/rest-db-starter/db"
	"github.com/hurl365/rest-db-starter/repo"
	"github.com/hurl365/rest-db-starter/web"
)

const slowQueryThreshold = 250 * time.Millisecond

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	setupLogger(cfg.Log)
	log.Info().Str("driver", cfg.Database.Driver).Str("addr", cfg.App.Addr()).Msg("Starting users service...")

	logger := log.Logger
	database, err := db.OpenWithDriver(cfg.Database.Driver, db.DriverOptions{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
	}, db.Config{
		DefaultTimeout: cfg.Database.QueryTimeout,
		Hooks: []db.Hook{db.NewLogHook(db.LogHookConfig{
			Logger:             &logger,
			SlowQueryThreshold: slowQueryThreshold,
			LogArgs:            cfg.Database.LogArgs,
		})},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	server := &http.Server{
		Addr:         cfg.App.Addr(),
		Handler:      web.NewRouter(repo.NewUserRepo(database), database, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Msgf("Starting HTTP server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msgf("Could not listen on %s", server.Addr)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	if err := database.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close database")
	}

	log.Info().Msg("Users service stopped gracefully.")
}

func setupLogger(cfg config.LogConfig) {
	zerolog.SetGlobalLevel(cfg.Level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	log.Logger = log.With().Str("service", "rest-db-starter").Logger()
}
