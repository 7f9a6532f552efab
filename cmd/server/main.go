// Command server runs the movie catalogue HTTP service.
//
// @title       Movies API
// @version     1.0
// @description CRUD catalogue of movies with title search, server-rendered pages and idempotent create.
// @BasePath    /
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-movies-backend/internal/config"
	httpapi "github.com/tbourn/go-movies-backend/internal/http"
	"github.com/tbourn/go-movies-backend/internal/observability"
	"github.com/tbourn/go-movies-backend/internal/repo"
	"github.com/tbourn/go-movies-backend/internal/services"
	"github.com/tbourn/go-movies-backend/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=..."
// and can be overridden by APP_VERSION.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// .env is optional; the process environment always wins.
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogging(cfg)
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		log.Warn().Err(envErr).Msg("failed to load .env file")
	}

	version = sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	store, err := newStore(cfg, db)
	if err != nil {
		log.Fatal().Err(err).Msg("select store")
	}

	idem := repo.NewIdempotencyStore(db, cfg.IdempotencyTTL)
	go idem.RunJanitor(ctx, janitorInterval(cfg.IdempotencyTTL))

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, store, idem, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	log.Info().
		Str("addr", srv.Addr).
		Str("store", cfg.StoreDriver).
		Str("version", version).
		Bool("swagger", cfg.SwaggerEnabled).
		Msg("movies backend listening")

	if err := runServer(ctx, srv, cfg.ShutdownTimeout); err != nil {
		log.Error().Err(err).Msg("server error")
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := shutdownOTel(flushCtx); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("shutdown complete")
}

func setupLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	level := sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Debug().Str("level", level.String()).Msg("logging configured")
}

// newStore picks the movie store named by STORE_DRIVER. The SQLite store
// shares db with the idempotency table.
func newStore(cfg config.Config, db *gorm.DB) (services.MovieRepo, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return repo.NewMemoryStore(), nil
	case config.StoreSQLite:
		return repo.NewSQLStore(db), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// janitorInterval sweeps a few times per TTL, at most hourly.
func janitorInterval(ttl time.Duration) time.Duration {
	iv := ttl / 4
	if iv <= 0 || iv > time.Hour {
		iv = time.Hour
	}
	if iv < time.Second {
		iv = time.Second
	}
	return iv
}

// runServer serves until ctx is canceled, then drains in-flight requests
// within timeout.
func runServer(ctx context.Context, srv *http.Server, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return <-errCh
}
