// Command server runs the warehouse requisition API.
//
// It loads configuration from the environment (plus an optional .env file),
// selects the ledger backend, wires the mirror and tracing, and serves the
// HTTP API with graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rmedina/go-requisition-backend/internal/config"
	httpapi "github.com/rmedina/go-requisition-backend/internal/http"
	"github.com/rmedina/go-requisition-backend/internal/ledger"
	"github.com/rmedina/go-requisition-backend/internal/mirror"
	"github.com/rmedina/go-requisition-backend/internal/observability"
	"github.com/rmedina/go-requisition-backend/internal/repo"
	"github.com/rmedina/go-requisition-backend/internal/services"
	"github.com/rmedina/go-requisition-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	gin.SetMode(cfg.GinMode)

	store, err := buildStore(cfg.Ledger)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Ledger.Backend).Msg("ledger backend init failed")
	}

	svc := services.NewRequisitionService(store, cfg.Ledger.CacheTTL)
	svc.GreenThreshold = cfg.Board.GreenThreshold
	svc.AmberThreshold = cfg.Board.AmberThreshold
	if cfg.Mirror.Enabled {
		svc.Mirror = mirror.New(cfg.Mirror.URL, cfg.Mirror.Token, cfg.Mirror.Timeout)
		svc.MirrorTimeout = cfg.Mirror.Timeout
		log.Info().Str("url", cfg.Mirror.URL).Msg("mirror enabled")
	}

	ctx := context.Background()
	shutdownOTel, err := observability.Setup(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	engine := gin.New()
	httpapi.RegisterRoutes(engine, svc, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("backend", cfg.Ledger.Backend).
			Str("version", version).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	log.Info().Msg("bye")
}

// buildStore creates the configured ledger backend, making sure the data
// directories exist first.
func buildStore(cfg config.LedgerConfig) (ledger.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, err
		}
		db, err := repo.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		if err := repo.AutoMigrate(db); err != nil {
			return nil, err
		}
		return repo.NewSQLiteStore(db), nil
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(cfg.BackupDir, 0o755); err != nil {
			return nil, err
		}
		return ledger.NewFileStore(cfg.Path, cfg.BackupDir, cfg.LockTimeout), nil
	}
}
