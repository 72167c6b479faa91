// Command server boots the lead brokerage backend: configuration, logging,
// tracing, storage, cache, the realtime bus, the due-item sweeper, and the
// HTTP API, then blocks until a shutdown signal drains everything in reverse
// order.
//
// @title           Lead Brokerage API
// @version         1.0
// @description     Lead ownership transfers, notifications, due items, and a realtime event stream.
// @BasePath        /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/leadops/go-leads-backend/internal/cache"
	"github.com/leadops/go-leads-backend/internal/config"
	httpapi "github.com/leadops/go-leads-backend/internal/http"
	"github.com/leadops/go-leads-backend/internal/observability"
	"github.com/leadops/go-leads-backend/internal/realtime"
	"github.com/leadops/go-leads-backend/internal/repo"
	"github.com/leadops/go-leads-backend/internal/sweeper"
	"github.com/leadops/go-leads-backend/internal/sysutil"
)

const version = "1.0.0"

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	setupLogging(cfg)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing (no-op when disabled).
	shutdownOTel, err := observability.SetupOTel(rootCtx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	// Storage.
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}

	// Ephemeral cache: Redis when reachable, in-process fallback otherwise.
	store, usingRedis := cache.New(rootCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer func() { _ = store.Close() }()

	// Realtime: registry + bus, bridged across the cluster when Redis is up.
	registry := realtime.NewRegistry()
	var bridge realtime.Bridge = realtime.Loopback{}
	if r, okc := store.(*cache.Redis); okc && usingRedis {
		bridge = realtime.NewRedisBridge(r.Client())
	}
	bus := realtime.NewBus(registry, bridge)
	bus.Start(rootCtx)

	// HTTP API.
	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	notifSvc := httpapi.RegisterRoutes(engine, httpapi.Deps{
		DB:       db,
		Cache:    store,
		Registry: registry,
		Bus:      bus,
	}, cfg)

	// Due-item sweeper shares the dispatcher the API uses, so sweeper-born
	// notifications dedupe against everything else.
	if cfg.Sweeper.Enabled {
		sw := sweeper.New(db, notifSvc, cfg.Sweeper.Interval)
		go sw.Run(rootCtx)
	}

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
		log.Info().Str("addr", srv.Addr).Bool("redis", usingRedis).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	registry.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
	log.Info().Msg("bye")
}

// setupLogging configures the global zerolog logger from config: level,
// timestamp format, and optional pretty console output for development.
func setupLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	sysutil.SetLogLevel(cfg.LogLevel)

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
