package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dhruv-158/Backend-chatter/internal/api"
	"github.com/Dhruv-158/Backend-chatter/internal/auth"
	"github.com/Dhruv-158/Backend-chatter/internal/backbone"
	"github.com/Dhruv-158/Backend-chatter/internal/config"
	"github.com/Dhruv-158/Backend-chatter/internal/gateway"
	"github.com/Dhruv-158/Backend-chatter/internal/handlers"
	"github.com/Dhruv-158/Backend-chatter/internal/media"
	"github.com/Dhruv-158/Backend-chatter/internal/presence"
	"github.com/Dhruv-158/Backend-chatter/internal/relay"
	"github.com/Dhruv-158/Backend-chatter/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the persistent store
	var dataStore store.DataStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		dataStore = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		dataStore = sqliteStore
		logger.Info().Msg("using SQLite store")
	}
	defer dataStore.Close()

	// Initialize the backbone
	var bb backbone.Backbone
	if cfg.RedisURL != "" {
		redisBackbone, err := backbone.NewRedis(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		bb = redisBackbone
		logger.Info().Msg("connected to Redis")
	} else {
		bb = backbone.NewMemory()
		logger.Warn().Msg("REDIS_URL not set, running single-process with in-memory backbone")
	}
	defer bb.Close()

	// Wire the realtime core
	authenticator := auth.NewAuthenticator(cfg.JWTSecret, dataStore, bb, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	registry := presence.NewRegistry(bb, cfg.TypingTTL, logger)
	hub := gateway.NewHub()

	var remover media.Remover = media.NopRemover{}
	if dir := os.Getenv("MEDIA_DIR"); dir != "" {
		remover = media.DirRemover{Root: dir, Logger: logger}
	}

	rl := relay.New(hub, bb, dataStore, registry, remover, cfg.MessageCacheTTL, logger)
	gw := gateway.New(hub, rl, registry, authenticator, dataStore, logger)

	// Consume sibling processes' publications
	go rl.Run(ctx)

	// Create router
	h := handlers.NewHandler(dataStore, bb, authenticator, rl, registry, hub, logger)
	router := api.NewRouter(logger, h, gw, authenticator)

	// Create server. No WriteTimeout: the gateway holds connections
	// open indefinitely.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting chatter server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
