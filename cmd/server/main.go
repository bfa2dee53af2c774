// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/uno/internal/auth"
	"github.com/jason-s-yu/uno/internal/cache"
	"github.com/jason-s-yu/uno/internal/config"
	"github.com/jason-s-yu/uno/internal/database"
	"github.com/jason-s-yu/uno/internal/handlers"
	"github.com/jason-s-yu/uno/internal/manager"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	cfg := config.Load()
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		sessions *auth.Sessions
		err      error
	)
	if cfg.JWTKeyPath != "" {
		sessions, err = auth.NewSessionsFromPath(cfg.JWTKeyPath, cfg.TokenExpire)
	} else {
		sessions, err = auth.NewSessions(cfg.TokenExpire)
	}
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize sessions")
	}

	opts := manager.Options{
		Logger:           logger,
		MinPlayers:       cfg.MinPlayers,
		MinPlayersToStay: cfg.MinPlayersToStay,
	}

	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to redis")
		}
		historian := cache.NewHistorian(rdb, cfg.HistorianQueue)
		defer historian.Close()
		opts.Recorder = historian
		logger.Infof("recording actions to redis queue %s", historian.Queue())
	} else {
		logger.Warn("REDIS_ADDR not set, actions are not recorded")
	}

	if cfg.DatabaseURL != "" {
		store, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to database")
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			logger.WithError(err).Fatal("failed to create schema")
		}
		opts.Results = store
	} else {
		logger.Warn("no database configured, results are not persisted")
	}

	mgr, err := manager.New(opts)
	if err != nil {
		logger.WithError(err).Fatal("failed to create game manager")
	}
	srv := handlers.NewServer(logger, mgr, sessions)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Running on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server exited")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	srv.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	mgr.Close()
}
