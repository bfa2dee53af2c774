// cmd/historian/main.go is an asynchronous historian service that pops action records from a
// Redis queue and persists them to PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/uno/internal/cache"
	"github.com/jason-s-yu/uno/internal/config"
	"github.com/jason-s-yu/uno/internal/database"
	"github.com/jason-s-yu/uno/internal/historian"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	cfg := config.Load()
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb, err := cache.Connect(ctx, addr, cfg.RedisDB)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}
	queue := cache.NewHistorian(rdb, cfg.HistorianQueue)
	defer queue.Close()

	store, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		logger.WithError(err).Fatal("failed to create schema")
	}

	historian.New(queue, store, historian.Options{
		Logger:        logger,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		Inactivity:    cfg.Inactivity,
	}).Run(ctx)
}
