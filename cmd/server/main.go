// cmd/server/main.go — HTTP API and realtime gateway.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/armandavtyann/ticket/internal/cancelflag"
	"github.com/armandavtyann/ticket/internal/config"
	"github.com/armandavtyann/ticket/internal/db"
	"github.com/armandavtyann/ticket/internal/dispatch"
	"github.com/armandavtyann/ticket/internal/domain"
	"github.com/armandavtyann/ticket/internal/events"
	"github.com/armandavtyann/ticket/internal/gateway"
	"github.com/armandavtyann/ticket/internal/httpserver"
	"github.com/armandavtyann/ticket/internal/idempotency"
	"github.com/armandavtyann/ticket/internal/jobs"
	"github.com/armandavtyann/ticket/internal/migrate"
	"github.com/armandavtyann/ticket/internal/tickets"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// Connect to PostgreSQL.
	logger.Info("connecting to database", "url", cfg.DatabaseURL)
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect to database failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	if err := migrate.Run(ctx, pool, logger); err != nil {
		logger.Error("run migrations failed", "err", err)
		os.Exit(1)
	}

	// Connect to Redis.
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("parse redis URL failed", "err", err)
		os.Exit(1)
	}
	rc := redis.NewClient(redisOpts)
	defer rc.Close()

	logger.Info("connecting to redis", "url", cfg.RedisURL)
	if err := rc.Ping(ctx).Err(); err != nil {
		logger.Error("redis ping failed", "err", err)
		os.Exit(1)
	}
	logger.Info("redis connected")

	bus := events.NewBus(rc, logger)
	hub := gateway.NewHub(logger)
	go hub.Run(ctx)

	relay := gateway.NewRelay(rc, hub, logger)
	go func() {
		if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("event relay stopped", "err", err)
		}
	}()

	srv := httpserver.New(cfg, httpserver.Deps{
		Jobs:    jobs.NewStore(pool),
		Tickets: tickets.NewStore(pool),
		Guard:   idempotency.NewGuard(rc, cfg.IdempotencyTTL, logger),
		Enqueue: func(ctx context.Context, msg domain.ExecutionMessage) error {
			return dispatch.Enqueue(ctx, pool, msg, cfg.MaxRetries)
		},
		Flags:  cancelflag.New(rc, cfg.CancelFlagTTL),
		Bus:    bus,
		Hub:    hub,
		Logger: logger,
	})

	if err := srv.Run(ctx); err != nil {
		logger.Error("http server stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
