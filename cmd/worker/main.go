// cmd/worker/main.go — claims dispatched deliveries and executes jobs.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/armandavtyann/ticket/internal/cancelflag"
	"github.com/armandavtyann/ticket/internal/config"
	"github.com/armandavtyann/ticket/internal/db"
	"github.com/armandavtyann/ticket/internal/dispatch"
	"github.com/armandavtyann/ticket/internal/domain"
	"github.com/armandavtyann/ticket/internal/events"
	"github.com/armandavtyann/ticket/internal/jobs"
	"github.com/armandavtyann/ticket/internal/migrate"
	"github.com/armandavtyann/ticket/internal/tickets"
	"github.com/armandavtyann/ticket/internal/worker"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if err := worker.EnableParentDeathSignal(); err != nil {
		logger.Warn("failed to enable parent-death signal", "err", err)
	}

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

	bulkDelete := worker.NewBulkDelete(
		jobs.NewStore(pool),
		tickets.NewStore(pool),
		cancelflag.New(rc, cfg.CancelFlagTTL),
		events.NewBus(rc, logger),
		logger,
	)

	reg := worker.NewRegistry()
	reg.Register(domain.TypeBulkDelete, bulkDelete.Run)

	adm := dispatch.NewAdmission(rc, cfg.GlobalExecSlots)

	hostname, _ := os.Hostname()
	workerID := uuid.New()

	w := worker.New(workerID, hostname, pool, reg, adm, logger,
		cfg.LeaseSeconds, cfg.ClaimInterval)

	// Reaper: competes for an advisory lock; the winner requeues deliveries
	// whose lease expired and frees their admission slots.
	go dispatch.RunReaper(ctx, pool, adm, logger)

	go w.Start(ctx)

	<-ctx.Done()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer drainCancel()
	if err := w.DrainAndWait(drainCtx); err != nil {
		logger.Warn("shutdown drain timeout; orphaned deliveries will be reaped", "err", err)
	}

	logger.Info("shutdown complete")
}
