package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/armandavtyann/ticket/internal/config"
	"github.com/armandavtyann/ticket/internal/db"
	"github.com/armandavtyann/ticket/internal/migrate"
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer pool.Close()

	log.Println("connected to database")

	if err := migrate.Run(ctx, pool, nil); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	log.Println("migrations complete")
}
