// cmd/seed/main.go — fills the tickets table with sample data for local
// development.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os/signal"
	"syscall"

	"github.com/armandavtyann/ticket/internal/config"
	"github.com/armandavtyann/ticket/internal/db"
	"github.com/armandavtyann/ticket/internal/domain"
	"github.com/armandavtyann/ticket/internal/migrate"
	"github.com/armandavtyann/ticket/internal/tickets"
)

var titles = []string{
	"Cannot log in to the portal",
	"Invoice PDF renders blank",
	"Search results missing recent entries",
	"Password reset email never arrives",
	"Dashboard widgets load forever",
	"Export job times out on large accounts",
	"Duplicate notification emails",
	"Mobile app crashes on startup",
	"Attachment upload fails over 10 MB",
	"Wrong timezone on report timestamps",
}

var descriptions = []string{
	"Reported by several users since this morning.",
	"Reproducible on staging with the default account.",
	"Started after the last deploy.",
	"Only affects accounts created before 2024.",
	"Workaround exists but is painful.",
}

var statuses = []domain.TicketStatus{
	domain.TicketOpen,
	domain.TicketInProgress,
	domain.TicketResolved,
	domain.TicketClosed,
}

func main() {
	count := flag.Int("count", 50, "number of tickets to create")
	flag.Parse()

	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer pool.Close()

	if err := migrate.Run(ctx, pool, nil); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	store := tickets.NewStore(pool)
	for i := 0; i < *count; i++ {
		title := fmt.Sprintf("%s #%d", titles[rand.Intn(len(titles))], i+1)
		desc := descriptions[rand.Intn(len(descriptions))]
		status := statuses[rand.Intn(len(statuses))]

		if _, err := store.Create(ctx, title, &desc, status); err != nil {
			log.Fatalf("create ticket: %v", err)
		}
	}

	log.Printf("seeded %d tickets", *count)
}
