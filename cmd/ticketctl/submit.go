// cmd/ticketctl/submit.go — ticketctl submit subcommand.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/armandavtyann/ticket/internal/domain"
)

func runSubmit(args []string) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "API base URL")
	token := fs.String("token", "", "bearer token (optional in development)")
	tickets := fs.String("tickets", "", "comma-separated ticket ids (required)")
	key := fs.String("key", "", "idempotency key (optional; derived when empty)")
	_ = fs.Parse(args)

	if *tickets == "" {
		fmt.Fprintln(os.Stderr, "submit: --tickets is required")
		fs.Usage()
		os.Exit(1)
	}

	ids := strings.Split(*tickets, ",")
	for i := range ids {
		ids[i] = strings.TrimSpace(ids[i])
	}

	req := map[string]any{
		"type":    domain.TypeBulkDelete,
		"payload": map[string]any{"ticketIds": ids},
	}
	if *key != "" {
		req["idempotencyKey"] = *key
	}

	var resp struct {
		Message string     `json:"message"`
		Job     domain.Job `json:"job"`
	}
	if err := newClient(*server, *token).do(http.MethodPost, "/api/jobs", req, &resp); err != nil {
		fatal("submit", err)
	}

	if resp.Message != "" {
		fmt.Println(resp.Message)
	}
	fmt.Printf("job_id:   %s\n", resp.Job.ID)
	fmt.Printf("status:   %s\n", resp.Job.Status)
	fmt.Printf("tickets:  %d\n", len(ids))
}
