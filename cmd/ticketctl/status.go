// cmd/ticketctl/status.go — ticketctl status subcommand.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/armandavtyann/ticket/internal/domain"
)

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "API base URL")
	token := fs.String("token", "", "bearer token (optional in development)")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "status: job id argument required")
		os.Exit(1)
	}
	jobID := fs.Arg(0)

	var resp struct {
		Job     domain.Job        `json:"job"`
		Items   []domain.JobItem  `json:"items"`
		Summary domain.JobSummary `json:"summary"`
	}
	if err := newClient(*server, *token).do(http.MethodGet, "/api/jobs/"+jobID, nil, &resp); err != nil {
		fatal("status", err)
	}

	fmt.Printf("job_id:    %s\n", resp.Job.ID)
	fmt.Printf("type:      %s\n", resp.Job.Type)
	fmt.Printf("status:    %s\n", resp.Job.Status)
	fmt.Printf("progress:  %d%%\n", resp.Job.Progress)
	fmt.Printf("items:     %d total, %d succeeded, %d failed\n",
		resp.Summary.Total, resp.Summary.Succeeded, resp.Summary.Failed)

	for _, it := range resp.Items {
		if it.Success {
			continue
		}
		msg := ""
		if it.Error != nil {
			msg = *it.Error
		}
		fmt.Printf("  failed: %s  %s\n", it.TicketID, msg)
	}
}
