// cmd/ticketctl/cancel.go — ticketctl cancel subcommand.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/armandavtyann/ticket/internal/domain"
)

func runCancel(args []string) {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "API base URL")
	token := fs.String("token", "", "bearer token (optional in development)")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "cancel: job id argument required")
		os.Exit(1)
	}
	jobID := fs.Arg(0)

	var resp struct {
		Job domain.Job `json:"job"`
	}
	if err := newClient(*server, *token).do(http.MethodPost, "/api/jobs/"+jobID+"/cancel", nil, &resp); err != nil {
		fatal("cancel", err)
	}

	fmt.Printf("job_id:  %s\n", resp.Job.ID)
	fmt.Printf("status:  %s\n", resp.Job.Status)
}
