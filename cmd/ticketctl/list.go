// cmd/ticketctl/list.go — ticketctl list subcommand.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"net/url"

	"github.com/armandavtyann/ticket/internal/domain"
)

func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "API base URL")
	token := fs.String("token", "", "bearer token (optional in development)")
	status := fs.String("status", "", "filter by status")
	jobType := fs.String("type", "", "filter by job type")
	user := fs.String("user", "", "filter by user id (admin only)")
	_ = fs.Parse(args)

	q := url.Values{}
	if *status != "" {
		q.Set("status", *status)
	}
	if *jobType != "" {
		q.Set("type", *jobType)
	}
	if *user != "" {
		q.Set("userId", *user)
	}

	path := "/api/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Jobs []domain.Job `json:"jobs"`
	}
	if err := newClient(*server, *token).do(http.MethodGet, path, nil, &resp); err != nil {
		fatal("list", err)
	}

	for _, job := range resp.Jobs {
		fmt.Printf("%-36s  %-12s  %-10s  %3d%%  %s\n",
			job.ID, job.Type, job.Status, job.Progress,
			job.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("%d job(s)\n", len(resp.Jobs))
}
