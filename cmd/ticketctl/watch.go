// cmd/ticketctl/watch.go — ticketctl watch subcommand. Streams job events
// over the realtime WebSocket.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
)

func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "API base URL")
	token := fs.String("token", "", "bearer token (optional in development)")
	user := fs.String("user", "", "watch one user's events instead of the admin stream")
	_ = fs.Parse(args)

	wsURL, err := toWebSocketURL(*server)
	if err != nil {
		fatal("watch", err)
	}

	header := http.Header{}
	if *token != "" {
		header.Set("Authorization", "Bearer "+*token)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		fatal("watch", err)
	}
	defer conn.Close()

	join := map[string]string{"type": "join:admin"}
	if *user != "" {
		join = map[string]string{"type": "join:user", "userId": *user}
	}
	if err := conn.WriteJSON(join); err != nil {
		fatal("watch", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	fmt.Println("watching job events (ctrl-c to stop)")

	for {
		var frame struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return
			}
			fmt.Fprintf(os.Stderr, "watch: stream error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%-16s  %s\n", frame.Event, frame.Data)
	}
}

func toWebSocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		if !strings.HasPrefix(u.Scheme, "ws") {
			return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
	}
	u.Path = "/ws"
	return u.String(), nil
}
