package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	natspkg "github.com/brojonat/aleotx/service/nats"
)

// streamCommand follows recorded operations over the server's SSE endpoint.
func streamCommand() *cli.Command {
	return &cli.Command{
		Name:      "stream",
		Usage:     "Stream recorded operations via SSE (HTTP)",
		ArgsUsage: "[kind]",
		Description: `Follow operations as the server records them. Unlike "nats tail" this
only needs HTTP access to the server.

Example:
  aleotx sse stream transfer_public`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "count",
				Usage: "Stop after this many operations (0 streams until interrupted)",
			},
		},
		Action: func(c *cli.Context) error {
			serverURL := strings.TrimRight(c.String("server-url"), "/")
			if serverURL == "" {
				return fmt.Errorf("server-url is required")
			}
			kind := c.Args().First()
			jsonOutput := c.Bool("json")
			limit := c.Int("count")
			w := c.App.Writer

			url := serverURL + "/api/v1/stream/operations"
			if kind != "" {
				url += "/" + kind
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Accept", "text/event-stream")

			// No timeout for streaming
			resp, err := (&http.Client{}).Do(req)
			if err != nil {
				return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned status %d", resp.StatusCode)
			}

			received := 0
			err = readSSE(resp.Body, func(event, data string) error {
				switch event {
				case "connected":
					if !jsonOutput {
						fmt.Fprintf(os.Stderr, "Connected to %s (Ctrl+C to stop)\n\n", url)
					}
				case "operation":
					var op natspkg.OperationEvent
					if err := json.Unmarshal([]byte(data), &op); err != nil {
						return fmt.Errorf("failed to decode operation event: %w", err)
					}
					if jsonOutput {
						fmt.Fprintln(w, data)
					} else {
						printEvent(w, &op)
					}
					received++
					if limit > 0 && received >= limit {
						return errStreamDone
					}
				case "error":
					var info map[string]string
					json.Unmarshal([]byte(data), &info)
					return fmt.Errorf("server error: %s", info["error"])
				}
				return nil
			})
			if errors.Is(err, errStreamDone) || ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

var errStreamDone = errors.New("stream done")

// readSSE calls fn for each complete event read from r. Comment lines are
// skipped. It stops at EOF or at the first error fn returns.
func readSSE(r io.Reader, fn func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	var event string
	var data []string

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line ends an event
		if line == "" {
			if event != "" || len(data) > 0 {
				if event == "" {
					event = "message"
				}
				if err := fn(event, strings.Join(data, "\n")); err != nil {
					return err
				}
			}
			event, data = "", nil
			continue
		}

		switch {
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}
