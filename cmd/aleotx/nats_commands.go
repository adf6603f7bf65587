package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	natspkg "github.com/brojonat/aleotx/service/nats"
)

// tailCommand streams recorded operations from NATS JetStream.
func tailCommand() *cli.Command {
	return &cli.Command{
		Name:      "tail",
		Usage:     "Stream recorded operations",
		ArgsUsage: "[kind]",
		Description: `Stream operations as they are written to history.

Events are published to the subject ops.{kind}. Without a kind, every kind is
streamed.

Example:
  aleotx --json nats tail --from-start swap`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "durable",
				Usage: "Durable consumer name (survives restarts)",
			},
			&cli.BoolFlag{
				Name:  "from-start",
				Usage: "Replay the retained stream before new events",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Stop after this long (0 runs until interrupted)",
			},
		},
		Action: func(c *cli.Context) error {
			opts := natspkg.TailOptions{
				Kind:      c.Args().Get(0),
				Durable:   c.String("durable"),
				FromStart: c.Bool("from-start"),
			}
			jsonOutput := c.Bool("json")
			w := c.App.Writer

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout := c.Duration("timeout"); timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Tailing %s on %s (Ctrl+C to stop)\n\n", natspkg.SubjectFor(opts.Kind), c.String("nats-url"))
			}

			count := 0
			err := natspkg.Tail(ctx, c.String("nats-url"), opts, cliLogger(), func(event *natspkg.OperationEvent) {
				count++
				if jsonOutput {
					printJSON(w, event)
					return
				}
				printEvent(w, event)
			})
			if err != nil {
				return fmt.Errorf("tail failed: %w", err)
			}

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "\nReceived %d event(s)\n", count)
			}
			return nil
		},
	}
}

func printEvent(w io.Writer, event *natspkg.OperationEvent) {
	tx := event.FinalID
	if tx == "" {
		tx = event.ProvisionalID
	}
	fmt.Fprintf(w, "[%s] %-18s %-10s %s",
		event.CreatedAt.Format(time.TimeOnly),
		event.Kind,
		event.State,
		tx,
	)
	if event.ErrorKind != "" {
		fmt.Fprintf(w, " (%s)", event.ErrorKind)
	}
	fmt.Fprintln(w)
}
