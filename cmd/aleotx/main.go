package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/aleotx/client"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "aleotx",
		Usage: "Aleo transaction submission and confirmation CLI",
		Description: `A command-line tool for the aleotx service.

Use this CLI to submit operations, inspect history, query the ledger, and tail
recorded operations from NATS.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Operation commands (HTTP API)
			{
				Name:  "op",
				Usage: "Submit and inspect operations",
				Subcommands: []*cli.Command{
					submitCommand(),
					statusCommand(),
				},
			},
			// History commands (HTTP API)
			{
				Name:  "history",
				Usage: "Inspect and clear the operation history",
				Subcommands: []*cli.Command{
					listHistoryCommand(),
					clearHistoryCommand(),
				},
			},
			// Ledger commands (ledger RPC)
			{
				Name:  "ledger",
				Usage: "Read from the ledger RPC",
				Subcommands: []*cli.Command{
					ledgerHeightCommand(),
					ledgerTransactionCommand(),
				},
			},
			// Relayer commands
			{
				Name:  "relayer",
				Usage: "Relayer commands",
				Subcommands: []*cli.Command{
					withdrawCommand(),
				},
			},
			// Offline unit and address helpers
			{
				Name:  "units",
				Usage: "Convert amounts and check addresses",
				Subcommands: []*cli.Command{
					toBaseCommand(),
					toDisplayCommand(),
					checkAddressCommand(),
				},
			},
			// NATS streaming commands
			{
				Name:  "nats",
				Usage: "NATS operation streaming commands",
				Subcommands: []*cli.Command{
					tailCommand(),
				},
			},
			// SSE streaming commands (HTTP API)
			{
				Name:  "sse",
				Usage: "Server-Sent Events streaming commands",
				Subcommands: []*cli.Command{
					streamCommand(),
				},
			},
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "aleotx server URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "ledger-rpc-url",
				Usage:   "Ledger RPC base URL",
				EnvVars: []string{"LEDGER_RPC_URL"},
				Value:   client.DefaultLedgerRPCURL,
			},
			&cli.StringFlag{
				Name:    "relayer-url",
				Usage:   "Relayer base URL",
				EnvVars: []string{"RELAYER_URL"},
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}

// cliLogger logs errors only, to stderr.
func cliLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func serviceClient(c *cli.Context) *client.Client {
	return client.NewClient(c.String("server-url"), nil, cliLogger())
}
