package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/aleotx/client"
)

func ledgerClient(c *cli.Context) *client.LedgerClient {
	return client.NewLedgerClient(c.String("ledger-rpc-url"), 0, nil, cliLogger())
}

func ledgerHeightCommand() *cli.Command {
	return &cli.Command{
		Name:  "height",
		Usage: "Show the latest block height",
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			height, err := ledgerClient(c).LatestHeight(ctx)
			if err != nil {
				return fmt.Errorf("failed to read height: %w", err)
			}

			if c.Bool("json") {
				return printJSON(c.App.Writer, map[string]uint64{"height": height})
			}
			fmt.Fprintf(c.App.Writer, "Height: %d\n", height)
			return nil
		},
	}
}

func ledgerTransactionCommand() *cli.Command {
	return &cli.Command{
		Name:      "tx",
		Usage:     "Fetch a confirmed transaction",
		ArgsUsage: "TRANSACTION_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("transaction id is required")
			}
			id := c.Args().Get(0)
			if !client.TransactionID(id).WellFormed() {
				return fmt.Errorf("%q is not a well-formed transaction id", id)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			tx, err := ledgerClient(c).Transaction(ctx, id)
			if errors.Is(err, client.ErrNotFound) {
				return fmt.Errorf("transaction %s not found", id)
			}
			if err != nil {
				return fmt.Errorf("failed to fetch transaction: %w", err)
			}

			if c.Bool("json") {
				var doc any
				if err := json.Unmarshal(tx.Raw, &doc); err != nil {
					return fmt.Errorf("failed to decode transaction: %w", err)
				}
				return printJSON(c.App.Writer, doc)
			}
			fmt.Fprintf(c.App.Writer, "ID:    %s\n", tx.ID)
			fmt.Fprintf(c.App.Writer, "Type:  %s\n", tx.Type)
			return nil
		},
	}
}
