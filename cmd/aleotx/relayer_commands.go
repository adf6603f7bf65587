package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/aleotx/client"
)

func withdrawCommand() *cli.Command {
	return &cli.Command{
		Name:      "withdraw",
		Usage:     "Withdraw a treasury balance through the relayer",
		ArgsUsage: "DESTINATION_ADDRESS",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "username",
				Aliases:  []string{"u"},
				Usage:    "Account username",
				Required: true,
			},
			&cli.Float64Flag{
				Name:     "amount",
				Aliases:  []string{"a"},
				Usage:    "Amount in display units",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("destination address is required")
			}
			relayerURL := c.String("relayer-url")
			if relayerURL == "" {
				return fmt.Errorf("relayer-url is required (set RELAYER_URL env var or use --relayer-url)")
			}

			resp, err := client.NewRelayerClient(relayerURL, nil, cliLogger()).Withdraw(context.Background(), client.WithdrawRequest{
				Username:           c.String("username"),
				Amount:             c.Float64("amount"),
				DestinationAddress: c.Args().Get(0),
			})
			if err != nil {
				return fmt.Errorf("withdrawal failed: %w", err)
			}

			if c.Bool("json") {
				return printJSON(c.App.Writer, resp)
			}
			fmt.Fprintf(c.App.Writer, "✓ Withdrawal submitted\n")
			fmt.Fprintf(c.App.Writer, "  Tx hash: %s\n", resp.TxHash)
			return nil
		},
	}
}
