package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/aleotx/client"
)

func submitCommand() *cli.Command {
	return &cli.Command{
		Name:      "submit",
		Usage:     "Build and submit an operation",
		ArgsUsage: "KIND",
		Description: `Submit an operation through the aleotx server.

Kinds: ` + strings.Join(kindNames(), ", ") + `

Examples:
  aleotx op submit --recipient aleo1... --amount 1.5 --wait transfer
  aleotx op submit --amount 2 --meta pool=credits-usdc --async swap`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "recipient",
				Aliases: []string{"r"},
				Usage:   "Recipient address (defaults to the treasury)",
			},
			&cli.Float64Flag{
				Name:    "amount",
				Aliases: []string{"a"},
				Usage:   "Amount in display units",
			},
			&cli.Uint64Flag{
				Name:  "fee",
				Usage: "Fee in base units",
			},
			&cli.StringSliceFlag{
				Name:  "meta",
				Usage: "Metadata as key=value (repeatable)",
			},
			&cli.BoolFlag{
				Name:    "wait",
				Aliases: []string{"w"},
				Usage:   "Wait for on-chain confirmation",
			},
			&cli.BoolFlag{
				Name:  "async",
				Usage: "Run as a durable workflow and return its id",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("operation kind is required")
			}
			kind := client.OperationKind(c.Args().Get(0))
			if !kind.Valid() {
				return fmt.Errorf("unknown operation kind %q", kind)
			}

			metadata, err := parseMetadata(c.StringSlice("meta"))
			if err != nil {
				return err
			}

			sub := client.OperationSubmission{
				Kind: kind,
				BuildParams: client.BuildParams{
					Recipient: c.String("recipient"),
					Metadata:  metadata,
				},
				WaitForConfirmation: c.Bool("wait"),
				Async:               c.Bool("async"),
			}
			if c.IsSet("amount") {
				sub.Amount = client.Ptr(c.Float64("amount"))
			}
			if c.IsSet("fee") {
				sub.Fee = client.Ptr(c.Uint64("fee"))
			}

			status, err := serviceClient(c).Submit(context.Background(), sub)
			if client.IsUserRejection(err) {
				// A rejection is the user's own choice, not a failure.
				fmt.Fprintf(c.App.Writer, "Cancelled: %s\n", client.KindUserRejected.UserMessage())
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to submit operation: %w", err)
			}

			if c.Bool("json") {
				return printJSON(c.App.Writer, status)
			}
			printStatus(c.App.Writer, status)
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the status of an async operation",
		ArgsUsage: "WORKFLOW_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("workflow id is required")
			}

			status, err := serviceClient(c).Operation(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to get operation: %w", err)
			}

			if c.Bool("json") {
				return printJSON(c.App.Writer, status)
			}
			printStatus(c.App.Writer, status)
			return nil
		},
	}
}

// parseMetadata turns key=value pairs into a metadata map.
func parseMetadata(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	metadata := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata %q: expected key=value", pair)
		}
		metadata[key] = value
	}
	return metadata, nil
}

func kindNames() []string {
	kinds := client.OperationKinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return names
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func printStatus(w io.Writer, status *client.OperationStatus) {
	if status.WorkflowID != "" {
		fmt.Fprintf(w, "Workflow:    %s\n", status.WorkflowID)
	}
	fmt.Fprintf(w, "Status:      %s\n", status.Status)
	if status.Error != "" {
		fmt.Fprintf(w, "Error:       %s (%s)\n", status.Error, status.ErrorKind)
	}
	if status.Outcome == nil {
		return
	}

	if req := status.Outcome.Request; req != nil {
		fmt.Fprintf(w, "Kind:        %s\n", req.Kind)
		fmt.Fprintf(w, "Recipient:   %s\n", client.FormatAddressForDisplay(req.RecipientAddress, 10, 6))
		fmt.Fprintf(w, "Amount:      %s\n", formatDisplay(req.AmountBaseUnits))
		if req.AmountClamped {
			fmt.Fprintf(w, "             (raised from %s to the minimum)\n", formatDisplay(req.RequestedBaseUnits))
		}
	}
	if res := status.Outcome.Result; res != nil {
		fmt.Fprintf(w, "State:       %s\n", res.State)
		if res.ProvisionalID != "" {
			fmt.Fprintf(w, "Request ID:  %s\n", res.ProvisionalID)
		}
		if res.FinalID != "" {
			fmt.Fprintf(w, "Transaction: %s\n", res.FinalID)
		}
		fmt.Fprintf(w, "Attempts:    %d\n", res.Attempts)
		if res.Polls > 0 {
			fmt.Fprintf(w, "Polls:       %d\n", res.Polls)
		}
	}
	if entry := status.Outcome.Entry; entry != nil {
		fmt.Fprintf(w, "History ID:  %s\n", entry.ID)
		if entry.ExplorerLink != "" {
			fmt.Fprintf(w, "Explorer:    %s\n", entry.ExplorerLink)
		}
		fmt.Fprintf(w, "Recorded:    %s\n", entry.CreatedTime().Format(time.RFC3339))
	}
}

func formatDisplay(base uint64) string {
	return fmt.Sprintf("%.6f", client.ToDisplayUnits(base))
}
