package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/aleotx/client"
)

func listHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List recorded operations, newest first",
		Description: `List recorded operations from the server's history.

Entries can be filtered by kind, age, and jq expressions evaluated against
each entry's JSON. All --must-jq filters must be truthy for an entry to match.

Examples:
  aleotx history list --kind swap --since 24h
  aleotx history list --must-jq '.state == "failed"' --must-jq '.metadata.pool != null'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "kind",
				Usage: "Only show this operation kind",
			},
			&cli.DurationFlag{
				Name:  "since",
				Usage: "Only show entries recorded within this duration",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum entries to fetch",
				Value: 50,
			},
			&cli.StringSliceFlag{
				Name:  "must-jq",
				Usage: "jq expression that must be truthy for an entry (repeatable)",
			},
		},
		Action: func(c *cli.Context) error {
			filters, err := compileJQ(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			q := client.HistoryQuery{
				Kind:  client.OperationKind(c.String("kind")),
				Limit: c.Int("limit"),
			}
			if since := c.Duration("since"); since > 0 {
				q.StartTime = time.Now().Add(-since).UnixMilli()
			}

			entries, err := serviceClient(c).History(context.Background(), q)
			if err != nil {
				return fmt.Errorf("failed to list history: %w", err)
			}

			matched := make([]client.HistoryEntry, 0, len(entries))
			for _, entry := range entries {
				ok, err := matchesAll(entry, filters)
				if err != nil {
					return err
				}
				if ok {
					matched = append(matched, entry)
				}
			}

			if c.Bool("json") {
				return printJSON(c.App.Writer, matched)
			}
			printHistory(c.App.Writer, matched)
			return nil
		},
	}
}

func clearHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Delete every recorded operation",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "yes",
				Usage: "Confirm deletion",
			},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("yes") {
				return fmt.Errorf("refusing to clear history without --yes")
			}
			if err := serviceClient(c).ClearHistory(context.Background()); err != nil {
				return fmt.Errorf("failed to clear history: %w", err)
			}
			fmt.Fprintln(c.App.Writer, "✓ History cleared")
			return nil
		},
	}
}

func compileJQ(filters []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return compiled, nil
}

// matchesAll reports whether every filter is truthy for entry's JSON form.
func matchesAll(entry client.HistoryEntry, filters []*gojq.Code) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}

	// gojq works on plain JSON values, not structs.
	data, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("failed to marshal entry: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("failed to unmarshal entry: %w", err)
	}

	for _, code := range filters {
		v, ok := code.Run(doc).Next()
		if !ok {
			return false, nil
		}
		if _, isErr := v.(error); isErr {
			return false, nil
		}
		if !isTruthy(v) {
			return false, nil
		}
	}
	return true, nil
}

// isTruthy follows jq semantics: only false and null are falsy.
func isTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	default:
		return true
	}
}

func printHistory(w io.Writer, entries []client.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No operations recorded")
		return
	}

	fmt.Fprintf(w, "%-20s  %-18s  %-10s  %14s  %s\n", "RECORDED", "KIND", "STATE", "AMOUNT", "TRANSACTION")
	for _, e := range entries {
		tx := string(e.FinalID)
		if tx == "" {
			tx = e.ProvisionalID
		}
		fmt.Fprintf(w, "%-20s  %-18s  %-10s  %14s  %s\n",
			e.CreatedTime().UTC().Format("2006-01-02 15:04:05"),
			e.Kind,
			e.State,
			formatDisplay(e.AmountBaseUnits),
			tx,
		)
	}
	fmt.Fprintf(w, "\n%d operation(s)\n", len(entries))
}
