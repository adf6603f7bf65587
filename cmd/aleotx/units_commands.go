package main

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/aleotx/client"
)

func toBaseCommand() *cli.Command {
	return &cli.Command{
		Name:      "to-base",
		Usage:     "Convert a display amount to base units",
		ArgsUsage: "AMOUNT",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("amount is required")
			}
			display, err := strconv.ParseFloat(c.Args().Get(0), 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", c.Args().Get(0), err)
			}
			base, err := client.ToBaseUnits(display)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, base)
			return nil
		},
	}
}

func toDisplayCommand() *cli.Command {
	return &cli.Command{
		Name:      "to-display",
		Usage:     "Convert base units to a display amount",
		ArgsUsage: "BASE_UNITS",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("base units are required")
			}
			base, err := strconv.ParseUint(c.Args().Get(0), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid base units %q: %w", c.Args().Get(0), err)
			}
			fmt.Fprintln(c.App.Writer, strconv.FormatFloat(client.ToDisplayUnits(base), 'f', -1, 64))
			return nil
		},
	}
}

func checkAddressCommand() *cli.Command {
	return &cli.Command{
		Name:      "check-address",
		Usage:     "Check that an address is well-formed",
		ArgsUsage: "ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("address is required")
			}
			addr := c.Args().Get(0)
			if !client.IsValidAddress(addr) {
				return fmt.Errorf("%s is not a valid address", client.FormatAddressForDisplay(addr, 10, 6))
			}
			fmt.Fprintf(c.App.Writer, "✓ %s is valid\n", client.FormatAddressForDisplay(addr, 10, 6))
			return nil
		},
	}
}
