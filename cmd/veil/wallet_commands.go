package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/veilcash/veil/client"
)

func walletCommands() *cli.Command {
	return &cli.Command{
		Name:  "wallet",
		Usage: "Tracked wallet inspection",
		Subcommands: []*cli.Command{
			listWalletsCommand(),
		},
	}
}

func listWalletsCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List tracked wallet records",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			cl := client.NewClient(c.String("server"), nil, nil)
			wallets, err := cl.ListWallets(c.Context)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(wallets)
			}

			for _, w := range wallets {
				status := "inactive"
				if w.IsActive && !w.Archived {
					status = "active"
				} else if w.Archived {
					status = "archived"
				}
				fmt.Printf("%d\t%s\t%s\t%s\t%s\n", w.Index, w.Network, w.Address, w.Balance.String(), status)
			}
			return nil
		},
	}
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check daemon health",
		Action: func(c *cli.Context) error {
			cl := client.NewClient(c.String("server"), nil, nil)
			if err := cl.Health(c.Context); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	}
}
