package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/veilcash/veil/client"
	"github.com/veilcash/veil/service/chain"
)

func balanceCommands() *cli.Command {
	return &cli.Command{
		Name:  "balance",
		Usage: "Live on-chain balance queries",
		Subcommands: []*cli.Command{
			nativeBalanceCommand(),
			tokenBalanceCommand(),
		},
	}
}

func nativeBalanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "native",
		Usage:     "Query a native balance (SOL, ETH, AVAX)",
		ArgsUsage: "NETWORK ADDRESS",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("usage: veil balance native NETWORK ADDRESS")
			}
			network, err := chain.ParseNetwork(c.Args().Get(0))
			if err != nil {
				return err
			}
			address := c.Args().Get(1)

			cl := client.NewClient(c.String("server"), nil, nil)
			b, err := cl.GetBalance(c.Context, network, address, "")
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return json.NewEncoder(os.Stdout).Encode(b)
			}
			fmt.Printf("%s %s (%s base units)\n", b.Balance.String(), b.Symbol, b.BaseUnit)
			return nil
		},
	}
}

func tokenBalanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "token",
		Usage:     "Query an ERC20 token balance",
		ArgsUsage: "NETWORK TOKEN_CONTRACT OWNER_ADDRESS",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 3 {
				return fmt.Errorf("usage: veil balance token NETWORK TOKEN_CONTRACT OWNER_ADDRESS")
			}
			network, err := chain.ParseNetwork(c.Args().Get(0))
			if err != nil {
				return err
			}
			token := c.Args().Get(1)
			owner := c.Args().Get(2)

			cl := client.NewClient(c.String("server"), nil, nil)
			b, err := cl.GetBalance(c.Context, network, owner, token)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return json.NewEncoder(os.Stdout).Encode(b)
			}
			fmt.Printf("%s base units of %s\n", b.BaseUnit, token)
			return nil
		},
	}
}
