package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "veil",
		Usage: "privacy wallet core CLI",
		Description: `A command-line tool for managing and debugging the veil daemon.

Use this CLI to query live balances, inspect the transaction ledger and
tracked wallets, and run one-shot monitor sweeps.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			balanceCommands(),
			ledgerCommands(),
			walletCommands(),
			monitorCommands(),
			healthCommand(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Daemon URL",
				EnvVars: []string{"VEIL_SERVER_URL"},
				Value:   "http://localhost:8080",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
