package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/veilcash/veil/client"
	"github.com/veilcash/veil/service/ledger"
)

func ledgerCommands() *cli.Command {
	return &cli.Command{
		Name:  "ledger",
		Usage: "Transaction ledger inspection",
		Subcommands: []*cli.Command{
			listLedgerCommand(),
		},
	}
}

func listLedgerCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List ledger entries, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "type",
				Usage: "Filter by entry type (deposit, withdraw, deposit_and_withdraw, incoming, ...)",
			},
			&cli.IntFlag{
				Name:  "wallet-index",
				Usage: "Filter by wallet index",
				Value: -1,
			},
			&cli.DurationFlag{
				Name:  "since",
				Usage: "Only entries newer than this age (e.g. 24h)",
			},
			&cli.StringSliceFlag{
				Name:  "filter",
				Usage: "jq expression each entry must satisfy (repeatable)",
			},
		},
		Action: func(c *cli.Context) error {
			filter := client.LedgerFilter{Type: c.String("type")}
			if idx := c.Int("wallet-index"); idx >= 0 {
				filter.WalletIndex = &idx
			}
			if since := c.Duration("since"); since > 0 {
				cutoff := time.Now().Add(-since)
				filter.Since = &cutoff
			}

			// Compile jq filters up front so a bad expression fails before
			// any network I/O.
			exprs := c.StringSlice("filter")
			compiled := make([]*gojq.Code, len(exprs))
			for i, expr := range exprs {
				query, err := gojq.Parse(expr)
				if err != nil {
					return fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
				}
				compiled[i], err = gojq.Compile(query)
				if err != nil {
					return fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
				}
			}

			cl := client.NewClient(c.String("server"), nil, nil)
			entries, err := cl.ListLedger(c.Context, filter)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			for _, entry := range entries {
				if len(compiled) > 0 {
					ok, err := matchesFilters(entry, compiled)
					if err != nil {
						return err
					}
					if !ok {
						continue
					}
				}
				if err := enc.Encode(entry); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// matchesFilters reports whether every jq filter evaluates truthy against
// the entry's JSON form.
func matchesFilters(entry *ledger.Entry, filters []*gojq.Code) (bool, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return false, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, err
	}

	for _, code := range filters {
		iter := code.Run(doc)
		v, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if err, isErr := v.(error); isErr {
			return false, fmt.Errorf("jq filter error: %w", err)
		}
		if !isTruthy(v) {
			return false, nil
		}
	}
	return true, nil
}

// isTruthy follows jq semantics: false and null are falsy, everything else
// is truthy.
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
