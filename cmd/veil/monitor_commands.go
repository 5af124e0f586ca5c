package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/veilcash/veil/service/chain"
	"github.com/veilcash/veil/service/config"
	"github.com/veilcash/veil/service/evm"
	"github.com/veilcash/veil/service/ledger"
	"github.com/veilcash/veil/service/monitor"
	"github.com/veilcash/veil/service/rpcpool"
	"github.com/veilcash/veil/service/solana"
	"github.com/veilcash/veil/service/storage"
	"github.com/veilcash/veil/service/wallet"
)

func monitorCommands() *cli.Command {
	return &cli.Command{
		Name:  "monitor",
		Usage: "Balance monitor utilities",
		Subcommands: []*cli.Command{
			tickCommand(),
		},
	}
}

// tickCommand runs one monitor sweep directly against storage, without a
// running daemon. Useful for cron-style setups and debugging.
func tickCommand() *cli.Command {
	return &cli.Command{
		Name:  "tick",
		Usage: "Run a single monitor sweep over all tracked wallets",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for a one-shot tick")
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelWarn,
			}))

			dbPool, err := pgxpool.New(c.Context, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer dbPool.Close()

			kv, err := storage.NewPostgres(c.Context, dbPool)
			if err != nil {
				return err
			}

			reader, err := buildReader(cfg, logger)
			if err != nil {
				return err
			}

			wallets := wallet.NewStore(kv)
			txLedger := ledger.New(kv, nil, logger)
			mon := monitor.New(reader, wallets, txLedger, nil, nil, logger, cfg.MonitorInterval)

			if err := mon.Tick(c.Context); err != nil {
				return err
			}
			fmt.Println("tick complete")
			return nil
		},
	}
}

// buildReader wires one resilient client per configured network, mirroring
// the daemon's wiring without metrics or events.
func buildReader(cfg *config.Config, logger *slog.Logger) (*chain.Reader, error) {
	solanaPolicy := rpcpool.DefaultSolanaPolicy()
	solanaPolicy.MaxAttempts = cfg.RPCMaxAttempts
	solanaPolicy.BaseDelay = cfg.RPCBaseDelay

	evmPolicy := rpcpool.DefaultEVMPolicy()
	evmPolicy.MaxAttempts = cfg.RPCMaxAttempts
	evmPolicy.BaseDelay = cfg.RPCBaseDelay

	solanaPool, err := rpcpool.NewPool(cfg.RPCEndpoints[chain.NetworkSolana])
	if err != nil {
		return nil, err
	}
	solanaRPC, err := rpcpool.New(solanaPool, solanaPolicy, string(chain.NetworkSolana), nil, logger)
	if err != nil {
		return nil, err
	}

	evmReaders := make(map[chain.Network]chain.EVMReader)
	for _, network := range chain.Networks() {
		if !network.IsEVM() || len(cfg.RPCEndpoints[network]) == 0 {
			continue
		}
		pool, err := rpcpool.NewPool(cfg.RPCEndpoints[network])
		if err != nil {
			return nil, err
		}
		rpc, err := rpcpool.New(pool, evmPolicy, string(network), nil, logger)
		if err != nil {
			return nil, err
		}
		evmReaders[network] = evm.NewClient(rpc, logger)
	}

	return chain.NewReader(solana.NewClient(solanaRPC, logger), evmReaders), nil
}
