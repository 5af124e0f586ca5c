package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/veilcash/veil/service/chain"
	"github.com/veilcash/veil/service/config"
	"github.com/veilcash/veil/service/events"
	"github.com/veilcash/veil/service/evm"
	"github.com/veilcash/veil/service/ledger"
	"github.com/veilcash/veil/service/metrics"
	"github.com/veilcash/veil/service/monitor"
	"github.com/veilcash/veil/service/rpcpool"
	"github.com/veilcash/veil/service/server"
	"github.com/veilcash/veil/service/solana"
	"github.com/veilcash/veil/service/storage"
	"github.com/veilcash/veil/service/wallet"
)

func main() {
	// Load and validate configuration from environment.
	// This fails fast if any required config is missing or invalid.
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting veild",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"monitor_interval", cfg.MonitorInterval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Storage: Postgres when configured, in-memory otherwise.
	var kv storage.Store
	if cfg.DatabaseURL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		pg, err := storage.NewPostgres(ctx, dbPool)
		if err != nil {
			logger.Error("failed to initialize postgres storage", "error", err)
			os.Exit(1)
		}
		kv = pg
		logger.Info("connected to database")
	} else {
		kv = storage.NewMemory()
		logger.Warn("DATABASE_URL not set, using in-memory storage")
	}

	// Event publisher is optional; the monitor degrades to log-only.
	var publisher events.Publisher
	if cfg.NATSURL != "" {
		js, err := events.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer js.Close()
		publisher = js
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	} else {
		logger.Warn("NATS_URL not set, event publishing disabled")
	}

	reader, err := buildReader(cfg, m, logger)
	if err != nil {
		logger.Error("failed to initialize chain readers", "error", err)
		os.Exit(1)
	}

	wallets := wallet.NewStore(kv)
	txLedger := ledger.New(kv, m, logger)

	mon := monitor.New(reader, wallets, txLedger, publisher, m, logger, cfg.MonitorInterval)
	if err := mon.Start(ctx); err != nil {
		logger.Error("failed to start monitor", "error", err)
		os.Exit(1)
	}
	defer mon.Stop()

	httpServer := server.New(cfg.ServerAddr, wallets, txLedger, reader, m, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}
		logger.Info("shutdown complete")
	}
}

// buildReader wires one resilient client per configured network.
func buildReader(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*chain.Reader, error) {
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
	solanaRPC, err := rpcpool.New(solanaPool, solanaPolicy, string(chain.NetworkSolana), m, logger)
	if err != nil {
		return nil, err
	}
	solanaClient := solana.NewClient(solanaRPC, logger)
	logger.Info("initialized solana client", "endpoints", solanaPool.Size())

	evmReaders := make(map[chain.Network]chain.EVMReader)
	for _, network := range chain.Networks() {
		if !network.IsEVM() {
			continue
		}
		urls := cfg.RPCEndpoints[network]
		if len(urls) == 0 {
			continue
		}
		pool, err := rpcpool.NewPool(urls)
		if err != nil {
			return nil, err
		}
		rpc, err := rpcpool.New(pool, evmPolicy, string(network), m, logger)
		if err != nil {
			return nil, err
		}
		evmReaders[network] = evm.NewClient(rpc, logger)
		logger.Info("initialized evm client", "network", network, "endpoints", pool.Size())
	}

	return chain.NewReader(solanaClient, evmReaders), nil
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
