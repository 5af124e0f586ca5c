// Package server exposes the wallet core over HTTP: tracked wallets, the
// transaction ledger and live balance queries.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veilcash/veil/service/chain"
	"github.com/veilcash/veil/service/ledger"
	"github.com/veilcash/veil/service/metrics"
	"github.com/veilcash/veil/service/wallet"
)

// Server represents the HTTP server for the wallet core.
type Server struct {
	addr    string
	wallets *wallet.Store
	ledger  *ledger.Ledger
	reader  *chain.Reader
	metrics *metrics.Metrics
	logger  *slog.Logger
	server  *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The metrics is optional - if nil, the /metrics endpoint won't be available.
func New(addr string, wallets *wallet.Store, l *ledger.Ledger, reader *chain.Reader, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:    addr,
		wallets: wallets,
		ledger:  l,
		reader:  reader,
		metrics: m,
		logger:  logger,
	}
}

// Start starts the HTTP server and blocks until it is shut down.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.Handle("GET /api/v1/wallets", handleListWallets(s.wallets, s.logger))
	mux.Handle("GET /api/v1/wallets/{index}", handleGetWallet(s.wallets, s.logger))
	mux.Handle("GET /api/v1/ledger", handleListLedger(s.ledger, s.logger))
	mux.Handle("GET /api/v1/balances/{network}/{address}", handleGetBalance(s.reader, s.logger))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	handler := corsMiddleware(mux)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS
// preflight requests. The extension popup calls this API cross-origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
