package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veilcash/veil/service/chain"
	"github.com/veilcash/veil/service/ledger"
	"github.com/veilcash/veil/service/wallet"
)

// handleListWallets returns a handler that lists all tracked wallet records.
// GET /api/v1/wallets
func handleListWallets(wallets *wallet.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		all, err := wallets.List(r.Context())
		if err != nil {
			logger.Error("failed to list wallets", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Debug("wallets listed", "count", len(all))
		writeJSON(w, map[string]any{"wallets": all}, http.StatusOK)
	})
}

// handleGetWallet returns a handler that retrieves one wallet record.
// GET /api/v1/wallets/{index}
func handleGetWallet(wallets *wallet.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.Atoi(r.PathValue("index"))
		if err != nil {
			writeError(w, "invalid wallet index", http.StatusBadRequest)
			return
		}

		rec, err := wallets.Get(r.Context(), index)
		if err != nil {
			if errors.Is(err, wallet.ErrNotFound) {
				writeError(w, "wallet not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get wallet", "index", index, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, rec, http.StatusOK)
	})
}

// handleListLedger returns a handler that lists ledger entries, newest first.
// GET /api/v1/ledger?type={type}&wallet_index={n}&since={rfc3339}&until={rfc3339}
func handleListLedger(l *ledger.Ledger, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var filter ledger.Filter

		if v := r.URL.Query().Get("type"); v != "" {
			t := ledger.EntryType(v)
			filter.Type = &t
		}
		if v := r.URL.Query().Get("wallet_index"); v != "" {
			index, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, "invalid wallet_index", http.StatusBadRequest)
				return
			}
			filter.WalletIndex = &index
		}
		if v := r.URL.Query().Get("since"); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, "invalid since timestamp: use RFC3339", http.StatusBadRequest)
				return
			}
			filter.Start = &ts
		}
		if v := r.URL.Query().Get("until"); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, "invalid until timestamp: use RFC3339", http.StatusBadRequest)
				return
			}
			filter.End = &ts
		}

		entries, err := l.List(r.Context(), filter)
		if err != nil {
			logger.Error("failed to list ledger entries", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Debug("ledger entries listed", "count", len(entries))
		writeJSON(w, map[string]any{"entries": entries}, http.StatusOK)
	})
}

// balanceResponse carries a balance in both base and display units.
type balanceResponse struct {
	Network  chain.Network   `json:"network"`
	Address  string          `json:"address"`
	Token    string          `json:"token,omitempty"`
	BaseUnit string          `json:"base_unit"` // lamports or wei, as a decimal string
	Balance  decimal.Decimal `json:"balance"`
	Symbol   string          `json:"symbol,omitempty"`
}

// handleGetBalance returns a handler that reads a live on-chain balance.
// GET /api/v1/balances/{network}/{address}?token={contract}
func handleGetBalance(reader *chain.Reader, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		network, err := chain.ParseNetwork(r.PathValue("network"))
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		address := r.PathValue("address")
		token := r.URL.Query().Get("token")

		resp := balanceResponse{Network: network, Address: address, Token: token}
		if token == "" {
			raw, err := reader.NativeBalance(r.Context(), network, address)
			if err != nil {
				logger.Warn("balance query failed",
					"network", network,
					"address", address,
					"error", err,
				)
				writeError(w, err.Error(), http.StatusBadGateway)
				return
			}
			resp.BaseUnit = raw.String()
			resp.Balance = decimal.NewFromBigInt(raw, -network.NativeDecimals())
			resp.Symbol = network.NativeSymbol()
		} else {
			raw, err := reader.TokenBalance(r.Context(), network, token, address)
			if err != nil {
				logger.Warn("token balance query failed",
					"network", network,
					"token", token,
					"address", address,
					"error", err,
				)
				writeError(w, err.Error(), http.StatusBadGateway)
				return
			}
			resp.BaseUnit = raw.String()
			// Token decimals are contract-specific; the base unit string is
			// authoritative and the display value assumes 18.
			resp.Balance = decimal.NewFromBigInt(raw, -18)
		}

		writeJSON(w, resp, http.StatusOK)
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
