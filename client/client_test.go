package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilcash/veil/service/chain"
	"github.com/veilcash/veil/service/ledger"
	"github.com/veilcash/veil/service/wallet"
)

func TestListWallets_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/v1/wallets", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"wallets": []wallet.Wallet{
				{Index: 0, Network: chain.NetworkSolana, Address: "addr-a", IsActive: true},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	wallets, err := client.ListWallets(context.Background())
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.Equal(t, "addr-a", wallets[0].Address)
	assert.Equal(t, chain.NetworkSolana, wallets[0].Network)
}

func TestGetWallet_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "wallet not found",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.GetWallet(context.Background(), 99)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet not found")
}

func TestListLedger_Filters(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/ledger", r.URL.Path)
		assert.Equal(t, "deposit", r.URL.Query().Get("type"))
		assert.Equal(t, "3", r.URL.Query().Get("wallet_index"))
		assert.Equal(t, since.Format(time.RFC3339), r.URL.Query().Get("since"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"entries": []ledger.Entry{{ID: "a", Type: ledger.TypeDeposit, Status: ledger.StatusConfirmed}},
		})
	}))
	defer server.Close()

	idx := 3
	client := NewClient(server.URL, nil, nil)
	entries, err := client.ListLedger(context.Background(), LedgerFilter{
		Type:        "deposit",
		WalletIndex: &idx,
		Since:       &since,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].ID)
}

func TestGetBalance_Token(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/balances/arbitrum/0xowner", r.URL.Path)
		assert.Equal(t, "0xtoken", r.URL.Query().Get("token"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Balance{
			Network:  chain.NetworkArbitrum,
			Address:  "0xowner",
			Token:    "0xtoken",
			BaseUnit: "42",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	b, err := client.GetBalance(context.Background(), chain.NetworkArbitrum, "0xowner", "0xtoken")
	require.NoError(t, err)
	assert.Equal(t, "42", b.BaseUnit)
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	assert.NoError(t, client.Health(context.Background()))

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()

	client = NewClient(bad.URL, nil, nil)
	assert.Error(t, client.Health(context.Background()))
}
