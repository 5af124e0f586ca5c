package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilcash/veil/service/chain"
	"github.com/veilcash/veil/service/ledger"
	"github.com/veilcash/veil/service/storage"
	"github.com/veilcash/veil/service/wallet"
)

type stubSolana struct {
	balance uint64
	err     error
}

func (s *stubSolana) Balance(ctx context.Context, address string) (uint64, error) {
	return s.balance, s.err
}

type stubEVM struct {
	native *big.Int
	token  *big.Int
}

func (s *stubEVM) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	return s.native, nil
}

func (s *stubEVM) TokenBalance(ctx context.Context, tokenAddress, ownerAddress string) (*big.Int, error) {
	return s.token, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupStores(t *testing.T) (*wallet.Store, *ledger.Ledger) {
	t.Helper()
	kv := storage.NewMemory()
	return wallet.NewStore(kv), ledger.New(kv, nil, testLogger())
}

func doRequest(t *testing.T, handler http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestListWallets(t *testing.T) {
	wallets, _ := setupStores(t)
	require.NoError(t, wallets.Save(context.Background(), &wallet.Wallet{
		Index:    0,
		Network:  chain.NetworkSolana,
		Address:  "addr-a",
		Balance:  decimal.NewFromInt(2),
		IsActive: true,
	}))

	rec := doRequest(t, handleListWallets(wallets, testLogger()), http.MethodGet, "/api/v1/wallets")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Wallets []wallet.Wallet `json:"wallets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Wallets, 1)
	assert.Equal(t, "addr-a", resp.Wallets[0].Address)
}

func TestGetWallet(t *testing.T) {
	wallets, _ := setupStores(t)
	require.NoError(t, wallets.Save(context.Background(), &wallet.Wallet{
		Index:   4,
		Network: chain.NetworkSolana,
		Address: "addr-a",
	}))
	handler := http.NewServeMux()
	handler.Handle("GET /api/v1/wallets/{index}", handleGetWallet(wallets, testLogger()))

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/wallets/4")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/wallets/99")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/wallets/toast")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListLedgerFilters(t *testing.T) {
	_, l := setupStores(t)
	ctx := context.Background()

	idx := 2
	require.NoError(t, l.Record(ctx, &ledger.Entry{
		ID:          "a",
		Type:        ledger.TypeDeposit,
		Amount:      decimal.NewFromInt(1),
		Status:      ledger.StatusConfirmed,
		WalletIndex: &idx,
	}))
	require.NoError(t, l.Record(ctx, &ledger.Entry{
		ID:     "b",
		Type:   ledger.TypeIncoming,
		Amount: decimal.NewFromInt(3),
		Status: ledger.StatusConfirmed,
	}))

	handler := handleListLedger(l, testLogger())

	decode := func(rec *httptest.ResponseRecorder) []*ledger.Entry {
		var resp struct {
			Entries []*ledger.Entry `json:"entries"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp.Entries
	}

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/ledger")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(rec), 2)

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/ledger?type=deposit")
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode(rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].ID)

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/ledger?wallet_index=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(rec), 1)

	future := time.Now().Add(time.Hour).Format(time.RFC3339)
	rec = doRequest(t, handler, http.MethodGet, "/api/v1/ledger?since="+future)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(rec))

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/ledger?since=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/ledger?wallet_index=two")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBalance(t *testing.T) {
	reader := chain.NewReader(
		&stubSolana{balance: 2_500_000_000},
		map[chain.Network]chain.EVMReader{
			chain.NetworkArbitrum: &stubEVM{
				native: big.NewInt(0).SetUint64(1_000_000_000_000_000_000),
				token:  big.NewInt(42),
			},
		},
	)
	handler := http.NewServeMux()
	handler.Handle("GET /api/v1/balances/{network}/{address}", handleGetBalance(reader, testLogger()))

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/balances/solana/some-address")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp balanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2500000000", resp.BaseUnit)
	assert.True(t, resp.Balance.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, "SOL", resp.Symbol)

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/balances/arbitrum/0xowner?token=0xtoken")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "42", resp.BaseUnit)

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/balances/dogecoin/addr")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unconfigured network surfaces as an upstream failure.
	rec = doRequest(t, handler, http.MethodGet, "/api/v1/balances/ethereum/0xowner")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestBalanceQueryError(t *testing.T) {
	reader := chain.NewReader(&stubSolana{err: assert.AnError}, nil)
	handler := http.NewServeMux()
	handler.Handle("GET /api/v1/balances/{network}/{address}", handleGetBalance(reader, testLogger()))

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/balances/solana/addr")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCORSMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := corsMiddleware(inner)

	rec := doRequest(t, handler, http.MethodOptions, "/api/v1/wallets")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/wallets")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
