package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilcash/veil/service/rpcpool"
)

const (
	testOwner = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
	testToken = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
)

// newRPCServer returns an httptest server answering JSON-RPC with the given
// result per method, and a counter of requests served.
func newRPCServer(t *testing.T, results map[string]string, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var req struct {
			Method string `json:"method"`
			ID     uint64 `json:"id"`
		}
		require.NoError(t, json.Unmarshal(body, &req))

		result, ok := results[req.Method]
		if !ok {
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"error":{"code":-32601,"message":"method not found"}}`, req.ID)
			return
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":%s}`, req.ID, result)
	}))
}

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	pool, err := rpcpool.NewPool([]string{endpoint})
	require.NoError(t, err)
	rpc, err := rpcpool.New(pool, rpcpool.FastPolicy(rpcpool.ClassifyEVM), "ethereum", nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return NewClient(rpc, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNativeBalance(t *testing.T) {
	ctx := context.Background()
	server := newRPCServer(t, map[string]string{
		"eth_getBalance": `"0xde0b6b3a7640000"`, // 1 ETH in wei
	}, nil)
	defer server.Close()

	client := newTestClient(t, server.URL)

	balance, err := client.NativeBalance(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", balance.String())
}

func TestNativeBalance_InvalidAddressNoNetworkCall(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int64
	server := newRPCServer(t, map[string]string{"eth_getBalance": `"0x0"`}, &calls)
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.NativeBalance(ctx, "not-an-address")
	require.Error(t, err)
	assert.ErrorIs(t, err, rpcpool.ErrInvalidAddress)
	assert.Zero(t, calls.Load(), "validation must happen before any network call")
}

func TestTokenBalance(t *testing.T) {
	ctx := context.Background()

	var gotData string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Method string            `json:"method"`
			ID     uint64            `json:"id"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		require.Equal(t, "eth_call", req.Method)

		var callObj struct {
			To   string `json:"to"`
			Data string `json:"data"`
		}
		require.NoError(t, json.Unmarshal(req.Params[0], &callObj))
		gotData = callObj.Data

		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":"0x00000000000000000000000000000000000000000000000000000000000f4240"}`, req.ID)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	balance, err := client.TokenBalance(ctx, testToken, testOwner)
	require.NoError(t, err)
	assert.Equal(t, "1000000", balance.String())

	// 4-byte balanceOf selector followed by the 32-byte left-padded owner.
	assert.Equal(t,
		"0x70a08231000000000000000000000000"+strings.ToLower(strings.TrimPrefix(testOwner, "0x")),
		gotData,
	)
}

func TestTokenBalance_EmptyResultIsZero(t *testing.T) {
	ctx := context.Background()

	for _, result := range []string{`"0x"`, `""`} {
		server := newRPCServer(t, map[string]string{"eth_call": result}, nil)
		client := newTestClient(t, server.URL)

		balance, err := client.TokenBalance(ctx, testToken, testOwner)
		require.NoError(t, err, "result %s", result)
		assert.Zero(t, balance.Sign(), "result %s decodes to 0", result)
		server.Close()
	}
}

func TestTokenBalance_InvalidTokenAddress(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, "http://unreachable.invalid")

	_, err := client.TokenBalance(ctx, "0x123", testOwner)
	assert.ErrorIs(t, err, rpcpool.ErrInvalidAddress)

	_, err = client.TokenBalance(ctx, testToken, "0xZZ")
	assert.ErrorIs(t, err, rpcpool.ErrInvalidAddress)
}

func TestNativeBalance_RPCErrorSurfaced(t *testing.T) {
	ctx := context.Background()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			ID uint64 `json:"id"`
		}
		_ = json.Unmarshal(body, &req)
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"error":{"code":-32602,"message":"invalid argument"}}`, req.ID)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.NativeBalance(ctx, testOwner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid argument")
}
