package evm

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilcash/veil/service/rpcpool"
)

// erc20BalanceOfSelector is the 4-byte selector of balanceOf(address).
var erc20BalanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

// Client reads balances from an EVM chain over raw JSON-RPC, routed through
// a resilient endpoint pool. One Client per network.
type Client struct {
	rpc        *rpcpool.Client
	httpClient *http.Client
	logger     *slog.Logger
	requestID  atomic.Uint64
}

// NewClient creates an EVM reader over the given resilient client.
func NewClient(rpc *rpcpool.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rpc: rpc,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// NativeBalance returns the native balance (wei) of address.
// Malformed addresses fail before any network call is issued.
func (c *Client) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	addr, err := normalizeAddress(address)
	if err != nil {
		return nil, err
	}

	var balance *big.Int
	err = c.rpc.Do(ctx, func(ctx context.Context, endpoint string) error {
		result, err := c.call(ctx, endpoint, "eth_getBalance", []any{addr, "latest"})
		if err != nil {
			return err
		}
		balance, err = decodeQuantity(result)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "fetched native balance",
		"network", c.rpc.Network(),
		"address", addr,
		"wei", balance.String(),
	)
	return balance, nil
}

// TokenBalance returns the ERC20 balanceOf(owner) for the given token
// contract, in the token's smallest unit. An empty or "0x" call result
// decodes as zero.
func (c *Client) TokenBalance(ctx context.Context, tokenAddress, ownerAddress string) (*big.Int, error) {
	token, err := normalizeAddress(tokenAddress)
	if err != nil {
		return nil, err
	}
	owner, err := normalizeAddress(ownerAddress)
	if err != nil {
		return nil, err
	}

	// balanceOf(address): selector followed by the 32-byte left-padded owner.
	data := make([]byte, 0, 4+32)
	data = append(data, erc20BalanceOfSelector...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(owner).Bytes(), 32)...)

	callObj := map[string]any{
		"to":   token,
		"data": "0x" + hex.EncodeToString(data),
	}

	var balance *big.Int
	err = c.rpc.Do(ctx, func(ctx context.Context, endpoint string) error {
		result, err := c.call(ctx, endpoint, "eth_call", []any{callObj, "latest"})
		if err != nil {
			return err
		}
		balance, err = decodeQuantity(result)
		return err
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// call performs one JSON-RPC POST against a single endpoint.
func (c *Client) call(ctx context.Context, endpoint, method string, params []any) (json.RawMessage, error) {
	request := map[string]any{
		"jsonrpc": "2.0",
		"id":      c.requestID.Add(1),
		"method":  method,
		"params":  params,
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, endpoint, strings.TrimSpace(string(body)))
	}

	var response struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("RPC error %d: %s", response.Error.Code, response.Error.Message)
	}
	return response.Result, nil
}

// normalizeAddress validates and lowercases a 0x address.
func normalizeAddress(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("%w: %q is not a valid EVM address", rpcpool.ErrInvalidAddress, address)
	}
	return strings.ToLower(common.HexToAddress(address).Hex()), nil
}

// decodeQuantity decodes a hex quantity result. Empty and "0x" results
// decode as zero.
func decodeQuantity(result json.RawMessage) (*big.Int, error) {
	var hexValue string
	if err := json.Unmarshal(result, &hexValue); err != nil {
		return nil, fmt.Errorf("failed to parse quantity: %w", err)
	}

	trimmed := strings.TrimPrefix(hexValue, "0x")
	if trimmed == "" {
		return big.NewInt(0), nil
	}

	value, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, fmt.Errorf("malformed hex quantity %q", hexValue)
	}
	return value, nil
}
