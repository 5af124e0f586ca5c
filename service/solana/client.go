package solana

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/veilcash/veil/service/rpcpool"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real
// Solana nodes.
type RPCClient interface {
	GetBalance(
		ctx context.Context,
		account solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetBalanceResult, error)

	GetSlot(
		ctx context.Context,
		commitment rpc.CommitmentType,
	) (uint64, error)
}

// Client provides balance and slot queries against Solana, rotating across
// the endpoint pool on failure. Connections are cached per endpoint URL as
// a pure performance optimization; the cache holds no correctness-relevant
// state and may be cleared at any time.
type Client struct {
	rpc    *rpcpool.Client
	logger *slog.Logger

	mu    sync.Mutex
	conns map[string]RPCClient
	dial  func(endpoint string) RPCClient
}

// NewClient creates a new Solana client over the given resilient client.
func NewClient(pooled *rpcpool.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rpc:    pooled,
		logger: logger,
		conns:  make(map[string]RPCClient),
		dial: func(endpoint string) RPCClient {
			return rpc.New(endpoint)
		},
	}
}

// Balance returns the lamport balance of the given base58 address.
// Malformed addresses fail with ErrInvalidAddress before any network call.
func (c *Client) Balance(ctx context.Context, address string) (uint64, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a valid Solana address: %v", rpcpool.ErrInvalidAddress, address, err)
	}

	var lamports uint64
	err = c.rpc.Do(ctx, func(ctx context.Context, endpoint string) error {
		result, err := c.conn(endpoint).GetBalance(ctx, pubkey, rpc.CommitmentConfirmed)
		if err != nil {
			return err
		}
		lamports = result.Value
		return nil
	})
	if err != nil {
		return 0, err
	}

	c.logger.DebugContext(ctx, "fetched balance",
		"address", address,
		"lamports", lamports,
	)
	return lamports, nil
}

// Slot returns the current confirmed slot.
func (c *Client) Slot(ctx context.Context) (uint64, error) {
	var slot uint64
	err := c.rpc.Do(ctx, func(ctx context.Context, endpoint string) error {
		s, err := c.conn(endpoint).GetSlot(ctx, rpc.CommitmentConfirmed)
		if err != nil {
			return err
		}
		slot = s
		return nil
	})
	return slot, err
}

// conn returns the cached connection for endpoint, creating one if needed.
func (c *Client) conn(endpoint string) RPCClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[endpoint]; ok {
		return conn
	}
	conn := c.dial(endpoint)
	c.conns[endpoint] = conn
	return conn
}

// ClearConnections drops all cached connections. Safe to call concurrently
// with in-flight calls; a stale handle simply reconnects on next use.
func (c *Client) ClearConnections() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns = make(map[string]RPCClient)
}
