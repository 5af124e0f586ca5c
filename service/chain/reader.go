package chain

import (
	"context"
	"fmt"
	"math/big"
)

// SolanaReader is the Solana-side balance surface the Reader routes to.
type SolanaReader interface {
	Balance(ctx context.Context, address string) (uint64, error)
}

// EVMReader is the EVM-side balance surface the Reader routes to.
type EVMReader interface {
	NativeBalance(ctx context.Context, address string) (*big.Int, error)
	TokenBalance(ctx context.Context, tokenAddress, ownerAddress string) (*big.Int, error)
}

// Reader answers balance queries for any supported network, delegating to
// the network's resilient client. Clients are long-lived singletons owned
// by the caller and injected once at construction.
type Reader struct {
	solana SolanaReader
	evm    map[Network]EVMReader
}

// NewReader creates a Reader. evm maps each EVM network to its client;
// networks without an entry fail at query time.
func NewReader(solanaReader SolanaReader, evm map[Network]EVMReader) *Reader {
	if evm == nil {
		evm = make(map[Network]EVMReader)
	}
	return &Reader{solana: solanaReader, evm: evm}
}

// NativeBalance returns the native balance of address in the network's
// smallest unit (lamports or wei).
func (r *Reader) NativeBalance(ctx context.Context, network Network, address string) (*big.Int, error) {
	if network == NetworkSolana {
		if r.solana == nil {
			return nil, fmt.Errorf("no solana client configured")
		}
		lamports, err := r.solana.Balance(ctx, address)
		if err != nil {
			return nil, err
		}
		return new(big.Int).SetUint64(lamports), nil
	}

	client, ok := r.evm[network]
	if !ok {
		return nil, fmt.Errorf("no client configured for network %q", network)
	}
	return client.NativeBalance(ctx, address)
}

// TokenBalance returns the ERC20 balance of ownerAddress for the given
// token contract. Token balances are an EVM-only concept here; querying
// them on Solana is an error.
func (r *Reader) TokenBalance(ctx context.Context, network Network, tokenAddress, ownerAddress string) (*big.Int, error) {
	if !network.IsEVM() {
		return nil, fmt.Errorf("token balance queries are not supported on %q", network)
	}
	client, ok := r.evm[network]
	if !ok {
		return nil, fmt.Errorf("no client configured for network %q", network)
	}
	return client.TokenBalance(ctx, tokenAddress, ownerAddress)
}
