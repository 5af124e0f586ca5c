package chain

import "fmt"

// Network identifies one supported chain.
type Network string

const (
	NetworkSolana    Network = "solana"
	NetworkEthereum  Network = "ethereum"
	NetworkArbitrum  Network = "arbitrum"
	NetworkAvalanche Network = "avalanche"
)

// Networks lists every supported network.
func Networks() []Network {
	return []Network{NetworkSolana, NetworkEthereum, NetworkArbitrum, NetworkAvalanche}
}

// ParseNetwork validates a network name.
func ParseNetwork(s string) (Network, error) {
	switch Network(s) {
	case NetworkSolana, NetworkEthereum, NetworkArbitrum, NetworkAvalanche:
		return Network(s), nil
	}
	return "", fmt.Errorf("unknown network %q", s)
}

// IsEVM reports whether the network speaks the Ethereum JSON-RPC surface.
func (n Network) IsEVM() bool {
	return n != NetworkSolana
}

// NativeDecimals returns the decimal places of the network's native unit
// (lamports for Solana, wei for EVM chains).
func (n Network) NativeDecimals() int32 {
	if n == NetworkSolana {
		return 9
	}
	return 18
}

// NativeSymbol returns the display symbol of the network's native asset.
func (n Network) NativeSymbol() string {
	switch n {
	case NetworkSolana:
		return "SOL"
	case NetworkEthereum, NetworkArbitrum:
		return "ETH"
	case NetworkAvalanche:
		return "AVAX"
	}
	return ""
}
