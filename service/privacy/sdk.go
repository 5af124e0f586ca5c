package privacy

import "context"

// Utxo is an unspent output tracked by the privacy SDK. Its contents are
// the SDK's internal accounting representation and are opaque to this core.
type Utxo []byte

// DepositResult is returned by a successful shielded deposit.
type DepositResult struct {
	Signature string
}

// WithdrawResult is returned by a successful shielded withdraw.
type WithdrawResult struct {
	Signature   string
	Recipient   string
	Lamports    uint64
	FeeLamports uint64
	Partial   bool
}

// SDK is the surface of the external privacy-transaction library. Proof
// construction, UTXO cryptography, and serialization all live behind it;
// this core only sequences calls and owns retry policy. Every invocation
// that builds a transaction regenerates the proof and blockhash, which is
// what makes retry-after-expiry sound.
type SDK interface {
	Deposit(ctx context.Context, endpoint string, lamports uint64) (*DepositResult, error)
	Withdraw(ctx context.Context, endpoint string, lamports uint64, recipient string) (*WithdrawResult, error)
	GetUtxos(ctx context.Context, endpoint string) ([]Utxo, error)
	BalanceFromUtxos(ctx context.Context, utxos []Utxo) (uint64, error)
}

// EncryptionService holds the keys derived from the active identity. The
// orchestrator only needs to be able to drop them on teardown.
type EncryptionService interface {
	ClearKeys()
}

// Signer signs a serialized transaction with the active wallet's keypair.
type Signer func(ctx context.Context, tx []byte) ([]byte, error)

// SessionConfig carries everything the SDK needs to operate as one wallet
// identity.
type SessionConfig struct {
	WalletIndex       int
	Address           string
	PublicKey         string
	Signer            Signer
	Encryption        EncryptionService
	CircuitAssetsPath string
}

// SDKFactory constructs an SDK instance bound to one identity.
type SDKFactory func(ctx context.Context, cfg SessionConfig) (SDK, error)
