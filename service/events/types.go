package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/veilcash/veil/service/chain"
)

// BalanceEvent is published when the monitor infers an incoming transfer
// or persists a changed balance.
type BalanceEvent struct {
	WalletIndex int             `json:"wallet_index"`
	Address     string          `json:"address"`
	Network     chain.Network   `json:"network"`
	Previous    decimal.Decimal `json:"previous"`
	Current     decimal.Decimal `json:"current"`
	Delta       decimal.Decimal `json:"delta"`
	LedgerID    string          `json:"ledger_id,omitempty"`
	PublishedAt time.Time       `json:"published_at"`
}

// OperationEvent is a diagnostic event emitted around orchestrated
// operations. These carry no correctness semantics; consumers use them
// purely for observability.
type OperationEvent struct {
	Operation   string    `json:"operation"` // deposit, withdraw, deposit_and_withdraw
	Attempt     int       `json:"attempt"`
	Status      string    `json:"status"` // started, retrying, succeeded, failed
	Signature   string    `json:"signature,omitempty"`
	Error       string    `json:"error,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}
