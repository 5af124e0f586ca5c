// Package ledger is the append-only record of every orchestrated operation
// and observed balance change. Entries live under "tx:<id>" keys in the
// key/value store; they are created once, transition status at most once
// per writer, and are never deleted.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veilcash/veil/service/chain"
	"github.com/veilcash/veil/service/metrics"
	"github.com/veilcash/veil/service/storage"
)

// EntryType classifies a ledger entry.
type EntryType string

const (
	TypeDeposit            EntryType = "deposit"
	TypeWithdraw           EntryType = "withdraw"
	TypeDepositAndWithdraw EntryType = "deposit_and_withdraw"
	TypeTransfer           EntryType = "transfer"
	TypeIncoming           EntryType = "incoming"
	TypeSwap               EntryType = "swap"
)

// Status is the lifecycle state of an entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Entry is one ledger record. Amounts are in display units (SOL, ETH),
// not base units.
type Entry struct {
	ID                   string           `json:"id"`
	Type                 EntryType        `json:"type"`
	Timestamp            int64            `json:"timestamp"` // ms since epoch
	Amount               decimal.Decimal  `json:"amount"`
	FromAddress          *string          `json:"fromAddress,omitempty"`
	ToAddress            *string          `json:"toAddress,omitempty"`
	WalletIndex          *int             `json:"walletIndex,omitempty"`
	Signature            *string          `json:"signature,omitempty"`
	Status               Status           `json:"status"`
	Error                *string          `json:"error,omitempty"`
	PrivateBalanceBefore *decimal.Decimal `json:"privateBalanceBefore,omitempty"`
	PrivateBalanceAfter  *decimal.Decimal `json:"privateBalanceAfter,omitempty"`
	Network              *chain.Network   `json:"network,omitempty"`
	Symbol               *string          `json:"symbol,omitempty"`
}

// NewID generates a unique entry id.
func NewID() string {
	return uuid.NewString()
}

// Filter narrows a List query. Nil fields match everything.
type Filter struct {
	Type        *EntryType
	WalletIndex *int
	Start       *time.Time
	End         *time.Time
}

// Ledger persists entries in the key/value store.
type Ledger struct {
	kv      storage.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a ledger over the given storage backend. If m is nil, no
// metrics are recorded.
func New(kv storage.Store, m *metrics.Metrics, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{kv: kv, metrics: m, logger: logger}
}

func entryKey(id string) string {
	return "tx:" + id
}

// Record creates a new entry. The id must be unique: recording over an
// existing id is an error, preserving the at-most-one-writer rule.
func (l *Ledger) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		return fmt.Errorf("entry id is required")
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}

	_, exists, err := l.kv.Get(ctx, entryKey(e.ID))
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("entry %s already exists", e.ID)
	}

	if err := l.put(ctx, e); err != nil {
		return err
	}

	if l.metrics != nil {
		l.metrics.RecordLedgerWrite(string(e.Type), string(e.Status))
	}
	l.logger.DebugContext(ctx, "recorded ledger entry",
		"id", e.ID,
		"type", e.Type,
		"status", e.Status,
		"amount", e.Amount.String(),
	)
	return nil
}

// UpdateStatus transitions an entry's status, optionally attaching an error
// message and transaction signature. Only status, error and signature may
// change after creation.
func (l *Ledger) UpdateStatus(ctx context.Context, id string, status Status, errMsg, signature *string) (*Entry, error) {
	e, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	e.Status = status
	if errMsg != nil {
		e.Error = errMsg
	}
	if signature != nil {
		e.Signature = signature
	}

	if err := l.put(ctx, e); err != nil {
		return nil, err
	}
	if l.metrics != nil {
		l.metrics.RecordLedgerWrite(string(e.Type), string(status))
	}
	return e, nil
}

// SetPrivateBalanceAfter attaches the post-operation shielded balance to an
// existing entry.
func (l *Ledger) SetPrivateBalanceAfter(ctx context.Context, id string, balance decimal.Decimal) (*Entry, error) {
	e, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	e.PrivateBalanceAfter = &balance
	if err := l.put(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Get retrieves one entry by id.
func (l *Ledger) Get(ctx context.Context, id string) (*Entry, error) {
	data, ok, err := l.kv.Get(ctx, entryKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("entry %s not found", id)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry %s: %w", id, err)
	}
	return &e, nil
}

// List returns entries matching the filter, newest first.
func (l *Ledger) List(ctx context.Context, filter Filter) ([]*Entry, error) {
	keys, err := l.kv.Keys(ctx, "tx:")
	if err != nil {
		return nil, err
	}

	entries := make([]*Entry, 0, len(keys))
	for _, key := range keys {
		data, ok, err := l.kv.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %q: %w", key, err)
		}
		if !filter.matches(&e) {
			continue
		}
		entries = append(entries, &e)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp > entries[j].Timestamp })
	return entries, nil
}

func (f Filter) matches(e *Entry) bool {
	if f.Type != nil && e.Type != *f.Type {
		return false
	}
	if f.WalletIndex != nil && (e.WalletIndex == nil || *e.WalletIndex != *f.WalletIndex) {
		return false
	}
	if f.Start != nil && e.Timestamp < f.Start.UnixMilli() {
		return false
	}
	if f.End != nil && e.Timestamp > f.End.UnixMilli() {
		return false
	}
	return true
}

func (l *Ledger) put(ctx context.Context, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry %s: %w", e.ID, err)
	}
	return l.kv.Set(ctx, entryKey(e.ID), data)
}
