// Package wallet stores the tracked-wallet records the monitor and
// orchestrator operate on. The records themselves are owned by the wallet
// manager upstream; this core only reads them and updates balances.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/veilcash/veil/service/chain"
	"github.com/veilcash/veil/service/storage"
)

// Wallet is one tracked wallet record.
type Wallet struct {
	Index    int             `json:"index"`
	Network  chain.Network   `json:"network"`
	Address  string          `json:"address"`
	Balance  decimal.Decimal `json:"balance"`
	IsActive bool            `json:"is_active"`
	Archived bool            `json:"archived"`
}

// ErrNotFound is returned when a wallet record does not exist.
var ErrNotFound = fmt.Errorf("wallet not found")

// Store persists wallet records under "wallet:<index>" keys. Balance writes
// are serialized per wallet so monitor ticks and orchestrator-triggered
// refreshes never lose updates to each other.
type Store struct {
	kv storage.Store

	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

// NewStore creates a wallet store over the given key/value backend.
func NewStore(kv storage.Store) *Store {
	return &Store{
		kv:    kv,
		locks: make(map[int]*sync.Mutex),
	}
}

func walletKey(index int) string {
	return fmt.Sprintf("wallet:%d", index)
}

// lockFor returns the per-wallet mutex, creating it on first use.
func (s *Store) lockFor(index int) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[index]
	if !ok {
		l = &sync.Mutex{}
		s.locks[index] = l
	}
	return l
}

// Save writes a wallet record.
func (s *Store) Save(ctx context.Context, w *Wallet) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to marshal wallet %d: %w", w.Index, err)
	}
	return s.kv.Set(ctx, walletKey(w.Index), data)
}

// Get retrieves one wallet record by index.
func (s *Store) Get(ctx context.Context, index int) (*Wallet, error) {
	data, ok, err := s.kv.Get(ctx, walletKey(index))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	var w Wallet
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet %d: %w", index, err)
	}
	return &w, nil
}

// List returns all wallet records ordered by index.
func (s *Store) List(ctx context.Context) ([]*Wallet, error) {
	keys, err := s.kv.Keys(ctx, "wallet:")
	if err != nil {
		return nil, err
	}

	wallets := make([]*Wallet, 0, len(keys))
	for _, key := range keys {
		data, ok, err := s.kv.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var w Wallet
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %q: %w", key, err)
		}
		wallets = append(wallets, &w)
	}

	sort.Slice(wallets, func(i, j int) bool { return wallets[i].Index < wallets[j].Index })
	return wallets, nil
}

// ListTracked returns the wallets the monitor should poll: active and not
// archived.
func (s *Store) ListTracked(ctx context.Context) ([]*Wallet, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	tracked := all[:0]
	for _, w := range all {
		if w.IsActive && !w.Archived {
			tracked = append(tracked, w)
		}
	}
	return tracked, nil
}

// UpdateBalance sets the wallet's balance, holding the per-wallet lock
// across the read-modify-write so concurrent writers do not clobber each
// other's fields.
func (s *Store) UpdateBalance(ctx context.Context, index int, balance decimal.Decimal) (*Wallet, error) {
	lock := s.lockFor(index)
	lock.Lock()
	defer lock.Unlock()

	w, err := s.Get(ctx, index)
	if err != nil {
		return nil, err
	}
	w.Balance = balance
	if err := s.Save(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}
