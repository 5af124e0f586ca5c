// Package monitor polls tracked wallets for on-chain balance changes,
// persists the changes and turns unexplained increases into incoming
// ledger entries.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veilcash/veil/service/chain"
	"github.com/veilcash/veil/service/events"
	"github.com/veilcash/veil/service/ledger"
	"github.com/veilcash/veil/service/metrics"
	"github.com/veilcash/veil/service/wallet"
)

// Polling interval bounds. Anything faster than MinInterval hammers public
// endpoints into rate limits; anything slower than MaxInterval makes the
// balance view uselessly stale.
const (
	MinInterval = 5 * time.Second
	MaxInterval = 300 * time.Second
)

// walletPause spaces out queries within a tick so a long wallet list does
// not burst-trigger endpoint rate limits.
const walletPause = 500 * time.Millisecond

// ClampInterval bounds an interval to [MinInterval, MaxInterval].
func ClampInterval(d time.Duration) time.Duration {
	if d < MinInterval {
		return MinInterval
	}
	if d > MaxInterval {
		return MaxInterval
	}
	return d
}

// Monitor owns the periodic balance polling loop. Ticks are serialized: the
// loop is a single goroutine and manual ticks share its mutex, so two
// sweeps never interleave even when a tick runs longer than the interval.
type Monitor struct {
	reader    *chain.Reader
	wallets   *wallet.Store
	ledger    *ledger.Ledger
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	interval  time.Duration

	// tickMu serializes sweeps; seen is the tick-local view of the last
	// balance observed per wallet, distinct from the persisted record.
	tickMu sync.Mutex
	seen   map[int]decimal.Decimal

	startMu sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}

	// sleep is replaced in tests to avoid real inter-wallet pauses.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a monitor polling at the given interval, clamped to the
// supported bounds.
func New(
	reader *chain.Reader,
	wallets *wallet.Store,
	l *ledger.Ledger,
	publisher events.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	interval time.Duration,
) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		reader:    reader,
		wallets:   wallets,
		ledger:    l,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		interval:  ClampInterval(interval),
		seen:      make(map[int]decimal.Decimal),
		sleep:     sleepCtx,
	}
}

// Interval returns the effective (clamped) polling interval.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Start launches the polling loop. It returns an error if the monitor is
// already running.
func (m *Monitor) Start(ctx context.Context) error {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	if m.cancel != nil {
		return fmt.Errorf("monitor already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.run(ctx)
	m.logger.InfoContext(ctx, "monitor started", "interval", m.interval)
	return nil
}

// Stop halts the polling loop and waits for any in-flight tick to finish.
// Safe to call when the monitor was never started.
func (m *Monitor) Stop() {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil
	m.logger.Info("monitor stopped")
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Tick(ctx); err != nil && ctx.Err() == nil {
				m.logger.ErrorContext(ctx, "tick failed", "error", err)
			}
		}
	}
}

// Tick runs one sweep over all tracked wallets. One failing wallet never
// blocks the rest of the sweep.
func (m *Monitor) Tick(ctx context.Context) error {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	start := time.Now()
	wallets, err := m.wallets.ListTracked(ctx)
	if err != nil {
		if m.metrics != nil {
			m.metrics.RecordTick("error", time.Since(start).Seconds())
		}
		return fmt.Errorf("failed to list tracked wallets: %w", err)
	}

	for i, w := range wallets {
		if i > 0 {
			if err := m.sleep(ctx, walletPause); err != nil {
				return err
			}
		}
		if err := m.pollWallet(ctx, w); err != nil {
			if m.metrics != nil {
				m.metrics.RecordWalletPollError(string(w.Network))
			}
			m.logger.WarnContext(ctx, "wallet poll failed",
				"wallet_index", w.Index,
				"network", w.Network,
				"address", w.Address,
				"error", err,
			)
		}
	}

	if m.metrics != nil {
		m.metrics.RecordTick("success", time.Since(start).Seconds())
	}
	return nil
}

// pollWallet reads one wallet's balance and reconciles it against the
// last-seen and persisted views.
func (m *Monitor) pollWallet(ctx context.Context, w *wallet.Wallet) error {
	raw, err := m.reader.NativeBalance(ctx, w.Network, w.Address)
	if err != nil {
		return err
	}
	current := decimal.NewFromBigInt(raw, -w.Network.NativeDecimals())

	// Unchanged since the last sweep: nothing to persist, nothing to infer.
	if last, ok := m.seen[w.Index]; ok && last.Equal(current) {
		return nil
	}
	m.seen[w.Index] = current

	previous := w.Balance
	if current.Equal(previous) {
		return nil
	}

	var ledgerID string
	if current.GreaterThan(previous) {
		// No orchestrated operation explains the increase from here, so it
		// is an incoming transfer.
		ledgerID = m.recordIncoming(ctx, w, previous, current)
	}

	if _, err := m.wallets.UpdateBalance(ctx, w.Index, current); err != nil {
		return fmt.Errorf("failed to persist balance: %w", err)
	}
	if m.metrics != nil {
		m.metrics.RecordBalanceUpdate(string(w.Network))
	}
	m.logger.InfoContext(ctx, "balance changed",
		"wallet_index", w.Index,
		"network", w.Network,
		"previous", previous.String(),
		"current", current.String(),
	)

	m.publishBalance(ctx, w, previous, current, ledgerID)
	return nil
}

// recordIncoming writes the inferred-transfer ledger entry. Failure to
// record is logged but does not block the balance update.
func (m *Monitor) recordIncoming(ctx context.Context, w *wallet.Wallet, previous, current decimal.Decimal) string {
	symbol := w.Network.NativeSymbol()
	entry := &ledger.Entry{
		ID:          ledger.NewID(),
		Type:        ledger.TypeIncoming,
		Amount:      current.Sub(previous),
		ToAddress:   &w.Address,
		WalletIndex: &w.Index,
		Status:      ledger.StatusConfirmed,
		Network:     &w.Network,
		Symbol:      &symbol,
	}
	if err := m.ledger.Record(ctx, entry); err != nil {
		m.logger.ErrorContext(ctx, "failed to record incoming transfer",
			"wallet_index", w.Index,
			"error", err,
		)
		return ""
	}
	if m.metrics != nil {
		m.metrics.RecordIncomingTransfer(string(w.Network))
	}
	return entry.ID
}

func (m *Monitor) publishBalance(ctx context.Context, w *wallet.Wallet, previous, current decimal.Decimal, ledgerID string) {
	if m.publisher == nil {
		return
	}
	event := &events.BalanceEvent{
		WalletIndex: w.Index,
		Address:     w.Address,
		Network:     w.Network,
		Previous:    previous,
		Current:     current,
		Delta:       current.Sub(previous),
		LedgerID:    ledgerID,
	}
	if err := m.publisher.PublishBalance(ctx, event); err != nil {
		m.logger.DebugContext(ctx, "failed to publish balance event", "error", err)
	}
}

// RefreshWalletBalance re-reads one wallet's balance and persists it
// without inferring an incoming transfer. Used right after an orchestrated
// operation, where the change is explained by the operation's own ledger
// entry.
func (m *Monitor) RefreshWalletBalance(ctx context.Context, walletIndex int) error {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	w, err := m.wallets.Get(ctx, walletIndex)
	if err != nil {
		return err
	}
	raw, err := m.reader.NativeBalance(ctx, w.Network, w.Address)
	if err != nil {
		return err
	}
	current := decimal.NewFromBigInt(raw, -w.Network.NativeDecimals())
	m.seen[walletIndex] = current

	if current.Equal(w.Balance) {
		return nil
	}
	if _, err := m.wallets.UpdateBalance(ctx, walletIndex, current); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.RecordBalanceUpdate(string(w.Network))
	}
	m.publishBalance(ctx, w, w.Balance, current, "")
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
