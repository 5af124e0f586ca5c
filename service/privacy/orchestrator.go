package privacy

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
	"github.com/veilcash/veil/service/rpcpool"
	"github.com/veilcash/veil/service/storage"
)

// Keys of the SDK's cached read-path state. Invalidated whenever the cached
// view must not outlive an on-chain change.
const (
	fetchOffsetKeyPrefix      = "fetch_offset"
	encryptedOutputsKeyPrefix = "encrypted_outputs"
)

// ConsistencyPolicy controls how long the orchestrator waits for a deposit's
// UTXOs to become visible through the SDK's read path.
type ConsistencyPolicy struct {
	SettleDelay      time.Duration // initial wait before the first poll
	MaxPolls         int
	EarlyPollCount   int           // number of polls using EarlyPollSpacing
	EarlyPollSpacing time.Duration
	LatePollSpacing  time.Duration
	Tolerance        float64 // fraction of the expected balance that counts as arrived
}

// DefaultConsistencyPolicy returns the production polling schedule: 5s
// settle, 15 polls (5s spacing for the first 3, then 3s), 90% tolerance
// to absorb network fees.
func DefaultConsistencyPolicy() ConsistencyPolicy {
	return ConsistencyPolicy{
		SettleDelay:      5 * time.Second,
		MaxPolls:         15,
		EarlyPollCount:   3,
		EarlyPollSpacing: 5 * time.Second,
		LatePollSpacing:  3 * time.Second,
		Tolerance:        0.9,
	}
}

// blockhashRetrySchedule caps the per-operation blockhash retries.
const blockhashMaxAttempts = 3

// session binds the SDK to one wallet identity. Sessions are values that
// are torn down and rebuilt on identity change, never mutated in place.
type session struct {
	cfg SessionConfig
	sdk SDK
}

// BalanceRefresher updates a wallet's persisted on-chain balance after a
// funds-moving operation. Optional; the monitor's next tick will catch up
// regardless.
type BalanceRefresher interface {
	RefreshWalletBalance(ctx context.Context, walletIndex int) error
}

// DepositAndWithdrawResult carries both underlying transaction identifiers
// of the composite operation.
type DepositAndWithdrawResult struct {
	DepositSignature  string
	WithdrawSignature string
	Recipient         string
	Lamports          uint64
}

// Orchestrator sequences shielded deposits and withdraws through the
// external privacy SDK, owning the blockhash-expiry retry policy and the
// eventual-consistency wait between a deposit and a dependent withdraw.
//
// At most one session is live at a time. Operations, Bind and Unbind are
// serialized by one mutex: an in-flight operation runs to completion or
// failure before the identity can change underneath it.
type Orchestrator struct {
	mu      sync.Mutex
	session *session

	rpc       *rpcpool.Client
	factory   SDKFactory
	kv        storage.Store
	ledger    *ledger.Ledger
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	policy    ConsistencyPolicy
	refresher BalanceRefresher

	// sleep is replaced in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator over the given Solana endpoint pool. The
// policy's attempt count and base delay are honored; its classifier is
// replaced so blockhash expiry surfaces immediately to the orchestrator's
// own retry schedule, which regenerates the proof and blockhash on every
// attempt. All other failures follow the Solana-side policy of retrying
// everything.
func New(
	pool *rpcpool.Pool,
	policy rpcpool.RetryPolicy,
	factory SDKFactory,
	kv storage.Store,
	l *ledger.Ledger,
	publisher events.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	policy.Classify = classifySDK
	rpc, err := rpcpool.New(pool, policy, string(chain.NetworkSolana), m, logger)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		rpc:       rpc,
		factory:   factory,
		kv:        kv,
		ledger:    l,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		policy:    DefaultConsistencyPolicy(),
		sleep:     sleepCtx,
	}, nil
}

// classifySDK treats every SDK failure as retryable except blockhash
// expiry, which the orchestrator handles with a fresh transaction.
func classifySDK(err error) (bool, bool) {
	if IsBlockhashExpired(err) {
		return false, false
	}
	return rpcpool.ClassifyAll(err)
}

// SetConsistencyPolicy overrides the polling schedule. Must be called
// before operations begin.
func (o *Orchestrator) SetConsistencyPolicy(p ConsistencyPolicy) {
	o.policy = p
}

// SetBalanceRefresher wires the post-operation wallet balance refresh.
func (o *Orchestrator) SetBalanceRefresher(r BalanceRefresher) {
	o.refresher = r
}

// Bind tears down any live session and builds a new one for the given
// identity. Cached read-path state and derived keys of the old identity
// are released before the new session exists, so two sessions never
// coexist.
func (o *Orchestrator) Bind(ctx context.Context, cfg SessionConfig) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session != nil {
		if err := o.teardownLocked(ctx); err != nil {
			return fmt.Errorf("failed to tear down previous session: %w", err)
		}
	}

	sdk, err := o.factory(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize privacy SDK: %w", err)
	}

	o.session = &session{cfg: cfg, sdk: sdk}
	o.logger.InfoContext(ctx, "session bound",
		"wallet_index", cfg.WalletIndex,
		"address", cfg.Address,
	)
	return nil
}

// Unbind tears down the live session, if any.
func (o *Orchestrator) Unbind(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	return o.teardownLocked(ctx)
}

func (o *Orchestrator) teardownLocked(ctx context.Context) error {
	s := o.session
	o.session = nil

	if err := o.invalidateCache(ctx, s.cfg.Address); err != nil {
		return err
	}
	if s.cfg.Encryption != nil {
		s.cfg.Encryption.ClearKeys()
	}
	o.logger.InfoContext(ctx, "session torn down",
		"wallet_index", s.cfg.WalletIndex,
		"address", s.cfg.Address,
	)
	return nil
}

// invalidateCache drops the SDK's cached UTXO offsets for an identity so
// the next read re-scans from chain state.
func (o *Orchestrator) invalidateCache(ctx context.Context, identity string) error {
	if err := o.kv.Delete(ctx, fetchOffsetKeyPrefix+identity); err != nil {
		return err
	}
	return o.kv.Delete(ctx, encryptedOutputsKeyPrefix+identity)
}

// Deposit moves lamports into the shielded pool.
func (o *Orchestrator) Deposit(ctx context.Context, lamports uint64) (*DepositResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session
	if s == nil {
		return nil, ErrNotInitialized
	}
	return o.depositLocked(ctx, s, lamports, ledger.TypeDeposit)
}

// Withdraw moves lamports out of the shielded pool. If recipient is empty,
// it defaults to the session wallet's own address.
func (o *Orchestrator) Withdraw(ctx context.Context, lamports uint64, recipient string) (*WithdrawResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session
	if s == nil {
		return nil, ErrNotInitialized
	}
	return o.withdrawLocked(ctx, s, lamports, recipient, ledger.TypeWithdraw)
}

// PrivateBalance returns the shielded balance of the active identity in
// lamports, bypassing any cached read-path state.
func (o *Orchestrator) PrivateBalance(ctx context.Context) (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session
	if s == nil {
		return 0, ErrNotInitialized
	}
	return o.privateBalanceLocked(ctx, s)
}

// DepositAndWithdraw executes a deposit, waits for the resulting UTXOs to
// become visible through the SDK's read path, then withdraws to recipient
// (defaulting to the session wallet's own address).
//
// The wait is a bounded poll: the deposit is on-chain the moment the first
// step succeeds, so a timeout here means "not yet visible", never "lost".
// The returned IndexingTimeoutError carries the deposit signature so the
// caller can resume manually.
func (o *Orchestrator) DepositAndWithdraw(ctx context.Context, lamports uint64, recipient string) (*DepositAndWithdrawResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session
	if s == nil {
		return nil, ErrNotInitialized
	}
	if recipient == "" {
		recipient = s.cfg.Address
	}

	start := time.Now()
	entryID := ledger.NewID()
	before, err := o.privateBalanceLocked(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("failed to read private balance before deposit: %w", err)
	}
	beforeSOL := lamportsToSOL(before)

	o.recordEntry(ctx, &ledger.Entry{
		ID:                   entryID,
		Type:                 ledger.TypeDepositAndWithdraw,
		Amount:               lamportsToSOL(lamports),
		WalletIndex:          intPtr(s.cfg.WalletIndex),
		FromAddress:          strPtr(s.cfg.Address),
		ToAddress:            strPtr(recipient),
		Status:               ledger.StatusPending,
		PrivateBalanceBefore: &beforeSOL,
		Network:              networkPtr(chain.NetworkSolana),
		Symbol:               strPtr("SOL"),
	})

	dres, err := o.runDeposit(ctx, s, lamports, string(ledger.TypeDepositAndWithdraw))
	if err != nil {
		o.failEntry(ctx, entryID, err, nil)
		o.recordOp(ctx, string(ledger.TypeDepositAndWithdraw), "failed", start)
		return nil, err
	}

	expected := before + lamports
	observed, err := o.awaitIndexing(ctx, s, expected, dres.Signature)
	if err != nil {
		// The deposit landed; surface its signature with the failure.
		o.failEntry(ctx, entryID, err, strPtr(dres.Signature))
		o.recordOp(ctx, string(ledger.TypeDepositAndWithdraw), "indexing_timeout", start)
		return nil, err
	}

	wres, err := o.runWithdraw(ctx, s, lamports, recipient, string(ledger.TypeDepositAndWithdraw))
	if err != nil {
		o.failEntry(ctx, entryID, fmt.Errorf("deposit %s succeeded but withdraw failed: %w", dres.Signature, err), strPtr(dres.Signature))
		o.recordOp(ctx, string(ledger.TypeDepositAndWithdraw), "failed", start)
		return nil, fmt.Errorf("deposit %s succeeded but withdraw failed: %w", dres.Signature, err)
	}

	_, _ = o.ledger.UpdateStatus(ctx, entryID, ledger.StatusConfirmed, nil, strPtr(wres.Signature))
	_, _ = o.ledger.SetPrivateBalanceAfter(ctx, entryID, lamportsToSOL(observed))
	o.recordOp(ctx, string(ledger.TypeDepositAndWithdraw), "success", start)
	o.refreshBalance(ctx, s.cfg.WalletIndex)

	return &DepositAndWithdrawResult{
		DepositSignature:  dres.Signature,
		WithdrawSignature: wres.Signature,
		Recipient:         wres.Recipient,
		Lamports:          wres.Lamports,
	}, nil
}

// depositLocked records the ledger entry around runDeposit.
func (o *Orchestrator) depositLocked(ctx context.Context, s *session, lamports uint64, typ ledger.EntryType) (*DepositResult, error) {
	start := time.Now()
	entryID := ledger.NewID()
	o.recordEntry(ctx, &ledger.Entry{
		ID:          entryID,
		Type:        typ,
		Amount:      lamportsToSOL(lamports),
		WalletIndex: intPtr(s.cfg.WalletIndex),
		FromAddress: strPtr(s.cfg.Address),
		Status:      ledger.StatusPending,
		Network:     networkPtr(chain.NetworkSolana),
		Symbol:      strPtr("SOL"),
	})

	res, err := o.runDeposit(ctx, s, lamports, string(typ))
	if err != nil {
		o.failEntry(ctx, entryID, err, nil)
		o.recordOp(ctx, string(typ), "failed", start)
		return nil, err
	}

	_, _ = o.ledger.UpdateStatus(ctx, entryID, ledger.StatusConfirmed, nil, strPtr(res.Signature))
	o.recordOp(ctx, string(typ), "success", start)
	o.refreshBalance(ctx, s.cfg.WalletIndex)
	return res, nil
}

// withdrawLocked records the ledger entry around runWithdraw.
func (o *Orchestrator) withdrawLocked(ctx context.Context, s *session, lamports uint64, recipient string, typ ledger.EntryType) (*WithdrawResult, error) {
	if recipient == "" {
		recipient = s.cfg.Address
	}

	start := time.Now()
	entryID := ledger.NewID()
	o.recordEntry(ctx, &ledger.Entry{
		ID:          entryID,
		Type:        typ,
		Amount:      lamportsToSOL(lamports),
		WalletIndex: intPtr(s.cfg.WalletIndex),
		ToAddress:   strPtr(recipient),
		Status:      ledger.StatusPending,
		Network:     networkPtr(chain.NetworkSolana),
		Symbol:      strPtr("SOL"),
	})

	res, err := o.runWithdraw(ctx, s, lamports, recipient, string(typ))
	if err != nil {
		o.failEntry(ctx, entryID, err, nil)
		o.recordOp(ctx, string(typ), "failed", start)
		return nil, err
	}

	_, _ = o.ledger.UpdateStatus(ctx, entryID, ledger.StatusConfirmed, nil, strPtr(res.Signature))
	o.recordOp(ctx, string(typ), "success", start)
	o.refreshBalance(ctx, s.cfg.WalletIndex)
	return res, nil
}

// runDeposit executes the SDK deposit with blockhash-expiry retry. Each
// attempt goes through the endpoint pool and regenerates the transaction.
func (o *Orchestrator) runDeposit(ctx context.Context, s *session, lamports uint64, operation string) (*DepositResult, error) {
	var res *DepositResult
	err := o.withBlockhashRetry(ctx, operation, func(ctx context.Context) error {
		return o.rpc.Do(ctx, func(ctx context.Context, endpoint string) error {
			r, err := s.sdk.Deposit(ctx, endpoint, lamports)
			if err != nil {
				return err
			}
			res = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// runWithdraw executes the SDK withdraw with blockhash-expiry retry.
func (o *Orchestrator) runWithdraw(ctx context.Context, s *session, lamports uint64, recipient string, operation string) (*WithdrawResult, error) {
	var res *WithdrawResult
	err := o.withBlockhashRetry(ctx, operation, func(ctx context.Context) error {
		return o.rpc.Do(ctx, func(ctx context.Context, endpoint string) error {
			r, err := s.sdk.Withdraw(ctx, endpoint, lamports, recipient)
			if err != nil {
				return err
			}
			res = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// withBlockhashRetry retries fn when it fails with a blockhash-expiry
// signature, waiting attempt x 2s between attempts. fn must regenerate the
// transaction (proof and blockhash) on every call; retrying a stale signed
// transaction would just expire again. Any other failure is fatal and
// propagates unchanged.
func (o *Orchestrator) withBlockhashRetry(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= blockhashMaxAttempts; attempt++ {
		o.publishOp(ctx, &events.OperationEvent{Operation: operation, Attempt: attempt, Status: "started"})

		err := fn(ctx)
		if err == nil {
			o.publishOp(ctx, &events.OperationEvent{Operation: operation, Attempt: attempt, Status: "succeeded"})
			return nil
		}
		lastErr = err

		if !IsBlockhashExpired(err) {
			o.publishOp(ctx, &events.OperationEvent{Operation: operation, Attempt: attempt, Status: "failed", Error: err.Error()})
			return err
		}
		if attempt == blockhashMaxAttempts {
			break
		}

		if o.metrics != nil {
			o.metrics.RecordBlockhashRetry(operation)
		}
		wait := time.Duration(attempt) * 2 * time.Second
		o.logger.WarnContext(ctx, "blockhash expired, regenerating transaction",
			"operation", operation,
			"attempt", attempt,
			"wait", wait,
		)
		o.publishOp(ctx, &events.OperationEvent{Operation: operation, Attempt: attempt, Status: "retrying", Error: err.Error()})
		if err := o.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

// awaitIndexing polls the private balance until it reaches the tolerance
// band of expected, or the poll budget is exhausted.
func (o *Orchestrator) awaitIndexing(ctx context.Context, s *session, expected uint64, depositSignature string) (uint64, error) {
	threshold := uint64(float64(expected) * o.policy.Tolerance)

	if err := o.sleep(ctx, o.policy.SettleDelay); err != nil {
		return 0, err
	}

	var observed uint64
	for poll := 0; poll < o.policy.MaxPolls; poll++ {
		balance, err := o.privateBalanceLocked(ctx, s)
		if err != nil {
			o.logger.WarnContext(ctx, "private balance read failed during indexing wait",
				"poll", poll+1,
				"error", err,
			)
		} else {
			observed = balance
			if balance >= threshold {
				if o.metrics != nil {
					o.metrics.RecordConsistencyPoll("hit")
				}
				o.logger.InfoContext(ctx, "deposit indexed",
					"polls", poll+1,
					"observed_lamports", balance,
					"expected_lamports", expected,
				)
				return balance, nil
			}
		}
		if o.metrics != nil {
			o.metrics.RecordConsistencyPoll("miss")
		}

		if poll == o.policy.MaxPolls-1 {
			break
		}
		spacing := o.policy.LatePollSpacing
		if poll < o.policy.EarlyPollCount {
			spacing = o.policy.EarlyPollSpacing
		}
		if err := o.sleep(ctx, spacing); err != nil {
			return 0, err
		}
	}

	if o.metrics != nil {
		o.metrics.RecordConsistencyPoll("timeout")
	}
	return observed, &IndexingTimeoutError{
		ObservedLamports: observed,
		ExpectedLamports: expected,
		Polls:            o.policy.MaxPolls,
		DepositSignature: depositSignature,
	}
}

// privateBalanceLocked invalidates the cached read-path state and reads
// the shielded balance fresh.
func (o *Orchestrator) privateBalanceLocked(ctx context.Context, s *session) (uint64, error) {
	if err := o.invalidateCache(ctx, s.cfg.Address); err != nil {
		return 0, err
	}

	var lamports uint64
	err := o.rpc.Do(ctx, func(ctx context.Context, endpoint string) error {
		utxos, err := s.sdk.GetUtxos(ctx, endpoint)
		if err != nil {
			return err
		}
		balance, err := s.sdk.BalanceFromUtxos(ctx, utxos)
		if err != nil {
			return err
		}
		lamports = balance
		return nil
	})
	return lamports, err
}

// Helper plumbing

func (o *Orchestrator) recordEntry(ctx context.Context, e *ledger.Entry) {
	if err := o.ledger.Record(ctx, e); err != nil {
		o.logger.ErrorContext(ctx, "failed to record ledger entry",
			"id", e.ID,
			"type", e.Type,
			"error", err,
		)
	}
}

func (o *Orchestrator) failEntry(ctx context.Context, id string, cause error, signature *string) {
	msg := cause.Error()
	if _, err := o.ledger.UpdateStatus(ctx, id, ledger.StatusFailed, &msg, signature); err != nil {
		o.logger.ErrorContext(ctx, "failed to update ledger entry", "id", id, "error", err)
	}
}

func (o *Orchestrator) recordOp(ctx context.Context, operation, status string, start time.Time) {
	if o.metrics != nil {
		o.metrics.RecordOperation(operation, status, time.Since(start).Seconds())
	}
}

func (o *Orchestrator) publishOp(ctx context.Context, event *events.OperationEvent) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishOperation(ctx, event); err != nil {
		o.logger.DebugContext(ctx, "failed to publish operation event", "error", err)
	}
}

func (o *Orchestrator) refreshBalance(ctx context.Context, walletIndex int) {
	if o.refresher == nil {
		return
	}
	if err := o.refresher.RefreshWalletBalance(ctx, walletIndex); err != nil {
		o.logger.WarnContext(ctx, "post-operation balance refresh failed",
			"wallet_index", walletIndex,
			"error", err,
		)
	}
}

func lamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Shift(-9)
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

func strPtr(s string) *string              { return &s }
func intPtr(i int) *int                    { return &i }
func networkPtr(n chain.Network) *chain.Network { return &n }
