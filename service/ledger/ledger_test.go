package ledger

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilcash/veil/service/chain"
	"github.com/veilcash/veil/service/storage"
)

func newTestLedger() *Ledger {
	return New(storage.NewMemory(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestRecordAndGet(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	id := NewID()
	err := l.Record(ctx, &Entry{
		ID:          id,
		Type:        TypeDeposit,
		Amount:      decimal.NewFromFloat(1.0),
		WalletIndex: intPtr(0),
		Status:      StatusPending,
	})
	require.NoError(t, err)

	got, err := l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, TypeDeposit, got.Type)
	assert.Equal(t, StatusPending, got.Status)
	assert.NotZero(t, got.Timestamp, "timestamp is set on record")
	assert.True(t, got.Amount.Equal(decimal.NewFromFloat(1.0)))
}

func TestRecord_DuplicateIDRejected(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	e := &Entry{ID: "dup", Type: TypeIncoming, Amount: decimal.NewFromFloat(0.5), Status: StatusConfirmed}
	require.NoError(t, l.Record(ctx, e))

	err := l.Record(ctx, &Entry{ID: "dup", Type: TypeSwap, Amount: decimal.Zero, Status: StatusPending})
	require.Error(t, err)

	// The original entry is untouched.
	got, err := l.Get(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, TypeIncoming, got.Type)
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	id := NewID()
	require.NoError(t, l.Record(ctx, &Entry{
		ID:     id,
		Type:   TypeWithdraw,
		Amount: decimal.NewFromFloat(0.25),
		Status: StatusPending,
	}))

	updated, err := l.UpdateStatus(ctx, id, StatusConfirmed, nil, strPtr("sig-abc"))
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)
	require.NotNil(t, updated.Signature)
	assert.Equal(t, "sig-abc", *updated.Signature)

	failed, err := l.UpdateStatus(ctx, id, StatusFailed, strPtr("blockhash expired"), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Equal(t, "blockhash expired", *failed.Error)
	assert.Equal(t, "sig-abc", *failed.Signature, "signature survives later updates")
}

func TestList_Filters(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	now := time.Now()
	network := chain.NetworkSolana
	mk := func(id string, typ EntryType, walletIdx int, ts time.Time) *Entry {
		return &Entry{
			ID:          id,
			Type:        typ,
			Timestamp:   ts.UnixMilli(),
			Amount:      decimal.NewFromFloat(1),
			WalletIndex: intPtr(walletIdx),
			Status:      StatusConfirmed,
			Network:     &network,
		}
	}

	require.NoError(t, l.Record(ctx, mk("a", TypeDeposit, 0, now.Add(-3*time.Hour))))
	require.NoError(t, l.Record(ctx, mk("b", TypeIncoming, 0, now.Add(-2*time.Hour))))
	require.NoError(t, l.Record(ctx, mk("c", TypeIncoming, 1, now.Add(-1*time.Hour))))
	require.NoError(t, l.Record(ctx, mk("d", TypeWithdraw, 1, now)))

	// No filter: everything, newest first.
	all, err := l.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "d", all[0].ID)
	assert.Equal(t, "a", all[3].ID)

	// By type.
	incoming := TypeIncoming
	byType, err := l.List(ctx, Filter{Type: &incoming})
	require.NoError(t, err)
	require.Len(t, byType, 2)

	// By wallet.
	byWallet, err := l.List(ctx, Filter{WalletIndex: intPtr(1)})
	require.NoError(t, err)
	require.Len(t, byWallet, 2)

	// By time range.
	start := now.Add(-150 * time.Minute)
	end := now.Add(-30 * time.Minute)
	byRange, err := l.List(ctx, Filter{Start: &start, End: &end})
	require.NoError(t, err)
	require.Len(t, byRange, 2)
	assert.Equal(t, "c", byRange[0].ID)
	assert.Equal(t, "b", byRange[1].ID)

	// Combined.
	combined, err := l.List(ctx, Filter{Type: &incoming, WalletIndex: intPtr(0)})
	require.NoError(t, err)
	require.Len(t, combined, 1)
	assert.Equal(t, "b", combined[0].ID)
}

func TestRecord_RequiresID(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	err := l.Record(ctx, &Entry{Type: TypeSwap, Amount: decimal.Zero, Status: StatusPending})
	assert.Error(t, err)
}
