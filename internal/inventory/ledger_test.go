package inventory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-clothing-orders/internal/apperr"
	"github.com/ariefcatur/go-clothing-orders/internal/inventory"
	"github.com/ariefcatur/go-clothing-orders/internal/memstore"
)

var fixedNow = time.Date(2025, 9, 18, 10, 0, 0, 0, time.UTC)

func newLedger() *inventory.Ledger {
	return inventory.NewLedger().WithClock(func() time.Time { return fixedNow })
}

// stocked returns a store with each variant opened at the given on-hand.
func stocked(t *testing.T, onHand map[string]int) *memstore.Store {
	t.Helper()
	st := memstore.New()
	l := newLedger()
	for id, n := range onHand {
		err := st.RunStockTx(context.Background(), func(ctx context.Context, s inventory.Store) error {
			_, err := l.Open(ctx, s, id, n, inventory.Ref{ActorID: "seed"})
			return err
		})
		require.NoError(t, err)
	}
	return st
}

type op func(ctx context.Context, s inventory.Store) (inventory.Change, error)

func run(t *testing.T, st *memstore.Store, fn op) (inventory.Change, error) {
	t.Helper()
	var ch inventory.Change
	err := st.RunStockTx(context.Background(), func(ctx context.Context, s inventory.Store) error {
		var err error
		ch, err = fn(ctx, s)
		return err
	})
	return ch, err
}

func requireInvariant(t *testing.T, st *memstore.Store, variantID string) inventory.StockRecord {
	t.Helper()
	rec, ok := st.Stock(variantID)
	require.True(t, ok)
	require.GreaterOrEqual(t, rec.Reserved, 0)
	require.LessOrEqual(t, rec.Reserved, rec.OnHand)
	require.GreaterOrEqual(t, rec.Available(), 0)
	return rec
}

func TestLedger_ReserveThenRelease_RestoresAvailability(t *testing.T) {
	st := stocked(t, map[string]int{"v1": 10})
	l := newLedger()

	_, err := run(t, st, func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
		return l.Reserve(ctx, s, "v1", 4, inventory.Ref{OrderID: "o1"})
	})
	require.NoError(t, err)
	rec := requireInvariant(t, st, "v1")
	assert.Equal(t, 10, rec.OnHand)
	assert.Equal(t, 4, rec.Reserved)
	assert.Equal(t, 6, rec.Available())

	ch, err := run(t, st, func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
		return l.Release(ctx, s, "v1", 4, inventory.Ref{OrderID: "o1"})
	})
	require.NoError(t, err)
	assert.Equal(t, inventory.TxRelease, ch.Tx.Type)
	assert.Equal(t, -4, ch.Tx.Quantity)

	rec = requireInvariant(t, st, "v1")
	assert.Equal(t, 10, rec.OnHand)
	assert.Equal(t, 0, rec.Reserved)
}

func TestLedger_ReserveThenCommit_DeductsOnHand(t *testing.T) {
	st := stocked(t, map[string]int{"v1": 10})
	l := newLedger()

	_, err := run(t, st, func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
		return l.Reserve(ctx, s, "v1", 3, inventory.Ref{})
	})
	require.NoError(t, err)
	ch, err := run(t, st, func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
		return l.Commit(ctx, s, "v1", 3, inventory.Ref{})
	})
	require.NoError(t, err)

	assert.Equal(t, inventory.TxOut, ch.Tx.Type)
	assert.Equal(t, -3, ch.Tx.Quantity)
	assert.Equal(t, 10, ch.Tx.QuantityBefore)
	assert.Equal(t, 7, ch.Tx.QuantityAfter)

	rec := requireInvariant(t, st, "v1")
	assert.Equal(t, 7, rec.OnHand)
	assert.Equal(t, 0, rec.Reserved)
}

func TestLedger_Reserve_Insufficient(t *testing.T) {
	st := stocked(t, map[string]int{"v1": 2})
	l := newLedger()

	_, err := run(t, st, func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
		return l.Reserve(ctx, s, "v1", 3, inventory.Ref{})
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInsufficientStock))

	rec := requireInvariant(t, st, "v1")
	assert.Equal(t, 0, rec.Reserved)
	assert.Len(t, st.Transactions("v1"), 1, "failed reserve must not append a transaction")
}

func TestLedger_Commit_MoreThanReserved(t *testing.T) {
	st := stocked(t, map[string]int{"v1": 10})
	l := newLedger()

	_, err := run(t, st, func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
		return l.Reserve(ctx, s, "v1", 2, inventory.Ref{})
	})
	require.NoError(t, err)

	_, err = run(t, st, func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
		return l.Commit(ctx, s, "v1", 5, inventory.Ref{})
	})
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)

	rec := requireInvariant(t, st, "v1")
	assert.Equal(t, 10, rec.OnHand)
	assert.Equal(t, 2, rec.Reserved)
}

func TestLedger_Release_ClampsToReservation(t *testing.T) {
	st := stocked(t, map[string]int{"v1": 10})
	l := newLedger()

	_, err := run(t, st, func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
		return l.Reserve(ctx, s, "v1", 2, inventory.Ref{})
	})
	require.NoError(t, err)

	ch, err := run(t, st, func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
		return l.Release(ctx, s, "v1", 5, inventory.Ref{OrderID: "o9"})
	})
	require.NoError(t, err)
	assert.Equal(t, -2, ch.Tx.Quantity)
	assert.Equal(t, 2, ch.Tx.QuantityBefore)
	assert.Equal(t, 0, ch.Tx.QuantityAfter)

	rec := requireInvariant(t, st, "v1")
	assert.Equal(t, 0, rec.Reserved)
	assert.Equal(t, 10, rec.OnHand)
}

func TestLedger_Restock(t *testing.T) {
	st := stocked(t, map[string]int{"v1": 10})
	l := newLedger()

	_, err := run(t, st, func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
		return l.Reserve(ctx, s, "v1", 6, inventory.Ref{})
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		delta   int
		wantErr error
		onHand  int
	}{
		{name: "zero delta", delta: 0, wantErr: apperr.ErrInvalidAdjustment, onHand: 10},
		{name: "below reserved", delta: -5, wantErr: apperr.ErrInvalidAdjustment, onHand: 10},
		{name: "below zero", delta: -11, wantErr: apperr.ErrInvalidAdjustment, onHand: 10},
		{name: "down to reserved", delta: -4, onHand: 6},
		{name: "add", delta: 14, onHand: 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, err := run(t, st, func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
				return l.Restock(ctx, s, "v1", tt.delta, inventory.Ref{Reason: tt.name})
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, inventory.TxAdjust, ch.Tx.Type)
				assert.Equal(t, tt.delta, ch.Tx.Quantity)
			}
			rec := requireInvariant(t, st, "v1")
			assert.Equal(t, tt.onHand, rec.OnHand)
			assert.Equal(t, 6, rec.Reserved)
		})
	}
}

func TestLedger_Restore_UndoesCommit(t *testing.T) {
	st := stocked(t, map[string]int{"v1": 5})
	l := newLedger()

	for _, fn := range []op{
		func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
			return l.Reserve(ctx, s, "v1", 2, inventory.Ref{})
		},
		func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
			return l.Commit(ctx, s, "v1", 2, inventory.Ref{})
		},
		func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
			return l.Restore(ctx, s, "v1", 2, inventory.Ref{})
		},
	} {
		_, err := run(t, st, fn)
		require.NoError(t, err)
		requireInvariant(t, st, "v1")
	}
	rec, _ := st.Stock("v1")
	assert.Equal(t, 5, rec.OnHand)
	assert.Equal(t, 0, rec.Reserved)
}

func TestLedger_RejectsNonPositiveQuantity(t *testing.T) {
	st := stocked(t, map[string]int{"v1": 5})
	l := newLedger()

	for _, q := range []int{0, -1} {
		_, err := run(t, st, func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
			return l.Reserve(ctx, s, "v1", q, inventory.Ref{})
		})
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	}
}

func TestLedger_UnknownVariant(t *testing.T) {
	st := memstore.New()
	_, err := run(t, st, func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
		return newLedger().Reserve(ctx, s, "nope", 1, inventory.Ref{})
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLedger_OpenTwice(t *testing.T) {
	st := stocked(t, map[string]int{"v1": 5})
	_, err := run(t, st, func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
		return newLedger().Open(ctx, s, "v1", 3, inventory.Ref{})
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	rec, _ := st.Stock("v1")
	assert.Equal(t, 5, rec.OnHand)
}

func TestReplay_MatchesLedger(t *testing.T) {
	st := stocked(t, map[string]int{"v1": 12})
	l := newLedger()

	steps := []op{
		func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
			return l.Reserve(ctx, s, "v1", 5, inventory.Ref{})
		},
		func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
			return l.Commit(ctx, s, "v1", 3, inventory.Ref{})
		},
		func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
			return l.Release(ctx, s, "v1", 9, inventory.Ref{})
		},
		func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
			return l.Restock(ctx, s, "v1", 4, inventory.Ref{})
		},
		func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
			return l.Reserve(ctx, s, "v1", 50, inventory.Ref{}) // fails
		},
		func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
			return l.Restore(ctx, s, "v1", 1, inventory.Ref{})
		},
		func(ctx context.Context, s inventory.Store) (inventory.Change, error) {
			return l.Reserve(ctx, s, "v1", 6, inventory.Ref{})
		},
	}
	for _, fn := range steps {
		_, _ = run(t, st, fn)
		requireInvariant(t, st, "v1")
	}

	rec, _ := st.Stock("v1")
	replayed := inventory.Replay("v1", st.Transactions("v1"))
	assert.Equal(t, rec.OnHand, replayed.OnHand)
	assert.Equal(t, rec.Reserved, replayed.Reserved)
	assert.Equal(t, 14, rec.OnHand)
	assert.Equal(t, 6, rec.Reserved)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		rec  inventory.StockRecord
		want inventory.StockStatus
	}{
		{inventory.StockRecord{OnHand: 0}, inventory.StatusOutOfStock},
		{inventory.StockRecord{OnHand: 5, Reserved: 5}, inventory.StatusFullyReserved},
		{inventory.StockRecord{OnHand: 30, Reserved: 10}, inventory.StatusLowStock},
		{inventory.StockRecord{OnHand: 30, Reserved: 9}, inventory.StatusInStock},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, inventory.StatusOf(tt.rec, inventory.DefaultLowStockThreshold), "%+v", tt.rec)
	}
}
