package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-clothing-orders/internal/apperr"
	"github.com/ariefcatur/go-clothing-orders/internal/logger"
	"github.com/ariefcatur/go-clothing-orders/internal/metrics"
)

// Ref ties a ledger mutation to its cause for the audit trail.
type Ref struct {
	OrderID string
	ActorID string
	Reason  string
}

// Change is the outcome of one ledger mutation: the record after the change
// and the transaction written for it.
type Change struct {
	Record StockRecord
	Tx     Transaction
}

// Ledger implements the stock operations on top of a Store. It holds no
// state of its own; atomicity comes from the Store's unit of work.
type Ledger struct {
	now func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{now: time.Now}
}

// WithClock returns a ledger that stamps records and transactions with now.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	return &Ledger{now: now}
}

// Open creates the stock record the first time a variant is stocked.
func (l *Ledger) Open(ctx context.Context, s Store, variantID string, onHand int, ref Ref) (Change, error) {
	if variantID == "" {
		return Change{}, apperr.New(apperr.KindInvalidInput, "variant id is required")
	}
	if onHand < 0 {
		return Change{}, apperr.New(apperr.KindInvalidAdjustment, "variant %s: initial quantity %d is negative", variantID, onHand)
	}
	if _, err := s.LockStock(ctx, variantID); err == nil {
		return Change{}, apperr.New(apperr.KindInvalidInput, "variant %s is already stocked", variantID)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return Change{}, err
	}

	now := l.now().UTC()
	rec := &StockRecord{VariantID: variantID, OnHand: onHand, UpdatedAt: now}
	if err := s.InsertStock(ctx, rec); err != nil {
		return Change{}, fmt.Errorf("insert stock %s: %w", variantID, err)
	}
	tx := l.newTx(rec.VariantID, TxIn, onHand, 0, onHand, ref, now)
	if err := s.AppendTransaction(ctx, &tx); err != nil {
		return Change{}, fmt.Errorf("append transaction: %w", err)
	}
	metrics.LedgerOperations.WithLabelValues(string(TxIn), "ok").Inc()
	return Change{Record: *rec, Tx: tx}, nil
}

// Reserve sets qty aside for an order.
func (l *Ledger) Reserve(ctx context.Context, s Store, variantID string, qty int, ref Ref) (Change, error) {
	return l.mutate(ctx, s, variantID, TxReserve, qty, ref, func(rec *StockRecord) (int, int, error) {
		if qty > rec.Available() {
			return 0, 0, apperr.New(apperr.KindInsufficientStock,
				"variant %s: requested %d, available %d", variantID, qty, rec.Available())
		}
		before := rec.Reserved
		rec.Reserved += qty
		return qty, before, nil
	})
}

// Commit converts a reservation into a stock deduction: the goods leave.
func (l *Ledger) Commit(ctx context.Context, s Store, variantID string, qty int, ref Ref) (Change, error) {
	return l.mutate(ctx, s, variantID, TxOut, qty, ref, func(rec *StockRecord) (int, int, error) {
		if qty > rec.OnHand || qty > rec.Reserved {
			return 0, 0, apperr.New(apperr.KindInsufficientStock,
				"variant %s: commit %d exceeds on hand %d or reserved %d", variantID, qty, rec.OnHand, rec.Reserved)
		}
		before := rec.OnHand
		rec.OnHand -= qty
		rec.Reserved -= qty
		return -qty, before, nil
	})
}

// Release returns a reservation to available stock. A request larger than
// the current reservation is clamped and logged rather than rejected.
func (l *Ledger) Release(ctx context.Context, s Store, variantID string, qty int, ref Ref) (Change, error) {
	return l.mutate(ctx, s, variantID, TxRelease, qty, ref, func(rec *StockRecord) (int, int, error) {
		released := qty
		if qty > rec.Reserved {
			released = rec.Reserved
			metrics.ReleaseClamped.Inc()
			logger.Warn(ctx).
				Str("variant_id", variantID).
				Str("order_id", ref.OrderID).
				Int("requested", qty).
				Int("reserved", rec.Reserved).
				Msg("release exceeds reservation, clamping to zero")
		}
		before := rec.Reserved
		rec.Reserved -= released
		return -released, before, nil
	})
}

// Restore puts committed stock back on hand; it is the inverse of Commit and
// leaves the reservation untouched.
func (l *Ledger) Restore(ctx context.Context, s Store, variantID string, qty int, ref Ref) (Change, error) {
	return l.mutate(ctx, s, variantID, TxIn, qty, ref, func(rec *StockRecord) (int, int, error) {
		before := rec.OnHand
		rec.OnHand += qty
		return qty, before, nil
	})
}

// Restock applies a manual correction of delta (either sign) to on-hand.
func (l *Ledger) Restock(ctx context.Context, s Store, variantID string, delta int, ref Ref) (Change, error) {
	if delta == 0 {
		return Change{}, apperr.New(apperr.KindInvalidAdjustment, "variant %s: adjustment must be non-zero", variantID)
	}
	return l.apply(ctx, s, variantID, TxAdjust, ref, func(rec *StockRecord) (int, int, error) {
		next := rec.OnHand + delta
		if next < 0 || next < rec.Reserved {
			return 0, 0, apperr.New(apperr.KindInvalidAdjustment,
				"variant %s: adjusting on hand %d by %d would drop below reserved %d",
				variantID, rec.OnHand, delta, rec.Reserved)
		}
		before := rec.OnHand
		rec.OnHand = next
		return delta, before, nil
	})
}

// AvailableQuantity reads on hand minus reserved.
func (l *Ledger) AvailableQuantity(ctx context.Context, s Store, variantID string) (int, error) {
	rec, err := s.GetStock(ctx, variantID)
	if err != nil {
		return 0, err
	}
	return rec.Available(), nil
}

func (l *Ledger) mutate(ctx context.Context, s Store, variantID string, typ TxType, qty int, ref Ref,
	fn func(rec *StockRecord) (int, int, error)) (Change, error) {
	if qty <= 0 {
		metrics.LedgerOperations.WithLabelValues(string(typ), "error").Inc()
		return Change{}, apperr.New(apperr.KindInvalidInput, "variant %s: quantity must be positive, got %d", variantID, qty)
	}
	return l.apply(ctx, s, variantID, typ, ref, fn)
}

// apply locks the record, runs fn (which returns the signed delta and the
// tracked quantity before the change), checks the invariant, then saves the
// record and appends exactly one transaction.
func (l *Ledger) apply(ctx context.Context, s Store, variantID string, typ TxType, ref Ref,
	fn func(rec *StockRecord) (int, int, error)) (change Change, err error) {
	defer func() {
		metrics.LedgerOperations.WithLabelValues(string(typ), metrics.Result(err)).Inc()
	}()

	rec, err := s.LockStock(ctx, variantID)
	if err != nil {
		return Change{}, err
	}
	next := *rec
	delta, before, err := fn(&next)
	if err != nil {
		return Change{}, err
	}
	if !next.valid() {
		return Change{}, apperr.New(apperr.KindInvalidAdjustment,
			"variant %s: %s would leave on hand %d, reserved %d", variantID, typ, next.OnHand, next.Reserved)
	}

	now := l.now().UTC()
	next.UpdatedAt = now
	if err := s.SaveStock(ctx, &next); err != nil {
		return Change{}, fmt.Errorf("save stock %s: %w", variantID, err)
	}
	tx := l.newTx(variantID, typ, delta, before, before+delta, ref, now)
	if err := s.AppendTransaction(ctx, &tx); err != nil {
		return Change{}, fmt.Errorf("append transaction: %w", err)
	}
	return Change{Record: next, Tx: tx}, nil
}

func (l *Ledger) newTx(variantID string, typ TxType, delta, before, after int, ref Ref, at time.Time) Transaction {
	return Transaction{
		ID:             uuid.NewString(),
		VariantID:      variantID,
		Type:           typ,
		Quantity:       delta,
		QuantityBefore: before,
		QuantityAfter:  after,
		Reason:         ref.Reason,
		OrderID:        ref.OrderID,
		ActorID:        ref.ActorID,
		CreatedAt:      at,
	}
}
