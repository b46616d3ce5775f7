package inventory

import (
	"context"
	"time"
)

type TxType string

const (
	TxIn      TxType = "IN"
	TxOut     TxType = "OUT"
	TxAdjust  TxType = "ADJUST"
	TxReserve TxType = "RESERVE"
	TxRelease TxType = "RELEASE"
)

// StockRecord is the single source of truth for a variant's on-hand and
// reserved quantities. Invariant: 0 <= Reserved <= OnHand.
type StockRecord struct {
	VariantID string    `json:"variant_id"`
	OnHand    int       `json:"on_hand"`
	Reserved  int       `json:"reserved"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s StockRecord) Available() int { return s.OnHand - s.Reserved }

func (s StockRecord) valid() bool {
	return s.Reserved >= 0 && s.OnHand >= s.Reserved
}

// Transaction is the append-only audit record written for every ledger
// mutation. QuantityBefore/After track on-hand for IN, OUT and ADJUST and
// reserved for RESERVE and RELEASE; an OUT also lowers reserved by the same
// amount.
type Transaction struct {
	ID             string    `json:"id"`
	VariantID      string    `json:"variant_id"`
	Type           TxType    `json:"type"`
	Quantity       int       `json:"quantity"`
	QuantityBefore int       `json:"quantity_before"`
	QuantityAfter  int       `json:"quantity_after"`
	Reason         string    `json:"reason,omitempty"`
	OrderID        string    `json:"order_id,omitempty"`
	ActorID        string    `json:"actor_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store is the persistence boundary the ledger works through. Every method
// runs inside the caller's unit of work.
type Store interface {
	// LockStock loads a stock record and holds it for the rest of the unit
	// of work. Missing records yield apperr.ErrNotFound.
	LockStock(ctx context.Context, variantID string) (*StockRecord, error)
	// GetStock reads a stock record without holding it.
	GetStock(ctx context.Context, variantID string) (*StockRecord, error)
	InsertStock(ctx context.Context, rec *StockRecord) error
	// SaveStock persists rec if its Version still matches the stored one and
	// bumps rec.Version; a mismatch yields apperr.ErrConcurrentModification.
	SaveStock(ctx context.Context, rec *StockRecord) error
	AppendTransaction(ctx context.Context, tx *Transaction) error
	// ListTransactions returns a variant's transactions oldest first; limit
	// <= 0 means all.
	ListTransactions(ctx context.Context, variantID string, limit int) ([]Transaction, error)
}

// Runner executes fn as one atomic unit of work against a Store.
type Runner interface {
	RunStockTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}

// Replay folds a variant's transaction history into the stock record it
// describes, for reconciling the audit trail against the ledger.
func Replay(variantID string, txs []Transaction) StockRecord {
	rec := StockRecord{VariantID: variantID}
	for _, t := range txs {
		if t.VariantID != variantID {
			continue
		}
		switch t.Type {
		case TxIn, TxAdjust:
			rec.OnHand += t.Quantity
		case TxOut:
			rec.OnHand += t.Quantity
			rec.Reserved += t.Quantity
		case TxReserve, TxRelease:
			rec.Reserved += t.Quantity
		}
		rec.UpdatedAt = t.CreatedAt
	}
	return rec
}
