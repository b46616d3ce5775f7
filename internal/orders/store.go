package orders

import (
	"context"

	"github.com/ariefcatur/go-clothing-orders/internal/inventory"
)

// Repository is everything an order operation reads or writes inside one unit
// of work. It embeds the stock store so ledger effects commit or roll back
// with the order change.
type Repository interface {
	inventory.Store

	// LockOrder loads an order with its lines and holds it for the rest of
	// the unit of work. Missing orders yield apperr.ErrNotFound.
	LockOrder(ctx context.Context, id string) (*Order, error)
	GetOrder(ctx context.Context, id string) (*Order, error)
	InsertOrder(ctx context.Context, o *Order) error
	// UpdateOrder persists the mutable order fields if o.Version still
	// matches and bumps it; a mismatch yields
	// apperr.ErrConcurrentModification. Lines are never rewritten.
	UpdateOrder(ctx context.Context, o *Order) error
	ListOrders(ctx context.Context, f ListFilter) ([]Order, error)
	// GetVariants returns the known variants among ids, keyed by id.
	GetVariants(ctx context.Context, ids []string) (map[string]Variant, error)
	GetDiscountCode(ctx context.Context, code string) (*DiscountCode, error)
}

type UnitOfWork interface {
	// RunInTx runs fn atomically: all of its writes commit together or none
	// do.
	RunInTx(ctx context.Context, fn func(ctx context.Context, r Repository) error) error
}
