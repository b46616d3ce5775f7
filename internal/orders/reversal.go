package orders

import "github.com/ariefcatur/go-clothing-orders/internal/apperr"

// reversalFor decides how stock is returned when an order in status from is
// cancelled. Reserved-but-unshipped stock is released; shipped stock is put
// back on hand. Every other status, Cancelled included, has nothing to
// reverse, so a second cancellation can never return stock twice.
func reversalFor(from Status) (Effect, error) {
	switch from {
	case StatusPending, StatusPendingCancellation:
		return EffectRelease, nil
	case StatusShipped:
		return EffectRestore, nil
	}
	return EffectNone, apperr.New(apperr.KindInvalidTransition, "no stock reversal defined for a %s order", from)
}
