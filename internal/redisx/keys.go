package redisx

import "time"

const (
	// Checkout idempotency: idem:order:place:{customer_id}:{idempotency_key} -> order_id
	KeyIdemOrderPlace = "idem:order:place:%s:%s"

	// Cached order status: order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup of consumed events: dedup:{consumer}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Projected availability: stock:available:{variant_id} -> hash {version, available, status}
	KeyStockAvailable = "stock:available:%s"

	// Low-stock index: sorted set of variant ids scored by available quantity
	KeyLowStock = "stock:low"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

// idempotency placeholder while the first request is still running
const idemPending = "pending"
