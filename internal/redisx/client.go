package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-clothing-orders/internal/inventory"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Cache groups the Redis-backed views. Redis is never the source of truth:
// every method on a nil *Cache is a harmless no-op so callers work without
// Redis configured.
type Cache struct {
	rdb *redis.Client
}

func NewCache(rdb *redis.Client) *Cache {
	if rdb == nil {
		return nil
	}
	return &Cache{rdb: rdb}
}

func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

type OrderStatus struct {
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	Status     string    `json:"status"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (c *Cache) SetOrderStatus(ctx context.Context, s OrderStatus) error {
	if c == nil {
		return nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf(KeyOrderStatus, s.OrderID), b, TTLStatusCache).Err()
}

// OrderStatus returns the cached status; ok is false on a miss.
func (c *Cache) OrderStatus(ctx context.Context, orderID string) (s OrderStatus, ok bool, err error) {
	if c == nil {
		return OrderStatus{}, false, nil
	}
	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return OrderStatus{}, false, nil
	}
	if err != nil {
		return OrderStatus{}, false, err
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return OrderStatus{}, false, err
	}
	return s, true, nil
}

// ClaimIdempotency reserves key for customerID. When the key was already
// claimed it returns the stored value: an order id, or "" while the first
// request is still in flight.
func (c *Cache) ClaimIdempotency(ctx context.Context, customerID, key string) (existing string, claimed bool, err error) {
	if c == nil || key == "" {
		return "", true, nil
	}
	k := fmt.Sprintf(KeyIdemOrderPlace, customerID, key)
	ok, err := c.rdb.SetNX(ctx, k, idemPending, TTLIdempotency).Result()
	if err != nil || ok {
		return "", ok, err
	}
	v, err := c.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if v == idemPending {
		v = ""
	}
	return v, false, err
}

func (c *Cache) CompleteIdempotency(ctx context.Context, customerID, key, orderID string) error {
	if c == nil || key == "" {
		return nil
	}
	return c.rdb.Set(ctx, fmt.Sprintf(KeyIdemOrderPlace, customerID, key), orderID, TTLIdempotency).Err()
}

// ReleaseIdempotency drops a claim whose request failed so the client may retry.
func (c *Cache) ReleaseIdempotency(ctx context.Context, customerID, key string) error {
	if c == nil || key == "" {
		return nil
	}
	return c.rdb.Del(ctx, fmt.Sprintf(KeyIdemOrderPlace, customerID, key)).Err()
}

func (c *Cache) Seen(ctx context.Context, consumer, eventID string) (bool, error) {
	if c == nil {
		return false, nil
	}
	return Exists(ctx, c.rdb, fmt.Sprintf(KeyDedup, consumer, eventID))
}

func (c *Cache) MarkSeen(ctx context.Context, consumer, eventID string) error {
	if c == nil {
		return nil
	}
	return c.rdb.Set(ctx, fmt.Sprintf(KeyDedup, consumer, eventID), "1", TTLDedup).Err()
}

// setAvailability writes the projection only when ARGV[1] is newer than the
// stored version. Returns 1 when written.
var setAvailability = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'version')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'available', ARGV[2], 'status', ARGV[3], 'updated_at', ARGV[4])
return 1
`)

func (c *Cache) SetAvailability(ctx context.Context, variantID string, version int64, available int, status inventory.StockStatus) (bool, error) {
	if c == nil {
		return false, nil
	}
	n, err := setAvailability.Run(ctx, c.rdb, []string{fmt.Sprintf(KeyStockAvailable, variantID)},
		version, available, string(status), time.Now().UTC().Format(time.RFC3339)).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *Cache) TrackLowStock(ctx context.Context, variantID string, available int, low bool) error {
	if c == nil {
		return nil
	}
	if !low {
		return c.rdb.ZRem(ctx, KeyLowStock, variantID).Err()
	}
	return c.rdb.ZAdd(ctx, KeyLowStock, redis.Z{Score: float64(available), Member: variantID}).Err()
}

type LowStockEntry struct {
	VariantID string `json:"variant_id"`
	Available int    `json:"available"`
}

// LowStock lists the variants with the least availability first.
func (c *Cache) LowStock(ctx context.Context, limit int) ([]LowStockEntry, error) {
	if c == nil {
		return nil, nil
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	zs, err := c.rdb.ZRangeWithScores(ctx, KeyLowStock, 0, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]LowStockEntry, 0, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		out = append(out, LowStockEntry{VariantID: id, Available: int(z.Score)})
	}
	return out, nil
}

// Availability reads the projected availability of a variant.
func (c *Cache) Availability(ctx context.Context, variantID string) (int, bool, error) {
	if c == nil {
		return 0, false, nil
	}
	v, err := c.rdb.HGet(ctx, fmt.Sprintf(KeyStockAvailable, variantID), "available").Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.Atoi(v)
	return n, err == nil, err
}
