//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-clothing-orders/internal/apperr"
	"github.com/ariefcatur/go-clothing-orders/internal/inventory"
	"github.com/ariefcatur/go-clothing-orders/internal/orders"
)

// Run with: POSTGRES_TEST_DSN=postgres://... go test -tags integration ./internal/postgres/
func testStore(t *testing.T) (*Store, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool), "schema must apply twice")
	return &Store{DB: pool}, pool
}

func seedVariant(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()
	id := "it-" + uuid.NewString()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO variants(id, product_name, sku, color_name, size_name, price)
		VALUES ($1, 'Basic Tee', $1, 'Black', 'M', 100000)`, id)
	require.NoError(t, err)
	return id
}

func openStock(t *testing.T, st *Store, variantID string, onHand int) {
	t.Helper()
	err := st.RunStockTx(context.Background(), func(ctx context.Context, s inventory.Store) error {
		return s.InsertStock(ctx, &inventory.StockRecord{VariantID: variantID, OnHand: onHand, UpdatedAt: time.Now()})
	})
	require.NoError(t, err)
}

func TestIntegration_SaveStockRejectsStaleVersion(t *testing.T) {
	st, pool := testStore(t)
	ctx := context.Background()
	v := seedVariant(t, pool)
	openStock(t, st, v, 10)

	var stale inventory.StockRecord
	require.NoError(t, st.RunStockTx(ctx, func(ctx context.Context, s inventory.Store) error {
		rec, err := s.GetStock(ctx, v)
		if err != nil {
			return err
		}
		stale = *rec
		rec.Reserved = 2
		return s.SaveStock(ctx, rec)
	}))
	assert.EqualValues(t, 1, stale.Version)

	err := st.RunStockTx(ctx, func(ctx context.Context, s inventory.Store) error {
		stale.OnHand = 99
		return s.SaveStock(ctx, &stale)
	})
	assert.ErrorIs(t, err, apperr.ErrConcurrentModification)

	err = st.RunStockTx(ctx, func(ctx context.Context, s inventory.Store) error {
		rec, err := s.GetStock(ctx, v)
		require.NoError(t, err)
		assert.Equal(t, 10, rec.OnHand)
		assert.Equal(t, 2, rec.Reserved)
		assert.EqualValues(t, 2, rec.Version)
		return nil
	})
	require.NoError(t, err)

	err = st.RunStockTx(ctx, func(ctx context.Context, s inventory.Store) error {
		rec, _ := s.GetStock(ctx, v)
		rec.Reserved = rec.OnHand + 1
		return s.SaveStock(ctx, rec)
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidAdjustment)
}

func TestIntegration_GetStockDoesNotWaitForLocks(t *testing.T) {
	st, pool := testStore(t)
	ctx := context.Background()
	v := seedVariant(t, pool)
	openStock(t, st, v, 4)

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- st.RunStockTx(ctx, func(ctx context.Context, s inventory.Store) error {
			if _, err := s.LockStock(ctx, v); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := st.RunStockTx(rctx, func(ctx context.Context, s inventory.Store) error {
		rec, err := s.GetStock(ctx, v)
		if err != nil {
			return err
		}
		assert.Equal(t, 4, rec.Available())
		return nil
	})
	close(release)
	require.NoError(t, err)
	require.NoError(t, <-done)
}

func TestIntegration_ListTransactionsLimit(t *testing.T) {
	st, pool := testStore(t)
	ctx := context.Background()
	v := seedVariant(t, pool)
	openStock(t, st, v, 0)

	require.NoError(t, st.RunStockTx(ctx, func(ctx context.Context, s inventory.Store) error {
		for i := 1; i <= 3; i++ {
			err := s.AppendTransaction(ctx, &inventory.Transaction{
				ID: uuid.NewString(), VariantID: v, Type: inventory.TxIn,
				Quantity: i, QuantityBefore: 0, QuantityAfter: i, CreatedAt: time.Now(),
			})
			if err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, st.RunStockTx(ctx, func(ctx context.Context, s inventory.Store) error {
		all, err := s.ListTransactions(ctx, v, 0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []int{1, 2, 3}, []int{all[0].Quantity, all[1].Quantity, all[2].Quantity})

		last, err := s.ListTransactions(ctx, v, 2)
		require.NoError(t, err)
		require.Len(t, last, 2)
		assert.Equal(t, []int{2, 3}, []int{last[0].Quantity, last[1].Quantity})
		return nil
	}))
}

func TestIntegration_InsertOrderWithLines(t *testing.T) {
	st, pool := testStore(t)
	ctx := context.Background()
	shirt, belt := seedVariant(t, pool), seedVariant(t, pool)
	customer := "cust-" + uuid.NewString()

	now := time.Now().UTC().Truncate(time.Microsecond)
	o := &orders.Order{
		ID: uuid.NewString(), Number: "IT-" + uuid.NewString()[:8], CustomerID: customer,
		Status:   orders.StatusPending,
		Subtotal: decimal.NewFromInt(250), Shipping: decimal.Zero, Tax: decimal.Zero,
		Discount: decimal.Zero, Total: decimal.NewFromInt(250),
		ShipTo: orders.ShippingInfo{FullName: "Alice Tan", AddressLine1: "Jl. Merdeka 1",
			City: "Bandung", PostalCode: "40111", Country: "Indonesia"},
		PaymentMethod: orders.PaymentCOD, PaymentStatus: orders.PaymentUnpaid,
		Lines: []orders.LineItem{
			{ID: uuid.NewString(), VariantID: shirt, ProductName: "Basic Tee", SKU: shirt, Quantity: 2,
				UnitPrice: decimal.NewFromInt(100), LineTotal: decimal.NewFromInt(200)},
			{ID: uuid.NewString(), VariantID: belt, ProductName: "Basic Tee", SKU: belt, Quantity: 1,
				UnitPrice: decimal.NewFromInt(50), LineTotal: decimal.NewFromInt(50)},
		},
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.RunInTx(ctx, func(ctx context.Context, r orders.Repository) error {
		return r.InsertOrder(ctx, o)
	}))
	assert.EqualValues(t, 1, o.Version)

	require.NoError(t, st.RunInTx(ctx, func(ctx context.Context, r orders.Repository) error {
		got, err := r.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Len(t, got.Lines, 2)
		assert.True(t, got.Total.Equal(o.Total))

		list, err := r.ListOrders(ctx, orders.ListFilter{CustomerID: customer, Status: orders.StatusPending, Limit: 10})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Len(t, list[0].Lines, 2)
		return nil
	}))

	// a failing line rolls the whole order back
	bad := *o
	bad.ID, bad.Number = uuid.NewString(), "IT-"+uuid.NewString()[:8]
	bad.Lines = []orders.LineItem{{ID: uuid.NewString(), VariantID: "no-such-variant", Quantity: 1,
		UnitPrice: decimal.NewFromInt(1), LineTotal: decimal.NewFromInt(1)}}
	err := st.RunInTx(ctx, func(ctx context.Context, r orders.Repository) error {
		return r.InsertOrder(ctx, &bad)
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	err = st.RunInTx(ctx, func(ctx context.Context, r orders.Repository) error {
		_, err := r.GetOrder(ctx, bad.ID)
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
