// Package memstore is an in-memory implementation of the order and stock
// repositories. Units of work are serialized by a store-wide mutex and run
// against a private copy of the state, which replaces the live state only
// when the unit of work succeeds.
package memstore

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/ariefcatur/go-clothing-orders/internal/apperr"
	"github.com/ariefcatur/go-clothing-orders/internal/inventory"
	"github.com/ariefcatur/go-clothing-orders/internal/orders"
)

type state struct {
	stock    map[string]inventory.StockRecord
	txs      []inventory.Transaction
	orders   map[string]*orders.Order
	variants map[string]orders.Variant
	codes    map[string]orders.DiscountCode
}

func newState() *state {
	return &state{
		stock:    map[string]inventory.StockRecord{},
		orders:   map[string]*orders.Order{},
		variants: map[string]orders.Variant{},
		codes:    map[string]orders.DiscountCode{},
	}
}

func (s *state) clone() *state {
	c := &state{
		stock:    make(map[string]inventory.StockRecord, len(s.stock)),
		txs:      slices.Clone(s.txs),
		orders:   make(map[string]*orders.Order, len(s.orders)),
		variants: s.variants,
		codes:    s.codes,
	}
	for k, v := range s.stock {
		c.stock[k] = v
	}
	for k, o := range s.orders {
		c.orders[k] = o.Clone()
	}
	return c
}

type Store struct {
	mu          sync.Mutex
	st          *state
	failCommits int
}

func New() *Store {
	return &Store{st: newState()}
}

// PutVariant adds or replaces a catalog variant.
func (s *Store) PutVariant(v orders.Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	variants := make(map[string]orders.Variant, len(s.st.variants)+1)
	for k, x := range s.st.variants {
		variants[k] = x
	}
	variants[v.ID] = v
	s.st.variants = variants
}

func (s *Store) PutDiscountCode(c orders.DiscountCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := make(map[string]orders.DiscountCode, len(s.st.codes)+1)
	for k, x := range s.st.codes {
		codes[k] = x
	}
	codes[strings.ToUpper(c.Code)] = c
	s.st.codes = codes
}

// FailCommits makes the next n units of work fail at commit time with a
// concurrent modification, discarding their writes.
func (s *Store) FailCommits(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCommits = n
}

// Stock reads a record outside any unit of work.
func (s *Store) Stock(variantID string) (inventory.StockRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.st.stock[variantID]
	return rec, ok
}

// Transactions returns a variant's audit trail outside any unit of work.
func (s *Store) Transactions(variantID string) []inventory.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.Transaction
	for _, t := range s.st.txs {
		if t.VariantID == variantID {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, r orders.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &txn{st: s.st.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.failCommits > 0 {
		s.failCommits--
		return apperr.New(apperr.KindConcurrentModification, "injected commit conflict")
	}
	s.st = tx.st
	return nil
}

func (s *Store) RunStockTx(ctx context.Context, fn func(ctx context.Context, st inventory.Store) error) error {
	return s.RunInTx(ctx, func(ctx context.Context, r orders.Repository) error {
		return fn(ctx, r)
	})
}

// txn is the repository view of one unit of work.
type txn struct {
	st *state
}

func (t *txn) LockStock(_ context.Context, variantID string) (*inventory.StockRecord, error) {
	rec, ok := t.st.stock[variantID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "no stock record for variant %s", variantID)
	}
	return &rec, nil
}

// GetStock is LockStock: a unit of work already holds the whole store.
func (t *txn) GetStock(ctx context.Context, variantID string) (*inventory.StockRecord, error) {
	return t.LockStock(ctx, variantID)
}

func (t *txn) InsertStock(_ context.Context, rec *inventory.StockRecord) error {
	if _, ok := t.st.stock[rec.VariantID]; ok {
		return apperr.New(apperr.KindConcurrentModification, "stock record for variant %s already exists", rec.VariantID)
	}
	rec.Version = 1
	t.st.stock[rec.VariantID] = *rec
	return nil
}

func (t *txn) SaveStock(_ context.Context, rec *inventory.StockRecord) error {
	cur, ok := t.st.stock[rec.VariantID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "no stock record for variant %s", rec.VariantID)
	}
	if cur.Version != rec.Version {
		return apperr.New(apperr.KindConcurrentModification,
			"variant %s: version %d is stale, current %d", rec.VariantID, rec.Version, cur.Version)
	}
	rec.Version++
	t.st.stock[rec.VariantID] = *rec
	return nil
}

func (t *txn) AppendTransaction(_ context.Context, tx *inventory.Transaction) error {
	t.st.txs = append(t.st.txs, *tx)
	return nil
}

func (t *txn) ListTransactions(_ context.Context, variantID string, limit int) ([]inventory.Transaction, error) {
	var out []inventory.Transaction
	for _, x := range t.st.txs {
		if x.VariantID == variantID {
			out = append(out, x)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (t *txn) LockOrder(ctx context.Context, id string) (*orders.Order, error) {
	return t.GetOrder(ctx, id)
}

func (t *txn) GetOrder(_ context.Context, id string) (*orders.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "order %s not found", id)
	}
	return o.Clone(), nil
}

func (t *txn) InsertOrder(_ context.Context, o *orders.Order) error {
	if !o.Status.Valid() {
		return apperr.New(apperr.KindInvalidInput, "order %s has no valid status", o.ID)
	}
	if _, ok := t.st.orders[o.ID]; ok {
		return apperr.New(apperr.KindConcurrentModification, "order %s already exists", o.ID)
	}
	for _, x := range t.st.orders {
		if x.Number == o.Number {
			return apperr.New(apperr.KindConcurrentModification, "order number %s already taken", o.Number)
		}
	}
	o.Version = 1
	t.st.orders[o.ID] = o.Clone()
	return nil
}

func (t *txn) UpdateOrder(_ context.Context, o *orders.Order) error {
	cur, ok := t.st.orders[o.ID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "order %s not found", o.ID)
	}
	if cur.Version != o.Version {
		return apperr.New(apperr.KindConcurrentModification,
			"order %s: version %d is stale, current %d", o.ID, o.Version, cur.Version)
	}
	o.Version++
	next := o.Clone()
	next.Lines = cur.Lines
	t.st.orders[o.ID] = next
	return nil
}

func (t *txn) ListOrders(_ context.Context, f orders.ListFilter) ([]orders.Order, error) {
	var out []orders.Order
	for _, o := range t.st.orders {
		if f.CustomerID != "" && o.CustomerID != f.CustomerID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, *o.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Number > out[j].Number
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (t *txn) GetVariants(_ context.Context, ids []string) (map[string]orders.Variant, error) {
	out := make(map[string]orders.Variant, len(ids))
	for _, id := range ids {
		if v, ok := t.st.variants[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (t *txn) GetDiscountCode(_ context.Context, code string) (*orders.DiscountCode, error) {
	c, ok := t.st.codes[strings.ToUpper(code)]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "discount code %s not found", code)
	}
	return &c, nil
}
