package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-clothing-orders/internal/inventory"
	"github.com/ariefcatur/go-clothing-orders/internal/orders"
	"github.com/ariefcatur/go-clothing-orders/internal/tracing"
)

// Store runs units of work as pgx transactions. Rows are locked with
// SELECT ... FOR UPDATE and every update carries a version check.
type Store struct {
	DB *pgxpool.Pool
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, r orders.Repository) error) (err error) {
	ctx, span := tracing.Start(ctx, "postgres", "postgres.RunInTx")
	defer func() { tracing.End(span, err) }()

	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &repo{tx: tx}); err != nil {
		return err
	}
	return classify(tx.Commit(ctx), "commit")
}

func (s *Store) RunStockTx(ctx context.Context, fn func(ctx context.Context, st inventory.Store) error) error {
	return s.RunInTx(ctx, func(ctx context.Context, r orders.Repository) error {
		return fn(ctx, r)
	})
}

// repo is the Repository bound to one transaction.
type repo struct {
	tx pgx.Tx
}

func (r *repo) LockStock(ctx context.Context, variantID string) (*inventory.StockRecord, error) {
	var rec inventory.StockRecord
	err := r.tx.QueryRow(ctx, `
		SELECT variant_id, on_hand, reserved, version, updated_at
		FROM variant_stock WHERE variant_id=$1 FOR UPDATE`, variantID).
		Scan(&rec.VariantID, &rec.OnHand, &rec.Reserved, &rec.Version, &rec.UpdatedAt)
	if err != nil {
		return nil, classify(err, "stock for variant "+variantID)
	}
	return &rec, nil
}

func (r *repo) GetStock(ctx context.Context, variantID string) (*inventory.StockRecord, error) {
	var rec inventory.StockRecord
	err := r.tx.QueryRow(ctx, `
		SELECT variant_id, on_hand, reserved, version, updated_at
		FROM variant_stock WHERE variant_id=$1`, variantID).
		Scan(&rec.VariantID, &rec.OnHand, &rec.Reserved, &rec.Version, &rec.UpdatedAt)
	if err != nil {
		return nil, classify(err, "stock for variant "+variantID)
	}
	return &rec, nil
}

func (r *repo) InsertStock(ctx context.Context, rec *inventory.StockRecord) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO variant_stock(variant_id, on_hand, reserved, version, updated_at)
		VALUES ($1, $2, $3, 1, $4)`, rec.VariantID, rec.OnHand, rec.Reserved, rec.UpdatedAt)
	if err != nil {
		return classify(err, "insert stock "+rec.VariantID)
	}
	rec.Version = 1
	return nil
}

func (r *repo) SaveStock(ctx context.Context, rec *inventory.StockRecord) error {
	ct, err := r.tx.Exec(ctx, `
		UPDATE variant_stock
		SET on_hand=$2, reserved=$3, updated_at=$4, version=version+1
		WHERE variant_id=$1 AND version=$5`,
		rec.VariantID, rec.OnHand, rec.Reserved, rec.UpdatedAt, rec.Version)
	if err != nil {
		return classify(err, "save stock "+rec.VariantID)
	}
	if ct.RowsAffected() != 1 {
		return staleVersion("stock "+rec.VariantID, rec.Version)
	}
	rec.Version++
	return nil
}

func (r *repo) AppendTransaction(ctx context.Context, t *inventory.Transaction) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO inventory_transactions
			(id, variant_id, type, quantity, quantity_before, quantity_after, reason, order_id, actor_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		t.ID, t.VariantID, string(t.Type), t.Quantity, t.QuantityBefore, t.QuantityAfter,
		t.Reason, t.OrderID, t.ActorID, t.CreatedAt)
	return classify(err, "append inventory transaction")
}

// newest N, returned oldest first
const listTransactionsSQL = `
	SELECT id, variant_id, type, quantity, quantity_before, quantity_after, reason, order_id, actor_id, created_at
	FROM (
		SELECT * FROM inventory_transactions WHERE variant_id=$1 ORDER BY seq DESC LIMIT $2
	) t ORDER BY seq`

// limitArg binds limit for a LIMIT clause; LIMIT NULL means no limit.
func limitArg(limit int) any {
	if limit > 0 {
		return limit
	}
	return nil
}

func (r *repo) ListTransactions(ctx context.Context, variantID string, limit int) ([]inventory.Transaction, error) {
	rows, err := r.tx.Query(ctx, listTransactionsSQL, variantID, limitArg(limit))
	if err != nil {
		return nil, classify(err, "list inventory transactions")
	}
	defer rows.Close()

	var out []inventory.Transaction
	for rows.Next() {
		var t inventory.Transaction
		var typ string
		if err := rows.Scan(&t.ID, &t.VariantID, &typ, &t.Quantity, &t.QuantityBefore, &t.QuantityAfter,
			&t.Reason, &t.OrderID, &t.ActorID, &t.CreatedAt); err != nil {
			return nil, classify(err, "scan inventory transaction")
		}
		t.Type = inventory.TxType(typ)
		out = append(out, t)
	}
	return out, classify(rows.Err(), "list inventory transactions")
}

const orderColumns = `
	id, number, customer_id, status, subtotal, shipping_fee, tax, discount, total, discount_code,
	ship_full_name, ship_phone, ship_address1, ship_address2, ship_city, ship_postal_code, ship_country,
	payment_method, payment_status, is_gift, gift_message, cancellation_reason,
	cancellation_requested_at, cancelled_at, tracking_number, shipped_at, delivered_at,
	created_at, updated_at, version`

func scanOrder(row pgx.Row) (*orders.Order, error) {
	var (
		o                         orders.Order
		status, method, payStatus string
	)
	err := row.Scan(&o.ID, &o.Number, &o.CustomerID, &status,
		&o.Subtotal, &o.Shipping, &o.Tax, &o.Discount, &o.Total, &o.DiscountCode,
		&o.ShipTo.FullName, &o.ShipTo.Phone, &o.ShipTo.AddressLine1, &o.ShipTo.AddressLine2,
		&o.ShipTo.City, &o.ShipTo.PostalCode, &o.ShipTo.Country,
		&method, &payStatus, &o.IsGift, &o.GiftMessage, &o.CancellationReason,
		&o.CancellationRequestedAt, &o.CancelledAt, &o.TrackingNumber, &o.ShippedAt, &o.DeliveredAt,
		&o.CreatedAt, &o.UpdatedAt, &o.Version)
	if err != nil {
		return nil, err
	}
	o.Status = orders.Status(status)
	o.PaymentMethod = orders.PaymentMethod(method)
	o.PaymentStatus = orders.PaymentStatus(payStatus)
	return &o, nil
}

func (r *repo) LockOrder(ctx context.Context, id string) (*orders.Order, error) {
	return r.loadOrder(ctx, id, " FOR UPDATE")
}

func (r *repo) GetOrder(ctx context.Context, id string) (*orders.Order, error) {
	return r.loadOrder(ctx, id, "")
}

func (r *repo) loadOrder(ctx context.Context, id, lock string) (*orders.Order, error) {
	o, err := scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`+lock, id))
	if err != nil {
		return nil, classify(err, "order "+id)
	}
	lines, err := r.loadLines(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	o.Lines = lines[id]
	return o, nil
}

func (r *repo) loadLines(ctx context.Context, orderIDs []string) (map[string][]orders.LineItem, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT order_id, id, variant_id, product_name, sku, color_name, size_name, quantity, unit_price, line_total
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, variant_id`, orderIDs)
	if err != nil {
		return nil, classify(err, "load order items")
	}
	defer rows.Close()

	out := make(map[string][]orders.LineItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			l       orders.LineItem
		)
		if err := rows.Scan(&orderID, &l.ID, &l.VariantID, &l.ProductName, &l.SKU, &l.ColorName, &l.SizeName,
			&l.Quantity, &l.UnitPrice, &l.LineTotal); err != nil {
			return nil, classify(err, "scan order item")
		}
		out[orderID] = append(out[orderID], l)
	}
	return out, classify(rows.Err(), "load order items")
}

func (r *repo) InsertOrder(ctx context.Context, o *orders.Order) error {
	if !o.Status.Valid() {
		return fmt.Errorf("insert order %s: invalid status %q", o.ID, o.Status)
	}
	_, err := r.tx.Exec(ctx, `
		INSERT INTO orders(`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
		        $21,$22,$23,$24,$25,$26,$27,$28,$29,1)`,
		o.ID, o.Number, o.CustomerID, string(o.Status),
		o.Subtotal, o.Shipping, o.Tax, o.Discount, o.Total, o.DiscountCode,
		o.ShipTo.FullName, o.ShipTo.Phone, o.ShipTo.AddressLine1, o.ShipTo.AddressLine2,
		o.ShipTo.City, o.ShipTo.PostalCode, o.ShipTo.Country,
		string(o.PaymentMethod), string(o.PaymentStatus), o.IsGift, o.GiftMessage, o.CancellationReason,
		o.CancellationRequestedAt, o.CancelledAt, o.TrackingNumber, o.ShippedAt, o.DeliveredAt,
		o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return classify(err, "insert order "+o.Number)
	}

	if err := r.tx.SendBatch(ctx, orderItemsBatch(o)).Close(); err != nil {
		return classify(err, "insert order items")
	}
	o.Version = 1
	return nil
}

// orderItemsBatch queues one insert per line so they go out in a single round trip.
func orderItemsBatch(o *orders.Order) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, l := range o.Lines {
		batch.Queue(`
			INSERT INTO order_items
				(id, order_id, variant_id, product_name, sku, color_name, size_name, quantity, unit_price, line_total)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			l.ID, o.ID, l.VariantID, l.ProductName, l.SKU, l.ColorName, l.SizeName, l.Quantity, l.UnitPrice, l.LineTotal)
	}
	return batch
}

func (r *repo) UpdateOrder(ctx context.Context, o *orders.Order) error {
	ct, err := r.tx.Exec(ctx, `
		UPDATE orders SET
			status=$2, payment_status=$3, cancellation_reason=$4, cancellation_requested_at=$5,
			cancelled_at=$6, tracking_number=$7, shipped_at=$8, delivered_at=$9, updated_at=$10,
			version=version+1
		WHERE id=$1 AND version=$11`,
		o.ID, string(o.Status), string(o.PaymentStatus), o.CancellationReason, o.CancellationRequestedAt,
		o.CancelledAt, o.TrackingNumber, o.ShippedAt, o.DeliveredAt, o.UpdatedAt, o.Version)
	if err != nil {
		return classify(err, "update order "+o.Number)
	}
	if ct.RowsAffected() != 1 {
		return staleVersion("order "+o.Number, o.Version)
	}
	o.Version++
	return nil
}

func listOrdersQuery(f orders.ListFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.CustomerID != "" {
		args = append(args, f.CustomerID)
		where = append(where, fmt.Sprintf("customer_id=$%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, number DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return q, args
}

func (r *repo) ListOrders(ctx context.Context, f orders.ListFilter) ([]orders.Order, error) {
	q, args := listOrdersQuery(f)
	rows, err := r.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, classify(err, "list orders")
	}
	var (
		out []orders.Order
		ids []string
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, classify(err, "scan order")
		}
		out = append(out, *o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list orders")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	lines, err := r.loadLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Lines = lines[out[i].ID]
	}
	return out, nil
}

func (r *repo) GetVariants(ctx context.Context, ids []string) (map[string]orders.Variant, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT id, product_name, sku, color_name, size_name, price, active
		FROM variants WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, classify(err, "load variants")
	}
	defer rows.Close()

	out := make(map[string]orders.Variant, len(ids))
	for rows.Next() {
		var v orders.Variant
		if err := rows.Scan(&v.ID, &v.ProductName, &v.SKU, &v.ColorName, &v.SizeName, &v.Price, &v.Active); err != nil {
			return nil, classify(err, "scan variant")
		}
		out[v.ID] = v
	}
	return out, classify(rows.Err(), "load variants")
}

func (r *repo) GetDiscountCode(ctx context.Context, code string) (*orders.DiscountCode, error) {
	var (
		d          orders.DiscountCode
		typ        string
		start, end *time.Time
		minimum    decimal.NullDecimal
	)
	err := r.tx.QueryRow(ctx, `
		SELECT code, type, value, minimum_order, starts_at, ends_at, active
		FROM discount_codes WHERE upper(code)=upper($1)`, code).
		Scan(&d.Code, &typ, &d.Value, &minimum, &start, &end, &d.Active)
	if err != nil {
		return nil, classify(err, "discount code "+code)
	}
	d.Type = orders.DiscountType(typ)
	if minimum.Valid {
		d.MinimumOrder = minimum.Decimal
	}
	if start != nil {
		d.StartsAt = *start
	}
	if end != nil {
		d.EndsAt = *end
	}
	return &d, nil
}
