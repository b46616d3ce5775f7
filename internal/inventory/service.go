package inventory

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ariefcatur/go-clothing-orders/internal/apperr"
	"github.com/ariefcatur/go-clothing-orders/internal/auth"
	"github.com/ariefcatur/go-clothing-orders/internal/events"
	"github.com/ariefcatur/go-clothing-orders/internal/logger"
	"github.com/ariefcatur/go-clothing-orders/internal/metrics"
	"github.com/ariefcatur/go-clothing-orders/internal/tracing"
)

const tracerName = "inventory"

// StockView is a stock record with its derived quantities, as shown to admins.
type StockView struct {
	StockRecord
	Available int         `json:"available"`
	Status    StockStatus `json:"status"`
}

// Service is the admin inventory workflow: first stocking, manual
// corrections and reads. Each call is its own unit of work.
type Service struct {
	Runner            Runner
	Ledger            *Ledger
	Events            events.Publisher
	ServiceName       string
	LowStockThreshold int
	// Attempts is how many times a unit of work runs before a concurrent
	// modification is surfaced.
	Attempts int
}

func NewService(r Runner, pub events.Publisher, serviceName string) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		Runner:            r,
		Ledger:            NewLedger(),
		Events:            pub,
		ServiceName:       serviceName,
		LowStockThreshold: DefaultLowStockThreshold,
		Attempts:          2,
	}
}

func (s *Service) View(rec StockRecord) StockView {
	return StockView{StockRecord: rec, Available: rec.Available(), Status: StatusOf(rec, s.LowStockThreshold)}
}

func (s *Service) OpenStock(ctx context.Context, actor auth.Actor, variantID string, onHand int, reason string) (view StockView, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "inventory.OpenStock", attribute.String("variant_id", variantID))
	defer func() { tracing.End(span, err) }()

	if !actor.IsAdmin() {
		return StockView{}, apperr.New(apperr.KindForbidden, "opening stock requires the admin role")
	}
	var ch Change
	err = s.run(ctx, "open_stock", func(ctx context.Context, st Store) error {
		var err error
		ch, err = s.Ledger.Open(ctx, st, variantID, onHand, Ref{ActorID: actor.ID, Reason: reason})
		return err
	})
	if err != nil {
		return StockView{}, err
	}
	s.publish(ctx, ch)
	return s.View(ch.Record), nil
}

// Restock applies a manual on-hand correction of delta.
func (s *Service) Restock(ctx context.Context, actor auth.Actor, variantID string, delta int, reason string) (view StockView, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "inventory.Restock",
		attribute.String("variant_id", variantID), attribute.Int("delta", delta))
	defer func() { tracing.End(span, err) }()

	if !actor.IsAdmin() {
		return StockView{}, apperr.New(apperr.KindForbidden, "stock adjustments require the admin role")
	}
	var ch Change
	err = s.run(ctx, "restock", func(ctx context.Context, st Store) error {
		var err error
		ch, err = s.Ledger.Restock(ctx, st, variantID, delta, Ref{ActorID: actor.ID, Reason: reason})
		return err
	})
	if err != nil {
		return StockView{}, err
	}
	logger.Info(ctx).
		Str("variant_id", variantID).
		Int("delta", delta).
		Int("on_hand", ch.Record.OnHand).
		Str("actor_id", actor.ID).
		Msg("stock adjusted")
	s.publish(ctx, ch)
	return s.View(ch.Record), nil
}

// Available is open to any caller; storefront pages use it.
func (s *Service) Available(ctx context.Context, variantID string) (int, error) {
	var n int
	err := s.Runner.RunStockTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		n, err = s.Ledger.AvailableQuantity(ctx, st, variantID)
		return err
	})
	return n, err
}

func (s *Service) Stock(ctx context.Context, actor auth.Actor, variantID string) (StockView, error) {
	if !actor.IsAdmin() {
		return StockView{}, apperr.New(apperr.KindForbidden, "stock details require the admin role")
	}
	var rec *StockRecord
	err := s.Runner.RunStockTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		rec, err = st.GetStock(ctx, variantID)
		return err
	})
	if err != nil {
		return StockView{}, err
	}
	return s.View(*rec), nil
}

// History returns the variant's audit trail, oldest first.
func (s *Service) History(ctx context.Context, actor auth.Actor, variantID string, limit int) ([]Transaction, error) {
	if !actor.IsAdmin() {
		return nil, apperr.New(apperr.KindForbidden, "stock history requires the admin role")
	}
	var txs []Transaction
	err := s.Runner.RunStockTx(ctx, func(ctx context.Context, st Store) error {
		if _, err := st.GetStock(ctx, variantID); err != nil {
			return err
		}
		var err error
		txs, err = st.ListTransactions(ctx, variantID, limit)
		return err
	})
	return txs, err
}

func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context, st Store) error) error {
	return apperr.RetryOnConflict(ctx, s.Attempts, func() error {
		return s.Runner.RunStockTx(ctx, fn)
	}, func(attempt int, err error) {
		metrics.ConflictRetries.WithLabelValues(op).Inc()
		logger.Warn(ctx).Err(err).Str("operation", op).Int("attempt", attempt).Msg("retrying after concurrent modification")
	})
}

func (s *Service) publish(ctx context.Context, changes ...Change) {
	msgs := make([]events.Message, 0, len(changes))
	for _, ch := range changes {
		m, err := StockChangedMessage(s.ServiceName, tracing.TraceID(ctx), ch)
		if err != nil {
			logger.Error(ctx).Err(err).Str("variant_id", ch.Record.VariantID).Msg("build stock event")
			continue
		}
		msgs = append(msgs, m)
	}
	s.Events.Publish(ctx, msgs...)
}

// StockChangedMessage builds the inventory.stock.changed event for ch, keyed
// by variant id so a variant's events stay ordered.
func StockChangedMessage(producer, traceID string, ch Change) (events.Message, error) {
	at := ch.Tx.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	return events.New(events.TopicStockChanged, events.EventStockChanged, producer, ch.Record.VariantID, traceID,
		events.StockChangedPayload{
			VariantID:      ch.Record.VariantID,
			Type:           string(ch.Tx.Type),
			Quantity:       ch.Tx.Quantity,
			QuantityBefore: ch.Tx.QuantityBefore,
			QuantityAfter:  ch.Tx.QuantityAfter,
			OnHand:         ch.Record.OnHand,
			Reserved:       ch.Record.Reserved,
			Available:      ch.Record.Available(),
			OrderID:        ch.Tx.OrderID,
			Version:        ch.Record.Version,
		}, at)
}
