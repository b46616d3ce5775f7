package orders

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-clothing-orders/internal/auth"
	"github.com/ariefcatur/go-clothing-orders/internal/events"
	"github.com/ariefcatur/go-clothing-orders/internal/inventory"
	"github.com/ariefcatur/go-clothing-orders/internal/logger"
	"github.com/ariefcatur/go-clothing-orders/internal/tracing"
)

func decimalInt(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }

// Events go out only after the unit of work has committed; a failure here is
// logged and never rolls the order back.

func (s *Service) publishPlaced(ctx context.Context, o *Order, changes []inventory.Change) {
	lines := make([]events.OrderLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, events.OrderLine{
			VariantID: l.VariantID,
			SKU:       l.SKU,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
		})
	}
	traceID := tracing.TraceID(ctx)
	msg, err := events.New(events.TopicOrderPlaced, events.EventOrderPlaced, s.ServiceName, o.ID, traceID,
		events.OrderPlacedPayload{
			OrderID:       o.ID,
			OrderNumber:   o.Number,
			CustomerID:    o.CustomerID,
			Lines:         lines,
			Total:         o.Total.StringFixed(2),
			PaymentMethod: string(o.PaymentMethod),
		}, o.CreatedAt)
	if err != nil {
		logger.Error(ctx).Err(err).Str("order_id", o.ID).Msg("build order placed event")
		return
	}
	s.Events.Publish(ctx, append([]events.Message{msg}, s.stockMessages(ctx, changes)...)...)
}

func (s *Service) publishTransition(ctx context.Context, o *Order, step Step, actor auth.Actor, reason string, changes []inventory.Change) {
	msg, err := events.New(events.TopicOrderStatusChanged, events.EventOrderStatusChanged, s.ServiceName, o.ID,
		tracing.TraceID(ctx),
		events.OrderStatusChangedPayload{
			OrderID:       o.ID,
			OrderNumber:   o.Number,
			Event:         string(step.Event),
			From:          string(step.From),
			To:            string(step.To),
			ActorID:       actor.ID,
			Reason:        reason,
			PaymentStatus: string(o.PaymentStatus),
		}, o.UpdatedAt)
	if err != nil {
		logger.Error(ctx).Err(err).Str("order_id", o.ID).Msg("build status changed event")
		return
	}
	s.Events.Publish(ctx, append([]events.Message{msg}, s.stockMessages(ctx, changes)...)...)
}

func (s *Service) stockMessages(ctx context.Context, changes []inventory.Change) []events.Message {
	traceID := tracing.TraceID(ctx)
	out := make([]events.Message, 0, len(changes))
	for _, ch := range changes {
		m, err := inventory.StockChangedMessage(s.ServiceName, traceID, ch)
		if err != nil {
			logger.Error(ctx).Err(err).Str("variant_id", ch.Record.VariantID).Msg("build stock event")
			continue
		}
		out = append(out, m)
	}
	return out
}
