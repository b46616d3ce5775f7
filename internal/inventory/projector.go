package inventory

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-clothing-orders/internal/events"
	kafkax "github.com/ariefcatur/go-clothing-orders/internal/kafka"
	"github.com/ariefcatur/go-clothing-orders/internal/logger"
)

// Projection is the read model the projector maintains.
type Projection interface {
	Seen(ctx context.Context, consumer, eventID string) (bool, error)
	MarkSeen(ctx context.Context, consumer, eventID string) error
	// SetAvailability stores the figures only when version is newer than the
	// stored one and reports whether it did.
	SetAvailability(ctx context.Context, variantID string, version int64, available int, status StockStatus) (bool, error)
	TrackLowStock(ctx context.Context, variantID string, available int, low bool) error
}

// Projector folds stock-changed events into the availability and low-stock
// views. It never touches the ledger.
type Projector struct {
	View              Projection
	LowStockThreshold int
	Name              string
}

func NewProjector(view Projection, lowStockThreshold int) *Projector {
	return &Projector{View: view, LowStockThreshold: lowStockThreshold, Name: "inventory-projector"}
}

// Handle is a kafka.Handler. Malformed messages are logged and skipped so
// they do not block the partition.
func (p *Projector) Handle(ctx context.Context, m kafkago.Message) error {
	if t := kafkax.HeaderValue(m, kafkax.HeaderEventType); t != "" && t != events.EventStockChanged {
		return nil
	}
	env, err := kafkax.Unmarshal[events.Envelope](m)
	if err != nil {
		logger.Warn(ctx).Err(err).Int64("offset", m.Offset).Msg("skipping malformed stock event")
		return nil
	}
	if env.EventType != events.EventStockChanged {
		return nil
	}

	seen, err := p.View.Seen(ctx, p.Name, env.EventID)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	payload, err := events.Decode[events.StockChangedPayload](env)
	if err != nil {
		logger.Warn(ctx).Err(err).Str("event_id", env.EventID).Msg("skipping stock event with bad payload")
		return nil
	}
	if err := p.Apply(ctx, payload); err != nil {
		return err
	}
	return p.View.MarkSeen(ctx, p.Name, env.EventID)
}

// Apply updates the views from one stock change. A change older than the
// one already projected is ignored.
func (p *Projector) Apply(ctx context.Context, ev events.StockChangedPayload) error {
	rec := StockRecord{VariantID: ev.VariantID, OnHand: ev.OnHand, Reserved: ev.Reserved, Version: ev.Version}
	status := StatusOf(rec, p.LowStockThreshold)
	applied, err := p.View.SetAvailability(ctx, ev.VariantID, ev.Version, rec.Available(), status)
	if err != nil {
		return err
	}
	if !applied {
		logger.Debug(ctx).
			Str("variant_id", ev.VariantID).
			Int64("version", ev.Version).
			Msg("stale stock event skipped")
		return nil
	}
	return p.View.TrackLowStock(ctx, ev.VariantID, rec.Available(), status != StatusInStock)
}
