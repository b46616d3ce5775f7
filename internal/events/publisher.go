package events

import (
	"context"
	"encoding/json"

	kafkax "github.com/ariefcatur/go-clothing-orders/internal/kafka"
	"github.com/ariefcatur/go-clothing-orders/internal/logger"
	"github.com/ariefcatur/go-clothing-orders/internal/metrics"
)

// Publisher hands committed domain events to the broker. Publishing happens
// after the unit of work commits, so failures are logged and never undo
// state.
type Publisher interface {
	Publish(ctx context.Context, msgs ...Message)
}

type KafkaPublisher struct {
	Producer *kafkax.Producer
}

func (p *KafkaPublisher) Publish(ctx context.Context, msgs ...Message) {
	for _, m := range msgs {
		value, err := json.Marshal(m.Envelope)
		if err == nil {
			err = p.Producer.Publish(ctx, m.Topic, PartitionKey(m.Key), value,
				kafkax.EventHeaders(m.Envelope.EventType, m.Envelope.EventVersion)...)
		}
		metrics.EventsPublished.WithLabelValues(m.Topic, metrics.Result(err)).Inc()
		if err != nil {
			logger.Error(ctx).Err(err).
				Str("topic", m.Topic).
				Str("event_type", m.Envelope.EventType).
				Str("event_id", m.Envelope.EventID).
				Msg("publish event failed")
		}
	}
}

// Nop discards events; used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, ...Message) {}
