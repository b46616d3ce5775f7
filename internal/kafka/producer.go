package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-clothing-orders/internal/logger"
)

var ErrProducerClosed = errors.New("kafka producer closed")

// writer is the part of *kafka.Writer the producer uses.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer buffers messages in memory and writes them from a single
// goroutine. Topic is set per message, so one producer serves every topic.
// A nil error from Publish means the message will be written before
// WaitClosed returns.
type Producer struct {
	w        writer
	inbox    chan kafka.Message
	stopping chan struct{}
	stopOnce sync.Once
	closeCh  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewProducer(brokers []string, buf int) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Logger.Error().Err(err).Int("messages", len(msgs)).Msg("kafka write failed")
			}
		},
	}, buf)
}

func newProducer(w writer, buf int) *Producer {
	return &Producer{
		w:        w,
		inbox:    make(chan kafka.Message, buf),
		stopping: make(chan struct{}),
		closeCh:  make(chan struct{}),
	}
}

// Start runs the writer goroutine. Cancelling ctx behaves like Close: the
// buffer is flushed and later Publish calls fail.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		defer func() { _ = p.w.Close() }()
		done := ctx.Done()
		for {
			select {
			case <-done:
				done = nil
				p.Close()
			case m, ok := <-p.inbox:
				if !ok {
					return
				}
				if err := p.w.WriteMessages(context.Background(), m); err != nil {
					logger.Logger.Error().Err(err).Str("topic", m.Topic).Msg("kafka publish failed")
				}
			}
		}
	}()
}

// Publish enqueues a message; it blocks while the buffer is full until ctx
// is done or the producer stops.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	select {
	case p.inbox <- kafka.Message{Topic: topic, Key: key, Value: value, Time: time.Now(), Headers: headers}:
		return nil
	case <-p.stopping:
		return ErrProducerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting messages; the writer goroutine flushes the rest and
// exits. Publish calls blocked on a full buffer are released first so the
// inbox can be closed safely.
func (p *Producer) Close() {
	p.stopOnce.Do(func() { close(p.stopping) })
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.inbox)
}

// WaitClosed blocks until the writer goroutine has exited.
func (p *Producer) WaitClosed() { <-p.closeCh }
