package inventory_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-clothing-orders/internal/events"
	"github.com/ariefcatur/go-clothing-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-clothing-orders/internal/kafka"
)

type fakeView struct {
	seen      map[string]bool
	version   map[string]int64
	available map[string]int
	status    map[string]inventory.StockStatus
	low       map[string]bool
}

func newFakeView() *fakeView {
	return &fakeView{
		seen:      map[string]bool{},
		version:   map[string]int64{},
		available: map[string]int{},
		status:    map[string]inventory.StockStatus{},
		low:       map[string]bool{},
	}
}

func (f *fakeView) Seen(_ context.Context, consumer, id string) (bool, error) {
	return f.seen[consumer+":"+id], nil
}

func (f *fakeView) MarkSeen(_ context.Context, consumer, id string) error {
	f.seen[consumer+":"+id] = true
	return nil
}

func (f *fakeView) SetAvailability(_ context.Context, variantID string, version int64, available int, status inventory.StockStatus) (bool, error) {
	if cur, ok := f.version[variantID]; ok && cur >= version {
		return false, nil
	}
	f.version[variantID] = version
	f.available[variantID] = available
	f.status[variantID] = status
	return true, nil
}

func (f *fakeView) TrackLowStock(_ context.Context, variantID string, _ int, low bool) error {
	f.low[variantID] = low
	return nil
}

func stockMessage(t *testing.T, p events.StockChangedPayload) (kafkago.Message, string) {
	t.Helper()
	msg, err := events.New(events.TopicStockChanged, events.EventStockChanged, "test", p.VariantID, "", p, time.Now())
	require.NoError(t, err)
	b, err := json.Marshal(msg.Envelope)
	require.NoError(t, err)
	return kafkago.Message{
		Topic:   events.TopicStockChanged,
		Value:   b,
		Headers: kafkax.EventHeaders(events.EventStockChanged, 1),
	}, msg.Envelope.EventID
}

func TestProjector_Handle(t *testing.T) {
	ctx := context.Background()
	view := newFakeView()
	p := inventory.NewProjector(view, 20)

	m, id := stockMessage(t, events.StockChangedPayload{VariantID: "v1", OnHand: 30, Reserved: 15, Version: 2})
	require.NoError(t, p.Handle(ctx, m))

	assert.Equal(t, 15, view.available["v1"])
	assert.Equal(t, inventory.StatusLowStock, view.status["v1"])
	assert.True(t, view.low["v1"])
	assert.True(t, view.seen["inventory-projector:"+id])

	// a redelivered event is skipped
	view.available["v1"] = -1
	require.NoError(t, p.Handle(ctx, m))
	assert.Equal(t, -1, view.available["v1"])

	m2, _ := stockMessage(t, events.StockChangedPayload{VariantID: "v1", OnHand: 60, Reserved: 15, Version: 3})
	require.NoError(t, p.Handle(ctx, m2))
	assert.Equal(t, 45, view.available["v1"])
	assert.False(t, view.low["v1"])
}

func TestProjector_SkipsForeignAndMalformed(t *testing.T) {
	ctx := context.Background()
	view := newFakeView()
	p := inventory.NewProjector(view, 20)

	other := kafkago.Message{Headers: kafkax.EventHeaders(events.EventOrderPlaced, 1), Value: []byte(`{}`)}
	assert.NoError(t, p.Handle(ctx, other))
	assert.NoError(t, p.Handle(ctx, kafkago.Message{Value: []byte(`not json`)}))
	assert.Empty(t, view.available)
}

func TestProjector_OutOfOrderDelivery(t *testing.T) {
	ctx := context.Background()
	view := newFakeView()
	p := inventory.NewProjector(view, 20)

	older, _ := stockMessage(t, events.StockChangedPayload{VariantID: "v1", OnHand: 10, Reserved: 0, Version: 4})
	newer, _ := stockMessage(t, events.StockChangedPayload{VariantID: "v1", OnHand: 10, Reserved: 10, Version: 5})

	require.NoError(t, p.Handle(ctx, newer))
	require.NoError(t, p.Handle(ctx, older))

	assert.Equal(t, 0, view.available["v1"])
	assert.Equal(t, inventory.StatusFullyReserved, view.status["v1"])
	assert.Equal(t, int64(5), view.version["v1"])
	assert.True(t, view.low["v1"])
}

func TestStockChangedMessage_CarriesVersion(t *testing.T) {
	msg, err := inventory.StockChangedMessage("test", "", inventory.Change{
		Record: inventory.StockRecord{VariantID: "v1", OnHand: 8, Reserved: 3, Version: 7},
		Tx:     inventory.Transaction{Type: inventory.TxReserve, Quantity: 3},
	})
	require.NoError(t, err)

	payload, err := events.Decode[events.StockChangedPayload](msg.Envelope)
	require.NoError(t, err)
	assert.Equal(t, int64(7), payload.Version)
	assert.Equal(t, 5, payload.Available)
	assert.Equal(t, "v1", msg.Key)
}
