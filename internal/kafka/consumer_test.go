package kafka

import (
	"context"
	"io"
	"math/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedReader serves msgs in order, then io.EOF.
type scriptedReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (r *scriptedReader) FetchMessage(context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *scriptedReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func TestConsumer_KeepsPerKeyOrder(t *testing.T) {
	keys := []string{"v1", "v2", "v3"}
	var msgs []kafka.Message
	for i := 0; i < 60; i++ {
		msgs = append(msgs, kafka.Message{
			Key:    []byte(keys[i%len(keys)]),
			Value:  []byte(strconv.Itoa(i)),
			Offset: int64(i),
		})
	}
	r := &scriptedReader{msgs: msgs}
	c := newConsumer(r, 8)

	var mu sync.Mutex
	seen := map[string][]int{}
	err := c.Start(context.Background(), func(_ context.Context, m kafka.Message) error {
		time.Sleep(time.Duration(rand.Intn(500)) * time.Microsecond)
		n, _ := strconv.Atoi(string(m.Value))
		mu.Lock()
		seen[string(m.Key)] = append(seen[string(m.Key)], n)
		mu.Unlock()
		return nil
	})
	require.ErrorIs(t, err, io.EOF)

	for _, k := range keys {
		got := seen[k]
		require.Len(t, got, 20, k)
		for i := 1; i < len(got); i++ {
			assert.Less(t, got[i-1], got[i], "key %s handled out of order", k)
		}
	}
	assert.Len(t, r.committed, 60)
	assert.True(t, r.closed)
}

func TestConsumer_FailedMessagesAreNotCommitted(t *testing.T) {
	r := &scriptedReader{msgs: []kafka.Message{
		{Key: []byte("a"), Value: []byte("ok")},
		{Key: []byte("a"), Value: []byte("bad")},
	}}
	c := newConsumer(r, 2)

	err := c.Start(context.Background(), func(_ context.Context, m kafka.Message) error {
		if string(m.Value) == "bad" {
			return io.ErrUnexpectedEOF
		}
		return nil
	})
	require.ErrorIs(t, err, io.EOF)
	require.Len(t, r.committed, 1)
	assert.Equal(t, "ok", string(r.committed[0].Value))
}
