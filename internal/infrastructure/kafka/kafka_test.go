package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/outbox"
)

// ============================================
// Fakes
// ============================================

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.pending[0]
	r.pending = r.pending[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

// ============================================
// Producer
// ============================================

func TestProducer_PublishOutboxEvent(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, logger: zap.NewNop()}

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	evt := outbox.Event{ID: "e1", AggregateID: "order-1", EventType: "OrderPlaced", Data: json.RawMessage(`{}`), Timestamp: ts}

	require.NoError(t, p.Publish(context.Background(), evt.AggregateID, evt))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "order-1", string(msg.Key))
	assert.Equal(t, ts, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, HeaderEventType, msg.Headers[0].Key)
	assert.Equal(t, "OrderPlaced", string(msg.Headers[0].Value))

	var decoded outbox.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "e1", decoded.ID)
}

func TestProducer_PublishPlainValue(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, logger: zap.NewNop()}

	require.NoError(t, p.Publish(context.Background(), "k", map[string]int{"a": 1}))
	require.Len(t, w.msgs, 1)
	assert.Empty(t, w.msgs[0].Headers)
	assert.JSONEq(t, `{"a":1}`, string(w.msgs[0].Value))
}

func TestProducer_PublishWriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := &Producer{writer: w, logger: zap.NewNop()}

	err := p.Publish(context.Background(), "k", "v")
	assert.EqualError(t, err, "broker down")
}

// ============================================
// Consumer
// ============================================

func newTestConsumer(r messageReader) *Consumer {
	return &Consumer{reader: r, retryMin: time.Millisecond, retryMax: 4 * time.Millisecond, logger: zap.NewNop()}
}

func TestConsumer_CommitsHandledMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{
		pending: []kafka.Message{
			{Key: []byte("a"), Value: []byte("1"), Offset: 10},
			{Key: []byte("b"), Value: []byte("2"), Offset: 11},
		},
		cancel: cancel,
	}
	c := newTestConsumer(r)

	var seen []string
	err := c.Consume(ctx, func(_ context.Context, key, _ []byte) error {
		seen = append(seen, string(key))
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Equal(t, []int64{10, 11}, r.committed)
}

func TestConsumer_RetriesFailedMessageBeforeCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{
		pending: []kafka.Message{
			{Key: []byte("a"), Value: []byte("1"), Offset: 10},
			{Key: []byte("b"), Value: []byte("2"), Offset: 11},
		},
		cancel: cancel,
	}
	c := newTestConsumer(r)

	failures := 2
	var seen []string
	err := c.Consume(ctx, func(_ context.Context, key, _ []byte) error {
		seen = append(seen, string(key))
		if string(key) == "a" && failures > 0 {
			failures--
			return errors.New("smtp down")
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a", "a", "a", "b"}, seen)
	assert.Equal(t, []int64{10, 11}, r.committed)
}

func TestConsumer_FailedMessageIsNeverCommitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{
		pending: []kafka.Message{
			{Key: []byte("a"), Value: []byte("1"), Offset: 10},
			{Key: []byte("b"), Value: []byte("2"), Offset: 11},
		},
		cancel: cancel,
	}
	c := newTestConsumer(r)

	attempts := 0
	err := c.Consume(ctx, func(_ context.Context, key, _ []byte) error {
		if string(key) == "a" {
			return nil
		}
		if attempts++; attempts == 3 {
			cancel()
		}
		return errors.New("smtp down")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int64{10}, r.committed)
}
