package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	mu      sync.Mutex
	pending []Event
	sent    []string

	FetchErr error
	MarkErr  error
}

func (f *fakeSource) FetchPending(ctx context.Context, limit int) ([]Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	if limit > len(f.pending) {
		limit = len(f.pending)
	}
	out := make([]Event, limit)
	copy(out, f.pending[:limit])
	return out, nil
}

func (f *fakeSource) MarkSent(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MarkErr != nil {
		return f.MarkErr
	}
	done := make(map[string]bool, len(ids))
	for _, id := range ids {
		done[id] = true
	}
	remaining := f.pending[:0]
	for _, evt := range f.pending {
		if !done[evt.ID] {
			remaining = append(remaining, evt)
		}
	}
	f.pending = remaining
	f.sent = append(f.sent, ids...)
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []Event
	failOn    string
}

func (p *fakePublisher) Publish(ctx context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	evt := event.(Event)
	if evt.ID == p.failOn {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, evt)
	return nil
}

func newEvents(t *testing.T, n int) []Event {
	t.Helper()
	events := make([]Event, n)
	for i := range events {
		evt, err := NewEvent("OrderPlaced", "order-"+string(rune('a'+i)), map[string]int{"n": i}, time.Now())
		require.NoError(t, err)
		events[i] = evt
	}
	return events
}

// ============================================
// Flush Tests
// ============================================

func TestRelay_Flush_PublishesInOrder(t *testing.T) {
	events := newEvents(t, 3)
	source := &fakeSource{pending: append([]Event(nil), events...)}
	pub := &fakePublisher{}
	relay := NewRelay(source, pub, time.Second, 10, zap.NewNop())

	n, err := relay.Flush(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, pub.published, 3)
	for i, evt := range pub.published {
		assert.Equal(t, events[i].ID, evt.ID)
	}
	assert.Empty(t, source.pending)
}

func TestRelay_Flush_StopsAtFirstFailure(t *testing.T) {
	events := newEvents(t, 3)
	source := &fakeSource{pending: append([]Event(nil), events...)}
	pub := &fakePublisher{failOn: events[1].ID}
	relay := NewRelay(source, pub, time.Second, 10, zap.NewNop())

	n, err := relay.Flush(context.Background())

	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{events[0].ID}, source.sent)
	require.Len(t, source.pending, 2)
	assert.Equal(t, events[1].ID, source.pending[0].ID)
}

func TestRelay_Flush_RespectsBatchSize(t *testing.T) {
	source := &fakeSource{pending: newEvents(t, 5)}
	pub := &fakePublisher{}
	relay := NewRelay(source, pub, time.Second, 2, zap.NewNop())

	n, err := relay.Flush(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, source.pending, 3)
}

func TestRelay_Flush_FetchError(t *testing.T) {
	source := &fakeSource{FetchErr: errors.New("db down")}
	relay := NewRelay(source, &fakePublisher{}, time.Second, 10, zap.NewNop())

	_, err := relay.Flush(context.Background())

	assert.ErrorIs(t, err, source.FetchErr)
}

func TestRelay_Run_StopsOnCancel(t *testing.T) {
	source := &fakeSource{pending: newEvents(t, 1)}
	pub := &fakePublisher{}
	relay := NewRelay(source, pub, 5*time.Millisecond, 10, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	assert.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.published) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestNewRelay_Defaults(t *testing.T) {
	relay := NewRelay(&fakeSource{}, &fakePublisher{}, 0, 0, zap.NewNop())

	assert.Equal(t, DefaultInterval, relay.interval)
	assert.Equal(t, DefaultBatchSize, relay.batchSize)
}
