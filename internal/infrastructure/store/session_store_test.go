package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySessionStore_SetGetRemove(t *testing.T) {
	s := NewMemorySessionStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "sess-1", "cart", `[]`))
	v, ok, err := s.Get(ctx, "sess-1", "cart")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[]`, v)

	_, ok, _ = s.Get(ctx, "sess-2", "cart")
	assert.False(t, ok)

	require.NoError(t, s.Remove(ctx, "sess-1", "cart"))
	_, ok, _ = s.Get(ctx, "sess-1", "cart")
	assert.False(t, ok)
}

func TestMemorySessionStore_Expiry(t *testing.T) {
	s := NewMemorySessionStore(time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "sess-1", "cart", "x"))
	require.NoError(t, s.Set(ctx, "sess-2", "cart", "y"))

	now = now.Add(50 * time.Second)
	_, ok, _ := s.Get(ctx, "sess-1", "cart")
	assert.True(t, ok, "read slides the expiry")

	now = now.Add(50 * time.Second)
	_, ok, _ = s.Get(ctx, "sess-1", "cart")
	assert.True(t, ok)
	assert.Equal(t, 1, s.Sweep())

	_, ok, _ = s.Get(ctx, "sess-2", "cart")
	assert.False(t, ok)
}

func TestMemorySessionStore_RunSweeperEvictsAbandonedSessions(t *testing.T) {
	s := NewMemorySessionStore(time.Minute)
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return start }
	for _, id := range []string{"sess-1", "sess-2", "sess-3"} {
		require.NoError(t, s.Set(context.Background(), id, "cart", "x"))
	}
	s.now = func() time.Time { return start.Add(2 * time.Minute) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.RunSweeper(ctx, time.Millisecond) }()

	size := func() int {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.entries)
	}
	require.Eventually(t, func() bool { return size() == 0 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
