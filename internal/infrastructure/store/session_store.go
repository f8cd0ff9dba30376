package store

import (
	"context"
	"sync"
	"time"
)

// DefaultSessionTTL is how long an idle session keeps its values.
const DefaultSessionTTL = 30 * time.Minute

type sessionEntry struct {
	value     string
	expiresAt time.Time
}

// MemorySessionStore keeps session values in process memory with a sliding
// expiry per entry.
type MemorySessionStore struct {
	mu      sync.Mutex
	entries map[string]sessionEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemorySessionStore{
		entries: make(map[string]sessionEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemorySessionStore) Get(ctx context.Context, sessionID, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := sessionKey(sessionID, key)
	e, ok := s.entries[k]
	if !ok {
		return "", false, nil
	}
	now := s.now()
	if now.After(e.expiresAt) {
		delete(s.entries, k)
		return "", false, nil
	}
	e.expiresAt = now.Add(s.ttl)
	s.entries[k] = e
	return e.value, true, nil
}

func (s *MemorySessionStore) Set(ctx context.Context, sessionID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[sessionKey(sessionID, key)] = sessionEntry{value: value, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemorySessionStore) Remove(ctx context.Context, sessionID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, sessionKey(sessionID, key))
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (s *MemorySessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done. Sessions that
// are never read again would otherwise stay in memory.
func (s *MemorySessionStore) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = s.ttl / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func sessionKey(sessionID, key string) string {
	return "session:" + sessionID + ":" + key
}
