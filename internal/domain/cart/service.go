package cart

import (
	"context"
	"encoding/json"
	"fmt"
)

// SessionKey is the session entry holding the serialized cart.
const SessionKey = "cart"

// SessionStore is a per-session string key/value store.
type SessionStore interface {
	Get(ctx context.Context, sessionID, key string) (string, bool, error)
	Set(ctx context.Context, sessionID, key, value string) error
	Remove(ctx context.Context, sessionID, key string) error
}

// Service loads and persists carts in the visitor's session.
type Service struct {
	sessions SessionStore
}

func NewService(sessions SessionStore) *Service {
	return &Service{sessions: sessions}
}

// Load returns the session's cart, or an empty cart when none is stored.
func (s *Service) Load(ctx context.Context, sessionID string) (*Cart, error) {
	raw, ok, err := s.sessions.Get(ctx, sessionID, SessionKey)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	c := New()
	if !ok || raw == "" {
		return c, nil
	}
	if err := json.Unmarshal([]byte(raw), c); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return c, nil
}

// Save writes the cart back to the session. An empty cart removes the
// session entry.
func (s *Service) Save(ctx context.Context, sessionID string, c *Cart) error {
	if c.IsEmpty() {
		return s.Clear(ctx, sessionID)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.sessions.Set(ctx, sessionID, SessionKey, string(data)); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if err := s.sessions.Remove(ctx, sessionID, SessionKey); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// Mutate loads the cart, applies fn and saves the result. Nothing is saved
// when fn fails.
func (s *Service) Mutate(ctx context.Context, sessionID string, fn func(c *Cart) error) (*Cart, error) {
	c, err := s.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	if err := s.Save(ctx, sessionID, c); err != nil {
		return nil, err
	}
	return c, nil
}
