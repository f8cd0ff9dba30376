package mocks

import (
	"context"
	"sync"
)

// MockSessionStore is an in-memory session store that records writes.
type MockSessionStore struct {
	mu     sync.RWMutex
	values map[string]map[string]string

	SetCalls    []SetCall
	RemoveCalls []RemoveCall
	GetErr      error
	SetErr      error
	RemoveErr   error
}

// SetCall records parameters passed to Set
type SetCall struct {
	SessionID string
	Key       string
	Value     string
}

// RemoveCall records parameters passed to Remove
type RemoveCall struct {
	SessionID string
	Key       string
}

func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{
		values: make(map[string]map[string]string),
	}
}

func (m *MockSessionStore) Get(ctx context.Context, sessionID, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetErr != nil {
		return "", false, m.GetErr
	}
	v, ok := m.values[sessionID][key]
	return v, ok, nil
}

func (m *MockSessionStore) Set(ctx context.Context, sessionID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SetCalls = append(m.SetCalls, SetCall{SessionID: sessionID, Key: key, Value: value})
	if m.SetErr != nil {
		return m.SetErr
	}
	if m.values[sessionID] == nil {
		m.values[sessionID] = make(map[string]string)
	}
	m.values[sessionID][key] = value
	return nil
}

func (m *MockSessionStore) Remove(ctx context.Context, sessionID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RemoveCalls = append(m.RemoveCalls, RemoveCall{SessionID: sessionID, Key: key})
	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	delete(m.values[sessionID], key)
	return nil
}

// Seed stores a raw value without recording a call.
func (m *MockSessionStore) Seed(sessionID, key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.values[sessionID] == nil {
		m.values[sessionID] = make(map[string]string)
	}
	m.values[sessionID][key] = value
}
