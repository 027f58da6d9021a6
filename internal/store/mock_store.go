// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
// The SQL escape hatch is not supported and returns ErrMockSQL.
type MockStore struct {
	mu       sync.RWMutex
	alerts   map[string]string // phrase -> emoji
	messages map[string]string // id -> text

	// Fail, when set, is returned by every mutating call.
	Fail error
}

// ErrMockSQL is returned by MockStore for raw SQL calls.
var ErrMockSQL = errors.New("mock store does not execute SQL")

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		alerts:   make(map[string]string),
		messages: make(map[string]string),
	}
}

// GetAlert retrieves the binding for a phrase.
func (m *MockStore) GetAlert(ctx context.Context, phrase string) (*Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	phrase = normalizePhrase(phrase)
	emoji, ok := m.alerts[phrase]
	if !ok {
		return nil, ErrNotFound
	}
	return &Alert{Phrase: phrase, Emoji: emoji}, nil
}

// UpsertAlert binds phrase to emoji.
func (m *MockStore) UpsertAlert(ctx context.Context, phrase, emoji string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail != nil {
		return m.Fail
	}
	phrase = normalizePhrase(phrase)
	if phrase == "" || emoji == "" {
		return fmt.Errorf("upserting alert: empty phrase or emoji")
	}
	m.alerts[phrase] = emoji
	return nil
}

// DeleteAlert removes the binding for a phrase.
func (m *MockStore) DeleteAlert(ctx context.Context, phrase string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail != nil {
		return m.Fail
	}
	phrase = normalizePhrase(phrase)
	if _, ok := m.alerts[phrase]; !ok {
		return ErrNotFound
	}
	delete(m.alerts, phrase)
	return nil
}

// ListAlerts returns every binding ordered by phrase.
func (m *MockStore) ListAlerts(ctx context.Context) ([]*Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alerts := make([]*Alert, 0, len(m.alerts))
	for phrase, emoji := range m.alerts {
		alerts = append(alerts, &Alert{Phrase: phrase, Emoji: emoji})
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Phrase < alerts[j].Phrase })
	return alerts, nil
}

// GetCachedMessage retrieves a cached message by ID.
func (m *MockStore) GetCachedMessage(ctx context.Context, id string) (*CachedMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	text, ok := m.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &CachedMessage{ID: id, Text: text}, nil
}

// PutCachedMessage stores msg, replacing any existing body.
func (m *MockStore) PutCachedMessage(ctx context.Context, msg *CachedMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail != nil {
		return m.Fail
	}
	if msg.ID == "" {
		return fmt.Errorf("storing message: empty id")
	}
	m.messages[msg.ID] = msg.Text
	return nil
}

// DeleteCachedMessage removes a cached message.
func (m *MockStore) DeleteCachedMessage(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail != nil {
		return m.Fail
	}
	if _, ok := m.messages[id]; !ok {
		return ErrNotFound
	}
	delete(m.messages, id)
	return nil
}

// ListCachedMessages returns every cached message ordered by ID.
func (m *MockStore) ListCachedMessages(ctx context.Context) ([]*CachedMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := make([]*CachedMessage, 0, len(m.messages))
	for id, text := range m.messages {
		msgs = append(msgs, &CachedMessage{ID: id, Text: text})
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	return msgs, nil
}

// Exec is not supported by MockStore.
func (m *MockStore) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return 0, ErrMockSQL
}

// Query is not supported by MockStore.
func (m *MockStore) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	return nil, ErrMockSQL
}

// QueryReadOnly is not supported by MockStore.
func (m *MockStore) QueryReadOnly(ctx context.Context, query string, args ...any) (*Rows, error) {
	return nil, ErrMockSQL
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements Store interface
var _ Store = (*MockStore)(nil)
