package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	cmd     PendingCommand
	expires time.Time
}

// MemoryStore keeps pending commands in process memory. They are lost on
// restart, which degrades to a silently cancelled confirmation.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

// NewMemoryStore creates a store whose commands expire after ttl. A zero ttl
// never expires.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

// GetPending implements Store.
func (m *MemoryStore) GetPending(_ context.Context, conversationID string) (*PendingCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[conversationID]
	if !ok {
		return nil, nil
	}
	if m.expired(entry) {
		delete(m.entries, conversationID)
		return nil, nil
	}
	cmd := entry.cmd
	return &cmd, nil
}

// SetPending implements Store.
func (m *MemoryStore) SetPending(_ context.Context, conversationID string, cmd PendingCommand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryEntry{cmd: cmd}
	if m.ttl > 0 {
		entry.expires = m.now().Add(m.ttl)
	}
	m.entries[conversationID] = entry
	return nil
}

// ClearPending implements Store.
func (m *MemoryStore) ClearPending(_ context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, conversationID)
	return nil
}

// TakePending implements Store.
func (m *MemoryStore) TakePending(_ context.Context, conversationID string) (*PendingCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[conversationID]
	if !ok {
		return nil, nil
	}
	delete(m.entries, conversationID)
	if m.expired(entry) {
		return nil, nil
	}
	cmd := entry.cmd
	return &cmd, nil
}

// Sweep drops expired commands and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, entry := range m.entries {
		if m.expired(entry) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) expired(entry memoryEntry) bool {
	return !entry.expires.IsZero() && !m.now().Before(entry.expires)
}

var _ Store = (*MemoryStore)(nil)
