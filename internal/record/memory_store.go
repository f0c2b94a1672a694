package record

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu           sync.RWMutex
	contacts     []Contact
	transactions []Transaction // oldest first
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Contacts implements Store.
func (m *MemoryStore) Contacts(_ context.Context) ([]Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Contact(nil), m.contacts...), nil
}

// AddContact implements Store.
func (m *MemoryStore) AddContact(_ context.Context, contact Contact) (Contact, error) {
	contact, err := validateContact(contact)
	if err != nil {
		return Contact{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := NameKey(contact.Name)
	for _, existing := range m.contacts {
		if NameKey(existing.Name) == key {
			return Contact{}, ErrContactExists
		}
	}
	if contact.ID == "" {
		contact.ID = uuid.NewString()
	}
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = time.Now().UTC()
	}
	m.contacts = append(m.contacts, contact)
	return contact, nil
}

// DeleteContact implements Store.
func (m *MemoryStore) DeleteContact(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.contacts {
		if existing.ID == id {
			m.contacts = append(m.contacts[:i], m.contacts[i+1:]...)
			return nil
		}
	}
	return ErrContactNotFound
}

// FindContact implements Store.
func (m *MemoryStore) FindContact(_ context.Context, name string) (Contact, error) {
	key := NameKey(name)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, existing := range m.contacts {
		if NameKey(existing.Name) == key {
			return existing, nil
		}
	}
	return Contact{}, ErrContactNotFound
}

// Transactions implements Store.
func (m *MemoryStore) Transactions(_ context.Context, limit int) ([]Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.transactions)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Transaction, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.transactions[i])
	}
	return out, nil
}

// AddTransaction implements Store.
func (m *MemoryStore) AddTransaction(_ context.Context, tx Transaction) error {
	if err := validateTransaction(tx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions = append(m.transactions, tx)
	return nil
}

// TrimTransactions implements Store.
func (m *MemoryStore) TrimTransactions(_ context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if excess := len(m.transactions) - keep; excess > 0 {
		m.transactions = append([]Transaction(nil), m.transactions[excess:]...)
	}
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
