// Package events fans balance-affecting side effects out to other systems
// (dashboards, notifiers) so they can refresh without polling the wallet.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ChatWallet/internal/ledger"
)

// Event is one published side effect.
type Event struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Kind           ledger.Kind     `json:"kind"`
	Amount         decimal.Decimal `json:"amount"`
	ReceiptID      string          `json:"receipt_id"`
	Recipient      string          `json:"recipient,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// FromReceipt builds an Event for receipt with a fresh id.
func FromReceipt(conversationID string, receipt ledger.Receipt) Event {
	occurred := receipt.Timestamp
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return Event{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Kind:           receipt.Kind,
		Amount:         receipt.Amount,
		ReceiptID:      receipt.ID,
		Recipient:      receipt.Recipient,
		OccurredAt:     occurred,
	}
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events. Publish failures never undo the side effect;
// callers log them.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// MemoryPublisher keeps the most recent events in process. The HTTP API
// serves them to dashboards.
type MemoryPublisher struct {
	mu       sync.Mutex
	recent   []Event
	capacity int
	closed   bool
}

// NewMemoryPublisher creates a publisher retaining up to capacity events.
func NewMemoryPublisher(capacity int) *MemoryPublisher {
	if capacity <= 0 {
		capacity = 100
	}
	return &MemoryPublisher{capacity: capacity}
}

// Publish implements Publisher.
func (m *MemoryPublisher) Publish(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.recent = append(m.recent, event)
	if len(m.recent) > m.capacity {
		m.recent = m.recent[len(m.recent)-m.capacity:]
	}
	return nil
}

// Recent returns retained events, oldest first.
func (m *MemoryPublisher) Recent() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.recent...)
}

// Close implements Publisher. Retained events stay readable.
func (m *MemoryPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
