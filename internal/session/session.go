// Package session holds per-conversation confirmation state. A conversation
// is idle when it has no pending command and awaiting confirmation when it
// has exactly one.
package session

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PendingCommand is a send that waits for an explicit yes or no.
type PendingCommand struct {
	Amount decimal.Decimal `json:"amount"`
	// Recipient is always a resolved address.
	Recipient string `json:"recipient"`
	// Label is what the user typed when it differs from Recipient, such as a
	// contact name.
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store keeps at most one pending command per conversation. Expired commands
// are reported as absent.
type Store interface {
	GetPending(ctx context.Context, conversationID string) (*PendingCommand, error)
	SetPending(ctx context.Context, conversationID string, cmd PendingCommand) error
	ClearPending(ctx context.Context, conversationID string) error
	// TakePending removes and returns the pending command in one step. When
	// several callers race for the same conversation only one gets it.
	TakePending(ctx context.Context, conversationID string) (*PendingCommand, error)
	Close() error
}
