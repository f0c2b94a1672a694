// Package record persists the wallet's contact book and transaction
// history. The conversation engine only appends transactions and reads the
// most recent ones; trimming to the history cap is the caller's job.
package record

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	xerrors "ChatWallet/internal/errors"
	"ChatWallet/internal/ledger"
)

// Contact maps a human readable name to an address.
type Contact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Transaction is one balance-affecting movement.
type Transaction struct {
	Signature string          `json:"signature"`
	Kind      ledger.Kind     `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
	Recipient string          `json:"recipient,omitempty"`
}

var (
	// ErrContactNotFound is returned when no contact matches.
	ErrContactNotFound = xerrors.New(xerrors.CodeNotFound, "contact not found")
	// ErrContactExists is returned when a name is already taken.
	ErrContactExists = xerrors.New(xerrors.CodeConflict, "a contact with this name already exists")
)

// Store is the persistence contract for contacts and transaction history.
type Store interface {
	Contacts(ctx context.Context) ([]Contact, error)
	// AddContact assigns an id when empty. Names are unique ignoring case.
	AddContact(ctx context.Context, contact Contact) (Contact, error)
	DeleteContact(ctx context.Context, id string) error
	// FindContact matches name exactly, ignoring case and surrounding space.
	FindContact(ctx context.Context, name string) (Contact, error)
	// Transactions returns the newest records first; limit <= 0 returns all.
	Transactions(ctx context.Context, limit int) ([]Transaction, error)
	AddTransaction(ctx context.Context, tx Transaction) error
	// TrimTransactions keeps only the newest keep records.
	TrimTransactions(ctx context.Context, keep int) error
	Close() error
}

// NameKey is the normalised form used for case-insensitive name matching.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func validateContact(contact Contact) (Contact, error) {
	contact.Name = strings.TrimSpace(contact.Name)
	contact.Address = strings.TrimSpace(contact.Address)
	if contact.Name == "" {
		return Contact{}, xerrors.New(xerrors.CodeInvalidArgument, "contact name is required")
	}
	if contact.Address == "" {
		return Contact{}, xerrors.New(xerrors.CodeInvalidArgument, "contact address is required")
	}
	return contact, nil
}

func validateTransaction(tx Transaction) error {
	if strings.TrimSpace(tx.Signature) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "transaction signature is required")
	}
	if !tx.Amount.IsPositive() {
		return xerrors.New(xerrors.CodeInvalidArgument, "transaction amount must be positive")
	}
	return nil
}
