// Package contact turns contact names used in chat into wallet addresses.
package contact

import (
	"context"
	"errors"
	"strings"

	xerrors "ChatWallet/internal/errors"
	"ChatWallet/internal/intent"
	"ChatWallet/internal/record"
)

// CodeAddressNotFound marks a name that matches no contact.
const CodeAddressNotFound xerrors.Code = "ADDRESS_NOT_FOUND"

func init() {
	xerrors.Register(CodeAddressNotFound, xerrors.Attributes{
		Message:  "contact not found",
		Severity: xerrors.SeverityInfo,
	})
}

// AddressValidator is the part of the ledger the resolver needs.
type AddressValidator interface {
	IsValidAddress(address string) bool
}

// Resolver maps names to addresses through the contact book.
type Resolver struct {
	contacts  record.Store
	validator AddressValidator
}

// NewResolver creates a Resolver.
func NewResolver(contacts record.Store, validator AddressValidator) *Resolver {
	return &Resolver{contacts: contacts, validator: validator}
}

// Resolve returns nameOrAddress unchanged when it is already a valid
// address, otherwise the address of the contact with that name.
func (r *Resolver) Resolve(ctx context.Context, nameOrAddress string) (string, error) {
	candidate := strings.TrimSpace(nameOrAddress)
	if r.validator.IsValidAddress(candidate) {
		return candidate, nil
	}
	found, err := r.contacts.FindContact(ctx, candidate)
	if err != nil {
		if errors.Is(err, record.ErrContactNotFound) {
			return "", xerrors.Wrap(CodeAddressNotFound, err, "",
				xerrors.WithMetadata("name", candidate))
		}
		return "", err
	}
	return found.Address, nil
}

// Rewrite substitutes the address of a named recipient into a transfer
// command so the intent parser sees an address. Text that is not a
// name-style transfer, or whose name matches no contact, is returned as is
// with a nil contact.
func (r *Resolver) Rewrite(ctx context.Context, text string) (string, *record.Contact, error) {
	start, end, ok := intent.NamedRecipient(text)
	if !ok {
		return text, nil, nil
	}
	found, err := r.contacts.FindContact(ctx, text[start:end])
	if errors.Is(err, record.ErrContactNotFound) {
		return text, nil, nil
	}
	if err != nil {
		return text, nil, err
	}
	return text[:start] + found.Address + text[end:], &found, nil
}
