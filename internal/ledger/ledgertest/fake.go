// Package ledgertest provides an in-memory ledger.Service for tests.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// WalletAddress is the fake wallet's own address.
const WalletAddress = "FakeWa11etAddressXXXXXXXXXXXXXXXXXXXXXXXXXX"

var addressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// ErrInsufficientFunds is returned when a transfer exceeds the balance.
var ErrInsufficientFunds = errors.New("insufficient funds for transfer")

// Ledger is a ledger.Service backed by a balance in memory. Hooks let tests
// block or fail individual calls.
type Ledger struct {
	mu      sync.Mutex
	balance decimal.Decimal
	sent    []Transfer

	transfers atomic.Int32
	airdrops  atomic.Int32
	seq       atomic.Int64

	// BeforeTransfer runs before each transfer; a non-nil error fails it.
	BeforeTransfer func(ctx context.Context) error
	// AirdropErr fails every airdrop when set.
	AirdropErr error
}

// Transfer is one successful fake transfer.
type Transfer struct {
	Signature string
	Recipient string
	Amount    decimal.Decimal
}

// New returns a Ledger holding balance.
func New(balance string) *Ledger {
	return &Ledger{balance: decimal.RequireFromString(balance)}
}

func (l *Ledger) Balance(context.Context) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance, nil
}

func (l *Ledger) Address() string { return WalletAddress }

func (l *Ledger) Airdrop(context.Context) (string, error) {
	l.airdrops.Add(1)
	if l.AirdropErr != nil {
		return "", l.AirdropErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance = l.balance.Add(l.AirdropAmount())
	return l.signature(), nil
}

func (l *Ledger) AirdropAmount() decimal.Decimal { return decimal.NewFromInt(1) }

func (l *Ledger) Transfer(ctx context.Context, address string, amount decimal.Decimal) (string, error) {
	l.transfers.Add(1)
	if l.BeforeTransfer != nil {
		if err := l.BeforeTransfer(ctx); err != nil {
			return "", err
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount.GreaterThan(l.balance) {
		return "", ErrInsufficientFunds
	}
	l.balance = l.balance.Sub(amount)
	sig := l.signature()
	l.sent = append(l.sent, Transfer{Signature: sig, Recipient: address, Amount: amount})
	return sig, nil
}

func (l *Ledger) IsValidAddress(address string) bool {
	return addressPattern.MatchString(address)
}

func (l *Ledger) Symbol() string { return "SOL" }

func (l *Ledger) Close() {}

// TransferCalls counts Transfer invocations, failed ones included.
func (l *Ledger) TransferCalls() int { return int(l.transfers.Load()) }

// AirdropCalls counts Airdrop invocations.
func (l *Ledger) AirdropCalls() int { return int(l.airdrops.Load()) }

// Sent returns the successful transfers in order.
func (l *Ledger) Sent() []Transfer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Transfer(nil), l.sent...)
}

func (l *Ledger) signature() string {
	return fmt.Sprintf("sig%05d%s", l.seq.Add(1), strings.Repeat("x", 80))
}
