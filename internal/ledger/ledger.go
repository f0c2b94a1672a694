// Package ledger defines the value-transfer contract the conversation engine
// drives, plus the unit conversions shared by the chain backends. Concrete
// implementations live in the solana and evm subpackages; provider builds
// the configured one.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a ledger movement as seen from the custodial wallet.
type Kind string

const (
	KindSent     Kind = "sent"
	KindReceived Kind = "received"
	KindAirdrop  Kind = "airdrop"
)

// ErrAirdropUnsupported is returned by backends without a faucet.
var ErrAirdropUnsupported = errors.New("airdrop is not supported on this network")

// Service is the custodial wallet as the engine sees it. Implementations
// enforce their own network timeouts; callers never add one.
type Service interface {
	// Balance returns the wallet balance in whole units (SOL, ETH).
	Balance(ctx context.Context) (decimal.Decimal, error)
	// Address returns the wallet's public address.
	Address() string
	// Airdrop requests faucet funds and returns the receipt id.
	Airdrop(ctx context.Context) (string, error)
	// AirdropAmount is the amount a successful Airdrop credits.
	AirdropAmount() decimal.Decimal
	// Transfer sends amount to address and returns the receipt id once the
	// network reports the transfer as confirmed.
	Transfer(ctx context.Context, address string, amount decimal.Decimal) (string, error)
	// IsValidAddress reports whether address is acceptable as a recipient.
	IsValidAddress(address string) bool
	// Symbol is the unit shown to users.
	Symbol() string
	Close()
}

// ToBaseUnits converts a whole-unit amount into the chain's smallest unit
// (lamports, wei). It rejects non-positive amounts and amounts with more
// fractional digits than the chain can represent.
func ToBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive, got %s", amount.String())
	}
	scaled := amount.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount.String(), decimals)
	}
	return scaled.BigInt(), nil
}

// FromBaseUnits converts a smallest-unit value back into whole units.
func FromBaseUnits(value *big.Int, decimals int32) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -decimals)
}

// Receipt describes a completed balance-affecting action.
type Receipt struct {
	ID        string          `json:"receipt_id"`
	Kind      Kind            `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Recipient string          `json:"recipient,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
