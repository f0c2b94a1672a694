package evm

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind/backends"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChatWallet/internal/ledger"
)

var oneEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func newSimulatedWallet(t *testing.T, withFaucet bool) (*Client, *backends.SimulatedBackend) {
	t.Helper()

	walletKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	faucetKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	alloc := core.GenesisAlloc{
		crypto.PubkeyToAddress(walletKey.PublicKey): {Balance: new(big.Int).Mul(oneEther, big.NewInt(2))},
		crypto.PubkeyToAddress(faucetKey.PublicKey): {Balance: new(big.Int).Mul(oneEther, big.NewInt(10))},
	}
	backend := backends.NewSimulatedBackend(alloc, 8_000_000)
	t.Cleanup(func() { _ = backend.Close() })

	cfg := Config{
		Name:           "simulated",
		PrivateKey:     hex.EncodeToString(crypto.FromECDSA(walletKey)),
		AirdropAmount:  decimal.NewFromInt(1),
		ConfirmPoll:    10 * time.Millisecond,
		ConfirmTimeout: 5 * time.Second,
	}
	if withFaucet {
		cfg.FaucetKey = "0x" + hex.EncodeToString(crypto.FromECDSA(faucetKey))
	}
	client, err := NewBackendClient(cfg, backend)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client, backend
}

func TestTransferMovesValue(t *testing.T) {
	ctx := context.Background()
	client, backend := newSimulatedWallet(t, false)

	recipientKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	recipient := crypto.PubkeyToAddress(recipientKey.PublicKey)

	hash, err := client.Transfer(ctx, recipient.Hex(), decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	assert.True(t, len(hash) == 66, hash)

	got, err := backend.BalanceAt(ctx, recipient, nil)
	require.NoError(t, err)
	want := new(big.Int).Div(oneEther, big.NewInt(2))
	assert.Equal(t, 0, got.Cmp(want), got.String())

	balance, err := client.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, balance.LessThan(decimal.RequireFromString("1.5")), balance.String())
	assert.True(t, balance.GreaterThan(decimal.RequireFromString("1.4")), balance.String())
}

func TestTransferRejectsInvalidRecipient(t *testing.T) {
	client, _ := newSimulatedWallet(t, false)

	_, err := client.Transfer(context.Background(), "0xnothex", decimal.NewFromInt(1))
	require.Error(t, err)
	assert.False(t, client.IsValidAddress("4Nd1mYQzvG6dGcT9dQvWcZ"))
	assert.True(t, client.IsValidAddress(client.Address()))
}

func TestTransferBeyondBalanceFails(t *testing.T) {
	client, _ := newSimulatedWallet(t, false)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	_, err := client.Transfer(context.Background(), recipient.Hex(), decimal.NewFromInt(50))
	require.Error(t, err)
}

func TestAirdropUsesFaucet(t *testing.T) {
	ctx := context.Background()
	client, _ := newSimulatedWallet(t, true)

	before, err := client.Balance(ctx)
	require.NoError(t, err)

	_, err = client.Airdrop(ctx)
	require.NoError(t, err)

	after, err := client.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, after.Sub(before).Equal(decimal.NewFromInt(1)), after.Sub(before).String())
}

func TestAirdropWithoutFaucet(t *testing.T) {
	client, _ := newSimulatedWallet(t, false)

	_, err := client.Airdrop(context.Background())
	assert.True(t, errors.Is(err, ledger.ErrAirdropUnsupported))
	assert.Equal(t, "ETH", client.Symbol())
}
