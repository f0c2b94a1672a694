package solana

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"ChatWallet/internal/ledger"
)

const (
	decimals             int32 = 9
	defaultConfirmPoll         = 500 * time.Millisecond
	defaultConfirmWindow       = 60 * time.Second
)

// rpcAPI is the subset of *rpc.Client the wallet uses.
type rpcAPI interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, commitment rpc.CommitmentType) (solana.Signature, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	Close() error
}

// Config describes a Solana cluster endpoint and the wallet key.
type Config struct {
	Name string
	// RPCURL defaults to the public devnet endpoint.
	RPCURL string
	// PrivateKey is a base58 secret key. An empty key generates a fresh
	// wallet that lives for the process lifetime.
	PrivateKey string
	// AirdropSOL is the faucet request size, 1 SOL when zero.
	AirdropSOL     decimal.Decimal
	ConfirmPoll    time.Duration
	ConfirmTimeout time.Duration
}

// Client implements ledger.Service against a Solana cluster.
type Client struct {
	name          string
	rpc           rpcAPI
	key           solana.PrivateKey
	airdrop       decimal.Decimal
	confirmPoll   time.Duration
	confirmWindow time.Duration
	closeOnce     sync.Once
}

// NewClient dials the configured cluster.
func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.RPCURL)
	if endpoint == "" {
		endpoint = rpc.DevNet_RPC
	}
	return newClient(cfg, rpc.New(endpoint))
}

func newClient(cfg Config, api rpcAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("solana: rpc client must not be nil")
	}
	key, err := loadKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	airdrop := cfg.AirdropSOL
	if !airdrop.IsPositive() {
		airdrop = decimal.NewFromInt(1)
	}
	poll := cfg.ConfirmPoll
	if poll <= 0 {
		poll = defaultConfirmPoll
	}
	window := cfg.ConfirmTimeout
	if window <= 0 {
		window = defaultConfirmWindow
	}
	return &Client{
		name:          cfg.Name,
		rpc:           api,
		key:           key,
		airdrop:       airdrop,
		confirmPoll:   poll,
		confirmWindow: window,
	}, nil
}

func loadKey(secret string) (solana.PrivateKey, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		key, err := solana.NewRandomPrivateKey()
		if err != nil {
			return nil, fmt.Errorf("solana: generate wallet key: %w", err)
		}
		return key, nil
	}
	key, err := solana.PrivateKeyFromBase58(secret)
	if err != nil {
		return nil, fmt.Errorf("solana: decode wallet key: %w", err)
	}
	return key, nil
}

// Address returns the wallet public key in base58.
func (c *Client) Address() string {
	return c.key.PublicKey().String()
}

// Symbol implements ledger.Service.
func (c *Client) Symbol() string { return "SOL" }

// AirdropAmount implements ledger.Service.
func (c *Client) AirdropAmount() decimal.Decimal { return c.airdrop }

// IsValidAddress accepts any base58 string that decodes to a 32-byte key.
func (c *Client) IsValidAddress(address string) bool {
	_, err := solana.PublicKeyFromBase58(strings.TrimSpace(address))
	return err == nil
}

// Balance returns the confirmed balance in SOL.
func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	out, err := c.rpc.GetBalance(ctx, c.key.PublicKey(), rpc.CommitmentConfirmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return ledger.FromBaseUnits(new(big.Int).SetUint64(out.Value), decimals), nil
}

// Airdrop requests faucet funds and waits for confirmation.
func (c *Client) Airdrop(ctx context.Context) (string, error) {
	lamports, err := ledger.ToBaseUnits(c.airdrop, decimals)
	if err != nil {
		return "", err
	}
	sig, err := c.rpc.RequestAirdrop(ctx, c.key.PublicKey(), lamports.Uint64(), rpc.CommitmentConfirmed)
	if err != nil {
		return "", fmt.Errorf("request airdrop: %w", err)
	}
	if err := c.awaitConfirmation(ctx, sig); err != nil {
		return "", err
	}
	return sig.String(), nil
}

// Transfer builds, signs and submits a system transfer, then waits until the
// cluster reports it confirmed.
func (c *Client) Transfer(ctx context.Context, address string, amount decimal.Decimal) (string, error) {
	to, err := solana.PublicKeyFromBase58(strings.TrimSpace(address))
	if err != nil {
		return "", fmt.Errorf("invalid recipient %q: %w", address, err)
	}
	lamports, err := ledger.ToBaseUnits(amount, decimals)
	if err != nil {
		return "", err
	}
	if !lamports.IsUint64() {
		return "", fmt.Errorf("amount %s exceeds the lamport range", amount.String())
	}

	recent, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("get latest blockhash: %w", err)
	}

	from := c.key.PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports.Uint64(), from, to).Build(),
		},
		recent.Value.Blockhash,
		solana.TransactionPayer(from),
	)
	if err != nil {
		return "", fmt.Errorf("build transfer: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(from) {
			return &c.key
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("sign transfer: %w", err)
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", fmt.Errorf("send transfer: %w", err)
	}
	if err := c.awaitConfirmation(ctx, sig); err != nil {
		return "", err
	}
	return sig.String(), nil
}

func (c *Client) awaitConfirmation(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmWindow)
	defer cancel()

	ticker := time.NewTicker(c.confirmPoll)
	defer ticker.Stop()

	// RPC errors are retried until the window closes: the transaction may
	// still land after a failed status query.
	var lastErr error
	for {
		out, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
		if err != nil {
			lastErr = err
		} else if out != nil && len(out.Value) > 0 && out.Value[0] != nil {
			status := out.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction %s failed: %v", sig.String(), status.Err)
			}
			switch status.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("transaction %s not confirmed: %w (last status query: %v)", sig.String(), ctx.Err(), lastErr)
			}
			return fmt.Errorf("transaction %s not confirmed: %w", sig.String(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.rpc.Close()
	})
}

var _ ledger.Service = (*Client)(nil)
