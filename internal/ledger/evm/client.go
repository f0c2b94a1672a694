package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"

	"ChatWallet/internal/ledger"
)

const (
	decimals             int32 = 18
	transferGas                = uint64(21_000)
	defaultConfirmPoll         = time.Second
	defaultConfirmWindow       = 2 * time.Minute
)

// Config describes how to construct an EVM wallet backend.
type Config struct {
	Name   string
	RPCURL string
	// Symbol defaults to ETH.
	Symbol     string
	PrivateKey string
	// FaucetKey funds Airdrop. Without one the backend reports
	// ledger.ErrAirdropUnsupported.
	FaucetKey      string
	AirdropAmount  decimal.Decimal
	ConfirmPoll    time.Duration
	ConfirmTimeout time.Duration
}

// chainAPI is the subset of *ethclient.Client used for value transfers.
type chainAPI interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *coretypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
}

// committer is implemented by simulated backends that mine on demand.
type committer interface {
	Commit() common.Hash
}

// Client implements ledger.Service for EVM compatible chains.
type Client struct {
	name          string
	symbol        string
	backend       chainAPI
	rpcClient     *gethrpc.Client
	key           *ecdsa.PrivateKey
	faucet        *ecdsa.PrivateKey
	airdrop       decimal.Decimal
	confirmPoll   time.Duration
	confirmWindow time.Duration

	mu      sync.Mutex
	chainID *big.Int
}

// NewClient dials the configured RPC endpoint.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("evm: rpc url is required")
	}
	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", rpcURL, err)
	}
	client, err := newClient(cfg, ethclient.NewClient(rpcClient))
	if err != nil {
		rpcClient.Close()
		return nil, err
	}
	client.rpcClient = rpcClient
	return client, nil
}

// NewBackendClient wraps an already constructed backend, such as a
// simulated chain.
func NewBackendClient(cfg Config, backend chainAPI) (*Client, error) {
	return newClient(cfg, backend)
}

func newClient(cfg Config, backend chainAPI) (*Client, error) {
	if backend == nil {
		return nil, errors.New("evm: backend must not be nil")
	}
	key, err := loadKey(cfg.PrivateKey, true)
	if err != nil {
		return nil, fmt.Errorf("evm: wallet key: %w", err)
	}
	faucet, err := loadKey(cfg.FaucetKey, false)
	if err != nil {
		return nil, fmt.Errorf("evm: faucet key: %w", err)
	}

	symbol := strings.TrimSpace(cfg.Symbol)
	if symbol == "" {
		symbol = "ETH"
	}
	airdrop := cfg.AirdropAmount
	if !airdrop.IsPositive() {
		airdrop = decimal.RequireFromString("0.1")
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
		symbol:        symbol,
		backend:       backend,
		key:           key,
		faucet:        faucet,
		airdrop:       airdrop,
		confirmPoll:   poll,
		confirmWindow: window,
	}, nil
}

func loadKey(hexKey string, generate bool) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		if !generate {
			return nil, nil
		}
		return crypto.GenerateKey()
	}
	return crypto.HexToECDSA(hexKey)
}

// Address returns the checksummed wallet address.
func (c *Client) Address() string {
	return crypto.PubkeyToAddress(c.key.PublicKey).Hex()
}

// Symbol implements ledger.Service.
func (c *Client) Symbol() string { return c.symbol }

// AirdropAmount implements ledger.Service.
func (c *Client) AirdropAmount() decimal.Decimal { return c.airdrop }

// IsValidAddress accepts 0x-prefixed hex addresses.
func (c *Client) IsValidAddress(address string) bool {
	return common.IsHexAddress(strings.TrimSpace(address))
}

// Balance returns the latest balance in whole units.
func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	wei, err := c.backend.BalanceAt(ctx, crypto.PubkeyToAddress(c.key.PublicKey), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return ledger.FromBaseUnits(wei, decimals), nil
}

// Transfer signs a plain value transfer and waits for a successful receipt.
func (c *Client) Transfer(ctx context.Context, address string, amount decimal.Decimal) (string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("invalid recipient %q", address)
	}
	return c.send(ctx, c.key, common.HexToAddress(address), amount)
}

// Airdrop moves AirdropAmount from the faucet account into the wallet.
func (c *Client) Airdrop(ctx context.Context) (string, error) {
	if c.faucet == nil {
		return "", ledger.ErrAirdropUnsupported
	}
	return c.send(ctx, c.faucet, crypto.PubkeyToAddress(c.key.PublicKey), c.airdrop)
}

func (c *Client) send(ctx context.Context, from *ecdsa.PrivateKey, to common.Address, amount decimal.Decimal) (string, error) {
	wei, err := ledger.ToBaseUnits(amount, decimals)
	if err != nil {
		return "", err
	}
	chainID, err := c.resolveChainID(ctx)
	if err != nil {
		return "", err
	}
	sender := crypto.PubkeyToAddress(from.PublicKey)
	nonce, err := c.backend.PendingNonceAt(ctx, sender)
	if err != nil {
		return "", fmt.Errorf("get nonce: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	tx := coretypes.NewTransaction(nonce, to, wei, transferGas, gasPrice, nil)
	signed, err := coretypes.SignTx(tx, coretypes.LatestSignerForChainID(chainID), from)
	if err != nil {
		return "", fmt.Errorf("sign transfer: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send transfer: %w", err)
	}
	if sim, ok := c.backend.(committer); ok {
		sim.Commit()
	}
	if err := c.awaitReceipt(ctx, signed.Hash()); err != nil {
		return "", err
	}
	return signed.Hash().Hex(), nil
}

func (c *Client) resolveChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	c.chainID = id
	return id, nil
}

func (c *Client) awaitReceipt(ctx context.Context, hash common.Hash) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmWindow)
	defer cancel()

	ticker := time.NewTicker(c.confirmPoll)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != coretypes.ReceiptStatusSuccessful {
				return fmt.Errorf("transaction %s reverted", hash.Hex())
			}
			return nil
		case errors.Is(err, gethcore.NotFound), ctx.Err() != nil:
		default:
			return fmt.Errorf("get receipt: %w", err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction %s not confirmed: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close releases the RPC connection when the client owns one.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

var _ ledger.Service = (*Client)(nil)
