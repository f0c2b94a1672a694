// Package provider builds ledger backends from chain definitions.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ChatWallet/internal/config"
	"ChatWallet/internal/ledger"
	"ChatWallet/internal/ledger/evm"
	"ChatWallet/internal/ledger/solana"
)

// SecretResolver turns key references into key material.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Registry keeps one ledger.Service per configured chain. Backends are built
// on first use so an unused chain never needs its secrets.
type Registry struct {
	defaultChain string
	override     string
	defs         map[string]ChainDefinition
	secrets      SecretResolver

	mu       sync.Mutex
	services map[string]ledger.Service
}

// NewRegistry loads chain definitions and builds the default backend.
func NewRegistry(ctx context.Context, cfg config.LedgerConfig, secrets SecretResolver) (*Registry, error) {
	if secrets == nil {
		return nil, errors.New("provider: secret resolver must not be nil")
	}
	defs, err := LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}
	if len(defs.Chains) == 0 {
		return nil, errors.New("provider: no chains configured")
	}

	defaultChain := strings.TrimSpace(cfg.DefaultChain)
	if _, ok := defs.Chains[defaultChain]; !ok {
		// devnet is only the built-in default; any other name must exist.
		if defaultChain != "" && defaultChain != "devnet" {
			return nil, fmt.Errorf("provider: default chain %s is not defined", defaultChain)
		}
		defaultChain = sortedNames(defs.Chains)[0]
	}

	r := &Registry{
		defaultChain: defaultChain,
		override:     strings.TrimSpace(cfg.Secret),
		defs:         defs.Chains,
		secrets:      secrets,
		services:     make(map[string]ledger.Service),
	}
	if _, err := r.Service(ctx, defaultChain); err != nil {
		return nil, err
	}
	return r, nil
}

// Default returns the backend for the default chain.
func (r *Registry) Default(ctx context.Context) (ledger.Service, error) {
	if r == nil {
		return nil, errors.New("provider: registry not initialised")
	}
	return r.Service(ctx, r.defaultChain)
}

// DefaultChain returns the default chain name.
func (r *Registry) DefaultChain() string { return r.defaultChain }

// Service returns the backend named name, building it on first access.
func (r *Registry) Service(ctx context.Context, name string) (ledger.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if svc, ok := r.services[name]; ok {
		return svc, nil
	}
	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("provider: chain %s is not defined", name)
	}
	svc, err := r.build(ctx, name, def)
	if err != nil {
		return nil, fmt.Errorf("provider: init chain %s: %w", name, err)
	}
	r.services[name] = svc
	return svc, nil
}

func (r *Registry) build(ctx context.Context, name string, def ChainDefinition) (ledger.Service, error) {
	keyRef := def.PrivateKey
	if name == r.defaultChain && r.override != "" {
		keyRef = r.override
	}
	key, err := r.secrets.Resolve(ctx, keyRef)
	if err != nil {
		return nil, err
	}
	airdrop := decimal.Zero
	if s := strings.TrimSpace(def.AirdropAmount); s != "" {
		airdrop, err = decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("airdrop_amount: %w", err)
		}
	}
	poll := parseDuration(def.ConfirmPoll)
	timeout := parseDuration(def.ConfirmTimeout)

	switch strings.ToLower(strings.TrimSpace(def.Type)) {
	case "", "solana":
		return solana.NewClient(solana.Config{
			Name:           name,
			RPCURL:         def.RPCURL,
			PrivateKey:     key,
			AirdropSOL:     airdrop,
			ConfirmPoll:    poll,
			ConfirmTimeout: timeout,
		})
	case "evm":
		faucet, err := r.secrets.Resolve(ctx, def.FaucetKey)
		if err != nil {
			return nil, err
		}
		return evm.NewClient(ctx, evm.Config{
			Name:           name,
			RPCURL:         def.RPCURL,
			Symbol:         def.Symbol,
			PrivateKey:     key,
			FaucetKey:      faucet,
			AirdropAmount:  airdrop,
			ConfirmPoll:    poll,
			ConfirmTimeout: timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported chain type %s", def.Type)
	}
}

// Chains returns the configured chain names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	return sortedNames(r.defs)
}

// Close releases every backend built so far.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, svc := range r.services {
		svc.Close()
		delete(r.services, name)
	}
}

func sortedNames(defs map[string]ChainDefinition) []string {
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseDuration(value string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return d
}
