package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	gsolana "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChatWallet/internal/config"
	"ChatWallet/internal/secrets"
)

const chainsYAML = `
chains:
  devnet:
    type: solana
    rpc_url: http://127.0.0.1:8899
    private_key: env:CHATWALLET_TEST_SOLANA_KEY
    airdrop_amount: "2"
    confirm_timeout: 30s
  anvil:
    type: evm
    rpc_url: http://127.0.0.1:8545
    symbol: ETH
    private_key: env:CHATWALLET_TEST_EVM_KEY
`

func writeChains(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chains.yaml")
	require.NoError(t, os.WriteFile(path, []byte(chainsYAML), 0o600))
	return path
}

func TestRegistryBuildsDefaultChain(t *testing.T) {
	wallet := gsolana.NewWallet()
	t.Setenv("CHATWALLET_TEST_SOLANA_KEY", wallet.PrivateKey.String())

	reg, err := NewRegistry(context.Background(), config.LedgerConfig{
		ChainConfig:  writeChains(t),
		DefaultChain: "devnet",
	}, secrets.NewResolver())
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	svc, err := reg.Default(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SOL", svc.Symbol())
	assert.Equal(t, wallet.PublicKey().String(), svc.Address())
	assert.Equal(t, "2", svc.AirdropAmount().String())
	assert.Equal(t, []string{"anvil", "devnet"}, reg.Chains())
}

func TestRegistryBuildsOtherChainsLazily(t *testing.T) {
	t.Setenv("CHATWALLET_TEST_SOLANA_KEY", gsolana.NewWallet().PrivateKey.String())

	reg, err := NewRegistry(context.Background(), config.LedgerConfig{
		ChainConfig:  writeChains(t),
		DefaultChain: "devnet",
	}, secrets.NewResolver())
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	// the evm key variable is unset, so building anvil must fail only now
	_, err = reg.Service(context.Background(), "anvil")
	require.Error(t, err)

	t.Setenv("CHATWALLET_TEST_EVM_KEY", "")
	svc, err := reg.Service(context.Background(), "anvil")
	require.NoError(t, err)
	assert.Equal(t, "ETH", svc.Symbol())
	assert.True(t, svc.IsValidAddress(svc.Address()))

	again, err := reg.Service(context.Background(), "anvil")
	require.NoError(t, err)
	assert.Same(t, svc, again)
}

func TestRegistryDefaultChainValidation(t *testing.T) {
	_, err := NewRegistry(context.Background(), config.LedgerConfig{
		ChainConfig:  writeChains(t),
		DefaultChain: "mainnet",
	}, secrets.NewResolver())
	require.Error(t, err)

	_, err = NewRegistry(context.Background(), config.LedgerConfig{}, nil)
	require.Error(t, err)
}

func TestRegistryWithoutChainFileUsesDevnet(t *testing.T) {
	reg, err := NewRegistry(context.Background(), config.LedgerConfig{}, secrets.NewResolver())
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	assert.Equal(t, "devnet", reg.DefaultChain())
	svc, err := reg.Default(context.Background())
	require.NoError(t, err)
	assert.True(t, svc.IsValidAddress(svc.Address()))
}
