package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChatWallet/internal/engine"
	"ChatWallet/internal/ledger/ledgertest"
	"ChatWallet/internal/record"
	"ChatWallet/internal/session"
	"ChatWallet/internal/transfer"
)

func newTestApp(t *testing.T) (*app, *ledgertest.Ledger) {
	t.Helper()
	wallet := ledgertest.New("2")
	records := record.NewMemoryStore()
	sessions := session.NewMemoryStore(time.Minute)
	transfers := transfer.New(wallet, records)
	return &app{
		wallet:    wallet,
		records:   records,
		sessions:  sessions,
		transfers: transfers,
		engine:    engine.New(wallet, records, sessions, transfers),
	}, wallet
}

func TestChatLoop(t *testing.T) {
	color.NoColor = true
	a, wallet := newTestApp(t)

	in := strings.NewReader("balance\n\n/airdrop\nwhat is my balance\n/quit\nbalance\n")
	var out bytes.Buffer
	require.NoError(t, chatLoop(t.Context(), a, "cli-test", in, &out))

	text := out.String()
	assert.Contains(t, text, "Your current balance is 2.0000 SOL.")
	assert.Contains(t, text, "Airdropped 1 SOL")
	assert.Contains(t, text, "Your current balance is 3.0000 SOL.")
	assert.Equal(t, 2, strings.Count(text, "Your current balance"), "input after /quit is ignored")
	assert.Equal(t, 1, wallet.AirdropCalls())
}

func TestChatLoopConfirmation(t *testing.T) {
	color.NoColor = true
	a, wallet := newTestApp(t)

	in := strings.NewReader("send 0.5 sol to 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin\nyes\n")
	var out bytes.Buffer
	require.NoError(t, chatLoop(t.Context(), a, "cli-test", in, &out))

	text := out.String()
	assert.Contains(t, text, "(yes/no)")
	assert.Contains(t, text, "Processing transaction")
	assert.Contains(t, text, "Transaction Sent!")
	assert.Equal(t, 1, wallet.TransferCalls())
}

func TestLoadConfigPrefersFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wallet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  address: \":9999\"\n"), 0o600))

	cfgFile = path
	t.Cleanup(func() { cfgFile = "" })
	t.Setenv(configEnv, filepath.Join(dir, "missing.json"))

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Address)
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(configEnv, "")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Storage.Records.Driver)
}
