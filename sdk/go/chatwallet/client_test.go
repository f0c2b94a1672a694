package chatwallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ChatWallet/internal/api"
	"ChatWallet/internal/dedupe"
	"ChatWallet/internal/engine"
	"ChatWallet/internal/ledger/ledgertest"
	"ChatWallet/internal/record"
	"ChatWallet/internal/session"
	"ChatWallet/internal/transfer"
)

const recipient = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"

func newWalletServer(t *testing.T) (*Client, *ledgertest.Ledger) {
	t.Helper()
	wallet := ledgertest.New("5")
	records := record.NewMemoryStore()
	sessions := session.NewMemoryStore(time.Minute)
	transfers := transfer.New(wallet, records)
	seen := dedupe.New(time.Minute, 100)
	t.Cleanup(seen.Close)
	eng := engine.New(wallet, records, sessions, transfers, engine.WithDedupe(seen))

	srv := httptest.NewServer(api.NewServer("", eng, wallet, records, transfers).Handler())
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, wallet
}

func TestSendConfirmedTransfer(t *testing.T) {
	client, wallet := newWalletServer(t)
	ctx := context.Background()

	if _, err := client.AddContact(ctx, "Alice", recipient); err != nil {
		t.Fatalf("add contact: %v", err)
	}

	prompt, err := client.Send(ctx, Message{ConversationID: "c1", Message: "send 1 to alice", MessageID: "m1"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if prompt.Action != nil || prompt.Silent() {
		t.Fatalf("expected a confirmation prompt, got %+v", prompt)
	}

	done, err := client.Send(ctx, Message{ConversationID: "c1", Message: "yes", MessageID: "m2"})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if done.Action == nil || done.Action.Kind != "sent" || !done.Action.Amount.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected a sent side effect, got %+v", done.Action)
	}
	if len(done.Notices) != 1 {
		t.Fatalf("expected one processing notice, got %v", done.Notices)
	}

	again, err := client.Send(ctx, Message{ConversationID: "c1", Message: "yes", MessageID: "m2"})
	if err != nil {
		t.Fatalf("redeliver: %v", err)
	}
	if !again.Duplicate || !again.Silent() {
		t.Fatalf("redelivered confirmation should be a silent duplicate, got %+v", again)
	}
	if got := wallet.TransferCalls(); got != 1 {
		t.Fatalf("expected one transfer, got %d", got)
	}

	txs, err := client.Transactions(ctx, 10)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txs) != 1 || txs[0].Kind != "sent" || txs[0].Recipient != recipient {
		t.Fatalf("unexpected history: %+v", txs)
	}

	info, err := client.Wallet(ctx)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if info.Balance.String() != "4" || info.Address != ledgertest.WalletAddress {
		t.Fatalf("unexpected wallet: %+v", info)
	}
}

func TestContactLifecycle(t *testing.T) {
	client, _ := newWalletServer(t)
	ctx := context.Background()

	created, err := client.AddContact(ctx, "Bob", recipient)
	if err != nil {
		t.Fatalf("add contact: %v", err)
	}
	if _, err := client.AddContact(ctx, "bob", recipient); err == nil {
		t.Fatal("expected duplicate name to be rejected")
	}

	contacts, err := client.Contacts(ctx)
	if err != nil {
		t.Fatalf("contacts: %v", err)
	}
	if len(contacts) != 1 || contacts[0].ID != created.ID {
		t.Fatalf("unexpected contacts: %+v", contacts)
	}

	if err := client.DeleteContact(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	err = client.DeleteContact(ctx, created.ID)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestAirdrop(t *testing.T) {
	client, wallet := newWalletServer(t)

	result, err := client.Airdrop(context.Background(), "c9")
	if err != nil {
		t.Fatalf("airdrop: %v", err)
	}
	if result.Action == nil || result.Action.Kind != "airdrop" || result.Action.ReceiptID == "" {
		t.Fatalf("unexpected airdrop result: %+v", result)
	}
	if got := wallet.AirdropCalls(); got != 1 {
		t.Fatalf("expected one airdrop, got %d", got)
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/transactions" || r.URL.Query().Get("limit") != "3" {
			t.Errorf("unexpected request: %s", r.URL)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":      "STORAGE_FAILURE",
			"message":    "storage unavailable",
			"request_id": "req-1",
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Transactions(context.Background(), 3)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != "STORAGE_FAILURE" || apiErr.RequestID != "req-1" || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}
