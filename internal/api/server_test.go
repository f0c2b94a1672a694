package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ChatWallet/internal/engine"
	"ChatWallet/internal/events"
	"ChatWallet/internal/ledger"
	"ChatWallet/internal/ledger/ledgertest"
	"ChatWallet/internal/record"
	"ChatWallet/internal/session"
	"ChatWallet/internal/transfer"
)

const aliceAddress = "4Nd1mYWH1V7ZcpQ6GjzWZVRKpF4pS8zhMSRQ3jQaTq5x"

func newTestServer(t *testing.T) (http.Handler, *ledgertest.Ledger, *record.MemoryStore) {
	t.Helper()
	fake := ledgertest.New("10")
	records := record.NewMemoryStore()
	orchestrator := transfer.New(fake, records)
	eng := engine.New(fake, records, session.NewMemoryStore(time.Minute), orchestrator)
	server := NewServer(":0", eng, fake, records, orchestrator, WithMetricsPath("/metrics"), WithChainName("devnet"))
	return server.Handler(), fake, records
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestChatConfirmationFlow(t *testing.T) {
	h, fake, _ := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/chat", `{"conversation_id":"c1","message":"send 0.5 to `+aliceAddress+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusOK)
	}
	prompt := decode[engine.Reply](t, rec)
	if !strings.HasPrefix(prompt.Text, "Are you sure you want to send 0.5 SOL to 4Nd1mY...") {
		t.Fatalf("unexpected prompt: %q", prompt.Text)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected a request id header")
	}

	rec = do(t, h, http.MethodPost, "/api/chat", `{"conversation_id":"c1","message":"yes","message_id":"m2"}`)
	done := decode[engine.Reply](t, rec)
	if done.Action == nil || done.Action.Kind != "sent" {
		t.Fatalf("expected a sent side effect, got %+v", done)
	}
	if fake.TransferCalls() != 1 {
		t.Fatalf("expected one transfer, got %d", fake.TransferCalls())
	}
}

func TestChatSilentUnknown(t *testing.T) {
	h, _, _ := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/api/chat", `{"conversation_id":"c1","message":"lunch at noon?"}`)
	reply := decode[engine.Reply](t, rec)
	if rec.Code != http.StatusOK || reply.Text != "" || reply.Action != nil {
		t.Fatalf("expected a silent reply, got %d %+v", rec.Code, reply)
	}
}

func TestChatRejectsBadRequests(t *testing.T) {
	h, _, _ := newTestServer(t)
	cases := map[string]string{
		"malformed":       `{"conversation_id":`,
		"unknown field":   `{"conversation_id":"c1","text":"hi"}`,
		"no conversation": `{"message":"balance"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/chat", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
			if got := decode[errorResponse](t, rec); got.Error != "INVALID_ARGUMENT" {
				t.Fatalf("unexpected error code %q", got.Error)
			}
		})
	}

	rec := do(t, h, http.MethodGet, "/api/chat", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestWalletAndAirdrop(t *testing.T) {
	h, fake, records := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/wallet", "")
	wallet := decode[walletResponse](t, rec)
	if wallet.Address != ledgertest.WalletAddress || wallet.Symbol != "SOL" || wallet.Chain != "devnet" {
		t.Fatalf("unexpected wallet: %+v", wallet)
	}
	if wallet.Balance.String() != "10" {
		t.Fatalf("unexpected balance %s", wallet.Balance)
	}

	rec = do(t, h, http.MethodPost, "/api/airdrop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", rec.Code, rec.Body.String())
	}
	drop := decode[airdropResponse](t, rec)
	if drop.Action == nil || drop.Action.Kind != "airdrop" {
		t.Fatalf("expected airdrop side effect, got %+v", drop)
	}
	txs, _ := records.Transactions(t.Context(), 0)
	if len(txs) != 1 {
		t.Fatalf("expected the airdrop to be recorded, got %d records", len(txs))
	}

	fake.AirdropErr = errors.New("rate limited")
	rec = do(t, h, http.MethodPost, "/api/airdrop", `{"conversation_id":"c1"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
	if got := decode[errorResponse](t, rec); got.Error != string(transfer.CodeAirdropFailed) {
		t.Fatalf("unexpected error code %q", got.Error)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected a retry hint for a rate limited faucet")
	}

	fake.AirdropErr = ledger.ErrAirdropUnsupported
	rec = do(t, h, http.MethodPost, "/api/airdrop", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "" {
		t.Fatalf("unexpected retry hint %q for a network without a faucet", got)
	}
}

func TestContactsLifecycle(t *testing.T) {
	h, _, _ := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/contacts", `{"name":"Alice","address":"`+aliceAddress+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d %s", rec.Code, rec.Body.String())
	}
	created := decode[record.Contact](t, rec)
	if created.ID == "" {
		t.Fatalf("expected an id to be assigned")
	}

	if rec := do(t, h, http.MethodPost, "/api/contacts", `{"name":"alice","address":"`+aliceAddress+`"}`); rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/contacts", `{"name":"Bob","address":"0OO"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/contacts", `{"name":"","address":"`+aliceAddress+`"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}

	list := decode[[]record.Contact](t, do(t, h, http.MethodGet, "/api/contacts", ""))
	if len(list) != 1 || list[0].Name != "Alice" {
		t.Fatalf("unexpected contacts: %+v", list)
	}

	rec = do(t, h, http.MethodPost, "/api/chat", `{"conversation_id":"c1","message":"send 1 to Alice"}`)
	if reply := decode[engine.Reply](t, rec); !strings.Contains(reply.Text, "4Nd1mY...") {
		t.Fatalf("expected the prompt to show the resolved address, got %q", reply.Text)
	}

	if rec := do(t, h, http.MethodDelete, "/api/contacts/"+created.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/contacts/"+created.ID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestTransactionsLimit(t *testing.T) {
	h, _, records := newTestServer(t)
	for i := 0; i < 3; i++ {
		do(t, h, http.MethodPost, "/api/airdrop", "")
	}

	txs := decode[[]record.Transaction](t, do(t, h, http.MethodGet, "/api/transactions?limit=2", ""))
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	all, _ := records.Transactions(t.Context(), 0)
	if txs[0].Signature != all[0].Signature {
		t.Fatalf("expected newest first")
	}

	if rec := do(t, h, http.MethodGet, "/api/transactions?limit=zero", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h, _, _ := newTestServer(t)
	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), `chatwallet_http_requests_total{code="200",handler="GET /healthz",method="GET"}`) {
		t.Fatalf("expected the health check to be counted, got:\n%s", rec.Body.String())
	}
}

func TestEventsFeed(t *testing.T) {
	fake := ledgertest.New("10")
	records := record.NewMemoryStore()
	feed := events.NewMemoryPublisher(10)
	orchestrator := transfer.New(fake, records, transfer.WithPublisher(feed))
	eng := engine.New(fake, records, session.NewMemoryStore(time.Minute), orchestrator)
	h := NewServer(":0", eng, fake, records, orchestrator, WithEventFeed(feed)).Handler()

	do(t, h, http.MethodPost, "/api/airdrop", `{"conversation_id":"c1"}`)
	do(t, h, http.MethodPost, "/api/chat", `{"conversation_id":"c1","message":"send 0.5 to `+aliceAddress+`"}`)
	do(t, h, http.MethodPost, "/api/chat", `{"conversation_id":"c1","message":"yes"}`)

	rec := do(t, h, http.MethodGet, "/api/events", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusOK)
	}
	got := decode[[]events.Event](t, rec)
	if len(got) != 2 {
		t.Fatalf("expected two events, got %+v", got)
	}
	if got[0].Kind != ledger.KindSent || got[0].Recipient != aliceAddress || got[1].Kind != ledger.KindAirdrop {
		t.Fatalf("expected newest first, got %+v", got)
	}

	rec = do(t, h, http.MethodGet, "/api/events?after="+got[1].ID, "")
	if after := decode[[]events.Event](t, rec); len(after) != 1 || after[0].ID != got[0].ID {
		t.Fatalf("expected only the event after the airdrop, got %+v", after)
	}

	rec = do(t, h, http.MethodGet, "/api/events?limit=0", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status for bad limit: got %d", rec.Code)
	}
}

func TestEventsFeedNotMountedWithoutPublisher(t *testing.T) {
	h, _, _ := newTestServer(t)
	if rec := do(t, h, http.MethodGet, "/api/events", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusNotFound)
	}
}
