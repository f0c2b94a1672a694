// Package chatwallet is a Go client for the chatwalletd HTTP API. Messaging
// bridges use it to forward user messages and deliver the replies.
package chatwallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultHTTPTimeout covers a full confirmed transfer, which may wait on the
// network for up to a minute.
const DefaultHTTPTimeout = 90 * time.Second

// Client wraps the HTTP interactions with chatwalletd.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Message is one inbound chat message. MessageID lets the server drop
// redeliveries.
type Message struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	MessageID      string `json:"message_id,omitempty"`
}

// SideEffect describes a balance change caused by a reply.
type SideEffect struct {
	Kind      string          `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	ReceiptID string          `json:"receipt_id"`
}

// Reply is the wallet's answer. Notices are sent before Text; an empty reply
// means the bot stays silent.
type Reply struct {
	Text      string      `json:"text"`
	Notices   []string    `json:"notices,omitempty"`
	Action    *SideEffect `json:"action,omitempty"`
	Duplicate bool        `json:"duplicate,omitempty"`
}

// Silent reports whether there is nothing to deliver.
func (r Reply) Silent() bool { return r.Text == "" && len(r.Notices) == 0 }

// Wallet is the custodial wallet summary.
type Wallet struct {
	Address string          `json:"address"`
	Balance decimal.Decimal `json:"balance"`
	Symbol  string          `json:"symbol"`
	Chain   string          `json:"chain,omitempty"`
}

// Contact is a saved name for an address.
type Contact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// Transaction is one entry of the wallet history.
type Transaction struct {
	Signature string          `json:"signature"`
	Kind      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Recipient string          `json:"recipient,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// AirdropResult is returned by Airdrop.
type AirdropResult struct {
	Text   string      `json:"text"`
	Action *SideEffect `json:"action"`
}

// APIError represents a rejected or failed request.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("chatwallet api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("chatwallet api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient creates a client for the API at rawURL. A nil httpClient gets
// DefaultHTTPTimeout.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Send forwards a chat message and returns the reply.
func (c *Client) Send(ctx context.Context, msg Message) (Reply, error) {
	var reply Reply
	if err := c.do(ctx, http.MethodPost, "/api/chat", nil, msg, &reply); err != nil {
		return Reply{}, err
	}
	return reply, nil
}

// Wallet fetches the address and live balance.
func (c *Client) Wallet(ctx context.Context) (Wallet, error) {
	var wallet Wallet
	if err := c.do(ctx, http.MethodGet, "/api/wallet", nil, nil, &wallet); err != nil {
		return Wallet{}, err
	}
	return wallet, nil
}

// Airdrop requests faucet funds on behalf of conversationID, which may be
// empty.
func (c *Client) Airdrop(ctx context.Context, conversationID string) (AirdropResult, error) {
	var result AirdropResult
	body := map[string]string{"conversation_id": conversationID}
	if err := c.do(ctx, http.MethodPost, "/api/airdrop", nil, body, &result); err != nil {
		return AirdropResult{}, err
	}
	return result, nil
}

// Contacts lists saved contacts.
func (c *Client) Contacts(ctx context.Context) ([]Contact, error) {
	var contacts []Contact
	if err := c.do(ctx, http.MethodGet, "/api/contacts", nil, nil, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// AddContact saves name for address.
func (c *Client) AddContact(ctx context.Context, name, address string) (Contact, error) {
	var created Contact
	body := map[string]string{"name": name, "address": address}
	if err := c.do(ctx, http.MethodPost, "/api/contacts", nil, body, &created); err != nil {
		return Contact{}, err
	}
	return created, nil
}

// DeleteContact removes the contact with the given id.
func (c *Client) DeleteContact(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/contacts/"+url.PathEscape(id), nil, nil, nil)
}

// Transactions returns up to limit history entries, newest first. A
// non-positive limit uses the server default.
func (c *Client) Transactions(ctx context.Context, limit int) ([]Transaction, error) {
	var query url.Values
	if limit > 0 {
		query = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var txs []Transaction
	if err := c.do(ctx, http.MethodGet, "/api/transactions", query, nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	u := c.baseURL.JoinPath(path.Clean(endpoint))
	u.RawQuery = query.Encode()
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
