package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ChatWallet/internal/contact"
	"ChatWallet/internal/engine"
	xerrors "ChatWallet/internal/errors"
	"ChatWallet/internal/events"
	"ChatWallet/internal/ledger"
	"ChatWallet/internal/observability/metrics"
	"ChatWallet/internal/record"
	"ChatWallet/internal/transfer"
	"ChatWallet/pkg/logger"
)

const maxHistory = transfer.DefaultHistoryLimit

// Airdropper requests faucet funds.
type Airdropper interface {
	Airdrop(ctx context.Context, conversationID string) (ledger.Receipt, error)
}

// EventFeed lists recently published side-effect events, oldest first.
type EventFeed interface {
	Recent() []events.Event
}

// Server exposes the engine and wallet over HTTP.
type Server struct {
	addr          string
	engine        *engine.Engine
	wallet        ledger.Service
	records       record.Store
	airdropper    Airdropper
	chain         string
	metricsPath   string
	feed          EventFeed
	shutdownGrace time.Duration
}

// Option customises a Server.
type Option func(*Server)

// WithMetricsPath mounts the Prometheus handler at path.
func WithMetricsPath(path string) Option {
	return func(s *Server) {
		s.metricsPath = path
	}
}

// WithShutdownGrace bounds graceful shutdown.
func WithShutdownGrace(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownGrace = d
		}
	}
}

// WithEventFeed serves feed at GET /api/events.
func WithEventFeed(feed EventFeed) Option {
	return func(s *Server) {
		s.feed = feed
	}
}

// WithChainName labels wallet responses with the configured chain.
func WithChainName(name string) Option {
	return func(s *Server) {
		s.chain = name
	}
}

// NewServer creates a Server.
func NewServer(addr string, eng *engine.Engine, wallet ledger.Service, records record.Store, airdropper Airdropper, opts ...Option) *Server {
	s := &Server{
		addr:          addr,
		engine:        eng,
		wallet:        wallet,
		records:       records,
		airdropper:    airdropper,
		shutdownGrace: 5 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler returns the routed handler with request logging and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/wallet", s.handleWallet)
	mux.HandleFunc("POST /api/airdrop", s.handleAirdrop)
	mux.HandleFunc("GET /api/contacts", s.handleListContacts)
	mux.HandleFunc("POST /api/contacts", s.handleCreateContact)
	mux.HandleFunc("DELETE /api/contacts/{id}", s.handleDeleteContact)
	mux.HandleFunc("GET /api/transactions", s.handleTransactions)
	if s.feed != nil {
		mux.HandleFunc("GET /api/events", s.handleEvents)
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metricsPath != "" {
		mux.Handle("GET "+s.metricsPath, metrics.Handler())
	}
	return instrument(mux)
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.L().Info("http server listening", slog.String("address", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownGrace)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	MessageID      string `json:"message_id,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.ConversationID) == "" {
		writeError(w, r, xerrors.New(xerrors.CodeInvalidArgument, "conversation_id is required"))
		return
	}
	reply, err := s.engine.HandleMessage(r.Context(), req.ConversationID, req.MessageID, req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

type walletResponse struct {
	Address string          `json:"address"`
	Balance decimal.Decimal `json:"balance"`
	Symbol  string          `json:"symbol"`
	Chain   string          `json:"chain,omitempty"`
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	balance, err := s.wallet.Balance(r.Context())
	if err != nil {
		writeError(w, r, xerrors.Wrap(xerrors.CodeUnknown, err, "fetch balance", xerrors.WithAlert(false)))
		return
	}
	writeJSON(w, http.StatusOK, walletResponse{
		Address: s.wallet.Address(),
		Balance: balance,
		Symbol:  s.wallet.Symbol(),
		Chain:   s.chain,
	})
}

type airdropRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
}

type airdropResponse struct {
	Text   string             `json:"text"`
	Action *engine.SideEffect `json:"action"`
}

func (s *Server) handleAirdrop(w http.ResponseWriter, r *http.Request) {
	var req airdropRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	receipt, err := s.airdropper.Airdrop(r.Context(), req.ConversationID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, airdropResponse{
		Text:   "Airdrop received: " + receipt.Amount.String() + " " + s.wallet.Symbol() + " 🪂",
		Action: &engine.SideEffect{Kind: receipt.Kind, Amount: receipt.Amount, ReceiptID: receipt.ID},
	})
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.records.Contacts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if contacts == nil {
		contacts = []record.Contact{}
	}
	writeJSON(w, http.StatusOK, contacts)
}

type contactRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (s *Server) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	address := strings.TrimSpace(req.Address)
	if address != "" && !s.wallet.IsValidAddress(address) {
		writeError(w, r, xerrors.New(transfer.CodeInvalidRecipient, ""))
		return
	}
	created, err := s.records.AddContact(r.Context(), record.Contact{Name: req.Name, Address: address})
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.Audit().Info("contact added",
		slog.String("contact_id", created.ID),
		slog.String("name", created.Name),
		slog.String("address", created.Address))
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.records.DeleteContact(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	logger.Audit().Info("contact deleted", slog.String("contact_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	txs, err := s.records.Transactions(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []record.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// handleEvents returns recent side effects newest first, optionally only
// those after the event id given in ?after.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	recent := s.feed.Recent()
	after := r.URL.Query().Get("after")
	out := make([]events.Event, 0, min(limit, len(recent)))
	for i := len(recent) - 1; i >= 0 && len(out) < limit; i-- {
		if after != "" && recent[i].ID == after {
			break
		}
		out = append(out, recent[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// parseLimit reads ?limit, capped at maxHistory. It writes the error
// response itself.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return maxHistory, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		writeError(w, r, xerrors.New(xerrors.CodeInvalidArgument, "limit must be a positive integer"))
		return 0, false
	}
	return min(parsed, maxHistory), true
}

func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "malformed request body")
	}
	return nil
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps error codes onto HTTP statuses.
func statusFor(code xerrors.Code) int {
	switch code {
	case xerrors.CodeInvalidArgument, transfer.CodeInvalidRecipient:
		return http.StatusBadRequest
	case xerrors.CodeNotFound, contact.CodeAddressNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict:
		return http.StatusConflict
	case transfer.CodeAirdropFailed, xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable
	case transfer.CodeTransferFailed:
		return http.StatusBadGateway
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := xerrors.CodeOf(err)
	status := statusFor(code)
	message := xerrors.AttributesOf(code).Message
	if coded, ok := xerrors.From(err); ok && status < 500 {
		message = coded.Message()
	}
	if status >= 500 && xerrors.RetryableError(err) {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	log := logger.FromContext(r.Context())
	if status >= 500 {
		log.Error("request failed", slog.Any("error", err), slog.String("code", string(code)))
	} else {
		log.Info("request rejected", slog.String("error", err.Error()), slog.String("code", string(code)))
	}
	writeJSON(w, status, errorResponse{
		Error:     string(code),
		Message:   message,
		RequestID: w.Header().Get(requestIDHeader),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

const (
	requestIDHeader   = "X-Request-ID"
	retryAfterSeconds = "30"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument tags each request with an id and records its outcome.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		reqLogger := logger.Named("api").With(slog.String("request_id", requestID))
		r = r.WithContext(logger.WithContext(r.Context(), reqLogger))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(route, r.Method, rec.status, time.Since(started))
	})
}

// withContext rejects new requests once the root context is done.
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
