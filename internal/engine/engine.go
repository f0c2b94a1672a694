// Package engine is the conversational state machine. Each conversation is
// either idle or awaiting a yes/no answer for exactly one pending send;
// messages for the same conversation are handled strictly one at a time in
// arrival order while different conversations proceed in parallel.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ChatWallet/internal/contact"
	"ChatWallet/internal/dedupe"
	xerrors "ChatWallet/internal/errors"
	"ChatWallet/internal/intent"
	"ChatWallet/internal/ledger"
	"ChatWallet/internal/observability/metrics"
	"ChatWallet/internal/record"
	"ChatWallet/internal/session"
	"ChatWallet/pkg/logger"
)

// CodeSessionLost marks a confirmation that arrived after its pending
// command was gone. It is logged, never shown.
const CodeSessionLost xerrors.Code = "SESSION_LOST"

func init() {
	xerrors.Register(CodeSessionLost, xerrors.Attributes{
		Message:  "no pending command for confirmation",
		Severity: xerrors.SeverityInfo,
	})
}

const (
	stateIdle     = "idle"
	stateAwaiting = "awaiting_confirmation"
)

// SideEffect describes a balance-affecting action a reply caused, so
// callers can refresh cached balances and histories.
type SideEffect struct {
	Kind      ledger.Kind     `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	ReceiptID string          `json:"receipt_id"`
}

// Reply is the engine's answer to one message. An empty Text means the bot
// stays silent.
type Reply struct {
	Text string `json:"text"`
	// Notices are interim messages to deliver before Text.
	Notices []string    `json:"notices,omitempty"`
	Action  *SideEffect `json:"action,omitempty"`
	// Duplicate is set when the message was already handled.
	Duplicate bool `json:"duplicate,omitempty"`
}

// Silent reports whether there is nothing to send back.
func (r Reply) Silent() bool {
	return r.Text == "" && len(r.Notices) == 0
}

// Transferrer executes confirmed sends.
type Transferrer interface {
	Execute(ctx context.Context, conversationID, recipient string, amount decimal.Decimal) (ledger.Receipt, error)
}

// Engine routes chat messages through the confirmation state machine.
type Engine struct {
	wallet       ledger.Service
	records      record.Store
	sessions     session.Store
	transfers    Transferrer
	contacts     *contact.Resolver
	locker       *session.Locker
	seen         *dedupe.Cache
	historyReply int
	now          func() time.Time
	logger       *slog.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithDedupe drops messages whose id was already handled.
func WithDedupe(cache *dedupe.Cache) Option {
	return func(e *Engine) {
		e.seen = cache
	}
}

// WithHistoryReply sets how many transactions the history reply lists.
func WithHistoryReply(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.historyReply = n
		}
	}
}

// WithClock overrides the time source for pending commands.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the application logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine.
func New(wallet ledger.Service, records record.Store, sessions session.Store, transfers Transferrer, opts ...Option) *Engine {
	e := &Engine{
		wallet:       wallet,
		records:      records,
		sessions:     sessions,
		transfers:    transfers,
		contacts:     contact.NewResolver(records, wallet),
		locker:       session.NewLocker(),
		historyReply: 5,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.logger == nil {
		e.logger = logger.Named("engine")
	}
	return e
}

// HandleMessage is Handle for transports that redeliver: a messageID seen
// within the dedupe window yields a silent duplicate reply. An empty
// messageID is always handled.
func (e *Engine) HandleMessage(ctx context.Context, conversationID, messageID, text string) (Reply, error) {
	key := ""
	if messageID != "" {
		key = conversationID + "/" + messageID
	}
	if e.seen != nil && e.seen.Seen(key) {
		e.logger.Debug("duplicate message dropped",
			slog.String("conversation_id", conversationID),
			slog.String("message_id", messageID))
		return Reply{Duplicate: true}, nil
	}
	reply, err := e.Handle(ctx, conversationID, text)
	if err != nil && e.seen != nil && key != "" {
		e.seen.Forget(key)
	}
	return reply, err
}

// Handle processes one message. User-level failures become reply text; an
// error is only returned when the conversation state cannot be read or
// written.
func (e *Engine) Handle(ctx context.Context, conversationID, text string) (Reply, error) {
	if strings.TrimSpace(conversationID) == "" {
		return Reply{}, xerrors.New(xerrors.CodeInvalidArgument, "conversation id is required")
	}
	unlock, err := e.locker.Lock(ctx, conversationID)
	if err != nil {
		return Reply{}, xerrors.Wrap(xerrors.CodeTimeout, err, "wait for conversation")
	}
	defer unlock()

	pending, err := e.sessions.GetPending(ctx, conversationID)
	if err != nil {
		return Reply{}, err
	}
	if pending != nil {
		return e.handleAwaiting(ctx, conversationID, *pending, intent.Parse(text))
	}
	return e.handleIdle(ctx, conversationID, text)
}

func (e *Engine) handleIdle(ctx context.Context, conversationID, text string) (Reply, error) {
	rewritten, named, err := e.contacts.Rewrite(ctx, text)
	if err != nil {
		return Reply{}, err
	}
	in := intent.ParseResolved(text, rewritten)
	metrics.ObserveIntent(string(in.Kind), stateIdle)

	switch in.Kind {
	case intent.KindSend:
		return e.proposeSend(ctx, conversationID, in, named)
	case intent.KindBalance:
		balance, err := e.wallet.Balance(ctx)
		if err != nil {
			e.logger.Warn("balance query failed", slog.Any("error", err))
			return Reply{Text: balanceFailedReply(xerrors.Reason(err))}, nil
		}
		return Reply{Text: balanceReply(balance, e.wallet.Symbol())}, nil
	case intent.KindAddress:
		return Reply{Text: addressReply(e.wallet.Address())}, nil
	case intent.KindHelp:
		return Reply{Text: helpReply(e.wallet.Symbol())}, nil
	case intent.KindHistory:
		txs, err := e.records.Transactions(ctx, e.historyReply)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Text: historyReply(txs, e.wallet.Symbol())}, nil
	case intent.KindConfirmYes, intent.KindConfirmNo:
		e.logger.Debug("confirmation without pending command",
			slog.String("conversation_id", conversationID),
			slog.String("code", string(CodeSessionLost)))
		return Reply{}, nil
	default:
		return Reply{}, nil
	}
}

func (e *Engine) proposeSend(ctx context.Context, conversationID string, in intent.Intent, named *record.Contact) (Reply, error) {
	if !e.wallet.IsValidAddress(in.Recipient) {
		if in.Named {
			return Reply{Text: contactNotFoundReply(in.Recipient)}, nil
		}
		return Reply{Text: invalidRecipientReply(in.Recipient)}, nil
	}
	cmd := session.PendingCommand{
		Amount:    in.Amount,
		Recipient: in.Recipient,
		CreatedAt: e.now(),
	}
	if named != nil {
		cmd.Label = named.Name
	}
	if err := e.sessions.SetPending(ctx, conversationID, cmd); err != nil {
		return Reply{}, err
	}
	logger.Audit().Info("send proposed",
		slog.String("conversation_id", conversationID),
		slog.String("amount", cmd.Amount.String()),
		slog.String("recipient", cmd.Recipient),
		slog.String("label", cmd.Label),
	)
	return Reply{Text: confirmPrompt(cmd.Amount, e.wallet.Symbol(), cmd.Recipient)}, nil
}

func (e *Engine) handleAwaiting(ctx context.Context, conversationID string, cmd session.PendingCommand, in intent.Intent) (Reply, error) {
	metrics.ObserveIntent(string(in.Kind), stateAwaiting)

	switch in.Kind {
	case intent.KindConfirmYes:
		// Claim first: a pending command executes at most once, even when
		// replicas share the session store.
		claimed, err := e.claim(ctx, conversationID)
		if err != nil || claimed == nil {
			return Reply{}, err
		}
		cmd = *claimed
		logger.Audit().Info("send confirmed",
			slog.String("conversation_id", conversationID),
			slog.String("amount", cmd.Amount.String()),
			slog.String("recipient", cmd.Recipient))

		reply := Reply{Notices: []string{processingNotice}}
		receipt, err := e.transfers.Execute(ctx, conversationID, cmd.Recipient, cmd.Amount)
		if err != nil {
			reply.Text = failedReply(failureReason(err))
			return reply, nil
		}
		reply.Text = sentReply(receipt.ID)
		reply.Action = &SideEffect{Kind: receipt.Kind, Amount: receipt.Amount, ReceiptID: receipt.ID}
		return reply, nil
	case intent.KindConfirmNo:
		claimed, err := e.claim(ctx, conversationID)
		if err != nil || claimed == nil {
			return Reply{}, err
		}
		cmd = *claimed
		logger.Audit().Info("send cancelled",
			slog.String("conversation_id", conversationID),
			slog.String("amount", cmd.Amount.String()),
			slog.String("recipient", cmd.Recipient))
		return Reply{Text: cancelledReply}, nil
	default:
		return Reply{Text: pendingReminder}, nil
	}
}

// claim takes the pending command for this caller. A nil command means
// another handler answered it first, which is treated like a lost session.
func (e *Engine) claim(ctx context.Context, conversationID string) (*session.PendingCommand, error) {
	cmd, err := e.sessions.TakePending(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if cmd == nil {
		e.logger.Info("pending command already answered",
			slog.String("conversation_id", conversationID),
			slog.String("code", string(CodeSessionLost)))
	}
	return cmd, nil
}

func failureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "the network did not confirm the transaction in time"
	}
	return xerrors.Reason(err)
}
