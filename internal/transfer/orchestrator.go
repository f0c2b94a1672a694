// Package transfer executes balance-affecting actions against the ledger
// and records them. A receipt is only ever produced by the ledger; nothing
// is recorded for a failed attempt.
package transfer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"ChatWallet/internal/events"
	xerrors "ChatWallet/internal/errors"
	"ChatWallet/internal/ledger"
	"ChatWallet/internal/observability/alerting"
	"ChatWallet/internal/observability/metrics"
	"ChatWallet/internal/record"
	"ChatWallet/pkg/logger"
)

const (
	CodeTransferFailed   xerrors.Code = "TRANSFER_FAILED"
	CodeAirdropFailed    xerrors.Code = "AIRDROP_FAILED"
	CodeInvalidRecipient xerrors.Code = "INVALID_RECIPIENT"
)

// DefaultHistoryLimit is how many transactions are kept after each write.
const DefaultHistoryLimit = 50

func init() {
	xerrors.Register(CodeTransferFailed, xerrors.Attributes{
		Message:  "transfer failed",
		Severity: xerrors.SeverityWarning,
		Alert:    true,
	})
	xerrors.Register(CodeAirdropFailed, xerrors.Attributes{
		Message:   "airdrop failed, the network may be busy",
		Severity:  xerrors.SeverityInfo,
		Retryable: true,
	})
	xerrors.Register(CodeInvalidRecipient, xerrors.Attributes{
		Message:  "invalid recipient address",
		Severity: xerrors.SeverityInfo,
	})
}

// Orchestrator runs transfers and airdrops. Transfers from the wallet are
// serialised so concurrent conversations never race on the nonce or the
// balance.
type Orchestrator struct {
	ledger       ledger.Service
	records      record.Store
	publisher    events.Publisher
	alerter      alerting.Dispatcher
	historyLimit int
	now          func() time.Time
	logger       *slog.Logger
	spend        chan struct{}
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithPublisher forwards every receipt as an event.
func WithPublisher(publisher events.Publisher) Option {
	return func(o *Orchestrator) {
		o.publisher = publisher
	}
}

// WithAlertDispatcher reports failures to operators.
func WithAlertDispatcher(dispatcher alerting.Dispatcher) Option {
	return func(o *Orchestrator) {
		o.alerter = dispatcher
	}
}

// WithHistoryLimit overrides how many transactions are retained.
func WithHistoryLimit(limit int) Option {
	return func(o *Orchestrator) {
		if limit > 0 {
			o.historyLimit = limit
		}
	}
}

// WithClock overrides the receipt timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the application logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// New creates an Orchestrator.
func New(service ledger.Service, records record.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		ledger:       service,
		records:      records,
		historyLimit: DefaultHistoryLimit,
		now:          func() time.Time { return time.Now().UTC() },
		spend:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.logger == nil {
		o.logger = logger.Named("transfer")
	}
	return o
}

// Execute sends amount to recipient and returns the ledger receipt. Every
// failure is returned as TRANSFER_FAILED wrapping the ledger's reason.
func (o *Orchestrator) Execute(ctx context.Context, conversationID, recipient string, amount decimal.Decimal) (ledger.Receipt, error) {
	if !o.ledger.IsValidAddress(recipient) {
		err := xerrors.Wrap(CodeTransferFailed, xerrors.New(CodeInvalidRecipient, ""), "",
			xerrors.WithAlert(false))
		o.reportFailure(ctx, conversationID, "validate", ledger.KindSent, err, 0)
		return ledger.Receipt{}, err
	}
	if !amount.IsPositive() {
		err := xerrors.Wrap(CodeTransferFailed, xerrors.New(xerrors.CodeInvalidArgument, "amount must be positive"), "",
			xerrors.WithAlert(false))
		o.reportFailure(ctx, conversationID, "validate", ledger.KindSent, err, 0)
		return ledger.Receipt{}, err
	}

	select {
	case o.spend <- struct{}{}:
	case <-ctx.Done():
		err := xerrors.Wrap(CodeTransferFailed, ctx.Err(), "", xerrors.WithAlert(false))
		o.reportFailure(ctx, conversationID, "wait", ledger.KindSent, err, 0)
		return ledger.Receipt{}, err
	}
	defer func() { <-o.spend }()

	started := time.Now()
	signature, err := o.ledger.Transfer(ctx, recipient, amount)
	elapsed := time.Since(started)
	if err != nil {
		wrapped := xerrors.Wrap(CodeTransferFailed, err, "",
			xerrors.WithMetadata("recipient", recipient),
			xerrors.WithMetadata("amount", amount.String()))
		o.reportFailure(ctx, conversationID, "transfer", ledger.KindSent, wrapped, elapsed)
		return ledger.Receipt{}, wrapped
	}

	receipt := ledger.Receipt{
		ID:        signature,
		Kind:      ledger.KindSent,
		Amount:    amount,
		Recipient: recipient,
		Timestamp: o.now(),
	}
	o.complete(ctx, conversationID, receipt, elapsed)
	return receipt, nil
}

// Airdrop requests faucet funds for the wallet. Failures are returned as
// AIRDROP_FAILED; a network without a faucet is not worth retrying.
func (o *Orchestrator) Airdrop(ctx context.Context, conversationID string) (ledger.Receipt, error) {
	started := time.Now()
	signature, err := o.ledger.Airdrop(ctx)
	elapsed := time.Since(started)
	if err != nil {
		var opts []xerrors.Option
		if errors.Is(err, ledger.ErrAirdropUnsupported) {
			opts = append(opts, xerrors.WithRetryable(false))
		}
		wrapped := xerrors.Wrap(CodeAirdropFailed, err, "", opts...)
		o.reportFailure(ctx, conversationID, "airdrop", ledger.KindAirdrop, wrapped, elapsed)
		return ledger.Receipt{}, wrapped
	}
	receipt := ledger.Receipt{
		ID:        signature,
		Kind:      ledger.KindAirdrop,
		Amount:    o.ledger.AirdropAmount(),
		Timestamp: o.now(),
	}
	o.complete(ctx, conversationID, receipt, elapsed)
	return receipt, nil
}

// complete records, audits and publishes a successful receipt. The ledger
// action already happened, so none of these steps can fail it.
func (o *Orchestrator) complete(ctx context.Context, conversationID string, receipt ledger.Receipt, elapsed time.Duration) {
	ctx = context.WithoutCancel(ctx)
	metrics.ObserveSideEffect(string(receipt.Kind), "success", elapsed)

	if err := o.record(ctx, receipt); err != nil {
		o.logger.Error("record transaction",
			slog.Any("error", err),
			slog.String("receipt_id", receipt.ID))
		o.alert(ctx, alerting.FromError(conversationID, "record", err))
	}

	logger.Audit().Info("side effect completed",
		slog.String("conversation_id", conversationID),
		slog.String("kind", string(receipt.Kind)),
		slog.String("amount", receipt.Amount.String()),
		slog.String("recipient", receipt.Recipient),
		slog.String("receipt_id", receipt.ID),
		slog.String("symbol", o.ledger.Symbol()),
	)

	if o.publisher != nil {
		if err := o.publisher.Publish(ctx, events.FromReceipt(conversationID, receipt)); err != nil {
			o.logger.Warn("publish side effect",
				slog.Any("error", err),
				slog.String("receipt_id", receipt.ID))
		}
	}
}

func (o *Orchestrator) record(ctx context.Context, receipt ledger.Receipt) error {
	tx := record.Transaction{
		Signature: receipt.ID,
		Kind:      receipt.Kind,
		Amount:    receipt.Amount,
		Timestamp: receipt.Timestamp,
		Recipient: receipt.Recipient,
	}
	if err := o.records.AddTransaction(ctx, tx); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "append transaction",
			xerrors.WithMetadata("receipt_id", receipt.ID))
	}
	if err := o.records.TrimTransactions(ctx, o.historyLimit); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "trim transactions")
	}
	return nil
}

func (o *Orchestrator) reportFailure(ctx context.Context, conversationID, stage string, kind ledger.Kind, err error, elapsed time.Duration) {
	metrics.ObserveSideEffect(string(kind), "failure", elapsed)
	logger.Audit().Warn("side effect failed",
		slog.String("conversation_id", conversationID),
		slog.String("kind", string(kind)),
		slog.String("stage", stage),
		slog.String("error_code", string(xerrors.CodeOf(err))),
		slog.String("error", err.Error()),
	)
	if xerrors.ShouldAlert(err) {
		o.alert(context.WithoutCancel(ctx), alerting.FromError(conversationID, stage, err))
	}
}

func (o *Orchestrator) alert(ctx context.Context, event alerting.Event) {
	if o.alerter == nil {
		return
	}
	if err := o.alerter.Notify(ctx, event); err != nil {
		o.logger.Error("alert notification failed",
			slog.Any("error", err),
			slog.String("code", string(event.Code)))
	}
}
