package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"ChatWallet/internal/config"
	"ChatWallet/internal/dedupe"
	"ChatWallet/internal/engine"
	"ChatWallet/internal/events"
	"ChatWallet/internal/ledger"
	"ChatWallet/internal/ledger/provider"
	"ChatWallet/internal/observability/alerting"
	"ChatWallet/internal/record"
	"ChatWallet/internal/secrets"
	"ChatWallet/internal/session"
	"ChatWallet/internal/transfer"
	"ChatWallet/pkg/logger"
)

// app holds every long-lived component built from the configuration.
type app struct {
	cfg       *config.Config
	registry  *provider.Registry
	wallet    ledger.Service
	records   record.Store
	sessions  session.Store
	publisher events.Publisher
	seen      *dedupe.Cache
	transfers *transfer.Orchestrator
	engine    *engine.Engine
}

func initLogging(cfg *config.Config) error {
	return logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	})
}

func buildApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.registry, err = provider.NewRegistry(ctx, cfg.Ledger, secrets.NewResolver()); err != nil {
		return nil, err
	}
	if a.wallet, err = a.registry.Default(ctx); err != nil {
		return nil, err
	}
	if a.records, err = record.Open(ctx, cfg.Storage.Records); err != nil {
		return nil, err
	}
	if a.sessions, err = session.Open(ctx, cfg.Session); err != nil {
		return nil, err
	}
	if a.publisher, err = events.Open(ctx, cfg.Events); err != nil {
		return nil, err
	}

	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	if cfg.Alerting.WebhookURL != "" {
		notifiers = append(notifiers, alerting.NewWebhookNotifier(cfg.Alerting.WebhookURL, cfg.Alerting.RequestTimeout()))
	}

	a.transfers = transfer.New(a.wallet, a.records,
		transfer.WithPublisher(a.publisher),
		transfer.WithAlertDispatcher(alerting.NewFanout(notifiers...)),
		transfer.WithHistoryLimit(cfg.Engine.HistoryLimit),
	)
	a.seen = dedupe.New(cfg.Engine.DedupeWindow(), 10000)
	a.engine = engine.New(a.wallet, a.records, a.sessions, a.transfers,
		engine.WithDedupe(a.seen),
		engine.WithHistoryReply(cfg.Engine.HistoryReply),
	)

	logger.L().Info("wallet ready",
		slog.String("chain", a.registry.DefaultChain()),
		slog.String("address", a.wallet.Address()),
		slog.String("records", cfg.Storage.Records.Driver),
		slog.String("sessions", cfg.Session.Driver),
		slog.String("events", cfg.Events.Driver),
	)
	return a, nil
}

// sweepSessions drops expired in-memory confirmations until ctx ends.
// Other session stores expire entries themselves.
func (a *app) sweepSessions(ctx context.Context) {
	mem, ok := a.sessions.(*session.MemoryStore)
	if !ok {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := mem.Sweep(); n > 0 {
				logger.L().Debug("expired confirmations dropped", slog.Int("count", n))
			}
		}
	}
}

func (a *app) Close() {
	var errs []error
	if a.seen != nil {
		a.seen.Close()
	}
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.sessions != nil {
		errs = append(errs, a.sessions.Close())
	}
	if a.records != nil {
		errs = append(errs, a.records.Close())
	}
	if a.registry != nil {
		a.registry.Close()
	}
	if err := errors.Join(errs...); err != nil {
		logger.L().Warn("shutdown", slog.Any("error", err))
	}
}
