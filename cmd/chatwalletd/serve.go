package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"ChatWallet/internal/api"
	"ChatWallet/internal/events"
	"ChatWallet/pkg/logger"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}
			if err := initLogging(cfg); err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			go a.sweepSessions(ctx)

			opts := []api.Option{
				api.WithShutdownGrace(cfg.Server.ShutdownGrace()),
				api.WithChainName(a.registry.DefaultChain()),
			}
			if feed, ok := a.publisher.(*events.MemoryPublisher); ok {
				opts = append(opts, api.WithEventFeed(feed))
			}
			if cfg.Metrics.Enabled {
				opts = append(opts, api.WithMetricsPath(cfg.Metrics.Path))
			}
			srv := api.NewServer(cfg.Server.Address, a.engine, a.wallet, a.records, a.transfers, opts...)
			if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.L().Info("chatwalletd stopped", slog.String("address", cfg.Server.Address))
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.address")
	return cmd
}
