package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ChatWallet/pkg/logger"
)

func newAirdropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "airdrop",
		Short: "Request faucet funds for the wallet once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := initLogging(cfg); err != nil {
				return err
			}
			defer logger.Sync()

			a, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			receipt, err := a.transfers.Airdrop(cmd.Context(), "cli")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s airdropped to %s\nreceipt: %s\n",
				receipt.Amount.String(), a.wallet.Symbol(), a.wallet.Address(), receipt.ID)
			return nil
		},
	}
}
