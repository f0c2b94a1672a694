package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ChatWallet/pkg/logger"
)

var (
	promptColor = color.New(color.FgCyan, color.Bold)
	botColor    = color.New(color.FgGreen)
	noticeColor = color.New(color.FgYellow)
	errColor    = color.New(color.FgRed)
)

func newChatCmd() *cobra.Command {
	var conversation string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the wallet from the terminal",
		Long: "Reads one message per line and prints the wallet's replies.\n" +
			"Type /airdrop to request faucet funds and /quit to leave.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// Stdout belongs to the conversation.
			cfg.Logging.OutputPaths = []string{"stderr"}
			if cfg.Logging.Level != "debug" {
				cfg.Logging.Level = "warn"
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

			if conversation == "" {
				conversation = "cli-" + uuid.NewString()[:8]
			}
			out := cmd.OutOrStdout()
			botColor.Fprintf(out, "Wallet %s on %s. Type 'help' to get started.\n", a.wallet.Address(), a.registry.DefaultChain())
			return chatLoop(ctx, a, conversation, cmd.InOrStdin(), out)
		},
	}
	cmd.Flags().StringVar(&conversation, "conversation", "", "conversation id, random when empty")
	return cmd
}

func chatLoop(ctx context.Context, a *app, conversation string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		promptColor.Fprint(out, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/airdrop":
			receipt, err := a.transfers.Airdrop(ctx, conversation)
			if err != nil {
				errColor.Fprintf(out, "airdrop: %v\n", err)
				continue
			}
			botColor.Fprintf(out, "bot> Airdropped %s %s (%s)\n", receipt.Amount.String(), a.wallet.Symbol(), receipt.ID)
			continue
		}

		reply, err := a.engine.Handle(ctx, conversation, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			errColor.Fprintf(out, "error: %v\n", err)
			continue
		}
		for _, notice := range reply.Notices {
			noticeColor.Fprintf(out, "bot> %s\n", notice)
		}
		if reply.Text != "" {
			botColor.Fprintf(out, "bot> %s\n", reply.Text)
		}
	}
}
