// Command chatwalletd runs the custodial chat wallet: an HTTP daemon for
// messaging transports and a local terminal chat for trying it out.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "chatwalletd: %v\n", err)
		stop()
		os.Exit(1)
	}
}
