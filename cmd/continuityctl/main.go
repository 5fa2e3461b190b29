package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	logs "github.com/danmuck/continuityctl/internal/logging"
	"github.com/danmuck/continuityctl/internal/transport"
)

const (
	exitFailure   = 1
	exitTransport = 3
)

func main() {
	logs.ConfigureRuntime()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newApp().RunContext(ctx, os.Args)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "continuityctl: %v\n", err)
		if transport.IsTransportError(err) {
			os.Exit(exitTransport)
		}
		os.Exit(exitFailure)
	}
}
