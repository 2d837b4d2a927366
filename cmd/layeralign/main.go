// Command layeralign registers image layers onto a base image.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"layer-align/internal/cli"
	"layer-align/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	if err := cli.NewRoot(cfg).Run(ctx, os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
