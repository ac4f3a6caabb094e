package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/h1994st/rllvm-go/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return cli.RunGetBC(ctx, os.Args[1:], os.Stdout, os.Stderr)
}
