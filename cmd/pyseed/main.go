package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"pyseed/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], newCLI(os.Stdout, os.Stderr))
	stop()
	logging.Close()
	os.Exit(code)
}
