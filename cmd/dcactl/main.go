package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/systemis/funding-machine-backend/cmd/dcactl/cmd"
)

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cmd.RootCmd().ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
