package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	appconfig "github.com/wolfman30/clinic-scheduling/internal/config"
	"github.com/wolfman30/clinic-scheduling/internal/worker/slotopened"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).Component("dispatch-worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := slotopened.Run(ctx, cfg, logger); err != nil {
		logger.Error("dispatch worker exited", "error", err)
		os.Exit(1)
	}
}
