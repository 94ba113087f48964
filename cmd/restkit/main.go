package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samvad-hq/restkit/internal/app"
	"github.com/samvad-hq/restkit/internal/cli"
	"github.com/samvad-hq/restkit/internal/config"
	"github.com/samvad-hq/restkit/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "restkit: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("restkit starting", "env", cfg.Env)
	logger.DebugObj("loaded config", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRoot(func() (*app.App, error) {
		return app.New(cfg, log)
	})
	if err := root.ExecuteContext(ctx); err != nil {
		if ctx.Err() != nil {
			logger.WarnObj("interrupted", "error", err)
		} else {
			logger.ErrorObj("command failed", "error", err)
		}
		return err
	}
	return nil
}
