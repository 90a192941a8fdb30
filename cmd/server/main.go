package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"timekeeper/internal/app"
	"timekeeper/internal/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: .env: %v\n", err)
	}

	configPath := flag.String("config", os.Getenv("TIMEKEEPER_CONFIG"), "optional YAML config file")
	flag.Parse()

	cfg, err := app.LoadServerConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := app.RunServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("server failed to start")
	}
	logger.Info().
		Str("addr", handle.Addr()).
		Str("ws_path", cfg.WSPath).
		Str("storage", cfg.Storage.Driver).
		Msg("timekeeper server listening")
	if err := handle.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}
