package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"timekeeper/internal/app"
	"timekeeper/internal/logging"
)

const (
	modeServer = "server"
	modeClient = "client"
	modeLocal  = "local"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: .env: %v\n", err)
	}

	mode, args := parseMode(os.Args[1:])
	flagSet := flag.NewFlagSet("timekeeper", flag.ExitOnError)
	configPath := flagSet.String("config", envOrDefault("TIMEKEEPER_CONFIG", ""), "optional YAML server config")
	serverURL := flagSet.String("server-url", envOrDefault("TIMEKEEPER_SERVER", "http://localhost:8080"), "server base URL (client mode)")
	identity := flagSet.String("user", envOrDefault("TIMEKEEPER_USER", ""), "default identity for login prompts")
	deckPath := flagSet.String("deck", envOrDefault("TIMEKEEPER_DECK", ""), "YAML deck file for the client")
	logPath := flagSet.String("log", envOrDefault("TIMEKEEPER_CLIENT_LOG", ""), "log file for client and local modes")
	quiet := flagSet.Bool("quiet", false, "suppress informational logs")
	flagSet.Parse(args)

	cfg, err := app.LoadServerConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "timekeeper: %v\n", err)
		os.Exit(1)
	}
	if mode == modeLocal && os.Getenv("TIMEKEEPER_ADDR") == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	if *quiet {
		cfg.LogLevel = "warn"
	}

	clientCfg := app.ClientConfig{
		ServerURL: *serverURL,
		WSPath:    cfg.WSPath,
		Identity:  *identity,
		DeckPath:  *deckPath,
		LogPath:   *logPath,
		LogLevel:  cfg.LogLevel,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case modeServer:
		err = runServerMode(ctx, cfg)
	case modeLocal:
		err = runLocalMode(ctx, cfg, clientCfg)
	default:
		err = app.RunClient(clientCfg)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "timekeeper: %v\n", err)
		os.Exit(1)
	}
}

func runServerMode(ctx context.Context, cfg app.ServerConfig) error {
	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	handle, err := app.RunServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info().Str("addr", handle.Addr()).Str("ws_path", cfg.WSPath).Str("storage", cfg.Storage.Driver).Msg("timekeeper server listening")
	return handle.Wait()
}

// runLocalMode serves on loopback and attaches a client to it. The TUI owns
// the terminal, so server logs go to the log file or nowhere.
func runLocalMode(ctx context.Context, cfg app.ServerConfig, clientCfg app.ClientConfig) error {
	logger := zerolog.Nop()
	if clientCfg.LogPath != "" {
		fileLogger, closer, err := logging.File(clientCfg.LogPath, cfg.LogLevel)
		if err != nil {
			return err
		}
		defer closer.Close()
		logger = fileLogger.With().Str("side", "server").Logger()
	}

	handle, err := app.RunServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stopServer(handle)

	if err := waitForServer(handle.Addr(), 5*time.Second); err != nil {
		return err
	}

	clientCfg.ServerURL = buildBaseURL(handle.Addr())
	if err := app.RunClient(clientCfg); err != nil {
		return err
	}
	stopServer(handle)
	return handle.Wait()
}

func waitForServer(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server did not become ready: %w", err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func buildBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "::" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func parseMode(args []string) (string, []string) {
	if len(args) == 0 {
		return modeClient, args
	}
	switch strings.ToLower(args[0]) {
	case modeServer, modeClient, modeLocal:
		return strings.ToLower(args[0]), args[1:]
	}
	return modeClient, args
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func stopServer(handle *app.ServerHandle) {
	if handle == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = handle.Stop(shutdownCtx)
}
