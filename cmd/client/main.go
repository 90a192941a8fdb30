package main

import (
	"flag"
	"fmt"
	"os"

	"timekeeper/internal/app"
)

func main() {
	serverURL := flag.String("server", envOrDefault("TIMEKEEPER_SERVER", "http://localhost:8080"), "server base URL (e.g., http://localhost:8080)")
	wsPath := flag.String("ws-path", envOrDefault("TIMEKEEPER_WS_PATH", "/ws"), "websocket path on the server")
	identity := flag.String("user", envOrDefault("TIMEKEEPER_USER", ""), "default identity for login prompts")
	deckPath := flag.String("deck", envOrDefault("TIMEKEEPER_DECK", ""), "YAML deck file (defaults to the built-in deck)")
	logPath := flag.String("log", envOrDefault("TIMEKEEPER_CLIENT_LOG", ""), "write client logs to this file")
	logLevel := flag.String("log-level", envOrDefault("TIMEKEEPER_LOG_LEVEL", "info"), "client log level")
	flag.Parse()

	cfg := app.ClientConfig{
		ServerURL: *serverURL,
		WSPath:    *wsPath,
		Identity:  *identity,
		DeckPath:  *deckPath,
		LogPath:   *logPath,
		LogLevel:  *logLevel,
	}

	if err := app.RunClient(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
