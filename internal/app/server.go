package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	intrnl "timekeeper/internal"
	"timekeeper/internal/accounts"
	"timekeeper/internal/storage"
)

// ServerHandle represents a running HTTP/WebSocket server instance.
type ServerHandle struct {
	addr      string
	server    *http.Server
	store     storage.DocumentStore
	hub       *intrnl.Hub
	cancelHub context.CancelFunc
	logger    zerolog.Logger
	done      chan struct{}
	err       error
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *ServerHandle) Addr() string {
	return h.addr
}

// Stop triggers a graceful shutdown with the provided context deadline.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	return h.server.Shutdown(ctx)
}

// Wait blocks until the server exits.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// RunServer opens the document store, loads account state, starts the hub
// and serves in the background. Call Stop/Wait to manage its lifecycle.
func RunServer(ctx context.Context, cfg ServerConfig, logger zerolog.Logger) (*ServerHandle, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.WSPath = NormalizeWSPath(cfg.WSPath)

	if cfg.Storage.Driver != "postgres" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	store, err := storage.Open(ctx, cfg.Storage.toStorage())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	svc, err := accounts.NewService(ctx, store, accounts.Options{
		BcryptCost: cfg.Auth.BcryptCost,
		CacheSize:  cfg.Auth.CacheSize,
		CacheTTL:   cfg.Auth.CacheTTL,
		Logger:     logger.With().Str("component", "accounts").Logger(),
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	metrics := intrnl.NewMetrics()
	hub := intrnl.NewHub(svc.GlobalCounter(), metrics, logger.With().Str("component", "hub").Logger())
	svc.SetPublisher(hub)

	server := intrnl.NewServer(intrnl.ServerOptions{
		Accounts:    svc,
		Hub:         hub,
		Metrics:     metrics,
		AuthLimiter: intrnl.NewRateLimiter(nil, cfg.Auth.RateLimit, cfg.Auth.RateWindow),
		Logger:      logger,
		TrustProxy:  cfg.TrustProxy,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(cfg, server),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	hubCtx, cancelHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	handle := &ServerHandle{
		addr:      listener.Addr().String(),
		server:    httpServer,
		store:     store,
		hub:       hub,
		cancelHub: cancelHub,
		logger:    logger,
		done:      make(chan struct{}),
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-handle.done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	go handle.serve(listener)

	logger.Info().
		Str("addr", handle.addr).
		Str("ws_path", cfg.WSPath).
		Str("storage", cfg.Storage.Driver).
		Msg("server listening")
	return handle, nil
}

func (h *ServerHandle) serve(listener net.Listener) {
	defer close(h.done)
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	h.cancelHub()
	<-h.hub.Done()
	if err := h.store.Close(); err != nil {
		h.logger.Error().Err(err).Msg("store close")
	}
	h.err = err
}

// newHandler wraps the server routes in CORS and cleartext HTTP/2 support.
func newHandler(cfg ServerConfig, server *intrnl.Server) http.Handler {
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedHeaders: []string{"Content-Type"},
	})
	return h2c.NewHandler(c.Handler(server.Routes(cfg.WSPath)), &http2.Server{})
}
