package internal

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"timekeeper/internal/accounts"
)

// Server holds everything the HTTP and websocket handlers need.
type Server struct {
	accounts    *accounts.Service
	hub         *Hub
	metrics     *Metrics
	authLimiter *RateLimiter
	logger      zerolog.Logger
	started     time.Time
	trustProxy  bool
}

type ServerOptions struct {
	Accounts    *accounts.Service
	Hub         *Hub
	Metrics     *Metrics
	AuthLimiter *RateLimiter
	Logger      zerolog.Logger
	// TrustProxy makes clientIP honor X-Forwarded-For.
	TrustProxy bool
}

func NewServer(opts ServerOptions) *Server {
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Server{
		accounts:    opts.Accounts,
		hub:         opts.Hub,
		metrics:     metrics,
		authLimiter: opts.AuthLimiter,
		logger:      opts.Logger,
		started:     time.Now(),
		trustProxy:  opts.TrustProxy,
	}
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

// Middleware wraps next with request metrics.
func (s *Server) Middleware(wsPath string, next http.Handler) http.Handler {
	return s.metrics.Middleware(wsPath, next)
}

func (s *Server) clientIP(r *http.Request) string {
	if s.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Routes registers every endpoint on a fresh mux wrapped in request metrics.
func (s *Server) Routes(wsPath string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(wsPath, s.ServeWS)
	mux.HandleFunc("/auth/signup", s.HandleSignup)
	mux.HandleFunc("/auth/login", s.HandleLogin)
	mux.HandleFunc("/api/state", s.HandleState)
	mux.HandleFunc("/api/global", s.HandleGlobal)
	mux.HandleFunc("/api/roster", s.HandleRoster)
	mux.HandleFunc("/healthz", s.HandleHealth)
	mux.HandleFunc("/info", s.HandleInfo)
	mux.Handle("/metrics", s.MetricsHandler())
	return s.Middleware(wsPath, mux)
}
