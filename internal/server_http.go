package internal

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"timekeeper/internal/accounts"
	"timekeeper/internal/presence"
	"timekeeper/internal/progress"
)

type credentialsRequest struct {
	Identity   string `json:"identity"`
	Credential string `json:"credential"`
}

type stateRequest struct {
	Identity   string          `json:"identity"`
	Credential string          `json:"credential"`
	Progress   json.RawMessage `json:"progress"`
}

type stateResponse struct {
	OK            bool           `json:"ok"`
	Progress      progress.State `json:"progress"`
	GlobalCounter int64          `json:"globalCounter"`
}

type globalResponse struct {
	GlobalCounter int64 `json:"globalCounter"`
}

type infoResponse struct {
	BuildInfo
	Connections int64   `json:"connections"`
	Online      int     `json:"online"`
	Uptime      float64 `json:"uptimeSeconds"`
}

func (s *Server) HandleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !s.allowAuth(w, r) {
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.accounts.Signup(r.Context(), req.Identity, req.Credential)
	if err != nil {
		s.writeAccountError(w, "signup", err)
		return
	}
	s.metrics.IncSignup()
	s.logger.Info().Str("identity", result.Identity).Msg("account created")
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !s.allowAuth(w, r) {
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.accounts.Login(r.Context(), req.Identity, req.Credential)
	if err != nil {
		s.writeAccountError(w, "login", err)
		return
	}
	s.metrics.IncLogin()
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) HandleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req stateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.metrics.IncSync("rejected")
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.accounts.SyncProgress(r.Context(), req.Identity, req.Credential, req.Progress)
	if err != nil {
		if accounts.IsClientError(err) {
			s.metrics.IncSync("rejected")
		} else {
			s.metrics.IncSync("error")
		}
		s.writeAccountError(w, "sync", err)
		return
	}
	s.metrics.IncSync("ok")
	writeJSON(w, http.StatusOK, stateResponse{
		OK:            true,
		Progress:      result.Progress,
		GlobalCounter: result.GlobalCounter,
	})
}

func (s *Server) HandleGlobal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, globalResponse{GlobalCounter: s.accounts.GlobalCounter()})
}

func (s *Server) HandleRoster(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	roster := s.hub.Roster()
	if roster == nil {
		roster = []presence.Aggregated{}
	}
	writeJSON(w, http.StatusOK, roster)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) HandleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, infoResponse{
		BuildInfo:   CurrentBuild(),
		Connections: s.hub.ConnectionCount(),
		Online:      len(s.hub.Roster()),
		Uptime:      time.Since(s.started).Seconds(),
	})
}

// writeAccountError maps caller mistakes to 400 and everything else to 500.
func (s *Server) writeAccountError(w http.ResponseWriter, op string, err error) {
	if accounts.IsClientError(err) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.logger.Error().Err(err).Str("op", op).Msg("account store failure")
	writeError(w, http.StatusInternalServerError, errors.New("internal error"))
}

func decodeJSON(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// allowAuth applies the per-IP auth limit and answers 429 with Retry-After.
func (s *Server) allowAuth(w http.ResponseWriter, r *http.Request) bool {
	ip := s.clientIP(r)
	if s.authLimiter.Allow(ip) {
		return true
	}
	wait := s.authLimiter.RetryAfter(ip)
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	writeError(w, http.StatusTooManyRequests, errors.New(http.StatusText(http.StatusTooManyRequests)))
	return false
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
