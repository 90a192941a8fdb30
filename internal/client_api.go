package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"timekeeper/internal/presence"
	"timekeeper/internal/progress"
	"timekeeper/internal/protocol"
	"timekeeper/internal/syncclient"
)

var (
	httpTimeout = 5 * time.Second

	errNotConnected = errors.New("realtime channel not connected")
)

// APIError carries the status and message of a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// AuthResult is the body of a successful signup or login.
type AuthResult struct {
	Identity string         `json:"identity"`
	Progress progress.State `json:"progress"`
}

type syncRequest struct {
	Identity   string         `json:"identity"`
	Credential string         `json:"credential"`
	Progress   progress.State `json:"progress"`
}

// APIClient talks to the HTTP side of the server.
type APIClient struct {
	baseURL string
	client  *http.Client
}

func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: httpTimeout},
	}
}

func (c *APIClient) Signup(ctx context.Context, identity, credential string) (AuthResult, error) {
	var resp AuthResult
	err := c.doJSONRequest(ctx, http.MethodPost, "/auth/signup", map[string]string{"identity": identity, "credential": credential}, &resp)
	return resp, err
}

func (c *APIClient) Login(ctx context.Context, identity, credential string) (AuthResult, error) {
	var resp AuthResult
	err := c.doJSONRequest(ctx, http.MethodPost, "/auth/login", map[string]string{"identity": identity, "credential": credential}, &resp)
	return resp, err
}

func (c *APIClient) SyncProgress(ctx context.Context, identity, credential string, state progress.State) (syncclient.SyncResponse, error) {
	var resp syncclient.SyncResponse
	err := c.doJSONRequest(ctx, http.MethodPost, "/api/state", syncRequest{
		Identity:   identity,
		Credential: credential,
		Progress:   state,
	}, &resp)
	return resp, err
}

func (c *APIClient) GlobalCounter(ctx context.Context) (int64, error) {
	var resp globalResponse
	if err := c.doJSONRequest(ctx, http.MethodGet, "/api/global", nil, &resp); err != nil {
		return 0, err
	}
	return resp.GlobalCounter, nil
}

func (c *APIClient) doJSONRequest(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: readResponseError(resp.Body)}
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func readResponseError(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return "request failed"
	}
	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err == nil {
		if msg, ok := parsed["error"]; ok {
			return msg
		}
	}
	return strings.TrimSpace(string(data))
}

// realtimeURL turns the http(s) base into the ws(s) URL of the realtime path.
func realtimeURL(httpBase, wsPath string) (string, error) {
	parsed, err := url.Parse(httpBase)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %s", parsed.Scheme)
	}
	if wsPath == "" {
		wsPath = "/ws"
	}
	if !strings.HasPrefix(wsPath, "/") {
		wsPath = "/" + wsPath
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + wsPath
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String(), nil
}

// RealtimeClient is the client end of the websocket channel.
type RealtimeClient struct {
	conn       *websocket.Conn
	writeMutex sync.Mutex
}

func DialRealtime(ctx context.Context, wsURL string) (*RealtimeClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		return nil, err
	}
	return &RealtimeClient{conn: conn}, nil
}

// Announce sends one presence snapshot.
func (c *RealtimeClient) Announce(ctx context.Context, snap presence.Snapshot) error {
	payload, err := protocol.EncodePresence(snap)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	_ = c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// ReadEvent blocks for the next server envelope.
func (c *RealtimeClient) ReadEvent() (protocol.Envelope, error) {
	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			return protocol.Envelope{}, err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		return protocol.Decode(payload)
	}
}

func (c *RealtimeClient) Close() error {
	c.writeMutex.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMutex.Unlock()
	return c.conn.Close()
}

// clientTransport sends syncs over HTTP and announcements over whichever
// realtime connection is current.
type clientTransport struct {
	api *APIClient

	mu sync.RWMutex
	rt *RealtimeClient
}

func (t *clientTransport) SyncProgress(ctx context.Context, identity, credential string, state progress.State) (syncclient.SyncResponse, error) {
	return t.api.SyncProgress(ctx, identity, credential, state)
}

func (t *clientTransport) Announce(ctx context.Context, snap presence.Snapshot) error {
	t.mu.RLock()
	rt := t.rt
	t.mu.RUnlock()
	if rt == nil {
		return errNotConnected
	}
	return rt.Announce(ctx, snap)
}

// setRealtime swaps the live connection and returns the previous one.
func (t *clientTransport) setRealtime(rt *RealtimeClient) *RealtimeClient {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.rt
	t.rt = rt
	return prev
}

func (t *clientTransport) current() *RealtimeClient {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rt
}
