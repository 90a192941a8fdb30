package internal

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"timekeeper/internal/accounts"
	"timekeeper/internal/presence"
	"timekeeper/internal/protocol"
	"timekeeper/internal/storage"
)

type testEnv struct {
	ts      *httptest.Server
	hub     *Hub
	metrics *Metrics
}

func newTestEnv(t *testing.T, authLimit int) *testEnv {
	t.Helper()
	store, err := storage.NewFileStore(filepath.Join(t.TempDir(), "state.json"), false)
	require.NoError(t, err)
	logger := zerolog.Nop()
	svc, err := accounts.NewService(context.Background(), store, accounts.Options{
		BcryptCost: bcrypt.MinCost,
		Logger:     logger,
	})
	require.NoError(t, err)

	metrics := NewMetrics()
	hub := NewHub(svc.GlobalCounter(), metrics, logger)
	svc.SetPublisher(hub)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})

	srv := NewServer(ServerOptions{
		Accounts:    svc,
		Hub:         hub,
		Metrics:     metrics,
		AuthLimiter: NewRateLimiter(nil, authLimit, time.Minute),
		Logger:      logger,
	})
	ts := httptest.NewServer(srv.Routes("/ws"))
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, hub: hub, metrics: metrics}
}

func (e *testEnv) post(t *testing.T, path string, body any) (int, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.ts.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readEnvelope(t *testing.T, ws *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, payload, err := ws.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Decode(payload)
	require.NoError(t, err)
	return env
}

func readCounter(t *testing.T, ws *websocket.Conn) int64 {
	t.Helper()
	value, err := readEnvelope(t, ws).Counter()
	require.NoError(t, err)
	return value
}

func readRoster(t *testing.T, ws *websocket.Conn) []presence.Aggregated {
	t.Helper()
	roster, err := readEnvelope(t, ws).Roster()
	require.NoError(t, err)
	return roster
}

func credentials(identity, credential string) map[string]string {
	return map[string]string{"identity": identity, "credential": credential}
}

func TestSignupAndLogin(t *testing.T) {
	env := newTestEnv(t, 0)

	status, body := env.post(t, "/auth/signup", credentials("alice", "pw"))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", body["identity"])
	prog, ok := body["progress"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 0, prog["elapsedSeconds"])
	assert.Equal(t, []any{}, prog["rewards"])

	status, body = env.post(t, "/auth/signup", credentials("alice", "other"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, body["error"])

	status, _ = env.post(t, "/auth/login", credentials("alice", "pw"))
	assert.Equal(t, http.StatusOK, status)

	_, wrong := env.post(t, "/auth/login", credentials("alice", "nope"))
	status, unknown := env.post(t, "/auth/login", credentials("mallory", "pw"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, wrong["error"], unknown["error"])

	status, _ = env.post(t, "/auth/signup", credentials("", "pw"))
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.post(t, "/auth/signup", credentials("bob", strings.Repeat("x", 73)))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "credential is too long", body["error"])

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.signups))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.logins))
}

func TestStateSyncAppliesDelta(t *testing.T) {
	env := newTestEnv(t, 0)
	env.post(t, "/auth/signup", credentials("alice", "pw"))

	sync := func(elapsed int64) (int, map[string]any) {
		return env.post(t, "/api/state", map[string]any{
			"identity":   "alice",
			"credential": "pw",
			"progress":   map[string]any{"elapsedSeconds": elapsed, "rewards": []string{"c1"}},
		})
	}

	status, body := sync(50)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ok"])
	assert.EqualValues(t, 50, body["globalCounter"])

	status, body = sync(30)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 50, body["globalCounter"])
	prog := body["progress"].(map[string]any)
	assert.EqualValues(t, 30, prog["elapsedSeconds"])

	status, body = env.post(t, "/api/state", credentials("alice", "pw"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, body["error"])

	status, _ = env.post(t, "/api/state", map[string]any{
		"identity": "alice", "credential": "bad", "progress": map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, status)

	resp, err := http.Get(env.ts.URL + "/api/global")
	require.NoError(t, err)
	defer resp.Body.Close()
	var global globalResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&global))
	assert.Equal(t, int64(50), global.GlobalCounter)
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	env := newTestEnv(t, 0)
	resp, err := http.Post(env.ts.URL+"/auth/signup", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, 0)
	resp, err := http.Get(env.ts.URL + "/auth/signup")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodPost, resp.Header.Get("Allow"))
}

func TestAuthRateLimited(t *testing.T) {
	env := newTestEnv(t, 2)
	env.post(t, "/auth/login", credentials("a", "b"))
	env.post(t, "/auth/login", credentials("a", "b"))
	status, _ := env.post(t, "/auth/login", credentials("a", "b"))
	assert.Equal(t, http.StatusTooManyRequests, status)
}

func TestRealtimeCounterAndRoster(t *testing.T) {
	env := newTestEnv(t, 0)
	env.post(t, "/auth/signup", credentials("alice", "pw"))

	first := env.dial(t)
	assert.Equal(t, int64(0), readCounter(t, first))
	assert.Empty(t, readRoster(t, first))

	announce, err := protocol.EncodePresence(presence.Snapshot{
		Identity:       "alice",
		ElapsedSeconds: 12,
		Currency:       1,
		RecentRewards:  []string{"a", "b", "c", "d"},
	})
	require.NoError(t, err)
	require.NoError(t, first.WriteMessage(websocket.TextMessage, announce))
	roster := readRoster(t, first)
	require.Len(t, roster, 1)
	assert.Equal(t, "alice", roster[0].Identity)
	assert.Equal(t, []string{"b", "c", "d"}, roster[0].RecentRewards)

	second := env.dial(t)
	assert.Equal(t, int64(0), readCounter(t, second))
	require.Len(t, readRoster(t, second), 1)

	status, _ := env.post(t, "/api/state", map[string]any{
		"identity": "alice", "credential": "pw", "progress": map[string]any{"elapsedSeconds": 40},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(40), readCounter(t, first))
	assert.Equal(t, int64(40), readCounter(t, second))

	require.NoError(t, first.Close())
	assert.Empty(t, readRoster(t, second))
}

func TestRealtimeMergesConnectionsPerIdentity(t *testing.T) {
	env := newTestEnv(t, 0)
	watcher := env.dial(t)
	readCounter(t, watcher)
	assert.Empty(t, readRoster(t, watcher))

	announce := func(ws *websocket.Conn, snap presence.Snapshot) {
		t.Helper()
		payload, err := protocol.EncodePresence(snap)
		require.NoError(t, err)
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, payload))
	}

	tabA := env.dial(t)
	readCounter(t, tabA)
	readRoster(t, tabA)
	announce(tabA, presence.Snapshot{Identity: "alice", ElapsedSeconds: 10, Currency: 5})
	roster := readRoster(t, watcher)
	require.Len(t, roster, 1)
	assert.Equal(t, int64(10), roster[0].ElapsedSeconds)

	tabB := env.dial(t)
	readCounter(t, tabB)
	readRoster(t, tabB)
	announce(tabB, presence.Snapshot{Identity: "alice", ElapsedSeconds: 25, Currency: 2, HideCurrency: true})
	roster = readRoster(t, watcher)
	require.Len(t, roster, 1)
	assert.Equal(t, "alice", roster[0].Identity)
	assert.Equal(t, int64(25), roster[0].ElapsedSeconds)
	assert.Equal(t, int64(5), roster[0].Currency)
	assert.True(t, roster[0].HideCurrency)

	require.NoError(t, tabA.Close())
	roster = readRoster(t, watcher)
	require.Len(t, roster, 1)
	assert.Equal(t, int64(25), roster[0].ElapsedSeconds)
	assert.Equal(t, int64(2), roster[0].Currency)

	require.NoError(t, tabB.Close())
	assert.Empty(t, readRoster(t, watcher))
}

func TestAnnouncementWithoutIdentityIgnored(t *testing.T) {
	env := newTestEnv(t, 0)
	ws := env.dial(t)
	readCounter(t, ws)
	readRoster(t, ws)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"presence","data":{"elapsedSeconds":5}}`)))
	valid, err := protocol.EncodePresence(presence.Snapshot{Identity: "bob"})
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, valid))

	roster := readRoster(t, ws)
	require.Len(t, roster, 1)
	assert.Equal(t, "bob", roster[0].Identity)
}

func TestHubCounterNeverRegresses(t *testing.T) {
	env := newTestEnv(t, 0)
	ws := env.dial(t)
	readCounter(t, ws)
	readRoster(t, ws)

	env.hub.PublishGlobalCounter(10)
	assert.Equal(t, int64(10), readCounter(t, ws))
	env.hub.PublishGlobalCounter(5)
	env.hub.PublishGlobalCounter(12)
	assert.Equal(t, int64(12), readCounter(t, ws))
}

func TestInfoHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, 0)

	resp, err := http.Get(env.ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(env.ts.URL + "/info")
	require.NoError(t, err)
	var info infoResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	resp.Body.Close()
	assert.Equal(t, AppName, info.Name)
	assert.Equal(t, Version, info.Version)

	resp, err = http.Get(env.ts.URL + "/metrics")
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "timekeeper_http_requests_total")
	assert.Contains(t, string(raw), "timekeeper_global_counter_seconds")
}

func TestRosterEndpoint(t *testing.T) {
	env := newTestEnv(t, 0)
	resp, err := http.Get(env.ts.URL + "/api/roster")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestRateLimiterWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limiter := NewRateLimiter(clock, 1, time.Second)
	assert.True(t, limiter.Allow("a"))
	assert.False(t, limiter.Allow("a"))
	assert.True(t, limiter.Allow("b"))
	assert.Equal(t, time.Second, limiter.RetryAfter("a"))
	assert.Zero(t, limiter.RetryAfter("c"))

	clock.Advance(400 * time.Millisecond)
	assert.Equal(t, 600*time.Millisecond, limiter.RetryAfter("a"))
	clock.Advance(1100 * time.Millisecond)
	assert.Zero(t, limiter.RetryAfter("a"))
	assert.True(t, limiter.Allow("a"))
}
