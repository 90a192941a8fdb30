package internal

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timekeeper/internal/presence"
	"timekeeper/internal/progress"
	"timekeeper/internal/protocol"
)

func TestAPIClientAuthAndSync(t *testing.T) {
	env := newTestEnv(t, 0)
	api := NewAPIClient(env.ts.URL + "/")
	ctx := context.Background()

	signed, err := api.Signup(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, "alice", signed.Identity)
	assert.Equal(t, progress.Default(), signed.Progress)

	_, err = api.Signup(ctx, "alice", "pw")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.NotEmpty(t, apiErr.Message)

	state := progress.Default()
	state.ElapsedSeconds = 42
	resp, err := api.SyncProgress(ctx, "alice", "pw", state)
	require.NoError(t, err)
	assert.Equal(t, int64(42), resp.GlobalCounter)
	assert.Equal(t, int64(42), resp.Progress.ElapsedSeconds)

	counter, err := api.GlobalCounter(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), counter)

	logged, err := api.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, int64(42), logged.Progress.ElapsedSeconds)

	_, err = api.Login(ctx, "alice", "wrong")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestRealtimeClientRoundTrip(t *testing.T) {
	env := newTestEnv(t, 0)
	wsURL, err := realtimeURL(env.ts.URL, "/ws")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rt, err := DialRealtime(ctx, wsURL)
	require.NoError(t, err)
	defer rt.Close()

	first, err := rt.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeGlobalCounter, first.Type)
	second, err := rt.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeRoster, second.Type)

	require.NoError(t, rt.Announce(ctx, presence.Snapshot{Identity: "bob", ElapsedSeconds: 9}))
	for {
		envl, err := rt.ReadEvent()
		require.NoError(t, err)
		if envl.Type != protocol.TypeRoster {
			continue
		}
		roster, err := envl.Roster()
		require.NoError(t, err)
		if len(roster) == 1 {
			assert.Equal(t, "bob", roster[0].Identity)
			assert.Equal(t, int64(9), roster[0].ElapsedSeconds)
			return
		}
	}
}

func TestClientTransportRequiresConnection(t *testing.T) {
	transport := &clientTransport{api: NewAPIClient("http://127.0.0.1:0")}
	err := transport.Announce(context.Background(), presence.Snapshot{Identity: "x"})
	assert.ErrorIs(t, err, errNotConnected)
	assert.Nil(t, transport.current())
}

func TestRealtimeURL(t *testing.T) {
	cases := []struct {
		base, path, want string
	}{
		{"http://localhost:8080", "/ws", "ws://localhost:8080/ws"},
		{"https://example.com/app/", "ws", "wss://example.com/app/ws"},
		{"ws://host:1", "", "ws://host:1/ws"},
	}
	for _, tc := range cases {
		got, err := realtimeURL(tc.base, tc.path)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := realtimeURL("ftp://host", "/ws")
	assert.Error(t, err)
}
