package app

import (
	"bytes"
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServerConfig(t *testing.T) ServerConfig {
	return ServerConfig{
		Addr:      "127.0.0.1:0",
		WSPath:    "/ws",
		LogLevel:  "info",
		LogFormat: "json",
		Storage: StorageConfig{
			Driver: "file",
			Path:   filepath.Join(t.TempDir(), "data", "state.json"),
		},
		Auth: AuthConfig{BcryptCost: 4},
		CORS: CORSConfig{AllowedOrigins: []string{"http://allowed.test"}},
	}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://allowed.test")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestRunServerPersistsAcrossRestart(t *testing.T) {
	cfg := testServerConfig(t)

	handle, err := RunServer(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	base := "http://" + handle.Addr()

	resp := postJSON(t, base+"/auth/signup", map[string]string{"identity": "alice", "credential": "pw"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://allowed.test", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = postJSON(t, base+"/api/state", map[string]any{
		"identity":   "alice",
		"credential": "pw",
		"progress":   map[string]any{"elapsedSeconds": 75},
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, handle.Stop(ctx))
	require.NoError(t, handle.Wait())

	handle, err = RunServer(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer func() {
		_ = handle.Stop(nil)
		_ = handle.Wait()
	}()

	getResp, err := http.Get("http://" + handle.Addr() + "/api/global")
	require.NoError(t, err)
	defer getResp.Body.Close()
	var out struct {
		GlobalCounter int64 `json:"globalCounter"`
	}
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&out))
	assert.Equal(t, int64(75), out.GlobalCounter)
}

func TestRunServerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	handle, err := RunServer(ctx, testServerConfig(t), zerolog.Nop())
	require.NoError(t, err)
	cancel()

	done := make(chan error, 1)
	go func() { done <- handle.Wait() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunServerRejectsBadConfig(t *testing.T) {
	cfg := testServerConfig(t)
	cfg.Storage.Driver = "redis"
	_, err := RunServer(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}
