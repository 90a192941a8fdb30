package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	t.Setenv("TIMEKEEPER_DATA_DIR", t.TempDir())
	cfg, err := LoadServerConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "/ws", cfg.WSPath)
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.Equal(t, "state.json", filepath.Base(cfg.Storage.Path))
	assert.Equal(t, 10*time.Minute, cfg.Auth.CacheTTL)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
}

func TestLoadServerConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timekeeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9000"
wsPath: realtime
logFormat: json
storage:
  driver: sqlite
  path: `+filepath.Join(dir, "tk.db")+`
auth:
  rateLimit: 3
  rateWindow: 30s
`), 0o600))
	t.Setenv("TIMEKEEPER_ADDR", ":9100")
	t.Setenv("TIMEKEEPER_CORS_ORIGINS", "http://a.test, http://b.test")

	cfg, err := LoadServerConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Addr)
	assert.Equal(t, "/realtime", cfg.WSPath)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 3, cfg.Auth.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.Auth.RateWindow)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
}

func TestLoadServerConfigRejectsInvalid(t *testing.T) {
	t.Setenv("TIMEKEEPER_DATA_DIR", t.TempDir())

	t.Setenv("TIMEKEEPER_STORAGE_DRIVER", "redis")
	_, err := LoadServerConfig("")
	assert.Error(t, err)

	t.Setenv("TIMEKEEPER_STORAGE_DRIVER", "postgres")
	_, err = LoadServerConfig("")
	assert.ErrorContains(t, err, "storage.dsn")

	t.Setenv("TIMEKEEPER_STORAGE_DRIVER", "file")
	t.Setenv("TIMEKEEPER_LOG_FORMAT", "xml")
	_, err = LoadServerConfig("")
	assert.Error(t, err)
}

func TestLoadServerConfigMissingFile(t *testing.T) {
	_, err := LoadServerConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestNormalizeWSPath(t *testing.T) {
	assert.Equal(t, "/ws", NormalizeWSPath(""))
	assert.Equal(t, "/live", NormalizeWSPath("live"))
	assert.Equal(t, "/live", NormalizeWSPath("/live"))
}
