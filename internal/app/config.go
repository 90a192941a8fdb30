package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gookit/validate"
	"github.com/spf13/viper"

	"timekeeper/internal/storage"
)

// ServerConfig defines how the HTTP/WebSocket backend should run.
type ServerConfig struct {
	Addr       string        `mapstructure:"addr" validate:"required"`
	WSPath     string        `mapstructure:"wsPath" validate:"required"`
	LogLevel   string        `mapstructure:"logLevel" validate:"required|in:trace,debug,info,warn,error"`
	LogFormat  string        `mapstructure:"logFormat" validate:"required|in:console,json"`
	TrustProxy bool          `mapstructure:"trustProxy"`
	Storage    StorageConfig `mapstructure:"storage"`
	Auth       AuthConfig    `mapstructure:"auth"`
	CORS       CORSConfig    `mapstructure:"cors"`
}

type StorageConfig struct {
	Driver   string `mapstructure:"driver" validate:"required|in:file,sqlite,postgres"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	Compress bool   `mapstructure:"compress"`
}

type AuthConfig struct {
	BcryptCost int           `mapstructure:"bcryptCost" validate:"min:4|max:31"`
	CacheSize  int           `mapstructure:"cacheSize" validate:"min:0"`
	CacheTTL   time.Duration `mapstructure:"cacheTTL"`
	RateLimit  int           `mapstructure:"rateLimit" validate:"min:0"`
	RateWindow time.Duration `mapstructure:"rateWindow"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// ClientConfig defines the parameters the TUI client needs.
type ClientConfig struct {
	ServerURL string
	WSPath    string
	Identity  string
	DeckPath  string
	LogPath   string
	LogLevel  string
}

func (c StorageConfig) toStorage() storage.Config {
	return storage.Config{
		Driver:   c.Driver,
		Path:     c.Path,
		DSN:      c.DSN,
		Compress: c.Compress,
	}
}

var envBindings = map[string]string{
	"addr":                "TIMEKEEPER_ADDR",
	"wsPath":              "TIMEKEEPER_WS_PATH",
	"logLevel":            "TIMEKEEPER_LOG_LEVEL",
	"logFormat":           "TIMEKEEPER_LOG_FORMAT",
	"trustProxy":          "TIMEKEEPER_TRUST_PROXY",
	"storage.driver":      "TIMEKEEPER_STORAGE_DRIVER",
	"storage.path":        "TIMEKEEPER_STORAGE_PATH",
	"storage.dsn":         "TIMEKEEPER_STORAGE_DSN",
	"storage.compress":    "TIMEKEEPER_STORAGE_COMPRESS",
	"auth.bcryptCost":     "TIMEKEEPER_BCRYPT_COST",
	"auth.cacheSize":      "TIMEKEEPER_AUTH_CACHE_SIZE",
	"auth.cacheTTL":       "TIMEKEEPER_AUTH_CACHE_TTL",
	"auth.rateLimit":      "TIMEKEEPER_AUTH_RATE_LIMIT",
	"auth.rateWindow":     "TIMEKEEPER_AUTH_RATE_WINDOW",
	"cors.allowedOrigins": "TIMEKEEPER_CORS_ORIGINS",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("wsPath", "/ws")
	v.SetDefault("logLevel", "info")
	v.SetDefault("logFormat", "console")
	v.SetDefault("trustProxy", false)
	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.compress", false)
	v.SetDefault("auth.bcryptCost", 10)
	v.SetDefault("auth.cacheSize", 1024*1024)
	v.SetDefault("auth.cacheTTL", 10*time.Minute)
	v.SetDefault("auth.rateLimit", 20)
	v.SetDefault("auth.rateWindow", time.Minute)
	v.SetDefault("cors.allowedOrigins", []string{"*"})
}

// LoadServerConfig layers defaults, the optional YAML file at path and the
// TIMEKEEPER_* environment, then validates the result.
func LoadServerConfig(path string) (ServerConfig, error) {
	var conf ServerConfig
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return conf, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return conf, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&conf); err != nil {
		return conf, fmt.Errorf("unable to decode into config struct: %w", err)
	}
	conf.CORS.AllowedOrigins = splitOrigins(conf.CORS.AllowedOrigins)
	conf.WSPath = NormalizeWSPath(conf.WSPath)
	if conf.Storage.Path == "" && conf.Storage.Driver != "postgres" {
		conf.Storage.Path = DefaultStatePath(conf.Storage.Driver)
	}
	if err := conf.Validate(); err != nil {
		return conf, err
	}
	return conf, nil
}

// Validate checks struct rules plus the per-driver requirements.
func (c *ServerConfig) Validate() error {
	v := validate.Struct(c)
	if !v.Validate() {
		return fmt.Errorf("invalid config: %w", v.Errors)
	}
	switch c.Storage.Driver {
	case "postgres":
		if c.Storage.DSN == "" {
			return errors.New("invalid config: storage.dsn is required for postgres")
		}
	case "file", "sqlite":
		if c.Storage.Path == "" {
			return errors.New("invalid config: storage.path is required")
		}
	default:
		return fmt.Errorf("invalid config: unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}

// env values arrive as one comma separated string.
func splitOrigins(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// DefaultStatePath returns a per-user data path for the state document.
func DefaultStatePath(driver string) string {
	name := "state.json"
	if driver == "sqlite" {
		name = "timekeeper.db"
	}
	if env := os.Getenv("TIMEKEEPER_DATA_DIR"); env != "" {
		return filepath.Join(env, name)
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "timekeeper", name)
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Timekeeper", name)
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Timekeeper", name)
		}
		return filepath.Join(home, ".local", "share", "timekeeper", name)
	}
	return filepath.Join(".", ".timekeeper", name)
}

// NormalizeWSPath guarantees the websocket path starts with '/' and
// falls back to /ws when empty.
func NormalizeWSPath(path string) string {
	if path == "" {
		return "/ws"
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}
