package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/panelgrid/pkg/coalesce"
	"github.com/matzehuels/panelgrid/pkg/history"
	"github.com/matzehuels/panelgrid/pkg/session"
)

const configFileName = "config.toml"

// Backend names accepted in the [server] table.
const (
	backendNone   = "none"
	backendMemory = "memory"
	backendFile   = "file"
	backendRedis  = "redis"
	backendMongo  = "mongo"
)

// Config is the content of config.toml.
type Config struct {
	Server ServerConfig `toml:"server"`
	Editor EditorConfig `toml:"editor"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Addr string `toml:"addr"`

	// Sessions is memory, file or redis.
	Sessions   string `toml:"sessions"`
	SessionDir string `toml:"session_dir"`
	SessionTTL string `toml:"session_ttl"`

	// Cache is none, file or redis.
	Cache    string `toml:"cache"`
	CacheDir string `toml:"cache_dir"`
	CacheTTL string `toml:"cache_ttl"`

	// Presets is none, file or mongo.
	Presets       string `toml:"presets"`
	PresetDir     string `toml:"preset_dir"`
	MongoURI      string `toml:"mongo_uri"`
	MongoDatabase string `toml:"mongo_database"`

	RedisAddr string `toml:"redis_addr"`
	// Relay fans live updates out over redis pub/sub so that several
	// instances can share one session store.
	Relay bool `toml:"relay"`

	AllowedOrigins []string `toml:"allowed_origins"`
}

// EditorConfig configures the client commands.
type EditorConfig struct {
	URL          string  `toml:"url"`
	HistoryLimit int     `toml:"history_limit"`
	DebounceMS   int     `toml:"debounce_ms"`
	Epsilon      float64 `toml:"epsilon"`
	StateFile    string  `toml:"state_file"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:          ":8000",
			Sessions:      backendMemory,
			SessionTTL:    session.DefaultTTL.String(),
			Cache:         backendNone,
			CacheTTL:      time.Hour.String(),
			Presets:       backendFile,
			MongoDatabase: appName,
			RedisAddr:     "localhost:6379",
		},
		Editor: EditorConfig{
			URL:          defaultURL,
			HistoryLimit: history.DefaultLimit,
			DebounceMS:   int(coalesce.DefaultDelay / time.Millisecond),
			Epsilon:      coalesce.DefaultEpsilon,
		},
	}
}

// loadConfig reads path, or the default location when path is empty, over
// the defaults. A missing default file is not an error; a missing explicit
// one is. Unknown keys are logged.
func loadConfig(path string, logger *log.Logger) (*Config, error) {
	cfg := defaultConfig()
	explicit := path != ""
	if !explicit {
		dir, err := configDir()
		if err != nil {
			return cfg, nil
		}
		path = filepath.Join(dir, configFileName)
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			logger.Debug("no config file", "path", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		logger.Warn("unrecognized config keys", "path", path, "keys", keys)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	logger.Debug("loaded config", "path", path)
	return cfg, nil
}

func (c *Config) validate() error {
	checks := []struct {
		key, value string
		allowed    []string
	}{
		{"server.sessions", c.Server.Sessions, []string{backendMemory, backendFile, backendRedis}},
		{"server.cache", c.Server.Cache, []string{backendNone, backendFile, backendRedis}},
		{"server.presets", c.Server.Presets, []string{backendNone, backendFile, backendMongo}},
	}
	for _, ch := range checks {
		if !slices.Contains(ch.allowed, ch.value) {
			return fmt.Errorf("%s: unknown backend %q (want one of %v)", ch.key, ch.value, ch.allowed)
		}
	}
	for key, v := range map[string]string{"server.session_ttl": c.Server.SessionTTL, "server.cache_ttl": c.Server.CacheTTL} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if c.Server.Relay && c.Server.Sessions != backendRedis {
		return fmt.Errorf("server.relay requires redis sessions")
	}
	if c.Editor.HistoryLimit <= 0 {
		return fmt.Errorf("editor.history_limit must be positive")
	}
	if c.Editor.DebounceMS <= 0 {
		return fmt.Errorf("editor.debounce_ms must be positive")
	}
	if c.Editor.Epsilon <= 0 || c.Editor.Epsilon >= 1 {
		return fmt.Errorf("editor.epsilon must be in (0, 1)")
	}
	return nil
}

func (c *ServerConfig) sessionTTL() time.Duration {
	d, _ := time.ParseDuration(c.SessionTTL)
	return d
}

func (c *ServerConfig) cacheTTL() time.Duration {
	d, _ := time.ParseDuration(c.CacheTTL)
	return d
}

func (c *EditorConfig) debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}
